package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"OpenAssist/internal/llm"
	"OpenAssist/pkg/logger"
)

const recognizerSystemPrompt = `You are an intent recognition assistant. Analyze the user's query and return a JSON response.

Available intents:
- get_weather: Get weather information (slots: location)
- summarize_emails: Summarize emails (slots: count, filter)
- query_knowledge: Search knowledge base for specific documents (slots: query, topic)
- recall_conversation: Recall something from earlier conversations (slots: query)
- general_qa: General questions, chitchat, or any query that doesn't require tools (slots: query)

Use general_qa for:
- General knowledge questions
- Explanations that don't require searching documents
- Greetings, chitchat
- Questions that can be answered directly by the LLM

Return valid JSON with this structure:
{
  "intents": [
    {
      "name": "intent_name",
      "slots": {"key": "value"},
      "confidence": 0.0-1.0
    }
  ],
  "ambiguous": false,
  "clarification_needed": false
}

If the query is ambiguous or confidence is low, set ambiguous=true.`

// 澄清提示使用固定的候选操作列表。
var (
	ambiguousClarification = Clarification{
		Message: "您的问题不太明确，请选择您想要的操作：",
		Options: []string{"查询天气信息", "查看邮件摘要", "搜索知识库"},
		Reason:  ReasonAmbiguous,
	}
	lowConfidenceOptions = []string{"查询天气", "查看邮件", "搜索知识"}
)

// Recognizer 封装基于 LLM 的意图分类,解析失败时退回关键词分类器。
type Recognizer struct {
	llm           llm.Client
	minConfidence float64
}

// Option 配置识别器。
type Option func(*Recognizer)

// WithMinConfidence 设置触发澄清的置信度下限。
func WithMinConfidence(min float64) Option {
	return func(r *Recognizer) {
		if min > 0 {
			r.minConfidence = min
		}
	}
}

// NewRecognizer 创建意图识别器。
func NewRecognizer(client llm.Client, opts ...Option) *Recognizer {
	r := &Recognizer{llm: client, minConfidence: 0.7}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// recognizerResponse 是分类提示要求 LLM 输出的 JSON 结构。
type recognizerResponse struct {
	Intents []struct {
		Name       string         `json:"name"`
		Slots      map[string]any `json:"slots"`
		Confidence float64        `json:"confidence"`
		Priority   int            `json:"priority"`
	} `json:"intents"`
	Ambiguous           bool `json:"ambiguous"`
	ClarificationNeeded bool `json:"clarification_needed"`
}

// Recognize 把用户输入分类成意图列表,或在结果不明确时返回澄清请求。
// 任一意图低于置信度下限都会把整个结果转成澄清,绝不返回部分列表;
// LLM 调用失败或输出无法解析时走关键词兜底,该路径保证总有结果。
func (r *Recognizer) Recognize(ctx context.Context, text string, history []llm.Message) ([]Intent, *Clarification) {
	messages := []llm.Message{llm.System(recognizerSystemPrompt)}

	var contextStr strings.Builder
	if len(history) > 0 {
		contextStr.WriteString("\nConversation history:\n")
		start := len(history) - 3
		if start < 0 {
			start = 0
		}
		for _, msg := range history[start:] {
			contextStr.WriteString(msg.Role)
			contextStr.WriteString(": ")
			contextStr.WriteString(msg.Content)
			contextStr.WriteString("\n")
		}
	}
	messages = append(messages, llm.User(fmt.Sprintf("%s\nCurrent query: %s\n\nAnalyze the intent and return JSON.", contextStr.String(), text)))

	response, err := r.llm.Chat(ctx, messages)
	if err != nil {
		logger.Named("intent").Warn("意图分类调用失败,使用关键词兜底", "error", err)
		return Fallback(text), nil
	}

	return r.parseResponse(response, text)
}

func (r *Recognizer) parseResponse(response, originalText string) ([]Intent, *Clarification) {
	var parsed recognizerResponse
	if err := json.Unmarshal([]byte(llm.StripCodeFence(response)), &parsed); err != nil {
		logger.Named("intent").Warn("意图分类输出无法解析,使用关键词兜底", "error", err)
		return Fallback(originalText), nil
	}

	if parsed.Ambiguous || parsed.ClarificationNeeded {
		clarification := ambiguousClarification
		return nil, &clarification
	}

	intents := make([]Intent, 0, len(parsed.Intents))
	for _, item := range parsed.Intents {
		confidence := item.Confidence
		if confidence < r.minConfidence {
			return nil, &Clarification{
				Message: fmt.Sprintf("我不太确定您的意图（置信度: %.2f），请更详细地描述您的需求。", confidence),
				Options: append([]string(nil), lowConfidenceOptions...),
				Reason:  ReasonLowConfidence,
			}
		}
		slots := item.Slots
		if slots == nil {
			slots = map[string]any{}
		}
		intents = append(intents, Intent{
			Name:       item.Name,
			Slots:      slots,
			Confidence: confidence,
			Priority:   item.Priority,
		})
	}

	if len(intents) == 0 {
		return Fallback(originalText), nil
	}
	return intents, nil
}
