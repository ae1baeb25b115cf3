package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"OpenAssist/internal/intent"
	"OpenAssist/internal/llm"
	"OpenAssist/pkg/logger"
)

const plannerSystemPromptFmt = `You are a reasoning assistant that plans step-by-step actions to complete user intents.
You have access to these tools:
%s

Respond in JSON:
{
  "thought": "your reasoning on what to do next",
  "action": "tool_name or 'finish'",
  "input": { "param": "value" },
  "decide_next": true/false
}`

// 内置意图与工具的对应关系,规划器输出不可用时按此表兜底。
const (
	toolWeather   = "weather"
	toolGmail     = "gmail"
	toolKnowledge = "vdb"
	toolRecall    = "memory"
)

// Planner 负责向 LLM 请求下一个推理步骤,输出无法解析时
// 退回确定性的意图到工具映射,保证循环永远有下一个动作。
type Planner struct {
	llm   llm.Client
	specs func() string
	has   func(string) bool
}

// NewPlanner 创建规划器。describeSpecs 返回工具描述的 JSON 文本,
// 用于拼装提示词;hasTool 报告工具是否已在注册中心登记。
func NewPlanner(client llm.Client, describeSpecs func() string, hasTool func(string) bool) *Planner {
	return &Planner{llm: client, specs: describeSpecs, has: hasTool}
}

// plannerResponse 是规划提示要求 LLM 输出的 JSON 结构。
type plannerResponse struct {
	Thought    string         `json:"thought"`
	Action     string         `json:"action"`
	Input      map[string]any `json:"input"`
	DecideNext bool           `json:"decide_next"`
}

// Next 请求下一个步骤。prevSteps 与 observations 只取最近 3 条。
func (p *Planner) Next(ctx context.Context, it intent.Intent, userQuery string, prevSteps []Step, observations []string, history []llm.Message) Step {
	slotsJSON, err := json.Marshal(it.Slots)
	if err != nil {
		slotsJSON = []byte("{}")
	}

	var stepsContext strings.Builder
	start := len(prevSteps) - 3
	if start < 0 {
		start = 0
	}
	for i, step := range prevSteps[start:] {
		fmt.Fprintf(&stepsContext, "%d. %s (%s)\n", i+1, step.Action, step.Status)
	}

	obsStart := len(observations) - 3
	if obsStart < 0 {
		obsStart = 0
	}

	userPrompt := fmt.Sprintf(`User query: %s
Current intent: %s
Slots: %s
Previous steps:
%s
Recent observations:
%s`, userQuery, it.Name, slotsJSON, stepsContext.String(), strings.Join(observations[obsStart:], "\n"))

	messages := []llm.Message{
		llm.System(fmt.Sprintf(plannerSystemPromptFmt, p.specs())),
	}
	if len(history) > 0 {
		hStart := len(history) - 3
		if hStart < 0 {
			hStart = 0
		}
		messages = append(messages, history[hStart:]...)
	}
	messages = append(messages, llm.User(userPrompt))

	response, err := p.llm.Chat(ctx, messages)
	if err != nil {
		logger.Named("planner").Warn("规划调用失败,使用映射表兜底", "intent", it.Name, "error", err)
		return p.degrade(FallbackStep(it))
	}
	return p.parseResponse(response, it)
}

func (p *Planner) parseResponse(response string, it intent.Intent) Step {
	var parsed plannerResponse
	if err := json.Unmarshal([]byte(llm.StripCodeFence(response)), &parsed); err != nil {
		logger.Named("planner").Warn("规划输出无法解析,使用映射表兜底", "intent", it.Name, "error", err)
		return p.degrade(FallbackStep(it))
	}
	input := parsed.Input
	if input == nil {
		input = map[string]any{}
	}
	return Step{
		Intent:     it.Name,
		Thought:    parsed.Thought,
		Action:     parsed.Action,
		Input:      input,
		Status:     StepPlanned,
		DecideNext: parsed.DecideNext,
		Timestamp:  time.Now(),
	}
}

// degrade 在兜底映射指向未登记工具时改为直接作答。确定性映射
// 对同一输入永远给出同一工具,若该工具缺席,tool_failed 澄清的
// 重试只会原样复现失败,必须在这里截断。
func (p *Planner) degrade(step Step) Step {
	if step.Action == "" || step.Action == ActionFinish || p.has == nil || p.has(step.Action) {
		return step
	}
	logger.Named("planner").Warn("兜底映射的工具未登记,改为直接作答", "intent", step.Intent, "tool", step.Action)
	step.Thought = fmt.Sprintf("Fallback planning: %s → direct LLM (tool %s unavailable)", step.Intent, step.Action)
	step.Action = ""
	return step
}

// FallbackStep 按固定映射表生成单次工具调用,decide_next 恒为 false,
// 保证兜底步骤执行后循环一定收敛。
func FallbackStep(it intent.Intent) Step {
	var action string
	input := map[string]any{}

	switch it.Name {
	case intent.NameWeather:
		action = toolWeather
		city := stringSlot(it.Slots, "location")
		if city == "" {
			city = "Singapore"
		}
		input["city"] = city
	case intent.NameEmails:
		action = toolGmail
		count := 5
		if v, ok := it.Slots["count"]; ok {
			switch n := v.(type) {
			case int:
				if n > 0 {
					count = n
				}
			case float64:
				if n > 0 {
					count = int(n)
				}
			}
		}
		input["count"] = count
	case intent.NameKnowledge:
		action = toolKnowledge
		if q := stringSlot(it.Slots, "query"); q != "" {
			input["query"] = q
		}
	default:
		// general_qa、recall 以及未知意图都交给 LLM 直接作答。
		if q := stringSlot(it.Slots, "query"); q != "" {
			input["query"] = q
		}
	}

	target := action
	if target == "" {
		target = "direct LLM"
	}
	return Step{
		Intent:     it.Name,
		Thought:    fmt.Sprintf("Fallback planning: %s → %s", it.Name, target),
		Action:     action,
		Input:      input,
		Status:     StepPlanned,
		DecideNext: false,
		Timestamp:  time.Now(),
	}
}

func stringSlot(slots map[string]any, key string) string {
	if v, ok := slots[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
