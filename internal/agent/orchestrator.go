package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"OpenAssist/internal/guard"
	"OpenAssist/internal/intent"
	"OpenAssist/internal/llm"
	"OpenAssist/internal/memory"
	"OpenAssist/internal/tool"
	"OpenAssist/internal/vector"
	"OpenAssist/pkg/logger"
)

// 面向用户的固定话术。
const (
	roundLimitAnswer = "I reached the reasoning limit but couldn't complete the task. Please restate your question."
	cancelledAnswer  = "Okay, operation cancelled. Anything else I can help with?"
	noPendingAnswer  = "No pending clarification found. Please start a new query."
	resumeFailAnswer = "Sorry, something went wrong while resuming. Please start a new query."
	directQAFailText = "Sorry, an error occurred while answering."
)

const directQASystemPrompt = "You are a helpful assistant. Answer naturally and clearly in the same language as the user."

// Orchestrator 把意图识别、推理循环、工具调用、记忆层级和安全
// 过滤组合成完整的对话处理流水线。单个 (用户, 会话) 上的调用必须
// 由上层串行化,不同会话之间可以并发。
type Orchestrator struct {
	llm        llm.Client
	recognizer *intent.Recognizer
	tools      *tool.Registry
	guard      *guard.Guard
	session    *memory.SessionMemory
	longterm   *memory.LongTermMemory
	planner    *Planner

	maxRounds       int
	shortLimit      int
	relevanceCutoff float64

	shortMu sync.Mutex
	short   map[string]*memory.ShortTermMemory
}

// Option 配置编排器。
type Option func(*Orchestrator)

// WithMaxRounds 设置单个意图允许的最大推理轮数。
func WithMaxRounds(rounds int) Option {
	return func(o *Orchestrator) {
		if rounds > 0 {
			o.maxRounds = rounds
		}
	}
}

// WithShortTermLimit 设置短期记忆保留的对话轮数。
func WithShortTermLimit(limit int) Option {
	return func(o *Orchestrator) {
		if limit > 0 {
			o.shortLimit = limit
		}
	}
}

// WithRelevanceCutoff 设置长期记忆直接作答所需的相关度下限。
func WithRelevanceCutoff(cutoff float64) Option {
	return func(o *Orchestrator) { o.relevanceCutoff = cutoff }
}

// New 创建编排器。
func New(client llm.Client, recognizer *intent.Recognizer, tools *tool.Registry, g *guard.Guard, session *memory.SessionMemory, longterm *memory.LongTermMemory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		llm:             client,
		recognizer:      recognizer,
		tools:           tools,
		guard:           g,
		session:         session,
		longterm:        longterm,
		maxRounds:       6,
		shortLimit:      5,
		relevanceCutoff: 0.65,
		short:           make(map[string]*memory.ShortTermMemory),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.planner = NewPlanner(client, func() string {
		specs, err := json.Marshal(tools.Describe())
		if err != nil {
			return "{}"
		}
		return string(specs)
	}, tools.Has)
	return o
}

// Handle 处理一条用户输入。违禁话题扫描无条件执行,并先于识别与
// 任何工具/LLM 开销;secureMode 只控制 PII 掩码:为 true 时入站文本
// 打码,最终回答在出站时还原并对新生成的 PII 二次脱敏。
func (o *Orchestrator) Handle(ctx context.Context, userID, text, sessionID string, secureMode bool) *Response {
	resp := o.dispatch(ctx, userID, text, sessionID, secureMode)
	logger.Conversation(userID, sessionID).Info("conversation_handled",
		"type", string(resp.Type),
		"secure_mode", secureMode,
	)
	return resp
}

func (o *Orchestrator) dispatch(ctx context.Context, userID, text, sessionID string, secureMode bool) *Response {
	if !secureMode {
		if screened := o.guard.Screen(text); !screened.Safe {
			return &Response{Type: ResponseAnswer, Answer: screened.Text}
		}
		resp := o.handle(ctx, userID, text, sessionID, false)
		o.screenOutbound(resp)
		return resp
	}

	inbound, masks := o.guard.Inbound(text)
	if !inbound.Safe {
		return &Response{Type: ResponseAnswer, Answer: inbound.Text, SecureMode: true}
	}

	resp := o.handle(ctx, userID, inbound.Text, sessionID, true)
	resp.SecureMode = true
	resp.MaskedInput = inbound.Text

	if resp.Type == ResponseAnswer {
		outbound := o.guard.Outbound(resp.Answer, masks)
		resp.Answer = outbound.Text
	} else {
		outbound := o.guard.Outbound(resp.Message, masks)
		resp.Message = outbound.Text
	}
	return resp
}

// screenOutbound 对非安全模式的出站文本补一次违禁话题扫描。
func (o *Orchestrator) screenOutbound(resp *Response) {
	if resp.Type == ResponseAnswer {
		if screened := o.guard.Screen(resp.Answer); !screened.Safe {
			resp.Answer = screened.Text
		}
		return
	}
	if screened := o.guard.Screen(resp.Message); !screened.Safe {
		resp.Message = screened.Text
	}
}

func (o *Orchestrator) handle(ctx context.Context, userID, text, sessionID string, secureMode bool) *Response {
	log := logger.Named("agent")
	log.Info("处理用户请求", "user_id", userID, "session_id", sessionID)

	short := o.shortMemory(userID, sessionID)
	history := short.Context()

	recall, err := o.longterm.Search(ctx, userID, sessionID, text)
	if err != nil {
		log.Warn("长期记忆检索失败,继续处理", "error", err)
		recall = nil
	}
	merged := memory.MergeContext(history, recall)

	intents, clarification := o.recognizer.Recognize(ctx, text, merged)
	if clarification != nil {
		// 识别阶段的澄清一律记为 intent_ambiguous,全部低置信度
		// 与显式模糊只在提示语上有区别。
		o.savePending(ctx, userID, sessionID, PendingContext{
			ClarificationType: ClarificationIntentAmbiguous,
			OriginalQuery:     text,
			SecureMode:        secureMode,
			Timestamp:         time.Now(),
		})
		return &Response{Type: ResponseClarification, Message: clarification.Message, Options: clarification.Options}
	}

	result := o.planAndExecute(ctx, text, intents, merged, recall)
	if result.Type == ResponseClarification {
		o.savePending(ctx, userID, sessionID, PendingContext{
			ClarificationType: ClarificationToolFailed,
			OriginalQuery:     text,
			PendingIntents:    intents,
			PendingSteps:      result.Steps,
			SecureMode:        secureMode,
			Timestamp:         time.Now(),
		})
		return result
	}

	short.Add(llm.RoleUser, text)
	short.Add(llm.RoleAssistant, result.Answer)
	o.persistSession(ctx, userID, sessionID, intents, result.Steps, text, result.Answer)
	return result
}

// Resume 消费上一轮留下的澄清状态并继续对话。无论走哪个分支,
// pending_context 都会先被清除。
func (o *Orchestrator) Resume(ctx context.Context, userID, reply, sessionID string) *Response {
	resp := o.resume(ctx, userID, reply, sessionID)
	logger.Conversation(userID, sessionID).Info("conversation_resumed",
		"type", string(resp.Type),
	)
	return resp
}

func (o *Orchestrator) resume(ctx context.Context, userID, reply, sessionID string) *Response {
	raw, ok, err := o.session.Read(ctx, userID, sessionID, memory.KeyPendingContext)
	if err != nil {
		logger.Named("agent").Error("读取待澄清状态失败", "error", err)
		return &Response{Type: ResponseAnswer, Answer: resumeFailAnswer}
	}
	if !ok {
		return &Response{Type: ResponseAnswer, Answer: noPendingAnswer}
	}

	o.clearPending(ctx, userID, sessionID)

	var pending PendingContext
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		// 损坏的挂起状态按全新请求处理,不作为硬错误。
		logger.Named("agent").Warn("待澄清状态无法解析,按新请求处理", "error", err)
		return o.Handle(ctx, userID, reply, sessionID, false)
	}

	switch pending.ClarificationType {
	case ClarificationToolFailed:
		if strings.Contains(strings.ToLower(reply), "retry") || strings.Contains(reply, "重试") {
			return o.Handle(ctx, userID, pending.OriginalQuery, sessionID, pending.SecureMode)
		}
		return &Response{Type: ResponseAnswer, Answer: cancelledAnswer}
	case ClarificationIntentAmbiguous:
		return o.Handle(ctx, userID, reply, sessionID, pending.SecureMode)
	default:
		// 未知类型同样按新请求处理。
		return o.Handle(ctx, userID, reply, sessionID, pending.SecureMode)
	}
}

// planAndExecute 是 ReAct 推理主循环:逐个意图规划并执行步骤,
// 工具失败立即中止并转为澄清,轮数耗尽则放弃整个多意图批次。
func (o *Orchestrator) planAndExecute(ctx context.Context, userQuery string, intents []intent.Intent, history []llm.Message, recall []vector.Result) *Response {
	var (
		steps        []Step
		usedTools    []UsedTool
		citations    []Citation
		observations []string
	)
	trace := NewPlanTrace(userQuery)

	for _, it := range intents {
		// 记忆亲和意图在召回已足够相关时直接复用,跳过工具调用。
		if it.HasMemoryAffinity() && len(recall) > 0 && recall[0].Score >= o.relevanceCutoff {
			chunks := make([]any, 0, len(recall))
			for _, r := range recall {
				chunks = append(chunks, r.Chunk)
				observations = append(observations, r.Chunk)
			}
			step := Step{
				Intent:      it.Name,
				Thought:     "Long-term recall already answers this intent",
				Action:      ActionMemoryOnly,
				Input:       map[string]any{"query": userQuery},
				Observation: map[string]any{"results": chunks},
				Status:      StepSucceeded,
				MemoryUsed:  true,
				Timestamp:   time.Now(),
			}
			trace.AddStep(step)
			steps = append(steps, step)
			continue
		}

		roundCount := 0
		done := false
		for !done && roundCount < o.maxRounds {
			roundCount++
			step := o.planner.Next(ctx, it, userQuery, steps, observations, history)

			if step.Action != "" && step.Action != ActionFinish {
				step.Status = StepRunning
				envelope := o.tools.Invoke(ctx, step.Action, step.Input)
				if envelope.IsError() {
					step.Status = StepFailed
					step.Error = envelope.ErrorMessage()
					step.Observation = map[string]any(envelope)
					trace.AddStep(step)
					steps = append(steps, step)
					return &Response{
						Type:      ResponseClarification,
						Message:   fmt.Sprintf("Tool %s failed: %s. Retry?", step.Action, step.Error),
						Options:   []string{"Retry", "Cancel"},
						Intents:   intents,
						Steps:     steps,
						UsedTools: usedTools,
						Trace:     trace,
					}
				}

				if isKnowledgeAction(step.Action) && emptyResults(envelope) {
					// 知识库零命中不是失败:改走直接问答,循环继续。
					qa := o.directQA(ctx, userQuery, history)
					step.Observation = map[string]any{"answer": qa}
					step.Status = StepSucceeded
					observations = append(observations, qa)
					usedTools = append(usedTools, UsedTool{Name: step.Action, Inputs: step.Input, Outputs: map[string]any(envelope), Status: StepSucceeded})
				} else {
					step.Observation = map[string]any(envelope)
					step.Status = StepSucceeded
					observations = append(observations, formatObservation(envelope))
					usedTools = append(usedTools, UsedTool{Name: step.Action, Inputs: step.Input, Outputs: map[string]any(envelope), Status: StepSucceeded})
					if isKnowledgeAction(step.Action) {
						citations = collectCitations(citations, envelope)
					}
				}
			} else if step.Action == ActionFinish {
				step.Status = StepFinished
			} else {
				// 动作为空,包括问答类意图与兜底降级的意图,直接作答。
				qa := o.directQA(ctx, userQuery, history)
				step.Observation = map[string]any{"answer": qa}
				step.Status = StepSucceeded
				observations = append(observations, qa)
			}

			trace.AddStep(step)
			steps = append(steps, step)

			if step.Status == StepFinished || step.Action == ActionFinish || !step.DecideNext {
				done = true
			}
		}

		if !done {
			// 轮数耗尽:放弃整个批次,返回终态回答而不是澄清。
			return &Response{
				Type:      ResponseAnswer,
				Answer:    roundLimitAnswer,
				Intents:   intents,
				Steps:     steps,
				UsedTools: usedTools,
				Citations: citations,
				Trace:     trace,
			}
		}
	}

	answer := o.summarize(ctx, userQuery, observations)
	answer = appendCitationBlock(answer, citations)
	return &Response{
		Type:      ResponseAnswer,
		Answer:    answer,
		Intents:   intents,
		Steps:     steps,
		UsedTools: usedTools,
		Citations: citations,
		Trace:     trace,
	}
}

func (o *Orchestrator) directQA(ctx context.Context, userQuery string, history []llm.Message) string {
	messages := []llm.Message{llm.System(directQASystemPrompt)}
	start := len(history) - 6
	if start < 0 {
		start = 0
	}
	messages = append(messages, history[start:]...)
	messages = append(messages, llm.User(userQuery))

	answer, err := o.llm.Chat(ctx, messages)
	if err != nil {
		logger.Named("agent").Warn("直接问答失败", "error", err)
		return directQAFailText
	}
	return answer
}

// persistSession 更新会话快照并把新增的对话轮转发到长期记忆。
// 游标只在转发成功后推进,失败时下一轮重试同一区间,
// 依赖长期记忆按绝对下标覆盖写实现恰好一次。
func (o *Orchestrator) persistSession(ctx context.Context, userID, sessionID string, intents []intent.Intent, steps []Step, userText, answer string) {
	log := logger.Named("agent")

	var sessionCtx SessionContext
	if raw, ok, err := o.session.Read(ctx, userID, sessionID, memory.KeyContext); err == nil && ok {
		if err := json.Unmarshal([]byte(raw), &sessionCtx); err != nil {
			log.Warn("会话快照无法解析,重建", "error", err)
			sessionCtx = SessionContext{}
		}
	}

	sessionCtx.LastIntents = intents
	sessionCtx.LastSteps = steps
	sessionCtx.ConversationHistory = append(sessionCtx.ConversationHistory,
		llm.User(userText),
		llm.Assistant(answer),
	)

	if sessionCtx.LongtermSaved < 0 {
		sessionCtx.LongtermSaved = 0
	}
	if sessionCtx.LongtermSaved < len(sessionCtx.ConversationHistory) {
		unsaved := sessionCtx.ConversationHistory[sessionCtx.LongtermSaved:]
		if err := o.longterm.StoreConversation(ctx, userID, sessionID, unsaved, sessionCtx.LongtermSaved); err != nil {
			log.Warn("长期记忆写入失败,游标保持不变", "error", err)
		} else {
			sessionCtx.LongtermSaved = len(sessionCtx.ConversationHistory)
		}
	}

	encoded, err := json.Marshal(sessionCtx)
	if err != nil {
		log.Error("序列化会话快照失败", "error", err)
		return
	}
	payload := string(encoded)
	if err := o.session.Write(ctx, userID, sessionID, memory.KeyContext, &payload); err != nil {
		log.Error("写入会话快照失败", "error", err)
	}
}

func (o *Orchestrator) savePending(ctx context.Context, userID, sessionID string, pending PendingContext) {
	encoded, err := json.Marshal(pending)
	if err != nil {
		logger.Named("agent").Error("序列化待澄清状态失败", "error", err)
		return
	}
	payload := string(encoded)
	if err := o.session.Write(ctx, userID, sessionID, memory.KeyPendingContext, &payload); err != nil {
		logger.Named("agent").Error("写入待澄清状态失败", "error", err)
	}
}

func (o *Orchestrator) clearPending(ctx context.Context, userID, sessionID string) {
	if err := o.session.Write(ctx, userID, sessionID, memory.KeyPendingContext, nil); err != nil {
		logger.Named("agent").Error("清除待澄清状态失败", "error", err)
	}
}

func (o *Orchestrator) shortMemory(userID, sessionID string) *memory.ShortTermMemory {
	key := userID + ":" + sessionID
	o.shortMu.Lock()
	defer o.shortMu.Unlock()
	if mem, ok := o.short[key]; ok {
		return mem
	}
	mem := memory.NewShortTermMemory(o.shortLimit)
	o.short[key] = mem
	return mem
}

func isKnowledgeAction(action string) bool {
	return action == toolKnowledge || strings.HasPrefix(action, toolKnowledge+".")
}

func emptyResults(envelope tool.Envelope) bool {
	results, ok := envelope["results"].([]any)
	return ok && len(results) == 0
}
