package agent

import (
	"time"

	"OpenAssist/internal/intent"
	"OpenAssist/internal/llm"
)

// StepStatus 是推理步骤的状态机取值。
type StepStatus string

const (
	StepPlanned   StepStatus = "planned"
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepFinished  StepStatus = "finished"
)

// Terminal 报告该状态是否为终态。
func (s StepStatus) Terminal() bool {
	return s == StepSucceeded || s == StepFailed || s == StepFinished
}

// 规划器约定的特殊动作。
const (
	// ActionFinish 表示规划器判断意图已完成。
	ActionFinish = "finish"
	// ActionMemoryOnly 是长期记忆直接命中时记录的合成动作,没有实际工具调用。
	ActionMemoryOnly = "memory_only"
)

// Step 是推理循环中一次计划并执行的动作。由规划器创建,
// 执行器恰好赋值一次终态,此后不再变更。
type Step struct {
	Intent      string         `json:"intent"`
	Thought     string         `json:"thought"`
	Action      string         `json:"action,omitempty"`
	Input       map[string]any `json:"input"`
	Observation any            `json:"observation,omitempty"`
	Status      StepStatus     `json:"status"`
	DecideNext  bool           `json:"decide_next"`
	Error       string         `json:"error,omitempty"`
	MemoryUsed  bool           `json:"memory_used,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// PlanTrace 是一次编排调用的只追加步骤日志,
// 无论成功失败,每个尝试过的步骤都会进入这里。
type PlanTrace struct {
	UserQuery string    `json:"user_query"`
	CreatedAt time.Time `json:"created_at"`
	Steps     []Step    `json:"steps"`
}

// NewPlanTrace 创建一条空的执行轨迹。
func NewPlanTrace(userQuery string) *PlanTrace {
	return &PlanTrace{UserQuery: userQuery, CreatedAt: time.Now()}
}

// AddStep 追加一个步骤。
func (t *PlanTrace) AddStep(step Step) {
	t.Steps = append(t.Steps, step)
}

// ClarificationType 标识一次暂停等待用户输入的原因。
type ClarificationType string

const (
	ClarificationIntentAmbiguous ClarificationType = "intent_ambiguous"
	ClarificationToolFailed      ClarificationType = "tool_failed"
)

// PendingContext 是澄清挂起时持久化的会话状态。
// 它存在当且仅当上一轮以澄清结束;resume 消费后立即清除。
type PendingContext struct {
	ClarificationType ClarificationType `json:"clarification_type"`
	OriginalQuery     string            `json:"original_query"`
	PendingIntents    []intent.Intent   `json:"pending_intents"`
	PendingSteps      []Step            `json:"pending_steps"`
	SecureMode        bool              `json:"secure_mode,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
}

// SessionContext 是每轮结束后持久化的会话快照。
// LongtermSaved 是 ConversationHistory 上单调不减的游标,
// 保证每个对话轮恰好转发一次到长期记忆。
type SessionContext struct {
	LastIntents         []intent.Intent `json:"last_intents"`
	LastSteps           []Step          `json:"last_steps"`
	ConversationHistory []llm.Message   `json:"conversation_history"`
	LongtermSaved       int             `json:"longterm_saved"`
}
