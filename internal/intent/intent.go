package intent

// 内置意图名称。
const (
	NameWeather   = "get_weather"
	NameEmails    = "summarize_emails"
	NameKnowledge = "query_knowledge"
	NameRecall    = "recall_conversation"
	NameGeneralQA = "general_qa"
)

// Intent 是对用户一次输入的结构化分类结果。
type Intent struct {
	Name              string         `json:"name"`
	Slots             map[string]any `json:"slots"`
	Confidence        float64        `json:"confidence"`
	Priority          int            `json:"priority"`
	NeedsConfirmation bool           `json:"needs_confirmation"`
}

// 澄清原因,区分"分类结果模糊"与"置信度不足"。
const (
	ReasonAmbiguous     = "ambiguous"
	ReasonLowConfidence = "low_confidence"
)

// Clarification 表示识别结果不明确,需要用户在给定选项中补充说明。
type Clarification struct {
	Message string   `json:"message"`
	Options []string `json:"options"`
	Reason  string   `json:"reason,omitempty"`
}

// HasMemoryAffinity 报告该意图是否以回忆历史对话为目标,
// 这类意图可以直接用长期记忆召回结果作答而无需调用工具。
func (i Intent) HasMemoryAffinity() bool {
	return i.Name == NameRecall
}
