package agent

import "OpenAssist/internal/intent"

// ResponseType 区分最终回答与等待用户输入的澄清。
type ResponseType string

const (
	ResponseAnswer        ResponseType = "answer"
	ResponseClarification ResponseType = "clarification"
)

// UsedTool 记录一次工具调用的输入输出。
type UsedTool struct {
	Name    string         `json:"name"`
	Inputs  map[string]any `json:"inputs"`
	Outputs any            `json:"outputs"`
	Status  StepStatus     `json:"status"`
}

// Citation 是知识库命中产出的引用,(文件名, 页码) 去重。
type Citation struct {
	Filename string `json:"filename"`
	Page     int    `json:"page"`
}

// Response 是 handle/resume 的统一出参。对外暴露的永远是
// 自然语言回答或带选项的澄清,不泄露内部异常。
type Response struct {
	Type        ResponseType    `json:"type"`
	Answer      string          `json:"answer,omitempty"`
	Intents     []intent.Intent `json:"intents,omitempty"`
	Steps       []Step          `json:"steps,omitempty"`
	UsedTools   []UsedTool      `json:"used_tools,omitempty"`
	Citations   []Citation      `json:"citations,omitempty"`
	Trace       *PlanTrace      `json:"trace,omitempty"`
	Message     string          `json:"message,omitempty"`
	Options     []string        `json:"options,omitempty"`
	SecureMode  bool            `json:"secure_mode,omitempty"`
	MaskedInput string          `json:"masked_input,omitempty"`
}
