package llm

import (
	"context"
	"strings"
)

// 对话消息里允许出现的角色。
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 表示一条对话消息，是与大模型交互的最小单元。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client 定义了调用大模型的统一接口。编排器内的意图识别、规划、
// 总结等环节都通过同一个 Chat 契约完成，由调用方自行拼装消息。
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// System 构造一条 system 角色的消息。
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User 构造一条 user 角色的消息。
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant 构造一条 assistant 角色的消息。
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// StripCodeFence 去掉模型输出中包裹 JSON 的 Markdown 代码块标记。
// 要求结构化输出时,部分模型仍会返回 ```json ... ``` 形式的内容。
func StripCodeFence(response string) string {
	trimmed := strings.TrimSpace(response)
	if idx := strings.Index(trimmed, "```json"); idx >= 0 {
		trimmed = trimmed[idx+len("```json"):]
	} else if idx := strings.Index(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[idx+len("```"):]
	} else {
		return trimmed
	}
	if end := strings.Index(trimmed, "```"); end >= 0 {
		trimmed = trimmed[:end]
	}
	return strings.TrimSpace(trimmed)
}
