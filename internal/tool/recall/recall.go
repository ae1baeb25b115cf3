package recall

import (
	"context"
	"fmt"

	"OpenAssist/internal/memory"
	"OpenAssist/internal/tool"
)

// Tool 从长期记忆中召回历史对话片段。只应在用户明确要求
// 回忆之前的对话时使用。
type Tool struct {
	longterm *memory.LongTermMemory
}

// New 创建对话召回工具。
func New(longterm *memory.LongTermMemory) *Tool {
	return &Tool{longterm: longterm}
}

// Spec 实现 tool.Tool。
func (t *Tool) Spec() tool.Spec {
	return tool.Spec{
		Description: "Retrieve conversation history from stored long-term memory",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_id":    map[string]any{"type": "string", "description": "User identifier"},
				"session_id": map[string]any{"type": "string", "description": "Session identifier"},
				"query":      map[string]any{"type": "string", "description": "Optional text to focus the recall"},
			},
			"required": []string{"user_id", "session_id"},
		},
	}
}

// Run 实现 tool.Tool。
func (t *Tool) Run(ctx context.Context, params map[string]any) (any, error) {
	userID, _ := params["user_id"].(string)
	sessionID, _ := params["session_id"].(string)
	if userID == "" || sessionID == "" {
		return nil, fmt.Errorf("parameters 'user_id' and 'session_id' are required")
	}
	query, _ := params["query"].(string)

	results, err := t.longterm.Search(ctx, userID, sessionID, query)
	if err != nil {
		return nil, fmt.Errorf("长期记忆召回失败: %w", err)
	}

	items := make([]any, 0, len(results))
	for _, r := range results {
		items = append(items, map[string]any{
			"chunk":  r.Chunk,
			"score":  r.Score,
			"doc_id": r.DocID,
		})
	}
	return map[string]any{
		"scope":      "longterm",
		"query":      query,
		"results":    items,
		"user_id":    userID,
		"session_id": sessionID,
	}, nil
}
