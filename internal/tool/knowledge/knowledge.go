package knowledge

import (
	"context"
	"fmt"

	"OpenAssist/internal/tool"
	"OpenAssist/internal/vector"
)

const defaultTopK = 3

// Tool 在知识库向量索引上做语义检索。
type Tool struct {
	index vector.Index
}

// New 创建知识检索工具。
func New(index vector.Index) *Tool {
	return &Tool{index: index}
}

// Spec 实现 tool.Tool。
func (t *Tool) Spec() tool.Spec {
	return tool.Spec{
		Description: "Search knowledge base using semantic similarity to find relevant information",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Search query or question to find relevant knowledge"},
				"top_k": map[string]any{"type": "integer", "description": "Number of most relevant results to return", "default": defaultTopK},
				"k":     map[string]any{"type": "integer", "description": "Alias for 'top_k'"},
			},
			"required": []string{"query"},
		},
	}
}

// Run 实现 tool.Tool。query 为必填参数。
func (t *Tool) Run(ctx context.Context, params map[string]any) (any, error) {
	query, _ := params["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("parameter 'query' is required for knowledge search")
	}

	topK := intParam(params, "top_k")
	if topK <= 0 {
		topK = intParam(params, "k")
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	results, err := t.index.Query(ctx, query, topK, nil)
	if err != nil {
		return nil, fmt.Errorf("知识库检索失败: %w", err)
	}

	items := make([]any, 0, len(results))
	for _, r := range results {
		metadata := map[string]any{}
		for k, v := range r.Metadata {
			metadata[k] = v
		}
		items = append(items, map[string]any{
			"chunk":    r.Chunk,
			"score":    r.Score,
			"doc_id":   r.DocID,
			"metadata": metadata,
		})
	}
	return map[string]any{
		"query":   query,
		"results": items,
		"count":   len(items),
	}, nil
}

func intParam(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
