package vector

import "context"

// Document 是待入库的一段文本及其元数据。
type Document struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Result 是一次语义检索命中的切片。
type Result struct {
	Chunk    string            `json:"chunk"`
	Score    float64           `json:"score"`
	DocID    string            `json:"doc_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Index 定义语义索引的统一接口。Query 的 filters 按元数据等值过滤，
// 传空表示全局检索。
type Index interface {
	Ingest(ctx context.Context, docs []Document) error
	Query(ctx context.Context, text string, topK int, filters map[string]string) ([]Result, error)
}

// MatchesFilters 判断文档元数据是否满足全部过滤条件。
func MatchesFilters(metadata, filters map[string]string) bool {
	for key, want := range filters {
		if want == "" {
			continue
		}
		if metadata[key] != want {
			return false
		}
	}
	return true
}
