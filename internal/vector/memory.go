package vector

import (
	"context"
	"sort"
	"sync"
)

type memoryEntry struct {
	doc Document
	vec []float64
}

// MemoryIndex 是纯内存实现，进程退出即丢失，主要用于测试与
// 无外部依赖的单机部署。
type MemoryIndex struct {
	mu      sync.RWMutex
	entries []memoryEntry
}

// NewMemoryIndex 创建内存索引。
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

// Ingest 追加文档。同一 ID 重复写入会覆盖旧内容，保证重试幂等。
func (m *MemoryIndex) Ingest(_ context.Context, docs []Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range docs {
		if doc.Text == "" {
			continue
		}
		entry := memoryEntry{doc: doc, vec: Embed(doc.Text)}
		replaced := false
		for i := range m.entries {
			if m.entries[i].doc.ID == doc.ID && doc.ID != "" {
				m.entries[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			m.entries = append(m.entries, entry)
		}
	}
	return nil
}

// Query 返回与查询文本最相似的 topK 条结果。
func (m *MemoryIndex) Query(_ context.Context, text string, topK int, filters map[string]string) ([]Result, error) {
	if topK <= 0 {
		topK = 3
	}
	query := Embed(text)

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Result, 0, len(m.entries))
	for _, entry := range m.entries {
		if !MatchesFilters(entry.doc.Metadata, filters) {
			continue
		}
		results = append(results, Result{
			Chunk:    entry.doc.Text,
			Score:    Cosine(query, entry.vec),
			DocID:    entry.doc.ID,
			Metadata: entry.doc.Metadata,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Len 返回索引中的文档数量。
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
