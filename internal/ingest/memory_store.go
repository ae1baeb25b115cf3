package ingest

import (
	"context"
	"sort"
	"sync"
	"time"

	xerrors "OpenAssist/internal/errors"
)

// MemoryStore 以内存方式保存文档状态，主要用于测试与单机部署。
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*Document)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "document 不能为空")
	}
	if doc.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "文档 ID 不能为空")
	}
	if _, ok := m.docs[doc.ID]; ok {
		return ErrDocumentConflict
	}
	now := time.Now().Unix()
	if doc.CreatedAt == 0 {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	m.docs[doc.ID] = cloneDocument(doc)
	return nil
}

// Get 返回文档。
func (m *MemoryStore) Get(_ context.Context, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return cloneDocument(doc), nil
}

// Claim 将文档状态更新为运行中。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	switch doc.Status {
	case StatusSucceeded:
		return cloneDocument(doc), ErrDocumentCompleted
	case StatusRunning:
		return cloneDocument(doc), ErrDocumentConflict
	}
	if doc.Attempts >= doc.MaxRetries {
		return cloneDocument(doc), ErrDocumentExhausted
	}
	doc.Status = StatusRunning
	doc.Attempts++
	doc.LastError = ""
	doc.ErrorCode = ""
	doc.UpdatedAt = time.Now().Unix()
	return cloneDocument(doc), nil
}

// MarkSucceeded 记录成功结果与分片数量。
func (m *MemoryStore) MarkSucceeded(_ context.Context, id string, chunks int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.Status = StatusSucceeded
	doc.Chunks = chunks
	doc.LastError = ""
	doc.ErrorCode = ""
	doc.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkFailed 标记文档失败。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return ErrDocumentNotFound
	}
	if terminal {
		doc.Status = StatusFailed
	} else {
		doc.Status = StatusPending
	}
	doc.LastError = lastError
	doc.ErrorCode = string(code)
	doc.UpdatedAt = time.Now().Unix()
	return nil
}

// List 返回最近更新的文档。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	matchesStatus := func(doc *Document) bool {
		if len(opts.Statuses) == 0 {
			return true
		}
		for _, status := range opts.Statuses {
			if doc.Status == status {
				return true
			}
		}
		return false
	}

	results := make([]*Document, 0, len(m.docs))
	for _, doc := range m.docs {
		if !matchesStatus(doc) {
			continue
		}
		results = append(results, cloneDocument(doc))
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].UpdatedAt == results[j].UpdatedAt {
			if results[i].CreatedAt == results[j].CreatedAt {
				return results[i].ID < results[j].ID
			}
			return results[i].CreatedAt > results[j].CreatedAt
		}
		return results[i].UpdatedAt > results[j].UpdatedAt
	})

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

func cloneDocument(doc *Document) *Document {
	clone := *doc
	clone.Metadata = cloneMetadata(doc.Metadata)
	return &clone
}
