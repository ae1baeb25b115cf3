package ingest

import (
	"context"

	xerrors "OpenAssist/internal/errors"
)

// ListOptions 控制 List 的过滤与排序。
type ListOptions struct {
	Statuses []Status
	Limit    int
}

func (o *ListOptions) applyDefaults() {
	if o.Limit <= 0 {
		o.Limit = 50
	}
}

// Store 持久化文档的入库状态。
type Store interface {
	// Create 登记一份新文档，ID 冲突时返回 ErrDocumentConflict。
	Create(ctx context.Context, doc *Document) error
	// Get 按 ID 返回文档，不存在时返回 ErrDocumentNotFound。
	Get(ctx context.Context, id string) (*Document, error)
	// Claim 将文档置为运行中并递增尝试次数。
	// 已完成返回 ErrDocumentCompleted，运行中返回 ErrDocumentConflict，
	// 重试耗尽返回 ErrDocumentExhausted。
	Claim(ctx context.Context, id string) (*Document, error)
	// MarkSucceeded 记录入库成功以及产生的分片数量。
	MarkSucceeded(ctx context.Context, id string, chunks int) error
	// MarkFailed 记录失败原因；terminal 表示不再重试。
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error
	// List 返回最近更新的文档。
	List(ctx context.Context, opts ListOptions) ([]*Document, error)
	// Close 释放底层资源。
	Close() error
}
