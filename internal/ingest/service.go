package ingest

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "OpenAssist/internal/errors"
	"OpenAssist/pkg/logger"
)

// SubmitRequest 描述一次文档入库请求。
type SubmitRequest struct {
	ID       string         `json:"id,omitempty"`
	Filename string         `json:"filename"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Service 负责文档的登记与查询。
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
}

// NewService 构造入库服务。
func NewService(store Store, producer Producer, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{store: store, producer: producer, maxRetries: maxRetries}
}

// Submit 登记一份新文档并推送到队列等待处理。
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Document, error) {
	if strings.TrimSpace(req.Filename) == "" {
		return nil, xerrors.New(CodeIngestValidation, "文档名称不能为空")
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, xerrors.New(CodeIngestValidation, "文档内容不能为空")
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "入库服务未初始化")
	}

	docID := strings.TrimSpace(req.ID)
	if docID != "" {
		doc, err := s.store.Get(ctx, docID)
		if err == nil {
			return doc, nil
		}
		if !stdErrors.Is(err, ErrDocumentNotFound) {
			return nil, err
		}
	} else {
		docID = uuid.NewString()
	}

	doc := &Document{
		ID:         docID,
		Filename:   req.Filename,
		Content:    req.Content,
		Metadata:   cloneMetadata(req.Metadata),
		Status:     StatusPending,
		Attempts:   0,
		MaxRetries: s.maxRetries,
	}
	if err := s.store.Create(ctx, doc); err != nil {
		if stdErrors.Is(err, ErrDocumentConflict) {
			existing, getErr := s.store.Get(ctx, docID)
			if getErr == nil {
				return existing, nil
			}
			if !stdErrors.Is(getErr, ErrDocumentNotFound) {
				return nil, getErr
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, docID); err != nil {
		logger.L().Error("文档入队失败", slog.Any("error", err), slog.String("doc_id", docID))
		wrapped := xerrors.Wrap(CodeIngestPublish, err, "发布文档到队列失败")
		_ = s.store.MarkFailed(ctx, docID, CodeIngestPublish, wrapped.Error(), true)
		return nil, wrapped
	}
	logger.Audit().Info("文档入队成功",
		slog.String("doc_id", docID),
		slog.String("filename", doc.Filename),
		slog.Int("max_retries", doc.MaxRetries),
	)
	return doc, nil
}

// Get 返回指定文档的状态。
func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "入库存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回最近的文档列表。
func (s *Service) List(ctx context.Context, opts ListOptions) ([]*Document, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "入库存储未初始化")
	}
	return s.store.List(ctx, opts)
}

// Close 释放资源。
func (s *Service) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
	}
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

// WaitUntilCompleted 在指定超时时间内轮询文档状态。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Document, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		doc, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if doc.Status == StatusSucceeded || doc.Status == StatusFailed {
			return doc, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
