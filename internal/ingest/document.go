package ingest

import (
	xerrors "OpenAssist/internal/errors"
)

// Status 表示文档在入库流水线中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Document 描述了一份排队等待切分与向量化的知识文档。
type Document struct {
	ID         string         `json:"id"`
	Filename   string         `json:"filename"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Status     Status         `json:"status"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"max_retries"`
	LastError  string         `json:"last_error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Chunks     int            `json:"chunks"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

var (
	// ErrDocumentNotFound 表示指定的文档不存在。
	ErrDocumentNotFound = xerrors.New(CodeIngestNotFound, "document not found")
	// ErrDocumentConflict 表示文档在当前状态下无法进行所请求的操作。
	ErrDocumentConflict = xerrors.New(CodeIngestConflict, "document conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrDocumentCompleted 表示文档已经成功入库。
	ErrDocumentCompleted = xerrors.New(CodeIngestCompleted, "document already ingested", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrDocumentExhausted 表示文档的重试次数已经耗尽。
	ErrDocumentExhausted = xerrors.New(CodeIngestExhausted, "document retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

const (
	CodeIngestNotFound   xerrors.Code = "INGEST_NOT_FOUND"
	CodeIngestConflict   xerrors.Code = "INGEST_CONFLICT"
	CodeIngestCompleted  xerrors.Code = "INGEST_COMPLETED"
	CodeIngestExhausted  xerrors.Code = "INGEST_RETRIES_EXHAUSTED"
	CodeIngestValidation xerrors.Code = "INGEST_VALIDATION_FAILED"
	CodeIngestPublish    xerrors.Code = "INGEST_PUBLISH_FAILED"
	CodeIngestProcessing xerrors.Code = "INGEST_PROCESSING_FAILED"
)

func init() {
	xerrors.Register(CodeIngestNotFound, xerrors.Attributes{
		Message:   "document not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeIngestConflict, xerrors.Attributes{
		Message:   "document conflict",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeIngestCompleted, xerrors.Attributes{
		Message:   "document already ingested",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeIngestExhausted, xerrors.Attributes{
		Message:   "document retries exhausted",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeIngestValidation, xerrors.Attributes{
		Message:   "document validation failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeIngestPublish, xerrors.Attributes{
		Message:   "document publish failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeIngestProcessing, xerrors.Attributes{
		Message:   "document processing failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
}

// IsValidStatus 判断状态值是否合法。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	clone := make(map[string]any, len(metadata))
	for key, value := range metadata {
		clone[key] = value
	}
	return clone
}
