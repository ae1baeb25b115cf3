package ingest

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	xerrors "OpenAssist/internal/errors"
	"OpenAssist/internal/observability/alerting"
	"OpenAssist/internal/vector"
	"OpenAssist/pkg/logger"
)

// Processor 负责从队列消费文档、切分并写入向量索引。
type Processor struct {
	index        vector.Index
	store        Store
	consumer     Consumer
	producer     Producer
	workerCount  int
	chunkSize    int
	chunkOverlap int
	logger       *slog.Logger
	alerter      alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithChunking 配置切分参数。
func WithChunking(size, overlap int) ProcessorOption {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
		if overlap >= 0 {
			p.chunkOverlap = overlap
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(index vector.Index, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		index:        index,
		store:        store,
		consumer:     consumer,
		producer:     producer,
		workerCount:  1,
		chunkSize:    defaultChunkSize,
		chunkOverlap: defaultChunkOverlap,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动文档处理循环。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置文档消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, docID string) error {
	if p.store == nil || p.index == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	doc, err := p.store.Claim(ctx, docID)
	if err != nil {
		if stdErrors.Is(err, ErrDocumentNotFound) || stdErrors.Is(err, ErrDocumentCompleted) || stdErrors.Is(err, ErrDocumentExhausted) {
			p.logDebug("跳过文档", slog.String("doc_id", docID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取文档失败", slog.Any("error", err), slog.String("doc_id", docID))
		p.emitAlert(ctx, &Document{ID: docID}, CodeIngestProcessing, err, "claim")
		return err
	}

	chunks, procErr := p.vectorize(ctx, doc)
	if procErr != nil {
		return p.handleFailure(ctx, doc, procErr)
	}

	if err := p.store.MarkSucceeded(ctx, doc.ID, chunks); err != nil {
		logger.L().Error("标记文档成功状态失败", slog.Any("error", err), slog.String("doc_id", doc.ID))
		if storeErr := p.store.MarkFailed(ctx, doc.ID, CodeIngestProcessing, err.Error(), false); storeErr != nil {
			logger.L().Error("回写失败状态出错", slog.Any("error", storeErr), slog.String("doc_id", doc.ID))
			return storeErr
		}
		if pubErr := p.producer.Publish(ctx, doc.ID); pubErr != nil {
			return xerrors.Wrap(CodeIngestPublish, pubErr, fmt.Sprintf("文档 %s 在标记成功失败后重投失败", doc.ID))
		}
		logger.Audit().Warn("文档标记成功失败后重试",
			slog.String("doc_id", doc.ID),
			slog.String("filename", doc.Filename),
			slog.String("error", err.Error()),
		)
		return nil
	}
	logger.Audit().Info("文档入库成功",
		slog.String("doc_id", doc.ID),
		slog.String("filename", doc.Filename),
		slog.Int("chunks", chunks),
	)
	return nil
}

// vectorize 将文档按页与分片切开并写入向量索引。
// 分片 ID 形如 "{filename}_p{page}_c{chunk}"，重复入库会覆盖同一批 ID。
func (p *Processor) vectorize(ctx context.Context, doc *Document) (int, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return 0, xerrors.New(CodeIngestValidation, "文档内容为空")
	}

	pages := strings.Split(doc.Content, "\f")
	var docs []vector.Document
	for pageIdx, page := range pages {
		for chunkIdx, chunk := range SplitText(page, p.chunkSize, p.chunkOverlap) {
			metadata := map[string]string{
				"filename":    doc.Filename,
				"page":        strconv.Itoa(pageIdx + 1),
				"chunk_index": strconv.Itoa(chunkIdx),
			}
			for key, value := range doc.Metadata {
				if _, reserved := metadata[key]; reserved {
					continue
				}
				metadata[key] = fmt.Sprint(value)
			}
			docs = append(docs, vector.Document{
				ID:       fmt.Sprintf("%s_p%d_c%d", doc.Filename, pageIdx+1, chunkIdx),
				Text:     chunk,
				Metadata: metadata,
			})
		}
	}
	if len(docs) == 0 {
		return 0, xerrors.New(CodeIngestValidation, "文档切分后没有有效分片")
	}
	if err := p.index.Ingest(ctx, docs); err != nil {
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入向量索引失败")
	}
	return len(docs), nil
}

func (p *Processor) handleFailure(ctx context.Context, doc *Document, procErr error) error {
	code := xerrors.CodeOf(procErr)
	if code == xerrors.CodeUnknown {
		code = CodeIngestProcessing
	}
	retryable := xerrors.RetryableError(procErr)
	terminal := doc.Attempts >= doc.MaxRetries || !retryable

	if storeErr := p.store.MarkFailed(ctx, doc.ID, code, procErr.Error(), terminal); storeErr != nil {
		logger.L().Error("标记文档失败状态出错", slog.Any("error", storeErr), slog.String("doc_id", doc.ID))
		return storeErr
	}
	logger.Audit().Warn("文档入库失败",
		slog.String("doc_id", doc.ID),
		slog.String("filename", doc.Filename),
		slog.Bool("terminal", terminal),
		slog.String("error", procErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", doc.Attempts),
		slog.Int("max_retries", doc.MaxRetries),
	)

	stage := "retry"
	if terminal {
		stage = "terminal"
	} else if !retryable {
		stage = "non_retryable"
	}
	p.emitAlert(ctx, doc, code, procErr, stage)

	if retryable && !terminal {
		if pubErr := p.producer.Publish(ctx, doc.ID); pubErr != nil {
			return xerrors.Wrap(CodeIngestPublish, pubErr, fmt.Sprintf("文档 %s 重投失败", doc.ID))
		}
		p.logDebug("文档已重新排队", slog.String("doc_id", doc.ID), slog.Int("attempts", doc.Attempts))
	}
	return nil
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		p.logger.Debug(msg, args...)
	}
}

func (p *Processor) emitAlert(ctx context.Context, doc *Document, code xerrors.Code, cause error, stage string) {
	if p == nil || p.alerter == nil || doc == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	metadata := map[string]string{
		"stage": stage,
	}
	if cause != nil {
		metadata["cause"] = cause.Error()
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		DocID:      doc.ID,
		Filename:   doc.Filename,
		Attempts:   doc.Attempts,
		MaxRetries: doc.MaxRetries,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("doc_id", doc.ID),
			slog.String("stage", stage),
		)
	}
}
