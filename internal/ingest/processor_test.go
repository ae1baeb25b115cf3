package ingest

import (
	"context"
	stdErrors "errors"
	"testing"

	"OpenAssist/internal/observability/alerting"
	"OpenAssist/internal/vector"
)

type failingIndex struct {
	err error
}

func (f *failingIndex) Ingest(context.Context, []vector.Document) error { return f.err }

func (f *failingIndex) Query(context.Context, string, int, map[string]string) ([]vector.Result, error) {
	return nil, f.err
}

type capturingDispatcher struct {
	events []alerting.Event
}

func (d *capturingDispatcher) Notify(_ context.Context, event alerting.Event) error {
	d.events = append(d.events, event)
	return nil
}

func newTestProcessor(index vector.Index, store Store, producer Producer, opts ...ProcessorOption) *Processor {
	queue := NewMemoryQueue(8)
	return NewProcessor(index, store, queue, producer, opts...)
}

func TestProcessorIngestsDocument(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	index := vector.NewMemoryIndex()
	producer := &recordingProducer{}
	proc := newTestProcessor(index, store, producer, WithChunking(50, 10))

	doc := &Document{
		ID:         "doc-ok",
		Filename:   "guide.txt",
		Content:    "first page about onboarding\fsecond page about benefits",
		Status:     StatusPending,
		MaxRetries: 3,
	}
	if err := store.Create(ctx, doc); err != nil {
		t.Fatalf("Create 失败: %v", err)
	}

	if err := proc.handle(ctx, "doc-ok"); err != nil {
		t.Fatalf("handle 失败: %v", err)
	}

	stored, err := store.Get(ctx, "doc-ok")
	if err != nil {
		t.Fatalf("Get 失败: %v", err)
	}
	if stored.Status != StatusSucceeded {
		t.Fatalf("期望 succeeded, 得到 %s", stored.Status)
	}
	if stored.Chunks != index.Len() || stored.Chunks == 0 {
		t.Fatalf("分片数量不符: chunks=%d index=%d", stored.Chunks, index.Len())
	}

	// 第二页的分片按 page 元数据可检索。
	results, err := index.Query(ctx, "benefits", 5, map[string]string{"filename": "guide.txt", "page": "2"})
	if err != nil {
		t.Fatalf("Query 失败: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("期望命中第二页分片")
	}
	if results[0].DocID != "guide.txt_p2_c0" {
		t.Fatalf("分片 ID 不符: %s", results[0].DocID)
	}
}

func TestProcessorRetryableFailureRequeues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	producer := &recordingProducer{}
	proc := newTestProcessor(&failingIndex{err: stdErrors.New("index offline")}, store, producer)

	doc := &Document{ID: "doc-retry", Filename: "a.txt", Content: "alpha beta", Status: StatusPending, MaxRetries: 3}
	if err := store.Create(ctx, doc); err != nil {
		t.Fatalf("Create 失败: %v", err)
	}

	if err := proc.handle(ctx, "doc-retry"); err != nil {
		t.Fatalf("handle 不应返回错误: %v", err)
	}
	stored, _ := store.Get(ctx, "doc-retry")
	if stored.Status != StatusPending {
		t.Fatalf("可重试失败应回到 pending, 得到 %s", stored.Status)
	}
	if len(producer.published) != 1 || producer.published[0] != "doc-retry" {
		t.Fatalf("期望重新入队一次, 得到 %v", producer.published)
	}
}

func TestProcessorValidationFailureIsTerminal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	producer := &recordingProducer{}
	dispatcher := &capturingDispatcher{}
	proc := newTestProcessor(vector.NewMemoryIndex(), store, producer, WithAlertDispatcher(dispatcher))

	doc := &Document{ID: "doc-empty", Filename: "a.txt", Content: "   ", Status: StatusPending, MaxRetries: 3}
	if err := store.Create(ctx, doc); err != nil {
		t.Fatalf("Create 失败: %v", err)
	}

	if err := proc.handle(ctx, "doc-empty"); err != nil {
		t.Fatalf("handle 不应返回错误: %v", err)
	}
	stored, _ := store.Get(ctx, "doc-empty")
	if stored.Status != StatusFailed {
		t.Fatalf("校验失败应进入终态, 得到 %s", stored.Status)
	}
	if stored.ErrorCode != string(CodeIngestValidation) {
		t.Fatalf("错误码不符: %s", stored.ErrorCode)
	}
	if len(producer.published) != 0 {
		t.Fatalf("终态失败不应重新入队: %v", producer.published)
	}
	if len(dispatcher.events) != 1 || dispatcher.events[0].DocID != "doc-empty" {
		t.Fatalf("期望一次告警事件, 得到 %+v", dispatcher.events)
	}
}

func TestProcessorRetriesUntilExhausted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	producer := &recordingProducer{}
	proc := newTestProcessor(&failingIndex{err: stdErrors.New("index offline")}, store, producer)

	doc := &Document{ID: "doc-exhaust", Filename: "a.txt", Content: "alpha", Status: StatusPending, MaxRetries: 2}
	if err := store.Create(ctx, doc); err != nil {
		t.Fatalf("Create 失败: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := proc.handle(ctx, "doc-exhaust"); err != nil {
			t.Fatalf("handle 第 %d 次失败: %v", i+1, err)
		}
	}
	stored, _ := store.Get(ctx, "doc-exhaust")
	if stored.Status != StatusFailed {
		t.Fatalf("重试耗尽后应失败, 得到 %s", stored.Status)
	}
	if stored.Attempts != 2 {
		t.Fatalf("期望 2 次尝试, 得到 %d", stored.Attempts)
	}
}

func TestProcessorSkipsCompletedDocument(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	producer := &recordingProducer{}
	index := vector.NewMemoryIndex()
	proc := newTestProcessor(index, store, producer)

	doc := &Document{ID: "doc-done", Filename: "a.txt", Content: "alpha", Status: StatusPending, MaxRetries: 3}
	if err := store.Create(ctx, doc); err != nil {
		t.Fatalf("Create 失败: %v", err)
	}
	if _, err := store.Claim(ctx, "doc-done"); err != nil {
		t.Fatalf("Claim 失败: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "doc-done", 1); err != nil {
		t.Fatalf("MarkSucceeded 失败: %v", err)
	}

	if err := proc.handle(ctx, "doc-done"); err != nil {
		t.Fatalf("已完成文档应被跳过: %v", err)
	}
	if index.Len() != 0 {
		t.Fatalf("已完成文档不应再次入库, index=%d", index.Len())
	}
}
