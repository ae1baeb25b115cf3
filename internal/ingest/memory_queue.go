package ingest

import (
	"context"
	"errors"
	"sync"
)

// MemoryQueue 是进程内的文档队列，底层是一个带缓冲的 channel，
// 用于测试与单机部署。
type MemoryQueue struct {
	ch        chan string
	closeOnce sync.Once
	done      chan struct{}
}

// NewMemoryQueue 创建缓冲大小为 size 的内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{
		ch:   make(chan string, size),
		done: make(chan struct{}),
	}
}

// Publish 将文档 ID 入队，队列已满时阻塞直到有空位或 ctx 取消。
func (q *MemoryQueue) Publish(ctx context.Context, docID string) error {
	select {
	case <-q.done:
		return errors.New("队列已关闭")
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return errors.New("队列已关闭")
	case q.ch <- docID:
		return nil
	}
}

// Consume 启动 workerCount 个工作协程，阻塞直到 ctx 取消。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			q.runWorker(ctx, handler)
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (q *MemoryQueue) runWorker(ctx context.Context, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			return
		case docID := <-q.ch:
			_ = handler(ctx, docID)
		}
	}
}

// Close 标记队列关闭，正在消费的协程会在处理完当前文档后退出。
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
