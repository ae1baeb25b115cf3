package ingest

import (
	"context"
)

// Handler 处理来自消息队列的文档 ID。
type Handler func(ctx context.Context, docID string) error

// Producer 负责向队列投递文档。
type Producer interface {
	Publish(ctx context.Context, docID string) error
	Close() error
}

// Consumer 负责从队列中消费文档。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
