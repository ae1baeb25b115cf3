package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string
	Queue      string
	Prefetch   int
	Durable    bool
	AutoDelete bool
}

// RabbitMQQueue 使用 RabbitMQ 承载文档摄取消息。消息体只携带文档 ID，
// 正文与重试状态都由文档存储负责，队列仅做投递。
type RabbitMQQueue struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	queue   string
	durable bool
}

// NewRabbitMQQueue 建立连接、声明队列并返回可用的实例。
func NewRabbitMQQueue(cfg RabbitMQConfig) (*RabbitMQQueue, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	if cfg.Queue == "" {
		cfg.Queue = "openassist.ingest"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	q := &RabbitMQQueue{conn: conn, queue: cfg.Queue, durable: cfg.Durable}
	if err := q.setup(cfg); err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

func (q *RabbitMQQueue) setup(cfg RabbitMQConfig) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			ch.Close()
			return fmt.Errorf("设置 RabbitMQ QOS 失败: %w", err)
		}
	}
	if _, err := ch.QueueDeclare(cfg.Queue, cfg.Durable, cfg.AutoDelete, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
	}
	q.ch = ch
	return nil
}

// Publish 投递文档 ID。队列声明为持久化时消息同样落盘，
// 避免 broker 重启丢失待处理的文档。
func (q *RabbitMQQueue) Publish(ctx context.Context, docID string) error {
	if q == nil || q.ch == nil {
		return errors.New("RabbitMQ 队列未初始化")
	}
	msg := amqp.Publishing{
		ContentType: "text/plain",
		MessageId:   docID,
		Body:        []byte(docID),
	}
	if q.durable {
		msg.DeliveryMode = amqp.Persistent
	}
	return q.ch.PublishWithContext(ctx, "", q.queue, false, false, msg)
}

// Consume 启动 workerCount 个消费者处理队列消息。处理失败的文档由
// 处理器按存储中的重试计数重投，因此无论成败这里都直接确认，
// 不依赖 broker 的 redelivery。
func (q *RabbitMQQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if q == nil || q.ch == nil {
		return errors.New("RabbitMQ 队列未初始化")
	}
	if workerCount <= 0 {
		workerCount = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		tag := fmt.Sprintf("openassist-ingest-%d", i)
		msgs, err := q.ch.Consume(q.queue, tag, false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("订阅 RabbitMQ 队列失败: %w", err)
		}
		wg.Add(1)
		go func(deliveries <-chan amqp.Delivery) {
			defer wg.Done()
			q.runWorker(ctx, deliveries, handler)
		}(msgs)
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (q *RabbitMQQueue) runWorker(ctx context.Context, deliveries <-chan amqp.Delivery, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-deliveries:
			if !ok {
				return
			}
			_ = handler(ctx, string(msg.Body))
			_ = msg.Ack(false)
		}
	}
}

// Close 依次关闭 channel 与连接。
func (q *RabbitMQQueue) Close() error {
	if q == nil {
		return nil
	}
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
