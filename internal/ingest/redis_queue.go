package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueueConfig 描述 Redis 队列的连接参数。
type RedisQueueConfig struct {
	Address   string
	Password  string
	DB        int
	Queue     string
	BlockWait time.Duration
}

// RedisQueue 基于 Redis list 实现文档队列。消费时通过 BLMOVE 把
// 文档 ID 搬到 processing 列表，处理完成后再删除，消费者崩溃时
// 残留的条目可以在下次启动时回收，保证至少一次投递。
type RedisQueue struct {
	client     *redis.Client
	queue      string
	processing string
	wait       time.Duration
}

// NewRedisQueue 创建 Redis 队列实例。
func NewRedisQueue(cfg RedisQueueConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "openassist:ingest"
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisQueue{
		client:     client,
		queue:      queue,
		processing: queue + ":processing",
		wait:       wait,
	}, nil
}

// Publish 将文档 ID 写入队列头部。
func (q *RedisQueue) Publish(ctx context.Context, docID string) error {
	if err := q.client.LPush(ctx, q.queue, docID).Err(); err != nil {
		return fmt.Errorf("Redis 发布文档失败: %w", err)
	}
	return nil
}

// Consume 启动 workerCount 个消费协程。启动前先回收上次遗留在
// processing 列表中的条目。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	if err := q.requeueStale(ctx); err != nil {
		return err
	}
	errCh := make(chan error, workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			errCh <- q.consumeLoop(ctx, handler)
		}()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (q *RedisQueue) consumeLoop(ctx context.Context, handler Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		docID, err := q.client.BLMove(ctx, q.queue, q.processing, "RIGHT", "LEFT", q.wait).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return err
			}
			if err == redis.Nil {
				continue
			}
			return fmt.Errorf("Redis 取文档失败: %w", err)
		}
		// 失败重投由处理器依据存储中的重试计数决定，这里只清理凭据。
		_ = handler(ctx, docID)
		_ = q.client.LRem(ctx, q.processing, 1, docID).Err()
	}
}

// requeueStale 把 processing 列表中残留的 ID 放回主队列。
func (q *RedisQueue) requeueStale(ctx context.Context) error {
	stale, err := q.client.LRange(ctx, q.processing, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("Redis 读取残留文档失败: %w", err)
	}
	for _, docID := range stale {
		if err := q.client.RPush(ctx, q.queue, docID).Err(); err != nil {
			return fmt.Errorf("Redis 回收文档 %s 失败: %w", docID, err)
		}
	}
	if len(stale) > 0 {
		if err := q.client.Del(ctx, q.processing).Err(); err != nil {
			return fmt.Errorf("Redis 清理 processing 列表失败: %w", err)
		}
	}
	return nil
}

// Close 关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}
