package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Config 描述 Redis 连接参数。
type Config struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix 允许多个实例共用同一个 Redis。
	KeyPrefix string
}

// KVStore 使用 Redis 哈希结构存储会话键值,依赖 Redis 自身的
// 键过期能力实现 TTL。
type KVStore struct {
	client *goredis.Client
	prefix string
}

// NewKVStore 建立连接并验证可达性。
func NewKVStore(ctx context.Context, cfg Config) (*KVStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("Redis 地址不能为空")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("无法连接到 Redis: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "openassist"
	}
	return &KVStore{client: client, prefix: prefix}, nil
}

func (s *KVStore) entryKey(owner, namespace, key string) string {
	return fmt.Sprintf("%s:kv:%s:%s:%s", s.prefix, owner, namespace, key)
}

func (s *KVStore) namespaceSet(owner string) string {
	return fmt.Sprintf("%s:kvns:%s", s.prefix, owner)
}

// Write 写入或覆盖键,ttl<=0 表示永不过期。
func (s *KVStore) Write(ctx context.Context, owner, namespace, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.entryKey(owner, namespace, key), value, ttl)
	pipe.SAdd(ctx, s.namespaceSet(owner), namespace)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("写入 Redis 失败: %w", err)
	}
	return nil
}

// Read 读取键值,键不存在时第二个返回值为 false。
func (s *KVStore) Read(ctx context.Context, owner, namespace, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.entryKey(owner, namespace, key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("读取 Redis 失败: %w", err)
	}
	return value, true, nil
}

// Delete 删除键,键不存在时静默返回。
func (s *KVStore) Delete(ctx context.Context, owner, namespace, key string) error {
	if err := s.client.Del(ctx, s.entryKey(owner, namespace, key)).Err(); err != nil {
		return fmt.Errorf("删除 Redis 键失败: %w", err)
	}
	return nil
}

// ClearNamespace 扫描并删除某个归属方在命名空间下的全部键。
func (s *KVStore) ClearNamespace(ctx context.Context, owner, namespace string) error {
	pattern := s.entryKey(owner, namespace, "*")
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("删除 Redis 键失败: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("扫描 Redis 键失败: %w", err)
	}
	if err := s.client.SRem(ctx, s.namespaceSet(owner), namespace).Err(); err != nil {
		return fmt.Errorf("更新命名空间集合失败: %w", err)
	}
	return nil
}

// ListNamespaces 列出某个归属方登记过的命名空间。
func (s *KVStore) ListNamespaces(ctx context.Context, owner string) ([]string, error) {
	namespaces, err := s.client.SMembers(ctx, s.namespaceSet(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("查询命名空间失败: %w", err)
	}
	return namespaces, nil
}

// Close 关闭 Redis 连接。
func (s *KVStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
