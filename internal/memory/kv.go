package memory

import (
	"context"
	"time"
)

// KV 抽象了按 (owner, namespace, key) 维度隔离的键值持久化。
// SessionMemory 把 owner 填成 "user_id:session_id"、namespace 固定为
// "session"，不同 (owner, namespace) 天然互不影响，实现方不得依赖
// 任何跨命名空间的锁。
type KV interface {
	// Write 追加一条记录。ttl 为 0 表示永不过期。
	Write(ctx context.Context, owner, namespace, key, value string, ttl time.Duration) error
	// Read 返回指定 key 的最新存活值，不存在时第二个返回值为 false。
	Read(ctx context.Context, owner, namespace, key string) (string, bool, error)
	// Delete 删除指定 key 的全部记录。
	Delete(ctx context.Context, owner, namespace, key string) error
	// ClearNamespace 清空一个命名空间下的所有 key。
	ClearNamespace(ctx context.Context, owner, namespace string) error
	// ListNamespaces 返回 owner 当前存在数据的命名空间列表。
	ListNamespaces(ctx context.Context, owner string) ([]string, error)
	// Close 释放底层资源。
	Close() error
}
