package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// kvOp 是内存驱动落盘日志中的一条操作记录。
type kvOp struct {
	Op        string `json:"op"` // set / del / clear
	Owner     string `json:"owner"`
	Namespace string `json:"namespace"`
	Key       string `json:"key,omitempty"`
	Value     string `json:"value,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

type kvEntry struct {
	value     string
	expiresAt int64
}

func kvScope(owner, namespace string) string {
	return owner + "\x00" + namespace
}

// MemoryKVStore 使用本地 JSON 日志模拟 MySQL 的效果，方便迭代开发。
type MemoryKVStore struct {
	mu       sync.RWMutex
	dataFile string
	entries  map[string]map[string]kvEntry
}

// NewMemoryKVStore 创建一个文件持久化的键值存储。
func NewMemoryKVStore(dataDir string) (*MemoryKVStore, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	store := &MemoryKVStore{
		dataFile: filepath.Join(dataDir, "sessions.log"),
		entries:  make(map[string]map[string]kvEntry),
	}
	if err := store.loadFromDisk(); err != nil {
		return nil, err
	}
	return store, nil
}

// Write 写入或覆盖键，ttl<=0 表示永不过期。
func (m *MemoryKVStore) Write(_ context.Context, owner, namespace, key, value string, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).Unix()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	scope := kvScope(owner, namespace)
	if m.entries[scope] == nil {
		m.entries[scope] = make(map[string]kvEntry)
	}
	m.entries[scope][key] = kvEntry{value: value, expiresAt: expiresAt}
	return m.appendOp(kvOp{Op: "set", Owner: owner, Namespace: namespace, Key: key, Value: value, ExpiresAt: expiresAt})
}

// Read 读取键值，过期或不存在时第二个返回值为 false。
func (m *MemoryKVStore) Read(_ context.Context, owner, namespace, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[kvScope(owner, namespace)][key]
	if !ok {
		return "", false, nil
	}
	if entry.expiresAt > 0 && entry.expiresAt <= time.Now().Unix() {
		return "", false, nil
	}
	return entry.value, true, nil
}

// Delete 删除键，键不存在时静默返回。
func (m *MemoryKVStore) Delete(_ context.Context, owner, namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	scope := kvScope(owner, namespace)
	if _, ok := m.entries[scope][key]; !ok {
		return nil
	}
	delete(m.entries[scope], key)
	return m.appendOp(kvOp{Op: "del", Owner: owner, Namespace: namespace, Key: key})
}

// ClearNamespace 清空某个归属方在命名空间下的全部键。
func (m *MemoryKVStore) ClearNamespace(_ context.Context, owner, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, kvScope(owner, namespace))
	return m.appendOp(kvOp{Op: "clear", Owner: owner, Namespace: namespace})
}

// ListNamespaces 列出某个归属方存在键的命名空间。
func (m *MemoryKVStore) ListNamespaces(_ context.Context, owner string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := owner + "\x00"
	var namespaces []string
	for scope, keys := range m.entries {
		if len(keys) == 0 {
			continue
		}
		if len(scope) > len(prefix) && scope[:len(prefix)] == prefix {
			namespaces = append(namespaces, scope[len(prefix):])
		}
	}
	return namespaces, nil
}

// Close 对内存驱动而言无事可做。
func (m *MemoryKVStore) Close() error { return nil }

func (m *MemoryKVStore) appendOp(op kvOp) error {
	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开会话日志失败: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("序列化会话记录失败: %w", err)
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入会话日志失败: %w", err)
	}
	return nil
}

func (m *MemoryKVStore) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取会话日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var op kvOp
		if err := json.Unmarshal(scanner.Bytes(), &op); err != nil {
			continue
		}
		scope := kvScope(op.Owner, op.Namespace)
		switch op.Op {
		case "set":
			if m.entries[scope] == nil {
				m.entries[scope] = make(map[string]kvEntry)
			}
			m.entries[scope][op.Key] = kvEntry{value: op.Value, expiresAt: op.ExpiresAt}
		case "del":
			delete(m.entries[scope], op.Key)
		case "clear":
			delete(m.entries, scope)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析会话日志失败: %w", err)
	}
	return nil
}

// SQLKVStore 使用真实的 MySQL 数据库存储会话键值。
type SQLKVStore struct {
	db *sql.DB
}

// NewSQLKVStore 创建连接池并执行迁移。
func NewSQLKVStore(ctx context.Context, cfg Config) (*SQLKVStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLKVStore{db: db}, nil
}

// Write 写入或覆盖键。
func (s *SQLKVStore) Write(ctx context.Context, owner, namespace, key, value string, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).Unix()
	}
	const stmt = `INSERT INTO kv_entries (owner, namespace, entry_key, entry_value, expires_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE entry_value = VALUES(entry_value), expires_at = VALUES(expires_at), updated_at = VALUES(updated_at)`
	if _, err := s.db.ExecContext(ctx, stmt, owner, namespace, key, value, expiresAt, time.Now().Unix()); err != nil {
		return fmt.Errorf("写入 MySQL 失败: %w", err)
	}
	return nil
}

// Read 读取键值，过期的键视同不存在。
func (s *SQLKVStore) Read(ctx context.Context, owner, namespace, key string) (string, bool, error) {
	const query = `SELECT entry_value, expires_at FROM kv_entries
WHERE owner = ? AND namespace = ? AND entry_key = ?`
	var value string
	var expiresAt int64
	err := s.db.QueryRowContext(ctx, query, owner, namespace, key).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("查询键值失败: %w", err)
	}
	if expiresAt > 0 && expiresAt <= time.Now().Unix() {
		return "", false, nil
	}
	return value, true, nil
}

// Delete 删除键。
func (s *SQLKVStore) Delete(ctx context.Context, owner, namespace, key string) error {
	const stmt = `DELETE FROM kv_entries WHERE owner = ? AND namespace = ? AND entry_key = ?`
	if _, err := s.db.ExecContext(ctx, stmt, owner, namespace, key); err != nil {
		return fmt.Errorf("删除键值失败: %w", err)
	}
	return nil
}

// ClearNamespace 删除某个归属方在命名空间下的全部键。
func (s *SQLKVStore) ClearNamespace(ctx context.Context, owner, namespace string) error {
	const stmt = `DELETE FROM kv_entries WHERE owner = ? AND namespace = ?`
	if _, err := s.db.ExecContext(ctx, stmt, owner, namespace); err != nil {
		return fmt.Errorf("清空命名空间失败: %w", err)
	}
	return nil
}

// ListNamespaces 列出某个归属方存在键的命名空间。
func (s *SQLKVStore) ListNamespaces(ctx context.Context, owner string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT namespace FROM kv_entries WHERE owner = ?`, owner)
	if err != nil {
		return nil, fmt.Errorf("查询命名空间失败: %w", err)
	}
	defer rows.Close()

	var namespaces []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, fmt.Errorf("解析命名空间失败: %w", err)
		}
		namespaces = append(namespaces, ns)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历命名空间失败: %w", err)
	}
	return namespaces, nil
}

// Close 关闭底层数据库连接。
func (s *SQLKVStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
