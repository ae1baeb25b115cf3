package memory

import (
	"context"
	"time"

	xerrors "OpenAssist/internal/errors"
)

// 会话存储中约定的保留键。
const (
	// KeyContext 保存会话级上下文(最近意图、步骤、对话历史、长期记忆游标)。
	KeyContext = "context"
	// KeyPendingContext 保存待澄清状态,存在即表示会话处于澄清挂起中。
	KeyPendingContext = "pending_context"
)

// sessionNamespace 是会话级键值所在的命名空间。
const sessionNamespace = "session"

// SessionMemory 是面向会话状态的键值封装,按 (用户, 会话) 隔离,
// 值一律是调用方序列化好的 JSON 字符串。
type SessionMemory struct {
	store KV
	ttl   time.Duration
}

// NewSessionMemory 创建会话记忆,ttl<=0 表示键不过期。
func NewSessionMemory(store KV, ttl time.Duration) *SessionMemory {
	return &SessionMemory{store: store, ttl: ttl}
}

func sessionUser(userID, sessionID string) string {
	return userID + ":" + sessionID
}

// Write 写入会话键。value 为 nil 表示删除该键。
func (m *SessionMemory) Write(ctx context.Context, userID, sessionID, key string, value *string) error {
	if key == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "会话键不能为空")
	}
	owner := sessionUser(userID, sessionID)
	if value == nil {
		if err := m.store.Delete(ctx, owner, sessionNamespace, key); err != nil {
			return xerrors.Wrap(xerrors.CodeMemoryFailure, err, "删除会话键失败")
		}
		return nil
	}
	if err := m.store.Write(ctx, owner, sessionNamespace, key, *value, m.ttl); err != nil {
		return xerrors.Wrap(xerrors.CodeMemoryFailure, err, "写入会话键失败")
	}
	return nil
}

// Read 读取会话键,第二个返回值表示键是否存在。
func (m *SessionMemory) Read(ctx context.Context, userID, sessionID, key string) (string, bool, error) {
	val, ok, err := m.store.Read(ctx, sessionUser(userID, sessionID), sessionNamespace, key)
	if err != nil {
		return "", false, xerrors.Wrap(xerrors.CodeMemoryFailure, err, "读取会话键失败")
	}
	return val, ok, nil
}

// Delete 删除会话键,键不存在时不视为错误。
func (m *SessionMemory) Delete(ctx context.Context, userID, sessionID, key string) error {
	if err := m.store.Delete(ctx, sessionUser(userID, sessionID), sessionNamespace, key); err != nil {
		return xerrors.Wrap(xerrors.CodeMemoryFailure, err, "删除会话键失败")
	}
	return nil
}

// Clear 清空某个会话的全部键。
func (m *SessionMemory) Clear(ctx context.Context, userID, sessionID string) error {
	if err := m.store.ClearNamespace(ctx, sessionUser(userID, sessionID), sessionNamespace); err != nil {
		return xerrors.Wrap(xerrors.CodeMemoryFailure, err, "清空会话失败")
	}
	return nil
}
