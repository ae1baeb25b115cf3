package memory

import (
	"sync"

	"OpenAssist/internal/llm"
)

// defaultShortTermLimit 是短期记忆默认保留的对话轮数。
const defaultShortTermLimit = 5

// ShortTermMemory 是保存最近若干轮对话的进程内环形缓冲，
// 超出容量时淘汰最旧的一条，进程重启即丢失。
type ShortTermMemory struct {
	mu    sync.Mutex
	buf   []llm.Message
	limit int
}

// NewShortTermMemory 创建短期记忆，limit 不合法时使用默认容量。
func NewShortTermMemory(limit int) *ShortTermMemory {
	if limit <= 0 {
		limit = defaultShortTermLimit
	}
	return &ShortTermMemory{limit: limit}
}

// Add 追加一轮消息，必要时淘汰最旧的一条。
func (s *ShortTermMemory) Add(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, llm.Message{Role: role, Content: content})
	if len(s.buf) > s.limit {
		s.buf = s.buf[1:]
	}
}

// Context 返回当前缓冲的副本，顺序从旧到新。
func (s *ShortTermMemory) Context() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.buf))
	copy(out, s.buf)
	return out
}

// Clear 清空缓冲。
func (s *ShortTermMemory) Clear() {
	s.mu.Lock()
	s.buf = nil
	s.mu.Unlock()
}
