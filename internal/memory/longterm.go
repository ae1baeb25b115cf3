package memory

import (
	"context"
	"fmt"
	"strings"

	xerrors "OpenAssist/internal/errors"
	"OpenAssist/internal/llm"
	"OpenAssist/internal/vector"
)

// 长期记忆检索的默认参数。
const (
	defaultRecallTopK    = 3
	defaultRecallCutoff  = 0.65
	metaKeyUser          = "user_id"
	metaKeySession       = "session_id"
	metaKeyRole          = "role"
	longtermSourceMemory = "conversation"
)

// LongTermMemory 把对话轮落入向量索引,并按 (用户, 会话) 过滤检索。
// 文档 ID 由消息在会话历史中的绝对下标决定,重复转发同一轮会覆盖
// 同一文档而不是追加,配合调用方维护的游标实现恰好一次落库。
type LongTermMemory struct {
	index  vector.Index
	topK   int
	cutoff float64
}

// LongTermOption 配置长期记忆。
type LongTermOption func(*LongTermMemory)

// WithRecallTopK 设置检索条数上限。
func WithRecallTopK(k int) LongTermOption {
	return func(m *LongTermMemory) {
		if k > 0 {
			m.topK = k
		}
	}
}

// WithRecallCutoff 设置相关度下限,低于该值的结果被丢弃。
func WithRecallCutoff(c float64) LongTermOption {
	return func(m *LongTermMemory) { m.cutoff = c }
}

// NewLongTermMemory 创建长期记忆。
func NewLongTermMemory(index vector.Index, opts ...LongTermOption) *LongTermMemory {
	m := &LongTermMemory{index: index, topK: defaultRecallTopK, cutoff: defaultRecallCutoff}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StoreConversation 把 msgs 转发到向量索引。startIndex 是 msgs[0]
// 在完整会话历史中的绝对下标,用于生成稳定的文档 ID。
func (m *LongTermMemory) StoreConversation(ctx context.Context, userID, sessionID string, msgs []llm.Message, startIndex int) error {
	if len(msgs) == 0 {
		return nil
	}
	docs := make([]vector.Document, 0, len(msgs))
	for i, msg := range msgs {
		text := strings.TrimSpace(msg.Content)
		if text == "" {
			continue
		}
		docs = append(docs, vector.Document{
			ID:   fmt.Sprintf("%s_%s_%d", userID, sessionID, startIndex+i),
			Text: text,
			Metadata: map[string]string{
				metaKeyUser:    userID,
				metaKeySession: sessionID,
				metaKeyRole:    msg.Role,
				"source":       longtermSourceMemory,
			},
		})
	}
	if len(docs) == 0 {
		return nil
	}
	if err := m.index.Ingest(ctx, docs); err != nil {
		return xerrors.Wrap(xerrors.CodeMemoryFailure, err, "写入长期记忆失败")
	}
	return nil
}

// Search 在当前用户与会话范围内检索相关历史,按相关度降序返回,
// 丢弃低于下限的结果。
func (m *LongTermMemory) Search(ctx context.Context, userID, sessionID, query string) ([]vector.Result, error) {
	results, err := m.index.Query(ctx, query, m.topK, map[string]string{
		metaKeyUser:    userID,
		metaKeySession: sessionID,
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeMemoryFailure, err, "检索长期记忆失败")
	}
	filtered := results[:0]
	for _, r := range results {
		if r.Score >= m.cutoff {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// MergeContext 合并短期与长期上下文:短期消息在前保持原顺序,
// 长期召回压成末尾单条 system 消息;召回为空时原样返回短期。
func MergeContext(short []llm.Message, recall []vector.Result) []llm.Message {
	merged := make([]llm.Message, len(short))
	copy(merged, short)
	if len(recall) == 0 {
		return merged
	}
	var b strings.Builder
	b.WriteString("相关历史记忆:\n")
	for _, r := range recall {
		b.WriteString("- ")
		b.WriteString(r.Chunk)
		b.WriteString("\n")
	}
	return append(merged, llm.System(strings.TrimRight(b.String(), "\n")))
}
