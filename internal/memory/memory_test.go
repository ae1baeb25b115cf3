package memory

import (
	"context"
	"strings"
	"testing"

	"OpenAssist/internal/llm"
	"OpenAssist/internal/vector"
)

func TestShortTermMemoryEviction(t *testing.T) {
	mem := NewShortTermMemory(3)
	mem.Add(llm.RoleUser, "one")
	mem.Add(llm.RoleAssistant, "two")
	mem.Add(llm.RoleUser, "three")
	mem.Add(llm.RoleAssistant, "four")

	got := mem.Context()
	if len(got) != 3 {
		t.Fatalf("期望保留 3 条,实际 %d", len(got))
	}
	if got[0].Content != "two" || got[2].Content != "four" {
		t.Fatalf("淘汰顺序错误: %+v", got)
	}
}

func TestShortTermMemoryContextIsCopy(t *testing.T) {
	mem := NewShortTermMemory(5)
	mem.Add(llm.RoleUser, "hello")
	snapshot := mem.Context()
	snapshot[0].Content = "mutated"
	if mem.Context()[0].Content != "hello" {
		t.Fatal("Context 返回值不应共享内部缓冲")
	}
}

func TestLongTermStoreAndRecall(t *testing.T) {
	idx := vector.NewMemoryIndex()
	mem := NewLongTermMemory(idx, WithRecallCutoff(0))

	msgs := []llm.Message{
		llm.User("我喜欢在新加坡喝咖啡"),
		llm.Assistant("新加坡有很多不错的咖啡馆"),
	}
	if err := mem.StoreConversation(context.Background(), "u1", "s1", msgs, 0); err != nil {
		t.Fatalf("StoreConversation: %v", err)
	}

	results, err := mem.Search(context.Background(), "u1", "s1", "新加坡 咖啡")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("期望检索到历史对话")
	}

	// 其他会话不可见。
	other, err := mem.Search(context.Background(), "u1", "s2", "新加坡 咖啡")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("跨会话不应检索到结果: %+v", other)
	}
}

func TestLongTermStoreIdempotent(t *testing.T) {
	idx := vector.NewMemoryIndex()
	mem := NewLongTermMemory(idx)

	msgs := []llm.Message{llm.User("hello"), llm.Assistant("hi")}
	for i := 0; i < 3; i++ {
		if err := mem.StoreConversation(context.Background(), "u1", "s1", msgs, 0); err != nil {
			t.Fatalf("StoreConversation: %v", err)
		}
	}
	if idx.Len() != 2 {
		t.Fatalf("重复转发应覆盖同一文档,期望 2 条,实际 %d", idx.Len())
	}
}

func TestMergeContextOrder(t *testing.T) {
	short := []llm.Message{llm.User("q1"), llm.Assistant("a1")}
	recall := []vector.Result{{Chunk: "old fact"}, {Chunk: "older fact"}}

	merged := MergeContext(short, recall)
	if len(merged) != 3 {
		t.Fatalf("期望 3 条,实际 %d", len(merged))
	}
	if merged[0].Content != "q1" || merged[1].Content != "a1" {
		t.Fatal("短期记忆应在前且保持原顺序")
	}
	last := merged[2]
	if last.Role != llm.RoleSystem {
		t.Fatalf("召回应压成 system 消息,实际 %s", last.Role)
	}
	if !strings.Contains(last.Content, "old fact") || !strings.Contains(last.Content, "older fact") {
		t.Fatalf("召回内容缺失: %s", last.Content)
	}
}

func TestMergeContextNoRecall(t *testing.T) {
	short := []llm.Message{llm.User("q1")}
	merged := MergeContext(short, nil)
	if len(merged) != 1 {
		t.Fatalf("无召回时不应追加消息: %+v", merged)
	}
}
