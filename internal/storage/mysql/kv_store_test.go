package mysql

import (
	"context"
	"testing"
	"time"
)

func TestMemoryKVStoreWriteRead(t *testing.T) {
	store, err := NewMemoryKVStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewMemoryKVStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Write(ctx, "u1:s1", "session", "context", `{"a":1}`, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, ok, err := store.Read(ctx, "u1:s1", "session", "context")
	if err != nil || !ok {
		t.Fatalf("Read: ok=%v err=%v", ok, err)
	}
	if got != `{"a":1}` {
		t.Fatalf("读取内容不符: %s", got)
	}

	// 不同归属方互相隔离。
	if _, ok, _ := store.Read(ctx, "u2:s1", "session", "context"); ok {
		t.Fatal("跨归属方不应读到数据")
	}
}

func TestMemoryKVStoreDeleteAndClear(t *testing.T) {
	store, err := NewMemoryKVStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewMemoryKVStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Delete(ctx, "u1", "session", "missing"); err != nil {
		t.Fatalf("删除不存在的键不应报错: %v", err)
	}

	store.Write(ctx, "u1", "session", "a", "1", 0)
	store.Write(ctx, "u1", "session", "b", "2", 0)
	if err := store.Delete(ctx, "u1", "session", "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Read(ctx, "u1", "session", "a"); ok {
		t.Fatal("删除后仍能读到键")
	}
	if err := store.ClearNamespace(ctx, "u1", "session"); err != nil {
		t.Fatalf("ClearNamespace: %v", err)
	}
	if _, ok, _ := store.Read(ctx, "u1", "session", "b"); ok {
		t.Fatal("清空后仍能读到键")
	}
}

func TestMemoryKVStoreTTL(t *testing.T) {
	store, err := NewMemoryKVStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewMemoryKVStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Write(ctx, "u1", "session", "ephemeral", "x", -time.Second); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, ok, _ := store.Read(ctx, "u1", "session", "ephemeral"); !ok {
		t.Fatal("ttl<=0 应视为永不过期")
	}
}

func TestMemoryKVStoreReload(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewMemoryKVStore(dir)
	if err != nil {
		t.Fatalf("NewMemoryKVStore: %v", err)
	}
	store.Write(ctx, "u1", "session", "keep", "v1", 0)
	store.Write(ctx, "u1", "session", "drop", "v2", 0)
	store.Delete(ctx, "u1", "session", "drop")

	reopened, err := NewMemoryKVStore(dir)
	if err != nil {
		t.Fatalf("重新打开失败: %v", err)
	}
	got, ok, _ := reopened.Read(ctx, "u1", "session", "keep")
	if !ok || got != "v1" {
		t.Fatalf("重放日志后数据丢失: ok=%v got=%s", ok, got)
	}
	if _, ok, _ := reopened.Read(ctx, "u1", "session", "drop"); ok {
		t.Fatal("删除操作未被重放")
	}
}

func TestMemoryKVStoreListNamespaces(t *testing.T) {
	store, err := NewMemoryKVStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewMemoryKVStore: %v", err)
	}
	ctx := context.Background()
	store.Write(ctx, "u1", "session", "k", "v", 0)
	store.Write(ctx, "u1", "profile", "k", "v", 0)
	store.Write(ctx, "u2", "session", "k", "v", 0)

	namespaces, err := store.ListNamespaces(ctx, "u1")
	if err != nil {
		t.Fatalf("ListNamespaces: %v", err)
	}
	if len(namespaces) != 2 {
		t.Fatalf("期望 2 个命名空间,实际 %v", namespaces)
	}
}
