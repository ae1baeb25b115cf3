package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"OpenAssist/internal/vector"
)

func TestLoadSeeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seeds.json")
	payload := `[{"filename":"faq.txt","content":"how to reset a password","metadata":{"lang":"en"}}]`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("写入测试文件失败: %v", err)
	}

	seeds, err := LoadSeeds(path)
	if err != nil {
		t.Fatalf("LoadSeeds 失败: %v", err)
	}
	if len(seeds) != 1 || seeds[0].Filename != "faq.txt" || seeds[0].Metadata["lang"] != "en" {
		t.Fatalf("加载结果不符: %+v", seeds)
	}
}

func TestLoadSeedsInvalid(t *testing.T) {
	if _, err := LoadSeeds(""); err == nil {
		t.Fatal("空路径应报错")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("写入测试文件失败: %v", err)
	}
	if _, err := LoadSeeds(path); err == nil {
		t.Fatal("非法 JSON 应报错")
	}
}

func TestSeedIndex(t *testing.T) {
	index := vector.NewMemoryIndex()
	seeds := []Seed{
		{Filename: "faq.txt", Content: "first page\fsecond page"},
		{Filename: "", Content: "skipped"},
	}

	count, err := SeedIndex(context.Background(), index, seeds, 500, 50)
	if err != nil {
		t.Fatalf("SeedIndex 失败: %v", err)
	}
	if count != 2 || index.Len() != 2 {
		t.Fatalf("期望 2 个分片, count=%d len=%d", count, index.Len())
	}

	results, err := index.Query(context.Background(), "second", 3, map[string]string{"filename": "faq.txt", "page": "2"})
	if err != nil {
		t.Fatalf("Query 失败: %v", err)
	}
	if len(results) == 0 || results[0].DocID != "faq.txt_p2_c0" {
		t.Fatalf("检索结果不符: %+v", results)
	}

	// 重复播种覆盖同一批 ID。
	count, err = SeedIndex(context.Background(), index, seeds[:1], 500, 50)
	if err != nil {
		t.Fatalf("重复 SeedIndex 失败: %v", err)
	}
	if count != 2 || index.Len() != 2 {
		t.Fatalf("重复播种不应增加条目, count=%d len=%d", count, index.Len())
	}
}
