package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"OpenAssist/internal/ingest"
	"OpenAssist/internal/vector"
)

// Seed 描述随服务启动预置到知识库的一份文档。
type Seed struct {
	Filename string            `json:"filename"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// LoadSeeds 从 JSON 文件加载知识条目。
func LoadSeeds(path string) ([]Seed, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("知识库文件路径不能为空")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析知识库路径失败: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取知识库文件失败: %w", err)
	}
	defer file.Close()

	var seeds []Seed
	if err := json.NewDecoder(file).Decode(&seeds); err != nil {
		return nil, fmt.Errorf("解析知识库文件失败: %w", err)
	}
	return seeds, nil
}

// SeedIndex 将预置文档切分后写入向量索引，返回写入的分片数量。
// 分片 ID 与异步入库流水线保持同一命名，重复播种会覆盖而非重复。
func SeedIndex(ctx context.Context, index vector.Index, seeds []Seed, chunkSize, overlap int) (int, error) {
	if index == nil {
		return 0, fmt.Errorf("向量索引不能为空")
	}

	var docs []vector.Document
	for _, seed := range seeds {
		if strings.TrimSpace(seed.Filename) == "" || strings.TrimSpace(seed.Content) == "" {
			continue
		}
		for pageIdx, page := range strings.Split(seed.Content, "\f") {
			for chunkIdx, chunk := range ingest.SplitText(page, chunkSize, overlap) {
				metadata := map[string]string{
					"filename":    seed.Filename,
					"page":        strconv.Itoa(pageIdx + 1),
					"chunk_index": strconv.Itoa(chunkIdx),
				}
				for key, value := range seed.Metadata {
					if _, reserved := metadata[key]; reserved {
						continue
					}
					metadata[key] = value
				}
				docs = append(docs, vector.Document{
					ID:       fmt.Sprintf("%s_p%d_c%d", seed.Filename, pageIdx+1, chunkIdx),
					Text:     chunk,
					Metadata: metadata,
				})
			}
		}
	}
	if len(docs) == 0 {
		return 0, nil
	}
	if err := index.Ingest(ctx, docs); err != nil {
		return 0, fmt.Errorf("预置知识库失败: %w", err)
	}
	return len(docs), nil
}
