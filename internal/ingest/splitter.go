package ingest

import "strings"

const (
	defaultChunkSize    = 500
	defaultChunkOverlap = 50
)

// SplitText 将文本切分为带重叠的分片，供向量化使用。
// 换行会被替换为空格，按 rune 计数以兼容多字节字符。
func SplitText(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 {
		overlap = defaultChunkOverlap
	}
	normalized := strings.Join(strings.Fields(text), " ")
	runes := []rune(normalized)
	if len(runes) == 0 {
		return nil
	}

	// 保证每次至少前进一个字符，避免 overlap >= chunkSize 时死循环。
	effective := chunkSize
	if effective <= overlap {
		effective = overlap + 1
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + effective
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}
