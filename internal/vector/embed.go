package vector

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// embedDim 是特征哈希向量的维度。
const embedDim = 256

// Embed 把文本映射为确定性的特征哈希向量：分词后把每个词元散列到
// 固定维度的桶里计数，再做 L2 归一化。同一段文本永远得到同一个
// 向量，因此索引无需持久化模型状态。
func Embed(text string) []float64 {
	vec := make([]float64, embedDim)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[h.Sum32()%embedDim]++
	}
	normalize(vec)
	return vec
}

// Cosine 计算两个向量的余弦相似度。
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	denom := math.Sqrt(normA)*math.Sqrt(normB) + 1e-9
	return dot / denom
}

// tokenize 以非字母数字字符切分并转为小写；中日韩字符逐字成词，
// 这样中文文本也能得到可用的相似度信号。
func tokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func normalize(vec []float64) {
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
}
