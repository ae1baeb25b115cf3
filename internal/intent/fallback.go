package intent

import (
	"regexp"
	"strings"
	"unicode"
)

// 关键词表按优先级排列,中英混排,匹配即短路。
var (
	weatherKeywords = []string{"weather", "天气", "temperature", "温度", "forecast", "预报"}
	emailKeywords   = []string{"email", "邮件", "gmail", "inbox", "收件箱", "summarize"}
	recallKeywords  = []string{"recall", "之前", "上次", "previous conversation", "remember", "记得", "earlier"}
	qaKeywords      = []string{"explain", "what", "how", "why", "tell me", "解释", "什么是", "怎么", "为什么"}
	searchKeywords  = []string{"search", "find", "查找", "搜索"}
)

var digitsPattern = regexp.MustCompile(`\d+`)

// defaultLocation 在用户没有给出城市时使用。
const defaultLocation = "Singapore"

// Fallback 是确定性的关键词分类器。它保证总能返回至少一个意图,
// 作为 LLM 分类缺失或无法解析时的兜底路径。
func Fallback(text string) []Intent {
	lower := strings.ToLower(text)

	if containsAny(lower, weatherKeywords) {
		return []Intent{{
			Name:       NameWeather,
			Slots:      map[string]any{"location": extractLocation(text)},
			Confidence: 0.75,
		}}
	}

	if containsAny(lower, emailKeywords) {
		count := 5
		if digits := digitsPattern.FindString(text); digits != "" {
			count = parseCount(digits, count)
		}
		return []Intent{{
			Name:       NameEmails,
			Slots:      map[string]any{"count": count},
			Confidence: 0.75,
		}}
	}

	if containsAny(lower, recallKeywords) {
		return []Intent{{
			Name:       NameRecall,
			Slots:      map[string]any{"query": text},
			Confidence: 0.75,
		}}
	}

	if containsAny(lower, qaKeywords) {
		return []Intent{{
			Name:       NameGeneralQA,
			Slots:      map[string]any{"query": text},
			Confidence: 0.75,
		}}
	}

	if containsAny(lower, searchKeywords) {
		return []Intent{{
			Name:       NameKnowledge,
			Slots:      map[string]any{"query": text},
			Confidence: 0.70,
		}}
	}

	return []Intent{{
		Name:       NameGeneralQA,
		Slots:      map[string]any{"query": text},
		Confidence: 0.6,
	}}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// extractLocation 取第一个首字母大写且长度超过 2 的词作为城市。
func extractLocation(text string) string {
	for _, word := range strings.Fields(text) {
		trimmed := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(trimmed) > 2 {
			runes := []rune(trimmed)
			if unicode.IsUpper(runes[0]) {
				return trimmed
			}
		}
	}
	return defaultLocation
}

func parseCount(digits string, fallback int) int {
	count := 0
	for _, r := range digits {
		count = count*10 + int(r-'0')
	}
	if count <= 0 {
		return fallback
	}
	return count
}
