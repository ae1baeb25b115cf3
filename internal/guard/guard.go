package guard

import (
	"fmt"
	"regexp"
	"strings"
)

// Refusal 是命中违禁话题时返回的固定话术，不携带任何内部细节。
const Refusal = "sorry, I cannot answer this question"

// Result 是一次过滤的结论。Safe 为 false 时 Text 固定为拒答话术。
type Result struct {
	Safe   bool   `json:"safe"`
	Text   string `json:"text"`
	Reason string `json:"reason,omitempty"`
}

// MaskMap 记录一轮对话内 占位符 -> 原文 的映射。它只在一次
// inbound/outbound 往返内有效，Outbound 返回前会清空它。
type MaskMap map[string]string

// piiPattern 先按类型、再按出现顺序给 PII 编号，类型顺序是固定的。
type piiPattern struct {
	kind string
	re   *regexp.Regexp
}

// defaultBlockedTopics 是默认的违禁话题词表，均按小写子串匹配。
var defaultBlockedTopics = []string{
	"terrorism", "bomb", "kill", "suicide", "child abuse",
	"sex", "porn", "hate speech", "racism", "violence", "drugs",
}

var piiPatterns = []piiPattern{
	{kind: "EMAIL", re: regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)},
	{kind: "MOBILE", re: regexp.MustCompile(`\b(?:\+?\d{1,3}[-.\s]?)?\d{3,4}[-.\s]?\d{4}\b`)},
	{kind: "IPADDR", re: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b|\b(?:[A-Fa-f0-9]{0,4}:){2,7}[A-Fa-f0-9]{0,4}\b`)},
}

// Guard 是输入输出两侧的安全过滤器：拦截违禁话题，并在一轮对话内
// 对 PII 做掩码与还原。Guard 本身不持有任何跨请求状态，可被并发使用。
type Guard struct {
	blockedTopics []string
}

// Option 定义 Guard 的可选配置。
type Option func(*Guard)

// WithExtraTopics 在默认词表之外追加违禁话题。
func WithExtraTopics(topics ...string) Option {
	return func(g *Guard) {
		for _, topic := range topics {
			topic = strings.ToLower(strings.TrimSpace(topic))
			if topic != "" {
				g.blockedTopics = append(g.blockedTopics, topic)
			}
		}
	}
}

// New 创建一个 Guard。
func New(opts ...Option) *Guard {
	g := &Guard{blockedTopics: append([]string(nil), defaultBlockedTopics...)}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Screen 只做违禁话题扫描，不做任何掩码处理。
func (g *Guard) Screen(text string) Result {
	lowered := strings.ToLower(text)
	for _, topic := range g.blockedTopics {
		if strings.Contains(lowered, topic) {
			return Result{Safe: false, Text: Refusal, Reason: "unsafe_input"}
		}
	}
	return Result{Safe: true, Text: text}
}

// Inbound 校验用户输入：先做违禁话题扫描，命中则直接短路；否则按
// EMAIL、MOBILE、IPADDR 的固定顺序掩码 PII，并返回本轮的映射表。
// 返回的 MaskMap 必须原样传给同一轮的 Outbound。
func (g *Guard) Inbound(text string) (Result, MaskMap) {
	masks := MaskMap{}
	screened := g.Screen(text)
	if !screened.Safe {
		return screened, masks
	}

	masked := text
	for _, pattern := range piiPatterns {
		index := 0
		masked = pattern.re.ReplaceAllStringFunc(masked, func(original string) string {
			index++
			token := fmt.Sprintf("[%s_%d]", pattern.kind, index)
			masks[token] = original
			return token
		})
	}
	return Result{Safe: true, Text: masked}, masks
}

// Outbound 校验模型输出：违禁话题扫描、模型新生成 PII 的脱敏，
// 以及 inbound 阶段掩码的还原。无论结果如何，masks 都会被清空，
// 掩码映射不允许跨轮存活。
func (g *Guard) Outbound(text string, masks MaskMap) Result {
	defer clearMasks(masks)

	screened := g.Screen(text)
	if !screened.Safe {
		return Result{Safe: false, Text: Refusal, Reason: "unsafe_output"}
	}

	// 先脱敏：此时 inbound 的原文仍以占位符形式存在，不会被误伤。
	sanitized := sanitizeGenerated(text)

	// 再还原 inbound 阶段的掩码。
	for token, original := range masks {
		sanitized = strings.ReplaceAll(sanitized, token, original)
	}
	return Result{Safe: true, Text: sanitized}
}

func clearMasks(masks MaskMap) {
	for token := range masks {
		delete(masks, token)
	}
}

// sanitizeGenerated 对模型自行生成的 PII 做类型化脱敏。
func sanitizeGenerated(text string) string {
	for _, pattern := range piiPatterns {
		kind := pattern.kind
		text = pattern.re.ReplaceAllStringFunc(text, func(match string) string {
			return redact(kind, match)
		})
	}
	return text
}

func redact(kind, value string) string {
	switch kind {
	case "MOBILE":
		if len(value) >= 5 {
			return value[:3] + "****" + value[len(value)-2:]
		}
		return "[REDACTED]"
	case "EMAIL":
		name, domain, ok := strings.Cut(value, "@")
		if ok && name != "" {
			return name[:1] + "***@" + domain
		}
		return "[REDACTED]"
	case "IPADDR":
		return "[REDACTED_IP]"
	default:
		return "[REDACTED]"
	}
}
