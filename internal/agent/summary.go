package agent

import (
	"context"
	"fmt"
	"strings"

	"OpenAssist/internal/llm"
	"OpenAssist/internal/tool"
	"OpenAssist/pkg/logger"
)

const summarySystemPrompt = "You are a helpful assistant. Combine the gathered information into a clear, natural summary."

const noInformationAnswer = "I couldn't find relevant information for your question."

// summarize 用 LLM 把收集到的观察汇总成自然语言回答,
// 失败或输出为空时退回确定性的条目拼接。
func (o *Orchestrator) summarize(ctx context.Context, userQuery string, observations []string) string {
	if len(observations) == 0 {
		return noInformationAnswer
	}

	start := len(observations) - 5
	if start < 0 {
		start = 0
	}
	recent := observations[start:]

	messages := []llm.Message{
		llm.System(summarySystemPrompt),
		llm.User(fmt.Sprintf("User query: %s\n\n%s", userQuery, strings.Join(recent, "\n"))),
	}
	answer, err := o.llm.Chat(ctx, messages)
	if err != nil || strings.TrimSpace(answer) == "" {
		if err != nil {
			logger.Named("agent").Warn("总结失败,使用条目拼接兜底", "error", err)
		}
		return fallbackAnswer(recent)
	}
	return answer
}

func fallbackAnswer(observations []string) string {
	if len(observations) == 0 {
		return "No information available."
	}
	var b strings.Builder
	b.WriteString("Based on the gathered information:\n")
	for i, obs := range observations {
		b.WriteString("- ")
		b.WriteString(obs)
		if i < len(observations)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// formatObservation 把工具信封压成一句可读文本,供后续轮次与总结使用。
func formatObservation(envelope tool.Envelope) string {
	if results, ok := envelope["results"].([]any); ok {
		if len(results) == 0 {
			return "No relevant results found."
		}
		return fmt.Sprintf("Found %d relevant items.", len(results))
	}
	if temp, ok := envelope["temperature"]; ok {
		location, _ := envelope["location"].(string)
		condition := ""
		if v, ok := envelope["condition"]; ok && v != nil {
			condition = fmt.Sprint(v)
		}
		return fmt.Sprintf("Weather in %s: %v°C, %s", location, temp, condition)
	}
	if text, ok := envelope["text"].(string); ok {
		return truncate(text, 300)
	}
	return truncate(fmt.Sprint(map[string]any(envelope)), 300)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// collectCitations 从知识库命中里提取 (文件名, 页码) 引用,
// 按首次出现的顺序去重。
func collectCitations(existing []Citation, envelope tool.Envelope) []Citation {
	results, ok := envelope["results"].([]any)
	if !ok {
		return existing
	}
	seen := make(map[Citation]struct{}, len(existing))
	for _, c := range existing {
		seen[c] = struct{}{}
	}
	for _, item := range results {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		metadata, ok := entry["metadata"].(map[string]any)
		if !ok {
			continue
		}
		filename, _ := metadata["filename"].(string)
		if filename == "" {
			continue
		}
		page := 0
		switch v := metadata["page"].(type) {
		case int:
			page = v
		case float64:
			page = int(v)
		case string:
			fmt.Sscanf(v, "%d", &page)
		}
		citation := Citation{Filename: filename, Page: page}
		if _, dup := seen[citation]; dup {
			continue
		}
		seen[citation] = struct{}{}
		existing = append(existing, citation)
	}
	return existing
}

// appendCitationBlock 仅在引用非空时在回答末尾附加来源列表,
// 绝不在没有引用时编造来源。
func appendCitationBlock(answer string, citations []Citation) string {
	if len(citations) == 0 {
		return answer
	}
	var b strings.Builder
	b.WriteString(answer)
	b.WriteString("\n\nSources:\n")
	for i, c := range citations {
		fmt.Fprintf(&b, "- %s (page %d)", c.Filename, c.Page)
		if i < len(citations)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
