package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"spotguard/internal/pkg/text"
)

const (
	// Telegram 单条消息上限 4096 字符，留出标签与时间戳的余量。
	maxMessageLen = 3800
	maxLineLen    = 600
)

// MessageSection 表示通知中的一个段落。
type MessageSection struct {
	Title string
	Lines []string
}

// StructuredMessage 描述统一格式的告警推送，由 Alerter 构造。
type StructuredMessage struct {
	Icon      string
	Title     string
	Sections  []MessageSection
	Footer    string
	Timestamp time.Time
}

// Line 便于拼接 "key: value" 形式的行。
func Line(key string, value any) string {
	return fmt.Sprintf("%s: %v", key, value)
}

// RenderHTML 按 Telegram HTML parse mode 输出。
// 超长时从末尾整行丢弃正文并以 "…" 标记，保证标签始终闭合。
func (m StructuredMessage) RenderHTML() string {
	head := text.Truncate(strings.TrimSpace(m.Icon+" "+strings.TrimSpace(m.Title)), maxLineLen)
	var tail []string
	if footer := strings.TrimSpace(m.Footer); footer != "" {
		tail = append(tail, "<i>"+html.EscapeString(text.Truncate(footer, maxLineLen))+"</i>")
	}
	if !m.Timestamp.IsZero() {
		tail = append(tail, "Time: "+m.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
	}

	body := m.bodyLines()
	cut := false
	for {
		out := assemble(head, body, cut, tail)
		if len(out) <= maxMessageLen || len(body) == 0 {
			return out
		}
		body = body[:len(body)-1]
		cut = true
	}
}

// bodyLines 返回已转义的正文行，段落之间以空行分隔。
func (m StructuredMessage) bodyLines() []string {
	var lines []string
	for _, sec := range m.Sections {
		content := nonBlank(sec.Lines)
		if len(content) == 0 {
			continue
		}
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		if title := strings.TrimSpace(sec.Title); title != "" {
			lines = append(lines, html.EscapeString(title))
		}
		for _, l := range content {
			lines = append(lines, "- "+html.EscapeString(text.Truncate(l, maxLineLen)))
		}
	}
	return lines
}

func assemble(head string, body []string, cut bool, tail []string) string {
	var b strings.Builder
	if head != "" {
		b.WriteString("<b>" + html.EscapeString(head) + "</b>\n\n")
	}
	if len(body) > 0 || cut {
		b.WriteString("<pre>")
		b.WriteString(strings.Join(body, "\n"))
		if cut {
			b.WriteString("\n…")
		}
		b.WriteString("</pre>\n\n")
	}
	b.WriteString(strings.Join(tail, "\n"))
	return strings.TrimSpace(b.String())
}

func nonBlank(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
