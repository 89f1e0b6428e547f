package bot

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"newsnow_bot/internal/model"
)

const (
	// MaxEntries caps how many ranked entries a message shows.
	MaxEntries = 15

	separator       = "------------------------------"
	emptyText       = "📭 当前没有获取到任何新闻。"
	maxMessageRunes = 4096
)

// FormatResult renders a fetch result as ordered text segments. It never
// fails and depends on nothing but its input.
func FormatResult(r model.FetchResult) []string {
	switch r.Kind {
	case model.ResultOK:
		return formatEntries(r)
	case model.ResultEmpty:
		return []string{emptyText}
	case model.ResultHTTPError:
		return []string{fmt.Sprintf("❌ 获取失败，API 返回状态码: %d", r.StatusCode)}
	case model.ResultFormatError:
		msg := fmt.Sprintf("❌ 数据格式错误或源 %s 不可用。", r.Source)
		if r.Reason != "" {
			msg += "\n" + r.Reason
		}
		return []string{msg}
	case model.ResultTransportError:
		return []string{fmt.Sprintf("❌ 连接失败：%s", r.Reason)}
	}
	return []string{fmt.Sprintf("❌ 发生未知错误: %s", r.Kind)}
}

func formatEntries(r model.FetchResult) []string {
	entries := r.Entries
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}

	segs := make([]string, 0, 2+3*len(entries))
	segs = append(segs, fmt.Sprintf("🔥 %s 实时热点", r.Title), separator)
	for i, e := range entries {
		segs = append(segs, fmt.Sprintf("%d. %s", i+1, e.Title))
		if e.URL != "" {
			segs = append(segs, e.URL)
		}
		segs = append(segs, "")
	}
	return segs
}

// JoinSegments packs segments, one per line, into as few messages of at most
// limit runes as possible. Segments are only split when one alone exceeds
// limit. Blank messages are dropped.
func JoinSegments(segments []string, limit int) []string {
	var (
		out []string
		cur strings.Builder
		n   int
	)
	flush := func() {
		if text := strings.TrimRight(cur.String(), "\n"); strings.TrimSpace(text) != "" {
			out = append(out, text)
		}
		cur.Reset()
		n = 0
	}

	for _, seg := range segments {
		for _, piece := range splitRunes(seg, limit) {
			size := utf8.RuneCountInString(piece)
			if n > 0 && n+1+size > limit {
				flush()
			}
			if n > 0 {
				cur.WriteByte('\n')
				n++
			}
			cur.WriteString(piece)
			n += size
		}
	}
	flush()
	return out
}

func splitRunes(s string, limit int) []string {
	if utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}
	var parts []string
	runes := []rune(s)
	for len(runes) > limit {
		parts = append(parts, string(runes[:limit]))
		runes = runes[limit:]
	}
	return append(parts, string(runes))
}

// FormatRuleList formats the stored rules of one chat.
func FormatRuleList(rules []model.StoredRule) string {
	if len(rules) == 0 {
		return "当前会话没有定时推送。使用 /schedule_add HH:MM [source] 添加。"
	}
	var b strings.Builder
	b.WriteString("定时推送:\n")
	for _, r := range rules {
		fmt.Fprintf(&b, "\n#%d  %s  %s", r.ID, r.TimeOfDay, r.Source)
	}
	return b.String()
}
