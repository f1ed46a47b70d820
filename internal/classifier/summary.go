package classifier

import "strings"

// FallbackSummary builds an extractive summary from the first sentences of
// the body. It is used whenever the summarizer is missing or fails.
func FallbackSummary(content string) string {
	content = strings.TrimSpace(content)

	var sentences []string
	for _, s := range strings.Split(content, ".") {
		s = strings.TrimSpace(s)
		if len([]rune(s)) > 10 {
			sentences = append(sentences, s)
		}
	}

	if len(sentences) <= 2 {
		return truncate(content, 200)
	}
	return truncate(strings.Join(sentences[:2], ". ")+".", 250)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
