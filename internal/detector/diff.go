package detector

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"RegulatoryTracker/internal/domain"
)

type revisionDiff struct {
	fields     []string
	similarity float64
	kind       string
	excerpt    string
}

func (r revisionDiff) summary() string {
	fields := "content"
	if len(r.fields) > 0 {
		fields = strings.Join(r.fields, "+")
	}
	return fmt.Sprintf("%s: %s (similarity %.2f)", fields, r.kind, r.similarity)
}

// compare describes how next differs from prev. Similarity is computed on a
// bounded word window so that huge bodies stay cheap.
func compare(prev, next domain.RegulatoryDocument, cfg Config) revisionDiff {
	var out revisionDiff

	if domain.NormalizeTitle(prev.Title) != domain.NormalizeTitle(next.Title) {
		out.fields = append(out.fields, "title")
	}
	if prev.BodyText != next.BodyText {
		out.fields = append(out.fields, "body")
	}
	if !samePublished(prev, next) {
		out.fields = append(out.fields, "published_at")
	}

	out.similarity = 1
	if prev.BodyText != next.BodyText {
		a := window(strings.Fields(prev.BodyText), cfg.DiffWindowWords)
		b := window(strings.Fields(next.BodyText), cfg.DiffWindowWords)
		out.similarity = difflib.NewMatcher(a, b).Ratio()
		out.excerpt = excerpt(prev.BodyText, next.BodyText, cfg.ExcerptLines)
	}

	out.kind = domain.DiffMinorEdit
	if out.similarity < cfg.SimilarityThreshold {
		out.kind = domain.DiffFullText
	}
	return out
}

func samePublished(a, b domain.RegulatoryDocument) bool {
	switch {
	case a.PublishedAt == nil && b.PublishedAt == nil:
		return true
	case a.PublishedAt == nil || b.PublishedAt == nil:
		return false
	default:
		return a.PublishedAt.Equal(*b.PublishedAt)
	}
}

func window(words []string, limit int) []string {
	if limit > 0 && len(words) > limit {
		return words[:limit]
	}
	return words
}

// excerpt renders a unified diff over sentence lines, capped at maxLines.
func excerpt(prev, next string, maxLines int) string {
	diff := difflib.UnifiedDiff{
		A:        sentences(prev),
		B:        sentences(next),
		FromFile: "previous",
		ToFile:   "current",
		Context:  1,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}

	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if maxLines > 0 && len(lines) > maxLines {
		lines = append(lines[:maxLines], "...")
	}
	return strings.Join(lines, "\n")
}

// sentences splits collapsed body text into one sentence per line.
func sentences(body string) []string {
	var (
		out     []string
		current []string
	)
	for _, word := range strings.Fields(body) {
		current = append(current, word)
		if strings.HasSuffix(word, ".") || strings.HasSuffix(word, "!") || strings.HasSuffix(word, "?") {
			out = append(out, strings.Join(current, " ")+"\n")
			current = current[:0]
		}
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, " ")+"\n")
	}
	return out
}
