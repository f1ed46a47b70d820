package usecase

import (
	"fmt"
	"sort"
	"strings"

	"RegulatoryTracker/internal/domain"
)

// buildDigestMessage lists the batch's assessments, most severe first.
func buildDigestMessage(assessments []domain.Assessment) string {
	if len(assessments) == 0 {
		return ""
	}

	sorted := make([]domain.Assessment, len(assessments))
	copy(sorted, assessments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RiskTier.Rank() > sorted[j].RiskTier.Rank()
	})

	var b strings.Builder
	fmt.Fprintf(&b, "%d regulatory change(s) detected\n\n", len(sorted))
	for _, a := range sorted {
		fmt.Fprintf(&b, "- [%s] %s (%s, %s)\n%s\n",
			a.RiskTier,
			a.Document.Title,
			a.Document.SourceID,
			a.Change.Status,
			a.Summary)
		if a.Document.URL != "" {
			fmt.Fprintf(&b, "%s\n", a.Document.URL)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
