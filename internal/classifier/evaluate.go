package classifier

import (
	"slices"

	"RegulatoryTracker/internal/domain"
)

// Result is the deterministic part of a classification.
type Result struct {
	Tier       domain.RiskTier
	Score      float64
	Indicators []string
	Areas      []domain.ImpactArea
	Escalated  bool
}

// Evaluate scores text against the ruleset. Each term counts once no matter
// how often it occurs. The final tier is never lower than the tier of the
// strongest positive indicator on its own, and any escalation term forces HIGH.
func Evaluate(rs *Ruleset, text string) Result {
	var (
		res       Result
		strongest float64
	)

	for _, ind := range rs.indicators {
		if !ind.re.MatchString(text) {
			continue
		}
		res.Score += ind.weight
		res.Indicators = append(res.Indicators, ind.term)
		if ind.weight > strongest {
			strongest = ind.weight
		}
	}
	for _, esc := range rs.escalation {
		if esc.re.MatchString(text) {
			res.Escalated = true
			res.Indicators = append(res.Indicators, esc.term)
		}
	}

	res.Tier = domain.MaxTier(rs.tierFor(res.Score), rs.tierFor(strongest))
	if res.Escalated {
		res.Tier = domain.RiskHigh
	}

	for _, m := range rs.areas {
		hits := 0
		for _, t := range m.terms {
			if t.re.MatchString(text) {
				hits++
			}
		}
		if hits >= m.minHits {
			res.Areas = append(res.Areas, m.area)
		}
	}
	if len(res.Areas) == 0 {
		res.Areas = []domain.ImpactArea{domain.AreaUnclassified}
	}

	return res
}

func (rs *Ruleset) tierFor(score float64) domain.RiskTier {
	switch {
	case score >= rs.thresholds.High:
		return domain.RiskHigh
	case score >= rs.thresholds.Medium:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// merge folds a second evaluation into r. The tier can only go up and areas
// can only be added.
func (r Result) merge(other Result) Result {
	r.Tier = domain.MaxTier(r.Tier, other.Tier)
	r.Escalated = r.Escalated || other.Escalated

	for _, ind := range other.Indicators {
		if !slices.Contains(r.Indicators, ind) {
			r.Indicators = append(r.Indicators, ind)
		}
	}

	areas := make([]domain.ImpactArea, 0, len(r.Areas)+len(other.Areas))
	for _, a := range append(slices.Clone(r.Areas), other.Areas...) {
		if a != domain.AreaUnclassified && !slices.Contains(areas, a) {
			areas = append(areas, a)
		}
	}
	if len(areas) == 0 {
		areas = []domain.ImpactArea{domain.AreaUnclassified}
	}
	slices.SortFunc(areas, func(a, b domain.ImpactArea) int { return a.Order() - b.Order() })
	r.Areas = areas

	return r
}
