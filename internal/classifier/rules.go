// Package classifier assigns risk tiers and impact areas to documents.
package classifier

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"RegulatoryTracker/internal/domain"
)

// Rules is the editable rule table, usually loaded from YAML.
type Rules struct {
	Thresholds Thresholds          `yaml:"thresholds"`
	Indicators []Indicator         `yaml:"indicators"`
	Escalation []string            `yaml:"escalation"`
	Areas      map[string]AreaRule `yaml:"areas"`
}

// Thresholds are inclusive lower bounds on the score.
type Thresholds struct {
	High   float64 `yaml:"high"`
	Medium float64 `yaml:"medium"`
}

// Indicator weights one term; negative weights pull towards LOW.
type Indicator struct {
	Term   string  `yaml:"term"`
	Weight float64 `yaml:"weight"`
}

// AreaRule tags an impact area when at least MinHits distinct terms match.
type AreaRule struct {
	Terms   []string `yaml:"terms"`
	MinHits int      `yaml:"minHits"`
}

// Ruleset is a compiled, read-only rule table safe for concurrent use.
type Ruleset struct {
	thresholds Thresholds
	indicators []weightedTerm
	escalation []weightedTerm
	areas      []areaMatcher
}

type weightedTerm struct {
	term   string
	weight float64
	re     *regexp.Regexp
}

type areaMatcher struct {
	area    domain.ImpactArea
	terms   []weightedTerm
	minHits int
}

// LoadRules reads and compiles a YAML rule file.
func LoadRules(path string) (*Ruleset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var rules Rules
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return Compile(rules)
}

// Compile validates rules and prepares word-boundary matchers.
func Compile(rules Rules) (*Ruleset, error) {
	if rules.Thresholds.Medium <= 0 || rules.Thresholds.High <= rules.Thresholds.Medium {
		return nil, fmt.Errorf("thresholds must satisfy 0 < medium < high, got medium=%v high=%v",
			rules.Thresholds.Medium, rules.Thresholds.High)
	}

	rs := &Ruleset{thresholds: rules.Thresholds}

	for _, ind := range rules.Indicators {
		wt, err := compileTerm(ind.Term, ind.Weight)
		if err != nil {
			return nil, err
		}
		rs.indicators = append(rs.indicators, wt)
	}
	for _, term := range rules.Escalation {
		wt, err := compileTerm(term, 0)
		if err != nil {
			return nil, err
		}
		rs.escalation = append(rs.escalation, wt)
	}

	for name, rule := range rules.Areas {
		area, ok := domain.ParseImpactArea(name)
		if !ok || area == domain.AreaUnclassified {
			return nil, fmt.Errorf("unknown impact area %q", name)
		}
		m := areaMatcher{area: area, minHits: max(rule.MinHits, 1)}
		for _, term := range rule.Terms {
			wt, err := compileTerm(term, 1)
			if err != nil {
				return nil, err
			}
			m.terms = append(m.terms, wt)
		}
		rs.areas = append(rs.areas, m)
	}
	sort.Slice(rs.areas, func(i, j int) bool {
		return rs.areas[i].area.Order() < rs.areas[j].area.Order()
	})

	return rs, nil
}

func compileTerm(term string, weight float64) (weightedTerm, error) {
	words := strings.Fields(strings.ToLower(term))
	if len(words) == 0 {
		return weightedTerm{}, fmt.Errorf("empty rule term")
	}
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	re, err := regexp.Compile(`(?i)\b` + strings.Join(words, `\s+`) + `\b`)
	if err != nil {
		return weightedTerm{}, fmt.Errorf("compile term %q: %w", term, err)
	}
	return weightedTerm{term: strings.Join(strings.Fields(strings.ToLower(term)), " "), weight: weight, re: re}, nil
}

// DefaultRules mirrors configs/rules.yaml.
func DefaultRules() Rules {
	return Rules{
		Thresholds: Thresholds{High: 5, Medium: 2},
		Indicators: []Indicator{
			{Term: "recall", Weight: 5},
			{Term: "death", Weight: 5},
			{Term: "black box", Weight: 5},
			{Term: "withdrawal", Weight: 5},
			{Term: "emergency", Weight: 5},
			{Term: "urgent", Weight: 5},
			{Term: "warning", Weight: 2},
			{Term: "safety", Weight: 2},
			{Term: "serious", Weight: 2},
			{Term: "contraindication", Weight: 2},
			{Term: "critical", Weight: 2},
			{Term: "suspension", Weight: 2},
			{Term: "immediate", Weight: 2},
			{Term: "investigation", Weight: 2},
			{Term: "adverse event", Weight: 2},
			{Term: "injury", Weight: 2},
			{Term: "contamination", Weight: 2},
			{Term: "labeling", Weight: 1},
			{Term: "indication", Weight: 1},
			{Term: "dosage", Weight: 1},
			{Term: "administration", Weight: 1},
			{Term: "clinical", Weight: 1},
			{Term: "trial", Weight: 1},
			{Term: "study", Weight: 1},
			{Term: "efficacy", Weight: 1},
			{Term: "approval", Weight: 1},
			{Term: "guidance", Weight: 1},
			{Term: "draft", Weight: -2},
			{Term: "proposed rule", Weight: -2},
			{Term: "webinar", Weight: -2},
			{Term: "comment period", Weight: -1},
			{Term: "request for comment", Weight: -1},
			{Term: "public meeting", Weight: -1},
		},
		Escalation: []string{
			"mandatory recall",
			"class i recall",
			"boxed warning",
			"imminent hazard",
			"public health emergency",
		},
		Areas: map[string]AreaRule{
			string(domain.AreaClinicalTrials): {MinHits: 1, Terms: []string{
				"clinical", "trial", "clinical trial", "study", "protocol", "study protocol",
				"patient enrollment", "biomarker", "endpoint",
			}},
			string(domain.AreaManufacturing): {MinHits: 1, Terms: []string{
				"manufacturing", "quality", "quality control", "facility", "inspection",
				"gmp", "batch records", "sterile production", "contamination",
			}},
			string(domain.AreaLabeling): {MinHits: 1, Terms: []string{
				"label", "labeling", "labelling", "package insert", "prescribing",
				"prescribing information", "contraindication", "dosage",
			}},
			string(domain.AreaPharmacovigilance): {MinHits: 1, Terms: []string{
				"safety", "adverse", "adverse event", "reaction", "monitoring",
				"safety monitoring", "rems", "post-marketing", "surveillance", "risk evaluation",
			}},
			string(domain.AreaMarketing): {MinHits: 1, Terms: []string{
				"promotion", "promotional", "advertising", "marketing", "marketing materials",
				"commercial", "launch", "sales",
			}},
			string(domain.AreaRegulatoryAffairs): {MinHits: 1, Terms: []string{
				"submission", "filing", "application", "review", "regulatory pathway",
				"approval", "guidance", "compliance",
			}},
		},
	}
}

// MustDefault compiles DefaultRules and panics on error.
func MustDefault() *Ruleset {
	rs, err := Compile(DefaultRules())
	if err != nil {
		panic(err)
	}
	return rs
}
