package domain

import "time"

// RiskTier is the coarse severity assigned by the classifier.
type RiskTier string

const (
	RiskLow    RiskTier = "LOW"
	RiskMedium RiskTier = "MEDIUM"
	RiskHigh   RiskTier = "HIGH"
)

// Rank orders tiers so that higher means more severe.
func (t RiskTier) Rank() int {
	switch t {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// MaxTier returns the more severe of two tiers.
func MaxTier(a, b RiskTier) RiskTier {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ParseRiskTier maps a case-insensitive name onto a tier.
func ParseRiskTier(v string) (RiskTier, bool) {
	switch RiskTier(upper(v)) {
	case RiskHigh:
		return RiskHigh, true
	case RiskMedium:
		return RiskMedium, true
	case RiskLow:
		return RiskLow, true
	}
	return "", false
}

// ImpactArea is a functional domain a publication touches.
type ImpactArea string

const (
	AreaClinicalTrials    ImpactArea = "CLINICAL_TRIALS"
	AreaManufacturing     ImpactArea = "MANUFACTURING"
	AreaLabeling          ImpactArea = "LABELING"
	AreaPharmacovigilance ImpactArea = "PHARMACOVIGILANCE"
	AreaMarketing         ImpactArea = "MARKETING"
	AreaRegulatoryAffairs ImpactArea = "REGULATORY_AFFAIRS"
	AreaUnclassified      ImpactArea = "UNCLASSIFIED"
)

// AllImpactAreas lists the classified areas in their canonical order.
var AllImpactAreas = []ImpactArea{
	AreaClinicalTrials,
	AreaManufacturing,
	AreaLabeling,
	AreaPharmacovigilance,
	AreaMarketing,
	AreaRegulatoryAffairs,
}

// Order returns the canonical sort position of the area.
func (a ImpactArea) Order() int {
	for i, v := range AllImpactAreas {
		if v == a {
			return i
		}
	}
	return len(AllImpactAreas)
}

// ParseImpactArea maps a case-insensitive name onto an area.
func ParseImpactArea(v string) (ImpactArea, bool) {
	area := ImpactArea(upper(v))
	if area == AreaUnclassified {
		return area, true
	}
	for _, a := range AllImpactAreas {
		if a == area {
			return a, true
		}
	}
	return "", false
}

// ProductImpact links an assessment to a catalog entry.
type ProductImpact struct {
	ProductID  string  `json:"product_id"`
	Name       string  `json:"name,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Summary provenance values.
const (
	SummaryFromModel    = "summarizer"
	SummaryFromFallback = "fallback"
)

// Assessment is the immutable outcome for a NEW or UPDATED document.
type Assessment struct {
	ID               string             `json:"id"`
	Document         RegulatoryDocument `json:"document"`
	Change           ChangeRecord       `json:"change"`
	RiskTier         RiskTier           `json:"risk_tier"`
	RiskScore        float64            `json:"risk_score"`
	Indicators       []string           `json:"indicators,omitempty"`
	ImpactAreas      []ImpactArea       `json:"impact_areas"`
	AffectedProducts []ProductImpact    `json:"affected_products"`
	ActionItems      []string           `json:"action_items"`
	Summary          string             `json:"summary"`
	SummarySource    string             `json:"summary_source"`
	CreatedAt        time.Time          `json:"created_at"`
}

// Key returns the history key of the assessed document.
func (a Assessment) Key() HistoryKey {
	return a.Document.Key()
}

// Classification is the classifier output folded into an Assessment.
type Classification struct {
	Tier          RiskTier
	Score         float64
	Indicators    []string
	Areas         []ImpactArea
	ActionItems   []string
	Summary       string
	SummarySource string
}
