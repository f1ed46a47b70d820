package classifier

import "RegulatoryTracker/internal/domain"

const maxActionItems = 6

var areaActions = map[domain.ImpactArea][]string{
	domain.AreaLabeling: {
		"Review and update all product labeling materials",
		"Audit current package inserts for compliance gaps",
	},
	domain.AreaClinicalTrials: {
		"Assess impact on ongoing clinical studies",
		"Update study protocols if required",
	},
	domain.AreaManufacturing: {
		"Inspect manufacturing processes for compliance",
		"Update quality control procedures",
	},
	domain.AreaPharmacovigilance: {
		"Review safety monitoring procedures",
		"Update risk evaluation protocols",
	},
	domain.AreaMarketing: {
		"Review all promotional materials for compliance",
		"Update marketing approval processes",
	},
	domain.AreaRegulatoryAffairs: {
		"Review pending submissions and filings for impact",
	},
}

// ActionItems derives the checklist for a tier and its impact areas.
func ActionItems(tier domain.RiskTier, areas []domain.ImpactArea) []string {
	var items []string
	if tier == domain.RiskHigh {
		items = append(items,
			"IMMEDIATE: Convene emergency compliance review within 24 hours",
			"URGENT: Notify all stakeholders and halt affected processes if necessary",
		)
	}
	for _, area := range areas {
		items = append(items, areaActions[area]...)
	}
	items = append(items,
		"Document compliance assessment in regulatory files",
		"Set timeline for implementation based on regulatory deadlines",
	)
	if len(items) > maxActionItems {
		items = items[:maxActionItems]
	}
	return items
}
