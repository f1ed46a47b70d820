package domain

import (
	"fmt"
	"time"
)

// Pipeline stages used when reporting item failures.
const (
	StageNormalize = "normalize"
	StageDetect    = "detect"
	StageClassify  = "classify"
	StageMap       = "map"
	StagePersist   = "persist"
)

// ItemFailure describes one item the batch had to skip.
type ItemFailure struct {
	SourceID string `json:"source_id"`
	Ref      string `json:"ref,omitempty"`
	Stage    string `json:"stage"`
	Reason   string `json:"reason"`
}

// SourceError describes a source that could not be fetched during the batch.
type SourceError struct {
	SourceID string `json:"source_id"`
	Reason   string `json:"reason"`
}

// BatchSummary aggregates the outcome of one pipeline run.
type BatchSummary struct {
	RunID        string        `json:"run_id"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Processed    int           `json:"processed"`
	New          int           `json:"new"`
	Updated      int           `json:"updated"`
	Unchanged    int           `json:"unchanged"`
	Duplicate    int           `json:"duplicate"`
	Failed       int           `json:"failed"`
	Failures     []ItemFailure `json:"failures,omitempty"`
	SourceErrors []SourceError `json:"source_errors,omitempty"`
	Cancelled    bool          `json:"cancelled,omitempty"`
}

// Count records the status of a processed item.
func (b *BatchSummary) Count(status ChangeStatus) {
	b.Processed++
	switch status {
	case StatusNew:
		b.New++
	case StatusUpdated:
		b.Updated++
	case StatusUnchanged:
		b.Unchanged++
	case StatusDuplicate:
		b.Duplicate++
	}
}

// Fail records a skipped item.
func (b *BatchSummary) Fail(f ItemFailure) {
	b.Processed++
	b.Failed++
	b.Failures = append(b.Failures, f)
}

// RecentQuery filters assessments for the read surfaces.
type RecentQuery struct {
	Since    time.Time
	SourceID string
	MinTier  RiskTier
	Area     ImpactArea
	Limit    int
}

// Matches applies the query to a single assessment.
func (q RecentQuery) Matches(a Assessment) bool {
	if !q.Since.IsZero() && a.CreatedAt.Before(q.Since) {
		return false
	}
	if q.SourceID != "" && a.Document.SourceID != q.SourceID {
		return false
	}
	if q.MinTier != "" && a.RiskTier.Rank() < q.MinTier.Rank() {
		return false
	}
	if q.Area != "" {
		found := false
		for _, area := range a.ImpactAreas {
			if area == q.Area {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Defaults and bounds for recent-change queries.
const (
	DefaultRecentDays  = 7
	DefaultRecentLimit = 50
	MaxRecentLimit     = 500
)

// NewRecentQuery builds a query from loosely typed filter values. Zero days
// and limit take the defaults; empty strings disable a filter.
func NewRecentQuery(now time.Time, days int, risk, source, area string, limit int) (RecentQuery, error) {
	if days < 0 || limit < 0 {
		return RecentQuery{}, fmt.Errorf("days and limit must not be negative")
	}
	if days == 0 {
		days = DefaultRecentDays
	}
	if limit == 0 {
		limit = DefaultRecentLimit
	}
	q := RecentQuery{
		Since:    now.AddDate(0, 0, -days),
		SourceID: source,
		Limit:    min(limit, MaxRecentLimit),
	}
	if risk != "" {
		tier, ok := ParseRiskTier(risk)
		if !ok {
			return RecentQuery{}, fmt.Errorf("unknown risk tier %q", risk)
		}
		q.MinTier = tier
	}
	if area != "" {
		a, ok := ParseImpactArea(area)
		if !ok {
			return RecentQuery{}, fmt.Errorf("unknown impact area %q", area)
		}
		q.Area = a
	}
	return q, nil
}
