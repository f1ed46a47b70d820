// Package search indexes assessments into Elasticsearch for dashboards.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"RegulatoryTracker/internal/config"
	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/ports"
)

// Sink writes one document per assessment, keyed by assessment id.
type Sink struct {
	es    *elasticsearch.Client
	index string
}

var _ ports.Sink = (*Sink)(nil)

// New creates a new Elasticsearch sink.
func New(cfg config.ElasticsearchConfig) (*Sink, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("elasticsearch addresses are required")
	}
	if cfg.Index == "" {
		return nil, fmt.Errorf("elasticsearch index is required")
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}

	return &Sink{es: es, index: cfg.Index}, nil
}

// Name identifies the sink in logs.
func (s *Sink) Name() string {
	return "elasticsearch"
}

// indexMapping keeps filters on keywords and the prose searchable.
var indexMapping = `{
	"mappings": {
		"properties": {
			"id": { "type": "keyword" },
			"source_id": { "type": "keyword" },
			"external_ref": { "type": "keyword" },
			"url": { "type": "keyword" },
			"title": { "type": "text" },
			"body": { "type": "text", "analyzer": "english" },
			"summary": { "type": "text", "analyzer": "english" },
			"status": { "type": "keyword" },
			"diff_summary": { "type": "text" },
			"risk_tier": { "type": "keyword" },
			"risk_score": { "type": "float" },
			"impact_areas": { "type": "keyword" },
			"products": { "type": "keyword" },
			"action_items": { "type": "text" },
			"published_at": { "type": "date" },
			"created_at": { "type": "date" }
		}
	}
}`

// EnsureIndex creates the index with its mapping when missing.
func (s *Sink) EnsureIndex(ctx context.Context) error {
	res, err := s.es.Indices.Exists([]string{s.index}, s.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		return nil
	}

	res, err = s.es.Indices.Create(
		s.index,
		s.es.Indices.Create.WithContext(ctx),
		s.es.Indices.Create.WithBody(bytes.NewReader([]byte(indexMapping))),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error creating index: %s", res.String())
	}
	return nil
}

type indexedAssessment struct {
	ID          string     `json:"id"`
	SourceID    string     `json:"source_id"`
	ExternalRef string     `json:"external_ref,omitempty"`
	URL         string     `json:"url,omitempty"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Summary     string     `json:"summary"`
	Status      string     `json:"status"`
	DiffSummary string     `json:"diff_summary,omitempty"`
	RiskTier    string     `json:"risk_tier"`
	RiskScore   float64    `json:"risk_score"`
	ImpactAreas []string   `json:"impact_areas"`
	Products    []string   `json:"products"`
	ActionItems []string   `json:"action_items"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toIndexed(a domain.Assessment) indexedAssessment {
	doc := indexedAssessment{
		ID:          a.ID,
		SourceID:    a.Document.SourceID,
		ExternalRef: a.Document.ExternalRef,
		URL:         a.Document.URL,
		Title:       a.Document.Title,
		Body:        a.Document.BodyText,
		Summary:     a.Summary,
		Status:      string(a.Change.Status),
		DiffSummary: a.Change.DiffSummary,
		RiskTier:    string(a.RiskTier),
		RiskScore:   a.RiskScore,
		ActionItems: a.ActionItems,
		PublishedAt: a.Document.PublishedAt,
		CreatedAt:   a.CreatedAt,
	}
	for _, area := range a.ImpactAreas {
		doc.ImpactAreas = append(doc.ImpactAreas, string(area))
	}
	for _, p := range a.AffectedProducts {
		doc.Products = append(doc.Products, p.ProductID)
	}
	return doc
}

// Publish indexes the assessment. Re-publishing the same id overwrites it.
func (s *Sink) Publish(ctx context.Context, a domain.Assessment) error {
	data, err := json.Marshal(toIndexed(a))
	if err != nil {
		return fmt.Errorf("failed to marshal assessment: %w", err)
	}

	res, err := s.es.Index(
		s.index,
		bytes.NewReader(data),
		s.es.Index.WithContext(ctx),
		s.es.Index.WithDocumentID(a.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to index assessment: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing assessment (status %d): %s", res.StatusCode, res.String())
	}
	return nil
}
