package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RegulatoryTracker/internal/config"
	"RegulatoryTracker/internal/domain"
)

type fakeES struct {
	mu       sync.Mutex
	exists   bool
	created  bool
	indexed  map[string]map[string]any
	failures bool
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodHead && r.URL.Path == "/assessments":
		if f.exists {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case r.Method == http.MethodPut && r.URL.Path == "/assessments":
		f.created = true
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	case r.Method == http.MethodPut && len(r.URL.Path) > len("/assessments/_doc/"):
		if f.failures {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"mapper_parsing_exception"}`))
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if f.indexed == nil {
			f.indexed = map[string]map[string]any{}
		}
		f.indexed[r.URL.Path[len("/assessments/_doc/"):]] = body
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newSink(t *testing.T, fake *fakeES) *Sink {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := New(config.ElasticsearchConfig{Addresses: []string{srv.URL}, Index: "assessments"})
	require.NoError(t, err)
	return s
}

func TestNewValidation(t *testing.T) {
	_, err := New(config.ElasticsearchConfig{Index: "x"})
	assert.Error(t, err)
	_, err = New(config.ElasticsearchConfig{Addresses: []string{"http://localhost:9200"}})
	assert.Error(t, err)
}

func TestEnsureIndexCreatesOnce(t *testing.T) {
	fake := &fakeES{}
	s := newSink(t, fake)

	require.NoError(t, s.EnsureIndex(context.Background()))
	assert.True(t, fake.created)

	fake.created = false
	fake.exists = true
	require.NoError(t, s.EnsureIndex(context.Background()))
	assert.False(t, fake.created)
}

func TestPublishIndexesByID(t *testing.T) {
	fake := &fakeES{}
	s := newSink(t, fake)

	a := domain.Assessment{
		ID:               "a-1",
		Document:         domain.RegulatoryDocument{SourceID: "fda", Title: "Recall", BodyText: "body"},
		Change:           domain.ChangeRecord{Status: domain.StatusNew},
		RiskTier:         domain.RiskHigh,
		ImpactAreas:      []domain.ImpactArea{domain.AreaManufacturing},
		AffectedProducts: []domain.ProductImpact{{ProductID: "p1", Confidence: 1}},
		CreatedAt:        time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.Publish(context.Background(), a))

	doc := fake.indexed["a-1"]
	require.NotNil(t, doc)
	assert.Equal(t, "HIGH", doc["risk_tier"])
	assert.Equal(t, "NEW", doc["status"])
	assert.Equal(t, []any{"p1"}, doc["products"])
	assert.Equal(t, "elasticsearch", s.Name())

	fake.failures = true
	assert.Error(t, s.Publish(context.Background(), a))
}
