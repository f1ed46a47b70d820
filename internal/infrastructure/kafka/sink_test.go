package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"RegulatoryTracker/internal/config"
	"RegulatoryTracker/internal/domain"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
	closed  bool
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		f.records = append(f.records, r)
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func (f *fakeProducer) Close() { f.closed = true }

func TestPublishKeysByHistoryKey(t *testing.T) {
	p := &fakeProducer{}
	s := NewWithProducer(p, "assessments")

	a := domain.Assessment{
		ID:       "a-1",
		Document: domain.RegulatoryDocument{SourceID: "fda", ExternalRef: "R-1"},
		Change:   domain.ChangeRecord{Status: domain.StatusUpdated},
		RiskTier: domain.RiskMedium,
	}
	require.NoError(t, s.Publish(context.Background(), a))

	require.Len(t, p.records, 1)
	rec := p.records[0]
	assert.Equal(t, "assessments", rec.Topic)
	assert.Equal(t, "fda|R-1", string(rec.Key))
	assert.Equal(t, "MEDIUM", string(rec.Headers[0].Value))

	var decoded domain.Assessment
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, "a-1", decoded.ID)

	s.Close()
	assert.True(t, p.closed)
}

func TestPublishReturnsBrokerError(t *testing.T) {
	p := &fakeProducer{err: errors.New("NOT_LEADER_FOR_PARTITION")}
	err := NewWithProducer(p, "t").Publish(context.Background(), domain.Assessment{ID: "x"})
	assert.ErrorContains(t, err, "NOT_LEADER_FOR_PARTITION")
}

func TestNewValidation(t *testing.T) {
	_, err := New(config.KafkaConfig{Topic: "t"})
	assert.Error(t, err)
	_, err = New(config.KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}
