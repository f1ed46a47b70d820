// Package kafka publishes assessment events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"RegulatoryTracker/internal/config"
	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/ports"
)

// Producer is the subset of *kgo.Client the sink needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Sink produces one record per assessment keyed by history key, so every
// revision of a document lands on the same partition.
type Sink struct {
	producer Producer
	topic    string
}

var _ ports.Sink = (*Sink)(nil)

// New connects a franz-go client to the configured brokers.
func New(cfg config.KafkaConfig) (*Sink, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka brokers and topic are required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return NewWithProducer(client, cfg.Topic), nil
}

// NewWithProducer wraps an existing producer.
func NewWithProducer(p Producer, topic string) *Sink {
	return &Sink{producer: p, topic: topic}
}

// Name identifies the sink in logs.
func (s *Sink) Name() string {
	return "kafka"
}

// Publish sends the assessment as JSON and waits for the broker ack.
func (s *Sink) Publish(ctx context.Context, a domain.Assessment) error {
	value, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}

	rec := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(a.Key().String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "risk_tier", Value: []byte(a.RiskTier)},
			{Key: "status", Value: []byte(a.Change.Status)},
		},
	}
	if err := s.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce assessment %s: %w", a.ID, err)
	}
	return nil
}

// Close flushes and closes the client.
func (s *Sink) Close() {
	s.producer.Close()
}
