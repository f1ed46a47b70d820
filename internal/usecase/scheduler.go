package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/ports"
)

// BatchRunner executes one pipeline batch.
type BatchRunner interface {
	Run(ctx context.Context) (domain.BatchSummary, error)
}

// Scheduler wires the interval driver with the pipeline use case. Triggers
// that arrive while a batch is still running are skipped.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline BatchRunner
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	last    *domain.BatchSummary
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(driver ports.Scheduler, pipeline BatchRunner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, logger: logger}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if _, ran := s.RunOnce(ctx); !ran {
			s.logger.Warn("previous batch still running, trigger skipped", "trigger", trigger)
		}
	}

	return s.driver.Start(ctx, job)
}

// RunOnce runs a batch unless one is already in flight. The second result
// reports whether a batch ran.
func (s *Scheduler) RunOnce(ctx context.Context) (domain.BatchSummary, bool) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return domain.BatchSummary{}, false
	}
	s.running = true
	s.mu.Unlock()

	summary, err := s.pipeline.Run(ctx)

	s.mu.Lock()
	s.running = false
	if err == nil {
		s.last = &summary
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("batch failed", "error", err)
	}
	return summary, true
}

// Last returns the most recent completed batch summary.
func (s *Scheduler) Last() (domain.BatchSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return domain.BatchSummary{}, false
	}
	return *s.last, true
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
