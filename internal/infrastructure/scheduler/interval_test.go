package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestIntervalSchedulerRunsImmediatelyAndOnTicks(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("EST", -5*3600)
	s := NewIntervalScheduler(10*time.Millisecond, loc)

	var calls atomic.Int32
	var zone atomic.Value
	if err := s.Start(context.Background(), func(t time.Time) {
		zone.Store(t.Location().String())
		calls.Add(1)
	}); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if calls.Load() < 3 {
		t.Fatalf("expected at least 3 runs, got %d", calls.Load())
	}
	if zone.Load() != "EST" {
		t.Fatalf("trigger not reported in configured zone: %v", zone.Load())
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	if calls.Load() != after {
		t.Fatalf("job ran after stop")
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestIntervalSchedulerStopsOnContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	s := NewIntervalScheduler(time.Hour, nil)

	ran := make(chan struct{}, 1)
	if err := s.Start(ctx, func(time.Time) { ran <- struct{}{} }); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-ran
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("stop after cancel: %v", err)
	}
}

func TestIntervalSchedulerNilJob(t *testing.T) {
	t.Parallel()

	s := NewIntervalScheduler(0, nil)
	if err := s.Start(context.Background(), nil); err != nil {
		t.Fatalf("nil job should be ignored: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop without start: %v", err)
	}
}
