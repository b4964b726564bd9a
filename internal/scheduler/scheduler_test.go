package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerAddJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewScheduler(ctx)

	if err := s.AddJob("cron", "* * * * *", func(context.Context) error { return nil }); err != nil {
		t.Errorf("5-field expression: %v", err)
	}
	if err := s.AddJob("descriptor", "@every 5m", func(context.Context) error { return nil }); err != nil {
		t.Errorf("descriptor: %v", err)
	}
	if err := s.AddJob("bad", "every now and then", func(context.Context) error { return nil }); err == nil {
		t.Error("invalid expression should fail")
	}
}

func TestSchedulerEveryRunsJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewScheduler(ctx)

	var runs atomic.Int32
	done := make(chan struct{}, 1)
	err := s.Every("count", time.Second, func(jobCtx context.Context) error {
		if jobCtx != ctx {
			t.Error("job should receive the scheduler context")
		}
		runs.Add(1)
		select {
		case done <- struct{}{}:
		default:
		}
		return errors.New("logged, not fatal")
	})
	if err != nil {
		t.Fatalf("Every: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job never ran")
	}
	if runs.Load() < 1 {
		t.Errorf("runs = %d", runs.Load())
	}
}

func TestSchedulerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(ctx)
	cancel()
	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}
