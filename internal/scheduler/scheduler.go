// Package scheduler runs Forge's periodic housekeeping: requeueing outbox
// entries whose sender died mid-send and pruning expired rate-limit windows.
//
// Jobs use standard 5-field cron expressions or descriptors such as
// "@every 5m".
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a housekeeping task. It receives the scheduler's context.
type Job func(ctx context.Context) error

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
}

// NewScheduler creates and starts a scheduler whose jobs see ctx. The
// scheduler stops when ctx is done.
func NewScheduler(ctx context.Context) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	c.Start()
	s := &Scheduler{cron: c, ctx: ctx}
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return s
}

// AddJob schedules job under name. Failures are logged, never fatal.
func (s *Scheduler) AddJob(name, expr string, job Job) error {
	_, err := s.cron.AddFunc(expr, func() {
		start := time.Now()
		if err := job(s.ctx); err != nil {
			slog.Error("Scheduler.AddJob: job failed", "job", name, "error", err)
			return
		}
		slog.Debug("Scheduler.AddJob: job done", "job", name, "elapsed", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, expr, err)
	}
	slog.Debug("Scheduler.AddJob: scheduled", "job", name, "expr", expr)
	return nil
}

// Every is AddJob with an "@every d" descriptor.
func (s *Scheduler) Every(name string, d time.Duration, job Job) error {
	return s.AddJob(name, "@every "+d.String(), job)
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
