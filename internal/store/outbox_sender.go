package store

import (
	"context"
	"log/slog"
	"time"
)

// OutboxSendFunc performs the actual delivery of an outbox entry.
type OutboxSendFunc func(ctx context.Context, entry OutboxEntry) error

// OutboxGiveUpFunc is called once an entry exhausted its attempts.
type OutboxGiveUpFunc func(ctx context.Context, entry OutboxEntry, err error)

// DefaultOutboxMaxAttempts bounds delivery retries.
const DefaultOutboxMaxAttempts = 5

// OutboxSender periodically claims due outbox entries and attempts to send them.
type OutboxSender struct {
	repo           OutboxRepo
	sendFunc       OutboxSendFunc
	pollInterval   time.Duration
	staleThreshold time.Duration
	claimLimit     int

	// MaxAttempts is the number of attempts before an entry is failed.
	MaxAttempts int
	// OnGiveUp, when set, is told about entries that were failed.
	OnGiveUp OutboxGiveUpFunc
}

// NewOutboxSender creates a new OutboxSender.
func NewOutboxSender(repo OutboxRepo, sendFunc OutboxSendFunc, pollInterval time.Duration) *OutboxSender {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &OutboxSender{
		repo:           repo,
		sendFunc:       sendFunc,
		pollInterval:   pollInterval,
		staleThreshold: 5 * time.Minute,
		claimLimit:     10,
		MaxAttempts:    DefaultOutboxMaxAttempts,
	}
}

// RecoverStale requeues entries stuck in sending state (crash recovery).
// Should be called once at startup.
func (s *OutboxSender) RecoverStale(ctx context.Context) error {
	staleBefore := time.Now().Add(-s.staleThreshold)
	n, err := s.repo.RequeueStaleOutbox(ctx, staleBefore)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("OutboxSender.RecoverStale: requeued stale entries", "count", n)
	}
	return nil
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (s *OutboxSender) Run(ctx context.Context) {
	slog.Info("OutboxSender.Run: starting outbox sender", "pollInterval", s.pollInterval)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("OutboxSender.Run: stopping")
			return
		case <-ticker.C:
			s.Poll(ctx, time.Now())
		}
	}
}

// Poll claims the entries due at now and attempts each once. It returns the
// number of entries delivered.
func (s *OutboxSender) Poll(ctx context.Context, now time.Time) int {
	entries, err := s.repo.ClaimDueOutbox(ctx, now, s.claimLimit)
	if err != nil {
		slog.Error("OutboxSender.Poll: claim failed", "error", err)
		return 0
	}

	sent := 0
	for _, entry := range entries {
		slog.Debug("OutboxSender.Poll: sending", "id", entry.ID, "messageID", entry.MessageID, "attempt", entry.Attempts+1)
		sendErr := s.sendFunc(ctx, entry)
		if sendErr == nil {
			if err := s.repo.MarkOutboxSent(ctx, entry.ID); err != nil {
				slog.Error("OutboxSender.Poll: mark sent error", "id", entry.ID, "error", err)
			}
			sent++
			continue
		}

		slog.Error("OutboxSender.Poll: send failed", "id", entry.ID, "messageID", entry.MessageID, "error", sendErr)
		final := entry.Attempts+1 >= s.MaxAttempts
		// Exponential backoff: 10s, 20s, 40s, ...
		backoff := time.Duration(10*(1<<entry.Attempts)) * time.Second
		if err := s.repo.FailOutbox(ctx, entry.ID, sendErr.Error(), now.Add(backoff), final); err != nil {
			slog.Error("OutboxSender.Poll: fail entry error", "id", entry.ID, "error", err)
		}
		if final && s.OnGiveUp != nil {
			s.OnGiveUp(ctx, entry, sendErr)
		}
	}
	return sent
}
