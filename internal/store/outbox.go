package store

import (
	"context"
	"time"
)

// OutboxStatus represents the lifecycle state of an outbox entry.
type OutboxStatus string

const (
	OutboxStatusQueued  OutboxStatus = "queued"
	OutboxStatusSending OutboxStatus = "sending"
	OutboxStatusSent    OutboxStatus = "sent"
	OutboxStatusFailed  OutboxStatus = "failed"
)

// OutboxEntry is a durable request to deliver one stored outbound message.
type OutboxEntry struct {
	ID            string       `json:"id"`
	MessageID     string       `json:"message_id"`
	Status        OutboxStatus `json:"status"`
	Attempts      int          `json:"attempts"`
	NextAttemptAt *time.Time   `json:"next_attempt_at"`
	LockedAt      *time.Time   `json:"locked_at"`
	LastError     string       `json:"last_error"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// OutboxRepo defines restart-safe persistence for outgoing sends.
type OutboxRepo interface {
	// EnqueueOutbox queues delivery of a message. If a non-terminal entry for
	// the message exists, its ID is returned instead.
	EnqueueOutbox(ctx context.Context, messageID string) (string, error)

	// ClaimDueOutbox marks up to limit queued entries whose next_attempt_at
	// <= now (or is NULL) as sending and returns them.
	ClaimDueOutbox(ctx context.Context, now time.Time, limit int) ([]OutboxEntry, error)

	// MarkOutboxSent marks an entry as delivered.
	MarkOutboxSent(ctx context.Context, id string) error

	// FailOutbox records a failed attempt. The entry is requeued for
	// nextAttemptAt, or marked failed when final is set.
	FailOutbox(ctx context.Context, id, errMsg string, nextAttemptAt time.Time, final bool) error

	// RequeueStaleOutbox resets entries stuck in sending since before
	// staleBefore back to queued (crash recovery).
	RequeueStaleOutbox(ctx context.Context, staleBefore time.Time) (int, error)
}
