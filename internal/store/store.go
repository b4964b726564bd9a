// Package store provides storage backends for Forge.
//
// It persists clients, their channel connections and knowledge documents,
// leads, conversations, messages and the outbound delivery outbox. Three
// backends implement Store: an in-memory store for development and tests,
// SQLite (the default persistent store) and PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/growthforge/forge/internal/models"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence contract used by the pipeline and the API.
type Store interface {
	SaveClient(ctx context.Context, c *models.Client) error
	GetClient(ctx context.Context, id string) (*models.Client, error)
	SetAgentActive(ctx context.Context, clientID string, active bool) error

	// SaveConnection upserts the connection for (client, channel).
	SaveConnection(ctx context.Context, c *models.Connection) error
	// ConnectionByAccount resolves the webhook routing key of a channel.
	ConnectionByAccount(ctx context.Context, channel models.Channel, accountID string) (*models.Connection, error)
	ConnectionForClient(ctx context.Context, clientID string, channel models.Channel) (*models.Connection, error)

	AddDocument(ctx context.Context, d *models.Document) error
	DeleteDocument(ctx context.Context, clientID, docID string) error
	Documents(ctx context.Context, clientID string) ([]models.Document, error)

	// FindOrCreateLead returns the lead with the same client, channel and
	// external id as l, creating it from l when absent. The bool reports
	// whether the lead was created.
	FindOrCreateLead(ctx context.Context, l *models.Lead) (*models.Lead, bool, error)
	GetLead(ctx context.Context, id string) (*models.Lead, error)
	UpdateLeadState(ctx context.Context, id string, state models.LeadState) error
	SaveLeadScore(ctx context.Context, l *models.Lead) error
	// ListLeads returns a client's leads whose state is in states, or not in
	// states when exclude is set, most recently updated first.
	ListLeads(ctx context.Context, clientID string, states []models.LeadState, exclude bool) ([]models.Lead, error)

	FindOrCreateConversation(ctx context.Context, clientID, leadID string, channel models.Channel) (*models.Conversation, error)
	ConversationForLead(ctx context.Context, leadID string) (*models.Conversation, error)
	TouchConversation(ctx context.Context, id, lastMessage string, sender models.SenderType) error

	// RecordInbound stores an inbound message unless one with the same
	// client, channel and external message id exists. It returns false on
	// a duplicate.
	RecordInbound(ctx context.Context, m *models.Message) (bool, error)
	AddMessage(ctx context.Context, m *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	// UpdateMessageStatus sets the status of the messages matching the
	// external id and returns how many were changed.
	UpdateMessageStatus(ctx context.Context, clientID string, channel models.Channel, externalID string, status models.MessageStatus) (int, error)
	// SetMessageDelivery records the provider id and status of an outbound message.
	SetMessageDelivery(ctx context.Context, id, externalID string, status models.MessageStatus) error
	// Messages returns the conversation in chronological order.
	Messages(ctx context.Context, conversationID string) ([]models.Message, error)
	// RecentMessages returns the last n messages in chronological order.
	RecentMessages(ctx context.Context, conversationID string, n int) ([]models.Message, error)

	OutboxRepo

	Close() error
}

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Opts holds store configuration.
type Opts struct {
	Driver string
	DSN    string
}

// Option configures a store.
type Option func(*Opts)

// WithSQLiteDSN selects the SQLite backend with the given database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.Driver = DriverSQLite
		o.DSN = dsn
	}
}

// WithPostgresDSN selects the PostgreSQL backend.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.Driver = DriverPostgres
		o.DSN = dsn
	}
}

// DetectDSNType reports "postgres" for PostgreSQL URLs and key/value
// connection strings, and "sqlite3" for anything else (a file path).
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DriverPostgres
	}
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") || strings.Contains(lower, "user=") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Open creates the store selected by opts. Without a DSN it returns an
// in-memory store.
func Open(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch cfg.Driver {
	case DriverPostgres:
		return NewPostgresStore(opts...)
	case DriverSQLite:
		return NewSQLiteStore(opts...)
	case "", DriverMemory:
		slog.Info("Store.Open: using in-memory store; data is lost on restart")
		return NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// now is the store clock, truncated so timestamps survive a database round
// trip unchanged.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
