package store

import (
	"context"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/growthforge/forge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newPostgresStore(db), mock
}

func TestPostgresRecordInboundUsesOnConflict(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO messages (`+messageColumns+`) VALUES ($1, $2, $3`) + `.*\$13\) ON CONFLICT DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.RecordInbound(context.Background(), &models.Message{
		ConversationID: "conv", LeadID: "lead", ClientID: "client", Channel: models.ChannelWhatsApp,
		ExternalMessageID: "wamid.1", Direction: models.DirectionIn, SenderType: models.SenderLead, Text: "hola",
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateMessageStatus(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE messages SET status = $1 WHERE client_id = $2 AND channel = $3 AND external_message_id = $4`)).
		WithArgs(models.MessageStatusDelivered, "client", models.ChannelWhatsApp, "wamid.1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := s.UpdateMessageStatus(context.Background(), "client", models.ChannelWhatsApp, "wamid.1", models.MessageStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateLeadStateNotFound(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE leads SET state = $1, updated_at = $2 WHERE id = $3`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateLeadState(context.Background(), "missing", models.LeadStateDiscarded)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClaimDueOutboxSkipsLocked(t *testing.T) {
	s, mock := newMockPostgres(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "message_id", "status", "attempts", "next_attempt_at", "locked_at", "last_error", "created_at", "updated_at"}).
		AddRow("ob-1", "msg-1", "sending", 0, nil, at, nil, at, at)
	mock.ExpectQuery(`UPDATE outbox SET status = 'sending'.*FOR UPDATE SKIP LOCKED.*RETURNING`).
		WithArgs(at, 10).
		WillReturnRows(rows)

	entries, err := s.ClaimDueOutbox(context.Background(), at, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "msg-1", entries[0].MessageID)
	assert.Equal(t, OutboxStatusSending, entries[0].Status)
	assert.Nil(t, entries[0].NextAttemptAt)
	require.NotNil(t, entries[0].LockedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "a = $1 AND b IN ($2, $3)", postgresDialect.rebind("a = ? AND b IN (?, ?)"))
	assert.Equal(t, "a = ?", sqliteDialect.rebind("a = ?"))
}

// TestPostgresStore runs the store contract against a live database when
// DATABASE_URL is set.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("env DATABASE_URL not set")
	}
	pg, err := NewPostgresStore(WithPostgresDSN(dsn))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer pg.Close()

	ctx := context.Background()
	c := &models.Client{Name: "Acme"}
	require.NoError(t, pg.SaveClient(ctx, c))
	got, err := pg.GetClient(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
}
