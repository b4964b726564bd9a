package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/growthforge/forge/internal/models"
)

// dialect captures the SQL differences between SQLite and PostgreSQL.
type dialect struct {
	name string
	// numbered placeholders ($1, $2, ...) instead of ?.
	numbered bool
	// insertIgnore prefixes an insert that silently skips unique conflicts.
	insertIgnore string
	// ignoreSuffix terminates such an insert.
	ignoreSuffix string
}

var (
	sqliteDialect   = dialect{name: "SQLiteStore", insertIgnore: "INSERT OR IGNORE INTO"}
	postgresDialect = dialect{name: "PostgresStore", numbered: true, insertIgnore: "INSERT INTO", ignoreSuffix: " ON CONFLICT DO NOTHING"}
)

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqlStore implements Store on database/sql; SQLiteStore and PostgresStore
// embed it and add their constructors and dialect-specific queries.
type sqlStore struct {
	db *sql.DB
	d  dialect
}

func (s *sqlStore) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.d.rebind(query), args...)
}

func (s *sqlStore) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.d.rebind(query), args...)
}

func (s *sqlStore) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.d.rebind(query), args...)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected check failed: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug(s.d.name + ".Close: closing database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error(s.d.name+".Close: failed to close database", "error", err)
	}
	return err
}

const clientColumns = `id, name, niche, language, persona_name, tone, treatment, sales_intensity, booking_url, agent_active, created_at, updated_at`

func (s *sqlStore) SaveClient(ctx context.Context, c *models.Client) error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.ApplyDefaults()
	ts := now()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = ts
	}
	c.UpdatedAt = ts

	_, err := s.exec(ctx, `INSERT INTO clients (`+clientColumns+`) VALUES (`+placeholders(12)+`)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, niche = excluded.niche, language = excluded.language,
		persona_name = excluded.persona_name, tone = excluded.tone, treatment = excluded.treatment,
		sales_intensity = excluded.sales_intensity, booking_url = excluded.booking_url,
		agent_active = excluded.agent_active, updated_at = excluded.updated_at`,
		c.ID, c.Name, nilIfEmpty(c.Niche), c.Language, c.PersonaName, c.Tone, c.Treatment, c.SalesIntensity,
		nilIfEmpty(c.BookingURL), c.AgentActive, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		slog.Error(s.d.name+".SaveClient failed", "error", err, "clientID", c.ID)
		return fmt.Errorf("failed to save client %s: %w", c.ID, err)
	}
	slog.Debug(s.d.name+".SaveClient succeeded", "clientID", c.ID)
	return nil
}

func (s *sqlStore) GetClient(ctx context.Context, id string) (*models.Client, error) {
	var c models.Client
	var niche, bookingURL sql.NullString
	err := s.queryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id).Scan(
		&c.ID, &c.Name, &niche, &c.Language, &c.PersonaName, &c.Tone, &c.Treatment, &c.SalesIntensity,
		&bookingURL, &c.AgentActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error(s.d.name+".GetClient failed", "error", err, "clientID", id)
		return nil, fmt.Errorf("failed to get client %s: %w", id, err)
	}
	c.Niche = niche.String
	c.BookingURL = bookingURL.String
	return &c, nil
}

func (s *sqlStore) SetAgentActive(ctx context.Context, clientID string, active bool) error {
	res, err := s.exec(ctx, `UPDATE clients SET agent_active = ?, updated_at = ? WHERE id = ?`, active, now(), clientID)
	if err != nil {
		return fmt.Errorf("failed to set agent state for %s: %w", clientID, err)
	}
	return affectedOrNotFound(res)
}

const connectionColumns = `id, client_id, channel, account_id, access_token, status, created_at, updated_at`

func scanConnection(row interface{ Scan(...interface{}) error }) (*models.Connection, error) {
	var c models.Connection
	var token sql.NullString
	if err := row.Scan(&c.ID, &c.ClientID, &c.Channel, &c.AccountID, &token, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.AccessToken = token.String
	return &c, nil
}

func (s *sqlStore) SaveConnection(ctx context.Context, c *models.Connection) error {
	ts := now()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = models.ConnectionConnected
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = ts
	}
	c.UpdatedAt = ts

	_, err := s.exec(ctx, `INSERT INTO connections (`+connectionColumns+`) VALUES (`+placeholders(8)+`)
		ON CONFLICT (client_id, channel) DO UPDATE SET account_id = excluded.account_id,
		access_token = excluded.access_token, status = excluded.status, updated_at = excluded.updated_at`,
		c.ID, c.ClientID, c.Channel, c.AccountID, nilIfEmpty(c.AccessToken), c.Status, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		slog.Error(s.d.name+".SaveConnection failed", "error", err, "clientID", c.ClientID, "channel", c.Channel)
		return fmt.Errorf("failed to save %s connection for %s: %w", c.Channel, c.ClientID, err)
	}

	stored, err := s.ConnectionForClient(ctx, c.ClientID, c.Channel)
	if err != nil {
		return err
	}
	*c = *stored
	slog.Debug(s.d.name+".SaveConnection succeeded", "clientID", c.ClientID, "channel", c.Channel)
	return nil
}

func (s *sqlStore) ConnectionByAccount(ctx context.Context, channel models.Channel, accountID string) (*models.Connection, error) {
	c, err := scanConnection(s.queryRow(ctx, `SELECT `+connectionColumns+` FROM connections
		WHERE channel = ? AND account_id = ? ORDER BY updated_at DESC LIMIT 1`, channel, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s account %s: %w", channel, accountID, err)
	}
	return c, nil
}

func (s *sqlStore) ConnectionForClient(ctx context.Context, clientID string, channel models.Channel) (*models.Connection, error) {
	c, err := scanConnection(s.queryRow(ctx, `SELECT `+connectionColumns+` FROM connections
		WHERE client_id = ? AND channel = ?`, clientID, channel))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s connection for %s: %w", channel, clientID, err)
	}
	return c, nil
}

func (s *sqlStore) AddDocument(ctx context.Context, d *models.Document) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.DocType == "" {
		d.DocType = "text"
	}
	d.CreatedAt = now()
	_, err := s.exec(ctx, `INSERT INTO documents (id, client_id, file_name, doc_type, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.ClientID, d.FileName, d.DocType, d.Content, d.CreatedAt)
	if err != nil {
		slog.Error(s.d.name+".AddDocument failed", "error", err, "clientID", d.ClientID)
		return fmt.Errorf("failed to add document for %s: %w", d.ClientID, err)
	}
	return nil
}

func (s *sqlStore) DeleteDocument(ctx context.Context, clientID, docID string) error {
	res, err := s.exec(ctx, `DELETE FROM documents WHERE id = ? AND client_id = ?`, docID, clientID)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", docID, err)
	}
	return affectedOrNotFound(res)
}

func (s *sqlStore) Documents(ctx context.Context, clientID string) ([]models.Document, error) {
	rows, err := s.query(ctx, `SELECT id, client_id, file_name, doc_type, content, created_at
		FROM documents WHERE client_id = ? ORDER BY created_at ASC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.ClientID, &d.FileName, &d.DocType, &d.Content, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate document rows: %w", err)
	}
	return docs, nil
}

const leadColumns = `id, client_id, channel, ig_user_id, wa_user_id, phone_e164, username, name, state, followers, following, score, segment, created_at, updated_at`

func scanLead(row interface{ Scan(...interface{}) error }) (*models.Lead, error) {
	var l models.Lead
	var igUserID, waUserID, phone, username, name, segment sql.NullString
	err := row.Scan(&l.ID, &l.ClientID, &l.Channel, &igUserID, &waUserID, &phone, &username, &name,
		&l.State, &l.Followers, &l.Following, &l.Score, &segment, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.IGUserID = igUserID.String
	l.WAUserID = waUserID.String
	l.PhoneE164 = phone.String
	l.Username = username.String
	l.Name = name.String
	l.Segment = segment.String
	return &l, nil
}

func (s *sqlStore) FindOrCreateLead(ctx context.Context, l *models.Lead) (*models.Lead, bool, error) {
	key := l.ExternalID()
	if key == "" {
		return nil, false, fmt.Errorf("lead for client %s has no %s identity", l.ClientID, l.Channel)
	}
	ts := now()
	if l.State == "" {
		l.State = models.LeadStateNew
	}
	res, err := s.exec(ctx, s.d.insertIgnore+` leads (id, client_id, channel, external_key, ig_user_id, wa_user_id, phone_e164,
		username, name, state, followers, following, score, segment, created_at, updated_at)
		VALUES (`+placeholders(16)+`)`+s.d.ignoreSuffix,
		uuid.NewString(), l.ClientID, l.Channel, key, nilIfEmpty(l.IGUserID), nilIfEmpty(l.WAUserID), nilIfEmpty(l.PhoneE164),
		nilIfEmpty(l.Username), nilIfEmpty(l.Name), l.State, l.Followers, l.Following, l.Score, nilIfEmpty(l.Segment), ts, ts)
	if err != nil {
		slog.Error(s.d.name+".FindOrCreateLead insert failed", "error", err, "clientID", l.ClientID)
		return nil, false, fmt.Errorf("failed to create lead: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("lead rows affected check failed: %w", err)
	}

	lead, err := scanLead(s.queryRow(ctx, `SELECT `+leadColumns+` FROM leads
		WHERE client_id = ? AND channel = ? AND external_key = ?`, l.ClientID, l.Channel, key))
	if err != nil {
		return nil, false, fmt.Errorf("failed to load lead: %w", err)
	}
	return lead, n > 0, nil
}

func (s *sqlStore) GetLead(ctx context.Context, id string) (*models.Lead, error) {
	l, err := scanLead(s.queryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lead %s: %w", id, err)
	}
	return l, nil
}

func (s *sqlStore) UpdateLeadState(ctx context.Context, id string, state models.LeadState) error {
	res, err := s.exec(ctx, `UPDATE leads SET state = ?, updated_at = ? WHERE id = ?`, state, now(), id)
	if err != nil {
		slog.Error(s.d.name+".UpdateLeadState failed", "error", err, "leadID", id)
		return fmt.Errorf("failed to update lead %s: %w", id, err)
	}
	return affectedOrNotFound(res)
}

func (s *sqlStore) SaveLeadScore(ctx context.Context, l *models.Lead) error {
	l.UpdatedAt = now()
	res, err := s.exec(ctx, `UPDATE leads SET followers = ?, following = ?, score = ?, segment = ?, state = ?, updated_at = ? WHERE id = ?`,
		l.Followers, l.Following, l.Score, nilIfEmpty(l.Segment), l.State, l.UpdatedAt, l.ID)
	if err != nil {
		return fmt.Errorf("failed to score lead %s: %w", l.ID, err)
	}
	return affectedOrNotFound(res)
}

func (s *sqlStore) ListLeads(ctx context.Context, clientID string, states []models.LeadState, exclude bool) ([]models.Lead, error) {
	q := `SELECT ` + leadColumns + ` FROM leads WHERE client_id = ?`
	args := []interface{}{clientID}
	if len(states) > 0 {
		op := "IN"
		if exclude {
			op = "NOT IN"
		}
		q += ` AND state ` + op + ` (` + placeholders(len(states)) + `)`
		for _, st := range states {
			args = append(args, st)
		}
	}
	q += ` ORDER BY updated_at DESC`

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	var leads []models.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lead row: %w", err)
		}
		leads = append(leads, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lead rows: %w", err)
	}
	return leads, nil
}

const conversationColumns = `id, client_id, lead_id, channel, last_message, last_sender_type, created_at, updated_at`

func scanConversation(row interface{ Scan(...interface{}) error }) (*models.Conversation, error) {
	var c models.Conversation
	var last, sender sql.NullString
	if err := row.Scan(&c.ID, &c.ClientID, &c.LeadID, &c.Channel, &last, &sender, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.LastMessage = last.String
	c.LastSenderType = models.SenderType(sender.String)
	return &c, nil
}

func (s *sqlStore) FindOrCreateConversation(ctx context.Context, clientID, leadID string, channel models.Channel) (*models.Conversation, error) {
	ts := now()
	_, err := s.exec(ctx, s.d.insertIgnore+` conversations (`+conversationColumns+`) VALUES (`+placeholders(8)+`)`+s.d.ignoreSuffix,
		uuid.NewString(), clientID, leadID, channel, nil, nil, ts, ts)
	if err != nil {
		slog.Error(s.d.name+".FindOrCreateConversation insert failed", "error", err, "leadID", leadID)
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	c, err := scanConversation(s.queryRow(ctx, `SELECT `+conversationColumns+` FROM conversations
		WHERE client_id = ? AND lead_id = ? AND channel = ?`, clientID, leadID, channel))
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return c, nil
}

func (s *sqlStore) ConversationForLead(ctx context.Context, leadID string) (*models.Conversation, error) {
	c, err := scanConversation(s.queryRow(ctx, `SELECT `+conversationColumns+` FROM conversations
		WHERE lead_id = ? ORDER BY updated_at DESC LIMIT 1`, leadID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation for lead %s: %w", leadID, err)
	}
	return c, nil
}

func (s *sqlStore) TouchConversation(ctx context.Context, id, lastMessage string, sender models.SenderType) error {
	res, err := s.exec(ctx, `UPDATE conversations SET last_message = ?, last_sender_type = ?, updated_at = ? WHERE id = ?`,
		lastMessage, sender, now(), id)
	if err != nil {
		return fmt.Errorf("failed to touch conversation %s: %w", id, err)
	}
	return affectedOrNotFound(res)
}

const messageColumns = `id, conversation_id, lead_id, client_id, channel, external_message_id, direction, sender_type, text_content, message_type, status, metadata, sent_at`

func scanMessage(row interface{ Scan(...interface{}) error }) (*models.Message, error) {
	var m models.Message
	var externalID, metadata sql.NullString
	err := row.Scan(&m.ID, &m.ConversationID, &m.LeadID, &m.ClientID, &m.Channel, &externalID, &m.Direction,
		&m.SenderType, &m.Text, &m.MessageType, &m.Status, &metadata, &m.Timestamp)
	if err != nil {
		return nil, err
	}
	m.ExternalMessageID = externalID.String
	m.Metadata = metadata.String
	return &m, nil
}

func prepareMessage(m *models.Message) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.MessageType == "" {
		m.MessageType = "text"
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = now()
	}
}

func (s *sqlStore) insertMessage(ctx context.Context, prefix, suffix string, m *models.Message) (sql.Result, error) {
	prepareMessage(m)
	return s.exec(ctx, prefix+` messages (`+messageColumns+`) VALUES (`+placeholders(13)+`)`+suffix,
		m.ID, m.ConversationID, m.LeadID, m.ClientID, m.Channel, nilIfEmpty(m.ExternalMessageID), m.Direction,
		m.SenderType, m.Text, m.MessageType, m.Status, nilIfEmpty(m.Metadata), m.Timestamp)
}

func (s *sqlStore) RecordInbound(ctx context.Context, m *models.Message) (bool, error) {
	res, err := s.insertMessage(ctx, s.d.insertIgnore, s.d.ignoreSuffix, m)
	if err != nil {
		slog.Error(s.d.name+".RecordInbound failed", "error", err, "clientID", m.ClientID, "externalMessageID", m.ExternalMessageID)
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	if n == 0 {
		slog.Debug(s.d.name+".RecordInbound: duplicate", "clientID", m.ClientID, "externalMessageID", m.ExternalMessageID)
	}
	return n > 0, nil
}

func (s *sqlStore) AddMessage(ctx context.Context, m *models.Message) error {
	if _, err := s.insertMessage(ctx, "INSERT INTO", "", m); err != nil {
		slog.Error(s.d.name+".AddMessage failed", "error", err, "conversationID", m.ConversationID)
		return fmt.Errorf("failed to add message: %w", err)
	}
	return nil
}

func (s *sqlStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	m, err := scanMessage(s.queryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return m, nil
}

func (s *sqlStore) UpdateMessageStatus(ctx context.Context, clientID string, channel models.Channel, externalID string, status models.MessageStatus) (int, error) {
	res, err := s.exec(ctx, `UPDATE messages SET status = ? WHERE client_id = ? AND channel = ? AND external_message_id = ?`,
		status, clientID, channel, externalID)
	if err != nil {
		return 0, fmt.Errorf("failed to update status of %s: %w", externalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("status rows affected check failed: %w", err)
	}
	return int(n), nil
}

func (s *sqlStore) SetMessageDelivery(ctx context.Context, id, externalID string, status models.MessageStatus) error {
	res, err := s.exec(ctx, `UPDATE messages SET external_message_id = COALESCE(?, external_message_id), status = ? WHERE id = ?`,
		nilIfEmpty(externalID), status, id)
	if err != nil {
		return fmt.Errorf("failed to record delivery of %s: %w", id, err)
	}
	return affectedOrNotFound(res)
}

func (s *sqlStore) scanMessages(rows *sql.Rows) ([]models.Message, error) {
	defer rows.Close()
	var msgs []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return msgs, nil
}

func (s *sqlStore) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := s.query(ctx, `SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY sent_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	return s.scanMessages(rows)
}

func (s *sqlStore) RecentMessages(ctx context.Context, conversationID string, n int) ([]models.Message, error) {
	rows, err := s.query(ctx, `SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY sent_at DESC LIMIT ?`, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	msgs, err := s.scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

const outboxColumns = `id, message_id, status, attempts, next_attempt_at, locked_at, last_error, created_at, updated_at`

func scanOutboxEntry(row interface{ Scan(...interface{}) error }) (OutboxEntry, error) {
	var e OutboxEntry
	var lastError sql.NullString
	var nextAttemptAt, lockedAt sql.NullTime
	err := row.Scan(&e.ID, &e.MessageID, &e.Status, &e.Attempts, &nextAttemptAt, &lockedAt, &lastError, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return e, fmt.Errorf("scan outbox entry failed: %w", err)
	}
	e.LastError = lastError.String
	if nextAttemptAt.Valid {
		e.NextAttemptAt = &nextAttemptAt.Time
	}
	if lockedAt.Valid {
		e.LockedAt = &lockedAt.Time
	}
	return e, nil
}

func (s *sqlStore) EnqueueOutbox(ctx context.Context, messageID string) (string, error) {
	var existingID string
	err := s.queryRow(ctx, `SELECT id FROM outbox WHERE message_id = ? AND status IN ('queued', 'sending')`, messageID).Scan(&existingID)
	if err == nil {
		slog.Debug(s.d.name+".EnqueueOutbox: dedupe hit", "messageID", messageID, "existingID", existingID)
		return existingID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("outbox dedupe check failed: %w", err)
	}

	id := uuid.NewString()
	ts := now()
	_, err = s.exec(ctx, `INSERT INTO outbox (id, message_id, status, attempts, created_at, updated_at) VALUES (?, ?, 'queued', 0, ?, ?)`,
		id, messageID, ts, ts)
	if err != nil {
		return "", fmt.Errorf("enqueue outbox entry failed: %w", err)
	}
	slog.Debug(s.d.name+".EnqueueOutbox", "id", id, "messageID", messageID)
	return id, nil
}

// ClaimDueOutbox selects then locks due entries. PostgresStore overrides it
// with a single UPDATE .. RETURNING.
func (s *sqlStore) ClaimDueOutbox(ctx context.Context, at time.Time, limit int) ([]OutboxEntry, error) {
	rows, err := s.query(ctx, `SELECT `+outboxColumns+` FROM outbox
		WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		ORDER BY created_at ASC LIMIT ?`, at.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("claim due outbox entries failed: %w", err)
	}
	var entries []OutboxEntry
	for rows.Next() {
		e, err := scanOutboxEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("claim outbox iteration failed: %w", err)
	}
	rows.Close()

	lockedAt := at.UTC()
	for i := range entries {
		if _, err := s.exec(ctx, `UPDATE outbox SET status = 'sending', locked_at = ?, updated_at = ? WHERE id = ?`,
			lockedAt, lockedAt, entries[i].ID); err != nil {
			return nil, fmt.Errorf("mark outbox sending failed: %w", err)
		}
		entries[i].Status = OutboxStatusSending
		entries[i].LockedAt = &lockedAt
	}
	return entries, nil
}

func (s *sqlStore) MarkOutboxSent(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, `UPDATE outbox SET status = 'sent', updated_at = ? WHERE id = ?`, now(), id); err != nil {
		return fmt.Errorf("mark outbox sent failed: %w", err)
	}
	return nil
}

func (s *sqlStore) FailOutbox(ctx context.Context, id, errMsg string, nextAttemptAt time.Time, final bool) error {
	status := OutboxStatusQueued
	if final {
		status = OutboxStatusFailed
	}
	_, err := s.exec(ctx, `UPDATE outbox SET status = ?, attempts = attempts + 1, last_error = ?, next_attempt_at = ?,
		locked_at = NULL, updated_at = ? WHERE id = ?`, status, errMsg, nextAttemptAt.UTC(), now(), id)
	if err != nil {
		return fmt.Errorf("fail outbox entry failed: %w", err)
	}
	return nil
}

func (s *sqlStore) RequeueStaleOutbox(ctx context.Context, staleBefore time.Time) (int, error) {
	res, err := s.exec(ctx, `UPDATE outbox SET status = 'queued', locked_at = NULL, updated_at = ?
		WHERE status = 'sending' AND locked_at < ?`, now(), staleBefore.UTC())
	if err != nil {
		return 0, fmt.Errorf("requeue stale outbox entries failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		slog.Info(s.d.name+".RequeueStaleOutbox", "requeued", n)
	}
	return int(n), nil
}
