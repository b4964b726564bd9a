package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/growthforge/forge/internal/models"
)

// InMemoryStore keeps everything in process memory. It is safe for
// concurrent use and loses its data on restart.
type InMemoryStore struct {
	mu            sync.RWMutex
	clients       map[string]models.Client
	connections   map[string]models.Connection
	documents     map[string]models.Document
	documentOrder []string
	leads         map[string]models.Lead
	conversations map[string]models.Conversation
	messages      map[string]models.Message
	messageOrder  []string
	outbox        map[string]OutboxEntry
	outboxOrder   []string
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		clients:       make(map[string]models.Client),
		connections:   make(map[string]models.Connection),
		documents:     make(map[string]models.Document),
		leads:         make(map[string]models.Lead),
		conversations: make(map[string]models.Conversation),
		messages:      make(map[string]models.Message),
		outbox:        make(map[string]OutboxEntry),
	}
}

func (s *InMemoryStore) SaveClient(_ context.Context, c *models.Client) error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.ApplyDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := now()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if existing, ok := s.clients[c.ID]; ok {
		c.CreatedAt = existing.CreatedAt
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = ts
	}
	c.UpdatedAt = ts
	s.clients[c.ID] = *c
	return nil
}

func (s *InMemoryStore) GetClient(_ context.Context, id string) (*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *InMemoryStore) SetAgentActive(_ context.Context, clientID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[clientID]
	if !ok {
		return ErrNotFound
	}
	c.AgentActive = active
	c.UpdatedAt = now()
	s.clients[clientID] = c
	return nil
}

func (s *InMemoryStore) SaveConnection(_ context.Context, c *models.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := now()
	if c.Status == "" {
		c.Status = models.ConnectionConnected
	}
	for id, existing := range s.connections {
		if existing.ClientID == c.ClientID && existing.Channel == c.Channel {
			c.ID = id
			c.CreatedAt = existing.CreatedAt
			c.UpdatedAt = ts
			s.connections[id] = *c
			return nil
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = ts
	c.UpdatedAt = ts
	s.connections[c.ID] = *c
	return nil
}

func (s *InMemoryStore) ConnectionByAccount(_ context.Context, channel models.Channel, accountID string) (*models.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.Connection
	for _, c := range s.connections {
		if c.Channel == channel && c.AccountID == accountID {
			if found == nil || c.UpdatedAt.After(found.UpdatedAt) {
				c := c
				found = &c
			}
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *InMemoryStore) ConnectionForClient(_ context.Context, clientID string, channel models.Channel) (*models.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.connections {
		if c.ClientID == clientID && c.Channel == channel {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) AddDocument(_ context.Context, d *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[d.ClientID]; !ok {
		return fmt.Errorf("client %s: %w", d.ClientID, ErrNotFound)
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.DocType == "" {
		d.DocType = "text"
	}
	d.CreatedAt = now()
	s.documents[d.ID] = *d
	s.documentOrder = append(s.documentOrder, d.ID)
	return nil
}

func (s *InMemoryStore) DeleteDocument(_ context.Context, clientID, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[docID]
	if !ok || d.ClientID != clientID {
		return ErrNotFound
	}
	delete(s.documents, docID)
	return nil
}

func (s *InMemoryStore) Documents(_ context.Context, clientID string) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []models.Document
	for _, id := range s.documentOrder {
		if d, ok := s.documents[id]; ok && d.ClientID == clientID {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

func (s *InMemoryStore) FindOrCreateLead(_ context.Context, l *models.Lead) (*models.Lead, bool, error) {
	key := l.ExternalID()
	if key == "" {
		return nil, false, fmt.Errorf("lead for client %s has no %s identity", l.ClientID, l.Channel)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.leads {
		if existing.ClientID == l.ClientID && existing.Channel == l.Channel && existing.ExternalID() == key {
			return &existing, false, nil
		}
	}
	lead := *l
	lead.ID = uuid.NewString()
	if lead.State == "" {
		lead.State = models.LeadStateNew
	}
	lead.CreatedAt = now()
	lead.UpdatedAt = lead.CreatedAt
	s.leads[lead.ID] = lead
	return &lead, true, nil
}

func (s *InMemoryStore) GetLead(_ context.Context, id string) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leads[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (s *InMemoryStore) UpdateLeadState(_ context.Context, id string, state models.LeadState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return ErrNotFound
	}
	l.State = state
	l.UpdatedAt = now()
	s.leads[id] = l
	return nil
}

func (s *InMemoryStore) SaveLeadScore(_ context.Context, l *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.leads[l.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Followers = l.Followers
	stored.Following = l.Following
	stored.Score = l.Score
	stored.Segment = l.Segment
	stored.State = l.State
	stored.UpdatedAt = now()
	l.UpdatedAt = stored.UpdatedAt
	s.leads[l.ID] = stored
	return nil
}

func (s *InMemoryStore) ListLeads(_ context.Context, clientID string, states []models.LeadState, exclude bool) ([]models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var leads []models.Lead
	for _, l := range s.leads {
		if l.ClientID != clientID {
			continue
		}
		if len(states) > 0 && containsState(states, l.State) == exclude {
			continue
		}
		leads = append(leads, l)
	}
	sort.SliceStable(leads, func(i, j int) bool { return leads[i].UpdatedAt.After(leads[j].UpdatedAt) })
	return leads, nil
}

func containsState(states []models.LeadState, st models.LeadState) bool {
	for _, s := range states {
		if s == st {
			return true
		}
	}
	return false
}

func (s *InMemoryStore) FindOrCreateConversation(_ context.Context, clientID, leadID string, channel models.Channel) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.ClientID == clientID && c.LeadID == leadID && c.Channel == channel {
			return &c, nil
		}
	}
	ts := now()
	c := models.Conversation{ID: uuid.NewString(), ClientID: clientID, LeadID: leadID, Channel: channel, CreatedAt: ts, UpdatedAt: ts}
	s.conversations[c.ID] = c
	return &c, nil
}

func (s *InMemoryStore) ConversationForLead(_ context.Context, leadID string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.Conversation
	for _, c := range s.conversations {
		if c.LeadID == leadID && (found == nil || c.UpdatedAt.After(found.UpdatedAt)) {
			c := c
			found = &c
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *InMemoryStore) TouchConversation(_ context.Context, id, lastMessage string, sender models.SenderType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	c.LastMessage = lastMessage
	c.LastSenderType = sender
	c.UpdatedAt = now()
	s.conversations[id] = c
	return nil
}

func (s *InMemoryStore) RecordInbound(_ context.Context, m *models.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ExternalMessageID != "" {
		for _, existing := range s.messages {
			if existing.ClientID == m.ClientID && existing.Channel == m.Channel && existing.ExternalMessageID == m.ExternalMessageID {
				return false, nil
			}
		}
	}
	s.insertMessageLocked(m)
	return true, nil
}

func (s *InMemoryStore) AddMessage(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertMessageLocked(m)
	return nil
}

func (s *InMemoryStore) insertMessageLocked(m *models.Message) {
	prepareMessage(m)
	s.messages[m.ID] = *m
	s.messageOrder = append(s.messageOrder, m.ID)
}

func (s *InMemoryStore) GetMessage(_ context.Context, id string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *InMemoryStore) UpdateMessageStatus(_ context.Context, clientID string, channel models.Channel, externalID string, status models.MessageStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, m := range s.messages {
		if m.ClientID == clientID && m.Channel == channel && m.ExternalMessageID == externalID {
			m.Status = status
			s.messages[id] = m
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) SetMessageDelivery(_ context.Context, id, externalID string, status models.MessageStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	if externalID != "" {
		m.ExternalMessageID = externalID
	}
	m.Status = status
	s.messages[id] = m
	return nil
}

// Messages returns messages in insertion order, which is chronological for
// a single process.
func (s *InMemoryStore) Messages(_ context.Context, conversationID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var msgs []models.Message
	for _, id := range s.messageOrder {
		if m := s.messages[id]; m.ConversationID == conversationID {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

func (s *InMemoryStore) RecentMessages(ctx context.Context, conversationID string, n int) ([]models.Message, error) {
	msgs, err := s.Messages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs, nil
}

func (s *InMemoryStore) EnqueueOutbox(_ context.Context, messageID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.outboxOrder {
		e := s.outbox[id]
		if e.MessageID == messageID && (e.Status == OutboxStatusQueued || e.Status == OutboxStatusSending) {
			return e.ID, nil
		}
	}
	ts := now()
	e := OutboxEntry{ID: uuid.NewString(), MessageID: messageID, Status: OutboxStatusQueued, CreatedAt: ts, UpdatedAt: ts}
	s.outbox[e.ID] = e
	s.outboxOrder = append(s.outboxOrder, e.ID)
	return e.ID, nil
}

func (s *InMemoryStore) ClaimDueOutbox(_ context.Context, at time.Time, limit int) ([]OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var claimed []OutboxEntry
	for _, id := range s.outboxOrder {
		if len(claimed) >= limit {
			break
		}
		e := s.outbox[id]
		if e.Status != OutboxStatusQueued || (e.NextAttemptAt != nil && e.NextAttemptAt.After(at)) {
			continue
		}
		lockedAt := at
		e.Status = OutboxStatusSending
		e.LockedAt = &lockedAt
		e.UpdatedAt = at
		s.outbox[id] = e
		claimed = append(claimed, e)
	}
	return claimed, nil
}

func (s *InMemoryStore) MarkOutboxSent(_ context.Context, id string) error {
	return s.updateOutbox(id, func(e *OutboxEntry) { e.Status = OutboxStatusSent })
}

func (s *InMemoryStore) FailOutbox(_ context.Context, id, errMsg string, nextAttemptAt time.Time, final bool) error {
	return s.updateOutbox(id, func(e *OutboxEntry) {
		e.Status = OutboxStatusQueued
		if final {
			e.Status = OutboxStatusFailed
		}
		e.Attempts++
		e.LastError = errMsg
		e.NextAttemptAt = &nextAttemptAt
		e.LockedAt = nil
	})
}

func (s *InMemoryStore) RequeueStaleOutbox(_ context.Context, staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.outbox {
		if e.Status == OutboxStatusSending && e.LockedAt != nil && e.LockedAt.Before(staleBefore) {
			e.Status = OutboxStatusQueued
			e.LockedAt = nil
			e.UpdatedAt = now()
			s.outbox[id] = e
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) updateOutbox(id string, fn func(*OutboxEntry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.outbox[id]
	if !ok {
		return ErrNotFound
	}
	fn(&e)
	e.UpdatedAt = now()
	s.outbox[id] = e
	return nil
}

// OutboxEntries returns a snapshot of the outbox in enqueue order.
func (s *InMemoryStore) OutboxEntries() []OutboxEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]OutboxEntry, 0, len(s.outboxOrder))
	for _, id := range s.outboxOrder {
		entries = append(entries, s.outbox[id])
	}
	return entries
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }
