// Package pipeline turns webhook events into leads, conversations and
// messages, and carries operator and agent replies back out through the
// outbox.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/growthforge/forge/internal/agent"
	"github.com/growthforge/forge/internal/messaging"
	"github.com/growthforge/forge/internal/metrics"
	"github.com/growthforge/forge/internal/models"
	"github.com/growthforge/forge/internal/store"
	"github.com/growthforge/forge/internal/webhook"
)

// ErrNoConversation is returned when a lead has no conversation to reply in.
var ErrNoConversation = errors.New("no active conversation found")

// Pipeline coordinates the store, the production agent and outbound delivery.
type Pipeline struct {
	store  store.Store
	agent  *agent.Agent
	sender messaging.Sender
	now    func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the pipeline clock.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline. sender delivers outbox entries; see Deliver.
func New(st store.Store, ag *agent.Agent, sender messaging.Sender, opts ...Option) *Pipeline {
	p := &Pipeline{store: st, agent: ag, sender: sender, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result summarises a Handle call.
type Result struct {
	Messages   int // new inbound messages stored
	Duplicates int
	Statuses   int // messages whose status changed
	Skipped    int // events for unknown accounts
	Replies    int // automatic agent replies queued
}

// Handle applies webhook events in order. A failing event is logged and
// does not stop the rest; the first error is returned.
func (p *Pipeline) Handle(ctx context.Context, events []webhook.Event) (Result, error) {
	var res Result
	var firstErr error
	for _, ev := range events {
		metrics.WebhookEvents.WithLabelValues(string(ev.Channel), string(ev.Kind)).Inc()
		var err error
		switch ev.Kind {
		case webhook.EventMessage:
			err = p.handleMessage(ctx, ev, &res)
		case webhook.EventStatus:
			err = p.handleStatus(ctx, ev, &res)
		}
		if err != nil {
			slog.Error("Pipeline.Handle: event failed", "error", err, "channel", ev.Channel,
				"accountID", ev.AccountID, "externalMessageID", ev.ExternalMessageID)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return res, firstErr
}

func (p *Pipeline) connection(ctx context.Context, ev webhook.Event) (*models.Connection, error) {
	conn, err := p.store.ConnectionByAccount(ctx, ev.Channel, ev.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Info("Pipeline: ignored event, no client mapping", "channel", ev.Channel, "accountID", ev.AccountID)
		return nil, nil
	}
	return conn, err
}

func (p *Pipeline) handleMessage(ctx context.Context, ev webhook.Event, res *Result) error {
	conn, err := p.connection(ctx, ev)
	if err != nil || conn == nil {
		if conn == nil && err == nil {
			res.Skipped++
		}
		return err
	}

	candidate := &models.Lead{ClientID: conn.ClientID, Channel: ev.Channel}
	switch ev.Channel {
	case models.ChannelInstagram:
		candidate.IGUserID = ev.SenderID
	case models.ChannelWhatsApp:
		candidate.PhoneE164 = ev.PhoneE164
		candidate.WAUserID = ev.SenderID
		candidate.Name = ev.ProfileName
	}
	lead, created, err := p.store.FindOrCreateLead(ctx, candidate)
	if err != nil {
		return err
	}
	if created {
		slog.Info("Pipeline: new lead", "clientID", conn.ClientID, "leadID", lead.ID, "channel", ev.Channel)
	}

	conv, err := p.store.FindOrCreateConversation(ctx, conn.ClientID, lead.ID, ev.Channel)
	if err != nil {
		return err
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = p.now()
	}
	msg := &models.Message{
		ConversationID:    conv.ID,
		LeadID:            lead.ID,
		ClientID:          conn.ClientID,
		Channel:           ev.Channel,
		ExternalMessageID: ev.ExternalMessageID,
		Direction:         models.DirectionIn,
		SenderType:        models.SenderLead,
		Text:              ev.Text,
		MessageType:       ev.MessageType,
		Status:            models.MessageStatusReceived,
		Metadata:          string(ev.Raw),
		Timestamp:         ts.UTC().Truncate(time.Microsecond),
	}
	fresh, err := p.store.RecordInbound(ctx, msg)
	if err != nil {
		return err
	}
	if !fresh {
		res.Duplicates++
		return nil
	}
	res.Messages++
	if err := p.store.TouchConversation(ctx, conv.ID, ev.Text, models.SenderLead); err != nil {
		return err
	}

	client, err := p.store.GetClient(ctx, conn.ClientID)
	if err != nil {
		return err
	}
	if !client.AgentActive || p.agent == nil {
		return nil
	}
	reply, err := p.agent.Reply(ctx, client.ID, ev.Text)
	if err != nil {
		return fmt.Errorf("agent reply: %w", err)
	}
	metrics.AgentReplies.WithLabelValues(reply.Branch).Inc()
	if _, err := p.queue(ctx, lead, conv, reply.Text, models.SenderAgent); err != nil {
		return err
	}
	res.Replies++
	return nil
}

func (p *Pipeline) handleStatus(ctx context.Context, ev webhook.Event, res *Result) error {
	conn, err := p.connection(ctx, ev)
	if err != nil || conn == nil {
		if conn == nil && err == nil {
			res.Skipped++
		}
		return err
	}
	n, err := p.store.UpdateMessageStatus(ctx, conn.ClientID, ev.Channel, ev.ExternalMessageID, ev.Status)
	if err != nil {
		return err
	}
	res.Statuses += n
	return nil
}

// queue stores an outbound message, touches the conversation, marks the
// lead contacted and enqueues delivery.
func (p *Pipeline) queue(ctx context.Context, lead *models.Lead, conv *models.Conversation, text string, sender models.SenderType) (*models.Message, error) {
	msg := &models.Message{
		ConversationID: conv.ID,
		LeadID:         lead.ID,
		ClientID:       lead.ClientID,
		Channel:        conv.Channel,
		Direction:      models.DirectionOut,
		SenderType:     sender,
		Text:           text,
		MessageType:    "text",
		Status:         models.MessageStatusQueued,
		Timestamp:      p.now().UTC().Truncate(time.Microsecond),
	}
	if err := p.store.AddMessage(ctx, msg); err != nil {
		return nil, err
	}
	if err := p.store.TouchConversation(ctx, conv.ID, text, sender); err != nil {
		return nil, err
	}
	if err := p.store.UpdateLeadState(ctx, lead.ID, models.LeadStateContacted); err != nil {
		return nil, err
	}
	if _, err := p.store.EnqueueOutbox(ctx, msg.ID); err != nil {
		return nil, err
	}
	slog.Debug("Pipeline.queue: outbound queued", "leadID", lead.ID, "messageID", msg.ID, "sender", sender)
	return msg, nil
}

func (p *Pipeline) leadConversation(ctx context.Context, leadID string) (*models.Lead, *models.Conversation, error) {
	lead, err := p.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, nil, err
	}
	conv, err := p.store.ConversationForLead(ctx, leadID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrNoConversation
	}
	if err != nil {
		return nil, nil, err
	}
	return lead, conv, nil
}

// SendManual queues a human reply to a lead.
func (p *Pipeline) SendManual(ctx context.Context, leadID, text string) (*models.Message, error) {
	lead, conv, err := p.leadConversation(ctx, leadID)
	if err != nil {
		return nil, err
	}
	return p.queue(ctx, lead, conv, text, models.SenderHuman)
}

// ActivateAgent has the production agent answer the lead's recent messages.
func (p *Pipeline) ActivateAgent(ctx context.Context, leadID string) (*models.Message, error) {
	lead, conv, err := p.leadConversation(ctx, leadID)
	if err != nil {
		return nil, err
	}
	history, err := p.store.RecentMessages(ctx, conv.ID, agent.ActivationHistory)
	if err != nil {
		return nil, err
	}
	reply, err := p.agent.Activate(ctx, lead.ClientID, history)
	if err != nil {
		return nil, fmt.Errorf("agent activation: %w", err)
	}
	metrics.AgentReplies.WithLabelValues(reply.Branch).Inc()
	slog.Debug("Pipeline.ActivateAgent", "leadID", leadID, "branch", reply.Branch, "history", agent.Transcript(history))
	return p.queue(ctx, lead, conv, reply.Text, models.SenderAgent)
}

// Discover scores a lead from its audience size and stores the result.
func (p *Pipeline) Discover(ctx context.Context, leadID string, followers, following int) (*models.Lead, error) {
	lead, err := p.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	d := agent.Discover(followers)
	lead.Followers = followers
	lead.Following = following
	lead.Score = d.Score
	lead.Segment = d.Segment
	lead.State = d.State
	if err := p.store.SaveLeadScore(ctx, lead); err != nil {
		return nil, err
	}
	slog.Info("Pipeline.Discover", "leadID", leadID, "score", d.Score, "segment", d.Segment, "state", d.State)
	return lead, nil
}

// Archive moves a lead out of the inbox.
func (p *Pipeline) Archive(ctx context.Context, leadID string) error {
	return p.store.UpdateLeadState(ctx, leadID, models.LeadStateDiscarded)
}

// Inbox lists a client's leads with their conversations for a status
// filter (pending, answered, archived or all), most recent activity first.
func (p *Pipeline) Inbox(ctx context.Context, clientID, status string) ([]models.InboxLead, error) {
	states, exclude := models.LeadFilter(status)
	leads, err := p.store.ListLeads(ctx, clientID, states, exclude)
	if err != nil {
		return nil, err
	}
	inbox := make([]models.InboxLead, 0, len(leads))
	for i := range leads {
		lead := &leads[i]
		item := models.InboxLead{
			ID:                   lead.ID,
			Username:             lead.DisplayName(),
			Channel:              lead.Channel,
			Status:               lead.State,
			Messages:             []models.Message{},
			LastMessageText:      "No messages",
			LastMessageTimestamp: lead.CreatedAt,
		}
		conv, err := p.store.ConversationForLead(ctx, lead.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if conv != nil {
			msgs, err := p.store.Messages(ctx, conv.ID)
			if err != nil {
				return nil, err
			}
			if len(msgs) > 0 {
				item.Messages = msgs
				last := msgs[len(msgs)-1]
				item.LastMessageText = last.Text
				item.LastMessageTimestamp = last.Timestamp
			}
		}
		inbox = append(inbox, item)
	}
	sortInbox(inbox)
	return inbox, nil
}
