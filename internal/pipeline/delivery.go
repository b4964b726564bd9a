package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/growthforge/forge/internal/messaging"
	"github.com/growthforge/forge/internal/metrics"
	"github.com/growthforge/forge/internal/models"
	"github.com/growthforge/forge/internal/store"
)

// Deliver sends the message behind an outbox entry through the client's
// connection. It is the store.OutboxSendFunc of the outbox sender.
func (p *Pipeline) Deliver(ctx context.Context, entry store.OutboxEntry) error {
	msg, err := p.store.GetMessage(ctx, entry.MessageID)
	if err != nil {
		return fmt.Errorf("load message %s: %w", entry.MessageID, err)
	}
	lead, err := p.store.GetLead(ctx, msg.LeadID)
	if err != nil {
		return fmt.Errorf("load lead %s: %w", msg.LeadID, err)
	}
	conn, err := p.store.ConnectionForClient(ctx, msg.ClientID, msg.Channel)
	if err != nil {
		return fmt.Errorf("no %s connection for client %s: %w", msg.Channel, msg.ClientID, err)
	}

	externalID, err := p.sender.Send(ctx, messaging.Outbound{
		Channel:     msg.Channel,
		AccountID:   conn.AccountID,
		AccessToken: conn.AccessToken,
		To:          lead.ExternalID(),
		Text:        msg.Text,
	})
	if err != nil {
		metrics.OutboundMessages.WithLabelValues(string(msg.Channel), "error").Inc()
		return err
	}
	metrics.OutboundMessages.WithLabelValues(string(msg.Channel), "sent").Inc()
	slog.Debug("Pipeline.Deliver: sent", "messageID", msg.ID, "externalMessageID", externalID)
	return p.store.SetMessageDelivery(ctx, msg.ID, externalID, models.MessageStatusSent)
}

// GiveUp marks the message of an exhausted outbox entry failed. It is the
// outbox sender's OnGiveUp hook.
func (p *Pipeline) GiveUp(ctx context.Context, entry store.OutboxEntry, cause error) {
	slog.Error("Pipeline.GiveUp: delivery abandoned", "messageID", entry.MessageID, "attempts", entry.Attempts+1, "error", cause)
	if err := p.store.SetMessageDelivery(ctx, entry.MessageID, "", models.MessageStatusFailed); err != nil {
		slog.Error("Pipeline.GiveUp: mark failed", "messageID", entry.MessageID, "error", err)
	}
}

// NewOutboxSender returns an outbox sender that delivers through p and
// fails the message once retries run out.
func (p *Pipeline) NewOutboxSender(poll time.Duration) *store.OutboxSender {
	s := store.NewOutboxSender(p.store, p.Deliver, poll)
	s.OnGiveUp = p.GiveUp
	return s
}

func sortInbox(inbox []models.InboxLead) {
	sort.SliceStable(inbox, func(i, j int) bool {
		return inbox[i].LastMessageTimestamp.After(inbox[j].LastMessageTimestamp)
	})
}
