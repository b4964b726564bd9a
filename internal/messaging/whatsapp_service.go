package messaging

import (
	"context"
	"log/slog"

	"github.com/growthforge/forge/internal/models"
	"github.com/growthforge/forge/internal/webhook"
	"github.com/growthforge/forge/internal/whatsapp"
)

// EventHandler consumes normalised inbound events.
type EventHandler func(ctx context.Context, events []webhook.Event)

// NativeSender delivers WhatsApp messages from a linked whatsmeow device.
type NativeSender struct {
	client whatsapp.Sender
}

// NewNativeSender wraps a whatsmeow client or MockClient.
func NewNativeSender(client whatsapp.Sender) *NativeSender {
	return &NativeSender{client: client}
}

// Send implements Sender.
func (s *NativeSender) Send(ctx context.Context, out Outbound) (string, error) {
	to, err := CanonicalPhone(out.To)
	if err != nil {
		slog.Error("NativeSender.Send validation error", "error", err, "to", out.To)
		return "", err
	}
	return s.client.SendMessage(ctx, to, out.Text)
}

// NativeEvents converts linked-device traffic into webhook events routed to
// accountID and feeds them to handle.
func NativeEvents(ctx context.Context, accountID string, handle EventHandler) whatsapp.Handler {
	return whatsapp.Handler{
		OnMessage: func(in whatsapp.Inbound) {
			slog.Debug("NativeEvents: inbound message", "from", in.From, "id", in.ID)
			handle(ctx, []webhook.Event{{
				Kind:              webhook.EventMessage,
				Channel:           models.ChannelWhatsApp,
				AccountID:         accountID,
				SenderID:          in.From,
				PhoneE164:         in.From,
				ProfileName:       in.PushName,
				MessageType:       "text",
				Text:              in.Text,
				ExternalMessageID: in.ID,
				Status:            models.MessageStatusReceived,
				Timestamp:         in.Timestamp,
			}})
		},
		OnReceipt: func(r whatsapp.Receipt) {
			evts := make([]webhook.Event, 0, len(r.MessageIDs))
			for _, id := range r.MessageIDs {
				evts = append(evts, webhook.Event{
					Kind:              webhook.EventStatus,
					Channel:           models.ChannelWhatsApp,
					AccountID:         accountID,
					ExternalMessageID: id,
					Status:            models.MessageStatus(r.Status),
					Timestamp:         r.Timestamp,
				})
			}
			handle(ctx, evts)
		},
	}
}
