package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/growthforge/forge/internal/models"
	"github.com/growthforge/forge/internal/twiliowhatsapp"
	"github.com/growthforge/forge/internal/webhook"
)

// TwilioSender delivers WhatsApp messages through a Twilio sender number.
// The connection's AccountID and token are not used: Twilio sends from the
// number the client was configured with.
type TwilioSender struct {
	client twiliowhatsapp.Sender
}

// NewTwilioSender wraps a Twilio client or MockClient.
func NewTwilioSender(client twiliowhatsapp.Sender) *TwilioSender {
	return &TwilioSender{client: client}
}

// Send implements Sender.
func (s *TwilioSender) Send(ctx context.Context, out Outbound) (string, error) {
	to, err := CanonicalPhone(out.To)
	if err != nil {
		slog.Error("TwilioSender.Send validation error", "error", err, "to", out.To)
		return "", err
	}
	return s.client.SendMessage(ctx, "+"+to, out.Text)
}

// ParseTwilioForm converts a Twilio WhatsApp webhook form (an inbound
// message or a status callback) into an event. The routing key is the
// receiving number without the "whatsapp:" prefix.
func ParseTwilioForm(form url.Values) (webhook.Event, error) {
	sid := form.Get("MessageSid")
	if sid == "" {
		sid = form.Get("SmsSid")
	}
	account := strings.TrimPrefix(form.Get("To"), "whatsapp:")
	from := strings.TrimPrefix(form.Get("From"), "whatsapp:")

	if status := form.Get("MessageStatus"); status != "" && form.Get("Body") == "" {
		if sid == "" {
			return webhook.Event{}, fmt.Errorf("twilio status callback missing MessageSid")
		}
		st := models.MessageStatus(status)
		if status == "undelivered" {
			st = models.MessageStatusFailed
		}
		// Status callbacks are addressed from our number to the lead.
		account = from
		return webhook.Event{
			Kind:              webhook.EventStatus,
			Channel:           models.ChannelWhatsApp,
			AccountID:         account,
			ExternalMessageID: sid,
			Status:            st,
			Timestamp:         time.Now().UTC(),
		}, nil
	}

	body := form.Get("Body")
	if from == "" || (body == "" && form.Get("NumMedia") == "") {
		slog.Warn("ParseTwilioForm: missing fields", "from", from, "sid", sid)
		return webhook.Event{}, fmt.Errorf("twilio webhook missing required fields")
	}
	msgType := "text"
	if body == "" {
		msgType = "media"
		body = "[Media]"
	}
	phone := strings.TrimPrefix(from, "+")
	sender := form.Get("WaId")
	if sender == "" {
		sender = phone
	}
	return webhook.Event{
		Kind:              webhook.EventMessage,
		Channel:           models.ChannelWhatsApp,
		AccountID:         account,
		SenderID:          sender,
		PhoneE164:         phone,
		ProfileName:       form.Get("ProfileName"),
		MessageType:       msgType,
		Text:              body,
		ExternalMessageID: sid,
		Status:            models.MessageStatusReceived,
		Timestamp:         time.Now().UTC(),
	}, nil
}
