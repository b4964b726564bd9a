package webhook

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/growthforge/forge/internal/models"
)

// Payload object types Meta delivers.
const (
	ObjectInstagram = "instagram"
	ObjectWhatsApp  = "whatsapp_business_account"
)

// Kind distinguishes inbound messages from delivery status updates.
type Kind string

const (
	EventMessage Kind = "message"
	EventStatus  Kind = "status"
)

// Event is one normalised webhook occurrence.
type Event struct {
	Kind    Kind
	Channel models.Channel
	// AccountID routes the event to a client: the WhatsApp phone number id
	// or the Instagram business account id.
	AccountID string

	// Message fields.
	SenderID    string // IG-scoped user id or WhatsApp wa_id
	PhoneE164   string
	ProfileName string
	MessageType string
	Text        string
	Raw         json.RawMessage

	// ExternalMessageID is set on both kinds.
	ExternalMessageID string
	Status            models.MessageStatus
	Timestamp         time.Time
}

type payload struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID        flexID            `json:"id"`
	Changes   []change          `json:"changes"`
	Messaging []json.RawMessage `json:"messaging"`
}

type change struct {
	Field string  `json:"field"`
	Value waValue `json:"value"`
}

type waValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		PhoneNumberID string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []json.RawMessage `json:"messages"`
	Statuses []struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	} `json:"statuses"`
}

type waMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
	Button struct {
		Text string `json:"text"`
	} `json:"button"`
	Interactive struct {
		ButtonReply struct {
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply struct {
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

type igMessaging struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Timestamp int64 `json:"timestamp"`
	Message   *struct {
		Mid         string `json:"mid"`
		Text        string `json:"text"`
		IsDeleted   bool   `json:"is_deleted"`
		IsEcho      bool   `json:"is_echo"`
		Attachments []struct {
			Type string `json:"type"`
		} `json:"attachments"`
	} `json:"message"`
	Delivery *struct {
		Mids []string `json:"mids"`
	} `json:"delivery"`
	Read *struct {
		Mid string `json:"mid"`
	} `json:"read"`
}

// Parse normalises a webhook body into events. Objects other than Instagram
// and WhatsApp yield no events.
func Parse(body []byte) ([]Event, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	if p.Object != ObjectInstagram && p.Object != ObjectWhatsApp {
		slog.Debug("webhook.Parse: ignoring object", "object", p.Object)
		return nil, nil
	}

	var events []Event
	for _, e := range p.Entry {
		if p.Object == ObjectWhatsApp || isWhatsAppEntry(e) {
			events = append(events, parseWhatsApp(e)...)
			continue
		}
		events = append(events, parseInstagram(e)...)
	}
	return events, nil
}

func isWhatsAppEntry(e entry) bool {
	return len(e.Changes) > 0 && e.Changes[0].Value.MessagingProduct == "whatsapp"
}

func parseWhatsApp(e entry) []Event {
	var events []Event
	for _, c := range e.Changes {
		v := c.Value
		account := v.Metadata.PhoneNumberID
		var waID, name string
		if len(v.Contacts) > 0 {
			waID = v.Contacts[0].WaID
			name = v.Contacts[0].Profile.Name
		}

		for _, raw := range v.Messages {
			var m waMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				slog.Warn("webhook.parseWhatsApp: skipping malformed message", "error", err, "phoneNumberID", account)
				continue
			}
			sender := waID
			if sender == "" {
				sender = m.From
			}
			msgType := m.Type
			if msgType == "" {
				msgType = "text"
			}
			events = append(events, Event{
				Kind:              EventMessage,
				Channel:           models.ChannelWhatsApp,
				AccountID:         account,
				SenderID:          sender,
				PhoneE164:         m.From,
				ProfileName:       name,
				MessageType:       msgType,
				Text:              whatsAppText(msgType, m),
				Raw:               raw,
				ExternalMessageID: m.ID,
				Status:            models.MessageStatusReceived,
				Timestamp:         unixString(m.Timestamp),
			})
		}

		for _, st := range v.Statuses {
			events = append(events, Event{
				Kind:              EventStatus,
				Channel:           models.ChannelWhatsApp,
				AccountID:         account,
				ExternalMessageID: st.ID,
				Status:            models.MessageStatus(st.Status),
				Timestamp:         unixString(st.Timestamp),
			})
		}
	}
	return events
}

func whatsAppText(msgType string, m waMessage) string {
	switch msgType {
	case "text":
		return m.Text.Body
	case "sticker":
		return "[Sticker]"
	case "image":
		return "[Image]"
	case "audio":
		return "[Audio]"
	case "video":
		return "[Video]"
	case "document":
		return "[Document]"
	case "button":
		return firstNonEmpty(m.Button.Text, "[Button]")
	case "interactive":
		return firstNonEmpty(m.Interactive.ButtonReply.Title, m.Interactive.ListReply.Title, "[Interactive]")
	default:
		return "[non-text message]"
	}
}

func parseInstagram(e entry) []Event {
	account := string(e.ID)
	var events []Event
	for _, raw := range e.Messaging {
		var m igMessaging
		if err := json.Unmarshal(raw, &m); err != nil {
			slog.Warn("webhook.parseInstagram: skipping malformed event", "error", err, "accountID", account)
			continue
		}
		ts := time.UnixMilli(m.Timestamp).UTC()
		if m.Timestamp == 0 {
			ts = time.Time{}
		}

		if m.Message != nil && !m.Message.IsEcho {
			msgType, text := instagramText(m)
			events = append(events, Event{
				Kind:              EventMessage,
				Channel:           models.ChannelInstagram,
				AccountID:         account,
				SenderID:          m.Sender.ID,
				MessageType:       msgType,
				Text:              text,
				Raw:               raw,
				ExternalMessageID: m.Message.Mid,
				Status:            models.MessageStatusReceived,
				Timestamp:         ts,
			})
		}
		if m.Delivery != nil {
			for _, mid := range m.Delivery.Mids {
				events = append(events, Event{Kind: EventStatus, Channel: models.ChannelInstagram, AccountID: account,
					ExternalMessageID: mid, Status: models.MessageStatusDelivered, Timestamp: ts})
			}
		}
		if m.Read != nil && m.Read.Mid != "" {
			events = append(events, Event{Kind: EventStatus, Channel: models.ChannelInstagram, AccountID: account,
				ExternalMessageID: m.Read.Mid, Status: models.MessageStatusRead, Timestamp: ts})
		}
	}
	return events
}

func instagramText(m igMessaging) (string, string) {
	msg := m.Message
	switch {
	case msg.Text != "":
		return "text", msg.Text
	case len(msg.Attachments) > 0:
		switch t := msg.Attachments[0].Type; t {
		case "image":
			return t, "[Image]"
		case "video":
			return t, "[Video]"
		case "audio":
			return t, "[Audio]"
		case "file":
			return t, "[File]"
		case "fallback", "sticker", "story_mention":
			return "sticker", "[Sticker / Story Interaction]"
		default:
			return t, "[non-text message]"
		}
	case msg.IsDeleted:
		return "system", "[Message deleted by user]"
	default:
		return "text", "[non-text message]"
	}
}

// flexID accepts an id sent either as a JSON string or a number.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func unixString(s string) time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil || sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
