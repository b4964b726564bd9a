// Package twiliowhatsapp wraps the Twilio API for WhatsApp delivery in Forge.
package twiliowhatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Sender sends WhatsApp messages and returns the Twilio message SID.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) (string, error)
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token, also used to validate webhooks.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sending number, with or without the "whatsapp:" prefix.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// Client wraps Twilio REST API for WhatsApp
type Client struct {
	client    *twilio.RestClient
	validator twilioclient.RequestValidator
	fromWhats string // WhatsApp number in "whatsapp:+1234567890" format
}

// NewClient creates a Client. Options left empty fall back to
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &Client{
		client:    client,
		validator: twilioclient.NewRequestValidator(cfg.AuthToken),
		fromWhats: Address(cfg.FromWhats),
	}, nil
}

// Address returns number in Twilio's "whatsapp:+E164" form.
func Address(number string) string {
	number = strings.TrimPrefix(strings.TrimSpace(number), "whatsapp:")
	if !strings.HasPrefix(number, "+") {
		number = "+" + number
	}
	return "whatsapp:" + number
}

// SendMessage sends a WhatsApp message using Twilio API
func (c *Client) SendMessage(ctx context.Context, to string, body string) (string, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(Address(to))
	params.SetFrom(c.fromWhats)
	params.SetBody(body)

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendMessage failed", "to", to, "error", err)
		return "", fmt.Errorf("failed to send message to %s: %w", to, err)
	}

	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Debug("Twilio message sent", "to", to, "sid", sid)
	return sid, nil
}

// ValidateRequest checks an X-Twilio-Signature header against the full
// request URL and its form parameters.
func (c *Client) ValidateRequest(url string, params map[string]string, signature string) bool {
	return c.validator.Validate(url, params, signature)
}

// MockClient records sent messages for tests.
type MockClient struct {
	mu           sync.Mutex
	SentMessages []SentMessage
	Err          error
}

// SentMessage is one message recorded by MockClient.
type SentMessage struct {
	To   string
	Body string
}

// NewMockClient creates a MockClient.
func NewMockClient() *MockClient {
	return &MockClient{SentMessages: []SentMessage{}}
}

// SendMessage records the message and returns a fake SID, or Err when set.
func (m *MockClient) SendMessage(ctx context.Context, to string, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return fmt.Sprintf("SM%032d", len(m.SentMessages)), nil
}
