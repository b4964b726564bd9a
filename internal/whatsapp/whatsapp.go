// Package whatsapp wraps the whatsmeow client so Forge can run WhatsApp on
// a linked device instead of the Cloud API.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/growthforge/forge/internal/store"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// Constants for WhatsApp client configuration
const (
	// DefaultSQLitePath is the default path for the whatsmeow device database
	DefaultSQLitePath = "/var/lib/forge/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users
	JIDSuffix = "s.whatsapp.net"
)

// Sender sends WhatsApp messages and returns the message id.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) (string, error)
}

// Inbound is a text message received on the linked device.
type Inbound struct {
	From      string // sender phone number, digits only
	ID        string
	PushName  string
	Text      string
	Timestamp time.Time
}

// Receipt reports delivery or read of messages we sent.
type Receipt struct {
	MessageIDs []string
	Status     string // "delivered" or "read"
	Timestamp  time.Time
}

// Handler receives inbound traffic from the linked device.
type Handler struct {
	OnMessage func(Inbound)
	OnReceipt func(Receipt)
}

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDSN       string // whatsmeow database connection string
	QRPath      string // path to write login QR code
	NumericCode bool   // use numeric login code instead of QR code
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) {
		o.DBDSN = dsn
	}
}

// WithQRCodeOutput writes the login QR code to path instead of stdout.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) {
		o.QRPath = path
	}
}

// WithNumericCode prints the raw login code instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) {
		o.NumericCode = true
	}
}

// Client wraps the whatsmeow client.
type Client struct {
	waClient *whatsmeow.Client
}

// driverFor picks the whatsmeow sqlstore dialect for dsn and warns when a
// SQLite DSN lacks foreign keys.
func driverFor(dsn string) string {
	if store.DetectDSNType(dsn) == store.DriverPostgres {
		return "postgres"
	}
	if !hasForeignKeys(dsn) {
		slog.Warn("SQLite database for WhatsApp does not appear to have foreign keys enabled. "+
			"whatsmeow strongly recommends enabling foreign keys for data integrity.",
			"dsn_example", "file:"+dsn+"?_foreign_keys=on")
	}
	return "sqlite3"
}

func hasForeignKeys(dsn string) bool {
	return strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "foreign_keys")
}

// NewClient opens the device store, logs in (printing a QR code on first
// run) and connects.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("WhatsApp NewClient options set", "DBDSN_set", cfg.DBDSN != "", "QRPath_set", cfg.QRPath != "", "NumericCode", cfg.NumericCode)

	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("No WhatsApp database DSN provided, using default SQLite path", "default_path", dbDSN)
	}
	dbDriver := driverFor(dbDSN)

	container, err := sqlstore.New(ctx, dbDriver, dbDSN, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		slog.Error("Failed to initialize WhatsApp DB store", "error", err)
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("Failed to get first device from store", "error", err)
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))

	if waClient.Store.ID == nil {
		slog.Info("WhatsApp login required; starting QR code flow")
		qrChan, _ := waClient.GetQRChannel(ctx)
		if err := waClient.Connect(); err != nil {
			slog.Error("Failed to connect to WhatsApp during login", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
		}
		writer := io.Writer(os.Stdout)
		if cfg.QRPath != "" {
			f, ferr := os.Create(cfg.QRPath)
			if ferr != nil {
				slog.Error("Failed to create QR file", "error", ferr)
				return nil, fmt.Errorf("failed to create QR file: %w", ferr)
			}
			defer f.Close()
			writer = f
		}
		for evt := range qrChan {
			if evt.Event == "code" {
				if cfg.NumericCode {
					fmt.Fprintln(writer, evt.Code)
				} else {
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
				}
			} else {
				slog.Info("WhatsApp login event", "event", evt.Event)
			}
		}
	} else {
		slog.Debug("WhatsApp already logged in, connecting to server")
		if err := waClient.Connect(); err != nil {
			slog.Error("Failed to connect to WhatsApp server", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
		}
	}
	slog.Info("WhatsApp client connected successfully")
	return &Client{waClient: waClient}, nil
}

// AccountID returns the linked device's phone number, the routing key
// clients connect with.
func (c *Client) AccountID() string {
	if c.waClient == nil || c.waClient.Store == nil || c.waClient.Store.ID == nil {
		return ""
	}
	return c.waClient.Store.ID.User
}

// Disconnect closes the websocket. The device session stays linked.
func (c *Client) Disconnect() {
	if c.waClient != nil {
		c.waClient.Disconnect()
	}
}

// SendMessage sends a text message to a phone number (digits only).
func (c *Client) SendMessage(ctx context.Context, to string, body string) (string, error) {
	if c.waClient == nil {
		return "", fmt.Errorf("whatsapp client not initialized")
	}
	if to == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	if body == "" {
		return "", fmt.Errorf("message body cannot be empty")
	}

	jid := types.NewJID(to, JIDSuffix)
	resp, err := c.waClient.SendMessage(ctx, jid, &waE2E.Message{Conversation: &body})
	if err != nil {
		slog.Error("Failed to send WhatsApp message", "error", err, "to", to)
		return "", fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	slog.Debug("WhatsApp message sent successfully", "to", to, "id", resp.ID)
	return string(resp.ID), nil
}

// Listen registers h for incoming messages and receipts.
func (c *Client) Listen(h Handler) {
	c.waClient.AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			if in, ok := ConvertMessage(v); ok && h.OnMessage != nil {
				h.OnMessage(in)
			}
		case *events.Receipt:
			if r, ok := ConvertReceipt(v); ok && h.OnReceipt != nil {
				h.OnReceipt(r)
			}
		}
	})
}

// ConvertMessage extracts a text message from a whatsmeow event. Messages
// we sent and non-text messages are skipped.
func ConvertMessage(evt *events.Message) (Inbound, bool) {
	if evt == nil || evt.Message == nil || evt.Info.IsFromMe {
		return Inbound{}, false
	}
	var text string
	switch {
	case evt.Message.Conversation != nil:
		text = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		text = *evt.Message.ExtendedTextMessage.Text
	default:
		slog.Debug("WhatsApp ignoring non-text message", "from", evt.Info.Sender.String())
		return Inbound{}, false
	}
	return Inbound{
		From:      evt.Info.Sender.User,
		ID:        string(evt.Info.ID),
		PushName:  evt.Info.PushName,
		Text:      text,
		Timestamp: evt.Info.Timestamp,
	}, true
}

// ConvertReceipt maps delivery and read receipts; other receipt types are skipped.
func ConvertReceipt(evt *events.Receipt) (Receipt, bool) {
	var status string
	switch evt.Type {
	case events.ReceiptTypeDelivered:
		status = "delivered"
	case events.ReceiptTypeRead:
		status = "read"
	default:
		return Receipt{}, false
	}
	ids := make([]string, 0, len(evt.MessageIDs))
	for _, id := range evt.MessageIDs {
		ids = append(ids, string(id))
	}
	return Receipt{MessageIDs: ids, Status: status, Timestamp: evt.Timestamp}, true
}

// MockClient records messages instead of sending them.
type MockClient struct {
	Sent []string
	Err  error
}

// NewMockClient creates a MockClient.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// SendMessage records "to: body" and returns a fake id, or Err when set.
func (m *MockClient) SendMessage(ctx context.Context, to string, body string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	m.Sent = append(m.Sent, to+": "+body)
	return fmt.Sprintf("3EB0%08d", len(m.Sent)), nil
}
