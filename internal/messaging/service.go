// Package messaging delivers outbound messages to leads over the channel a
// client is connected on.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/growthforge/forge/internal/models"
)

var (
	// ErrNoSender is returned when no sender is registered for a channel.
	ErrNoSender = errors.New("no sender registered for channel")
	// ErrEmptyRecipient is returned for an outbound message without a recipient.
	ErrEmptyRecipient = errors.New("recipient cannot be empty")
	// ErrEmptyBody is returned for an outbound message without text.
	ErrEmptyBody = errors.New("message body cannot be empty")
)

// phoneNumberRegex matches everything that is not a digit.
var phoneNumberRegex = regexp.MustCompile(`\D`)

// Outbound is a message addressed to a lead through a client's connection.
type Outbound struct {
	Channel models.Channel
	// AccountID is the Instagram business account id or WhatsApp phone
	// number id the message is sent from.
	AccountID   string
	AccessToken string
	// To is the IG-scoped user id or the lead's phone number.
	To   string
	Text string
}

// Validate checks the fields every sender needs.
func (o Outbound) Validate() error {
	if o.To == "" {
		return ErrEmptyRecipient
	}
	if o.Text == "" {
		return ErrEmptyBody
	}
	return nil
}

// Sender delivers a message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, out Outbound) (string, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, out Outbound) (string, error)

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, out Outbound) (string, error) { return f(ctx, out) }

// Router dispatches outbound messages to the sender registered for their channel.
type Router struct {
	mu      sync.RWMutex
	senders map[models.Channel]Sender
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{senders: make(map[models.Channel]Sender)}
}

// Register sets the sender for a channel, replacing any previous one.
func (r *Router) Register(ch models.Channel, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[ch] = s
	slog.Debug("Router.Register", "channel", ch, "sender", fmt.Sprintf("%T", s))
}

// Send validates out and hands it to the channel's sender.
func (r *Router) Send(ctx context.Context, out Outbound) (string, error) {
	if err := out.Validate(); err != nil {
		return "", err
	}
	r.mu.RLock()
	s, ok := r.senders[out.Channel]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoSender, out.Channel)
	}
	return s.Send(ctx, out)
}

// CanonicalPhone strips everything but digits from a phone number and
// requires at least 6 digits.
func CanonicalPhone(recipient string) (string, error) {
	if recipient == "" {
		return "", ErrEmptyRecipient
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	if canonical != recipient {
		slog.Debug("CanonicalPhone: canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}
