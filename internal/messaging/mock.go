package messaging

import (
	"context"
	"fmt"
	"sync"
)

// MockSender records outbound messages for tests.
type MockSender struct {
	mu   sync.Mutex
	sent []Outbound
	// Err, when set, is returned by every Send.
	Err error
}

// NewMockSender creates a MockSender.
func NewMockSender() *MockSender {
	return &MockSender{}
}

// Send implements Sender.
func (m *MockSender) Send(_ context.Context, out Outbound) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.sent = append(m.sent, out)
	return fmt.Sprintf("mock-%d", len(m.sent)), nil
}

// Sent returns a copy of the recorded messages.
func (m *MockSender) Sent() []Outbound {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Outbound(nil), m.sent...)
}

// SetErr changes the error returned by Send.
func (m *MockSender) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}
