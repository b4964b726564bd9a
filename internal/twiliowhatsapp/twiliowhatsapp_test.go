package twiliowhatsapp

import (
	"context"
	"errors"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	sid, err := mock.SendMessage(ctx, "12345", "Hello Test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sid == "" {
		t.Error("expected a message SID")
	}

	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.SentMessages))
	}

	if mock.SentMessages[0].Body != "Hello Test" {
		t.Errorf("expected body %q, got %q", "Hello Test", mock.SentMessages[0].Body)
	}
}

func TestMockClient_Error(t *testing.T) {
	mock := NewMockClient()
	mock.Err = errors.New("twilio down")
	if _, err := mock.SendMessage(context.Background(), "12345", "x"); err == nil {
		t.Fatal("expected error")
	}
	if len(mock.SentMessages) != 0 {
		t.Errorf("failed sends must not be recorded")
	}
}

func TestAddress(t *testing.T) {
	tests := map[string]string{
		"+34600000000":          "whatsapp:+34600000000",
		"34600000000":           "whatsapp:+34600000000",
		"whatsapp:+34600000000": "whatsapp:+34600000000",
		" whatsapp:34600000000": "whatsapp:+34600000000",
	}
	for in, want := range tests {
		if got := Address(in); got != want {
			t.Errorf("Address(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewClient(); err == nil {
		t.Fatal("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok")); err == nil {
		t.Fatal("expected error without from number")
	}
	c, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromWhats("+14155238886"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.fromWhats != "whatsapp:+14155238886" {
		t.Errorf("unexpected from %q", c.fromWhats)
	}
}
