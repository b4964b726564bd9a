// Package testutil provides common test utilities and helpers for Forge tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/growthforge/forge/internal/agent"
	"github.com/growthforge/forge/internal/api"
	"github.com/growthforge/forge/internal/messaging"
	"github.com/growthforge/forge/internal/models"
	"github.com/growthforge/forge/internal/pipeline"
	"github.com/growthforge/forge/internal/ratelimit"
	"github.com/growthforge/forge/internal/store"
)

const (
	// MetaVerifyToken is the webhook verify token of test servers.
	MetaVerifyToken = "test-verify-token"
	// MetaAppSecret is the webhook signing secret of test servers.
	MetaAppSecret = "test-app-secret"
	// WhatsAppAccount is the phone number id SeedClient connects.
	WhatsAppAccount = "PNID-TEST"
	// InstagramAccount is the business account id SeedClient connects.
	InstagramAccount = "IG-TEST"
)

// Epoch is the start time of the rate limiter clock in test servers.
var Epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// TB is the subset of testing.TB the assertion helpers use.
type TB interface {
	Helper()
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// Harness is an API server wired to in-memory dependencies.
type Harness struct {
	Store    *store.InMemoryStore
	Sender   *messaging.MockSender
	Pipeline *pipeline.Pipeline
	Clock    *ratelimit.ManualClock
	Server   *api.Server
	Handler  http.Handler
}

// NewTestServer creates a test API server with in-memory dependencies, no
// think delay and a manual rate limiter clock. graph may be nil.
func NewTestServer(t *testing.T, graph api.AccountLookup, opts ...api.Option) *Harness {
	t.Helper()
	st := store.NewInMemoryStore()
	t.Cleanup(func() { _ = st.Close() })
	sender := messaging.NewMockSender()
	pipe := pipeline.New(st, agent.New(agent.StoreKnowledge{Store: st}), sender)
	clock := ratelimit.NewManualClock(Epoch)

	base := []api.Option{
		api.WithMetaVerifyToken(MetaVerifyToken),
		api.WithMetaAppSecret(MetaAppSecret),
		api.WithThinkDelay(0),
	}
	server := api.NewServer(api.Deps{
		Store:    st,
		Pipeline: pipe,
		Limiter:  ratelimit.New(ratelimit.WithClock(clock)),
		Graph:    graph,
	}, append(base, opts...)...)

	return &Harness{
		Store:    st,
		Sender:   sender,
		Pipeline: pipe,
		Clock:    clock,
		Server:   server,
		Handler:  server.Handler(),
	}
}

// Do serves req and returns the recorded response.
func (h *Harness) Do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.Handler.ServeHTTP(rr, req)
	return rr
}

// SeedClient stores a client with WhatsApp and Instagram connections.
func SeedClient(t *testing.T, st store.Store, agentActive bool) *models.Client {
	t.Helper()
	ctx := context.Background()
	c := &models.Client{Name: "Acme", BookingURL: "https://cal.com/acme", AgentActive: agentActive}
	c.ApplyDefaults()
	if err := st.SaveClient(ctx, c); err != nil {
		t.Fatalf("failed to seed client: %v", err)
	}
	for ch, account := range map[models.Channel]string{
		models.ChannelWhatsApp:  WhatsAppAccount,
		models.ChannelInstagram: InstagramAccount,
	} {
		conn := &models.Connection{ClientID: c.ID, Channel: ch, AccountID: account, AccessToken: "token-" + account}
		if err := st.SaveConnection(ctx, conn); err != nil {
			t.Fatalf("failed to seed %s connection: %v", ch, err)
		}
	}
	return c
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
// A []byte or string body is sent as is.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	switch b := body.(type) {
	case nil:
		reqBody = bytes.NewBuffer(nil)
	case []byte:
		reqBody = bytes.NewBuffer(b)
	case string:
		reqBody = bytes.NewBufferString(b)
	default:
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
