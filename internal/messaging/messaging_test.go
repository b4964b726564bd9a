package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/growthforge/forge/internal/models"
	"github.com/growthforge/forge/internal/twiliowhatsapp"
	"github.com/growthforge/forge/internal/webhook"
	"github.com/growthforge/forge/internal/whatsapp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter(t *testing.T) {
	r := NewRouter()
	ig := NewMockSender()
	r.Register(models.ChannelInstagram, ig)

	id, err := r.Send(context.Background(), Outbound{Channel: models.ChannelInstagram, To: "IGSID", Text: "hola"})
	require.NoError(t, err)
	assert.Equal(t, "mock-1", id)
	require.Len(t, ig.Sent(), 1)

	_, err = r.Send(context.Background(), Outbound{Channel: models.ChannelWhatsApp, To: "34600000000", Text: "hola"})
	assert.ErrorIs(t, err, ErrNoSender)

	_, err = r.Send(context.Background(), Outbound{Channel: models.ChannelInstagram, Text: "hola"})
	assert.ErrorIs(t, err, ErrEmptyRecipient)
	_, err = r.Send(context.Background(), Outbound{Channel: models.ChannelInstagram, To: "IGSID"})
	assert.ErrorIs(t, err, ErrEmptyBody)
}

func TestCanonicalPhone(t *testing.T) {
	got, err := CanonicalPhone("+34 600-000-000")
	require.NoError(t, err)
	assert.Equal(t, "34600000000", got)

	_, err = CanonicalPhone("abc")
	assert.Error(t, err)
	_, err = CanonicalPhone("+123")
	assert.Error(t, err)
	_, err = CanonicalPhone("")
	assert.ErrorIs(t, err, ErrEmptyRecipient)
}

func TestGraphSendInstagram(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"recipient_id":"IGSID","message_id":"mid.out"}`))
	}))
	defer srv.Close()

	router := NewGraphRouter(NewGraphClient(srv.URL))
	id, err := router.Send(context.Background(), Outbound{Channel: models.ChannelInstagram, AccountID: "1784", AccessToken: "tok", To: "IGSID", Text: "hola"})
	require.NoError(t, err)
	assert.Equal(t, "mid.out", id)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "/1784/messages", gotPath)
	assert.Equal(t, "IGSID", gotBody["recipient"]["id"])
	assert.Equal(t, "hola", gotBody["message"]["text"])
}

func TestGraphSendWhatsApp(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/PNID/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.out"}]}`))
	}))
	defer srv.Close()

	graph := NewGraphClient(srv.URL)
	id, err := (&CloudSender{Graph: graph}).Send(context.Background(), Outbound{Channel: models.ChannelWhatsApp, AccountID: "PNID", AccessToken: "tok", To: "+34600000000", Text: "hola"})
	require.NoError(t, err)
	assert.Equal(t, "wamid.out", id)
	assert.Equal(t, "34600000000", gotBody["to"])
	assert.Equal(t, "whatsapp", gotBody["messaging_product"])
}

func TestGraphErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid OAuth access token.","type":"OAuthException","code":190}}`))
	}))
	graph := NewGraphClient(srv.URL)

	_, err := graph.LookupAccount(context.Background(), "1784", "bad")
	var gerr *GraphError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, 190, gerr.Code)
	assert.Equal(t, "Invalid OAuth access token.", gerr.Message)
	assert.Equal(t, http.StatusBadRequest, gerr.StatusCode)

	_, err = graph.SendInstagram(context.Background(), Outbound{Channel: models.ChannelInstagram, AccountID: "1784", To: "x", Text: "y"})
	assert.Error(t, err, "missing token")

	srv.Close()
	_, err = graph.LookupAccount(context.Background(), "1784", "tok")
	assert.ErrorIs(t, err, ErrGraphUnreachable)
}

func TestGraphLookupAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/1784", r.URL.Path)
		assert.Equal(t, "tok", r.URL.Query().Get("access_token"))
		w.Write([]byte(`{"id":"1784","username":"acme"}`))
	}))
	defer srv.Close()

	acct, err := NewGraphClient(srv.URL).LookupAccount(context.Background(), "1784", "tok")
	require.NoError(t, err)
	assert.Equal(t, "acme", acct.Username)
}

func TestTwilioSender(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	s := NewTwilioSender(mock)
	sid, err := s.Send(context.Background(), Outbound{Channel: models.ChannelWhatsApp, To: "34 600 000 000", Text: "hola"})
	require.NoError(t, err)
	assert.NotEmpty(t, sid)
	require.Len(t, mock.SentMessages, 1)
	assert.Equal(t, "+34600000000", mock.SentMessages[0].To)

	mock.Err = errors.New("twilio down")
	_, err = s.Send(context.Background(), Outbound{Channel: models.ChannelWhatsApp, To: "34600000000", Text: "hola"})
	assert.Error(t, err)
}

func TestParseTwilioForm(t *testing.T) {
	ev, err := ParseTwilioForm(url.Values{
		"From":        {"whatsapp:+34600000000"},
		"To":          {"whatsapp:+14155238886"},
		"Body":        {"hola"},
		"MessageSid":  {"SM1"},
		"ProfileName": {"Ana"},
		"WaId":        {"34600000000"},
	})
	require.NoError(t, err)
	assert.Equal(t, webhook.EventMessage, ev.Kind)
	assert.Equal(t, "+14155238886", ev.AccountID)
	assert.Equal(t, "34600000000", ev.PhoneE164)
	assert.Equal(t, "Ana", ev.ProfileName)
	assert.Equal(t, "SM1", ev.ExternalMessageID)

	status, err := ParseTwilioForm(url.Values{
		"From":          {"whatsapp:+14155238886"},
		"To":            {"whatsapp:+34600000000"},
		"MessageSid":    {"SM2"},
		"MessageStatus": {"undelivered"},
	})
	require.NoError(t, err)
	assert.Equal(t, webhook.EventStatus, status.Kind)
	assert.Equal(t, "+14155238886", status.AccountID)
	assert.Equal(t, models.MessageStatusFailed, status.Status)

	_, err = ParseTwilioForm(url.Values{"Body": {"hola"}})
	assert.Error(t, err)
}

func TestNativeSenderAndEvents(t *testing.T) {
	mock := whatsapp.NewMockClient()
	s := NewNativeSender(mock)
	_, err := s.Send(context.Background(), Outbound{Channel: models.ChannelWhatsApp, To: "+34600000000", Text: "hola"})
	require.NoError(t, err)
	assert.Equal(t, []string{"34600000000: hola"}, mock.Sent)

	var got []webhook.Event
	h := NativeEvents(context.Background(), "34911111111", func(_ context.Context, evts []webhook.Event) {
		got = append(got, evts...)
	})
	h.OnMessage(whatsapp.Inbound{From: "34600000000", ID: "3EB0A", Text: "info", Timestamp: time.Unix(1700000000, 0)})
	h.OnReceipt(whatsapp.Receipt{MessageIDs: []string{"3EB0B", "3EB0C"}, Status: "read"})

	require.Len(t, got, 3)
	assert.Equal(t, "34911111111", got[0].AccountID)
	assert.Equal(t, "34600000000", got[0].PhoneE164)
	assert.Equal(t, webhook.EventStatus, got[2].Kind)
	assert.Equal(t, models.MessageStatusRead, got[2].Status)
}
