package api_test

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/growthforge/forge/internal/api"
	"github.com/growthforge/forge/internal/models"
	"github.com/growthforge/forge/internal/testutil"
	"github.com/growthforge/forge/internal/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metaPath = "/api/webhooks/meta"

const waDelivery = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "34911000000", "phone_number_id": "PNID-TEST"},
        "contacts": [{"profile": {"name": "Ana"}, "wa_id": "34600111222"}],
        "messages": [{"from": "34600111222", "id": "wamid.A1", "timestamp": "1735732800", "type": "text", "text": {"body": "¿qué precio tiene?"}}]
      }
    }]
  }]
}`

func signedMeta(t *testing.T, body string) *http.Request {
	t.Helper()
	req := testutil.CreateHTTPRequest(t, http.MethodPost, metaPath, body)
	req.Header.Set(webhook.SignatureHeader, webhook.Sign(testutil.MetaAppSecret, []byte(body)))
	return req
}

func TestMetaVerify(t *testing.T) {
	h := testutil.NewTestServer(t, nil)

	q := url.Values{"hub.mode": {"subscribe"}, "hub.verify_token": {testutil.MetaVerifyToken}, "hub.challenge": {"12345"}}
	rr := h.Do(testutil.CreateHTTPRequest(t, http.MethodGet, metaPath+"?"+q.Encode(), nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "valid challenge")
	assert.Equal(t, "12345", rr.Body.String())

	q.Set("hub.verify_token", "wrong")
	rr = h.Do(testutil.CreateHTTPRequest(t, http.MethodGet, metaPath+"?"+q.Encode(), nil))
	testutil.AssertHTTPStatus(t, http.StatusForbidden, rr.Code, "wrong token")
}

func TestMetaEvent_Signature(t *testing.T) {
	h := testutil.NewTestServer(t, nil)

	rr := h.Do(testutil.CreateHTTPRequest(t, http.MethodPost, metaPath, waDelivery))
	testutil.AssertHTTPStatus(t, http.StatusUnauthorized, rr.Code, "unsigned")

	req := testutil.CreateHTTPRequest(t, http.MethodPost, metaPath, waDelivery)
	req.Header.Set(webhook.SignatureHeader, webhook.Sign("other-secret", []byte(waDelivery)))
	rr = h.Do(req)
	testutil.AssertHTTPStatus(t, http.StatusForbidden, rr.Code, "wrong secret")
}

func TestMetaEvent_IngestsAndAutoReplies(t *testing.T) {
	h := testutil.NewTestServer(t, nil)
	c := testutil.SeedClient(t, h.Store, true)
	ctx := context.Background()

	rr := h.Do(signedMeta(t, waDelivery))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "signed delivery")
	assert.Equal(t, "EVENT_RECEIVED", rr.Body.String())

	leads, err := h.Store.ListLeads(ctx, c.ID, nil, true)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "34600111222", leads[0].PhoneE164)
	assert.Equal(t, models.LeadStateContacted, leads[0].State)

	// Redelivery is deduplicated and not answered again.
	rr = h.Do(signedMeta(t, waDelivery))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "redelivery")

	conv, err := h.Store.ConversationForLead(ctx, leads[0].ID)
	require.NoError(t, err)
	msgs, err := h.Store.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.SenderLead, msgs[0].SenderType)
	assert.Equal(t, models.SenderAgent, msgs[1].SenderType)
	assert.Equal(t, models.MessageStatusQueued, msgs[1].Status)
	assert.Len(t, h.Store.OutboxEntries(), 1)
}

func TestMetaEvent_ProcessingFailureStillOK(t *testing.T) {
	h := testutil.NewTestServer(t, nil)

	rr := h.Do(signedMeta(t, `{"object":"whatsapp_business_account","entry":"broken"}`))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "malformed but signed")
	assert.Equal(t, "OK", rr.Body.String())

	rr = h.Do(signedMeta(t, `{"object":"page","entry":[]}`))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "foreign object")
}

type fakeTwilioValidator struct{ ok bool }

func (v fakeTwilioValidator) ValidateRequest(string, map[string]string, string) bool { return v.ok }

func twilioRequest(t *testing.T, form url.Values) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "/api/webhooks/twilio", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", "sig")
	return req
}

func TestTwilioWebhook(t *testing.T) {
	form := url.Values{
		"MessageSid":  {"SM123"},
		"From":        {"whatsapp:+34600111222"},
		"To":          {"whatsapp:" + testutil.WhatsAppAccount},
		"Body":        {"hola"},
		"ProfileName": {"Ana"},
	}

	disabled := testutil.NewTestServer(t, nil)
	rr := disabled.Do(twilioRequest(t, form))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "not configured")

	rejecting := testutil.NewTestServer(t, nil, api.WithTwilioWebhook(fakeTwilioValidator{ok: false}, "https://forge.example/api/webhooks/twilio"))
	rr = rejecting.Do(twilioRequest(t, form))
	testutil.AssertHTTPStatus(t, http.StatusForbidden, rr.Code, "bad signature")

	h := testutil.NewTestServer(t, nil, api.WithTwilioWebhook(fakeTwilioValidator{ok: true}, "https://forge.example/api/webhooks/twilio"))
	c := testutil.SeedClient(t, h.Store, false)
	rr = h.Do(twilioRequest(t, form))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "valid")
	assert.Equal(t, "text/xml", rr.Header().Get("Content-Type"))

	leads, err := h.Store.ListLeads(context.Background(), c.ID, nil, true)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "Ana", leads[0].Name)
}
