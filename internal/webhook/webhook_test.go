package webhook

import (
	"testing"

	"github.com/growthforge/forge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyChallenge(t *testing.T) {
	got, err := VerifyChallenge("subscribe", "secret", "12345", "secret")
	require.NoError(t, err)
	assert.Equal(t, "12345", got)

	for _, tc := range []struct{ mode, token, expected string }{
		{"subscribe", "wrong", "secret"},
		{"unsubscribe", "secret", "secret"},
		{"subscribe", "", ""},
	} {
		_, err := VerifyChallenge(tc.mode, tc.token, "12345", tc.expected)
		assert.ErrorIs(t, err, ErrForbidden, "%+v", tc)
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"object":"instagram"}`)
	assert.NoError(t, VerifySignature("app-secret", Sign("app-secret", body), body))
	assert.ErrorIs(t, VerifySignature("app-secret", "", body), ErrMissingSignature)
	assert.ErrorIs(t, VerifySignature("", Sign("app-secret", body), body), ErrMissingSignature)
	assert.ErrorIs(t, VerifySignature("app-secret", Sign("other", body), body), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("app-secret", "sha256=abc", body), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("app-secret", Sign("app-secret", body), []byte(`{}`)), ErrInvalidSignature)
}

func TestParseWhatsApp(t *testing.T) {
	body := []byte(`{
	  "object": "whatsapp_business_account",
	  "entry": [{
	    "id": "WABA",
	    "changes": [{
	      "field": "messages",
	      "value": {
	        "messaging_product": "whatsapp",
	        "metadata": {"phone_number_id": "PNID"},
	        "contacts": [{"wa_id": "34600000000", "profile": {"name": "Ana"}}],
	        "messages": [
	          {"from": "34600000000", "id": "wamid.1", "timestamp": "1700000000", "type": "text", "text": {"body": "hola"}},
	          {"from": "34600000000", "id": "wamid.2", "type": "sticker"},
	          {"from": "34600000000", "id": "wamid.3", "type": "interactive", "interactive": {"list_reply": {"title": "Plan Pro"}}},
	          {"from": "34600000000", "id": "wamid.4", "type": "button"},
	          {"from": "34600000000", "id": "wamid.5", "type": "location"}
	        ],
	        "statuses": [{"id": "wamid.out", "status": "delivered", "timestamp": "1700000100"}]
	      }
	    }]
	  }]
	}`)

	events, err := Parse(body)
	require.NoError(t, err)
	require.Len(t, events, 6)

	first := events[0]
	assert.Equal(t, EventMessage, first.Kind)
	assert.Equal(t, models.ChannelWhatsApp, first.Channel)
	assert.Equal(t, "PNID", first.AccountID)
	assert.Equal(t, "34600000000", first.SenderID)
	assert.Equal(t, "34600000000", first.PhoneE164)
	assert.Equal(t, "Ana", first.ProfileName)
	assert.Equal(t, "hola", first.Text)
	assert.Equal(t, "wamid.1", first.ExternalMessageID)
	assert.Equal(t, int64(1700000000), first.Timestamp.Unix())

	assert.Equal(t, "[Sticker]", events[1].Text)
	assert.Equal(t, "Plan Pro", events[2].Text)
	assert.Equal(t, "[Button]", events[3].Text)
	assert.Equal(t, "[non-text message]", events[4].Text)

	status := events[5]
	assert.Equal(t, EventStatus, status.Kind)
	assert.Equal(t, "wamid.out", status.ExternalMessageID)
	assert.Equal(t, models.MessageStatusDelivered, status.Status)
}

func TestParseInstagram(t *testing.T) {
	body := []byte(`{
	  "object": "instagram",
	  "entry": [{
	    "id": "17841400000000000",
	    "time": 1700000000000,
	    "messaging": [
	      {"sender": {"id": "IGSID"}, "recipient": {"id": "17841400000000000"}, "timestamp": 1700000000000,
	       "message": {"mid": "mid.1", "text": "cuánto cuesta?"}},
	      {"sender": {"id": "IGSID"}, "message": {"mid": "mid.2", "attachments": [{"type": "story_mention"}]}},
	      {"sender": {"id": "IGSID"}, "message": {"mid": "mid.3", "is_deleted": true}},
	      {"sender": {"id": "17841400000000000"}, "message": {"mid": "mid.echo", "text": "hola", "is_echo": true}},
	      {"sender": {"id": "IGSID"}, "delivery": {"mids": ["mid.out1", "mid.out2"]}},
	      {"sender": {"id": "IGSID"}, "read": {"mid": "mid.out1"}}
	    ]
	  }]
	}`)

	events, err := Parse(body)
	require.NoError(t, err)
	require.Len(t, events, 6)

	assert.Equal(t, models.ChannelInstagram, events[0].Channel)
	assert.Equal(t, "17841400000000000", events[0].AccountID)
	assert.Equal(t, "IGSID", events[0].SenderID)
	assert.Equal(t, "cuánto cuesta?", events[0].Text)
	assert.Equal(t, "sticker", events[1].MessageType)
	assert.Equal(t, "[Sticker / Story Interaction]", events[1].Text)
	assert.Equal(t, "system", events[2].MessageType)
	assert.Equal(t, "[Message deleted by user]", events[2].Text)

	assert.Equal(t, EventStatus, events[3].Kind)
	assert.Equal(t, "mid.out1", events[3].ExternalMessageID)
	assert.Equal(t, models.MessageStatusDelivered, events[3].Status)
	assert.Equal(t, "mid.out2", events[4].ExternalMessageID)
	assert.Equal(t, models.MessageStatusRead, events[5].Status)
}

func TestParseNumericEntryID(t *testing.T) {
	events, err := Parse([]byte(`{"object":"instagram","entry":[{"id":178414,"messaging":[{"sender":{"id":"u"},"message":{"mid":"m","text":"hi"}}]}]}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "178414", events[0].AccountID)
}

func TestParseIgnoresOtherObjects(t *testing.T) {
	events, err := Parse([]byte(`{"object":"page","entry":[{"id":"1"}]}`))
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)
}
