package api_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/growthforge/forge/internal/messaging"
	"github.com/growthforge/forge/internal/models"
	"github.com/growthforge/forge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateClient(t *testing.T) {
	h := testutil.NewTestServer(t, nil)

	rr := h.Do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/clients", models.ClientCreateRequest{Name: "Acme", BookingURL: "https://cal.com/acme"}))
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "create client")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	result := resp["result"].(map[string]interface{})
	assert.Equal(t, "Acme", result["name"])
	assert.Equal(t, models.DefaultLanguage, result["language"])
	assert.Equal(t, models.DefaultPersonaName, result["persona_name"])
	assert.Equal(t, models.DefaultTone, result["tone"])

	id := result["id"].(string)
	rr = h.Do(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/clients/"+id, nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "get client")

	rr = h.Do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/clients", `{"name":"  "}`))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "blank name")
	testutil.AssertJSONResponse(t, rr, "error")

	rr = h.Do(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/clients/missing", nil))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "unknown client")
}

func TestKnowledgeLifecycle(t *testing.T) {
	h := testutil.NewTestServer(t, nil)
	c := testutil.SeedClient(t, h.Store, false)
	base := "/api/clients/" + c.ID + "/knowledge"

	rr := h.Do(testutil.CreateHTTPRequest(t, http.MethodPost, base, models.DocumentCreateRequest{FileName: "faq.txt", Content: "Plan pro 99€"}))
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "add document")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	docID := resp["result"].(map[string]interface{})["id"].(string)

	rr = h.Do(testutil.CreateHTTPRequest(t, http.MethodPost, base, models.DocumentCreateRequest{FileName: "empty.txt"}))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "missing content")

	rr = h.Do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/clients/missing/knowledge", models.DocumentCreateRequest{FileName: "a", Content: "b"}))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "unknown client")

	rr = h.Do(testutil.CreateHTTPRequest(t, http.MethodGet, base, nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "list documents")
	resp = testutil.AssertJSONResponse(t, rr, "ok")
	assert.Len(t, resp["result"], 1)

	rr = h.Do(testutil.CreateHTTPRequest(t, http.MethodDelete, base+"/"+docID, nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "delete document")

	rr = h.Do(testutil.CreateHTTPRequest(t, http.MethodDelete, base+"/"+docID, nil))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "delete twice")
}

func TestAgentToggle(t *testing.T) {
	h := testutil.NewTestServer(t, nil)
	c := testutil.SeedClient(t, h.Store, false)

	rr := h.Do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/clients/"+c.ID+"/agent", models.AgentToggleRequest{Active: true}))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "enable agent")
	got, err := h.Store.GetClient(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, got.AgentActive)

	rr = h.Do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/clients/missing/agent", models.AgentToggleRequest{Active: true}))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "unknown client")
}

// graphServer serves the account lookup of a Graph API stub.
func graphServer(t *testing.T, status int, body string) *messaging.GraphClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return messaging.NewGraphClient(srv.URL)
}

func TestConnectInstagram(t *testing.T) {
	graph := graphServer(t, http.StatusOK, `{"id":"17841400000","username":"acme"}`)
	h := testutil.NewTestServer(t, graph)
	c := testutil.SeedClient(t, h.Store, false)

	req := models.ConnectRequest{ClientID: c.ID, AccountID: "17841400000", AccessToken: "tok"}
	rr := h.Do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/integrations/instagram", req))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "connect instagram")
	assert.NotContains(t, rr.Body.String(), "tok", "access tokens are never echoed")

	conn, err := h.Store.ConnectionByAccount(context.Background(), models.ChannelInstagram, "17841400000")
	require.NoError(t, err)
	assert.Equal(t, c.ID, conn.ClientID)
	assert.Equal(t, "tok", conn.AccessToken)
	assert.Equal(t, models.ConnectionConnected, conn.Status)
}

func TestConnectInstagram_GraphFailures(t *testing.T) {
	rejected := testutil.NewTestServer(t, graphServer(t, http.StatusBadRequest,
		`{"error":{"message":"Invalid OAuth access token.","type":"OAuthException","code":190}}`))
	c := testutil.SeedClient(t, rejected.Store, false)
	req := models.ConnectRequest{ClientID: c.ID, AccountID: "1784", AccessToken: "bad"}

	rr := rejected.Do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/integrations/instagram", req))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "graph rejects token")
	resp := testutil.AssertJSONResponse(t, rr, "error")
	assert.Equal(t, "Invalid OAuth access token.", resp["message"])

	down := messaging.NewGraphClient("http://127.0.0.1:1")
	unreachable := testutil.NewTestServer(t, down)
	c = testutil.SeedClient(t, unreachable.Store, false)
	req.ClientID = c.ID
	rr = unreachable.Do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/integrations/instagram", req))
	testutil.AssertHTTPStatus(t, http.StatusBadGateway, rr.Code, "graph unreachable")

	rr = unreachable.Do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/integrations/instagram", models.ConnectRequest{ClientID: c.ID}))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "missing account")
}

func TestConnectWhatsAppAndStatus(t *testing.T) {
	h := testutil.NewTestServer(t, nil)
	c := &models.Client{Name: "Solo"}
	require.NoError(t, h.Store.SaveClient(context.Background(), c))

	rr := h.Do(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/integrations/status?client_id="+c.ID, nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "status before connecting")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	wa := resp["result"].(map[string]interface{})["whatsapp"].(map[string]interface{})
	assert.Equal(t, false, wa["connected"])
	assert.Equal(t, "disconnected", wa["status"])

	req := models.ConnectRequest{ClientID: c.ID, PhoneNumberID: "PNID9", AccessToken: "tok"}
	rr = h.Do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/integrations/whatsapp", req))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "connect whatsapp")

	rr = h.Do(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/integrations/status?client_id="+c.ID, nil))
	resp = testutil.AssertJSONResponse(t, rr, "ok")
	wa = resp["result"].(map[string]interface{})["whatsapp"].(map[string]interface{})
	assert.Equal(t, true, wa["connected"])
	assert.Equal(t, "PNID9", wa["account_id"])

	rr = h.Do(testutil.CreateHTTPRequest(t, http.MethodGet, "/api/integrations/status", nil))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "missing client_id")

	rr = h.Do(testutil.CreateHTTPRequest(t, http.MethodPost, "/api/integrations/whatsapp", models.ConnectRequest{ClientID: "missing", PhoneNumberID: "P", AccessToken: "t"}))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "unknown client")
}
