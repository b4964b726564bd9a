package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/growthforge/forge/internal/messaging"
	"github.com/growthforge/forge/internal/models"
	"github.com/growthforge/forge/internal/store"
)

// createClientHandler registers a client (POST /api/clients).
func (s *Server) createClientHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req models.ClientCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		slog.Warn("Server.createClientHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	c := req.Client()
	if err := s.st.SaveClient(r.Context(), &c); err != nil {
		writeStoreError(w, "createClientHandler", err, "Client not found")
		return
	}
	slog.Info("Server.createClientHandler: client created", "clientID", c.ID)
	writeJSONResponse(w, http.StatusCreated, models.Success(c))
}

// getClientHandler returns one client (GET /api/clients/{id}).
func (s *Server) getClientHandler(w http.ResponseWriter, r *http.Request) {
	c, err := s.st.GetClient(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, "getClientHandler", err, "Client not found")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(c))
}

// listKnowledgeHandler returns a client's documents (GET /api/clients/{id}/knowledge).
func (s *Server) listKnowledgeHandler(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("id")
	if _, err := s.st.GetClient(r.Context(), clientID); err != nil {
		writeStoreError(w, "listKnowledgeHandler", err, "Client not found")
		return
	}
	docs, err := s.st.Documents(r.Context(), clientID)
	if err != nil {
		writeStoreError(w, "listKnowledgeHandler", err, "Client not found")
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(docs))
}

// addKnowledgeHandler stores a knowledge document (POST /api/clients/{id}/knowledge).
func (s *Server) addKnowledgeHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	clientID := r.PathValue("id")
	var req models.DocumentCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		slog.Warn("Server.addKnowledgeHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if _, err := s.st.GetClient(r.Context(), clientID); err != nil {
		writeStoreError(w, "addKnowledgeHandler", err, "Client not found")
		return
	}
	doc := models.Document{ClientID: clientID, FileName: req.FileName, Content: req.Content}
	if err := s.st.AddDocument(r.Context(), &doc); err != nil {
		writeStoreError(w, "addKnowledgeHandler", err, "Client not found")
		return
	}
	slog.Info("Server.addKnowledgeHandler: document added", "clientID", clientID, "docID", doc.ID)
	writeJSONResponse(w, http.StatusCreated, models.Success(doc))
}

// deleteKnowledgeHandler removes a document (DELETE /api/clients/{id}/knowledge/{docID}).
func (s *Server) deleteKnowledgeHandler(w http.ResponseWriter, r *http.Request) {
	clientID, docID := r.PathValue("id"), r.PathValue("docID")
	if err := s.st.DeleteDocument(r.Context(), clientID, docID); err != nil {
		writeStoreError(w, "deleteKnowledgeHandler", err, "Document not found")
		return
	}
	slog.Info("Server.deleteKnowledgeHandler: document deleted", "clientID", clientID, "docID", docID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Document deleted", nil))
}

// agentToggleHandler switches automatic replies (POST /api/clients/{id}/agent).
func (s *Server) agentToggleHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	clientID := r.PathValue("id")
	var req models.AgentToggleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := s.st.SetAgentActive(r.Context(), clientID, req.Active); err != nil {
		writeStoreError(w, "agentToggleHandler", err, "Client not found")
		return
	}
	slog.Info("Server.agentToggleHandler: agent toggled", "clientID", clientID, "active", req.Active)
	writeJSONResponse(w, http.StatusOK, models.Success(req))
}

func (s *Server) decodeConnect(w http.ResponseWriter, r *http.Request, op string) (*models.ConnectRequest, bool) {
	var req models.ConnectRequest
	if err := decodeJSON(r, &req); err != nil {
		slog.Warn("Server."+op+": failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return nil, false
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return nil, false
	}
	if _, err := s.st.GetClient(r.Context(), req.ClientID); err != nil {
		writeStoreError(w, op, err, "Client not found")
		return nil, false
	}
	return &req, true
}

// connectInstagramHandler links an Instagram business account after proving
// the token against the Graph API (POST /api/integrations/instagram).
func (s *Server) connectInstagramHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	req, ok := s.decodeConnect(w, r, "connectInstagramHandler")
	if !ok {
		return
	}
	accountID := req.Account()
	token := strings.TrimSpace(req.AccessToken)

	if s.graph != nil {
		acct, err := s.graph.LookupAccount(r.Context(), accountID, token)
		if err != nil {
			var gerr *messaging.GraphError
			switch {
			case errors.As(err, &gerr):
				slog.Warn("Server.connectInstagramHandler: token rejected", "clientID", req.ClientID, "code", gerr.Code)
				writeJSONResponse(w, http.StatusBadRequest, models.Error(gerr.Message))
			case errors.Is(err, messaging.ErrGraphUnreachable):
				slog.Error("Server.connectInstagramHandler: graph unreachable", "error", err)
				writeJSONResponse(w, http.StatusBadGateway, models.Error("Could not reach the Instagram API"))
			default:
				slog.Error("Server.connectInstagramHandler: lookup failed", "error", err)
				writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
			}
			return
		}
		accountID = acct.ID
	}

	conn := models.Connection{
		ClientID:    req.ClientID,
		Channel:     models.ChannelInstagram,
		AccountID:   accountID,
		AccessToken: token,
		Status:      models.ConnectionConnected,
	}
	if err := s.st.SaveConnection(r.Context(), &conn); err != nil {
		writeStoreError(w, "connectInstagramHandler", err, "Client not found")
		return
	}
	slog.Info("Server.connectInstagramHandler: instagram connected", "clientID", req.ClientID, "accountID", accountID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Instagram connected", conn))
}

// connectWhatsAppHandler links a WhatsApp Cloud phone number (POST /api/integrations/whatsapp).
func (s *Server) connectWhatsAppHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	req, ok := s.decodeConnect(w, r, "connectWhatsAppHandler")
	if !ok {
		return
	}
	conn := models.Connection{
		ClientID:    req.ClientID,
		Channel:     models.ChannelWhatsApp,
		AccountID:   req.Account(),
		AccessToken: strings.TrimSpace(req.AccessToken),
		Status:      models.ConnectionConnected,
	}
	if err := s.st.SaveConnection(r.Context(), &conn); err != nil {
		writeStoreError(w, "connectWhatsAppHandler", err, "Client not found")
		return
	}
	slog.Info("Server.connectWhatsAppHandler: whatsapp connected", "clientID", req.ClientID, "accountID", conn.AccountID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("WhatsApp connected", conn))
}

// integrationStatus is one channel in GET /api/integrations/status.
type integrationStatus struct {
	Connected bool                    `json:"connected"`
	AccountID string                  `json:"account_id,omitempty"`
	Status    models.ConnectionStatus `json:"status"`
}

// integrationStatusHandler reports a client's channel connections
// (GET /api/integrations/status?client_id=).
func (s *Server) integrationStatusHandler(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyClientID.Error()))
		return
	}
	out := make(map[models.Channel]integrationStatus, 2)
	for _, ch := range []models.Channel{models.ChannelInstagram, models.ChannelWhatsApp} {
		conn, err := s.st.ConnectionForClient(r.Context(), clientID, ch)
		if errors.Is(err, store.ErrNotFound) {
			out[ch] = integrationStatus{Status: models.ConnectionDisconnected}
			continue
		}
		if err != nil {
			writeStoreError(w, "integrationStatusHandler", err, "Client not found")
			return
		}
		out[ch] = integrationStatus{
			Connected: conn.Status == models.ConnectionConnected,
			AccountID: conn.AccountID,
			Status:    conn.Status,
		}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(out))
}
