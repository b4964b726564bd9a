package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/growthforge/forge/internal/models"
	"github.com/growthforge/forge/internal/pipeline"
)

// inboxHandler lists a client's leads (GET /api/leads?client_id=&status=).
func (s *Server) inboxHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID := q.Get("client_id")
	if clientID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyClientID.Error()))
		return
	}
	inbox, err := s.pipe.Inbox(r.Context(), clientID, q.Get("status"))
	if err != nil {
		writeStoreError(w, "inboxHandler", err, "Client not found")
		return
	}
	slog.Debug("Server.inboxHandler: leads fetched", "clientID", clientID, "count", len(inbox))
	writeJSONResponse(w, http.StatusOK, models.Success(inbox))
}

func writeLeadError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, pipeline.ErrNoConversation) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("No active conversation found"))
		return
	}
	writeStoreError(w, op, err, "Lead not found")
}

func decodeLead(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req models.LeadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return "", false
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return "", false
	}
	return req.LeadID, true
}

// sendManualHandler queues a human reply (POST /api/leads/send).
func (s *Server) sendManualHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req models.SendManualRequest
	if err := decodeJSON(r, &req); err != nil {
		slog.Warn("Server.sendManualHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	msg, err := s.pipe.SendManual(r.Context(), req.LeadID, strings.TrimSpace(req.MessageText))
	if err != nil {
		writeLeadError(w, "sendManualHandler", err)
		return
	}
	slog.Info("Server.sendManualHandler: reply queued", "leadID", req.LeadID, "messageID", msg.ID)
	writeJSONResponse(w, http.StatusOK, models.Success(msg))
}

// activateAgentHandler has the agent answer a lead (POST /api/leads/activate-agent).
func (s *Server) activateAgentHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	leadID, ok := decodeLead(w, r)
	if !ok {
		return
	}
	msg, err := s.pipe.ActivateAgent(r.Context(), leadID)
	if err != nil {
		writeLeadError(w, "activateAgentHandler", err)
		return
	}
	slog.Info("Server.activateAgentHandler: agent reply queued", "leadID", leadID, "messageID", msg.ID)
	writeJSONResponse(w, http.StatusOK, models.Success(msg))
}

// archiveHandler discards a lead (POST /api/leads/archive).
func (s *Server) archiveHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	leadID, ok := decodeLead(w, r)
	if !ok {
		return
	}
	if err := s.pipe.Archive(r.Context(), leadID); err != nil {
		writeLeadError(w, "archiveHandler", err)
		return
	}
	slog.Info("Server.archiveHandler: lead archived", "leadID", leadID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Lead archived", nil))
}

// discoverHandler scores a lead (POST /api/leads/discover).
func (s *Server) discoverHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req models.DiscoverRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	lead, err := s.pipe.Discover(r.Context(), req.LeadID, req.Followers, req.Following)
	if err != nil {
		writeLeadError(w, "discoverHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(lead))
}
