package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/growthforge/forge/internal/messaging"
	"github.com/growthforge/forge/internal/webhook"
)

func writeText(w http.ResponseWriter, statusCode int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)
	if _, err := io.WriteString(w, body); err != nil {
		slog.Error("Server.writeText: failed to write response", "error", err)
	}
}

// metaVerifyHandler answers the subscription challenge (GET /api/webhooks/meta).
func (s *Server) metaVerifyHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, err := webhook.VerifyChallenge(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"), s.verifyToken)
	if err != nil {
		slog.Warn("Server.metaVerifyHandler: challenge refused", "mode", q.Get("hub.mode"))
		writeText(w, http.StatusForbidden, "Forbidden")
		return
	}
	slog.Info("Server.metaVerifyHandler: webhook verified")
	writeText(w, http.StatusOK, challenge)
}

// metaEventHandler ingests signed Instagram and WhatsApp deliveries
// (POST /api/webhooks/meta). Once the signature checks out it answers 200
// even when processing fails, so Meta does not redeliver a poisoned batch.
func (s *Server) metaEventHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		slog.Warn("Server.metaEventHandler: failed to read body", "error", err)
		writeText(w, http.StatusBadRequest, "Bad Request")
		return
	}

	if err := webhook.VerifySignature(s.appSecret, r.Header.Get(webhook.SignatureHeader), body); err != nil {
		if errors.Is(err, webhook.ErrMissingSignature) {
			slog.Warn("Server.metaEventHandler: missing signature")
			writeText(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		slog.Warn("Server.metaEventHandler: signature mismatch")
		writeText(w, http.StatusForbidden, "Forbidden")
		return
	}

	events, err := webhook.Parse(body)
	if err != nil {
		slog.Error("Server.metaEventHandler: unparseable payload", "error", err)
		writeText(w, http.StatusOK, "OK")
		return
	}
	res, err := s.pipe.Handle(r.Context(), events)
	if err != nil {
		slog.Error("Server.metaEventHandler: processing failed", "error", err, "events", len(events))
		writeText(w, http.StatusOK, "OK")
		return
	}
	slog.Debug("Server.metaEventHandler: processed", "events", len(events), "messages", res.Messages,
		"duplicates", res.Duplicates, "statuses", res.Statuses, "skipped", res.Skipped, "replies", res.Replies)
	writeText(w, http.StatusOK, "EVENT_RECEIVED")
}

// twilioEventHandler ingests Twilio WhatsApp messages and status callbacks
// (POST /api/webhooks/twilio).
func (s *Server) twilioEventHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.twilioEventHandler: invalid form", "error", err)
		writeText(w, http.StatusBadRequest, "Bad Request")
		return
	}

	params := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	if !s.twilio.ValidateRequest(s.twilioWebhookURL, params, r.Header.Get("X-Twilio-Signature")) {
		slog.Warn("Server.twilioEventHandler: signature mismatch")
		writeText(w, http.StatusForbidden, "Forbidden")
		return
	}

	ev, err := messaging.ParseTwilioForm(r.PostForm)
	if err != nil {
		slog.Warn("Server.twilioEventHandler: unsupported callback", "error", err)
	} else if _, err := s.pipe.Handle(r.Context(), []webhook.Event{ev}); err != nil {
		slog.Error("Server.twilioEventHandler: processing failed", "error", err)
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, "<Response></Response>"); err != nil {
		slog.Error("Server.twilioEventHandler: failed to write response", "error", err)
	}
}
