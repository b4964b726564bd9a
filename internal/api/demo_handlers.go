package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/growthforge/forge/internal/dialogue"
	"github.com/growthforge/forge/internal/metrics"
	"github.com/growthforge/forge/internal/ratelimit"
)

// demoReply is the success body of POST /api/forge-demo.
type demoReply struct {
	Role    dialogue.Role `json:"role"`
	Content string        `json:"content"`
}

// demoError is the error body of POST /api/forge-demo.
type demoError struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// demoHandler answers the demo chat (POST /api/forge-demo).
func (s *Server) demoHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	key := ratelimit.ClientKey(r)
	if err := s.limiter.Allow(r.Context(), key); err != nil {
		if errors.Is(err, ratelimit.ErrRateLimitExceeded) {
			slog.Info("Server.demoHandler: rate limit exceeded", "key", key)
			metrics.DemoRejected.WithLabelValues("rate_limit").Inc()
			writeJSONResponse(w, http.StatusTooManyRequests, demoError{Error: "Rate limit exceeded"})
			return
		}
		// The counter backend is best effort; an outage admits the request.
		slog.Error("Server.demoHandler: rate limiter unavailable", "error", err)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		slog.Warn("Server.demoHandler: failed to read body", "error", err)
		metrics.DemoRejected.WithLabelValues("invalid").Inc()
		writeJSONResponse(w, http.StatusBadRequest, demoError{Error: "Invalid messages format", Message: "could not read request body"})
		return
	}

	transcript, err := dialogue.ParseRequest(body)
	if err != nil {
		s.writeDemoError(w, err)
		return
	}

	start := time.Now()
	reply, err := s.engine.Reply(transcript)
	metrics.DemoReplyDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.writeDemoError(w, err)
		return
	}
	metrics.DemoReplies.WithLabelValues(string(reply.Rule)).Inc()
	slog.Debug("Server.demoHandler: reply computed", "rule", reply.Rule, "state", reply.State, "turns", len(transcript))

	if s.thinkDelay > 0 {
		s.sleep(s.thinkDelay)
	}
	writeJSONResponse(w, http.StatusOK, demoReply{Role: dialogue.RoleAssistant, Content: reply.Content})
}

func (s *Server) writeDemoError(w http.ResponseWriter, err error) {
	var verr *dialogue.ValidationError
	if errors.As(err, &verr) {
		slog.Warn("Server.demoHandler: invalid request", "error", err)
		metrics.DemoRejected.WithLabelValues("invalid").Inc()
		writeJSONResponse(w, http.StatusBadRequest, demoError{Error: "Invalid messages format", Message: verr.Message})
		return
	}
	slog.Error("Server.demoHandler: reply failed", "error", err)
	metrics.DemoRejected.WithLabelValues("internal").Inc()
	writeJSONResponse(w, http.StatusInternalServerError, demoError{Error: "Internal server error"})
}
