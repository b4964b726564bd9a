// Package api provides the HTTP server for Forge.
//
// It exposes the demo chat endpoint, the Meta and Twilio webhooks, the
// operator endpoints for clients, integrations and the lead inbox, and the
// health and metrics endpoints.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/growthforge/forge/internal/dialogue"
	"github.com/growthforge/forge/internal/messaging"
	"github.com/growthforge/forge/internal/pipeline"
	"github.com/growthforge/forge/internal/ratelimit"
	"github.com/growthforge/forge/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":8080"
	// DefaultThinkDelay is the pause before a demo reply is returned.
	DefaultThinkDelay = 800 * time.Millisecond
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second

	maxBodyBytes = 1 << 20
)

// Sleeper pauses for d. Tests inject a no-op.
type Sleeper func(d time.Duration)

// AccountLookup validates a channel account token against the provider.
type AccountLookup interface {
	LookupAccount(ctx context.Context, accountID, token string) (*messaging.GraphAccount, error)
}

// RequestValidator checks a provider request signature.
type RequestValidator interface {
	ValidateRequest(url string, params map[string]string, signature string) bool
}

// Opts holds configuration for the API server.
type Opts struct {
	Addr             string
	MetaVerifyToken  string
	MetaAppSecret    string
	ThinkDelay       time.Duration
	Sleep            Sleeper
	TwilioValidator  RequestValidator
	TwilioWebhookURL string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithMetaVerifyToken sets the token expected by the webhook challenge.
func WithMetaVerifyToken(token string) Option {
	return func(o *Opts) { o.MetaVerifyToken = token }
}

// WithMetaAppSecret sets the secret used to verify webhook signatures.
func WithMetaAppSecret(secret string) Option {
	return func(o *Opts) { o.MetaAppSecret = secret }
}

// WithThinkDelay sets the pause applied before demo replies. Zero disables it.
func WithThinkDelay(d time.Duration) Option {
	return func(o *Opts) { o.ThinkDelay = d }
}

// WithSleeper replaces time.Sleep for the think delay.
func WithSleeper(sleep Sleeper) Option {
	return func(o *Opts) { o.Sleep = sleep }
}

// WithTwilioWebhook enables POST /api/webhooks/twilio. publicURL is the
// externally visible URL Twilio signs.
func WithTwilioWebhook(v RequestValidator, publicURL string) Option {
	return func(o *Opts) {
		o.TwilioValidator = v
		o.TwilioWebhookURL = publicURL
	}
}

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Engine   *dialogue.Engine
	Limiter  *ratelimit.Limiter
	Graph    AccountLookup
}

// Server handles Forge HTTP requests.
type Server struct {
	st      store.Store
	pipe    *pipeline.Pipeline
	engine  *dialogue.Engine
	limiter *ratelimit.Limiter
	graph   AccountLookup

	addr             string
	verifyToken      string
	appSecret        string
	thinkDelay       time.Duration
	sleep            Sleeper
	twilio           RequestValidator
	twilioWebhookURL string
}

// NewServer creates a Server. A nil Engine or Limiter is replaced with the
// default configuration.
func NewServer(deps Deps, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, ThinkDelay: DefaultThinkDelay, Sleep: time.Sleep}
	for _, opt := range opts {
		opt(&cfg)
	}
	if deps.Engine == nil {
		deps.Engine = dialogue.NewEngine()
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.New()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = func(time.Duration) {}
	}
	if cfg.MetaVerifyToken == "" {
		slog.Warn("NewServer: no Meta verify token configured, webhook subscriptions will be refused")
	}
	if cfg.MetaAppSecret == "" {
		slog.Warn("NewServer: no Meta app secret configured, signed webhook deliveries will be rejected")
	}
	return &Server{
		st:               deps.Store,
		pipe:             deps.Pipeline,
		engine:           deps.Engine,
		limiter:          deps.Limiter,
		graph:            deps.Graph,
		addr:             cfg.Addr,
		verifyToken:      cfg.MetaVerifyToken,
		appSecret:        cfg.MetaAppSecret,
		thinkDelay:       cfg.ThinkDelay,
		sleep:            cfg.Sleep,
		twilio:           cfg.TwilioValidator,
		twilioWebhookURL: cfg.TwilioWebhookURL,
	}
}

// Handler returns the routed handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/forge-demo", s.demoHandler)

	mux.HandleFunc("GET /api/webhooks/meta", s.metaVerifyHandler)
	mux.HandleFunc("POST /api/webhooks/meta", s.metaEventHandler)
	if s.twilio != nil {
		mux.HandleFunc("POST /api/webhooks/twilio", s.twilioEventHandler)
	}

	mux.HandleFunc("POST /api/clients", s.createClientHandler)
	mux.HandleFunc("GET /api/clients/{id}", s.getClientHandler)
	mux.HandleFunc("GET /api/clients/{id}/knowledge", s.listKnowledgeHandler)
	mux.HandleFunc("POST /api/clients/{id}/knowledge", s.addKnowledgeHandler)
	mux.HandleFunc("DELETE /api/clients/{id}/knowledge/{docID}", s.deleteKnowledgeHandler)
	mux.HandleFunc("POST /api/clients/{id}/agent", s.agentToggleHandler)

	mux.HandleFunc("POST /api/integrations/instagram", s.connectInstagramHandler)
	mux.HandleFunc("POST /api/integrations/whatsapp", s.connectWhatsAppHandler)
	mux.HandleFunc("GET /api/integrations/status", s.integrationStatusHandler)

	mux.HandleFunc("GET /api/leads", s.inboxHandler)
	mux.HandleFunc("POST /api/leads/send", s.sendManualHandler)
	mux.HandleFunc("POST /api/leads/activate-agent", s.activateAgentHandler)
	mux.HandleFunc("POST /api/leads/archive", s.archiveHandler)
	mux.HandleFunc("POST /api/leads/discover", s.discoverHandler)

	mux.HandleFunc("GET /healthz", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("Server.Run: stopped")
	return nil
}

// Run builds a Server from deps and opts and serves until ctx is cancelled.
func Run(ctx context.Context, deps Deps, opts ...Option) error {
	return NewServer(deps, opts...).Run(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}
