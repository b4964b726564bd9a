package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/growthforge/forge/internal/agent"
	"github.com/growthforge/forge/internal/api"
	"github.com/growthforge/forge/internal/dialogue"
	"github.com/growthforge/forge/internal/lockfile"
	"github.com/growthforge/forge/internal/messaging"
	"github.com/growthforge/forge/internal/models"
	"github.com/growthforge/forge/internal/pipeline"
	"github.com/growthforge/forge/internal/ratelimit"
	"github.com/growthforge/forge/internal/scheduler"
	"github.com/growthforge/forge/internal/store"
	"github.com/growthforge/forge/internal/twiliowhatsapp"
	"github.com/growthforge/forge/internal/util"
	"github.com/growthforge/forge/internal/webhook"
	"github.com/growthforge/forge/internal/whatsapp"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// Default configuration constants
const (
	// DefaultStateDir holds the SQLite store, the whatsmeow device and the lock file.
	DefaultStateDir = "/var/lib/forge"
	// DefaultDBFileName is the SQLite store filename inside the state directory.
	DefaultDBFileName = "forge.db"
	// DefaultWhatsAppDBFileName is the whatsmeow device database filename.
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultOutboxPoll is how often queued replies are picked up.
	DefaultOutboxPoll = time.Second
	// DefaultRecoverInterval is how often outbox entries stuck in sending are requeued.
	DefaultRecoverInterval = 5 * time.Minute
	// redisKeyPrefix namespaces the demo rate-limit counters.
	redisKeyPrefix = "forge:ratelimit:"
)

func main() {
	config := loadEnvironmentConfig()
	initializeLogger(config.LogLevel)

	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		slog.Error("Invalid command line", "error", err)
		os.Exit(2)
	}

	lock, err := lockfile.Acquire(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to lock state directory", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping Forge")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr,
		"whatsapp_native", *flags.whatsappNative, "twilio", flags.twilioEnabled(), "redis", *flags.redisAddr != "")
	if err := run(ctx, flags); err != nil {
		slog.Error("Forge failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("Forge exited successfully")
}

// Config holds environment configuration
type Config struct {
	APIAddr          string
	DatabaseURL      string
	StateDir         string
	LogLevel         string
	RateLimit        int
	RateWindow       time.Duration
	ThinkDelay       time.Duration
	RedisAddr        string
	MetaVerifyToken  string
	MetaAppSecret    string
	GraphBaseURL     string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	TwilioWebhookURL string
	WhatsAppNative   bool
	WhatsAppDSN      string
	BookingURL       string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput         *string
	numeric          *bool
	stateDir         *string
	dbDSN            *string
	apiAddr          *string
	redisAddr        *string
	rateLimit        *int
	rateWindow       *time.Duration
	thinkDelay       *time.Duration
	metaVerifyToken  *string
	metaAppSecret    *string
	graphBaseURL     *string
	twilioAccountSID *string
	twilioAuthToken  *string
	twilioFrom       *string
	twilioWebhookURL *string
	whatsappNative   *bool
	whatsappDSN      *string
	bookingURL       *string
}

func (f Flags) twilioEnabled() bool {
	return *f.twilioAccountSID != "" && *f.twilioAuthToken != ""
}

// initializeLogger installs a text logger on stdout. LOG_LEVEL accepts
// debug, info, warn or error; anything else means debug.
func initializeLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil || level == "" {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		APIAddr:          os.Getenv("API_ADDR"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		StateDir:         os.Getenv("FORGE_STATE_DIR"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		RateLimit:        util.ParseIntEnv("DEMO_RATE_LIMIT", ratelimit.DefaultLimit),
		RateWindow:       util.ParseDurationEnv("DEMO_RATE_WINDOW", ratelimit.DefaultWindow),
		ThinkDelay:       util.ParseDurationEnv("DEMO_THINK_DELAY", api.DefaultThinkDelay),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		MetaVerifyToken:  os.Getenv("META_VERIFY_TOKEN"),
		MetaAppSecret:    os.Getenv("META_APP_SECRET"),
		GraphBaseURL:     os.Getenv("GRAPH_BASE_URL"),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioWebhookURL: os.Getenv("TWILIO_WEBHOOK_URL"),
		WhatsAppNative:   util.ParseBoolEnv("WHATSAPP_NATIVE", false),
		WhatsAppDSN:      os.Getenv("WHATSAPP_DB_DSN"),
		BookingURL:       os.Getenv("DEFAULT_BOOKING_URL"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No FORGE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = whatsAppDSNFor(config.StateDir)
	}

	slog.Debug("environment variables loaded",
		"API_ADDR", config.APIAddr,
		"DATABASE_URL_SET", os.Getenv("DATABASE_URL") != "",
		"FORGE_STATE_DIR", config.StateDir,
		"DEMO_RATE_LIMIT", config.RateLimit,
		"DEMO_RATE_WINDOW", config.RateWindow,
		"DEMO_THINK_DELAY", config.ThinkDelay,
		"REDIS_ADDR_SET", config.RedisAddr != "",
		"META_APP_SECRET_SET", config.MetaAppSecret != "",
		"TWILIO_ACCOUNT_SID_SET", config.TwilioAccountSID != "",
		"WHATSAPP_NATIVE", config.WhatsAppNative)

	return config
}

func whatsAppDSNFor(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

// parseCommandLineFlags parses args into fs with environment defaults.
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	flags := Flags{
		qrOutput:         fs.String("qr-output", "", "path to write the WhatsApp login QR code"),
		numeric:          fs.Bool("numeric-code", false, "print the raw WhatsApp login code instead of a QR code"),
		stateDir:         fs.String("state-dir", config.StateDir, "state directory for Forge data (overrides $FORGE_STATE_DIR)"),
		dbDSN:            fs.String("db-dsn", config.DatabaseURL, "store DSN: SQLite path or Postgres URL (overrides $DATABASE_URL)"),
		apiAddr:          fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		redisAddr:        fs.String("redis-addr", config.RedisAddr, "Redis address for shared rate-limit counters (overrides $REDIS_ADDR)"),
		rateLimit:        fs.Int("demo-rate-limit", config.RateLimit, "demo requests per window and caller (overrides $DEMO_RATE_LIMIT)"),
		rateWindow:       fs.Duration("demo-rate-window", config.RateWindow, "demo rate-limit window (overrides $DEMO_RATE_WINDOW)"),
		thinkDelay:       fs.Duration("demo-think-delay", config.ThinkDelay, "pause before each demo reply, 0 disables (overrides $DEMO_THINK_DELAY)"),
		metaVerifyToken:  fs.String("meta-verify-token", config.MetaVerifyToken, "Meta webhook verify token (overrides $META_VERIFY_TOKEN)"),
		metaAppSecret:    fs.String("meta-app-secret", config.MetaAppSecret, "Meta app secret for payload signatures (overrides $META_APP_SECRET)"),
		graphBaseURL:     fs.String("graph-base-url", config.GraphBaseURL, "Meta Graph API root (overrides $GRAPH_BASE_URL)"),
		twilioAccountSID: fs.String("twilio-account-sid", config.TwilioAccountSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)"),
		twilioAuthToken:  fs.String("twilio-auth-token", config.TwilioAuthToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)"),
		twilioFrom:       fs.String("twilio-from", config.TwilioFrom, "Twilio WhatsApp sender number (overrides $TWILIO_FROM_NUMBER)"),
		twilioWebhookURL: fs.String("twilio-webhook-url", config.TwilioWebhookURL, "public URL Twilio posts to, needed to check signatures (overrides $TWILIO_WEBHOOK_URL)"),
		whatsappNative:   fs.Bool("whatsapp-native", config.WhatsAppNative, "send WhatsApp through a linked whatsmeow device (overrides $WHATSAPP_NATIVE)"),
		whatsappDSN:      fs.String("whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow device database DSN (overrides $WHATSAPP_DB_DSN)"),
		bookingURL:       fs.String("booking-url", config.BookingURL, "booking link offered by the demo (overrides $DEFAULT_BOOKING_URL)"),
	}
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	// Default file locations follow a --state-dir override.
	if *flags.stateDir != config.StateDir {
		if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) {
			*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		}
		if *flags.whatsappDSN == whatsAppDSNFor(config.StateDir) {
			*flags.whatsappDSN = whatsAppDSNFor(*flags.stateDir)
		}
		slog.Debug("Moved default databases to the new state directory", "state_dir", *flags.stateDir)
	}
	return flags, nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	dsn := strings.TrimSpace(*flags.dbDSN)
	if dsn == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return nil
	}
	if store.DetectDSNType(dsn) == store.DriverPostgres {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		return []store.Option{store.WithPostgresDSN(dsn)}
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return []store.Option{store.WithSQLiteDSN(dsn)}
}

// buildWhatsAppOptions constructs whatsmeow configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.whatsappDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.whatsappDSN))
	}
	return waOpts
}

// buildTwilioOptions constructs Twilio client options
func buildTwilioOptions(flags Flags) []twiliowhatsapp.Option {
	return []twiliowhatsapp.Option{
		twiliowhatsapp.WithAccountSID(*flags.twilioAccountSID),
		twiliowhatsapp.WithAuthToken(*flags.twilioAuthToken),
		twiliowhatsapp.WithFromWhats(*flags.twilioFrom),
	}
}

// buildLimiterOptions constructs demo rate limiter options
func buildLimiterOptions(flags Flags, counters ratelimit.CounterStore) []ratelimit.Option {
	return []ratelimit.Option{
		ratelimit.WithLimit(*flags.rateLimit),
		ratelimit.WithWindow(*flags.rateWindow),
		ratelimit.WithStore(counters),
	}
}

// buildEngineOptions constructs demo dialogue engine options
func buildEngineOptions(flags Flags) []dialogue.Option {
	if *flags.bookingURL == "" {
		return nil
	}
	return []dialogue.Option{dialogue.WithBookingURL(*flags.bookingURL)}
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	apiOpts := []api.Option{api.WithThinkDelay(*flags.thinkDelay)}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.metaVerifyToken != "" {
		apiOpts = append(apiOpts, api.WithMetaVerifyToken(*flags.metaVerifyToken))
	}
	if *flags.metaAppSecret != "" {
		apiOpts = append(apiOpts, api.WithMetaAppSecret(*flags.metaAppSecret))
	} else {
		slog.Warn("META_APP_SECRET not set; Meta webhook deliveries will be rejected")
	}
	return apiOpts
}

// run wires the store, transports, pipeline and HTTP server and blocks
// until ctx is cancelled.
func run(ctx context.Context, flags Flags) error {
	st, err := store.Open(buildStoreOptions(flags)...)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	var (
		counters ratelimit.CounterStore
		mem      *ratelimit.MemoryStore
	)
	if *flags.redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *flags.redisAddr})
		defer rdb.Close()
		redisCounters := ratelimit.NewRedisStore(rdb, redisKeyPrefix)
		if err := redisCounters.Ping(ctx); err != nil {
			return fmt.Errorf("connect redis %s: %w", *flags.redisAddr, err)
		}
		slog.Info("Demo rate limiter using Redis", "addr", *flags.redisAddr)
		counters = redisCounters
	} else {
		mem = ratelimit.NewMemoryStore()
		counters = mem
	}
	limiter := ratelimit.New(buildLimiterOptions(flags, counters)...)

	graph := messaging.NewGraphClient(*flags.graphBaseURL)
	router := messaging.NewGraphRouter(graph)
	apiOpts := buildAPIOptions(flags)

	var native *whatsapp.Client
	switch {
	case *flags.whatsappNative:
		native, err = whatsapp.NewClient(ctx, buildWhatsAppOptions(flags)...)
		if err != nil {
			return fmt.Errorf("start whatsmeow: %w", err)
		}
		defer native.Disconnect()
		router.Register(models.ChannelWhatsApp, messaging.NewNativeSender(native))
		slog.Info("WhatsApp routed through linked device", "account_id", native.AccountID())
	case flags.twilioEnabled():
		tw, err := twiliowhatsapp.NewClient(buildTwilioOptions(flags)...)
		if err != nil {
			return fmt.Errorf("start twilio: %w", err)
		}
		router.Register(models.ChannelWhatsApp, messaging.NewTwilioSender(tw))
		if *flags.twilioWebhookURL != "" {
			apiOpts = append(apiOpts, api.WithTwilioWebhook(tw, *flags.twilioWebhookURL))
		} else {
			slog.Warn("TWILIO_WEBHOOK_URL not set; inbound Twilio webhook disabled")
		}
		slog.Info("WhatsApp routed through Twilio")
	default:
		slog.Info("WhatsApp routed through the Cloud API")
	}

	pipe := pipeline.New(st, agent.New(agent.StoreKnowledge{Store: st}), router)

	outbox := pipe.NewOutboxSender(DefaultOutboxPoll)
	if err := outbox.RecoverStale(ctx); err != nil {
		slog.Warn("Outbox stale recovery failed", "error", err)
	}
	go outbox.Run(ctx)

	sched := scheduler.NewScheduler(ctx)
	if err := sched.Every("outbox-recover", DefaultRecoverInterval, outbox.RecoverStale); err != nil {
		return err
	}
	if mem != nil {
		window := limiter.Window()
		err := sched.Every("ratelimit-sweep", window, func(context.Context) error {
			if n := mem.Sweep(time.Now(), window); n > 0 {
				slog.Debug("Pruned expired rate-limit windows", "count", n)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	if native != nil {
		native.Listen(messaging.NativeEvents(ctx, native.AccountID(), func(ctx context.Context, evts []webhook.Event) {
			if _, err := pipe.Handle(ctx, evts); err != nil {
				slog.Error("Native WhatsApp event failed", "error", err)
			}
		}))
	}

	deps := api.Deps{
		Store:    st,
		Pipeline: pipe,
		Engine:   dialogue.NewEngine(buildEngineOptions(flags)...),
		Limiter:  limiter,
		Graph:    graph,
	}
	if err := api.Run(ctx, deps, apiOpts...); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
