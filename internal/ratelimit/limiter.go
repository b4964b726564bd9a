// Package ratelimit bounds how many demo requests one caller may make inside a
// fixed window.
//
// The window for a key starts at the first accepted request and lasts for the
// configured duration. Once the window has elapsed the next request opens a
// new window with a count of one. Rejected requests do not consume budget.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrRateLimitExceeded is returned by Allow when the caller has used up its
// budget for the current window.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

const (
	// DefaultLimit is the number of requests accepted per window.
	DefaultLimit = 5
	// DefaultWindow is the length of a window.
	DefaultWindow = 60 * time.Second
	// UnknownKey is used when the caller cannot be identified.
	UnknownKey = "unknown-ip"
)

// CounterStore keeps the per-key window counters. Hit records an attempt at
// now and reports the window count after it together with whether the
// attempt was accepted. Implementations must be safe for concurrent use.
type CounterStore interface {
	Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (count int, allowed bool, err error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a Clock that only moves when told to. Used in tests.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a ManualClock set to start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the clock's current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Opts holds limiter configuration.
type Opts struct {
	Limit  int
	Window time.Duration
	Clock  Clock
	Store  CounterStore
}

// Option configures a Limiter.
type Option func(*Opts)

// WithLimit sets the number of requests accepted per window.
func WithLimit(n int) Option {
	return func(o *Opts) { o.Limit = n }
}

// WithWindow sets the window length.
func WithWindow(d time.Duration) Option {
	return func(o *Opts) { o.Window = d }
}

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(o *Opts) { o.Clock = c }
}

// WithStore sets the counter backend. Defaults to an in-process MemoryStore.
func WithStore(s CounterStore) Option {
	return func(o *Opts) { o.Store = s }
}

// Limiter enforces a fixed-window request budget per key.
type Limiter struct {
	limit  int
	window time.Duration
	clock  Clock
	store  CounterStore
}

// New creates a Limiter. Non-positive limits and windows fall back to the
// defaults.
func New(opts ...Option) *Limiter {
	cfg := Opts{Limit: DefaultLimit, Window: DefaultWindow, Clock: SystemClock{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	return &Limiter{limit: cfg.Limit, window: cfg.Window, clock: cfg.Clock, store: cfg.Store}
}

// Limit returns the configured per-window budget.
func (l *Limiter) Limit() int { return l.limit }

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Allow records a request for key. It returns ErrRateLimitExceeded when the
// budget is exhausted, or a wrapped store error if the counter backend failed.
func (l *Limiter) Allow(ctx context.Context, key string) error {
	if key == "" {
		key = UnknownKey
	}
	count, allowed, err := l.store.Hit(ctx, key, l.clock.Now(), l.window, l.limit)
	if err != nil {
		return fmt.Errorf("rate limit store: %w", err)
	}
	if !allowed {
		slog.Debug("Limiter.Allow: rejected", "key", key, "count", count, "limit", l.limit)
		return ErrRateLimitExceeded
	}
	return nil
}

// ClientKey identifies the caller of r by the first X-Forwarded-For entry.
// Requests without the header share UnknownKey.
func ClientKey(r *http.Request) string {
	fwd := r.Header.Get("X-Forwarded-For")
	if fwd == "" {
		return UnknownKey
	}
	first := strings.TrimSpace(strings.Split(fwd, ",")[0])
	if first == "" {
		return UnknownKey
	}
	return first
}
