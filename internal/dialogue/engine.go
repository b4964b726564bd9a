package dialogue

import (
	"fmt"
	"log/slog"
)

// Reply is the engine's answer to one transcript.
type Reply struct {
	Content string
	Rule    RuleName
	State   State
}

// Opts holds engine configuration.
type Opts struct {
	BookingURL string
	Rules      []Rule
}

// Option configures an Engine.
type Option func(*Opts)

// WithBookingURL sets the link sent when a prospect accepts the calendar.
func WithBookingURL(url string) Option {
	return func(o *Opts) { o.BookingURL = url }
}

// WithRules replaces the override cascade. Intended for tests.
func WithRules(rules []Rule) Option {
	return func(o *Opts) { o.Rules = rules }
}

// Engine turns a transcript into exactly one deterministic reply.
type Engine struct {
	bookingURL string
	rules      []Rule
}

// NewEngine creates an Engine with the default cascade.
func NewEngine(opts ...Option) *Engine {
	cfg := Opts{BookingURL: DefaultBookingURL}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Rules == nil {
		cfg.Rules = Overrides()
	}
	return &Engine{bookingURL: cfg.BookingURL, rules: cfg.Rules}
}

// Reply validates the transcript and computes the reply. Invalid input yields
// a *ValidationError; any fault after validation yields an *InternalError.
func (e *Engine) Reply(t Transcript) (reply Reply, err error) {
	if err := t.Validate(); err != nil {
		return Reply{}, err
	}

	stage := "extraction"
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Engine.Reply: recovered from panic", "stage", stage, "panic", r)
			reply = Reply{}
			err = &InternalError{Stage: stage, Cause: fmt.Errorf("%v", r)}
		}
	}()

	slots := ExtractSlots(t)

	stage = "cascade"
	rule, tpl, matched := Cascade(e.rules, t, slots)
	state := StateNone
	if !matched {
		rule = RuleFunnel
		state, tpl = Progress(t, slots)
	}

	stage = "render"
	content := Render(tpl, VarsFor(slots, e.bookingURL))
	if content == "" {
		return Reply{}, &InternalError{Stage: stage, Cause: fmt.Errorf("empty reply for rule %s", rule)}
	}

	slog.Debug("Engine.Reply: reply selected", "rule", rule, "state", state, "step", slots.StepCount)
	return Reply{Content: content, Rule: rule, State: state}, nil
}
