// Package resilience stops calling command activators that keep failing.
//
// The central type is [Breaker], a classic three-state breaker
// (closed → open → half-open). [Guard] keeps one breaker per command id and
// wraps the activators of a command set, so a plugin whose activator fails
// on every call is short-circuited instead of being invoked for each
// utterance.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voicetrie/pkg/command"
)

// ErrBreakerOpen is returned instead of calling an activator whose breaker is
// open.
var ErrBreakerOpen = errors.New("resilience: activator breaker is open")

// State represents the current operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrBreakerOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. A failing
	// probe re-opens the breaker; enough successful probes close it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds tuning knobs for a [Breaker].
type Config struct {
	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before transitioning to
	// half-open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probe calls allowed in the half-open state.
	// Default: 1.
	HalfOpenMax int
}

func (c Config) withDefaults() Config {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMax <= 0 {
		c.HalfOpenMax = 1
	}
	return c
}

// Breaker guards the activator of one command.
type Breaker struct {
	name   string
	cfg    Config
	now    func() time.Time
	logger *slog.Logger

	mu             sync.Mutex
	state          State
	failures       int
	openedAt       time.Time
	probes         int
	probeSuccesses int
}

// NewBreaker creates a closed [Breaker]. Zero-value config fields are replaced
// with defaults.
func NewBreaker(name string, cfg Config, opts ...Option) *Breaker {
	o := options{now: time.Now, logger: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	return &Breaker{name: name, cfg: cfg.withDefaults(), now: o.now, logger: o.logger}
}

// Execute runs fn unless the breaker is open. A failure caused by ctx being
// cancelled does not count against the command.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case err == nil:
		b.recordSuccess(probe)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		if probe {
			b.probes--
		}
	default:
		b.recordFailure(probe)
	}
	return err
}

// admit decides whether a call may proceed and whether it is a probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return false, fmt.Errorf("%w: command %q", ErrBreakerOpen, b.name)
		}
		b.state = StateHalfOpen
		b.probes = 0
		b.probeSuccesses = 0
		b.logger.Info("resilience: breaker half-open", "command_id", b.name)
	}
	if b.state == StateHalfOpen {
		if b.probes >= b.cfg.HalfOpenMax {
			return false, fmt.Errorf("%w: command %q", ErrBreakerOpen, b.name)
		}
		b.probes++
		return true, nil
	}
	return false, nil
}

// recordFailure must be called with b.mu held.
func (b *Breaker) recordFailure(probe bool) {
	if probe {
		b.open()
		b.logger.Warn("resilience: breaker re-opened after failed probe", "command_id", b.name)
		return
	}
	b.failures++
	if b.failures >= b.cfg.MaxFailures {
		b.open()
		b.logger.Warn("resilience: breaker opened",
			"command_id", b.name,
			"consecutive_failures", b.failures,
		)
	}
}

// recordSuccess must be called with b.mu held.
func (b *Breaker) recordSuccess(probe bool) {
	if !probe {
		b.failures = 0
		return
	}
	b.probeSuccesses++
	if b.probeSuccesses >= b.cfg.HalfOpenMax {
		b.state = StateClosed
		b.failures = 0
		b.logger.Info("resilience: breaker closed", "command_id", b.name)
	}
}

func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = 0
}

// State returns the current [State]. An open breaker whose reset timeout
// has elapsed reports [StateHalfOpen]; the transition itself happens on the
// next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to [StateClosed].
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probes = 0
	b.probeSuccesses = 0
}

// ─── Guard ───────────────────────────────────────────────────────────────────

type options struct {
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a [Breaker] or [Guard].
type Option func(*options)

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces [time.Now], for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Guard keeps one [Breaker] per command id.
type Guard struct {
	cfg  Config
	opts []Option

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewGuard creates a Guard whose breakers use cfg.
func NewGuard(cfg Config, opts ...Option) *Guard {
	return &Guard{cfg: cfg, opts: opts, breakers: make(map[string]*Breaker)}
}

// Breaker returns the breaker of id, creating it on first use.
func (g *Guard) Breaker(id string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[id]
	if !ok {
		b = NewBreaker(id, g.cfg, g.opts...)
		g.breakers[id] = b
	}
	return b
}

// Wrap returns copies of descs whose activators run behind their command's
// breaker. Descriptors without an activator are returned unchanged. The
// breaker state survives re-wrapping the same ids.
func (g *Guard) Wrap(descs []command.Descriptor) []command.Descriptor {
	out := make([]command.Descriptor, len(descs))
	for i, d := range descs {
		if act := d.Activator; act != nil {
			b := g.Breaker(d.ID)
			d.Activator = func(ctx context.Context, p command.Parsed) error {
				return b.Execute(ctx, func(ctx context.Context) error { return act(ctx, p) })
			}
		}
		out[i] = d
	}
	return out
}

// States reports the state of every breaker created so far.
func (g *Guard) States() map[string]State {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]State, len(g.breakers))
	for id, b := range g.breakers {
		out[id] = b.State()
	}
	return out
}
