// Package dispatch turns a transcribed utterance into executed voice
// commands.
//
// A [Dispatcher] tokenizes the text, takes one snapshot of the published
// command trie and repeatedly matches the remaining tokens against it, so a
// single utterance such as "lights on volume five" can trigger several
// commands in order. Each matched command's activator runs synchronously
// before the next match is attempted.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voicetrie/internal/observe"
	"github.com/MrWong99/voicetrie/internal/trie"
	"github.com/MrWong99/voicetrie/pkg/command"
	"github.com/MrWong99/voicetrie/pkg/tag"
	"github.com/MrWong99/voicetrie/pkg/token"
)

// ErrNotReady is returned when no command trie has been published yet.
var ErrNotReady = errors.New("dispatch: command trie not ready")

// Tokenizer splits an utterance into tokens.
type Tokenizer interface {
	Tokenize(text string) []token.Token
}

// TrieSource exposes the published command trie. [*trie.Factory]
// implements it.
type TrieSource interface {
	Get() *trie.Trie
	Ready() bool
}

// Match is one command matched in an utterance.
type Match struct {
	CommandID  string            `json:"command_id"`
	Parameters map[string]string `json:"parameters,omitempty"`
	// Error holds the activator failure, if any.
	Error string `json:"error,omitempty"`

	Parsed command.Parsed `json:"-"`
}

// Result describes what happened to one utterance.
type Result struct {
	Text    string  `json:"text"`
	Matches []Match `json:"matches"`
	// Unmatched lists the words that no command consumed.
	Unmatched []string `json:"unmatched,omitempty"`
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithTagSource sets where active tags come from. Default: no tags.
func WithTagSource(s TagSource) Option {
	return func(d *Dispatcher) { d.tags = s }
}

// WithSkipUnmatched controls what happens when the front of the stream
// matches nothing. When true (the default) one token is skipped and matching
// resumes; when false dispatch stops and the rest is reported as unmatched.
func WithSkipUnmatched(skip bool) Option {
	return func(d *Dispatcher) { d.skipUnmatched = skip }
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher matches utterances against the published trie and runs the
// activators of matched commands. It is safe for concurrent use.
type Dispatcher struct {
	tokenizer     Tokenizer
	tries         TrieSource
	tags          TagSource
	skipUnmatched bool
	logger        *slog.Logger
	metrics       *observe.Metrics
}

// New creates a Dispatcher.
func New(tok Tokenizer, tries TrieSource, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		tokenizer:     tok,
		tries:         tries,
		tags:          TagSourceFunc(func() tag.Set { return nil }),
		skipUnmatched: true,
		logger:        slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Dispatch matches text and runs every matched command in order. extra tags
// are active for this call only, on top of the tag source.
//
// Activator failures do not stop later commands; they are recorded on the
// match and returned joined.
func (d *Dispatcher) Dispatch(ctx context.Context, text string, extra ...tag.Tag) (Result, error) {
	res := Result{Text: text, Matches: []Match{}}
	if !d.tries.Ready() {
		return res, ErrNotReady
	}

	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "dispatch",
		trace.WithAttributes(attribute.Int("text.length", len(text))),
	)
	defer span.End()

	t := d.tries.Get()
	tokens := d.tokenizer.Tokenize(text)

	var errs []error
	active := d.tags.Tags().With(extra...)
	for len(tokens) > 0 {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		traverseStart := time.Now()
		parsed, rest, ok := t.TryTraverse(tokens, active)
		d.metrics.TraversalDuration.Record(ctx, time.Since(traverseStart).Seconds())

		if !ok {
			if !d.skipUnmatched {
				break
			}
			res.Unmatched = append(res.Unmatched, tokens[0].String())
			tokens = tokens[1:]
			continue
		}
		if len(rest) == len(tokens) {
			rest = tokens[1:]
		}
		tokens = rest

		m, err := d.activate(ctx, t, parsed)
		if err != nil {
			errs = append(errs, fmt.Errorf("dispatch: %s: %w", m.CommandID, err))
		}
		res.Matches = append(res.Matches, m)

		// Activators may switch modes; later commands see the new tags.
		active = d.tags.Tags().With(extra...)
	}
	for _, tk := range tokens {
		res.Unmatched = append(res.Unmatched, tk.String())
	}

	if len(res.Matches) == 0 {
		d.metrics.Misses.Add(ctx, 1)
	}
	d.metrics.DispatchDuration.Record(ctx, time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("matches", len(res.Matches)),
		attribute.Int("unmatched", len(res.Unmatched)),
	)
	return res, errors.Join(errs...)
}

// activate runs the activator of parsed, if the command has one.
func (d *Dispatcher) activate(ctx context.Context, t *trie.Trie, parsed command.Parsed) (Match, error) {
	m := Match{
		CommandID:  parsed.CommandID,
		Parameters: make(map[string]string, len(parsed.Parameters)),
		Parsed:     parsed,
	}
	for name, tk := range parsed.Parameters {
		m.Parameters[name] = tk.String()
	}
	d.metrics.RecordMatch(ctx, parsed.CommandID)

	desc, ok := t.Command(parsed.CommandID)
	if !ok || desc.Activator == nil {
		d.logger.Debug("dispatch: command matched", "command_id", parsed.CommandID)
		return m, nil
	}
	ctx, span := observe.StartCommandSpan(ctx, parsed.CommandID, desc.Source)
	defer span.End()
	log := observe.CommandLogger(ctx, d.logger, parsed.CommandID, desc.Source)

	if err := desc.Activator(ctx, parsed); err != nil {
		m.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "activator failed")
		d.metrics.RecordActivationError(ctx, parsed.CommandID)
		log.Warn("dispatch: command failed", "err", err)
		return m, err
	}
	log.Info("dispatch: command executed", "parameters", m.Parameters)
	return m, nil
}
