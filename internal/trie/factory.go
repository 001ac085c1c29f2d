package trie

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voicetrie/internal/compile"
	"github.com/MrWong99/voicetrie/internal/node"
	"github.com/MrWong99/voicetrie/internal/observe"
	"github.com/MrWong99/voicetrie/pkg/command"
)

// ErrDuplicateID is reported for a descriptor whose id was already used
// earlier in the same rebuild.
var ErrDuplicateID = errors.New("trie: duplicate command id")

// Failure records one command excluded from a rebuild.
type Failure struct {
	CommandID string
	// Phrase is empty when the descriptor itself was rejected.
	Phrase string
	Err    error
}

// Report summarises a rebuild.
type Report struct {
	// Commands is the number of commands in the published trie.
	Commands int

	// Phrases is the number of phrases folded into the trie.
	Phrases int

	// Failures lists the excluded commands: rejected descriptors first, then
	// compile errors, each group in input order.
	Failures []Failure

	Nodes    int
	Depth    int
	Duration time.Duration
}

// Err joins the failures into one error, or returns nil when every command
// compiled.
func (r Report) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("command %q: %w", f.CommandID, f.Err))
	}
	return errors.Join(errs...)
}

// Option configures a [Factory].
type Option func(*Factory)

// WithLogger sets the logger used for rebuild diagnostics. Default:
// [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(f *Factory) { f.logger = l }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(f *Factory) { f.metrics = m }
}

// WithConcurrency bounds the number of phrases compiled in parallel.
// Default: GOMAXPROCS.
func WithConcurrency(n int) Option {
	return func(f *Factory) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// Factory owns the published trie. Readers call [Factory.Get] without
// locking; [Factory.Set] builds a fresh trie and swaps it in atomically.
type Factory struct {
	current atomic.Pointer[Trie]

	// mu serialises writers.
	mu sync.Mutex

	logger      *slog.Logger
	metrics     *observe.Metrics
	concurrency int
}

// NewFactory returns a factory with no published trie.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		logger:      slog.Default(),
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, o := range opts {
		o(f)
	}
	if f.metrics == nil {
		f.metrics = observe.DefaultMetrics()
	}
	return f
}

// Get returns the published trie. It panics when no trie was ever built:
// matching before the command set is loaded is a wiring bug.
func (f *Factory) Get() *Trie {
	t := f.current.Load()
	if t == nil {
		panic("trie: Get called before the first Set")
	}
	return t
}

// Ready reports whether a trie has been published.
func (f *Factory) Ready() bool {
	return f.current.Load() != nil
}

type job struct {
	entry command.Entry
	procs []node.Processor
	err   error
}

// Set compiles descs and publishes the result as the new trie. Phrases are
// compiled in parallel and folded in input order, so the same input always
// yields the same trie. A command with an invalid descriptor, a duplicate id
// or any phrase that fails to compile is left out and listed in the report;
// the rest are published. The returned error is non-nil only when ctx ends
// before the swap, in which case the previous trie stays in place.
func (f *Factory) Set(ctx context.Context, descs []command.Descriptor) (Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "trie.rebuild",
		trace.WithAttributes(attribute.Int("commands.submitted", len(descs))),
	)
	defer span.End()

	var report Report
	byID := make(map[string]command.Descriptor, len(descs))
	var jobs []*job
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			report.Failures = append(report.Failures, Failure{CommandID: d.ID, Err: err})
			continue
		}
		if _, dup := byID[d.ID]; dup {
			report.Failures = append(report.Failures, Failure{CommandID: d.ID, Err: ErrDuplicateID})
			continue
		}
		byID[d.ID] = d
		for _, e := range d.Entries() {
			jobs = append(jobs, &job{entry: e})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			j.procs, j.err = compile.Compile(j.entry.CommandID, j.entry.Phrase, j.entry.Captured)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Report{}, fmt.Errorf("trie: rebuild aborted: %w", err)
	}

	failed := make(map[string]bool)
	for _, j := range jobs {
		if j.err == nil {
			continue
		}
		failed[j.entry.CommandID] = true
		report.Failures = append(report.Failures, Failure{CommandID: j.entry.CommandID, Phrase: j.entry.Phrase, Err: j.err})
		f.metrics.RecordCompileError(ctx, j.entry.CommandID)
		f.logger.Warn("trie: command excluded", "command_id", j.entry.CommandID, "phrase", j.entry.Phrase, "err", j.err)
	}

	b := NewBuilder()
	for _, j := range jobs {
		if failed[j.entry.CommandID] {
			continue
		}
		b.Add(j.procs, j.entry.Requirements)
		report.Phrases++
	}
	for id := range failed {
		delete(byID, id)
	}
	t := b.Build(byID)

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Report{}, fmt.Errorf("trie: rebuild aborted: %w", err)
	}
	f.current.Store(t)

	report.Commands = t.Commands()
	report.Nodes = t.Nodes()
	report.Depth = t.Depth()
	report.Duration = time.Since(start)

	f.metrics.RebuildDuration.Record(ctx, report.Duration.Seconds())
	f.metrics.RecordTrieSize(ctx, report.Nodes, report.Commands)
	span.SetAttributes(
		attribute.Int("commands.published", report.Commands),
		attribute.Int("commands.failed", len(report.Failures)),
		attribute.Int("trie.nodes", report.Nodes),
	)
	f.logger.Info("trie: rebuilt",
		"commands", report.Commands,
		"phrases", report.Phrases,
		"failures", len(report.Failures),
		"nodes", report.Nodes,
		"depth", report.Depth,
		"duration", report.Duration,
	)
	return report, nil
}
