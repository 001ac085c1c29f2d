package registry

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/voicetrie/internal/trie"
	"github.com/MrWong99/voicetrie/pkg/command"
)

// Rebuilder publishes a new command set. [*trie.Factory] implements it.
type Rebuilder interface {
	Set(ctx context.Context, descs []command.Descriptor) (trie.Report, error)
}

// Commands groups command descriptors by the source that contributed them,
// a plugin name or a command file path. Every change republishes the full
// set through the [Rebuilder]. It is safe for concurrent use.
type Commands struct {
	target Rebuilder
	logger *slog.Logger

	mu      sync.Mutex
	sources map[string][]command.Descriptor
}

// CommandsOption configures [Commands].
type CommandsOption func(*Commands)

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) CommandsOption {
	return func(c *Commands) { c.logger = l }
}

// NewCommands returns an empty registry that publishes to target.
func NewCommands(target Rebuilder, opts ...CommandsOption) *Commands {
	c := &Commands{
		target:  target,
		logger:  slog.Default(),
		sources: make(map[string][]command.Descriptor),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Register replaces the commands contributed by source and rebuilds. The
// returned report lists commands that were excluded because their phrases
// did not compile; those are not errors.
//
// If the rebuild is aborted the previous commands of source are restored,
// so the registry and the published trie stay in step.
func (c *Commands) Register(ctx context.Context, source string, descs []command.Descriptor) (trie.Report, error) {
	if source == "" {
		return trie.Report{}, fmt.Errorf("registry: register: source is required")
	}
	stamped := make([]command.Descriptor, len(descs))
	for i, d := range descs {
		d.Source = source
		stamped[i] = d
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, existed := c.sources[source]
	c.sources[source] = stamped
	report, err := c.publish(ctx)
	if err != nil {
		c.restore(source, prev, existed)
		return report, fmt.Errorf("registry: register %q: %w", source, err)
	}
	c.logger.Info("registry: commands registered",
		"source", source,
		"commands", len(stamped),
		"failures", len(report.Failures),
	)
	return report, nil
}

// Unregister removes every command contributed by source and rebuilds.
// Unregistering an unknown source is a no-op that still republishes.
func (c *Commands) Unregister(ctx context.Context, source string) (trie.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, existed := c.sources[source]
	delete(c.sources, source)
	report, err := c.publish(ctx)
	if err != nil {
		c.restore(source, prev, existed)
		return report, fmt.Errorf("registry: unregister %q: %w", source, err)
	}
	if existed {
		c.logger.Info("registry: commands unregistered", "source", source, "commands", len(prev))
	}
	return report, nil
}

// Rebuild republishes the current set unchanged, for example after the
// tokenizer configuration changed.
func (c *Commands) Rebuild(ctx context.Context) (trie.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.publish(ctx)
}

// Snapshot returns all registered descriptors sorted by source, then id.
func (c *Commands) Snapshot() []command.Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Sources returns the registered source names in sorted order.
func (c *Commands) Sources() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.sources))
}

func (c *Commands) snapshot() []command.Descriptor {
	var out []command.Descriptor
	for _, src := range slices.Sorted(maps.Keys(c.sources)) {
		descs := slices.Clone(c.sources[src])
		slices.SortStableFunc(descs, func(a, b command.Descriptor) int {
			return cmp.Compare(a.ID, b.ID)
		})
		out = append(out, descs...)
	}
	return out
}

// publish must be called with c.mu held.
func (c *Commands) publish(ctx context.Context) (trie.Report, error) {
	return c.target.Set(ctx, c.snapshot())
}

func (c *Commands) restore(source string, prev []command.Descriptor, existed bool) {
	if existed {
		c.sources[source] = prev
	} else {
		delete(c.sources, source)
	}
}
