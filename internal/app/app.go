// Package app wires all voicetrie subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the tokenizer, publishes
// the first command trie and prepares the HTTP server, Run serves until the
// context is cancelled, Reload applies a changed configuration, and Shutdown
// tears everything down in order.
//
// For testing, inject a listener, metrics and plugin commands via functional
// options.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/voicetrie/internal/commandfile"
	"github.com/MrWong99/voicetrie/internal/config"
	"github.com/MrWong99/voicetrie/internal/dispatch"
	"github.com/MrWong99/voicetrie/internal/health"
	"github.com/MrWong99/voicetrie/internal/ingress"
	"github.com/MrWong99/voicetrie/internal/observe"
	"github.com/MrWong99/voicetrie/internal/registry"
	"github.com/MrWong99/voicetrie/internal/resilience"
	"github.com/MrWong99/voicetrie/internal/trie"
	"github.com/MrWong99/voicetrie/pkg/command"
	"github.com/MrWong99/voicetrie/pkg/tag"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	level    *slog.LevelVar
	metrics  *observe.Metrics
	listener net.Listener

	// Subsystems, initialised in New.
	recognizers *registry.Recognizers
	factory     *trie.Factory
	commands    *registry.Commands
	modes       *dispatch.ModeTags
	dispatcher  atomic.Pointer[dispatch.Dispatcher]
	server      *http.Server

	plugins map[string][]command.Descriptor
	breaker resilience.Config
	guard   *resilience.Guard

	// reloadMu serialises Reload calls.
	reloadMu sync.Mutex

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithLevel lets Reload change the log level of the process logger.
func WithLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMetrics injects a metrics sink instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithListener serves on l instead of listening on server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithRecognizers injects a recognizer registry, for example one with
// plugin recognizers registered.
func WithRecognizers(r *registry.Recognizers) Option {
	return func(a *App) { a.recognizers = r }
}

// WithCommands registers commands contributed by a plugin under source.
// Their activators run behind a per-command breaker.
func WithCommands(source string, descs []command.Descriptor) Option {
	return func(a *App) { a.plugins[source] = descs }
}

// WithActivatorBreaker tunes the breakers guarding plugin activators.
func WithActivatorBreaker(cfg resilience.Config) Option {
	return func(a *App) { a.breaker = cfg }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. It loads every
// command file and publishes the first trie before returning, so a returned
// App is ready to dispatch.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		logger:  slog.Default(),
		plugins: make(map[string][]command.Descriptor),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.recognizers == nil {
		a.recognizers = registry.NewRecognizers()
	}

	// ── 1. Trie + registry ───────────────────────────────────────────────
	a.guard = resilience.NewGuard(a.breaker, resilience.WithLogger(a.logger))
	a.factory = trie.NewFactory(trie.WithLogger(a.logger), trie.WithMetrics(a.metrics))
	a.commands = registry.NewCommands(a.factory, registry.WithLogger(a.logger))
	a.modes = dispatch.NewModeTags(tag.Tag(cfg.Dispatch.InitialModeOrDefault()))

	// ── 2. Dispatcher ────────────────────────────────────────────────────
	if err := a.initDispatcher(cfg); err != nil {
		return nil, fmt.Errorf("app: init dispatcher: %w", err)
	}

	// ── 3. Commands ──────────────────────────────────────────────────────
	if err := a.initCommands(ctx); err != nil {
		return nil, fmt.Errorf("app: init commands: %w", err)
	}

	// ── 4. HTTP server ───────────────────────────────────────────────────
	a.initServer()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initDispatcher builds a dispatcher for cfg and publishes it.
func (a *App) initDispatcher(cfg *config.Config) error {
	tok, err := a.recognizers.Tokenizer(cfg.Tokenizer)
	if err != nil {
		return err
	}
	d := dispatch.New(tok, a.factory,
		dispatch.WithTagSource(a.modes),
		dispatch.WithSkipUnmatched(cfg.Dispatch.SkipUnmatchedOrDefault()),
		dispatch.WithLogger(a.logger),
		dispatch.WithMetrics(a.metrics),
	)
	a.dispatcher.Store(d)
	return nil
}

// initCommands registers plugin commands and command files, then makes sure
// a trie is published even when there are no commands at all.
func (a *App) initCommands(ctx context.Context) error {
	for source, descs := range a.plugins {
		if _, err := a.commands.Register(ctx, source, a.guard.Wrap(descs)); err != nil {
			return err
		}
	}
	if err := commandfile.Sync(ctx, a.commands, a.cfg.Commands.Files, nil, a.bindings()); err != nil {
		return err
	}
	if !a.factory.Ready() {
		if _, err := a.commands.Rebuild(ctx); err != nil {
			return err
		}
	}
	a.logger.Info("app: commands loaded",
		"sources", len(a.commands.Sources()),
		"commands", a.factory.Get().Commands(),
	)
	return nil
}

func (a *App) initServer() {
	mux := http.NewServeMux()
	ingress.New(a, ingress.WithCatalog(a.commands), ingress.WithLogger(a.logger), ingress.WithMetrics(a.metrics)).Register(mux)
	health.New(health.TrieReady(a.factory)).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (a *App) bindings() commandfile.Bindings {
	return commandfile.Bindings{Modes: a.modes, Logger: a.logger}
}

// Dispatch hands text to the current dispatcher. It implements
// [ingress.Dispatcher] so that Reload can swap the dispatcher underneath
// open connections.
func (a *App) Dispatch(ctx context.Context, text string, extra ...tag.Tag) (dispatch.Result, error) {
	return a.dispatcher.Load().Dispatch(ctx, text, extra...)
}

// Modes returns the activation mode source shared by all commands.
func (a *App) Modes() *dispatch.ModeTags {
	return a.modes
}

// Handler returns the HTTP handler serving all routes.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and blocks until ctx is cancelled or the server fails.
// When ctx is done, Run returns context.Canceled (or the underlying cause).
func (a *App) Run(ctx context.Context) error {
	// Reload swaps a.cfg; the serve goroutine only sees this copy.
	a.reloadMu.Lock()
	srv := a.cfg.Server
	a.reloadMu.Unlock()

	ln := a.listener
	if ln == nil {
		addr := srv.ListenAddr
		if addr == "" {
			addr = ":8080"
		}
		var err error
		ln, err = net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("app: listen %q: %w", addr, err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := srv.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	a.logger.Info("app: running", "addr", ln.Addr().String())
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	}
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable parts of next. Command files are always
// re-read since their content may have changed even when the file list did
// not. Settings that need a restart are logged and ignored.
func (a *App) Reload(ctx context.Context, prev, next *config.Config) error {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	d := config.Diff(prev, next)
	var errs []error

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		a.logger.Info("app: log level changed", "level", d.NewLogLevel)
	}
	if d.TokenizerChanged || d.SkipUnmatchedChanged {
		if err := a.initDispatcher(next); err != nil {
			errs = append(errs, fmt.Errorf("app: reload dispatcher: %w", err))
		} else {
			a.logger.Info("app: dispatcher rebuilt",
				"tokenizer_changed", d.TokenizerChanged,
				"skip_unmatched", next.Dispatch.SkipUnmatchedOrDefault(),
			)
		}
	}
	if d.CommandFilesChanged() {
		a.logger.Info("app: command files changed", "added", d.AddedFiles, "removed", d.RemovedFiles)
	}
	if err := commandfile.Sync(ctx, a.commands, next.Commands.Files, prev.Commands.Files, a.bindings()); err != nil {
		errs = append(errs, fmt.Errorf("app: reload commands: %w", err))
	}
	if d.RestartRequired {
		a.logger.Warn("app: some changes need a restart to take effect",
			"listen_addr", next.Server.ListenAddr,
			"initial_mode", next.Dispatch.InitialModeOrDefault(),
		)
	}

	a.cfg = next
	return errors.Join(errs...)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server, waiting for in-flight requests until ctx
// expires, then runs the registered closers in order.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.logger.Info("app: shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("app: http shutdown error", "err", err)
			shutdownErr = err
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.logger.Warn("app: shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.logger.Warn("app: closer error", "index", i, "err", err)
			}
		}

		a.logger.Info("app: shutdown complete")
	})
	return shutdownErr
}

// OnShutdown registers fn to run during Shutdown, after the server stopped.
func (a *App) OnShutdown(fn func() error) {
	a.closers = append(a.closers, fn)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// SlogLevel converts a config log level to a slog level. Unknown and empty
// levels map to info.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}
