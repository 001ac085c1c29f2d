package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Watcher monitors a config file and the command files it references, and
// calls a callback when any of them is modified. It polls instead of using
// filesystem notifications.
//
// The callback receives the previous and the new config. When only a command
// file changed, both configs are equal per [Diff] and the callback should
// reload commands.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu       sync.Mutex
	current  *Config
	done     chan struct{}
	stopOnce sync.Once

	// last known file state for change detection
	lastMtimes map[string]time.Time
	lastHash   [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher creates a config file watcher. It loads the initial config
// immediately and starts polling in a background goroutine.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, hash, mtimes, err := w.loadAndHash()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.lastHash = hash
	w.lastMtimes = mtimes

	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops the file watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check reloads when any watched file has a new mtime and different content.
func (w *Watcher) check() {
	w.mu.Lock()
	mtimes := w.lastMtimes
	w.mu.Unlock()

	if !w.touched(mtimes) {
		return
	}

	cfg, hash, newMtimes, err := w.loadAndHash()
	if err != nil {
		slog.Warn("config: watcher failed to load config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if hash == w.lastHash {
		// Touched but content is identical.
		w.lastMtimes = newMtimes
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current = cfg
	w.lastHash = hash
	w.lastMtimes = newMtimes
	w.mu.Unlock()

	slog.Info("config: configuration reloaded", "path", w.path)

	// Outside the lock so the callback can call Current.
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// touched reports whether any watched file's mtime differs from mtimes, or
// a file appeared or disappeared.
func (w *Watcher) touched(mtimes map[string]time.Time) bool {
	for path, last := range mtimes {
		info, err := os.Stat(path)
		if err != nil {
			if path == w.path {
				slog.Warn("config: watcher cannot stat file", "path", path, "err", err)
				return false
			}
			// A removed command file is a change.
			if !last.IsZero() {
				return true
			}
			continue
		}
		if !info.ModTime().Equal(last) {
			return true
		}
	}
	return false
}

// loadAndHash reads and validates the config file, then hashes it together
// with every command file it references. A missing command file hashes as
// empty so that its later creation is detected.
func (w *Watcher) loadAndHash() (*Config, [sha256.Size]byte, map[string]time.Time, error) {
	var zero [sha256.Size]byte

	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, zero, nil, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, zero, nil, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, zero, nil, err
	}
	resolvePaths(cfg, filepath.Dir(w.path))

	h := sha256.New()
	h.Write(data)
	mtimes := map[string]time.Time{w.path: info.ModTime()}
	for _, f := range cfg.Commands.Files {
		fmt.Fprintf(h, "\x00%s\x00", f)
		content, err := os.ReadFile(f)
		if err != nil {
			mtimes[f] = time.Time{}
			continue
		}
		h.Write(content)
		if fi, err := os.Stat(f); err == nil {
			mtimes[f] = fi.ModTime()
		}
	}

	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return cfg, sum, mtimes, nil
}
