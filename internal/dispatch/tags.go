package dispatch

import (
	"sync"

	"github.com/MrWong99/voicetrie/pkg/tag"
)

// TagSource supplies the tags active at match time.
type TagSource interface {
	Tags() tag.Set
}

// TagSourceFunc adapts a function to [TagSource].
type TagSourceFunc func() tag.Set

// Tags calls f.
func (f TagSourceFunc) Tags() tag.Set { return f() }

// ModeTags is a mutable [TagSource] holding one activation mode plus any
// number of free-form tags. Activators use it to switch modes, for example
// from "command" to "dictation". It is safe for concurrent use.
type ModeTags struct {
	mu    sync.RWMutex
	mode  tag.Tag
	extra tag.Set
}

// NewModeTags returns a source in the given mode with no extra tags.
func NewModeTags(mode tag.Tag) *ModeTags {
	return &ModeTags{mode: mode, extra: tag.NewSet()}
}

// Tags returns a snapshot of the mode and the extra tags.
func (m *ModeTags) Tags() tag.Set {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.extra.With(m.mode)
}

// Mode returns the current mode.
func (m *ModeTags) Mode() tag.Tag {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// SetMode replaces the current mode and returns the previous one.
func (m *ModeTags) SetMode(mode tag.Tag) tag.Tag {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.mode
	m.mode = mode
	return prev
}

// Add activates tags.
func (m *ModeTags) Add(tags ...tag.Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extra = m.extra.With(tags...)
}

// Remove deactivates tags. Removing the current mode has no effect; use
// SetMode instead.
func (m *ModeTags) Remove(tags ...tag.Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.extra.With()
	for _, t := range tags {
		delete(next, t)
	}
	m.extra = next
}
