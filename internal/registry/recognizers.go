// Package registry holds the process-wide sets that plugins extend: the
// voice commands they contribute and the recognizers that make up the
// tokenizer chain.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/voicetrie/internal/config"
	"github.com/MrWong99/voicetrie/pkg/token"
	"github.com/MrWong99/voicetrie/pkg/tokenize"
)

// ErrRecognizerNotRegistered is returned by [Recognizers.Create] when no
// factory has been registered under the requested name.
var ErrRecognizerNotRegistered = errors.New("registry: recognizer not registered")

// RecognizerFactory builds a recognizer from the tokenizer configuration.
type RecognizerFactory func(cfg config.TokenizerConfig) (tokenize.Recognizer, error)

// Recognizers maps recognizer names to their constructor functions. It is
// safe for concurrent use.
type Recognizers struct {
	mu        sync.RWMutex
	factories map[string]RecognizerFactory
}

// NewRecognizers returns a registry pre-populated with the built-in
// recognizers.
func NewRecognizers() *Recognizers {
	r := &Recognizers{factories: make(map[string]RecognizerFactory)}
	r.Register(config.RecognizerNumbers, func(config.TokenizerConfig) (tokenize.Recognizer, error) {
		return tokenize.Numbers(), nil
	})
	r.Register(config.RecognizerSpelledNumbers, func(config.TokenizerConfig) (tokenize.Recognizer, error) {
		return tokenize.SpelledNumbers(), nil
	})
	r.Register(config.RecognizerHomophones, func(cfg config.TokenizerConfig) (tokenize.Recognizer, error) {
		return tokenize.Homophones(cfg.Homophones), nil
	})
	r.Register(config.RecognizerPhonetic, func(cfg config.TokenizerConfig) (tokenize.Recognizer, error) {
		if cfg.PhoneticEncoder == "" {
			return tokenize.Phonetic(token.DoubleMetaphone), nil
		}
		kind, err := token.ParseEncoderKind(cfg.PhoneticEncoder)
		if err != nil {
			return nil, err
		}
		return tokenize.Phonetic(kind), nil
	})
	return r
}

// Register registers a recognizer factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Recognizers) Register(name string, factory RecognizerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates the recognizer registered under name.
// Returns [ErrRecognizerNotRegistered] if no factory has been registered for
// that name.
func (r *Recognizers) Create(name string, cfg config.TokenizerConfig) (tokenize.Recognizer, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: recognizer/%q", ErrRecognizerNotRegistered, name)
	}
	return factory(cfg)
}

// Tokenizer builds a tokenizer whose recognizer chain follows
// cfg.Recognizers. All failing entries are reported together.
func (r *Recognizers) Tokenizer(cfg config.TokenizerConfig) (*tokenize.Tokenizer, error) {
	chain := make([]tokenize.Recognizer, 0, len(cfg.Recognizers))
	var errs []error
	for _, name := range cfg.Recognizers {
		rec, err := r.Create(name, cfg)
		if err != nil {
			errs = append(errs, fmt.Errorf("registry: build tokenizer: %w", err))
			continue
		}
		chain = append(chain, rec)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return tokenize.New(chain...), nil
}
