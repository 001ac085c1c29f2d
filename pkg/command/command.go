// Package command defines the explicit, statically typed descriptor through
// which plugins contribute voice commands, and the parsed result handed back
// to a command's activator.
//
// A [Descriptor] replaces runtime discovery: the plugin author states the
// stable id, one or more invocation phrases written in the phrase DSL, the
// tag requirements that gate the command, and any named values referenced by
// `[_name]` capture lists.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/voicetrie/pkg/tag"
	"github.com/MrWong99/voicetrie/pkg/token"
)

// Activator executes a matched command.
type Activator func(ctx context.Context, p Parsed) error

// Descriptor declares one voice command.
type Descriptor struct {
	// ID is the stable, unique identifier of the command.
	ID string

	// Phrases lists the invocation phrases. Each phrase is compiled
	// independently; any of them triggers the command.
	Phrases []string

	// Requirements gates the command by active tags. The command is eligible
	// when any requirement is fully satisfied. Empty means always eligible.
	Requirements []tag.Requirement

	// Captured holds named values referenced by `[_name]` lists in the
	// phrases. Values may be a string, []string, token.Token, []token.Token
	// or []any of those.
	Captured map[string]any

	// Activator runs when the command matches. May be nil for commands that
	// are only matched, never executed (tests, dry runs).
	Activator Activator

	// Source names the plugin or file that contributed the command. Set by
	// the registry; informational only.
	Source string
}

// Validate checks the fields that do not depend on the phrase DSL.
func (d Descriptor) Validate() error {
	var errs []error
	if strings.TrimSpace(d.ID) == "" {
		errs = append(errs, errors.New("command: id is required"))
	}
	if len(d.Phrases) == 0 {
		errs = append(errs, fmt.Errorf("command %q: at least one phrase is required", d.ID))
	}
	for i, p := range d.Phrases {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("command %q: phrases[%d] is empty", d.ID, i))
		}
	}
	return errors.Join(errs...)
}

// Entry is one (command id, phrase, requirements, captured values) tuple, the
// unit folded into the trie.
type Entry struct {
	CommandID    string
	Phrase       string
	Requirements []tag.Requirement
	Captured     map[string]any
}

// Entries expands d into one entry per phrase.
func (d Descriptor) Entries() []Entry {
	out := make([]Entry, 0, len(d.Phrases))
	for _, p := range d.Phrases {
		out = append(out, Entry{
			CommandID:    d.ID,
			Phrase:       p,
			Requirements: d.Requirements,
			Captured:     d.Captured,
		})
	}
	return out
}

// Parsed is a successfully matched command with its captured parameters.
type Parsed struct {
	CommandID  string
	Parameters map[string]token.Token
}

// Has reports whether the parameter name was captured. Optional flags are
// reported through Has since their value is [token.Empty].
func (p Parsed) Has(name string) bool {
	_, ok := p.Parameters[name]
	return ok
}

// String returns the spoken form of the named parameter.
func (p Parsed) String(name string) (string, bool) {
	t, ok := p.Parameters[name]
	if !ok {
		return "", false
	}
	return t.String(), true
}

// Int returns the named parameter when it was captured as a number.
func (p Parsed) Int(name string) (int, bool) {
	n, ok := p.Parameters[name].(token.Number)
	if !ok {
		return 0, false
	}
	return n.Value, true
}
