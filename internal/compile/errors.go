package compile

import (
	"errors"
	"fmt"
)

// ErrSyntax is wrapped by every [*Error].
var ErrSyntax = errors.New("compile: syntax error")

// Error describes a phrase that could not be compiled.
type Error struct {
	// Phrase is the full invocation phrase.
	Phrase string

	// Word is the innermost pattern word that was rejected. Empty when the
	// phrase as a whole is malformed.
	Word string

	// Reason is a short human-readable explanation.
	Reason string
}

func (e *Error) Error() string {
	if e.Word == "" {
		return fmt.Sprintf("compile: phrase %q: %s", e.Phrase, e.Reason)
	}
	return fmt.Sprintf("compile: phrase %q: word %q: %s", e.Phrase, e.Word, e.Reason)
}

func (e *Error) Unwrap() error { return ErrSyntax }
