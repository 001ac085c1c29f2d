// Package token defines the immutable values that flow between the tokenizer
// and the command matcher.
//
// A transcription is turned into an ordered []Token by the tokenizer. The
// matcher then compares pattern tokens (compiled from invocation phrases)
// against the live stream using [Token.Match].
//
// Match is not symmetric in representation: a [Homophones] or [Encoding]
// token carries extra equivalence information that a plain [Word] does not
// know about. Whenever two tokens of possibly different kinds are compared,
// use [Equal], which evaluates the relation from both sides.
//
// The set of variants is closed. All variants are plain values and are safe
// to share between goroutines.
package token

import (
	"slices"
	"strconv"
	"strings"
)

// Token is a single unit of a tokenized transcription or of a compiled
// pattern.
type Token interface {
	// String returns the spoken form of the token. Multi-token values join
	// their parts with a single space.
	String() string

	// Match reports whether other is recognised as equivalent to the
	// receiver from the receiver's point of view.
	Match(other Token) bool

	sealed()
}

// wordLike is implemented by every token that carries a single spoken word.
type wordLike interface {
	wordValue() string
}

// Word is a literal word. Comparison is case-insensitive.
type Word struct {
	Value string
}

func (w Word) String() string    { return w.Value }
func (w Word) wordValue() string { return w.Value }
func (Word) sealed()             {}

// Match reports whether other is a word-like token with the same lowercased
// value.
func (w Word) Match(other Token) bool {
	o, ok := other.(wordLike)
	if !ok {
		return false
	}
	return strings.EqualFold(w.Value, o.wordValue())
}

// Number is an integer recognised in the transcription.
type Number struct {
	Value int
}

func (n Number) String() string { return strconv.Itoa(n.Value) }
func (Number) sealed()          {}

// Match reports whether other is a Number with the same value.
func (n Number) Match(other Token) bool {
	o, ok := other.(Number)
	return ok && o.Value == n.Value
}

// Empty marks a matched optional group. It carries no value; its presence in
// the captured parameters is the information.
type Empty struct{}

func (Empty) String() string { return "" }
func (Empty) sealed()        {}

// Match reports whether other is also Empty.
func (Empty) Match(other Token) bool {
	_, ok := other.(Empty)
	return ok
}

// Homophones is a word that also stands for a list of alternate spellings,
// for example "two" with alternates "to" and "too".
type Homophones struct {
	Base       Word
	Alternates []string
}

func (h Homophones) String() string    { return h.Base.Value }
func (h Homophones) wordValue() string { return h.Base.Value }
func (Homophones) sealed()             {}

// Match reports whether other matches the base word or spells one of the
// alternates.
func (h Homophones) Match(other Token) bool {
	if h.Base.Match(other) {
		return true
	}
	o, ok := other.(wordLike)
	if !ok {
		return false
	}
	v := o.wordValue()
	return slices.ContainsFunc(h.Alternates, func(alt string) bool {
		return strings.EqualFold(alt, v)
	})
}

// Encoding is a word compared by phonetic key rather than spelling.
type Encoding struct {
	Value string
	Kind  EncoderKind
}

func (e Encoding) String() string    { return e.Value }
func (e Encoding) wordValue() string { return e.Value }
func (Encoding) sealed()             {}

// Match reports whether other is a word-like token that shares at least one
// phonetic key with the receiver. When a key cannot be computed for either
// side, Match falls back to a case-insensitive string comparison.
func (e Encoding) Match(other Token) bool {
	o, ok := other.(wordLike)
	if !ok {
		return false
	}
	v := o.wordValue()
	mine := Keys(e.Value, e.Kind)
	theirs := Keys(v, e.Kind)
	if len(mine) == 0 || len(theirs) == 0 {
		return strings.EqualFold(e.Value, v)
	}
	for _, k := range mine {
		if slices.Contains(theirs, k) {
			return true
		}
	}
	return false
}

// Merged is a multi-word literal. It matches a contiguous slice of the live
// stream (see [MatchPrefix]) rather than a single token.
type Merged struct {
	Tokens []Token
}

func (m Merged) String() string {
	parts := make([]string, len(m.Tokens))
	for i, t := range m.Tokens {
		parts[i] = t.String()
	}
	return strings.Join(parts, " ")
}

func (Merged) sealed() {}

// Match compares two Merged tokens element by element. A Merged token never
// matches a single token; use [MatchPrefix] against a stream instead.
func (m Merged) Match(other Token) bool {
	o, ok := other.(Merged)
	if !ok || len(o.Tokens) != len(m.Tokens) {
		return false
	}
	for i := range m.Tokens {
		if !Equal(m.Tokens[i], o.Tokens[i]) {
			return false
		}
	}
	return true
}

// Equal evaluates the match relation from both sides: a.Match(b) || b.Match(a).
func Equal(a, b Token) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Match(b) || b.Match(a)
}

// MatchPrefix reports whether candidate matches the front of stream and how
// many stream tokens it covers. A [Merged] candidate must match a contiguous
// run of len(candidate.Tokens) tokens; any other candidate matches exactly
// one token.
func MatchPrefix(candidate Token, stream []Token) (int, bool) {
	if m, ok := candidate.(Merged); ok {
		if len(m.Tokens) == 0 || len(stream) < len(m.Tokens) {
			return 0, false
		}
		for i, t := range m.Tokens {
			if !Equal(t, stream[i]) {
				return 0, false
			}
		}
		return len(m.Tokens), true
	}
	if len(stream) == 0 || !Equal(candidate, stream[0]) {
		return 0, false
	}
	return 1, true
}

// Same reports structural identity of two tokens. Unlike [Equal] it ignores
// phonetic and homophone equivalence; it is used to decide whether two
// compiled patterns can share a trie node.
func Same(a, b Token) bool {
	switch x := a.(type) {
	case Word:
		y, ok := b.(Word)
		return ok && strings.EqualFold(x.Value, y.Value)
	case Number:
		y, ok := b.(Number)
		return ok && x.Value == y.Value
	case Empty:
		_, ok := b.(Empty)
		return ok
	case Homophones:
		y, ok := b.(Homophones)
		return ok && strings.EqualFold(x.Base.Value, y.Base.Value) && slices.Equal(x.Alternates, y.Alternates)
	case Encoding:
		y, ok := b.(Encoding)
		return ok && x.Kind == y.Kind && strings.EqualFold(x.Value, y.Value)
	case Merged:
		y, ok := b.(Merged)
		return ok && SameAll(x.Tokens, y.Tokens)
	}
	return false
}

// SameAll applies [Same] pairwise.
func SameAll(a, b []Token) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Same(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Words converts a literal string into a token: a single [Word] when s holds
// one word, or a [Merged] of words when it holds several. ok is false when s
// contains no words.
func Words(s string) (Token, bool) {
	fields := strings.Fields(s)
	switch len(fields) {
	case 0:
		return nil, false
	case 1:
		return Word{Value: fields[0]}, true
	}
	ts := make([]Token, len(fields))
	for i, f := range fields {
		ts[i] = Word{Value: f}
	}
	return Merged{Tokens: ts}, true
}

// Join renders tokens as their spoken forms separated by single spaces.
func Join(tokens []Token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t.String()
	}
	return strings.Join(parts, " ")
}
