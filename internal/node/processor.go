// Package node implements the executable matching steps produced by the
// phrase compiler and arranged into the command trie.
//
// Each [Processor] consumes zero or more tokens from the front of the
// remaining stream and reports success together with an updated [Builder].
// Processors are pure: they hold no per-call state, never mutate their input,
// and on failure return the builder and tokens they were given unchanged.
//
// The set of processors is closed. Besides matching, every processor exposes
// [Processor.IsLeaf] and [Processor.Weight], which the trie uses to order
// sibling branches so that specific continuations are tried before open-ended
// ones.
package node

import (
	"math"
	"strconv"
	"strings"

	"github.com/MrWong99/voicetrie/pkg/token"
)

// MaxWeight is the weight of the least specific processors.
const MaxWeight = math.MaxInt32

// Processor is one compiled matching step.
type Processor interface {
	// Process matches against the front of tokens. On success it returns the
	// extended builder and the tokens left over. On failure it returns b and
	// tokens unchanged.
	Process(tokens []token.Token, b Builder) (Builder, []token.Token, bool)

	// IsLeaf reports whether the processor terminates a command.
	IsLeaf() bool

	// Weight orders siblings: lower weights are attempted first.
	Weight() int

	// Equal reports structural equality, used to share trie prefixes.
	Equal(other Processor) bool

	String() string

	sealed()
}

// Word matches one token equal to Expected.
type Word struct {
	Expected token.Token
}

func (p Word) Process(tokens []token.Token, b Builder) (Builder, []token.Token, bool) {
	if len(tokens) == 0 || !token.Equal(p.Expected, tokens[0]) {
		return b, tokens, false
	}
	return b, tokens[1:], true
}

func (Word) IsLeaf() bool { return false }
func (Word) Weight() int  { return 1 }
func (Word) sealed()      {}

func (p Word) Equal(other Processor) bool {
	o, ok := other.(Word)
	return ok && token.Same(p.Expected, o.Expected)
}

func (p Word) String() string { return p.Expected.String() }

// Number captures one numeric token under Name.
type Number struct {
	Name string
}

func (p Number) Process(tokens []token.Token, b Builder) (Builder, []token.Token, bool) {
	if len(tokens) == 0 {
		return b, tokens, false
	}
	n, ok := tokens[0].(token.Number)
	if !ok {
		return b, tokens, false
	}
	return b.With(p.Name, n), tokens[1:], true
}

func (Number) IsLeaf() bool { return false }
func (Number) Weight() int  { return 1 }
func (Number) sealed()      {}

func (p Number) Equal(other Processor) bool {
	o, ok := other.(Number)
	return ok && o.Name == p.Name
}

func (p Number) String() string { return "#" + p.Name }

// OneOf captures the candidate literal that matches the front of the stream.
// Candidates may be [token.Merged] to match several words. When more than one
// candidate matches, the one covering the most tokens wins; ties go to the
// earlier candidate.
type OneOf struct {
	Name       string
	Candidates []token.Token
}

func (p OneOf) Process(tokens []token.Token, b Builder) (Builder, []token.Token, bool) {
	best, bestN := -1, 0
	for i, c := range p.Candidates {
		if n, ok := token.MatchPrefix(c, tokens); ok && n > bestN {
			best, bestN = i, n
		}
	}
	if best < 0 {
		return b, tokens, false
	}
	if p.Name != "" {
		b = b.With(p.Name, p.Candidates[best])
	}
	return b, tokens[bestN:], true
}

func (OneOf) IsLeaf() bool  { return false }
func (p OneOf) Weight() int { return len(p.Candidates) }
func (OneOf) sealed()       {}

func (p OneOf) Equal(other Processor) bool {
	o, ok := other.(OneOf)
	return ok && o.Name == p.Name && token.SameAll(p.Candidates, o.Candidates)
}

func (p OneOf) String() string {
	parts := make([]string, len(p.Candidates))
	for i, c := range p.Candidates {
		parts[i] = c.String()
	}
	return "[" + strings.Join(parts, "|") + "]" + suffix(p.Name)
}

// Optional always succeeds. When Inner matches, its result is kept and Flag
// is bound to [token.Empty]; otherwise nothing is consumed.
type Optional struct {
	Flag  string
	Inner Processor
}

func (p Optional) Process(tokens []token.Token, b Builder) (Builder, []token.Token, bool) {
	nb, rest, ok := p.Inner.Process(tokens, b)
	if !ok {
		return b, tokens, true
	}
	if p.Flag != "" {
		nb = nb.With(p.Flag, token.Empty{})
	}
	return nb, rest, true
}

func (Optional) IsLeaf() bool  { return false }
func (p Optional) Weight() int { return p.Inner.Weight() }
func (Optional) sealed()       {}

func (p Optional) Equal(other Processor) bool {
	o, ok := other.(Optional)
	return ok && o.Flag == p.Flag && p.Inner.Equal(o.Inner)
}

func (p Optional) String() string { return "?[" + p.Inner.String() + "]" + suffix(p.Flag) }

// Wildcard captures exactly one token of any kind.
type Wildcard struct {
	Name string
}

func (p Wildcard) Process(tokens []token.Token, b Builder) (Builder, []token.Token, bool) {
	if len(tokens) == 0 {
		return b, tokens, false
	}
	return b.With(p.Name, tokens[0]), tokens[1:], true
}

func (Wildcard) IsLeaf() bool { return false }
func (Wildcard) Weight() int  { return MaxWeight - 1 }
func (Wildcard) sealed()      {}

func (p Wildcard) Equal(other Processor) bool {
	o, ok := other.(Wildcard)
	return ok && o.Name == p.Name
}

func (p Wildcard) String() string { return "*" + p.Name }

// RepeatingWildcard captures up to Count tokens, or every remaining token
// when Count is negative, as one [token.Word] joined with single spaces. It
// fails only when no tokens remain.
type RepeatingWildcard struct {
	Name  string
	Count int
}

func (p RepeatingWildcard) Process(tokens []token.Token, b Builder) (Builder, []token.Token, bool) {
	if len(tokens) == 0 {
		return b, tokens, false
	}
	n := len(tokens)
	if p.Count >= 0 {
		n = min(p.Count, n)
	}
	if n == 0 {
		return b, tokens, false
	}
	return b.With(p.Name, token.Word{Value: token.Join(tokens[:n])}), tokens[n:], true
}

func (RepeatingWildcard) IsLeaf() bool { return false }
func (RepeatingWildcard) Weight() int  { return MaxWeight }
func (RepeatingWildcard) sealed()      {}

func (p RepeatingWildcard) Equal(other Processor) bool {
	o, ok := other.(RepeatingWildcard)
	return ok && o.Name == p.Name && o.Count == p.Count
}

func (p RepeatingWildcard) String() string {
	if p.Count < 0 {
		return "**" + p.Name
	}
	return "**" + p.Name + "{" + strconv.Itoa(p.Count) + "}"
}

// And matches every inner processor in sequence and rolls back entirely if
// any of them fails.
type And struct {
	Inner []Processor
}

func (p And) Process(tokens []token.Token, b Builder) (Builder, []token.Token, bool) {
	cur, rest := b, tokens
	for _, inner := range p.Inner {
		var ok bool
		cur, rest, ok = inner.Process(rest, cur)
		if !ok {
			return b, tokens, false
		}
	}
	return cur, rest, true
}

func (And) IsLeaf() bool { return false }

// Weight is the larger of the saturating sum and the largest inner weight.
func (p And) Weight() int {
	sum, largest := 0, 0
	for _, inner := range p.Inner {
		w := inner.Weight()
		sum = saturatingAdd(sum, w)
		largest = max(largest, w)
	}
	return max(sum, largest)
}

func (And) sealed() {}

func (p And) Equal(other Processor) bool {
	o, ok := other.(And)
	return ok && equalAll(p.Inner, o.Inner)
}

func (p And) String() string { return "&[" + joinProcessors(p.Inner) + "]" }

// Or succeeds with the first inner processor that succeeds and binds Name to
// its index as a [token.Number].
type Or struct {
	Name  string
	Inner []Processor
}

func (p Or) Process(tokens []token.Token, b Builder) (Builder, []token.Token, bool) {
	for i, inner := range p.Inner {
		nb, rest, ok := inner.Process(tokens, b)
		if !ok {
			continue
		}
		if p.Name != "" {
			nb = nb.With(p.Name, token.Number{Value: i})
		}
		return nb, rest, true
	}
	return b, tokens, false
}

func (Or) IsLeaf() bool { return false }

// Weight is the smallest inner weight.
func (p Or) Weight() int {
	if len(p.Inner) == 0 {
		return MaxWeight
	}
	w := MaxWeight
	for _, inner := range p.Inner {
		w = min(w, inner.Weight())
	}
	return w
}

func (Or) sealed() {}

func (p Or) Equal(other Processor) bool {
	o, ok := other.(Or)
	return ok && o.Name == p.Name && equalAll(p.Inner, o.Inner)
}

func (p Or) String() string { return "[" + joinProcessors(p.Inner) + "]" + suffix(p.Name) }

// Empty always succeeds without consuming. It sits at the trie root.
type Empty struct{}

func (Empty) Process(tokens []token.Token, b Builder) (Builder, []token.Token, bool) {
	return b, tokens, true
}

func (Empty) IsLeaf() bool { return false }
func (Empty) Weight() int  { return MaxWeight }
func (Empty) sealed()      {}

func (Empty) Equal(other Processor) bool {
	_, ok := other.(Empty)
	return ok
}

func (Empty) String() string { return "<root>" }

// CommandSuccess terminates a compiled command and marks the builder
// successful for CommandID.
type CommandSuccess struct {
	CommandID string
}

func (p CommandSuccess) Process(tokens []token.Token, b Builder) (Builder, []token.Token, bool) {
	return b.Succeed(p.CommandID), tokens, true
}

func (CommandSuccess) IsLeaf() bool { return true }
func (CommandSuccess) Weight() int  { return MaxWeight }
func (CommandSuccess) sealed()      {}

func (p CommandSuccess) Equal(other Processor) bool {
	o, ok := other.(CommandSuccess)
	return ok && o.CommandID == p.CommandID
}

func (p CommandSuccess) String() string { return "=> " + p.CommandID }

func saturatingAdd(a, b int) int {
	if a > MaxWeight-b {
		return MaxWeight
	}
	return a + b
}

func equalAll(a, b []Processor) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func joinProcessors(ps []Processor) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.String()
	}
	return strings.Join(parts, "|")
}

func suffix(name string) string {
	if name == "" {
		return ""
	}
	return ":" + name
}
