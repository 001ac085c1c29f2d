// Package trie folds compiled invocation phrases into a single prefix tree of
// node processors and matches token streams against it.
//
// A [Trie] is immutable once built and is safe for concurrent traversal
// without locking. The [Factory] owns the currently published trie and
// replaces it atomically on every rebuild, so readers always see either the
// old or the new command set, never a mix.
package trie

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/voicetrie/internal/node"
	"github.com/MrWong99/voicetrie/pkg/command"
	"github.com/MrWong99/voicetrie/pkg/tag"
	"github.com/MrWong99/voicetrie/pkg/token"
)

// Node is one frozen trie node.
type Node struct {
	// Processor is the matching step of this node.
	Processor node.Processor

	// Requirements gates the node. Empty means unconditional; otherwise the
	// node is eligible when any requirement is satisfied.
	Requirements []tag.Requirement

	// Children are ordered by the build rules: non-leaves before leaves,
	// then ascending weight.
	Children []*Node
}

// traverse runs n's processor and then the first eligible child branch that
// succeeds. On failure it returns b and tokens unchanged.
func (n *Node) traverse(tokens []token.Token, b node.Builder, active tag.Set) (node.Builder, []token.Token, bool) {
	nb, rest, ok := n.Processor.Process(tokens, b)
	if !ok {
		return b, tokens, false
	}
	if n.Processor.IsLeaf() {
		return nb, rest, true
	}
	for _, c := range eligible(n.Children, active) {
		if cb, cr, ok := c.traverse(rest, nb, active); ok {
			return cb, cr, true
		}
	}
	return b, tokens, false
}

// eligible filters children by active tags and orders them by descending
// specificity. Children of equal specificity keep their built order.
func eligible(children []*Node, active tag.Set) []*Node {
	type scored struct {
		n    *Node
		spec int
	}
	picked := make([]scored, 0, len(children))
	for _, c := range children {
		if spec, ok := tag.Specificity(c.Requirements, active); ok {
			picked = append(picked, scored{c, spec})
		}
	}
	slices.SortStableFunc(picked, func(a, b scored) int { return b.spec - a.spec })

	out := make([]*Node, len(picked))
	for i, s := range picked {
		out[i] = s.n
	}
	return out
}

// Trie is an immutable snapshot of every successfully compiled command.
type Trie struct {
	root     *Node
	commands map[string]command.Descriptor
	depth    int
	nodes    int
}

// TryTraverse matches the front of tokens against the trie under the active
// tag set. On success it returns the parsed command and the tokens left
// after it, which may hold further chained commands. On failure tokens is
// returned unchanged and ok is false.
func (t *Trie) TryTraverse(tokens []token.Token, active tag.Set) (command.Parsed, []token.Token, bool) {
	b, rest, ok := t.root.traverse(tokens, node.Builder{}, active)
	if !ok {
		return command.Parsed{}, tokens, false
	}
	parsed, ok := b.Build()
	if !ok {
		return command.Parsed{}, tokens, false
	}
	return parsed, rest, true
}

// Command returns the descriptor registered under id.
func (t *Trie) Command(id string) (command.Descriptor, bool) {
	d, ok := t.commands[id]
	return d, ok
}

// Commands returns the number of commands with at least one compiled phrase.
func (t *Trie) Commands() int { return len(t.commands) }

// Depth returns the longest root-to-leaf path, which bounds traversal
// recursion.
func (t *Trie) Depth() int { return t.depth }

// Nodes returns the total node count including the root.
func (t *Trie) Nodes() int { return t.nodes }

// Root returns the root node. The tree must not be modified.
func (t *Trie) Root() *Node { return t.root }

// String renders the trie as an indented outline, one node per line.
func (t *Trie) String() string {
	var sb strings.Builder
	var walk func(n *Node, indent int)
	walk = func(n *Node, indent int) {
		sb.WriteString(strings.Repeat("  ", indent))
		sb.WriteString(n.Processor.String())
		if len(n.Requirements) > 0 {
			fmt.Fprintf(&sb, " %v", n.Requirements)
		}
		sb.WriteByte('\n')
		for _, c := range n.Children {
			walk(c, indent+1)
		}
	}
	walk(t.root, 0)
	return sb.String()
}
