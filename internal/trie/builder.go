package trie

import (
	"cmp"
	"slices"

	"github.com/MrWong99/voicetrie/internal/node"
	"github.com/MrWong99/voicetrie/pkg/command"
	"github.com/MrWong99/voicetrie/pkg/tag"
)

// NodeBuilder is the mutable form of a trie under construction. It is not
// safe for concurrent use.
type NodeBuilder struct {
	proc          node.Processor
	unconditional bool
	reqs          []tag.Requirement
	children      []*NodeBuilder
}

// NewBuilder returns an empty builder rooted at [node.Empty].
func NewBuilder() *NodeBuilder {
	return &NodeBuilder{proc: node.Empty{}, unconditional: true}
}

// Add folds one compiled phrase into the tree. The longest prefix of procs
// that already exists is shared and the remainder is grafted below it.
// reqs is attached to every node on the path except the root.
func (b *NodeBuilder) Add(procs []node.Processor, reqs []tag.Requirement) {
	cur := b
	for _, p := range procs {
		next := cur.child(p)
		if next == nil {
			next = &NodeBuilder{proc: p}
			cur.children = append(cur.children, next)
		}
		next.attach(reqs)
		cur = next
	}
}

func (b *NodeBuilder) child(p node.Processor) *NodeBuilder {
	for _, c := range b.children {
		if c.proc.Equal(p) {
			return c
		}
	}
	return nil
}

// attach merges the requirements of one more command passing through b. A
// command without requirements makes the node unconditional for good.
func (b *NodeBuilder) attach(reqs []tag.Requirement) {
	if b.unconditional {
		return
	}
	if len(reqs) == 0 {
		b.unconditional = true
		b.reqs = nil
		return
	}
	b.reqs = tag.Union(b.reqs, reqs...)
}

// Build freezes the tree into a [Trie] indexed by the given descriptors.
func (b *NodeBuilder) Build(commands map[string]command.Descriptor) *Trie {
	t := &Trie{commands: commands}
	t.root = b.freeze(1, t)
	return t
}

func (b *NodeBuilder) freeze(depth int, t *Trie) *Node {
	t.nodes++
	t.depth = max(t.depth, depth)

	n := &Node{Processor: b.proc}
	if !b.unconditional {
		n.Requirements = slices.Clone(b.reqs)
	}

	ordered := slices.Clone(b.children)
	slices.SortStableFunc(ordered, func(x, y *NodeBuilder) int {
		if c := compareLeaf(x.proc.IsLeaf(), y.proc.IsLeaf()); c != 0 {
			return c
		}
		return cmp.Compare(x.proc.Weight(), y.proc.Weight())
	})

	n.Children = make([]*Node, len(ordered))
	for i, c := range ordered {
		n.Children[i] = c.freeze(depth+1, t)
	}
	return n
}

// compareLeaf orders non-leaves before leaves.
func compareLeaf(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	default:
		return -1
	}
}
