// Package tag models the contextual labels that gate which voice commands are
// eligible at match time.
//
// A [Tag] is an opaque label such as an activation mode ("command",
// "dictation"), the active window, or an ad-hoc plugin flag. A [Requirement]
// is an AND-set: every tag in it must be active. A command or trie branch may
// carry several requirements, in which case it is eligible when ANY of them
// holds. No requirements at all means "always applicable".
package tag

import (
	"slices"
	"sort"
	"strings"
)

// Tag is an opaque contextual label.
type Tag string

// Requirement is a set of tags that must all be active.
type Requirement []Tag

// NewRequirement returns a normalised requirement: sorted, without
// duplicates or empty tags.
func NewRequirement(tags ...Tag) Requirement {
	r := make(Requirement, 0, len(tags))
	for _, t := range tags {
		if t != "" && !slices.Contains(r, t) {
			r = append(r, t)
		}
	}
	slices.Sort(r)
	return r
}

// SatisfiedBy reports whether every tag of r is in active.
func (r Requirement) SatisfiedBy(active Set) bool {
	for _, t := range r {
		if !active.Has(t) {
			return false
		}
	}
	return true
}

// Equal reports whether two requirements hold the same tags, ignoring order.
func (r Requirement) Equal(other Requirement) bool {
	if len(r) != len(other) {
		return false
	}
	a := slices.Clone(r)
	b := slices.Clone(other)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

func (r Requirement) String() string {
	parts := make([]string, len(r))
	for i, t := range r {
		parts[i] = string(t)
	}
	return "{" + strings.Join(parts, "&") + "}"
}

// Specificity returns the tag count of the most specific requirement in reqs
// that active satisfies. ok is false when reqs is non-empty and none of them
// is satisfied. An empty reqs is always satisfied with specificity 0.
func Specificity(reqs []Requirement, active Set) (int, bool) {
	if len(reqs) == 0 {
		return 0, true
	}
	best, ok := 0, false
	for _, r := range reqs {
		if r.SatisfiedBy(active) {
			ok = true
			best = max(best, len(r))
		}
	}
	return best, ok
}

// Union merges add into reqs, skipping requirements already present.
func Union(reqs []Requirement, add ...Requirement) []Requirement {
	for _, r := range add {
		if !slices.ContainsFunc(reqs, r.Equal) {
			reqs = append(reqs, NewRequirement(r...))
		}
	}
	return reqs
}

// Set is an immutable-by-convention set of active tags.
type Set map[Tag]struct{}

// NewSet builds a Set from tags.
func NewSet(tags ...Tag) Set {
	s := make(Set, len(tags))
	for _, t := range tags {
		if t != "" {
			s[t] = struct{}{}
		}
	}
	return s
}

// Has reports whether t is active. A nil Set holds no tags.
func (s Set) Has(t Tag) bool {
	_, ok := s[t]
	return ok
}

// With returns a new Set holding the tags of s plus tags.
func (s Set) With(tags ...Tag) Set {
	out := make(Set, len(s)+len(tags))
	for t := range s {
		out[t] = struct{}{}
	}
	for _, t := range tags {
		if t != "" {
			out[t] = struct{}{}
		}
	}
	return out
}

// Sorted returns the tags of s in lexical order.
func (s Set) Sorted() []Tag {
	out := make([]Tag, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings converts a slice of strings into tags.
func Strings(ss []string) []Tag {
	out := make([]Tag, 0, len(ss))
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, Tag(s))
		}
	}
	return out
}
