// Package compile turns invocation phrases written in the phrase DSL into
// sequences of [node.Processor] ready to be folded into the command trie.
//
// A phrase is split on whitespace outside brackets. Each resulting word is
// offered to an ordered list of rules and compiled by the first rule that
// accepts it:
//
//	?[inner]:flag         optional, binds flag when inner matched
//	&[a|b] / And[a|b]     all parts in sequence
//	[a|b|c]:name          one of several literals, captured as name
//	[_list]:name          one of the literals in captured value "list"
//	[<a>|<b>]:index       first matching alternative, index captured
//	#name / Number:name   a number
//	**name{N}             up to N tokens joined as one word (N = -1: all)
//	*name / WildCard:name exactly one token
//	word                  a literal word
//
// Words inside a group that are separated by spaces compile to a sequence.
// Any rule failure aborts the whole phrase with an [*Error].
package compile

import (
	"errors"
	"fmt"

	"github.com/MrWong99/voicetrie/internal/node"
	"github.com/MrWong99/voicetrie/pkg/token"
)

// Compile compiles phrase for the command id. The result always ends with
// [node.CommandSuccess]. captured supplies the values referenced by
// `[_name]` lists.
func Compile(id, phrase string, captured map[string]any) ([]node.Processor, error) {
	c := &compiler{phrase: phrase, captured: captured}
	if id == "" {
		return nil, c.fail("", "empty command id")
	}
	if err := checkBalance(phrase); err != nil {
		return nil, c.fail("", err.Error())
	}
	words := fields(phrase)
	if len(words) == 0 {
		return nil, c.fail("", "empty phrase")
	}

	out := make([]node.Processor, 0, len(words)+1)
	for _, w := range words {
		p, err := c.word(w)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return append(out, node.CommandSuccess{CommandID: id}), nil
}

type compiler struct {
	phrase   string
	captured map[string]any
}

func (c *compiler) fail(word, reason string) *Error {
	return &Error{Phrase: c.phrase, Word: word, Reason: reason}
}

// word compiles a single pattern word with the first rule that accepts it.
// Errors from nested words are passed through so they name the innermost
// offending word.
func (c *compiler) word(w string) (node.Processor, error) {
	for _, r := range rules {
		if !r.canCompile(w) {
			continue
		}
		p, err := r.compile(c, w)
		if err != nil {
			var ce *Error
			if errors.As(err, &ce) {
				return nil, ce
			}
			return nil, c.fail(w, err.Error())
		}
		return p, nil
	}
	return nil, c.fail(w, "no rule accepts this word")
}

// sequence compiles whitespace-separated words. A single word compiles to
// itself, several to an [node.And].
func (c *compiler) sequence(s string) (node.Processor, error) {
	words := fields(s)
	switch len(words) {
	case 0:
		return nil, errors.New("empty alternative")
	case 1:
		return c.word(words[0])
	}
	inner := make([]node.Processor, 0, len(words))
	for _, w := range words {
		p, err := c.word(w)
		if err != nil {
			return nil, err
		}
		inner = append(inner, p)
	}
	return node.And{Inner: inner}, nil
}

// oneOf compiles a literal choice body, either "a|b c|d" or a "_list"
// reference.
func (c *compiler) oneOf(body, name string) (node.Processor, error) {
	alts := alternatives(body)
	if len(alts) == 1 && len(body) > 1 && body[0] == '_' {
		cands, err := c.lookup(body[1:])
		if err != nil {
			return nil, err
		}
		return node.OneOf{Name: name, Candidates: cands}, nil
	}

	cands := make([]token.Token, 0, len(alts))
	for _, a := range alts {
		t, err := literal(a)
		if err != nil {
			return nil, err
		}
		cands = append(cands, t)
	}
	return node.OneOf{Name: name, Candidates: cands}, nil
}

// or compiles each alternative of body as a sequence.
func (c *compiler) or(body, name string) (node.Processor, error) {
	alts := alternatives(body)
	inner := make([]node.Processor, 0, len(alts))
	for _, a := range alts {
		p, err := c.sequence(a)
		if err != nil {
			return nil, err
		}
		inner = append(inner, p)
	}
	return node.Or{Name: name, Inner: inner}, nil
}

// lookup resolves a captured list by name, trying the bare name before the
// underscore-prefixed form.
func (c *compiler) lookup(name string) ([]token.Token, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	v, ok := c.captured[name]
	if !ok {
		v, ok = c.captured["_"+name]
	}
	if !ok {
		return nil, fmt.Errorf("captured value %q not found", name)
	}
	cands, err := candidates(v)
	if err != nil {
		return nil, fmt.Errorf("captured value %q: %w", name, err)
	}
	if len(cands) == 0 {
		return nil, fmt.Errorf("captured value %q is empty", name)
	}
	return cands, nil
}

// candidates converts a captured value into match candidates.
func candidates(v any) ([]token.Token, error) {
	switch x := v.(type) {
	case string:
		t, err := literal(x)
		if err != nil {
			return nil, err
		}
		return []token.Token{t}, nil
	case token.Token:
		return []token.Token{x}, nil
	case []string:
		out := make([]token.Token, 0, len(x))
		for _, s := range x {
			t, err := literal(s)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
		return out, nil
	case []token.Token:
		return x, nil
	case []any:
		var out []token.Token
		for _, e := range x {
			ts, err := candidates(e)
			if err != nil {
				return nil, err
			}
			out = append(out, ts...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}

// literal converts one choice into a word, or a merged token when it holds
// several words.
func literal(s string) (token.Token, error) {
	t, ok := token.Words(s)
	if !ok {
		return nil, errors.New("empty alternative")
	}
	parts := []token.Token{t}
	if m, isMerged := t.(token.Merged); isMerged {
		parts = m.Tokens
	}
	for _, p := range parts {
		if !isLiteral(p.String()) {
			return nil, fmt.Errorf("%q is not a literal word", p.String())
		}
	}
	return t, nil
}
