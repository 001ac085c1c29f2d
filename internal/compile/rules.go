package compile

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrWong99/voicetrie/internal/node"
)

// rule compiles one form of pattern word.
type rule interface {
	canCompile(word string) bool
	compile(c *compiler, word string) (node.Processor, error)
}

// rules are tried in order; wordRule accepts everything and must stay last.
// Filled in init because the rules recurse into compiler.word.
var rules []rule

func init() {
	rules = []rule{
		optionalRule{},
		andRule{},
		oneOfRule{},
		alternationRule{},
		numberRule{},
		repeatRule{},
		wildcardRule{},
		wordRule{},
	}
}

// plainChoice reports whether body is a literal choice: "a|b", "a b|c" or
// "_list".
func plainChoice(body string) bool {
	return !strings.ContainsAny(body, sigils)
}

type optionalRule struct{}

func (optionalRule) canCompile(w string) bool { return strings.HasPrefix(w, "?[") }

func (optionalRule) compile(c *compiler, w string) (node.Processor, error) {
	body, flag, err := group(w, "?")
	if err != nil {
		return nil, err
	}

	var inner node.Processor
	switch {
	case plainChoice(body) && (strings.Contains(body, "|") || body[0] == '_'):
		inner, err = c.oneOf(body, "")
	case len(alternatives(body)) > 1:
		inner, err = c.or(body, "")
	default:
		inner, err = c.sequence(body)
	}
	if err != nil {
		return nil, err
	}
	if _, nested := inner.(node.Optional); nested {
		return nil, errors.New("an optional cannot directly wrap another optional")
	}
	return node.Optional{Flag: flag, Inner: inner}, nil
}

type andRule struct{}

func (andRule) canCompile(w string) bool {
	return strings.HasPrefix(w, "&[") || strings.HasPrefix(w, "And[")
}

func (andRule) compile(c *compiler, w string) (node.Processor, error) {
	prefix := "&"
	if strings.HasPrefix(w, "And") {
		prefix = "And"
	}
	body, name, err := group(w, prefix)
	if err != nil {
		return nil, err
	}
	if name != "" {
		return nil, errors.New("an and-group cannot be named")
	}

	var inner []node.Processor
	for _, a := range alternatives(body) {
		p, err := c.sequence(a)
		if err != nil {
			return nil, err
		}
		if seq, ok := p.(node.And); ok {
			inner = append(inner, seq.Inner...)
			continue
		}
		inner = append(inner, p)
	}
	return node.And{Inner: inner}, nil
}

type oneOfRule struct{}

func (oneOfRule) canCompile(w string) bool {
	if !strings.HasPrefix(w, "[") {
		return false
	}
	end := findMatchingBracket(w, 0)
	return end > 0 && plainChoice(w[1:end])
}

func (oneOfRule) compile(c *compiler, w string) (node.Processor, error) {
	body, name, err := group(w, "")
	if err != nil {
		return nil, err
	}
	return c.oneOf(body, name)
}

type alternationRule struct{}

func (alternationRule) canCompile(w string) bool { return strings.HasPrefix(w, "[") }

func (alternationRule) compile(c *compiler, w string) (node.Processor, error) {
	body, name, err := group(w, "")
	if err != nil {
		return nil, err
	}
	return c.or(body, name)
}

type numberRule struct{}

func (numberRule) canCompile(w string) bool {
	return strings.HasPrefix(w, "#") || strings.HasPrefix(w, "Number:")
}

func (numberRule) compile(_ *compiler, w string) (node.Processor, error) {
	name := strings.TrimPrefix(strings.TrimPrefix(w, "#"), "Number:")
	if err := checkName(name); err != nil {
		return nil, err
	}
	return node.Number{Name: name}, nil
}

type repeatRule struct{}

func (repeatRule) canCompile(w string) bool {
	return strings.HasPrefix(w, "**") || strings.HasPrefix(w, "RepeatingWildCard:")
}

func (repeatRule) compile(_ *compiler, w string) (node.Processor, error) {
	spec := strings.TrimPrefix(strings.TrimPrefix(w, "**"), "RepeatingWildCard:")
	name, count := spec, -1
	if i := strings.IndexByte(spec, '{'); i >= 0 {
		if !strings.HasSuffix(spec, "}") {
			return nil, errors.New("repeat count must end with '}'")
		}
		n, err := strconv.Atoi(spec[i+1 : len(spec)-1])
		if err != nil {
			return nil, fmt.Errorf("invalid repeat count: %w", err)
		}
		if n != -1 && n < 1 {
			return nil, fmt.Errorf("repeat count %d must be -1 or at least 1", n)
		}
		name, count = spec[:i], n
	}
	if err := checkName(name); err != nil {
		return nil, err
	}
	return node.RepeatingWildcard{Name: name, Count: count}, nil
}

type wildcardRule struct{}

func (wildcardRule) canCompile(w string) bool {
	return strings.HasPrefix(w, "*") || strings.HasPrefix(w, "WildCard:")
}

func (wildcardRule) compile(_ *compiler, w string) (node.Processor, error) {
	name := strings.TrimPrefix(strings.TrimPrefix(w, "*"), "WildCard:")
	if err := checkName(name); err != nil {
		return nil, err
	}
	return node.Wildcard{Name: name}, nil
}

type wordRule struct{}

func (wordRule) canCompile(string) bool { return true }

func (wordRule) compile(_ *compiler, w string) (node.Processor, error) {
	t, err := literal(w)
	if err != nil {
		return nil, err
	}
	return node.Word{Expected: t}, nil
}
