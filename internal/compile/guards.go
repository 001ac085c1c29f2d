package compile

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// varName is the shape of capture names, flags and list references.
var varName = regexp.MustCompile(`^[A-Za-z_@][A-Za-z0-9_@]*$`)

// sigils mark a group body that contains more than plain literals.
const sigils = "[]#*?&"

func checkName(name string) error {
	if !varName.MatchString(name) {
		return fmt.Errorf("invalid capture name %q", name)
	}
	return nil
}

// checkBalance reports unmatched brackets anywhere in s.
func checkBalance(s string) error {
	depth := 0
	for _, r := range s {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
			if depth < 0 {
				return errors.New("unexpected ']'")
			}
		}
	}
	if depth != 0 {
		return errors.New("unclosed '['")
	}
	return nil
}

// isLiteral reports whether s is a spoken word: letters, apostrophes and
// hyphens, with at least one letter.
func isLiteral(s string) bool {
	hasLetter := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case r == '\'' || r == '-':
		default:
			return false
		}
	}
	return hasLetter
}

// findMatchingBracket returns the index of the ']' closing the '[' at start,
// or -1.
func findMatchingBracket(s string, start int) int {
	if start >= len(s) || s[start] != '[' {
		return -1
	}
	depth := 1
	for i := start + 1; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// group splits a bracketed word of the form prefix "[" body "]" [":" name].
func group(word, prefix string) (body, name string, err error) {
	open := len(prefix)
	end := findMatchingBracket(word, open)
	if end < 0 {
		return "", "", errors.New("unbalanced brackets")
	}
	body = strings.TrimSpace(word[open+1 : end])
	if body == "" {
		return "", "", errors.New("empty group")
	}
	switch rest := word[end+1:]; {
	case rest == "":
	case strings.HasPrefix(rest, ":"):
		name = rest[1:]
		if err := checkName(name); err != nil {
			return "", "", err
		}
	default:
		return "", "", fmt.Errorf("unexpected text %q after group", rest)
	}
	return body, name, nil
}

// splitTop splits s at runes for which sep returns true, ignoring runes
// nested inside brackets. Empty parts are kept.
func splitTop(s string, sep func(rune) bool) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch {
		case r == '[':
			depth++
		case r == ']':
			depth--
		case depth == 0 && sep(r):
			parts = append(parts, s[start:i])
			start = i + len(string(r))
		}
	}
	return append(parts, s[start:])
}

// fields splits s on whitespace outside brackets and drops empty parts.
func fields(s string) []string {
	var out []string
	for _, p := range splitTop(s, unicode.IsSpace) {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func alternatives(body string) []string {
	return splitTop(body, func(r rune) bool { return r == '|' })
}
