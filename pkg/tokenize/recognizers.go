package tokenize

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/voicetrie/pkg/token"
)

// Numbers recognizes a run of ASCII digits as a [token.Number]. Digits glued
// to letters ("5th", "3d") are left to the word fallback.
func Numbers() Recognizer {
	return RecognizerFunc(func(text string) (token.Token, int, bool) {
		end := 0
		for end < len(text) && text[end] >= '0' && text[end] <= '9' {
			end++
		}
		if end == 0 {
			return nil, 0, false
		}
		if r, _ := utf8.DecodeRuneInString(text[end:]); end < len(text) && unicode.IsLetter(r) {
			return nil, 0, false
		}
		n, err := strconv.Atoi(text[:end])
		if err != nil {
			return nil, 0, false
		}
		return token.Number{Value: n}, end, true
	})
}

var spelledUnits = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
}

var spelledTens = map[string]int{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

// SpelledNumbers recognizes English cardinals from zero to ninety-nine,
// written as one word ("seven"), hyphenated ("twenty-one") or as two words
// ("twenty one"), since speech engines emit all three.
func SpelledNumbers() Recognizer {
	return RecognizerFunc(func(text string) (token.Token, int, bool) {
		word, n := NextWord(text)
		lower := strings.ToLower(word)

		if v, ok := spelledUnits[lower]; ok {
			return token.Number{Value: v}, n, true
		}
		if tens, unit, ok := strings.Cut(lower, "-"); ok {
			t, okT := spelledTens[tens]
			u, okU := spelledUnits[unit]
			if okT && okU && u >= 1 && u <= 9 {
				return token.Number{Value: t + u}, n, true
			}
			return nil, 0, false
		}
		t, ok := spelledTens[lower]
		if !ok {
			return nil, 0, false
		}

		// Look ahead for a unit word: "twenty one".
		rest := text[n:]
		trimmed := strings.TrimLeftFunc(rest, unicode.IsSpace)
		if trimmed != "" {
			next, m := NextWord(trimmed)
			if u, ok := spelledUnits[strings.ToLower(next)]; ok && u >= 1 && u <= 9 {
				return token.Number{Value: t + u}, n + (len(rest) - len(trimmed)) + m, true
			}
		}
		return token.Number{Value: t}, n, true
	})
}

// Homophones recognizes words belonging to one of groups and emits a
// [token.Homophones] whose alternates are the other members of the group.
// Matching is case-insensitive. A word listed in several groups uses the
// first.
func Homophones(groups [][]string) Recognizer {
	index := make(map[string][]string)
	for _, g := range groups {
		members := make([]string, 0, len(g))
		for _, w := range g {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				members = append(members, w)
			}
		}
		for _, w := range members {
			if _, exists := index[w]; !exists {
				index[w] = members
			}
		}
	}
	return RecognizerFunc(func(text string) (token.Token, int, bool) {
		word, n := NextWord(text)
		members, ok := index[strings.ToLower(word)]
		if !ok {
			return nil, 0, false
		}
		alternates := make([]string, 0, len(members)-1)
		for _, m := range members {
			if !strings.EqualFold(m, word) {
				alternates = append(alternates, m)
			}
		}
		return token.Homophones{Base: token.Word{Value: word}, Alternates: alternates}, n, true
	})
}

// Phonetic wraps every word containing a letter in a [token.Encoding] of the
// given kind, so the word matches pattern literals that sound alike.
func Phonetic(kind token.EncoderKind) Recognizer {
	return RecognizerFunc(func(text string) (token.Token, int, bool) {
		word, n := NextWord(text)
		if !strings.ContainsFunc(word, unicode.IsLetter) {
			return nil, 0, false
		}
		return token.Encoding{Value: word, Kind: kind}, n, true
	})
}
