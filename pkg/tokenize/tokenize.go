// Package tokenize turns raw transcription text into an ordered token
// sequence for the command matcher.
//
// The [Tokenizer] walks the text left to right. At each word boundary it
// offers the remaining text to an ordered chain of [Recognizer]s and takes
// the first success. When no recognizer accepts the text, a built-in fallback
// consumes characters up to the next whitespace and emits a [token.Word].
// The fallback always consumes at least one character of non-empty input, so
// tokenization always terminates.
//
// Recognizers are the plugin extension point: anything that can recognise a
// prefix of the text (numbers, homophones, domain vocabulary) can contribute
// tokens by implementing [Recognizer].
package tokenize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/voicetrie/pkg/token"
)

// Recognizer inspects the front of text, which always starts at a letter or
// digit, and optionally produces a token.
//
// On success it returns the token and the number of bytes of text it
// consumed. A result with consumed <= 0 or a nil token is treated as a
// non-match.
//
// Implementations must be safe for concurrent use.
type Recognizer interface {
	Recognize(text string) (tok token.Token, consumed int, ok bool)
}

// RecognizerFunc adapts a plain function to [Recognizer].
type RecognizerFunc func(text string) (token.Token, int, bool)

// Recognize calls f.
func (f RecognizerFunc) Recognize(text string) (token.Token, int, bool) {
	return f(text)
}

// Tokenizer converts text into tokens using a fixed recognizer chain. It is
// read-only after construction and safe for concurrent use.
type Tokenizer struct {
	recognizers []Recognizer
}

// New returns a Tokenizer that consults recognizers in the given order.
// Nil entries are skipped. With no recognizers every word becomes a
// [token.Word].
func New(recognizers ...Recognizer) *Tokenizer {
	rs := make([]Recognizer, 0, len(recognizers))
	for _, r := range recognizers {
		if r != nil {
			rs = append(rs, r)
		}
	}
	return &Tokenizer{recognizers: rs}
}

// Tokenize splits text into tokens. Empty or whitespace-only input yields an
// empty, non-nil slice.
func (t *Tokenizer) Tokenize(text string) []token.Token {
	out := make([]token.Token, 0, strings.Count(text, " ")+1)
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isAlnum(r) {
			i += size
			continue
		}
		tok, n := t.recognize(text[i:])
		out = append(out, tok)
		i += n
	}
	return out
}

// recognize runs the chain against rest and falls back to a plain word.
func (t *Tokenizer) recognize(rest string) (token.Token, int) {
	for _, r := range t.recognizers {
		tok, n, ok := r.Recognize(rest)
		if ok && tok != nil && n > 0 && n <= len(rest) {
			return tok, n
		}
	}
	word, n := NextWord(rest)
	if n == 0 {
		// rest starts at an alphanumeric rune, so this only guards against
		// misuse; consume one rune to keep making progress.
		_, n = utf8.DecodeRuneInString(rest)
		word = rest[:n]
	}
	return token.Word{Value: word}, n
}

// NextWord returns the word at the front of text and the number of bytes up
// to (not including) the next whitespace. Leading and trailing punctuation is
// trimmed from the returned word but still counted as consumed. When the
// span holds no letters or digits at all, the raw span is returned.
func NextWord(text string) (word string, consumed int) {
	end := strings.IndexFunc(text, unicode.IsSpace)
	if end < 0 {
		end = len(text)
	}
	raw := text[:end]
	word = strings.TrimFunc(raw, func(r rune) bool { return !isAlnum(r) })
	if word == "" {
		word = raw
	}
	return word, end
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
