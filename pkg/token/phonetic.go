package token

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
	lru "github.com/hashicorp/golang-lru/v2"
)

// EncoderKind selects the phonetic algorithm used by an [Encoding] token.
type EncoderKind string

const (
	// DoubleMetaphone yields a primary and an optional secondary code; two
	// words match when any code overlaps.
	DoubleMetaphone EncoderKind = "double_metaphone"
	Soundex         EncoderKind = "soundex"
	NYSIIS          EncoderKind = "nysiis"
	Phonex          EncoderKind = "phonex"
)

// IsValid reports whether k is a recognised encoder kind.
func (k EncoderKind) IsValid() bool {
	switch k {
	case DoubleMetaphone, Soundex, NYSIIS, Phonex:
		return true
	}
	return false
}

// ParseEncoderKind converts a configuration string into an [EncoderKind].
func ParseEncoderKind(s string) (EncoderKind, error) {
	k := EncoderKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("token: unknown encoder kind %q; valid values: double_metaphone, soundex, nysiis, phonex", s)
	}
	return k, nil
}

// keyCacheSize bounds the number of memoised phonetic keys. Transcriptions
// repeat a small vocabulary, so a few thousand entries cover a session.
const keyCacheSize = 4096

type cacheKey struct {
	kind  EncoderKind
	value string
}

var keyCache *lru.Cache[cacheKey, []string]

func init() {
	c, err := lru.New[cacheKey, []string](keyCacheSize)
	if err != nil {
		panic("token: create phonetic key cache: " + err.Error())
	}
	keyCache = c
}

// Keys returns the phonetic keys of value under kind. It returns nil when no
// key can be computed: unknown kind, empty input, or input without letters.
// Results are cached; the returned slice must not be modified.
func Keys(value string, kind EncoderKind) []string {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" || !strings.ContainsFunc(v, unicode.IsLetter) {
		return nil
	}
	ck := cacheKey{kind: kind, value: v}
	if keys, ok := keyCache.Get(ck); ok {
		return keys
	}
	keys := computeKeys(v, kind)
	keyCache.Add(ck, keys)
	return keys
}

func computeKeys(v string, kind EncoderKind) []string {
	var keys []string
	add := func(k string) {
		if k == "" {
			return
		}
		for _, existing := range keys {
			if existing == k {
				return
			}
		}
		keys = append(keys, k)
	}
	switch kind {
	case DoubleMetaphone:
		primary, secondary := matchr.DoubleMetaphone(v)
		add(primary)
		add(secondary)
	case Soundex:
		add(matchr.Soundex(v))
	case NYSIIS:
		add(matchr.NYSIIS(v))
	case Phonex:
		add(matchr.Phonex(v))
	}
	return keys
}
