package correlate

import (
	"strings"
	"unicode"
)

// Normalize lowercases name, strips everything that is not a letter, digit or
// space and collapses whitespace.
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// words returns the distinct tokens of a normalized name longer than one rune.
func words(normalized string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(normalized) {
		if len([]rune(w)) > 1 {
			out[w] = struct{}{}
		}
	}
	return out
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// splitTokens separates digit-bearing tokens (model and article numbers) from
// plain words.
func splitTokens(normalized string) (numeric, plain map[string]struct{}) {
	numeric = make(map[string]struct{})
	plain = make(map[string]struct{})
	for _, w := range strings.Fields(normalized) {
		if hasDigit(w) {
			numeric[w] = struct{}{}
		} else if len([]rune(w)) > 1 {
			plain[w] = struct{}{}
		}
	}
	return numeric, plain
}

func intersect(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func subset(a, b map[string]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
