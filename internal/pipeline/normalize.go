// Package pipeline implements the text-processing contract shared by the
// builder and the searcher: normalize, detect language, tokenize, drop
// stopwords, filter, stem. The same Run call is used at index time and at
// query time so the two sides stay symmetric.
package pipeline

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize folds s to NFKC, lowercases it, strips punctuation that carries
// no linguistic weight, and collapses runs of whitespace to a single space.
// Characters the stemmer needs (letters, marks, digits, internal hyphens and
// apostrophes) are preserved.
func Normalize(s string) string {
	folded := strings.ToLower(norm.NFKC.String(s))

	var b strings.Builder
	b.Grow(len(folded))
	lastWasSpace := false
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r):
			if !lastWasSpace && b.Len() > 0 {
				b.WriteRune(' ')
			}
			lastWasSpace = true
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r):
			b.WriteRune(r)
			lastWasSpace = false
		case r == '\'' || r == '-':
			b.WriteRune(r)
			lastWasSpace = false
		default:
			// Punctuation and symbols become a boundary, not a character.
			if !lastWasSpace && b.Len() > 0 {
				b.WriteRune(' ')
			}
			lastWasSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
