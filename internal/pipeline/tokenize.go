package pipeline

import (
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
)

// Tokenize splits an already-normalized string into candidate tokens using
// UAX#29 word segmentation, preserving input order. Segments that contain no
// letter or digit (pure whitespace or leftover punctuation) are discarded.
func Tokenize(normalized string) []string {
	var tokens []string
	seg := words.FromString(normalized)
	for seg.Next() {
		tok := seg.Value()
		if isWordlike(tok) {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

func isWordlike(tok string) bool {
	for _, r := range tok {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
