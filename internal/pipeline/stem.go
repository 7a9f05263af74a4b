package pipeline

import (
	snowballeng "github.com/kljensen/snowball/english"
)

// stem applies the language-specific stemmer to tokens. Only English has a
// stemmer available in this pipeline; tokens from every other supported
// language pass through unchanged, per the pipeline's own documented
// fallback for "no stemmer available".
func stem(tokens []string, lang string) []string {
	if lang != "english" {
		return tokens
	}
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = snowballeng.Stem(tok, false)
	}
	return out
}
