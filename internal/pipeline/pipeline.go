package pipeline

import "unicode"

// Result is the output of running the pipeline over one string: the ordered
// token sequence (post-stemming, post-filter) and the language it resolved
// to.
type Result struct {
	Tokens   []string
	Language string
}

// Pipeline runs the six-step text-processing contract (§4.1): normalize,
// detect language, tokenize, remove stopwords, filter, stem. It is pure and
// stateless; the same Pipeline value is shared by every block worker and by
// the searcher so index-time and query-time processing stay symmetric.
type Pipeline struct {
	detector    Detector
	minTokenLen int
	fallback    string
}

// New builds a Pipeline. fallback is the language used when detection
// returns Unknown or an unsupported label (DEFAULT_LANGUAGE at index time,
// DEFAULT_QUERY_LANGUAGE at query time).
func New(detector Detector, minTokenLen int, fallback string) *Pipeline {
	if detector == nil {
		detector = NewStopwordOverlapDetector(2)
	}
	if minTokenLen <= 0 {
		minTokenLen = 1
	}
	return &Pipeline{detector: detector, minTokenLen: minTokenLen, fallback: fallback}
}

// Run executes the full pipeline over text. A supported detected language
// wins; overrideLanguage, if supported, is used only when detection returns
// Unknown or an unsupported label (used by the searcher to honor a
// caller-supplied default_language); otherwise the fallback applies.
func (p *Pipeline) Run(text string, overrideLanguage string) Result {
	normalized := Normalize(text)

	lang := p.detector.Detect(normalized)
	if lang == Unknown || !IsSupported(lang) {
		if IsSupported(overrideLanguage) {
			lang = overrideLanguage
		} else {
			lang = p.fallback
		}
	}

	tokens := Tokenize(normalized)
	tokens = removeStopwords(tokens, lang)
	tokens = p.filter(tokens)
	tokens = stem(tokens, lang)

	return Result{Tokens: tokens, Language: lang}
}

// filter drops tokens shorter than minTokenLen and tokens made entirely of
// digits.
func (p *Pipeline) filter(tokens []string) []string {
	out := tokens[:0:0]
	for _, tok := range tokens {
		if len([]rune(tok)) < p.minTokenLen {
			continue
		}
		if allDigits(tok) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func allDigits(tok string) bool {
	for _, r := range tok {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
