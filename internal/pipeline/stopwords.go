package pipeline

// stopwordSets holds a representative closed-class stopword list per
// supported language, used both for stopword removal (§4.1 step 4) and as
// the signal for StopwordOverlapDetector.
var stopwordSets = map[string]map[string]bool{
	"spanish":    toSet(spanishStopwords),
	"english":    toSet(englishStopwords),
	"french":     toSet(frenchStopwords),
	"german":     toSet(germanStopwords),
	"italian":    toSet(italianStopwords),
	"portuguese": toSet(portugueseStopwords),
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// removeStopwords drops tokens present in the stopword set for lang.
func removeStopwords(tokens []string, lang string) []string {
	set, ok := stopwordSets[lang]
	if !ok {
		return tokens
	}
	out := tokens[:0:0]
	for _, tok := range tokens {
		if !set[tok] {
			out = append(out, tok)
		}
	}
	return out
}

var spanishStopwords = []string{
	"el", "la", "los", "las", "un", "una", "unos", "unas", "de", "del", "a",
	"ante", "bajo", "con", "contra", "desde", "en", "entre", "hacia", "hasta",
	"para", "por", "segun", "sin", "sobre", "tras", "y", "o", "u", "e", "ni",
	"que", "como", "cuando", "donde", "quien", "cuyo", "es", "son", "ser",
	"estar", "ha", "han", "he", "fue", "era", "se", "su", "sus", "lo", "le",
	"les", "mi", "mis", "tu", "tus", "yo", "tu", "nosotros", "vosotros",
	"ellos", "ellas", "esto", "eso", "esta", "ese", "esa", "no", "si", "mas",
	"pero", "porque",
}

var englishStopwords = []string{
	"the", "a", "an", "and", "or", "but", "if", "of", "at", "by", "for",
	"with", "about", "against", "between", "into", "through", "during",
	"before", "after", "above", "below", "to", "from", "up", "down", "in",
	"out", "on", "off", "over", "under", "again", "further", "then", "once",
	"is", "are", "was", "were", "be", "been", "being", "have", "has", "had",
	"do", "does", "did", "this", "that", "these", "those", "it", "its", "he",
	"she", "they", "we", "you", "i", "as", "so", "not", "no", "than",
}

var frenchStopwords = []string{
	"le", "la", "les", "un", "une", "des", "de", "du", "et", "ou", "mais",
	"si", "dans", "sur", "sous", "avec", "sans", "pour", "par", "entre",
	"vers", "chez", "est", "sont", "etait", "etre", "avoir", "a", "au",
	"aux", "ce", "cet", "cette", "ces", "il", "elle", "ils", "elles", "nous",
	"vous", "je", "tu", "on", "se", "ne", "pas", "plus", "que", "qui", "quoi",
	"donc", "car",
}

var germanStopwords = []string{
	"der", "die", "das", "den", "dem", "des", "ein", "eine", "einer", "eines",
	"und", "oder", "aber", "wenn", "in", "an", "auf", "unter", "uber",
	"zwischen", "mit", "ohne", "fur", "von", "zu", "aus", "nach", "bei",
	"ist", "sind", "war", "waren", "sein", "haben", "hat", "hatte", "nicht",
	"kein", "keine", "ich", "du", "er", "sie", "es", "wir", "ihr", "dass",
	"als", "wie", "so", "auch",
}

var italianStopwords = []string{
	"il", "lo", "la", "i", "gli", "le", "un", "uno", "una", "di", "a", "da",
	"in", "con", "su", "per", "tra", "fra", "e", "o", "ma", "se", "che",
	"chi", "cui", "non", "piu", "come", "quando", "dove", "e'", "sono",
	"era", "erano", "essere", "avere", "ha", "hanno", "io", "tu", "lui",
	"lei", "noi", "voi", "loro", "questo", "quello",
}

var portugueseStopwords = []string{
	"o", "a", "os", "as", "um", "uma", "uns", "umas", "de", "do", "da",
	"dos", "das", "em", "no", "na", "nos", "nas", "por", "para", "com",
	"sem", "sobre", "entre", "e", "ou", "mas", "se", "que", "quem", "como",
	"quando", "onde", "e", "sao", "era", "eram", "ser", "estar", "tem",
	"tinha", "nao", "eu", "tu", "ele", "ela", "nos", "voce", "eles", "elas",
}
