package pipeline

import (
	"reflect"
	"testing"
)

func TestNormalizeFoldsCaseAndPunctuation(t *testing.T) {
	got := Normalize("  El Gato, y El Perro!  ")
	want := "el gato y el perro"
	if got != want {
		t.Fatalf("Normalize() = %q, want %q", got, want)
	}
}

func TestTokenizeOrderPreserved(t *testing.T) {
	got := Tokenize("el gato y el perro")
	want := []string{"el", "gato", "y", "el", "perro"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokenize() = %v, want %v", got, want)
	}
}

func TestPipelineRunRemovesStopwordsAndStems(t *testing.T) {
	p := New(NewStopwordOverlapDetector(2), 2, "spanish")
	result := p.Run("el gato y el perro ladra", "")

	if result.Language != "spanish" {
		t.Fatalf("Language = %q, want spanish", result.Language)
	}
	for _, tok := range result.Tokens {
		if tok == "el" || tok == "y" {
			t.Fatalf("stopword %q survived filtering: %v", tok, result.Tokens)
		}
	}
	if len(result.Tokens) != 3 {
		t.Fatalf("Tokens = %v, want 3 non-stopword tokens", result.Tokens)
	}
}

func TestPipelineQuerySymmetry(t *testing.T) {
	p := New(NewStopwordOverlapDetector(2), 2, "spanish")
	a := p.Run("El gato y el perro ladra", "")
	b := p.Run("el gato y el perro ladra", "")
	if !reflect.DeepEqual(a.Tokens, b.Tokens) || a.Language != b.Language {
		t.Fatalf("pipeline is not symmetric across equivalent input: %v vs %v", a, b)
	}
}

func TestPipelineDropsShortAndNumericTokens(t *testing.T) {
	p := New(NewStopwordOverlapDetector(2), 3, "english")
	result := p.Run("go 123 running fast", "english")
	for _, tok := range result.Tokens {
		if tok == "123" {
			t.Fatalf("numeric-only token survived filtering: %v", result.Tokens)
		}
		if len([]rune(tok)) < 3 {
			t.Fatalf("short token %q survived filtering: %v", tok, result.Tokens)
		}
	}
}

func TestStemOnlyAppliesToEnglish(t *testing.T) {
	englishStemmed := stem([]string{"running", "jumps"}, "english")
	if englishStemmed[0] == "running" {
		t.Fatalf("expected english stemming to change token, got %q", englishStemmed[0])
	}

	spanishUnchanged := stem([]string{"corriendo"}, "spanish")
	if spanishUnchanged[0] != "corriendo" {
		t.Fatalf("expected spanish tokens to pass through unchanged, got %q", spanishUnchanged[0])
	}
}

func TestStopwordOverlapDetectorUnknownOnSparseInput(t *testing.T) {
	d := NewStopwordOverlapDetector(2)
	if lang := d.Detect("xyzzy quux"); lang != Unknown {
		t.Fatalf("Detect() = %q, want %q for unrecognizable tokens", lang, Unknown)
	}
}
