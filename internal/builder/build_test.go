package builder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/juanj0tj/sistema-recuperacion-informacion/internal/corpus"
	"github.com/juanj0tj/sistema-recuperacion-informacion/internal/indexfmt"
	"github.com/juanj0tj/sistema-recuperacion-informacion/internal/pipeline"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/config"
	apperrors "github.com/juanj0tj/sistema-recuperacion-informacion/pkg/errors"
)

func writeTestCorpus(t *testing.T, docs []string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.jsonl")
	var sb strings.Builder
	for _, d := range docs {
		sb.WriteString(d)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatalf("writing corpus: %v", err)
	}
	return path
}

func newTestPipeline() *pipeline.Pipeline {
	return pipeline.New(pipeline.NewStopwordOverlapDetector(2), 2, "spanish")
}

// buildSmallIndex runs the whole block-worker + merge path over a handful of
// documents using the array doc index, to avoid a real sqlite dependency in
// unit tests.
func buildSmallIndex(t *testing.T, docs []string, blockDocs, minDF int, maxDFRatio float64) (string, []BlockResult, Result) {
	t.Helper()
	corpusPath := writeTestCorpus(t, docs)
	outDir := t.TempDir()
	blocksDir := filepath.Join(outDir, "blocks")
	docStoreDir := filepath.Join(outDir, "doc_store_parts")
	if err := os.MkdirAll(blocksDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(docStoreDir, 0o755); err != nil {
		t.Fatal(err)
	}

	part := corpus.NewPartitioner(corpusPath, blockDocs)
	ranges, err := part.Ranges()
	if err != nil {
		t.Fatalf("Ranges() error: %v", err)
	}

	pl := newTestPipeline()
	var results []BlockResult
	for _, r := range ranges {
		baseUID := uint64(r.BlockID) * uint64(blockDocs)
		res, err := ProcessBlock(corpusPath, r, baseUID, pl, blocksDir, docStoreDir)
		if err != nil {
			t.Fatalf("ProcessBlock() error: %v", err)
		}
		results = append(results, res)
	}

	merger := NewMerger(MergerConfig{MinDF: minDF, MaxDFRatio: maxDFRatio, DocIndexType: "array"}, outDir, nil)
	result, err := merger.Merge(results, blockDocs, "test")
	if err != nil {
		t.Fatalf("Merge() error: %v", err)
	}
	return outDir, results, result
}

// currentGenDir resolves outDir's CURRENT pointer to the generation
// directory a Merge just published, for tests that read artifacts directly.
func currentGenDir(t *testing.T, outDir string) string {
	t.Helper()
	genDir, err := indexfmt.ResolveCurrent(outDir)
	if err != nil {
		t.Fatalf("ResolveCurrent() error: %v", err)
	}
	return genDir
}

func TestBuildDocUIDDensity(t *testing.T) {
	var docs []string
	for i := 0; i < 25; i++ {
		docs = append(docs, `{"doc_id":"d`+string(rune('a'+i))+`","text":"el gato y el perro ladra"}`)
	}
	outDir, _, result := buildSmallIndex(t, docs, 10, 1, 0.99)
	if result.N != 25 {
		t.Fatalf("N = %d, want 25", result.N)
	}

	genDir := currentGenDir(t, outDir)
	seen := make(map[int64]bool)
	f, err := os.Open(filepath.Join(genDir, indexfmt.DocStoreName))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec struct {
			DocUID int64 `json:"doc_uid"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatal(err)
		}
		seen[rec.DocUID] = true
	}
	for i := int64(0); i < result.N; i++ {
		if !seen[i] {
			t.Fatalf("doc_uid %d missing from doc store, density broken", i)
		}
	}
}

func TestBuildPostingsSortedAndTermsSorted(t *testing.T) {
	docs := []string{
		`{"doc_id":"a","text":"el gato y el perro ladra"}`,
		`{"doc_id":"b","text":"el perro ladra fuerte"}`,
		`{"doc_id":"c","text":"el gato maulla"}`,
	}
	outDir, _, _ := buildSmallIndex(t, docs, 10, 1, 0.99)
	genDir := currentGenDir(t, outDir)

	f, err := os.Open(filepath.Join(genDir, indexfmt.PostingsName))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var terms []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		term, postings, err := indexfmt.DecodePostingLine(scanner.Bytes())
		if err != nil {
			t.Fatalf("DecodePostingLine() error: %v", err)
		}
		terms = append(terms, term)
		for i := 1; i < len(postings); i++ {
			if postings[i].DocUID <= postings[i-1].DocUID {
				t.Fatalf("postings for %q not strictly increasing: %v", term, postings)
			}
		}
	}
	if !sort.StringsAreSorted(terms) {
		t.Fatalf("terms not sorted ascending: %v", terms)
	}
}

func TestBuildPruningInvariant(t *testing.T) {
	var docs []string
	for i := 0; i < 5; i++ {
		docs = append(docs, `{"doc_id":"d`+string(rune('a'+i))+`","text":"comun comun comun unico`+string(rune('a'+i))+`"}`)
	}
	outDir, _, result := buildSmallIndex(t, docs, 10, 1, 0.9)
	genDir := currentGenDir(t, outDir)

	data, err := os.ReadFile(filepath.Join(genDir, indexfmt.TermsIndexName))
	if err != nil {
		t.Fatal(err)
	}
	var termMap indexfmt.TermMap
	if err := json.Unmarshal(data, &termMap); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(filepath.Join(genDir, indexfmt.PostingsName))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	for term, off := range termMap {
		buf := make([]byte, off.Length)
		if _, err := f.ReadAt(buf, off.Offset); err != nil {
			t.Fatalf("reading term map offset for %q: %v", term, err)
		}
		_, postings, err := indexfmt.DecodePostingLine(buf)
		if err != nil {
			t.Fatalf("decoding exact offset slice for %q: %v", term, err)
		}
		df := len(postings)
		if df < 1 || float64(df)/float64(result.N) > 0.9 {
			t.Fatalf("term %q violates pruning invariant: df=%d N=%d", term, df, result.N)
		}
	}
}

func TestBuildTermMapExactness(t *testing.T) {
	docs := []string{
		`{"doc_id":"a","text":"el gato y el perro ladra"}`,
		`{"doc_id":"b","text":"el perro ladra fuerte"}`,
	}
	outDir, _, _ := buildSmallIndex(t, docs, 10, 1, 0.99)
	genDir := currentGenDir(t, outDir)

	data, err := os.ReadFile(filepath.Join(genDir, indexfmt.TermsIndexName))
	if err != nil {
		t.Fatal(err)
	}
	var termMap indexfmt.TermMap
	if err := json.Unmarshal(data, &termMap); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(filepath.Join(genDir, indexfmt.PostingsName))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	for term, off := range termMap {
		buf := make([]byte, off.Length)
		if _, err := f.ReadAt(buf, off.Offset); err != nil {
			t.Fatalf("ReadAt(%d, %d) for %q: %v", off.Offset, off.Length, term, err)
		}
		if !strings.HasPrefix(string(buf), term+"\t") {
			t.Fatalf("term map entry for %q does not address a line beginning with %q\\t: got %q", term, term, buf)
		}
	}
}

func TestBlockWorkersAcceptNothingFromInvalidCorpus(t *testing.T) {
	corpusPath := writeTestCorpus(t, []string{`not json at all`, ``})
	outDir := t.TempDir()
	blocksDir := filepath.Join(outDir, "blocks")
	docStoreDir := filepath.Join(outDir, "doc_store_parts")
	os.MkdirAll(blocksDir, 0o755)
	os.MkdirAll(docStoreDir, 0o755)

	part := corpus.NewPartitioner(corpusPath, 10)
	ranges, err := part.Ranges()
	if err != nil {
		t.Fatalf("Ranges() error: %v", err)
	}

	pl := newTestPipeline()
	var totalAccepted int
	for _, r := range ranges {
		res, err := ProcessBlock(corpusPath, r, uint64(r.BlockID)*10, pl, blocksDir, docStoreDir)
		if err != nil {
			t.Fatalf("ProcessBlock() error: %v", err)
		}
		totalAccepted += res.CountAccepted
	}
	if totalAccepted != 0 {
		t.Fatalf("expected zero accepted documents, got %d", totalAccepted)
	}
}

// testBuildConfig returns a Config wired to run a full Build under tmpDir,
// over corpusPath, with small block/array-doc-index settings suited to unit
// tests (mirrors buildSmallIndex's setup, but driven through Build itself).
func testBuildConfig(tmpDir, corpusPath string) *config.Config {
	cfg, _ := config.Load("")
	cfg.Index.DataDir = filepath.Join(tmpDir, "index")
	cfg.Index.CorpusPath = corpusPath
	cfg.Index.BlockDocs = 10
	cfg.Index.MinDF = 1
	cfg.Index.MaxDFRatio = 0.99
	cfg.Index.DocIndexType = "array"
	cfg.Index.PublishCompletionEvent = false
	return cfg
}

func TestBuildFatalOnEmptyCorpus(t *testing.T) {
	corpusPath := writeTestCorpus(t, []string{`not json at all`, ``})
	cfg := testBuildConfig(t.TempDir(), corpusPath)

	_, err := Build(context.Background(), cfg, corpusPath, Dependencies{})
	if err == nil {
		t.Fatal("Build() over an all-rejected corpus returned no error")
	}
	if !errors.Is(err, apperrors.ErrEmptyCorpus) {
		t.Fatalf("Build() error = %v, want wrapping %v", err, apperrors.ErrEmptyCorpus)
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	docs := []string{
		`{"doc_id":"a","text":"el gato y el perro ladra"}`,
		`{"doc_id":"b","text":"el perro ladra fuerte"}`,
		`{"doc_id":"c","text":"el gato maulla"}`,
	}
	corpusPath := writeTestCorpus(t, docs)

	cfg1 := testBuildConfig(t.TempDir(), corpusPath)
	report1, err := Build(context.Background(), cfg1, corpusPath, Dependencies{})
	if err != nil {
		t.Fatalf("first Build() error: %v", err)
	}
	gen1, err := indexfmt.ResolveCurrent(report1.IndexPath)
	if err != nil {
		t.Fatalf("ResolveCurrent() after first build: %v", err)
	}

	cfg2 := testBuildConfig(t.TempDir(), corpusPath)
	report2, err := Build(context.Background(), cfg2, corpusPath, Dependencies{})
	if err != nil {
		t.Fatalf("second Build() error: %v", err)
	}
	gen2, err := indexfmt.ResolveCurrent(report2.IndexPath)
	if err != nil {
		t.Fatalf("ResolveCurrent() after second build: %v", err)
	}

	for _, name := range []string{indexfmt.PostingsName, indexfmt.TermsIndexName} {
		a, err := os.ReadFile(filepath.Join(gen1, name))
		if err != nil {
			t.Fatalf("reading %s from first build: %v", name, err)
		}
		b, err := os.ReadFile(filepath.Join(gen2, name))
		if err != nil {
			t.Fatalf("reading %s from second build: %v", name, err)
		}
		if !bytes.Equal(a, b) {
			t.Fatalf("%s differs between two builds over the same corpus", name)
		}
	}
}
