package searchengine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/juanj0tj/sistema-recuperacion-informacion/internal/builder"
	"github.com/juanj0tj/sistema-recuperacion-informacion/internal/corpus"
	"github.com/juanj0tj/sistema-recuperacion-informacion/internal/pipeline"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/config"
	apperrors "github.com/juanj0tj/sistema-recuperacion-informacion/pkg/errors"
)

// buildTestIndex runs the builder's block + merge path over docs and
// returns the output directory, ready for searchengine.Open.
func buildTestIndex(t *testing.T, docs []string, minDF int, maxDFRatio float64) string {
	t.Helper()
	dir := t.TempDir()
	corpusPath := filepath.Join(dir, "corpus.jsonl")
	var sb strings.Builder
	for _, d := range docs {
		sb.WriteString(d)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(corpusPath, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	outDir := filepath.Join(dir, "index")
	blocksDir := filepath.Join(outDir, "blocks")
	docStoreDir := filepath.Join(outDir, "doc_store_parts")
	if err := os.MkdirAll(blocksDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(docStoreDir, 0o755); err != nil {
		t.Fatal(err)
	}

	part := corpus.NewPartitioner(corpusPath, 100)
	ranges, err := part.Ranges()
	if err != nil {
		t.Fatal(err)
	}
	pl := pipeline.New(pipeline.NewStopwordOverlapDetector(2), 2, "spanish")

	var results []builder.BlockResult
	for _, r := range ranges {
		res, err := builder.ProcessBlock(corpusPath, r, uint64(r.BlockID)*100, pl, blocksDir, docStoreDir)
		if err != nil {
			t.Fatal(err)
		}
		results = append(results, res)
	}

	merger := builder.NewMerger(builder.MergerConfig{MinDF: minDF, MaxDFRatio: maxDFRatio, DocIndexType: "array"}, outDir, nil)
	if _, err := merger.Merge(results, 100, "test"); err != nil {
		t.Fatal(err)
	}
	return outDir
}

func testConfig() *config.Config {
	cfg, _ := config.Load("")
	cfg.Pipeline.DefaultQueryLanguage = "spanish"
	cfg.Pipeline.MinTokenLen = 2
	cfg.Search.TopK = 10
	return cfg
}

func TestSearchReturnsBothDocsForSharedTerm(t *testing.T) {
	outDir := buildTestIndex(t, []string{
		`{"doc_id":"a","text":"el gato y el perro"}`,
		`{"doc_id":"b","text":"el perro ladra"}`,
	}, 1, 1.0)

	s, err := Open(outDir, testConfig(), Dependencies{})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer s.Close()

	resp, err := s.Search(context.Background(), "perro", "")
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("Results = %v, want 2 docs for shared term", resp.Results)
	}
}

func TestSearchTermOnlyInOneDoc(t *testing.T) {
	outDir := buildTestIndex(t, []string{
		`{"doc_id":"a","text":"el gato y el perro"}`,
		`{"doc_id":"b","text":"el perro ladra"}`,
	}, 1, 0.99)

	s, err := Open(outDir, testConfig(), Dependencies{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	resp, err := s.Search(context.Background(), "ladra", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].DocID != "b" {
		t.Fatalf("Results = %v, want exactly doc b", resp.Results)
	}
}

func TestSearchUnknownTermReturnsEmpty(t *testing.T) {
	outDir := buildTestIndex(t, []string{
		`{"doc_id":"a","text":"el gato y el perro"}`,
	}, 1, 0.99)

	s, err := Open(outDir, testConfig(), Dependencies{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	resp, err := s.Search(context.Background(), "xyzzynotaword", "")
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Fatalf("Results = %v, want empty", resp.Results)
	}
}

func TestSearchBlankQueryIsBadRequest(t *testing.T) {
	outDir := buildTestIndex(t, []string{
		`{"doc_id":"a","text":"el gato y el perro"}`,
	}, 1, 0.99)

	s, err := Open(outDir, testConfig(), Dependencies{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	_, err = s.Search(context.Background(), "   ", "")
	if err == nil || !strings.Contains(err.Error(), apperrors.ErrBadRequest.Error()) {
		t.Fatalf("Search() error = %v, want ErrBadRequest", err)
	}
}

func TestSearchVerbatimQueryScoresPositive(t *testing.T) {
	outDir := buildTestIndex(t, []string{
		`{"doc_id":"a","text":"el gato duerme tranquilo"}`,
		`{"doc_id":"b","text":"el perro ladra fuerte"}`,
	}, 1, 0.99)

	s, err := Open(outDir, testConfig(), Dependencies{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	resp, err := s.Search(context.Background(), "el gato duerme tranquilo", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) == 0 {
		t.Fatalf("expected at least one result for verbatim query")
	}
	if resp.Results[0].DocID != "a" || resp.Results[0].Score <= 0 {
		t.Fatalf("Results[0] = %+v, want doc a with positive score", resp.Results[0])
	}
}

func TestOpenMissingIndexReturnsIndexMissing(t *testing.T) {
	_, err := Open(t.TempDir(), testConfig(), Dependencies{})
	if err == nil || !strings.Contains(err.Error(), apperrors.ErrIndexMissing.Error()) {
		t.Fatalf("Open() error = %v, want ErrIndexMissing", err)
	}
}

func TestReloadSwapsHandles(t *testing.T) {
	outDir := buildTestIndex(t, []string{
		`{"doc_id":"a","text":"el gato y el perro"}`,
	}, 1, 0.99)

	s, err := Open(outDir, testConfig(), Dependencies{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	outDir2 := buildTestIndex(t, []string{
		`{"doc_id":"c","text":"el perro ladra fuerte"}`,
	}, 1, 1.0)

	if err := s.Reload(outDir2); err != nil {
		t.Fatalf("Reload() error: %v", err)
	}

	resp, err := s.Search(context.Background(), "ladra", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].DocID != "c" {
		t.Fatalf("Results = %v, want reloaded doc c only", resp.Results)
	}
}
