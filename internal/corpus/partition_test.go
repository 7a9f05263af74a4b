package corpus

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCorpus(t *testing.T, lines []string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.jsonl")
	var content string
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing corpus fixture: %v", err)
	}
	return path
}

func docLine(id string) string {
	return `{"doc_id":"` + id + `","text":"hola mundo"}`
}

func TestPartitionerProducesUniformBlocksWithShortTail(t *testing.T) {
	var lines []string
	for i := 0; i < 25; i++ {
		lines = append(lines, docLine(string(rune('a'+i))))
	}
	path := writeCorpus(t, lines)

	ranges, err := NewPartitioner(path, 10).Ranges()
	if err != nil {
		t.Fatalf("Ranges() error: %v", err)
	}
	if len(ranges) != 3 {
		t.Fatalf("len(ranges) = %d, want 3", len(ranges))
	}

	var total int
	for _, r := range ranges {
		count := 0
		if err := ReadLines(path, r, func(line []byte) error {
			count++
			return nil
		}); err != nil {
			t.Fatalf("ReadLines() error: %v", err)
		}
		total += count
	}
	if total != 25 {
		t.Fatalf("total lines read = %d, want 25", total)
	}
	if c := countLines(t, path, ranges[2]); c != 5 {
		t.Fatalf("final block has %d lines, want 5", c)
	}
}

func countLines(t *testing.T, path string, r Range) int {
	t.Helper()
	n := 0
	if err := ReadLines(path, r, func(line []byte) error {
		n++
		return nil
	}); err != nil {
		t.Fatalf("ReadLines() error: %v", err)
	}
	return n
}

func TestRangesCoverWholeFileContiguously(t *testing.T) {
	lines := []string{docLine("a"), docLine("b"), docLine("c")}
	path := writeCorpus(t, lines)

	ranges, err := NewPartitioner(path, 10).Ranges()
	if err != nil {
		t.Fatalf("Ranges() error: %v", err)
	}
	if len(ranges) != 1 {
		t.Fatalf("len(ranges) = %d, want 1", len(ranges))
	}
	if ranges[0].Start != 0 {
		t.Fatalf("Start = %d, want 0", ranges[0].Start)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if ranges[0].End != info.Size() {
		t.Fatalf("End = %d, want file size %d", ranges[0].End, info.Size())
	}
}
