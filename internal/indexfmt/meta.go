// Package indexfmt defines the on-disk index artifact formats shared by the
// builder (which writes them) and the searcher (which reads them): the meta
// descriptor, the postings line format, and the doc_uid -> offset doc index.
package indexfmt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Meta is the descriptor persisted as index.meta.json (§3, §6).
type Meta struct {
	Format         string `json:"format"`
	N              int64  `json:"N"`
	VocabSize      int64  `json:"vocab_size"`
	PostingsPath   string `json:"postings_path"`
	TermsIndexPath string `json:"terms_index_path"`
	DocStorePath   string `json:"doc_store_path"`
	DocIndexPath   string `json:"doc_index_path"`
	DocIndexType   string `json:"doc_index_type"`
}

const (
	MetaFileName    = "index.meta.json"
	PostingsName    = "index.postings"
	TermsIndexName  = "index.terms.json"
	DocStoreName    = "doc_store.jsonl"
	SQLiteDocIndexName = "doc_index.sqlite"
	ArrayDocIndexName  = "doc_index.array"

	// CurrentFileName names the pointer file that publishes one merged
	// generation directory as "the index" (spec.md §3: "the old artifacts
	// are replaced atomically only after all writes complete"). A build
	// stages every artifact under a fresh gen-<run_id> directory and, only
	// once every write has fsynced, atomically rewrites this pointer —
	// the single step that can ever make a new generation observable.
	CurrentFileName = "CURRENT"
)

// LoadMeta reads and decodes index.meta.json from dir.
func LoadMeta(dir string) (Meta, error) {
	var m Meta
	data, err := os.ReadFile(filepath.Join(dir, MetaFileName))
	if err != nil {
		return m, fmt.Errorf("reading meta descriptor: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parsing meta descriptor: %w", err)
	}
	return m, nil
}

// WriteAtomic writes data to a temp file in the same directory as path,
// fsyncs it, then renames it into place. This guarantees that either the
// previous file at path is observed, or the complete new one is — never a
// half-written file (spec §4.5 finalization).
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsyncing temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file into %s: %w", path, err)
	}
	return nil
}

// WriteMeta serializes m and writes it atomically to dir/index.meta.json.
func WriteMeta(dir string, m Meta) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling meta descriptor: %w", err)
	}
	return WriteAtomic(filepath.Join(dir, MetaFileName), data)
}

// ResolveCurrent reads rootDir/CURRENT and returns the absolute path of the
// generation directory it names — the one atomically-published set of
// artifacts a reader should open. A missing or empty pointer means no build
// has ever published successfully under rootDir.
func ResolveCurrent(rootDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(rootDir, CurrentFileName))
	if err != nil {
		return "", fmt.Errorf("reading CURRENT pointer: %w", err)
	}
	gen := strings.TrimSpace(string(data))
	if gen == "" {
		return "", fmt.Errorf("CURRENT pointer is empty")
	}
	return filepath.Join(rootDir, gen), nil
}

// WriteCurrent atomically repoints rootDir/CURRENT at genName. This is the
// single write that makes a freshly merged generation directory — doc
// store, doc index, postings, term map, and meta, all already fsynced —
// observable as the index; everything before it is still scratch that a
// failed build leaves behind harmlessly under rootDir.
func WriteCurrent(rootDir, genName string) error {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return fmt.Errorf("preparing index root %s: %w", rootDir, err)
	}
	return WriteAtomic(filepath.Join(rootDir, CurrentFileName), []byte(genName))
}
