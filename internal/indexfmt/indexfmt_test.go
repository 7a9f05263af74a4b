package indexfmt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteAtomicThenLoadMeta(t *testing.T) {
	dir := t.TempDir()
	meta := Meta{
		Format:         "block",
		N:              10,
		VocabSize:      3,
		PostingsPath:   PostingsName,
		TermsIndexPath: TermsIndexName,
		DocStorePath:   DocStoreName,
		DocIndexPath:   ArrayDocIndexName,
		DocIndexType:   "array",
	}
	if err := WriteMeta(dir, meta); err != nil {
		t.Fatalf("WriteMeta() error: %v", err)
	}

	got, err := LoadMeta(dir)
	if err != nil {
		t.Fatalf("LoadMeta() error: %v", err)
	}
	if got != meta {
		t.Fatalf("LoadMeta() = %+v, want %+v", got, meta)
	}

	if _, err := os.Stat(filepath.Join(dir, MetaFileName)); err != nil {
		t.Fatalf("meta file not published: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("leftover temp file in directory: %s", e.Name())
		}
	}
}

func TestWriteCurrentThenResolveCurrent(t *testing.T) {
	root := t.TempDir()
	if err := WriteCurrent(root, "gen-abc"); err != nil {
		t.Fatalf("WriteCurrent() error: %v", err)
	}
	got, err := ResolveCurrent(root)
	if err != nil {
		t.Fatalf("ResolveCurrent() error: %v", err)
	}
	if want := filepath.Join(root, "gen-abc"); got != want {
		t.Fatalf("ResolveCurrent() = %q, want %q", got, want)
	}

	if err := WriteCurrent(root, "gen-def"); err != nil {
		t.Fatalf("second WriteCurrent() error: %v", err)
	}
	got, err = ResolveCurrent(root)
	if err != nil {
		t.Fatalf("ResolveCurrent() after repoint error: %v", err)
	}
	if want := filepath.Join(root, "gen-def"); got != want {
		t.Fatalf("ResolveCurrent() after repoint = %q, want %q", got, want)
	}
}

func TestResolveCurrentMissingPointerFails(t *testing.T) {
	root := t.TempDir()
	if _, err := ResolveCurrent(root); err == nil {
		t.Fatal("ResolveCurrent() on a directory with no CURRENT pointer returned no error")
	}
}

func TestWriteAtomicNeverLeavesPartialFileVisible(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "artifact.bin")

	if err := WriteAtomic(target, []byte("first version")); err != nil {
		t.Fatalf("initial WriteAtomic() error: %v", err)
	}
	if err := WriteAtomic(target, []byte("second version, longer than the first")); err != nil {
		t.Fatalf("second WriteAtomic() error: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second version, longer than the first" {
		t.Fatalf("target = %q, want full second write, never a partial or first-version read", data)
	}
}

func TestEncodeDecodePostingLineRoundTrip(t *testing.T) {
	postings := []Posting{{DocUID: 0, TF: 3}, {DocUID: 5, TF: 1}, {DocUID: 19, TF: 7}}
	line, err := EncodePostingLine("gato", postings)
	if err != nil {
		t.Fatalf("EncodePostingLine() error: %v", err)
	}

	term, decoded, err := DecodePostingLine(line[:len(line)-1])
	if err != nil {
		t.Fatalf("DecodePostingLine() error: %v", err)
	}
	if term != "gato" {
		t.Fatalf("term = %q, want gato", term)
	}
	if len(decoded) != len(postings) {
		t.Fatalf("decoded %d postings, want %d", len(decoded), len(postings))
	}
	for i, p := range postings {
		if decoded[i] != p {
			t.Fatalf("posting %d = %+v, want %+v", i, decoded[i], p)
		}
	}
}

func TestArrayDocIndexPutGetCloseReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ArrayDocIndexName)

	idx := NewArrayDocIndex(path)
	for uid, off := range []int64{100, 240, 512, 900} {
		if err := idx.Put(uint64(uid), off); err != nil {
			t.Fatalf("Put(%d, %d) error: %v", uid, off, err)
		}
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	reopened, err := OpenArrayDocIndex(path)
	if err != nil {
		t.Fatalf("OpenArrayDocIndex() error: %v", err)
	}
	want := []int64{100, 240, 512, 900}
	for uid, off := range want {
		got, err := reopened.Get(uint64(uid))
		if err != nil {
			t.Fatalf("Get(%d) error: %v", uid, err)
		}
		if got != off {
			t.Fatalf("Get(%d) = %d, want %d", uid, got, off)
		}
	}
}

func TestArrayDocIndexGetOutOfRange(t *testing.T) {
	dir := t.TempDir()
	idx := NewArrayDocIndex(filepath.Join(dir, ArrayDocIndexName))
	if err := idx.Put(0, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Get(5); err == nil {
		t.Fatal("Get() on an unassigned doc_uid should error, got nil")
	}
}
