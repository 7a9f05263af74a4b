package indexfmt

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"os"

	_ "github.com/tursodatabase/go-libsql"
)

// DocIndex is a persistent ordered mapping doc_uid -> byte offset into
// doc_store.jsonl, supporting random lookup (spec §3, §9). Two
// implementations are provided: SQLiteDocIndex (the literal doc_index.sqlite
// artifact spec.md §6 names) and ArrayDocIndex (the packed-array alternative
// Design Note §9 calls out, viable because doc_uid is dense).
type DocIndex interface {
	Put(docUID uint64, offset int64) error
	Get(docUID uint64) (int64, error)
	Close() error
}

// SQLiteDocIndex stores doc_uid -> offset in a libsql/SQLite table.
type SQLiteDocIndex struct {
	db *sql.DB
}

// OpenSQLiteDocIndex opens (creating if absent) a doc_index.sqlite at path.
func OpenSQLiteDocIndex(path string) (*SQLiteDocIndex, error) {
	db, err := sql.Open("libsql", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("opening doc index %s: %w", path, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS doc_index (
		doc_uid INTEGER PRIMARY KEY,
		offset INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating doc_index table: %w", err)
	}
	return &SQLiteDocIndex{db: db}, nil
}

func (d *SQLiteDocIndex) Put(docUID uint64, offset int64) error {
	_, err := d.db.Exec(
		`INSERT INTO doc_index (doc_uid, offset) VALUES (?, ?)
		 ON CONFLICT(doc_uid) DO UPDATE SET offset = excluded.offset`,
		int64(docUID), offset,
	)
	if err != nil {
		return fmt.Errorf("writing doc_index row for doc_uid %d: %w", docUID, err)
	}
	return nil
}

func (d *SQLiteDocIndex) Get(docUID uint64) (int64, error) {
	var offset int64
	err := d.db.QueryRowContext(context.Background(),
		`SELECT offset FROM doc_index WHERE doc_uid = ?`, int64(docUID),
	).Scan(&offset)
	if err != nil {
		return 0, fmt.Errorf("reading doc_index row for doc_uid %d: %w", docUID, err)
	}
	return offset, nil
}

func (d *SQLiteDocIndex) Close() error {
	return d.db.Close()
}

// ArrayDocIndex is a packed array of int64 offsets indexed directly by
// doc_uid, viable because doc_uid is densely allocated starting at 0 (Design
// Note §9). It is written once, sequentially, by the Merger, then reopened
// read-only by the searcher.
type ArrayDocIndex struct {
	path    string
	offsets []int64
	dirty   bool
}

// NewArrayDocIndex creates an in-memory ArrayDocIndex ready to accept Put
// calls in doc_uid order; call Close to flush it to path.
func NewArrayDocIndex(path string) *ArrayDocIndex {
	return &ArrayDocIndex{path: path}
}

// OpenArrayDocIndex loads an existing packed array from path.
func OpenArrayDocIndex(path string) (*ArrayDocIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading array doc index %s: %w", path, err)
	}
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("array doc index %s has truncated record", path)
	}
	offsets := make([]int64, len(data)/8)
	for i := range offsets {
		offsets[i] = int64(binary.LittleEndian.Uint64(data[i*8 : i*8+8]))
	}
	return &ArrayDocIndex{path: path, offsets: offsets}, nil
}

func (a *ArrayDocIndex) Put(docUID uint64, offset int64) error {
	idx := int(docUID)
	for idx >= len(a.offsets) {
		a.offsets = append(a.offsets, 0)
	}
	a.offsets[idx] = offset
	a.dirty = true
	return nil
}

func (a *ArrayDocIndex) Get(docUID uint64) (int64, error) {
	idx := int(docUID)
	if idx < 0 || idx >= len(a.offsets) {
		return 0, fmt.Errorf("doc_uid %d out of range (N=%d)", docUID, len(a.offsets))
	}
	return a.offsets[idx], nil
}

// Close flushes any pending writes to disk and releases the index. A
// read-only index opened via OpenArrayDocIndex is simply discarded.
func (a *ArrayDocIndex) Close() error {
	if !a.dirty {
		return nil
	}
	data := make([]byte, len(a.offsets)*8)
	for i, off := range a.offsets {
		binary.LittleEndian.PutUint64(data[i*8:i*8+8], uint64(off))
	}
	if err := WriteAtomic(a.path, data); err != nil {
		return fmt.Errorf("flushing array doc index: %w", err)
	}
	a.dirty = false
	return nil
}
