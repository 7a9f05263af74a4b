// Package builder implements the SPIMI-style block inverted-index builder:
// corpus partitioning, bounded-parallel block workers, and the merge step
// that produces a searchable index (§4.2-§4.5).
package builder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/juanj0tj/sistema-recuperacion-informacion/internal/corpus"
	"github.com/juanj0tj/sistema-recuperacion-informacion/internal/indexfmt"
	"github.com/juanj0tj/sistema-recuperacion-informacion/internal/pipeline"
)

// snippetRunes is the maximum rune length of a stored snippet, matching the
// original service's "first 240 characters of text" truncation.
const snippetRunes = 240

// BlockResult is what a Block Worker hands back to the Scheduler on
// completion.
type BlockResult struct {
	BlockID         int
	PostingsPath    string
	DocStorePath    string
	CountAccepted   int
	CountRejected   int
}

// ProcessBlock implements the Block Worker (§4.3): it parses every record in
// r, runs the text pipeline over title+text, accumulates a block-local
// posting map, and writes both the block's postings file and its doc-store
// shard.
func ProcessBlock(corpusPath string, r corpus.Range, baseDocUID uint64, pl *pipeline.Pipeline, blocksDir, docStoreDir string) (BlockResult, error) {
	postings := make(map[string][]indexfmt.Posting)
	var docLines []indexfmt.DocStoreRecord

	var accepted, rejected int
	nextUID := baseDocUID

	err := corpus.ReadLines(corpusPath, r, func(line []byte) error {
		doc, perr := corpus.ParseLine(line)
		if perr != nil {
			rejected++
			return nil
		}

		docUID := nextUID
		nextUID++
		accepted++

		combined := doc.Title
		if combined != "" {
			combined += " "
		}
		combined += doc.Text

		result := pl.Run(combined, "")
		termFreq := make(map[string]int, len(result.Tokens))
		for _, tok := range result.Tokens {
			termFreq[tok]++
		}
		for term, tf := range termFreq {
			postings[term] = append(postings[term], indexfmt.Posting{DocUID: docUID, TF: tf})
		}

		docLines = append(docLines, indexfmt.DocStoreRecord{
			DocUID:   docUID,
			DocID:    doc.DocID,
			Title:    doc.Title,
			URL:      doc.URL,
			Snippet:  truncateRunes(doc.Text, snippetRunes),
			Language: result.Language,
		})
		return nil
	})
	if err != nil {
		return BlockResult{}, fmt.Errorf("block %d: reading corpus range: %w", r.BlockID, err)
	}

	postingsPath := filepath.Join(blocksDir, fmt.Sprintf("block_%d.jsonl", r.BlockID))
	if err := writeBlockPostings(postingsPath, postings); err != nil {
		return BlockResult{}, fmt.Errorf("block %d: %w", r.BlockID, err)
	}

	docStorePath := filepath.Join(docStoreDir, fmt.Sprintf("doc_store_%d.jsonl", r.BlockID))
	if err := writeDocStoreShard(docStorePath, docLines); err != nil {
		return BlockResult{}, fmt.Errorf("block %d: %w", r.BlockID, err)
	}

	return BlockResult{
		BlockID:       r.BlockID,
		PostingsPath:  postingsPath,
		DocStorePath:  docStorePath,
		CountAccepted: accepted,
		CountRejected: rejected,
	}, nil
}

// writeBlockPostings sorts the block's postings by term, then by doc_uid
// within each term, and writes them out as tab-separated JSON lines.
func writeBlockPostings(path string, postings map[string][]indexfmt.Posting) error {
	terms := make([]string, 0, len(postings))
	for term := range postings {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating block postings file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, term := range terms {
		entries := postings[term]
		sort.Slice(entries, func(i, j int) bool { return entries[i].DocUID < entries[j].DocUID })
		line, err := indexfmt.EncodePostingLine(term, entries)
		if err != nil {
			return err
		}
		if _, err := w.Write(line); err != nil {
			return fmt.Errorf("writing block postings line: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing block postings file: %w", err)
	}
	return f.Sync()
}

func writeDocStoreShard(path string, docs []indexfmt.DocStoreRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating doc store shard: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("writing doc store record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing doc store shard: %w", err)
	}
	return f.Sync()
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
