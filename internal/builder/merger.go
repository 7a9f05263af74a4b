package builder

import (
	"bufio"
	"container/heap"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/juanj0tj/sistema-recuperacion-informacion/internal/indexfmt"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/metrics"
)

// MergerConfig controls document-frequency pruning (§4.5).
type MergerConfig struct {
	MinDF        int
	MaxDFRatio   float64
	DocIndexType string // "sqlite" or "array"
}

// Merger runs once, in the coordinator process, after every block completes.
// It stages the document store, doc index, k-way merged postings, term map,
// and meta descriptor under a fresh generation directory, then atomically
// publishes the whole generation as "the index" with a single CURRENT
// pointer rewrite (§4.5). Until that rewrite, a failed merge leaves rootDir's
// previously published generation untouched and fully intact (§3, §7).
type Merger struct {
	cfg     MergerConfig
	rootDir string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewMerger builds a Merger that publishes generations under rootDir. m may
// be nil, in which case merge-side metrics reporting is a no-op.
func NewMerger(cfg MergerConfig, rootDir string, m *metrics.Metrics) *Merger {
	if cfg.DocIndexType == "" {
		cfg.DocIndexType = "sqlite"
	}
	return &Merger{cfg: cfg, rootDir: rootDir, metrics: m, logger: slog.Default().With("component", "merger")}
}

// Result is the outcome of a successful Merge. IndexPath is rootDir: the
// stable path a Searcher opens, which resolves the CURRENT pointer to the
// generation this Merge just published.
type Result struct {
	N         int64
	VocabSize int64
	IndexPath string
}

// Merge stages every artifact named in spec.md §6 under a fresh
// rootDir/gen-<runID> directory, then atomically repoints rootDir/CURRENT at
// it — the one step that can make a new generation observable — and prunes
// any previously published generation. Nothing is published, and the prior
// generation (if any) remains the live index, unless every write in the
// staged generation fsyncs successfully (§4.5 Finalization, §7 "Merger
// errors... never publish partial artifacts").
func (m *Merger) Merge(results []BlockResult, blockDocs int, runID string) (Result, error) {
	sort.Slice(results, func(i, j int) bool { return results[i].BlockID < results[j].BlockID })

	genName := "gen-" + runID
	genDir := filepath.Join(m.rootDir, genName)
	if err := os.MkdirAll(genDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("creating build generation directory: %w", err)
	}

	n, vocabSize, err := m.mergeInto(genDir, results, blockDocs)
	if err != nil {
		os.RemoveAll(genDir)
		return Result{}, err
	}

	if err := indexfmt.WriteCurrent(m.rootDir, genName); err != nil {
		os.RemoveAll(genDir)
		return Result{}, fmt.Errorf("publishing build generation: %w", err)
	}
	m.pruneOldGenerations(genName)

	return Result{N: n, VocabSize: vocabSize, IndexPath: m.rootDir}, nil
}

// mergeInto assembles the document store, merges postings, prunes, and
// writes every artifact into genDir. Every write inside genDir is itself
// individually fsync'd-then-renamed (indexfmt.WriteAtomic and the doc
// store/postings builders below), but genDir as a whole is scratch — not
// referenced by any pointer a reader resolves — until Merge's CURRENT
// rewrite, so a failure here can never surface as a partial live index.
func (m *Merger) mergeInto(genDir string, results []BlockResult, blockDocs int) (int64, int64, error) {
	remap, n, err := m.assembleDocStore(genDir, results, blockDocs)
	if err != nil {
		return 0, 0, fmt.Errorf("assembling doc store: %w", err)
	}

	termMap, vocabSize, err := m.mergePostings(genDir, results, remap, n)
	if err != nil {
		return 0, 0, fmt.Errorf("merging postings: %w", err)
	}

	termsData, err := json.Marshal(termMap)
	if err != nil {
		return 0, 0, fmt.Errorf("marshaling term map: %w", err)
	}
	if err := indexfmt.WriteAtomic(filepath.Join(genDir, indexfmt.TermsIndexName), termsData); err != nil {
		return 0, 0, fmt.Errorf("publishing term map: %w", err)
	}

	meta := indexfmt.Meta{
		Format:         "block",
		N:              n,
		VocabSize:      vocabSize,
		PostingsPath:   indexfmt.PostingsName,
		TermsIndexPath: indexfmt.TermsIndexName,
		DocStorePath:   indexfmt.DocStoreName,
		DocIndexPath:   m.docIndexArtifactName(),
		DocIndexType:   m.cfg.DocIndexType,
	}
	if err := indexfmt.WriteMeta(genDir, meta); err != nil {
		return 0, 0, fmt.Errorf("publishing meta descriptor: %w", err)
	}

	return n, vocabSize, nil
}

// pruneOldGenerations removes every rootDir/gen-* directory other than keep.
// Safe even if a Searcher still has an older generation's files open: Linux
// keeps an unlinked file's contents readable through any already-open file
// descriptor until the last one closes (the same property Searcher.Reload
// relies on when swapping handle generations).
func (m *Merger) pruneOldGenerations(keep string) {
	entries, err := os.ReadDir(m.rootDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == keep || !strings.HasPrefix(e.Name(), "gen-") {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.rootDir, e.Name())); err != nil {
			m.logger.Warn("failed to prune stale generation directory", "generation", e.Name(), "error", err)
		}
	}
}

func (m *Merger) docIndexArtifactName() string {
	if m.cfg.DocIndexType == "array" {
		return indexfmt.ArrayDocIndexName
	}
	return indexfmt.SQLiteDocIndexName
}

// assembleDocStore concatenates per-block doc-store shards in ascending
// block-id order into a single doc_store.jsonl, reassigning dense doc_uids
// from 0 whenever a block was short, and records doc_uid -> byte offset in
// the configured DocIndex as it goes. It returns the old->new doc_uid remap
// (nil if identity) and the final document count N.
func (m *Merger) assembleDocStore(genDir string, results []BlockResult, blockDocs int) (map[uint64]uint64, int64, error) {
	needsRemap := false
	for i, r := range results {
		if i != len(results)-1 && r.CountAccepted != blockDocs {
			needsRemap = true
			break
		}
	}

	outPath := filepath.Join(genDir, indexfmt.DocStoreName) + ".building"
	out, err := os.Create(outPath)
	if err != nil {
		return nil, 0, fmt.Errorf("creating doc store: %w", err)
	}
	defer out.Close()
	w := bufio.NewWriter(out)

	docIndex, err := m.openWritableDocIndex(genDir)
	if err != nil {
		return nil, 0, err
	}

	var remap map[uint64]uint64
	if needsRemap {
		remap = make(map[uint64]uint64)
	}

	var newUID uint64
	var offset int64
	for _, r := range results {
		f, err := os.Open(r.DocStorePath)
		if err != nil {
			return nil, 0, fmt.Errorf("opening doc store shard %s: %w", r.DocStorePath, err)
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			var rec indexfmt.DocStoreRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				f.Close()
				return nil, 0, fmt.Errorf("parsing doc store shard %s: %w", r.DocStorePath, err)
			}
			oldUID := rec.DocUID
			if remap != nil {
				remap[oldUID] = newUID
			}
			rec.DocUID = newUID

			encoded, err := json.Marshal(rec)
			if err != nil {
				f.Close()
				return nil, 0, err
			}
			if _, err := w.Write(encoded); err != nil {
				f.Close()
				return nil, 0, err
			}
			if _, err := w.WriteString("\n"); err != nil {
				f.Close()
				return nil, 0, err
			}

			if err := docIndex.Put(newUID, offset); err != nil {
				f.Close()
				return nil, 0, fmt.Errorf("writing doc index entry: %w", err)
			}
			offset += int64(len(encoded)) + 1
			newUID++
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return nil, 0, fmt.Errorf("scanning doc store shard %s: %w", r.DocStorePath, err)
		}
		f.Close()
	}

	if err := w.Flush(); err != nil {
		return nil, 0, fmt.Errorf("flushing doc store: %w", err)
	}
	if err := out.Sync(); err != nil {
		return nil, 0, fmt.Errorf("fsyncing doc store: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, 0, err
	}
	if err := os.Rename(outPath, filepath.Join(genDir, indexfmt.DocStoreName)); err != nil {
		return nil, 0, fmt.Errorf("publishing doc store: %w", err)
	}
	if err := docIndex.Close(); err != nil {
		return nil, 0, fmt.Errorf("closing doc index: %w", err)
	}

	return remap, int64(newUID), nil
}

// openWritableDocIndex opens the configured DocIndex backend rooted at
// genDir — a staging directory, so even SQLiteDocIndex's un-staged,
// autocommit writes (docindex.go) only ever land in scratch space a reader
// never resolves until Merge's CURRENT rewrite.
func (m *Merger) openWritableDocIndex(genDir string) (indexfmt.DocIndex, error) {
	if m.cfg.DocIndexType == "array" {
		return indexfmt.NewArrayDocIndex(filepath.Join(genDir, indexfmt.ArrayDocIndexName)), nil
	}
	return indexfmt.OpenSQLiteDocIndex(filepath.Join(genDir, indexfmt.SQLiteDocIndexName))
}

// termHead tracks one block postings file's current (unconsumed) line.
type termHead struct {
	term     string
	postings []indexfmt.Posting
	scanner  *bufio.Scanner
	file     *os.File
	valid    bool
}

// headHeap is a min-heap over termHead ordered by term, used for the k-way
// merge (§4.5).
type headHeap []*termHead

func (h headHeap) Len() int            { return len(h) }
func (h headHeap) Less(i, j int) bool  { return h[i].term < h[j].term }
func (h headHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *headHeap) Push(x interface{}) { *h = append(*h, x.(*termHead)) }
func (h *headHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (m *Merger) advance(th *termHead) error {
	if !th.scanner.Scan() {
		if err := th.scanner.Err(); err != nil {
			return err
		}
		th.valid = false
		th.file.Close()
		return nil
	}
	term, postings, err := indexfmt.DecodePostingLine(th.scanner.Bytes())
	if err != nil {
		return err
	}
	th.term = term
	th.postings = postings
	th.valid = true
	return nil
}

// mergePostings performs the k-way merge described in §4.5 and writes
// index.postings, returning the final term map and vocabulary size.
func (m *Merger) mergePostings(genDir string, results []BlockResult, remap map[uint64]uint64, n int64) (indexfmt.TermMap, int64, error) {
	var heads headHeap
	for _, r := range results {
		f, err := os.Open(r.PostingsPath)
		if err != nil {
			return nil, 0, fmt.Errorf("opening block postings %s: %w", r.PostingsPath, err)
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
		th := &termHead{scanner: scanner, file: f}
		if err := m.advance(th); err != nil {
			f.Close()
			return nil, 0, err
		}
		if th.valid {
			heads = append(heads, th)
		} else {
			f.Close()
		}
	}
	heap.Init(&heads)

	outPath := filepath.Join(genDir, indexfmt.PostingsName) + ".building"
	out, err := os.Create(outPath)
	if err != nil {
		return nil, 0, fmt.Errorf("creating postings file: %w", err)
	}
	defer out.Close()
	w := bufio.NewWriter(out)

	termMap := make(indexfmt.TermMap)
	var offset int64
	var prunedMinDF, prunedMaxDF int

	for heads.Len() > 0 {
		term := heads[0].term
		var combined []indexfmt.Posting
		var contributing []*termHead

		for heads.Len() > 0 && heads[0].term == term {
			th := heap.Pop(&heads).(*termHead)
			combined = append(combined, th.postings...)
			contributing = append(contributing, th)
		}

		if remap != nil {
			for i := range combined {
				if newUID, ok := remap[combined[i].DocUID]; ok {
					combined[i].DocUID = newUID
				}
			}
		}
		sort.Slice(combined, func(i, j int) bool { return combined[i].DocUID < combined[j].DocUID })
		combined = coalesceDuplicates(combined)

		df := len(combined)
		switch {
		case df < m.cfg.MinDF:
			prunedMinDF++
			if m.metrics != nil {
				m.metrics.TermsPrunedTotal.WithLabelValues("min_df").Inc()
			}
		case n > 0 && float64(df)/float64(n) > m.cfg.MaxDFRatio:
			prunedMaxDF++
			if m.metrics != nil {
				m.metrics.TermsPrunedTotal.WithLabelValues("max_df_ratio").Inc()
			}
		default:
			line, err := indexfmt.EncodePostingLine(term, combined)
			if err != nil {
				return nil, 0, err
			}
			length := int64(len(line)) - 1 // exclude trailing newline, per §8 term-map exactness
			termMap[term] = indexfmt.TermOffset{Offset: offset, Length: length}
			if _, err := w.Write(line); err != nil {
				return nil, 0, fmt.Errorf("writing merged postings line: %w", err)
			}
			offset += int64(len(line))
			if m.metrics != nil {
				m.metrics.TermsWrittenTotal.Inc()
			}
		}

		for _, th := range contributing {
			if err := m.advance(th); err != nil {
				return nil, 0, err
			}
			if th.valid {
				heap.Push(&heads, th)
			}
		}
	}

	if err := w.Flush(); err != nil {
		return nil, 0, fmt.Errorf("flushing postings file: %w", err)
	}
	if err := out.Sync(); err != nil {
		return nil, 0, fmt.Errorf("fsyncing postings file: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, 0, err
	}
	if err := os.Rename(outPath, filepath.Join(genDir, indexfmt.PostingsName)); err != nil {
		return nil, 0, fmt.Errorf("publishing postings file: %w", err)
	}

	m.logger.Info("postings merge complete",
		"terms_written", len(termMap),
		"pruned_min_df", prunedMinDF,
		"pruned_max_df_ratio", prunedMaxDF,
	)

	return termMap, int64(len(termMap)), nil
}

// coalesceDuplicates sums tf for any doc_uid that appears more than once
// within a single term's combined postings. Under correct partitioning this
// never triggers; it exists as the safety net §4.5 step 2 describes.
func coalesceDuplicates(postings []indexfmt.Posting) []indexfmt.Posting {
	out := postings[:0:0]
	for i := 0; i < len(postings); i++ {
		if i > 0 && postings[i].DocUID == out[len(out)-1].DocUID {
			out[len(out)-1].TF += postings[i].TF
			continue
		}
		out = append(out, postings[i])
	}
	return out
}
