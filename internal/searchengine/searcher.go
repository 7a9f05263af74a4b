// Package searchengine implements the Searcher (§4.6): it loads the meta
// descriptor and term map at startup, then for each query runs the Text
// Pipeline, reads only the needed postings ranges, scores candidates by
// TF-IDF, and hydrates the surviving doc_uids by random access into the
// document store. A Searcher is read-only and safe for concurrent use.
package searchengine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/juanj0tj/sistema-recuperacion-informacion/internal/indexfmt"
	"github.com/juanj0tj/sistema-recuperacion-informacion/internal/pipeline"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/config"
	apperrors "github.com/juanj0tj/sistema-recuperacion-informacion/pkg/errors"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/logger"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/metrics"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/resilience"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/tracing"
)

// Result is one ranked hit returned by Search (§6 "search(...) ->
// {query, results: [{doc_id, score, title, snippet, url}]}").
type Result struct {
	DocID   string  `json:"doc_id"`
	Score   float64 `json:"score"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	URL     string  `json:"url"`
}

// Response is the full return value of Search.
type Response struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
}

// Dependencies bundles the optional ambient collaborators a Searcher may
// use. Every field may be nil, degrading that concern to a no-op.
type Dependencies struct {
	Metrics *metrics.Metrics
	Cache   *QueryCache
}

// handles is one generation of loaded index artifacts. A Reload swaps the
// Searcher's current handles for a new generation under a brief write lock;
// a query captures the handles it uses by value at the start of Search, so
// it never observes a half-swapped state (§5).
type handles struct {
	dir      string
	meta     indexfmt.Meta
	terms    *TermIndex
	postings *os.File
	docStore *os.File
	docIndex indexfmt.DocIndex
}

// Searcher answers queries against a loaded index (§4.6).
type Searcher struct {
	cfg  *config.Config
	deps Dependencies
	pl   *pipeline.Pipeline

	mu sync.RWMutex
	h  *handles
}

// Open loads index.meta.json, index.terms.json, and opens the postings,
// doc-store, and doc-index handles for random access. A missing or
// unreadable meta descriptor is reported as apperrors.ErrIndexMissing (§7).
func Open(dir string, cfg *config.Config, deps Dependencies) (*Searcher, error) {
	h, err := loadHandles(dir)
	if err != nil {
		return nil, err
	}
	detector := pipeline.NewStopwordOverlapDetector(2)
	pl := pipeline.New(detector, cfg.Pipeline.MinTokenLen, cfg.Pipeline.DefaultQueryLanguage)
	return &Searcher{cfg: cfg, deps: deps, pl: pl, h: h}, nil
}

// loadHandles resolves dir's CURRENT pointer to the generation a build last
// published atomically, then opens every artifact it names. A Searcher never
// reads dir itself, only the generation CURRENT names, so it can never
// observe a build's scratch directory mid-merge.
func loadHandles(dir string) (*handles, error) {
	genDir, err := indexfmt.ResolveCurrent(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrIndexMissing, err)
	}

	meta, err := indexfmt.LoadMeta(genDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrIndexMissing, err)
	}

	termsData, err := os.ReadFile(filepath.Join(genDir, meta.TermsIndexPath))
	if err != nil {
		return nil, fmt.Errorf("%w: reading term map: %v", apperrors.ErrIndexMissing, err)
	}
	var termMap indexfmt.TermMap
	if err := json.Unmarshal(termsData, &termMap); err != nil {
		return nil, fmt.Errorf("%w: parsing term map: %v", apperrors.ErrIndexMissing, err)
	}

	postings, err := os.Open(filepath.Join(genDir, meta.PostingsPath))
	if err != nil {
		return nil, fmt.Errorf("%w: opening postings: %v", apperrors.ErrIndexMissing, err)
	}
	docStore, err := os.Open(filepath.Join(genDir, meta.DocStorePath))
	if err != nil {
		postings.Close()
		return nil, fmt.Errorf("%w: opening doc store: %v", apperrors.ErrIndexMissing, err)
	}

	docIndexPath := filepath.Join(genDir, meta.DocIndexPath)
	var docIndex indexfmt.DocIndex
	if meta.DocIndexType == "array" {
		docIndex, err = indexfmt.OpenArrayDocIndex(docIndexPath)
	} else {
		docIndex, err = indexfmt.OpenSQLiteDocIndex(docIndexPath)
	}
	if err != nil {
		postings.Close()
		docStore.Close()
		return nil, fmt.Errorf("%w: opening doc index: %v", apperrors.ErrIndexMissing, err)
	}

	return &handles{
		dir:      dir,
		meta:     meta,
		terms:    NewTermIndex(termMap),
		postings: postings,
		docStore: docStore,
		docIndex: docIndex,
	}, nil
}

// Reload loads a fresh generation of artifacts from dir and swaps it in
// under a write lock, closing the previous generation once no longer
// referenced. This is the "adding a new index artifact set requires a
// reload step with brief exclusive replacement of the in-memory handles"
// mechanism spec.md §5 requires.
func (s *Searcher) Reload(dir string) error {
	next, err := loadHandles(dir)
	if err != nil {
		if s.deps.Metrics != nil {
			s.deps.Metrics.ReloadsTotal.WithLabelValues("failed").Inc()
		}
		return err
	}
	s.mu.Lock()
	prev := s.h
	s.h = next
	s.mu.Unlock()

	if s.deps.Cache != nil {
		if err := s.deps.Cache.Invalidate(context.Background()); err != nil {
			logger.WithComponent("searcher").Warn("cache invalidate after reload failed", "error", err)
		}
	}
	prev.docIndex.Close()
	prev.postings.Close()
	prev.docStore.Close()
	if s.deps.Metrics != nil {
		s.deps.Metrics.ReloadsTotal.WithLabelValues("ok").Inc()
	}
	return nil
}

// PrefixTerms returns up to limit vocabulary terms sharing prefix. Used only
// by the auxiliary debug surface (spec.md §6 "not part of the core
// contract").
func (s *Searcher) PrefixTerms(prefix string, limit int) []string {
	s.mu.RLock()
	h := s.h
	s.mu.RUnlock()
	return h.terms.PrefixTerms(prefix, limit)
}

// Close releases every open handle.
func (s *Searcher) Close() error {
	s.mu.Lock()
	h := s.h
	s.mu.Unlock()
	h.docIndex.Close()
	h.postings.Close()
	return h.docStore.Close()
}

// Search runs the Text Pipeline over query, scores candidate documents by
// TF-IDF, selects the configured TOP_K, and hydrates results from the doc
// store (§4.6). defaultLanguage, if non-empty, overrides the resolved
// fallback language when the query's own language detects as unknown.
func (s *Searcher) Search(ctx context.Context, query string, defaultLanguage string) (Response, error) {
	log := logger.WithComponent("searcher")
	ctx, span := tracing.StartChildSpan(ctx, "search")
	defer span.End()
	defer span.Log()
	span.SetAttr("query", query)

	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		if s.deps.Metrics != nil {
			s.deps.Metrics.QueriesTotal.WithLabelValues("error").Inc()
		}
		return Response{}, apperrors.ErrBadRequest
	}

	start := time.Now()
	cacheStatus := "disabled"

	if s.deps.Cache != nil {
		// The default_language override can change how the query resolves, so
		// it is part of the cache key alongside the query text and limit.
		cacheQuery := trimmed + "|lang=" + defaultLanguage
		resp, hit, err := s.deps.Cache.GetOrCompute(ctx, cacheQuery, s.cfg.Search.TopK, func() (*Response, error) {
			r, err := s.execute(ctx, trimmed, defaultLanguage)
			return &r, err
		})
		if err != nil {
			if s.deps.Metrics != nil {
				s.deps.Metrics.QueriesTotal.WithLabelValues("error").Inc()
			}
			return Response{}, err
		}
		if hit {
			cacheStatus = "hit"
		} else {
			cacheStatus = "miss"
		}
		if s.deps.Metrics != nil {
			if hit {
				s.deps.Metrics.CacheHitsTotal.Inc()
			} else {
				s.deps.Metrics.CacheMissesTotal.Inc()
			}
		}
		s.recordQueryMetrics(cacheStatus, start, len(resp.Results))
		log.Debug("query served", "query", trimmed, "cache_hit", hit, "results", len(resp.Results))
		return *resp, nil
	}

	resp, err := s.execute(ctx, trimmed, defaultLanguage)
	if err != nil {
		if s.deps.Metrics != nil {
			s.deps.Metrics.QueriesTotal.WithLabelValues("error").Inc()
		}
		return Response{}, err
	}
	s.recordQueryMetrics(cacheStatus, start, len(resp.Results))
	log.Debug("query served", "query", trimmed, "cache_hit", false, "results", len(resp.Results))
	return resp, nil
}

func (s *Searcher) recordQueryMetrics(cacheStatus string, start time.Time, resultCount int) {
	if s.deps.Metrics == nil {
		return
	}
	outcome := "hit"
	if resultCount == 0 {
		outcome = "zero_result"
	}
	s.deps.Metrics.QueriesTotal.WithLabelValues(outcome).Inc()
	s.deps.Metrics.QueryLatencySeconds.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	s.deps.Metrics.QueryResultsCount.Observe(float64(resultCount))
}

func (s *Searcher) execute(ctx context.Context, query string, defaultLanguage string) (Response, error) {
	s.mu.RLock()
	h := s.h
	s.mu.RUnlock()

	result := s.pl.Run(query, defaultLanguage)

	qtf := make(map[string]int, len(result.Tokens))
	var order []string
	for _, tok := range result.Tokens {
		if _, ok := qtf[tok]; !ok {
			order = append(order, tok)
		}
		qtf[tok]++
	}

	scores := make(map[uint64]float64)
	for _, term := range order {
		off, ok := h.terms.Lookup(term)
		if !ok {
			continue
		}
		postings, err := s.readPostings(ctx, h, off)
		if err != nil {
			if s.deps.Metrics != nil {
				s.deps.Metrics.TermReadFailuresTotal.Inc()
			}
			logger.WithComponent("searcher").Warn("postings read failed, skipping term", "term", term, "error", err)
			continue
		}
		df := len(postings)
		if df == 0 || h.meta.N == 0 {
			continue
		}
		idf := math.Log(float64(h.meta.N) / float64(df))
		weight := idf * float64(qtf[term])
		for _, p := range postings {
			scores[p.DocUID] += (1 + math.Log(float64(p.TF))) * weight
		}
	}

	top := selectTopK(scores, s.cfg.Search.TopK)

	results := make([]Result, 0, len(top))
	for _, sd := range top {
		rec, err := s.hydrate(h, sd.docUID)
		if err != nil {
			logger.WithComponent("searcher").Warn("doc store hydration failed, dropping result", "doc_uid", sd.docUID, "error", err)
			continue
		}
		results = append(results, Result{
			DocID:   rec.DocID,
			Score:   sd.score,
			Title:   rec.Title,
			Snippet: rec.Snippet,
			URL:     rec.URL,
		})
	}

	return Response{Query: query, Results: results}, nil
}

var postingsRetry = resilience.RetryConfig{MaxAttempts: 2}

func (s *Searcher) readPostings(ctx context.Context, h *handles, off indexfmt.TermOffset) ([]indexfmt.Posting, error) {
	var postings []indexfmt.Posting
	err := resilience.Retry(ctx, "postings-read", postingsRetry, func() error {
		buf := make([]byte, off.Length)
		if _, err := h.postings.ReadAt(buf, off.Offset); err != nil {
			return err
		}
		_, parsed, err := indexfmt.DecodePostingLine(buf)
		if err != nil {
			return err
		}
		postings = parsed
		return nil
	})
	return postings, err
}

func (s *Searcher) hydrate(h *handles, docUID uint64) (indexfmt.DocStoreRecord, error) {
	offset, err := h.docIndex.Get(docUID)
	if err != nil {
		return indexfmt.DocStoreRecord{}, err
	}
	line, err := indexfmt.ReadLineAt(h.docStore, offset)
	if err != nil {
		return indexfmt.DocStoreRecord{}, err
	}
	var rec indexfmt.DocStoreRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return indexfmt.DocStoreRecord{}, err
	}
	return rec, nil
}

type scoredDoc struct {
	docUID uint64
	score  float64
}

// selectTopK picks the topK highest-scoring documents, breaking ties by
// ascending doc_uid (§4.6 step 4).
func selectTopK(scores map[uint64]float64, topK int) []scoredDoc {
	all := make([]scoredDoc, 0, len(scores))
	for uid, score := range scores {
		all = append(all, scoredDoc{docUID: uid, score: score})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].docUID < all[j].docUID
	})
	if topK > 0 && len(all) > topK {
		all = all[:topK]
	}
	return all
}
