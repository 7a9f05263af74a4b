package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/juanj0tj/sistema-recuperacion-informacion/internal/corpus"
	"github.com/juanj0tj/sistema-recuperacion-informacion/internal/pipeline"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/config"
	apperrors "github.com/juanj0tj/sistema-recuperacion-informacion/pkg/errors"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/kafka"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/logger"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/metrics"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/postgres"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/resilience"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/tracing"
)

// Report is the outcome of a successful Build (spec §6: "build(corpus_path?)
// -> {indexed_docs, vocab_size, index_path}").
type Report struct {
	IndexedDocs int64
	VocabSize   int64
	IndexPath   string
}

// Dependencies bundles the optional ambient collaborators a Build may use.
// Every field may be nil; a nil collaborator degrades that concern to a
// no-op rather than failing the build.
type Dependencies struct {
	Metrics  *metrics.Metrics
	Registry *postgres.BuildRegistry
	Producer *kafka.Producer
}

// Build runs the full SPIMI pipeline: partition the corpus, dispatch Block
// Workers under the Scheduler's bounded concurrency, then merge. It is the
// library entry point cmd/builder calls into (spec §6).
func Build(ctx context.Context, cfg *config.Config, corpusPath string, deps Dependencies) (Report, error) {
	if corpusPath == "" {
		corpusPath = cfg.Index.CorpusPath
	}
	log := logger.WithComponent("builder")

	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	ctx, span := tracing.StartSpan(ctx, "build", runID)
	defer span.End()
	defer span.Log()

	if deps.Registry != nil {
		if err := deps.Registry.Start(ctx, runID, corpusPath); err != nil {
			log.Warn("failed to record build run start", "error", err)
		}
	}

	report, buildErr := runBuild(ctx, cfg, corpusPath, runID, deps)

	if deps.Registry != nil {
		status := "succeeded"
		if buildErr != nil {
			status = "failed"
		}
		if err := deps.Registry.Finish(ctx, runID, status, report.IndexedDocs, 0, report.VocabSize, buildErr); err != nil {
			log.Warn("failed to record build run finish", "error", err)
		}
	}

	if buildErr != nil {
		return Report{}, buildErr
	}

	if deps.Producer != nil && cfg.Index.PublishCompletionEvent {
		publishCompletion(ctx, deps.Producer, deps.Metrics, runID, report)
	}

	return report, nil
}

func runBuild(ctx context.Context, cfg *config.Config, corpusPath, runID string, deps Dependencies) (Report, error) {
	log := logger.FromContext(ctx).With("component", "builder")

	outDir := cfg.Index.DataDir
	blocksDir := filepath.Join(outDir, "blocks")
	docStoreDir := filepath.Join(outDir, "doc_store_parts")
	for _, dir := range []string{outDir, blocksDir, docStoreDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Report{}, fmt.Errorf("preparing build directory %s: %w", dir, err)
		}
	}

	part := corpus.NewPartitioner(corpusPath, cfg.Index.BlockDocs)
	ranges, err := part.Ranges()
	if err != nil {
		return Report{}, fmt.Errorf("partitioning corpus: %w", err)
	}

	detector := pipeline.NewStopwordOverlapDetector(2)
	pl := pipeline.New(detector, cfg.Pipeline.MinTokenLen, cfg.Pipeline.DefaultLanguage)

	sched := NewScheduler(SchedulerConfig{
		Workers:          cfg.Index.Workers,
		MaxInFlight:      cfg.Index.MaxInFlight,
		MaxTasksPerChild: cfg.Index.MaxTasksPerChild,
	}, pl, corpusPath, blocksDir, docStoreDir, deps.Metrics)

	start := time.Now()
	results, err := sched.Run(ctx, ranges, cfg.Index.BlockDocs)
	if err != nil {
		if deps.Metrics != nil {
			deps.Metrics.BlocksBuiltTotal.WithLabelValues("failed").Inc()
		}
		cleanupScratch(cfg, blocksDir, docStoreDir)
		return Report{}, err
	}

	var totalAccepted, totalRejected int
	for _, r := range results {
		totalAccepted += r.CountAccepted
		totalRejected += r.CountRejected
	}
	if totalAccepted == 0 {
		cleanupScratch(cfg, blocksDir, docStoreDir)
		return Report{}, apperrors.ErrEmptyCorpus
	}

	if deps.Metrics != nil {
		deps.Metrics.BlocksBuiltTotal.WithLabelValues("ok").Add(float64(len(results)))
		deps.Metrics.BlockBuildSeconds.WithLabelValues(cfg.Pipeline.DefaultLanguage).Observe(time.Since(start).Seconds())
		deps.Metrics.DocsIndexedTotal.Add(float64(totalAccepted))
	}
	log.Info("blocks built", "blocks", len(results), "accepted", totalAccepted, "rejected", totalRejected)

	mergeStart := time.Now()
	merger := NewMerger(MergerConfig{
		MinDF:        cfg.Index.MinDF,
		MaxDFRatio:   cfg.Index.MaxDFRatio,
		DocIndexType: cfg.Index.DocIndexType,
	}, outDir, deps.Metrics)

	result, err := merger.Merge(results, cfg.Index.BlockDocs, runID)
	if deps.Metrics != nil {
		deps.Metrics.MergeSeconds.Observe(time.Since(mergeStart).Seconds())
	}
	if err != nil {
		return Report{}, fmt.Errorf("merge failed: %w", err)
	}

	cleanupScratch(cfg, blocksDir, docStoreDir)

	return Report{IndexedDocs: result.N, VocabSize: result.VocabSize, IndexPath: result.IndexPath}, nil
}

func cleanupScratch(cfg *config.Config, blocksDir, docStoreDir string) {
	if cfg.Index.KeepBlocks {
		return
	}
	os.RemoveAll(blocksDir)
	os.RemoveAll(docStoreDir)
}

// publishCompletion announces a successful build on the index.complete topic.
// A circuit breaker guards the publish so a down broker degrades the event,
// never the build itself (spec's build is fatal only on its own §7 errors).
var publishBreaker = resilience.NewCircuitBreaker("kafka-index-complete", resilience.CircuitBreakerConfig{})

func publishCompletion(ctx context.Context, producer *kafka.Producer, m *metrics.Metrics, runID string, report Report) {
	log := logger.FromContext(ctx).With("component", "builder")
	err := publishBreaker.Execute(func() error {
		return producer.Publish(ctx, kafka.Event{
			Key: runID,
			Value: map[string]any{
				"run_id":       runID,
				"indexed_docs": report.IndexedDocs,
				"vocab_size":   report.VocabSize,
				"index_path":   report.IndexPath,
			},
		})
	})
	if m != nil {
		m.CircuitBreakerState.WithLabelValues(publishBreaker.Name()).Set(float64(publishBreaker.GetState()))
	}
	if err != nil {
		log.Warn("failed to publish index.complete event", "error", err)
	}
}
