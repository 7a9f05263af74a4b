package builder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/semaphore"

	"github.com/juanj0tj/sistema-recuperacion-informacion/internal/corpus"
	"github.com/juanj0tj/sistema-recuperacion-informacion/internal/pipeline"
	apperrors "github.com/juanj0tj/sistema-recuperacion-informacion/pkg/errors"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/metrics"
)

// SchedulerConfig controls the Scheduler's concurrency bounds (§4.4).
type SchedulerConfig struct {
	Workers          int
	MaxInFlight      int
	MaxTasksPerChild int
}

// Scheduler dispatches Block Workers with controlled concurrency and
// deterministic doc_uid assignment (§4.4). Pool size (INDEX_WORKERS) and the
// in-flight window (W) are independent bounds: a conc pool caps how many
// block jobs run at once, while a semaphore caps how many are submitted but
// not yet complete, which is the backpressure gate on dispatching the
// Partitioner's precomputed ranges.
type Scheduler struct {
	cfg        SchedulerConfig
	pl         *pipeline.Pipeline
	corpusPath string
	blocksDir  string
	docStoreDir string
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu        sync.Mutex
	inFlight  *roaring.Bitmap
	recycles  int
}

// NewScheduler builds a Scheduler, filling in W = 2*Workers when MaxInFlight
// is 0 (§4.4). m may be nil, in which case in-flight gauge reporting is a
// no-op.
func NewScheduler(cfg SchedulerConfig, pl *pipeline.Pipeline, corpusPath, blocksDir, docStoreDir string, m *metrics.Metrics) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 2 * cfg.Workers
	}
	return &Scheduler{
		cfg:         cfg,
		pl:          pl,
		corpusPath:  corpusPath,
		blocksDir:   blocksDir,
		docStoreDir: docStoreDir,
		logger:      slog.Default().With("component", "scheduler"),
		metrics:     m,
		inFlight:    roaring.New(),
	}
}

// InFlightCount reports how many block tasks are currently submitted but not
// yet completed (the testable "Backpressure" property, §8).
func (s *Scheduler) InFlightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.inFlight.GetCardinality())
}

// RecycleCount reports how many times Run has torn down and replaced the
// worker pool after MaxTasksPerChild tasks per worker (MaxTasksPerChild *
// Workers tasks submitted to the pool), the testable form of the worker
// recycling contract (§4.1).
func (s *Scheduler) RecycleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recycles
}

// Run dispatches every range from the Partitioner's range slice to a
// bounded worker pool with base_doc_uid assigned by block id, and returns
// results sorted back into ascending block-id order. A worker-fatal error
// aborts the whole build: outstanding tasks are cancelled and a
// *errors.BuildAborted is returned naming the offending block.
func (s *Scheduler) Run(ctx context.Context, ranges []corpus.Range, blockDocs int) ([]BlockResult, error) {
	sem := semaphore.NewWeighted(int64(s.cfg.MaxInFlight))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]BlockResult, len(ranges))
	errs := make([]error, len(ranges))

	tasksHandled := 0
	p := s.newPool()

	for i, r := range ranges {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		s.markInFlight(r.BlockID, true)

		baseDocUID := uint64(r.BlockID) * uint64(blockDocs)
		idx := i
		rr := r

		p.Go(func() {
			defer sem.Release(1)
			defer s.markInFlight(rr.BlockID, false)

			result, err := ProcessBlock(s.corpusPath, rr, baseDocUID, s.pl, s.blocksDir, s.docStoreDir)
			if err != nil {
				errs[idx] = apperrors.NewBuildAborted(rr.BlockID, err)
				cancel()
				return
			}
			results[idx] = result
		})

		tasksHandled++
		if s.cfg.MaxTasksPerChild > 0 && tasksHandled%(s.cfg.MaxTasksPerChild*s.cfg.Workers) == 0 {
			// Recycle the pool: goroutines carry no accumulated process state
			// (unlike the process-based original), so this is a teardown and
			// recreate rather than a true restart, but it honors the contract.
			p.Wait()
			if err := firstErr(errs); err != nil {
				return nil, err
			}
			s.logger.Debug("recycling worker pool", "tasks_handled", tasksHandled)
			s.mu.Lock()
			s.recycles++
			s.mu.Unlock()
			p = s.newPool()
		}
	}

	p.Wait()
	if err := firstErr(errs); err != nil {
		return nil, err
	}
	if ctx.Err() != nil && ctx.Err() != context.Canceled {
		return nil, fmt.Errorf("build cancelled: %w", ctx.Err())
	}

	return results, nil
}

func (s *Scheduler) newPool() *pool.Pool {
	return pool.New().WithMaxGoroutines(s.cfg.Workers)
}

func (s *Scheduler) markInFlight(blockID int, inFlight bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inFlight {
		s.inFlight.Add(uint32(blockID))
	} else {
		s.inFlight.Remove(uint32(blockID))
	}
	if s.metrics != nil {
		s.metrics.BuildersInFlight.Set(float64(s.inFlight.GetCardinality()))
	}
}

func firstErr(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
