package builder

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/juanj0tj/sistema-recuperacion-informacion/internal/corpus"
)

func writeSchedulerCorpus(t *testing.T, n int) string {
	t.Helper()
	var docs []string
	for i := 0; i < n; i++ {
		docs = append(docs, `{"doc_id":"d`+strconv.Itoa(i)+`","text":"el gato y el perro ladra fuerte"}`)
	}
	return writeTestCorpus(t, docs)
}

// TestSchedulerRecyclesPoolAfterMaxTasksPerChild drives Run with a small
// MaxTasksPerChild and asserts the pool is torn down and replaced at least
// once (§4.1's worker-recycling contract).
func TestSchedulerRecyclesPoolAfterMaxTasksPerChild(t *testing.T) {
	const blockDocs = 10
	corpusPath := writeSchedulerCorpus(t, 60)
	outDir := t.TempDir()
	blocksDir := filepath.Join(outDir, "blocks")
	docStoreDir := filepath.Join(outDir, "doc_store_parts")
	if err := os.MkdirAll(blocksDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(docStoreDir, 0o755); err != nil {
		t.Fatal(err)
	}

	part := corpus.NewPartitioner(corpusPath, blockDocs)
	ranges, err := part.Ranges()
	if err != nil {
		t.Fatalf("Ranges() error: %v", err)
	}
	if len(ranges) != 6 {
		t.Fatalf("got %d ranges, want 6", len(ranges))
	}

	sched := NewScheduler(SchedulerConfig{
		Workers:          2,
		MaxInFlight:      2,
		MaxTasksPerChild: 2,
	}, newTestPipeline(), corpusPath, blocksDir, docStoreDir, nil)

	results, err := sched.Run(context.Background(), ranges, blockDocs)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(results) != 6 {
		t.Fatalf("got %d results, want 6", len(results))
	}
	if got := sched.RecycleCount(); got < 1 {
		t.Fatalf("RecycleCount() = %d, want at least 1 recycle over 6 blocks with MaxTasksPerChild=2", got)
	}
}

// TestSchedulerInFlightNeverExceedsWindow asserts the bounded in-flight
// semaphore actually bounds concurrency: InFlightCount() never exceeds W
// while many blocks race through Run (§8 "Backpressure").
func TestSchedulerInFlightNeverExceedsWindow(t *testing.T) {
	const blockDocs = 5
	const maxInFlight = 3
	corpusPath := writeSchedulerCorpus(t, 400)
	outDir := t.TempDir()
	blocksDir := filepath.Join(outDir, "blocks")
	docStoreDir := filepath.Join(outDir, "doc_store_parts")
	if err := os.MkdirAll(blocksDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(docStoreDir, 0o755); err != nil {
		t.Fatal(err)
	}

	part := corpus.NewPartitioner(corpusPath, blockDocs)
	ranges, err := part.Ranges()
	if err != nil {
		t.Fatalf("Ranges() error: %v", err)
	}

	sched := NewScheduler(SchedulerConfig{
		Workers:     3,
		MaxInFlight: maxInFlight,
	}, newTestPipeline(), corpusPath, blocksDir, docStoreDir, nil)

	var maxObserved int64
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				if c := int64(sched.InFlightCount()); c > atomic.LoadInt64(&maxObserved) {
					atomic.StoreInt64(&maxObserved, c)
				}
			}
		}
	}()

	results, err := sched.Run(context.Background(), ranges, blockDocs)
	close(stop)
	<-done

	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(results) != len(ranges) {
		t.Fatalf("got %d results, want %d", len(results), len(ranges))
	}
	if got := atomic.LoadInt64(&maxObserved); got > maxInFlight {
		t.Fatalf("observed InFlightCount() = %d, want <= %d", got, maxInFlight)
	}
}
