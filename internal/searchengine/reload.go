package searchengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/config"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/kafka"
)

// completionEvent mirrors the payload internal/builder.publishCompletion
// publishes to the index.complete topic.
type completionEvent struct {
	RunID       string `json:"run_id"`
	IndexedDocs int64  `json:"indexed_docs"`
	VocabSize   int64  `json:"vocab_size"`
	IndexPath   string `json:"index_path"`
}

// SubscribeReload starts a Kafka consumer on cfg.Kafka.IndexComplete that
// calls s.Reload whenever a build announces a freshly published index
// (§5 "adding a new index artifact set requires a reload step"). It runs
// until ctx is cancelled.
func SubscribeReload(ctx context.Context, s *Searcher, cfg config.KafkaConfig) error {
	log := slog.Default().With("component", "searcher-reload")
	consumer := kafka.NewConsumer(cfg, cfg.IndexComplete, func(ctx context.Context, key []byte, value []byte) error {
		var evt completionEvent
		if err := json.Unmarshal(value, &evt); err != nil {
			return fmt.Errorf("decoding index.complete event: %w", err)
		}
		if evt.IndexPath == "" {
			return fmt.Errorf("index.complete event missing index_path")
		}
		if err := s.Reload(evt.IndexPath); err != nil {
			return fmt.Errorf("reloading index from %s: %w", evt.IndexPath, err)
		}
		log.Info("index reloaded", "run_id", evt.RunID, "indexed_docs", evt.IndexedDocs, "vocab_size", evt.VocabSize)
		return nil
	})
	return consumer.Start(ctx)
}
