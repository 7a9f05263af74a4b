// Command builder runs one SPIMI build over a corpus file and exits,
// printing {indexed_docs, vocab_size, index_path} (spec.md §6 "build").
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/juanj0tj/sistema-recuperacion-informacion/internal/builder"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/config"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/kafka"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/logger"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/metrics"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	corpusPath := flag.String("corpus", "", "path to the corpus file (defaults to config's index.corpusPath)")
	history := flag.Int("history", 0, "print the N most recent build runs from the history registry instead of building")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if *history > 0 {
		runHistory(cfg, *history)
		return
	}

	var deps builder.Dependencies
	if cfg.Metrics.Enabled {
		deps.Metrics = metrics.New()
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}
	if cfg.Postgres.Enabled() {
		client, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, build-run history disabled", "error", err)
		} else {
			defer client.Close()
			if err := client.EnsureBuildRunsTable(context.Background()); err != nil {
				slog.Warn("could not ensure build_runs table, history disabled", "error", err)
			} else {
				deps.Registry = postgres.NewBuildRegistry(client)
			}
		}
	}
	if cfg.Kafka.Enabled() {
		deps.Producer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.IndexComplete)
		defer deps.Producer.Close()
	}

	report, err := builder.Build(context.Background(), cfg, *corpusPath, deps)
	if err != nil {
		slog.Error("build failed", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{
		"indexed_docs": report.IndexedDocs,
		"vocab_size":   report.VocabSize,
		"index_path":   report.IndexPath,
	})
}

// runHistory prints the most recent build-run registry rows (§4.3
// supplement); it requires Postgres to be configured.
func runHistory(cfg *config.Config, limit int) {
	if !cfg.Postgres.Enabled() {
		fmt.Fprintln(os.Stderr, "postgres not configured, build-run history unavailable")
		os.Exit(1)
	}
	client, err := postgres.New(cfg.Postgres)
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres unavailable: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	registry := postgres.NewBuildRegistry(client)
	runs, err := registry.Recent(context.Background(), limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(runs)
}
