// Command searchcli queries a built index and prints ranked results as JSON
// (spec.md §6 "search"). It also exposes the auxiliary, non-core pipeline
// debug stages and an aggregate health check, per SPEC_FULL.md §5.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juanj0tj/sistema-recuperacion-informacion/internal/indexfmt"
	"github.com/juanj0tj/sistema-recuperacion-informacion/internal/pipeline"
	"github.com/juanj0tj/sistema-recuperacion-informacion/internal/searchengine"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/config"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/health"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/logger"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/metrics"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/postgres"
	pkgredis "github.com/juanj0tj/sistema-recuperacion-informacion/pkg/redis"
	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	query := flag.String("q", "", "query string")
	lang := flag.String("lang", "", "default_language override")
	debugStage := flag.String("debug", "", "run one pipeline stage instead of a search: normalize|tokenize|stopwords|filter|stem")
	prefix := flag.String("prefix", "", "list vocabulary terms starting with this prefix instead of searching")
	healthcheck := flag.Bool("healthcheck", false, "run aggregate health checks and print the report")
	serve := flag.Bool("serve", false, "stay resident, subscribing to index.complete for hot-reload, until interrupted")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	switch {
	case *healthcheck:
		runHealthcheck(cfg)
	case *serve:
		runServe(cfg)
	case *prefix != "":
		runPrefix(*prefix, cfg)
	case *debugStage != "":
		runDebugStage(*debugStage, *query, *lang, cfg)
	default:
		runSearch(*query, *lang, cfg)
	}
}

// runPrefix lists vocabulary terms sharing a prefix, an auxiliary
// introspection surface over the loaded term index.
func runPrefix(prefix string, cfg *config.Config) {
	searcher, err := searchengine.Open(cfg.Index.DataDir, cfg, searchengine.Dependencies{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer searcher.Close()

	terms := searcher.PrefixTerms(prefix, 50)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{"prefix": prefix, "terms": terms})
}

// runServe keeps a Searcher resident and, if Kafka is configured, subscribed
// to the index.complete topic so a fresh build triggers Reload without a
// process restart (§5 hot-reload).
func runServe(cfg *config.Config) {
	var deps searchengine.Dependencies
	if cfg.Metrics.Enabled {
		deps.Metrics = metrics.New()
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}
	if cfg.Redis.Enabled() {
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			fmt.Fprintf(os.Stderr, "redis unavailable, query cache disabled: %v\n", err)
		} else {
			defer client.Close()
			deps.Cache = searchengine.NewQueryCache(client, cfg.Redis)
		}
	}

	searcher, err := searchengine.Open(cfg.Index.DataDir, cfg, deps)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer searcher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.Kafka.Enabled() {
		fmt.Fprintln(os.Stderr, "kafka not configured; serving without hot-reload until interrupted")
		<-ctx.Done()
		return
	}

	if err := searchengine.SubscribeReload(ctx, searcher, cfg.Kafka); err != nil {
		fmt.Fprintf(os.Stderr, "reload subscription stopped: %v\n", err)
		os.Exit(1)
	}
}

func runSearch(query, lang string, cfg *config.Config) {
	var deps searchengine.Dependencies
	if cfg.Metrics.Enabled {
		deps.Metrics = metrics.New()
	}
	if cfg.Redis.Enabled() {
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			fmt.Fprintf(os.Stderr, "redis unavailable, query cache disabled: %v\n", err)
		} else {
			defer client.Close()
			deps.Cache = searchengine.NewQueryCache(client, cfg.Redis)
		}
	}

	searcher, err := searchengine.Open(cfg.Index.DataDir, cfg, deps)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer searcher.Close()

	var resp searchengine.Response
	err = resilience.WithTimeout(context.Background(), 30*time.Second, "search", func(ctx context.Context) error {
		var searchErr error
		resp, searchErr = searcher.Search(ctx, query, lang)
		return searchErr
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(resp)
}

func runDebugStage(stage, query, lang string, cfg *config.Config) {
	normalized := pipeline.Normalize(query)
	var out any
	switch stage {
	case "normalize":
		out = normalized
	case "tokenize":
		out = pipeline.Tokenize(normalized)
	case "stopwords":
		resolved := lang
		if resolved == "" {
			resolved = cfg.Pipeline.DefaultLanguage
		}
		out = pipeline.RemoveStopwords(pipeline.Tokenize(normalized), resolved)
	case "filter":
		resolved := lang
		if resolved == "" {
			resolved = cfg.Pipeline.DefaultLanguage
		}
		tokens := pipeline.RemoveStopwords(pipeline.Tokenize(normalized), resolved)
		out = pipeline.FilterTokens(tokens, cfg.Pipeline.MinTokenLen)
	case "stem":
		resolved := lang
		if resolved == "" {
			resolved = cfg.Pipeline.DefaultLanguage
		}
		tokens := pipeline.RemoveStopwords(pipeline.Tokenize(normalized), resolved)
		tokens = pipeline.FilterTokens(tokens, cfg.Pipeline.MinTokenLen)
		out = pipeline.Stem(tokens, resolved)
	default:
		fmt.Fprintf(os.Stderr, "unknown debug stage %q\n", stage)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{"stage": stage, "result": out})
}

func runHealthcheck(cfg *config.Config) {
	checker := health.NewChecker()

	if cfg.Postgres.Enabled() {
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			client, err := postgres.New(cfg.Postgres)
			if err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			defer client.Close()
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}
	if cfg.Redis.Enabled() {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			client, err := pkgredis.NewClient(cfg.Redis)
			if err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			defer client.Close()
			if err := client.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		genDir, err := indexfmt.ResolveCurrent(cfg.Index.DataDir)
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: "index not built"}
		}
		if _, err := indexfmt.LoadMeta(genDir); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: "index published but meta unreadable"}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	report := checker.Run(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
	if report.Status == health.StatusDown {
		os.Exit(1)
	}
}
