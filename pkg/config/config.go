// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem the builder and searcher touch: the index build
// parameters, the text pipeline, and the ambient storage/messaging/metrics
// collaborators.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	Index    IndexConfig    `yaml:"index"`
	Search   SearchConfig   `yaml:"search"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// PipelineConfig controls the text pipeline shared by the builder and the
// searcher (spec §4.1).
type PipelineConfig struct {
	DefaultLanguage      string `yaml:"defaultLanguage"`
	DefaultQueryLanguage string `yaml:"defaultQueryLanguage"`
	MinTokenLen          int    `yaml:"minTokenLen"`
}

// IndexConfig controls the SPIMI block builder (spec §4.2-§4.5).
type IndexConfig struct {
	DataDir                string  `yaml:"dataDir"`
	CorpusPath             string  `yaml:"corpusPath"`
	MinDF                  int     `yaml:"minDF"`
	MaxDFRatio             float64 `yaml:"maxDFRatio"`
	Workers                int     `yaml:"workers"`
	BlockDocs              int     `yaml:"blockDocs"`
	MaxInFlight            int     `yaml:"maxInFlight"`
	MaxTasksPerChild       int     `yaml:"maxTasksPerChild"`
	KeepBlocks             bool    `yaml:"keepBlocks"`
	DocIndexType           string  `yaml:"docIndexType"` // "sqlite" or "array"
	PublishCompletionEvent bool    `yaml:"publishCompletionEvent"`
}

// SearchConfig controls query execution (spec §4.6).
type SearchConfig struct {
	TopK int `yaml:"topK"`
}

// PostgresConfig holds PostgreSQL connection parameters for the optional
// build-run history registry.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// Enabled reports whether a Postgres host has been configured.
func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

// KafkaConfig holds Kafka broker and topic settings for the optional
// build-completion event and hot-reload notification.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumerGroup"`
	IndexComplete string   `yaml:"indexCompleteTopic"`
}

// Enabled reports whether any broker has been configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Brokers[0] != ""
}

// RedisConfig holds Redis connection and query-cache parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// Enabled reports whether a Redis address has been configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies
// environment-variable overrides. It returns a Config populated with
// sensible defaults for any missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with the defaults spec.md §6 lists for each
// configuration key.
func defaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			DefaultLanguage:      "spanish",
			DefaultQueryLanguage: "spanish",
			MinTokenLen:          2,
		},
		Index: IndexConfig{
			DataDir:                "data/index",
			CorpusPath:             "data/corpus.jsonl",
			MinDF:                  1,
			MaxDFRatio:             0.9,
			Workers:                4,
			BlockDocs:              5000,
			MaxInFlight:            0,
			MaxTasksPerChild:       0,
			KeepBlocks:             false,
			DocIndexType:           "sqlite",
			PublishCompletionEvent: true,
		},
		Search: SearchConfig{
			TopK: 10,
		},
		Postgres: PostgresConfig{
			Port:            5432,
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "sri-searcher",
			IndexComplete: "index.complete",
		},
		Redis: RedisConfig{
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads the configuration keys spec.md §6 names directly
// from the environment (not a prefixed scheme) and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DEFAULT_LANGUAGE"); v != "" {
		cfg.Pipeline.DefaultLanguage = v
	}
	if v := os.Getenv("DEFAULT_QUERY_LANGUAGE"); v != "" {
		cfg.Pipeline.DefaultQueryLanguage = v
	}
	if v := os.Getenv("MIN_TOKEN_LEN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MinTokenLen = n
		}
	}
	if v := os.Getenv("TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.TopK = n
		}
	}
	if v := os.Getenv("MIN_DF"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.MinDF = n
		}
	}
	if v := os.Getenv("MAX_DF_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Index.MaxDFRatio = f
		}
	}
	if v := os.Getenv("INDEX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.Workers = n
		}
	}
	if v := os.Getenv("INDEX_BLOCK_DOCS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.BlockDocs = n
		}
	}
	if v := os.Getenv("INDEX_MAX_IN_FLIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.MaxInFlight = n
		}
	}
	if v := os.Getenv("INDEX_MAX_TASKS_PER_CHILD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.MaxTasksPerChild = n
		}
	}
	if v := os.Getenv("INDEX_KEEP_BLOCKS"); v != "" {
		cfg.Index.KeepBlocks = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("SRI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SRI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SRI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SRI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SRI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
