// Package postgres wraps a lib/pq connection and the build-run history
// registry: one row per Build invocation, recording its outcome for audit
// and for cmd/builder's "-history" report.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/juanj0tj/sistema-recuperacion-informacion/pkg/config"
	_ "github.com/lib/pq"
)

// Client wraps a pooled *sql.DB.
type Client struct {
	DB  *sql.DB
	cfg config.PostgresConfig
}

// New opens a Postgres connection pool and verifies it with a ping.
func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Client{DB: db, cfg: cfg}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// EnsureBuildRunsTable creates the build_runs table if it does not exist.
func (c *Client) EnsureBuildRunsTable(ctx context.Context) error {
	_, err := c.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS build_runs (
			run_id           TEXT PRIMARY KEY,
			corpus_path      TEXT NOT NULL,
			started_at       TIMESTAMPTZ NOT NULL,
			finished_at      TIMESTAMPTZ,
			status           TEXT NOT NULL,
			docs_indexed     BIGINT NOT NULL DEFAULT 0,
			blocks_built     INT NOT NULL DEFAULT 0,
			vocabulary_size  BIGINT NOT NULL DEFAULT 0,
			error_message    TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("ensuring build_runs table: %w", err)
	}
	return nil
}

// BuildRun is one row of the build-run history.
type BuildRun struct {
	RunID          string
	CorpusPath     string
	StartedAt      time.Time
	FinishedAt     sql.NullTime
	Status         string
	DocsIndexed    int64
	BlocksBuilt    int
	VocabularySize int64
	ErrorMessage   sql.NullString
}

// BuildRegistry records build-run lifecycle events in Postgres.
type BuildRegistry struct {
	client *Client
}

// NewBuildRegistry wraps an already-connected Client.
func NewBuildRegistry(client *Client) *BuildRegistry {
	return &BuildRegistry{client: client}
}

// Start inserts a new build_runs row in the "running" state.
func (r *BuildRegistry) Start(ctx context.Context, runID, corpusPath string) error {
	_, err := r.client.DB.ExecContext(ctx, `
		INSERT INTO build_runs (run_id, corpus_path, started_at, status)
		VALUES ($1, $2, $3, 'running')
	`, runID, corpusPath, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recording build run start: %w", err)
	}
	return nil
}

// Finish updates a build_runs row with its terminal status and counters.
func (r *BuildRegistry) Finish(ctx context.Context, runID, status string, docsIndexed int64, blocksBuilt int, vocabularySize int64, buildErr error) error {
	var errMsg sql.NullString
	if buildErr != nil {
		errMsg = sql.NullString{String: buildErr.Error(), Valid: true}
	}
	_, err := r.client.DB.ExecContext(ctx, `
		UPDATE build_runs
		SET finished_at = $2, status = $3, docs_indexed = $4, blocks_built = $5,
		    vocabulary_size = $6, error_message = $7
		WHERE run_id = $1
	`, runID, time.Now().UTC(), status, docsIndexed, blocksBuilt, vocabularySize, errMsg)
	if err != nil {
		return fmt.Errorf("recording build run finish: %w", err)
	}
	return nil
}

// Recent returns the most recent build runs, newest first.
func (r *BuildRegistry) Recent(ctx context.Context, limit int) ([]BuildRun, error) {
	rows, err := r.client.DB.QueryContext(ctx, `
		SELECT run_id, corpus_path, started_at, finished_at, status,
		       docs_indexed, blocks_built, vocabulary_size, error_message
		FROM build_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying build runs: %w", err)
	}
	defer rows.Close()

	var runs []BuildRun
	for rows.Next() {
		var run BuildRun
		if err := rows.Scan(&run.RunID, &run.CorpusPath, &run.StartedAt, &run.FinishedAt,
			&run.Status, &run.DocsIndexed, &run.BlocksBuilt, &run.VocabularySize, &run.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scanning build run row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
