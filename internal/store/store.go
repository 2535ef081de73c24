// File: internal/store/store.go

// Package store persists run and step history to PostgreSQL. Persistence is
// optional and best effort: the orchestration loop treats every error from
// this package as log-and-continue.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/quantum-agi/sdk-go/api/schemas"
	"github.com/quantum-agi/sdk-go/internal/agent"
)

// DBPool abstracts pgxpool.Pool so tests can substitute a mock connection.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store records agent runs and their steps.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ agent.Recorder = (*Store)(nil)

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Connect opens a pgx pool against the given URL and wraps it in a Store.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	st, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return st, nil
}

// RecordRun upserts the run summary. The run row is written once at terminal
// status, after all of its steps.
func (s *Store) RecordRun(ctx context.Context, run agent.RunRecord) error {
	const sql = `
        INSERT INTO agent_runs (id, task, success, message, steps_taken, duration_ms, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO UPDATE SET
            success = EXCLUDED.success,
            message = EXCLUDED.message,
            steps_taken = EXCLUDED.steps_taken,
            duration_ms = EXCLUDED.duration_ms,
            finished_at = EXCLUDED.finished_at`

	_, err := s.pool.Exec(ctx, sql,
		run.ID, run.Task, run.Success, run.Message, run.StepsTaken, run.DurationMS, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to persist run %s: %w", run.ID, err)
	}
	return nil
}

// RecordStep appends one step record for a run. The action document is stored
// as JSONB so later analysis can query into it.
func (s *Store) RecordStep(ctx context.Context, runID string, rec schemas.StepRecord) error {
	actionDoc, err := json.Marshal(rec.Action)
	if err != nil {
		return fmt.Errorf("failed to encode action for step %d: %w", rec.Step, err)
	}

	const sql = `
        INSERT INTO agent_steps (run_id, step, action, status, error, executed_at)
        VALUES ($1, $2, $3, $4, $5, $6)`

	at := rec.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, sql,
		runID, rec.Step, actionDoc, rec.Status, rec.Error, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to persist step %d of run %s: %w", rec.Step, runID, err)
	}
	return nil
}

// RunSteps loads the step history for a run in execution order.
func (s *Store) RunSteps(ctx context.Context, runID string) ([]schemas.StepRecord, error) {
	const sql = `
        SELECT step, action, status, error, executed_at
        FROM agent_steps
        WHERE run_id = $1
        ORDER BY step ASC`

	rows, err := s.pool.Query(ctx, sql, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []schemas.StepRecord
	for rows.Next() {
		var rec schemas.StepRecord
		var actionDoc []byte
		if err := rows.Scan(&rec.Step, &actionDoc, &rec.Status, &rec.Error, &rec.At); err != nil {
			return nil, fmt.Errorf("failed to scan step row: %w", err)
		}
		if err := json.Unmarshal(actionDoc, &rec.Action); err != nil {
			return nil, fmt.Errorf("failed to decode action for step %d: %w", rec.Step, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read step rows: %w", err)
	}
	return out, nil
}

// EnsureSchema creates the run/step tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const sql = `
        CREATE TABLE IF NOT EXISTS agent_runs (
            id          TEXT PRIMARY KEY,
            task        TEXT NOT NULL,
            success     BOOLEAN NOT NULL,
            message     TEXT NOT NULL DEFAULT '',
            steps_taken INTEGER NOT NULL,
            duration_ms BIGINT NOT NULL,
            finished_at TIMESTAMPTZ NOT NULL
        );
        CREATE TABLE IF NOT EXISTS agent_steps (
            run_id      TEXT NOT NULL,
            step        INTEGER NOT NULL,
            action      JSONB NOT NULL,
            status      TEXT NOT NULL,
            error       TEXT NOT NULL DEFAULT '',
            executed_at TIMESTAMPTZ NOT NULL
        );
        CREATE INDEX IF NOT EXISTS agent_steps_run_idx ON agent_steps (run_id, step);`

	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
