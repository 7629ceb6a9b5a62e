package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
)

// ErrRunNotFound is returned when a run row does not exist.
var ErrRunNotFound = errors.New("run not found")

type queryExecCloser interface {
	execCloser
	QueryRow(context.Context, string, ...any) pgx.Row
}

// RunRecord is one row of the run ledger.
type RunRecord struct {
	RunID      string
	Target     int
	State      crawler.RunState
	StartedAt  time.Time
	FinishedAt *time.Time
	Artifact   string
	Stats      crawler.Stats
}

// RunStore records run lifecycle rows next to the leads they produced.
type RunStore struct {
	pool  queryExecCloser
	table string
}

// NewRunStoreWithPool constructs a RunStore over an existing pool.
func NewRunStoreWithPool(pool queryExecCloser, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "lead_runs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RunStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the run table when it does not exist.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id      TEXT PRIMARY KEY,
	target      INTEGER NOT NULL,
	state       TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	artifact    TEXT NOT NULL DEFAULT '',
	stats       JSONB NOT NULL DEFAULT '{}'
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create run table: %w", err)
	}
	return nil
}

// StartRun inserts a running row, or resets an existing row back to running on resume.
func (s *RunStore) StartRun(ctx context.Context, runID string, target int, startedAt time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %s (run_id, target, state, started_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (run_id) DO UPDATE
SET state = EXCLUDED.state, target = EXCLUDED.target, finished_at = NULL`, s.table)
	if _, err := s.pool.Exec(ctx, query, runID, target, string(crawler.RunStateRunning), startedAt); err != nil {
		return fmt.Errorf("upsert run start: %w", err)
	}
	return nil
}

// FinishRun stores the terminal state, artifact and counters of a run.
func (s *RunStore) FinishRun(ctx context.Context, summary crawler.RunSummary) error {
	statsJSON, err := json.Marshal(summary.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	query := fmt.Sprintf(`
UPDATE %s
SET state = $1, finished_at = $2, artifact = $3, stats = $4
WHERE run_id = $5`, s.table)
	tag, err := s.pool.Exec(ctx, query, string(summary.State), summary.FinishedAt, summary.Artifact, statsJSON, summary.RunID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish run %s: %w", summary.RunID, ErrRunNotFound)
	}
	return nil
}

// GetRun loads one run row.
func (s *RunStore) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	query := fmt.Sprintf(`
SELECT run_id, target, state, started_at, finished_at, artifact, stats
FROM %s
WHERE run_id = $1`, s.table)
	var (
		rec       RunRecord
		state     string
		statsJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&rec.RunID,
		&rec.Target,
		&state,
		&rec.StartedAt,
		&rec.FinishedAt,
		&rec.Artifact,
		&statsJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RunRecord{}, ErrRunNotFound
		}
		return RunRecord{}, fmt.Errorf("get run: %w", err)
	}
	rec.State = crawler.RunState(state)
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &rec.Stats); err != nil {
			return RunRecord{}, fmt.Errorf("decode run stats: %w", err)
		}
	}
	return rec, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
