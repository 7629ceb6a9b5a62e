// Package postgres provides a Postgres sink for accepted leads.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool shared by the lead and run stores.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// LeadStore upserts accepted leads into Postgres. Rows are keyed by identity, so
// re-running over the same postings never creates duplicates.
type LeadStore struct {
	pool  execCloser
	table string
}

// Connect opens a pgx pool from cfg.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// NewLeadStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewLeadStoreWithPool(pool execCloser, table string) (*LeadStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &LeadStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "leads"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *LeadStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the lead table when it does not exist.
func (s *LeadStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	identity_key  TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL,
	source        TEXT NOT NULL,
	external_ref  TEXT NOT NULL,
	search_label  TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL DEFAULT '',
	company       TEXT NOT NULL DEFAULT '',
	location      TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	emails        TEXT[] NOT NULL,
	detail_url    TEXT NOT NULL DEFAULT '',
	discovered_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create lead table: %w", err)
	}
	return nil
}

// StoreLead inserts a lead row; an existing row with the same identity is left untouched.
func (s *LeadStore) StoreLead(ctx context.Context, runID string, lead crawler.Lead) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("lead store is not configured")
	}
	if len(lead.Emails) == 0 {
		return fmt.Errorf("lead %s has no emails", lead.Posting.ExternalRef)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	identity_key,
	run_id,
	source,
	external_ref,
	search_label,
	title,
	company,
	location,
	description,
	emails,
	detail_url,
	discovered_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
) ON CONFLICT (identity_key) DO NOTHING`, s.table)

	p := lead.Posting
	args := []any{
		lead.Key(),
		runID,
		p.SourceID,
		p.ExternalRef,
		p.SearchLabel,
		p.Title,
		p.Company,
		p.Location,
		p.Description,
		lead.Emails,
		p.DetailURL,
		lead.DiscoveredAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}
