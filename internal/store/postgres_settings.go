package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otiai10/orderhook/internal/config"
)

const defaultSettingsTable = "orderhook_settings"

// rowQuerier is the part of pgxpool.Pool used for lookups
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSettings reads keys from a two-column (key, value) table
type PostgresSettings struct {
	pool  *pgxpool.Pool
	db    rowQuerier
	table string
}

var (
	_ config.Store = (*PostgresSettings)(nil)
	_ Store        = (*PostgresSettings)(nil)
)

// NewPostgresSettings connects to the database and checks it is reachable
func NewPostgresSettings(ctx context.Context, cfg config.PostgresConfig) (*PostgresSettings, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return &PostgresSettings{
		pool:  pool,
		db:    pool,
		table: tableName(cfg.Table),
	}, nil
}

func tableName(name string) string {
	if name == "" {
		name = defaultSettingsTable
	}
	return pgx.Identifier{name}.Sanitize()
}

// EnsureSchema creates the settings table if it does not exist
func (s *PostgresSettings) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (key TEXT PRIMARY KEY, value TEXT NOT NULL, updated_at TIMESTAMPTZ NOT NULL DEFAULT now())`,
		s.table))
	if err != nil {
		return fmt.Errorf("failed to create settings table: %w", err)
	}
	return nil
}

// Snapshot implements config.Store. The whole table is aggregated into one
// JSON object by a single statement, so all keys come from the same revision.
func (s *PostgresSettings) Snapshot(ctx context.Context) (map[string]string, error) {
	var raw string
	err := s.db.QueryRow(ctx, fmt.Sprintf(
		`SELECT COALESCE(json_object_agg(key, value), '{}'::json)::text FROM %s`, s.table)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings table %s: %w", s.table, err)
	}
	values := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("failed to decode settings table %s: %w", s.table, err)
	}
	return values, nil
}

func (s *PostgresSettings) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
