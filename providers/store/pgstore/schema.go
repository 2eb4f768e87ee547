package pgstore

import (
	"context"
	"fmt"
)

// createRunsTableSQL stores one row per run. The full record is kept as
// JSONB; the scalar columns exist for listing and filtering.
const createRunsTableSQL = `CREATE TABLE IF NOT EXISTS %s (
    id            TEXT PRIMARY KEY,
    seq           BIGSERIAL NOT NULL,
    status        TEXT NOT NULL,
    question      TEXT NOT NULL DEFAULT '',
    final_node_id TEXT NOT NULL DEFAULT '',
    started_at    TIMESTAMPTZ NOT NULL,
    finished_at   TIMESTAMPTZ NOT NULL,
    record        JSONB NOT NULL
)`

const createStartedIndexSQL = `CREATE INDEX IF NOT EXISTS idx_%s_started
    ON %s (started_at DESC, seq DESC)`

// EnsureSchema creates the runs table and its index if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf(createRunsTableSQL, s.tableName)); err != nil {
		return fmt.Errorf("pgstore: create table: %w", err)
	}
	if _, err := s.db.Exec(ctx, fmt.Sprintf(createStartedIndexSQL, s.indexSuffix, s.tableName)); err != nil {
		return fmt.Errorf("pgstore: create started index: %w", err)
	}
	return nil
}
