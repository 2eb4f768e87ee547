// Package sqlitestore persists run records in an embedded SQLite file using
// the pure-Go modernc.org/sqlite driver.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/leofalp/railgraph/providers/store"
)

var schemaSQL = []string{
	`CREATE TABLE IF NOT EXISTS runs (
    id            TEXT PRIMARY KEY,
    status        TEXT NOT NULL,
    question      TEXT NOT NULL DEFAULT '',
    final_node_id TEXT NOT NULL DEFAULT '',
    started_at    TEXT NOT NULL,
    finished_at   TEXT NOT NULL,
    record        TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs (started_at)`,
	`CREATE TABLE IF NOT EXISTS run_nodes (
    run_id  TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
    node_id TEXT NOT NULL,
    status  TEXT NOT NULL,
    PRIMARY KEY (run_id, node_id)
)`,
}

// Store is a SQLite-backed store.RunStore.
type Store struct {
	conn *sql.DB
	Path string
}

var _ store.RunStore = (*Store)(nil)

// Open opens (creating if needed) the database at path with WAL mode and
// foreign keys enabled, and creates the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	// One writer keeps WAL from returning SQLITE_BUSY under concurrent saves.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlitestore: %s: %w", pragma, err)
		}
	}
	for _, statement := range schemaSQL {
		if _, err := conn.ExecContext(ctx, statement); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlitestore: create schema: %w", err)
		}
	}
	return &Store{conn: conn, Path: path}, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) SaveRun(ctx context.Context, record store.RunRecord) error {
	data, err := store.Encode(record)
	if err != nil {
		return fmt.Errorf("sqlitestore: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	result, err := tx.ExecContext(ctx, `INSERT INTO runs (id, status, question, final_node_id, started_at, finished_at, record)
		VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		record.ID, record.Status, record.Question, record.FinalNodeID,
		formatTime(record.StartedAt), formatTime(record.FinishedAt), string(data))
	if err != nil {
		return fmt.Errorf("sqlitestore: save run %s: %w", record.ID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("sqlitestore: %w: %s", store.ErrAlreadyExists, record.ID)
	}

	for _, node := range record.Nodes {
		if _, err := tx.ExecContext(ctx, `INSERT INTO run_nodes (run_id, node_id, status) VALUES (?, ?, ?)`,
			record.ID, node.NodeID, node.Status); err != nil {
			return fmt.Errorf("sqlitestore: save node %s/%s: %w", record.ID, node.NodeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitestore: commit: %w", err)
	}
	return nil
}

func (s *Store) LoadRun(ctx context.Context, runID string) (store.RunRecord, error) {
	var data string
	err := s.conn.QueryRowContext(ctx, `SELECT record FROM runs WHERE id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return store.RunRecord{}, fmt.Errorf("sqlitestore: %w: %s", store.ErrNotFound, runID)
	}
	if err != nil {
		return store.RunRecord{}, fmt.Errorf("sqlitestore: load run %s: %w", runID, err)
	}
	return store.Decode([]byte(data))
}

func (s *Store) ListRuns(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id FROM runs ORDER BY started_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list runs: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: iterate runs: %w", err)
	}
	return ids, nil
}

// NodeStatusCounts returns how many nodes ended in each status across all
// stored runs.
func (s *Store) NodeStatusCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT status, COUNT(*) FROM run_nodes GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: node status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// formatTime renders t so that lexical order matches time order.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}
