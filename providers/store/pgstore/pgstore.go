package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leofalp/railgraph/providers/store"
)

const defaultTableName = "railgraph_runs"

// Querier is the subset of pgx used here. *pgxpool.Pool, *pgx.Conn, and
// pgx.Tx all satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a PostgreSQL-backed store.RunStore.
type Store struct {
	db          Querier
	tableName   string
	indexSuffix string
}

var _ store.RunStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithTableName overrides "railgraph_runs". The name is sanitized with
// pgx.Identifier since it is interpolated into queries.
func WithTableName(name string) Option {
	return func(s *Store) {
		s.tableName = pgx.Identifier{name}.Sanitize()
		s.indexSuffix = strings.Trim(s.tableName, `"`)
	}
}

func New(db Querier, opts ...Option) *Store {
	s := &Store{db: db, tableName: defaultTableName, indexSuffix: defaultTableName}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) SaveRun(ctx context.Context, record store.RunRecord) error {
	data, err := store.Encode(record)
	if err != nil {
		return fmt.Errorf("pgstore: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, status, question, final_node_id, started_at, finished_at, record)
		VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`, s.tableName)
	tag, err := s.db.Exec(ctx, query,
		record.ID, record.Status, record.Question, record.FinalNodeID,
		record.StartedAt, record.FinishedAt, data)
	if err != nil {
		return fmt.Errorf("pgstore: save run %s: %w", record.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pgstore: %w: %s", store.ErrAlreadyExists, record.ID)
	}
	return nil
}

func (s *Store) LoadRun(ctx context.Context, runID string) (store.RunRecord, error) {
	query := fmt.Sprintf(`SELECT record FROM %s WHERE id = $1`, s.tableName)

	var data []byte
	if err := s.db.QueryRow(ctx, query, runID).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.RunRecord{}, fmt.Errorf("pgstore: %w: %s", store.ErrNotFound, runID)
		}
		return store.RunRecord{}, fmt.Errorf("pgstore: load run %s: %w", runID, err)
	}
	record, err := store.Decode(data)
	if err != nil {
		return store.RunRecord{}, fmt.Errorf("pgstore: %w", err)
	}
	return record, nil
}

func (s *Store) ListRuns(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT id FROM %s ORDER BY started_at DESC, seq DESC`, s.tableName)

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list runs: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pgstore: scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: iterate runs: %w", err)
	}
	return ids, nil
}
