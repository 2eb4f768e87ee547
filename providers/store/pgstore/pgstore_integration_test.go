//go:build integration

package pgstore

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/leofalp/railgraph/providers/store"
)

var testPool *pgxpool.Pool

// TestMain starts one PostgreSQL container for the package.
func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("railgraph_test"),
		postgres.WithUsername("railgraph"),
		postgres.WithPassword("railgraph"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Fatalf("pgstore: failed to start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("pgstore: failed to get connection string: %v", err)
	}

	testPool, err = pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("pgstore: failed to create pool: %v", err)
	}
	if err := New(testPool).EnsureSchema(ctx); err != nil {
		log.Fatalf("pgstore: failed to create schema: %v", err)
	}

	code := m.Run()

	testPool.Close()
	if err := testcontainers.TerminateContainer(pgContainer); err != nil {
		log.Printf("pgstore: failed to terminate container: %v", err)
	}
	os.Exit(code)
}

// TestPgStore_RoundTrip saves, lists, and reloads runs against a real server.
func TestPgStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(testPool)
	base := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	for i, id := range []string{"it-old", "it-new"} {
		record := store.RunRecord{
			ID:          id,
			Status:      "completed",
			FinalAnswer: "answer " + id,
			Nodes:       []store.NodeRecord{{NodeID: "a", Status: "done"}},
			StartedAt:   base.Add(time.Duration(i) * time.Hour),
		}
		if err := s.SaveRun(ctx, record); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	if err := s.SaveRun(ctx, store.RunRecord{ID: "it-old"}); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	ids, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) < 2 || ids[0] != "it-new" {
		t.Errorf("expected newest first, got %v", ids)
	}

	loaded, err := s.LoadRun(ctx, "it-old")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.FinalAnswer != "answer it-old" || !loaded.StartedAt.Equal(base) {
		t.Errorf("unexpected record %+v", loaded)
	}
}
