package postgres

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"qms/internal/models"
	"qms/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestLoadMissingState(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	_, found, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if found {
		t.Fatalf("expected no state in a fresh schema")
	}
}

func TestCommitRoundTrip(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	created := time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)
	state := models.NewSystemState(models.DefaultCatalog(), []models.Token{
		{ID: uuid.NewString(), TicketNumber: "D-001", ServiceID: "s1", Status: models.StatusWaiting, CustomerName: "Ann", CreatedAt: created},
	})
	if err := st.Commit(ctx, state); err != nil {
		t.Fatalf("commit: %v", err)
	}

	loaded, found, err := st.Load(ctx)
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	want, _ := store.EncodeState(state)
	got, _ := store.EncodeState(loaded)
	if !bytes.Equal(want, got) {
		t.Fatalf("round trip differs:\n%s\n%s", want, got)
	}

	if err := st.Commit(ctx, loaded); err != nil {
		t.Fatalf("recommit: %v", err)
	}
	revision, err := st.Revision(ctx)
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	if revision != 2 {
		t.Fatalf("expected revision 2, got %d", revision)
	}
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := execOnce(ctx, dsn, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	st := NewStore(pool, Options{Key: "test"})
	if err := st.EnsureSchema(ctx); err != nil {
		pool.Close()
		t.Fatalf("ensure schema: %v", err)
	}
	cleanup := func() {
		pool.Close()
		_ = execOnce(context.Background(), dsn, "DROP SCHEMA "+schema+" CASCADE")
	}
	return st, cleanup
}

func execOnce(ctx context.Context, dsn, statement string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, statement)
	return err
}
