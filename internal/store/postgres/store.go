package postgres

import (
	"context"
	"errors"
	"fmt"

	"qms/internal/models"
	"qms/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS system_state (
		namespace  TEXT PRIMARY KEY,
		payload    TEXT NOT NULL,
		revision   BIGINT NOT NULL DEFAULT 1,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// Store keeps the SystemState blob in a single row keyed by namespace.
// The payload is stored as text so the committed encoding is returned
// byte for byte.
type Store struct {
	pool *pgxpool.Pool
	key  string
}

type Options struct {
	Key string
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	key := options.Key
	if key == "" {
		key = store.DefaultStateKey
	}
	return &Store{pool: pool, key: key}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return err
}

func (s *Store) Load(ctx context.Context) (models.SystemState, bool, error) {
	var payload string
	row := s.pool.QueryRow(ctx, `
		SELECT payload FROM system_state WHERE namespace = $1
	`, s.key)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.SystemState{}, false, nil
		}
		return models.SystemState{}, false, err
	}
	state, err := store.DecodeState([]byte(payload))
	if err != nil {
		return models.SystemState{}, false, fmt.Errorf("decode state %s: %w", s.key, err)
	}
	return state, true, nil
}

func (s *Store) Commit(ctx context.Context, state models.SystemState) error {
	blob, err := store.EncodeState(state)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO system_state (namespace, payload, revision, updated_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (namespace)
		DO UPDATE SET payload = EXCLUDED.payload,
			revision = system_state.revision + 1,
			updated_at = now()
	`, s.key, string(blob))
	return err
}

// Revision reports how many commits the namespace has seen, 0 when none.
func (s *Store) Revision(ctx context.Context) (int64, error) {
	var revision int64
	row := s.pool.QueryRow(ctx, `
		SELECT revision FROM system_state WHERE namespace = $1
	`, s.key)
	if err := row.Scan(&revision); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return revision, nil
}
