package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reseda/meshd/internal/meshnode"
)

// PostgresStore is the pgxpool-backed Store implementation. Every operation
// runs inside its own transaction: Begin, Exec, Commit, with Rollback on any
// failure so a partial write is never observable (spec.md §4.3).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already-connected pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const insertServerSQL = `
INSERT INTO servers (id, location, country, hostname, flag)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	location = EXCLUDED.location,
	country  = EXCLUDED.country,
	hostname = EXCLUDED.hostname,
	flag     = EXCLUDED.flag
`

// InsertServer implements Store.
func (s *PostgresStore) InsertServer(ctx context.Context, n meshnode.Node) error {
	row := deriveRow(n)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, insertServerSQL, row.ID, row.Location, row.Country, row.Hostname, row.Flag); err != nil {
		return fmt.Errorf("inserting server %s: %w", row.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing insert transaction: %w", err)
	}
	return nil
}

const deleteServerSQL = `DELETE FROM servers WHERE id = $1`

// DeleteServer implements Store.
func (s *PostgresStore) DeleteServer(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, deleteServerSQL, id); err != nil {
		return fmt.Errorf("deleting server %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing delete transaction: %w", err)
	}
	return nil
}
