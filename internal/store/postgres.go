// Package store implements the versioned entity store contract on
// Postgres, plus an in-memory variant used by tests.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/XavierBriggs/Pythia/pkg/contracts"
	"github.com/XavierBriggs/Pythia/pkg/errkind"
)

// Postgres persists every entity kind in a single table with an
// optimistic version column. PutIfVersion compiles to one conditional
// statement, so each lifecycle transition is a single atomic write.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open connection pool
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the entity table if missing
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS entities (
			kind       TEXT        NOT NULL,
			id         TEXT        NOT NULL,
			version    BIGINT      NOT NULL,
			data       JSONB       NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (kind, id)
		)
	`
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return errkind.Wrap(errkind.Transient, "store.schema", err)
	}
	return nil
}

// Get returns the current record for an entity, or contracts.ErrNotFound
func (p *Postgres) Get(ctx context.Context, kind contracts.EntityKind, id string) (*contracts.Record, error) {
	query := `SELECT data, version FROM entities WHERE kind = $1 AND id = $2`

	var rec contracts.Record
	err := p.db.QueryRowContext(ctx, query, string(kind), id).Scan(&rec.Data, &rec.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "store.get", err)
	}
	return &rec, nil
}

// PutIfVersion writes the record only when the stored version matches.
// expectedVersion 0 creates the record and fails if it already exists.
func (p *Postgres) PutIfVersion(ctx context.Context, kind contracts.EntityKind, id string, expectedVersion int64, data []byte) (int64, error) {
	if expectedVersion == 0 {
		query := `
			INSERT INTO entities (kind, id, version, data)
			VALUES ($1, $2, 1, $3)
			ON CONFLICT (kind, id) DO NOTHING
		`
		result, err := p.db.ExecContext(ctx, query, string(kind), id, data)
		if err != nil {
			return 0, errkind.Wrap(errkind.Transient, "store.put", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return 0, errkind.Wrap(errkind.Transient, "store.put", err)
		}
		if rows == 0 {
			return 0, errkind.New(errkind.StateConflict, "store.put", "%s/%s already exists", kind, id)
		}
		return 1, nil
	}

	query := `
		UPDATE entities
		SET data = $4, version = version + 1, updated_at = NOW()
		WHERE kind = $1 AND id = $2 AND version = $3
		RETURNING version
	`
	var newVersion int64
	err := p.db.QueryRowContext(ctx, query, string(kind), id, expectedVersion, data).Scan(&newVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errkind.New(errkind.StateConflict, "store.put", "version mismatch on %s/%s (expected %d)", kind, id, expectedVersion)
	}
	if err != nil {
		return 0, errkind.Wrap(errkind.Transient, "store.put", err)
	}
	return newVersion, nil
}

// ListIDs enumerates every entity id of a kind, for batch passes that
// sweep the store rather than the feed
func (p *Postgres) ListIDs(ctx context.Context, kind contracts.EntityKind) ([]string, error) {
	query := `SELECT id FROM entities WHERE kind = $1 ORDER BY id`

	rows, err := p.db.QueryContext(ctx, query, string(kind))
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "store.list", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errkind.Wrap(errkind.Transient, "store.list", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Wrap(errkind.Transient, "store.list", fmt.Errorf("iterate ids: %w", err))
	}
	return ids, nil
}
