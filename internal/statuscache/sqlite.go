package statuscache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/investable/accessgate/internal/accessgate/types"
	dbpkg "github.com/investable/accessgate/internal/db"
)

// SQLiteBackend persists entries in the local cache database so they
// survive a client restart.
type SQLiteBackend struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewSQLiteBackend(db *sql.DB, writer *dbpkg.Worker) *SQLiteBackend {
	return &SQLiteBackend{db: db, writer: writer}
}

func (b *SQLiteBackend) Load(ctx context.Context, namespace, resourceID string) (Entry, bool, error) {
	var (
		status     string
		observedMs int64
	)
	err := b.db.QueryRowContext(ctx, `
SELECT status, observed_at_ms FROM status_cache
WHERE namespace = ? AND resource_id = ?;
`, namespace, resourceID).Scan(&status, &observedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("load cache entry: %w", err)
	}
	return Entry{
		Status:     types.Status(status),
		ObservedAt: time.UnixMilli(observedMs).UTC(),
	}, true, nil
}

func (b *SQLiteBackend) Store(ctx context.Context, namespace, resourceID string, e Entry) error {
	return b.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO status_cache(namespace, resource_id, status, observed_at_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT(namespace, resource_id) DO UPDATE SET
  status = excluded.status,
  observed_at_ms = excluded.observed_at_ms;
`, namespace, resourceID, string(e.Status), e.ObservedAt.UTC().UnixMilli()); err != nil {
			return fmt.Errorf("store cache entry: %w", err)
		}
		return nil
	})
}

func (b *SQLiteBackend) Delete(ctx context.Context, namespace, resourceID string) error {
	return b.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
DELETE FROM status_cache WHERE namespace = ? AND resource_id = ?;
`, namespace, resourceID); err != nil {
			return fmt.Errorf("delete cache entry: %w", err)
		}
		return nil
	})
}
