package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/investable/accessgate/internal/accessgate/store"
	"github.com/investable/accessgate/internal/accessgate/types"
	dbpkg "github.com/investable/accessgate/internal/db"
)

const selectColumns = `
SELECT id, resource_id, resource_name, requester_id, requester_name, status, created_at_ms
FROM access_requests`

type AccessRequestStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAccessRequestStore(db *sql.DB, writer *dbpkg.Worker) *AccessRequestStore {
	return &AccessRequestStore{db: db, writer: writer}
}

func (s *AccessRequestStore) Create(ctx context.Context, rec types.AccessRequest) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	createdMs := rec.CreatedAt.UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO access_requests(
  id, resource_id, resource_name, requester_id, requester_name,
  status, created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING;
`,
			rec.ID, rec.ResourceID, rec.ResourceName, rec.RequesterID, rec.RequesterName,
			string(rec.Status), createdMs, createdMs,
		)
		if err != nil {
			return fmt.Errorf("Create insert: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("Create rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", store.ErrDuplicateID, rec.ID)
		}
		return nil
	})
}

func (s *AccessRequestStore) Get(ctx context.Context, id string) (types.AccessRequest, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?;`, id)
	rec, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.AccessRequest{}, store.ErrNotFound
	}
	if err != nil {
		return types.AccessRequest{}, fmt.Errorf("Get: %w", err)
	}
	return rec, nil
}

func (s *AccessRequestStore) List(ctx context.Context) ([]types.AccessRequest, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY created_at_ms ASC, id ASC;`)
	if err != nil {
		return nil, fmt.Errorf("List query: %w", err)
	}
	return collect(rows)
}

func (s *AccessRequestStore) ListByRequester(ctx context.Context, requesterID string) ([]types.AccessRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE requester_id = ? ORDER BY created_at_ms ASC, id ASC;`, requesterID)
	if err != nil {
		return nil, fmt.Errorf("ListByRequester query: %w", err)
	}
	return collect(rows)
}

func (s *AccessRequestStore) UpdateStatus(ctx context.Context, id string, from, to types.Status) (types.AccessRequest, error) {
	var out types.AccessRequest
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rec, err := scanRequest(tx.QueryRowContext(ctx, selectColumns+` WHERE id = ?;`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("UpdateStatus select: %w", err)
		}
		if rec.Status != from {
			out = rec
			return store.ErrStatusConflict
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE access_requests SET status = ?, updated_at_ms = ? WHERE id = ?;
`, string(to), time.Now().UTC().UnixMilli(), id); err != nil {
			return fmt.Errorf("UpdateStatus update: %w", err)
		}
		rec.Status = to
		out = rec
		return nil
	})
	return out, err
}

func (s *AccessRequestStore) DeleteAll(ctx context.Context) (int64, error) {
	var n int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM access_requests;`)
		if err != nil {
			return fmt.Errorf("DeleteAll: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (types.AccessRequest, error) {
	var (
		rec       types.AccessRequest
		status    string
		createdMs int64
	)
	if err := row.Scan(
		&rec.ID, &rec.ResourceID, &rec.ResourceName,
		&rec.RequesterID, &rec.RequesterName, &status, &createdMs,
	); err != nil {
		return types.AccessRequest{}, err
	}
	rec.Status = types.Status(status)
	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	return rec, nil
}

func collect(rows *sql.Rows) ([]types.AccessRequest, error) {
	defer rows.Close()

	out := make([]types.AccessRequest, 0)
	for rows.Next() {
		rec, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
