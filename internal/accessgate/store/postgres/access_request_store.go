package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/investable/accessgate/internal/accessgate/store"
	"github.com/investable/accessgate/internal/accessgate/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS access_requests (
	id             TEXT PRIMARY KEY,
	resource_id    TEXT NOT NULL,
	resource_name  TEXT NOT NULL,
	requester_id   TEXT NOT NULL,
	requester_name TEXT NOT NULL,
	status         TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'denied')),
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_access_requests_requester
	ON access_requests (requester_id, created_at);
`

const selectColumns = `
	SELECT id, resource_id, resource_name, requester_id, requester_name, status, created_at
	FROM access_requests`

type AccessRequestStore struct {
	pool *pgxpool.Pool
}

func NewAccessRequestStore(pool *pgxpool.Pool) *AccessRequestStore {
	return &AccessRequestStore{pool: pool}
}

// EnsureSchema creates the ledger table when it is missing.
func (s *AccessRequestStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *AccessRequestStore) Create(ctx context.Context, rec types.AccessRequest) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO access_requests (id, resource_id, resource_name, requester_id, requester_name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, rec.ID, rec.ResourceID, rec.ResourceName, rec.RequesterID, rec.RequesterName, string(rec.Status), rec.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", store.ErrDuplicateID, rec.ID)
		}
		return fmt.Errorf("create access request: %w", err)
	}
	return nil
}

func (s *AccessRequestStore) Get(ctx context.Context, id string) (types.AccessRequest, error) {
	rec, err := scanRequest(s.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.AccessRequest{}, store.ErrNotFound
	}
	if err != nil {
		return types.AccessRequest{}, fmt.Errorf("get access request: %w", err)
	}
	return rec, nil
}

func (s *AccessRequestStore) List(ctx context.Context) ([]types.AccessRequest, error) {
	rows, err := s.pool.Query(ctx, selectColumns+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list access requests: %w", err)
	}
	return collect(rows)
}

func (s *AccessRequestStore) ListByRequester(ctx context.Context, requesterID string) ([]types.AccessRequest, error) {
	rows, err := s.pool.Query(ctx, selectColumns+` WHERE requester_id = $1 ORDER BY created_at, id`, requesterID)
	if err != nil {
		return nil, fmt.Errorf("list access requests by requester: %w", err)
	}
	return collect(rows)
}

func (s *AccessRequestStore) UpdateStatus(ctx context.Context, id string, from, to types.Status) (types.AccessRequest, error) {
	rec, err := scanRequest(s.pool.QueryRow(ctx, `
		UPDATE access_requests
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING id, resource_id, resource_name, requester_id, requester_name, status, created_at
	`, id, string(from), string(to)))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return types.AccessRequest{}, fmt.Errorf("update access request status: %w", err)
	}

	// No row matched: either the id is unknown or the status moved on.
	cur, getErr := s.Get(ctx, id)
	if getErr != nil {
		return types.AccessRequest{}, getErr
	}
	return cur, store.ErrStatusConflict
}

func (s *AccessRequestStore) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM access_requests`)
	if err != nil {
		return 0, fmt.Errorf("delete access requests: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRequest(row pgx.Row) (types.AccessRequest, error) {
	var (
		rec    types.AccessRequest
		status string
	)
	if err := row.Scan(&rec.ID, &rec.ResourceID, &rec.ResourceName, &rec.RequesterID, &rec.RequesterName, &status, &rec.CreatedAt); err != nil {
		return types.AccessRequest{}, err
	}
	rec.Status = types.Status(status)
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func collect(rows pgx.Rows) ([]types.AccessRequest, error) {
	defer rows.Close()

	items := make([]types.AccessRequest, 0)
	for rows.Next() {
		rec, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
