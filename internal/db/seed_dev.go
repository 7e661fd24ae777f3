package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SeedRequest struct {
	ResourceID    string
	ResourceName  string
	RequesterID   string
	RequesterName string
	Status        string
}

type SeedDevOptions struct {
	// Requests replaces the built-in demo rows when non-empty.
	Requests []SeedRequest
}

var demoRequests = []SeedRequest{
	{ResourceID: "c-1", ResourceName: "Acme", RequesterID: "demo-investor@example.com", RequesterName: "Demo Investor", Status: "approved"},
	{ResourceID: "c-2", ResourceName: "Quantum Dynamics", RequesterID: "demo-investor@example.com", RequesterName: "Demo Investor", Status: "pending"},
}

// SeedDev inserts demo access requests into an empty ledger. A ledger that
// already holds rows is left untouched.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM access_requests;").Scan(&n); err != nil {
		return fmt.Errorf("seed count: %w", err)
	}
	if n > 0 {
		return nil
	}

	rows := opt.Requests
	if len(rows) == 0 {
		rows = demoRequests
	}

	now := time.Now().UTC().UnixMilli()
	for i, r := range rows {
		status := r.Status
		if status == "" {
			status = "pending"
		}
		createdMs := now + int64(i)
		if _, err := db.ExecContext(ctx, `
INSERT INTO access_requests(
  id, resource_id, resource_name, requester_id, requester_name,
  status, created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?);`,
			uuid.NewString(), r.ResourceID, r.ResourceName, r.RequesterID, r.RequesterName,
			status, createdMs, createdMs,
		); err != nil {
			return fmt.Errorf("seed request %s/%s: %w", r.RequesterID, r.ResourceID, err)
		}
	}

	return nil
}
