package store

import (
	"context"
	"errors"

	"github.com/investable/accessgate/internal/accessgate/types"
)

var (
	ErrNotFound = errors.New("access request not found")

	// ErrDuplicateID is returned by Create when the id is already taken.
	ErrDuplicateID = errors.New("access request id already exists")

	// ErrStatusConflict is returned by UpdateStatus when the stored status no
	// longer equals the expected one.
	ErrStatusConflict = errors.New("access request status changed")
)

// AccessRequestStore is the durable record keeper behind the ledger.
// Records are listed oldest first.
type AccessRequestStore interface {
	Create(ctx context.Context, rec types.AccessRequest) error
	Get(ctx context.Context, id string) (types.AccessRequest, error)
	List(ctx context.Context) ([]types.AccessRequest, error)
	ListByRequester(ctx context.Context, requesterID string) ([]types.AccessRequest, error)

	// UpdateStatus is a compare-and-set: it writes to only while the stored
	// status equals from, and returns the updated record.
	UpdateStatus(ctx context.Context, id string, from, to types.Status) (types.AccessRequest, error)

	DeleteAll(ctx context.Context) (int64, error)
}
