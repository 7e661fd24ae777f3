package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/investable/accessgate/internal/accessgate/types"
	"github.com/investable/accessgate/internal/statuscache"
)

var (
	ErrSubmissionNotAllowed = errors.New("access request not allowed in current state")
	ErrSubmissionFailed     = errors.New("access request submission failed")
)

// rollbackTimeout bounds the cleanup of an optimistic entry. The cleanup
// runs detached from the caller's context, which may be the reason the
// write failed.
const rollbackTimeout = 5 * time.Second

// Resolver reads the ledger status of a pair when the cache has no fresh
// entry. *scheduler.Scheduler implements it.
type Resolver interface {
	Fetch(ctx context.Context, requesterID, resourceID string) (types.Status, error)
}

// Creator is the write side of the ledger used for submissions.
type Creator interface {
	Create(ctx context.Context, req types.CreateAccessRequest) (types.AccessRequest, error)
}

// Submitter files access requests and seeds the status cache with an
// optimistic pending entry before the ledger confirms.
type Submitter struct {
	cache    *statuscache.Cache
	ledger   Creator
	resolver Resolver
	policy   Policy
	logger   *zap.Logger
}

// NewSubmitter builds a Submitter. With a nil resolver a cache miss is
// taken as "no request yet", so callers must resolve the status first.
func NewSubmitter(cache *statuscache.Cache, ledger Creator, resolver Resolver, policy Policy, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{cache: cache, ledger: ledger, resolver: resolver, policy: policy, logger: logger}
}

// Submit refuses when the current status already forbids a request. On a
// failed write the optimistic entry is removed so no false pending is left
// behind.
func (s *Submitter) Submit(ctx context.Context, req types.CreateAccessRequest) (types.AccessRequest, error) {
	requester := req.RequesterID
	resource := req.ResourceID

	status, err := s.currentStatus(ctx, requester, resource)
	if err != nil {
		return types.AccessRequest{}, fmt.Errorf("%w: status unresolved: %w", ErrSubmissionFailed, err)
	}
	if d := Evaluate(types.PrincipalGatedViewer, status, true, s.policy); !d.CanSubmit {
		return types.AccessRequest{}, fmt.Errorf("%w: status is %s", ErrSubmissionNotAllowed, status)
	}

	if err := s.cache.Put(ctx, requester, resource, types.StatusPending); err != nil {
		return types.AccessRequest{}, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	rec, err := s.ledger.Create(ctx, req)
	if err != nil {
		if invErr := s.rollback(ctx, requester, resource); invErr != nil {
			s.logger.Error("optimistic rollback failed",
				zap.String("requester_id", requester),
				zap.String("resource_id", resource),
				zap.Error(invErr),
			)
		}
		return types.AccessRequest{}, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	if err := s.cache.Put(ctx, requester, resource, rec.Status); err != nil {
		s.logger.Warn("status cache write failed after submission", zap.String("id", rec.ID), zap.Error(err))
	}
	s.logger.Info("access requested",
		zap.String("id", rec.ID),
		zap.String("requester_id", rec.RequesterID),
		zap.String("resource_id", rec.ResourceID),
	)
	return rec, nil
}

func (s *Submitter) currentStatus(ctx context.Context, requester, resource string) (types.Status, error) {
	if e, ok := s.cache.Get(ctx, requester, resource); ok {
		return e.Status, nil
	}
	if s.resolver == nil {
		return types.StatusUnknown, nil
	}

	status, err := s.resolver.Fetch(ctx, requester, resource)
	if err != nil {
		return "", err
	}
	if err := s.cache.Put(ctx, requester, resource, status); err != nil {
		s.logger.Warn("status cache write failed", zap.Error(err))
	}
	return status, nil
}

func (s *Submitter) rollback(ctx context.Context, requester, resource string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	return s.cache.Invalidate(ctx, requester, resource)
}
