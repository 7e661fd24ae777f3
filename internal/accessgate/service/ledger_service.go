package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/investable/accessgate/internal/accessgate/lifecycle"
	"github.com/investable/accessgate/internal/accessgate/store"
	"github.com/investable/accessgate/internal/accessgate/types"
	"github.com/investable/accessgate/internal/metrics"
)

var (
	ErrInvalidID            = errors.New("id is required")
	ErrInvalidResourceID    = errors.New("resourceId is required")
	ErrInvalidResourceName  = errors.New("resourceName is required")
	ErrInvalidRequesterID   = errors.New("requesterId must be an email address")
	ErrInvalidRequesterName = errors.New("requesterName is required")
)

// LedgerService is the Request Ledger: it validates new requests, assigns
// ids, and applies approver decisions through the lifecycle rules.
type LedgerService struct {
	store   store.AccessRequestStore
	clock   clockwork.Clock
	logger  *zap.Logger
	metrics *metrics.Ledger
}

type Option func(*LedgerService)

func WithClock(c clockwork.Clock) Option {
	return func(s *LedgerService) { s.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *LedgerService) { s.logger = l }
}

func WithMetrics(m *metrics.Ledger) Option {
	return func(s *LedgerService) { s.metrics = m }
}

func NewLedgerService(st store.AccessRequestStore, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:  st,
		clock:  clockwork.NewRealClock(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LedgerService) Create(ctx context.Context, req types.CreateAccessRequest) (types.AccessRequest, error) {
	resourceID := strings.TrimSpace(req.ResourceID)
	resourceName := strings.TrimSpace(req.ResourceName)
	requesterName := strings.TrimSpace(req.RequesterName)

	if resourceID == "" {
		return types.AccessRequest{}, ErrInvalidResourceID
	}
	if resourceName == "" {
		return types.AccessRequest{}, ErrInvalidResourceName
	}
	requesterID, err := normalizeRequester(req.RequesterID)
	if err != nil {
		return types.AccessRequest{}, err
	}
	if requesterName == "" {
		return types.AccessRequest{}, ErrInvalidRequesterName
	}

	rec := types.AccessRequest{
		ID:            uuid.NewString(),
		ResourceID:    resourceID,
		ResourceName:  resourceName,
		RequesterID:   requesterID,
		RequesterName: requesterName,
		Status:        lifecycle.Initial(),
		// Stores keep milliseconds; the response must match later reads.
		CreatedAt: s.clock.Now().UTC().Truncate(time.Millisecond),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return types.AccessRequest{}, fmt.Errorf("create access request: %w", err)
	}

	if s.metrics != nil {
		s.metrics.Created.Inc()
	}
	s.logger.Info("access request created",
		zap.String("id", rec.ID),
		zap.String("requester_id", rec.RequesterID),
		zap.String("resource_id", rec.ResourceID),
	)
	return rec, nil
}

func (s *LedgerService) List(ctx context.Context) ([]types.AccessRequest, error) {
	return s.store.List(ctx)
}

// ListByRequester returns every record of the requester, oldest first. An
// unknown requester yields an empty list.
func (s *LedgerService) ListByRequester(ctx context.Context, requesterID string) ([]types.AccessRequest, error) {
	id := types.NormalizeIdentity(requesterID)
	if id == "" {
		return nil, ErrInvalidRequesterID
	}
	return s.store.ListByRequester(ctx, id)
}

// UpdateStatus applies an approver decision. A record that already left
// pending yields lifecycle.ErrInvalidTransition and is not modified.
func (s *LedgerService) UpdateStatus(ctx context.Context, id string, target types.Status) (types.AccessRequest, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return types.AccessRequest{}, ErrInvalidID
	}

	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return types.AccessRequest{}, err
	}
	if err := lifecycle.Transition(cur.Status, target); err != nil {
		s.observeTransition(target, "rejected")
		return cur, err
	}

	rec, err := s.store.UpdateStatus(ctx, id, cur.Status, target)
	if errors.Is(err, store.ErrStatusConflict) {
		// Another decision landed between the read and the write.
		s.observeTransition(target, "rejected")
		return rec, fmt.Errorf("%w: %s is already %s", lifecycle.ErrInvalidTransition, id, rec.Status)
	}
	if err != nil {
		return types.AccessRequest{}, err
	}

	s.observeTransition(target, "applied")
	s.logger.Info("access request decided",
		zap.String("id", rec.ID),
		zap.String("status", string(rec.Status)),
	)
	return rec, nil
}

// Clear deletes every record and reports how many were removed.
func (s *LedgerService) Clear(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear ledger: %w", err)
	}
	if s.metrics != nil {
		s.metrics.Cleared.Add(float64(n))
	}
	s.logger.Warn("ledger cleared", zap.Int64("deleted", n))
	return n, nil
}

func (s *LedgerService) observeTransition(target types.Status, result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.Transitions.WithLabelValues(string(target), result).Inc()
}

func normalizeRequester(raw string) (string, error) {
	id := types.NormalizeIdentity(raw)
	if id == "" {
		return "", ErrInvalidRequesterID
	}
	addr, err := mail.ParseAddress(id)
	if err != nil || addr.Address != id {
		return "", ErrInvalidRequesterID
	}
	return id, nil
}
