package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/investable/accessgate/internal/accessgate/store"
	"github.com/investable/accessgate/internal/accessgate/types"
)

// AccessRequestStore keeps ledger records in process memory.
// It is intended for use in tests and dev environments.
type AccessRequestStore struct {
	mu   sync.RWMutex
	data map[string]types.AccessRequest
}

func NewAccessRequestStore() *AccessRequestStore {
	return &AccessRequestStore{
		data: make(map[string]types.AccessRequest),
	}
}

func (s *AccessRequestStore) Create(_ context.Context, rec types.AccessRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[rec.ID]; ok {
		return fmt.Errorf("%w: %s", store.ErrDuplicateID, rec.ID)
	}
	s.data[rec.ID] = rec
	return nil
}

func (s *AccessRequestStore) Get(_ context.Context, id string) (types.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[id]
	if !ok {
		return types.AccessRequest{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *AccessRequestStore) List(_ context.Context) ([]types.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.AccessRequest, 0, len(s.data))
	for _, rec := range s.data {
		out = append(out, rec)
	}
	sortOldestFirst(out)
	return out, nil
}

func (s *AccessRequestStore) ListByRequester(_ context.Context, requesterID string) ([]types.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.AccessRequest, 0)
	for _, rec := range s.data {
		if rec.RequesterID == requesterID {
			out = append(out, rec)
		}
	}
	sortOldestFirst(out)
	return out, nil
}

func (s *AccessRequestStore) UpdateStatus(_ context.Context, id string, from, to types.Status) (types.AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[id]
	if !ok {
		return types.AccessRequest{}, store.ErrNotFound
	}
	if rec.Status != from {
		return rec, store.ErrStatusConflict
	}
	rec.Status = to
	s.data[id] = rec
	return rec, nil
}

func (s *AccessRequestStore) DeleteAll(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.data))
	s.data = make(map[string]types.AccessRequest)
	return n, nil
}

func sortOldestFirst(recs []types.AccessRequest) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
}
