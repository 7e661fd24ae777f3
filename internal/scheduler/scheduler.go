// Package scheduler decides when a mounted view revalidates its cached
// access status against the ledger.
//
// A view resolves from a fresh cache entry without fetching. Otherwise it
// fetches, and stays unresolved until the fetch lands. Regaining focus
// forces a fetch. While the last known status is pending the view polls on
// a one-shot timer that is re-armed after every pending observation.
// Non-gated principals never fetch or poll.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/investable/accessgate/internal/accessgate/types"
	"github.com/investable/accessgate/internal/statuscache"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultFetchTimeout = 10 * time.Second
)

// Reader is the read side of the ledger the scheduler needs.
type Reader interface {
	ListByRequester(ctx context.Context, requesterID string) ([]types.AccessRequest, error)
}

type Config struct {
	// PollInterval is the delay between fetches while a request is
	// pending. Defaults to 30s.
	PollInterval time.Duration

	// FetchTimeout bounds every ledger call. Defaults to 10s.
	FetchTimeout time.Duration

	Clock clockwork.Clock
}

type Scheduler struct {
	cache        *statuscache.Cache
	reader       Reader
	clock        clockwork.Clock
	pollInterval time.Duration
	fetchTimeout time.Duration
	logger       *zap.Logger

	inflight sync.WaitGroup
}

func New(cache *statuscache.Cache, reader Reader, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cache:        cache,
		reader:       reader,
		clock:        cfg.Clock,
		pollInterval: cfg.PollInterval,
		fetchTimeout: cfg.FetchTimeout,
		logger:       logger,
	}
}

// Wait blocks until every fetch started so far has finished.
func (s *Scheduler) Wait() {
	s.inflight.Wait()
}

// Fetch reads the ledger once and derives the pair's status. A requester
// with no request for the resource yields StatusUnknown. The result is not
// cached.
func (s *Scheduler) Fetch(ctx context.Context, requesterID, resourceID string) (types.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	recs, err := s.reader.ListByRequester(ctx, types.NormalizeIdentity(requesterID))
	if err != nil {
		return types.StatusUnknown, err
	}
	latest, ok := types.LatestFor(recs, resourceID)
	if !ok {
		return types.StatusUnknown, nil
	}
	return latest.Status, nil
}
