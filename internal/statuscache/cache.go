// Package statuscache keeps the client's last observed status per
// (requester, resource) pair.
//
// An entry is fresh for a fixed window after it was observed. Stale entries
// read as absent and are deleted on that read. Keys are namespaced by the
// normalized requester identity and no accessor crosses namespaces, so one
// requester can never observe another's entries.
package statuscache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/investable/accessgate/internal/accessgate/types"
)

const DefaultFreshness = 5 * time.Minute

var (
	ErrNoRequester   = errors.New("requester identity is required")
	ErrInvalidStatus = errors.New("invalid cache status")
)

type Entry struct {
	Status     types.Status `json:"status"`
	ObservedAt time.Time    `json:"observedAt"`
}

// Backend stores entries. It does no freshness checks of its own.
type Backend interface {
	Load(ctx context.Context, namespace, resourceID string) (Entry, bool, error)
	Store(ctx context.Context, namespace, resourceID string, e Entry) error
	Delete(ctx context.Context, namespace, resourceID string) error
}

type Cache struct {
	backend   Backend
	clock     clockwork.Clock
	freshness time.Duration
	logger    *zap.Logger

	// mu serializes every access so the last completed Put wins and a lazy
	// delete cannot drop a concurrent Put.
	mu sync.Mutex
}

type Option func(*Cache)

func WithClock(c clockwork.Clock) Option {
	return func(cache *Cache) { cache.clock = c }
}

func WithFreshness(d time.Duration) Option {
	return func(cache *Cache) {
		if d > 0 {
			cache.freshness = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(cache *Cache) { cache.logger = l }
}

func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{
		backend:   backend,
		clock:     clockwork.NewRealClock(),
		freshness: DefaultFreshness,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) Freshness() time.Duration { return c.freshness }

// Namespace is the key prefix for a requester's entries.
func Namespace(requesterID string) (string, error) {
	ns := types.NormalizeIdentity(requesterID)
	if ns == "" {
		return "", ErrNoRequester
	}
	return ns, nil
}

// Get returns the fresh entry for the pair. Stale entries, backend read
// failures and an empty requester all read as absent.
func (c *Cache) Get(ctx context.Context, requesterID, resourceID string) (Entry, bool) {
	ns, err := Namespace(requesterID)
	if err != nil {
		return Entry{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok, err := c.backend.Load(ctx, ns, resourceID)
	if err != nil {
		c.logger.Warn("status cache read failed",
			zap.String("namespace", ns),
			zap.String("resource_id", resourceID),
			zap.Error(err),
		)
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}

	if c.clock.Since(e.ObservedAt) > c.freshness {
		if err := c.backend.Delete(ctx, ns, resourceID); err != nil {
			c.logger.Warn("status cache evict failed",
				zap.String("namespace", ns),
				zap.String("resource_id", resourceID),
				zap.Error(err),
			)
		}
		return Entry{}, false
	}
	return e, true
}

// Put replaces the pair's entry, stamped with the current time.
func (c *Cache) Put(ctx context.Context, requesterID, resourceID string, status types.Status) error {
	ns, err := Namespace(requesterID)
	if err != nil {
		return err
	}
	if _, ok := types.ParseStatus(string(status)); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := Entry{Status: status, ObservedAt: c.clock.Now().UTC()}
	if err := c.backend.Store(ctx, ns, resourceID, e); err != nil {
		return fmt.Errorf("status cache store: %w", err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, requesterID, resourceID string) error {
	ns, err := Namespace(requesterID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.backend.Delete(ctx, ns, resourceID); err != nil {
		return fmt.Errorf("status cache delete: %w", err)
	}
	return nil
}
