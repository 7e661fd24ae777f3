package statuscache

import (
	"context"
	"sync"
)

type memoryKey struct {
	namespace  string
	resourceID string
}

// MemoryBackend keeps entries for the life of the process.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[memoryKey]Entry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[memoryKey]Entry)}
}

func (b *MemoryBackend) Load(_ context.Context, namespace, resourceID string) (Entry, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.entries[memoryKey{namespace, resourceID}]
	return e, ok, nil
}

func (b *MemoryBackend) Store(_ context.Context, namespace, resourceID string, e Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[memoryKey{namespace, resourceID}] = e
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, namespace, resourceID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.entries, memoryKey{namespace, resourceID})
	return nil
}
