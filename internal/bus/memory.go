package bus

import (
	"context"
	"path"
	"sync"
	"time"
)

type memoryEntry struct {
	body      string
	expiresAt time.Time
}

// MemoryBus is the in-process fallback used when no Redis is configured,
// and the implementation the tests run against. Expiry is lazy: entries
// past their TTL are dropped on the next scan or fetch that sees them.
type MemoryBus struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemory() *MemoryBus {
	return &MemoryBus{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (b *MemoryBus) Publish(_ context.Context, key, body string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = memoryEntry{body: body, expiresAt: b.now().Add(ttl)}
	return nil
}

func (b *MemoryBus) Scan(_ context.Context, pattern string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	var keys []string
	for key, entry := range b.entries {
		if now.After(entry.expiresAt) {
			delete(b.entries, key)
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (b *MemoryBus) Fetch(_ context.Context, key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok {
		return "", false, nil
	}
	if b.now().After(entry.expiresAt) {
		delete(b.entries, key)
		return "", false, nil
	}
	return entry.body, true, nil
}

func (b *MemoryBus) Ack(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

func (b *MemoryBus) Close() error {
	return nil
}
