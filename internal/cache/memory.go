package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is the single-process stand-in for RedisCache.
type MemoryCache struct {
	mu      sync.Mutex
	locks   map[string]time.Time
	records map[string]memoryRecord
	now     func() time.Time
}

type memoryRecord struct {
	rec     IdempotencyRecord
	expires time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		locks:   make(map[string]time.Time),
		records: make(map[string]memoryRecord),
		now:     time.Now,
	}
}

func (c *MemoryCache) AcquireLock(_ context.Context, name string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if exp, ok := c.locks[name]; ok && now.Before(exp) {
		return false, nil
	}
	c.locks[name] = now.Add(ttl)
	return true, nil
}

func (c *MemoryCache) ReleaseLock(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locks, name)
	return nil
}

func (c *MemoryCache) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if r, ok := c.records[key]; ok && now.Before(r.expires) {
		return false, nil
	}
	c.records[key] = memoryRecord{rec: IdempotencyRecord{Status: StatusInFlight}, expires: now.Add(ttl)}
	return true, nil
}

func (c *MemoryCache) Complete(_ context.Context, key string, settlementID string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[key] = memoryRecord{rec: IdempotencyRecord{Status: StatusDone, SettlementID: settlementID}, expires: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Forget(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, key)
	return nil
}

func (c *MemoryCache) Lookup(_ context.Context, key string) (*IdempotencyRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[key]
	if !ok || !c.now().Before(r.expires) {
		return nil, nil
	}
	rec := r.rec
	return &rec, nil
}
