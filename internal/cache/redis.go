package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Domenick1991/skymiles/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes a lock only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisCache holds short-lived coordination state: job locks and idempotency records.
type RedisCache struct {
	client *redis.Client

	mu     sync.Mutex
	tokens map[string]string
}

func NewRedisCache(cfg config.RedisConfig) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		tokens: make(map[string]string),
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// AcquireLock takes name for ttl under a fresh token held by this process.
func (c *RedisCache) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, lockKey(name), token, ttl).Result()
	if err != nil || !ok {
		return false, err
	}
	c.mu.Lock()
	c.tokens[name] = token
	c.mu.Unlock()
	return true, nil
}

// ReleaseLock drops name if this process still owns it. A lock that expired and was taken
// by another holder is left alone.
func (c *RedisCache) ReleaseLock(ctx context.Context, name string) error {
	c.mu.Lock()
	token, ok := c.tokens[name]
	delete(c.tokens, name)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	if err := releaseScript.Run(ctx, c.client, []string{lockKey(name)}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

// Claim records key as in flight. It returns false when the key was already claimed or completed.
func (c *RedisCache) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(IdempotencyRecord{Status: StatusInFlight})
	if err != nil {
		return false, err
	}
	return c.client.SetNX(ctx, idempotencyKey(key), payload, ttl).Result()
}

// Complete stores the outcome of a claimed key.
func (c *RedisCache) Complete(ctx context.Context, key string, settlementID string, ttl time.Duration) error {
	payload, err := json.Marshal(IdempotencyRecord{Status: StatusDone, SettlementID: settlementID})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, idempotencyKey(key), payload, ttl).Err()
}

// Forget drops a claim so the request can be retried.
func (c *RedisCache) Forget(ctx context.Context, key string) error {
	return c.client.Del(ctx, idempotencyKey(key)).Err()
}

// Lookup returns the record for key, or nil when none exists.
func (c *RedisCache) Lookup(ctx context.Context, key string) (*IdempotencyRecord, error) {
	data, err := c.client.Get(ctx, idempotencyKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var rec IdempotencyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &rec, nil
}

func lockKey(name string) string {
	return "lock:" + name
}

func idempotencyKey(key string) string {
	return "idem:" + key
}
