package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache holds recently read profiles. Only found rows are cached so a
// profile created after a miss is visible on the next read.
type Cache interface {
	Get(ctx context.Context, userID uuid.UUID) (Profile, bool, error)
	Set(ctx context.Context, profile Profile) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

type memoryEntry struct {
	profile   Profile
	expiresAt time.Time
}

// MemoryCache is a process-local Cache with a fixed TTL.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[uuid.UUID]memoryEntry
}

// NewMemoryCache returns a MemoryCache; ttl defaults to one minute.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &MemoryCache{ttl: ttl, now: time.Now, entries: make(map[uuid.UUID]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, userID uuid.UUID) (Profile, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[userID]
	if !ok {
		return Profile{}, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, userID)
		return Profile{}, false, nil
	}
	return entry.profile, true, nil
}

func (c *MemoryCache) Set(_ context.Context, profile Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[profile.UserID] = memoryEntry{profile: profile, expiresAt: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, userID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, userID)
	return nil
}

// RedisCache stores profiles as JSON under "profile:<user id>".
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis backed Cache; ttl defaults to one minute.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, userID uuid.UUID) (Profile, bool, error) {
	raw, err := c.client.Get(ctx, cacheKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Profile{}, false, nil
		}
		return Profile{}, false, fmt.Errorf("read cached profile: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return Profile{}, false, fmt.Errorf("decode cached profile: %w", err)
	}
	return p, true, nil
}

func (c *RedisCache) Set(ctx context.Context, profile Profile) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return c.client.Set(ctx, cacheKey(profile.UserID), raw, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	return c.client.Del(ctx, cacheKey(userID)).Err()
}

func cacheKey(userID uuid.UUID) string {
	return "profile:" + userID.String()
}
