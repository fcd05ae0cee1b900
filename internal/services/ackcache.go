package services

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ackKeyPrefix = "ack:"
	// AckRetention bounds how long an acknowledged id is remembered, and
	// AckMaxEntries caps the per-actor set. The worst case on eviction is
	// an old notification re-surfacing once; acknowledged ids are a UX
	// optimization, never authoritative delivery state.
	AckRetention  = 30 * 24 * time.Hour
	AckMaxEntries = 5000
)

// AckCache remembers which message ids an actor has already been notified
// about, so reconnecting or reloading does not re-surface old badges.
type AckCache interface {
	IsAcknowledged(ctx context.Context, actorID, messageID string) (bool, error)
	Acknowledge(ctx context.Context, actorID string, messageIDs ...string) error
}

// RedisAckCache persists the acknowledged set per actor as a Redis sorted
// set scored by acknowledgment time, pruned on every write.
type RedisAckCache struct {
	client *redis.Client
}

func NewRedisAckCache(client *redis.Client) *RedisAckCache {
	return &RedisAckCache{client: client}
}

func (c *RedisAckCache) IsAcknowledged(ctx context.Context, actorID, messageID string) (bool, error) {
	_, err := c.client.ZScore(ctx, ackKeyPrefix+actorID, messageID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisAckCache) Acknowledge(ctx context.Context, actorID string, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	key := ackKeyPrefix + actorID
	now := time.Now()

	members := make([]redis.Z, 0, len(messageIDs))
	for _, id := range messageIDs {
		members = append(members, redis.Z{Score: float64(now.Unix()), Member: id})
	}

	cutoff := strconv.FormatInt(now.Add(-AckRetention).Unix(), 10)
	pipe := c.client.Pipeline()
	pipe.ZAdd(ctx, key, members...)
	pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-(AckMaxEntries + 1)))
	pipe.Expire(ctx, key, AckRetention)
	_, err := pipe.Exec(ctx)
	return err
}

// MemoryAckCache is the in-memory AckCache used by tests and local
// development.
type MemoryAckCache struct {
	mu   sync.Mutex
	sets map[string]map[string]time.Time
}

func NewMemoryAckCache() *MemoryAckCache {
	return &MemoryAckCache{sets: make(map[string]map[string]time.Time)}
}

func (c *MemoryAckCache) IsAcknowledged(ctx context.Context, actorID, messageID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.sets[actorID][messageID]
	if !ok {
		return false, nil
	}
	if time.Since(at) > AckRetention {
		delete(c.sets[actorID], messageID)
		return false, nil
	}
	return true, nil
}

func (c *MemoryAckCache) Acknowledge(ctx context.Context, actorID string, messageIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.sets[actorID]
	if set == nil {
		set = make(map[string]time.Time)
		c.sets[actorID] = set
	}
	now := time.Now()
	for _, id := range messageIDs {
		set[id] = now
	}
	if len(set) > AckMaxEntries {
		// Drop oldest entries until back under the cap.
		for len(set) > AckMaxEntries {
			var oldestID string
			var oldestAt time.Time
			for id, at := range set {
				if oldestID == "" || at.Before(oldestAt) {
					oldestID, oldestAt = id, at
				}
			}
			delete(set, oldestID)
		}
	}
	return nil
}

// FilterUnacknowledged returns the subset of ids the actor has not been
// notified about yet.
func FilterUnacknowledged(ctx context.Context, cache AckCache, actorID string, ids []string) ([]string, error) {
	var out []string
	for _, id := range ids {
		acked, err := cache.IsAcknowledged(ctx, actorID, id)
		if err != nil {
			return nil, err
		}
		if !acked {
			out = append(out, id)
		}
	}
	return out, nil
}
