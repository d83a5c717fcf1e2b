package roster

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Source is what the cache wraps; satisfied by *Repository.
type Source interface {
	GetRoster(ctx context.Context, classID string) (map[string]bool, error)
}

// Cache is a read-through roster cache backed by redis. Postgres stays
// authoritative: cache errors fall back to the source, never to the caller.
type Cache struct {
	src    Source
	client *redis.Client
	ttl    time.Duration
}

// NewCache wraps src with a redis cache. A nil client disables caching.
func NewCache(src Source, client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{src: src, client: client, ttl: ttl}
}

func cacheKey(classID string) string { return "classroll:roster:" + classID }

// GetRoster returns the roster for classID, served from redis when fresh.
func (c *Cache) GetRoster(ctx context.Context, classID string) (map[string]bool, error) {
	if c.client != nil {
		raw, err := c.client.Get(ctx, cacheKey(classID)).Result()
		if err == nil {
			var ids []string
			if jsonErr := json.Unmarshal([]byte(raw), &ids); jsonErr == nil {
				members := make(map[string]bool, len(ids))
				for _, id := range ids {
					members[id] = true
				}
				return members, nil
			}
		} else if err != redis.Nil {
			log.Printf("roster cache read failed for %s: %v", classID, err)
		}
	}

	members, err := c.src.GetRoster(ctx, classID)
	if err != nil {
		return nil, err
	}

	if c.client != nil {
		ids := make([]string, 0, len(members))
		for id := range members {
			ids = append(ids, id)
		}
		if raw, err := json.Marshal(ids); err == nil {
			if err := c.client.Set(ctx, cacheKey(classID), raw, c.ttl).Err(); err != nil {
				log.Printf("roster cache write failed for %s: %v", classID, err)
			}
		}
	}
	return members, nil
}

// Invalidate drops the cached roster for classID, called after enrollment
// changes.
func (c *Cache) Invalidate(ctx context.Context, classID string) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, cacheKey(classID)).Err(); err != nil {
		log.Printf("roster cache invalidate failed for %s: %v", classID, err)
	}
}
