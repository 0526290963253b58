package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedPlayers fronts a PlayerRepository with a Redis read cache. Cache
// trouble is never fatal: every miss or Redis error falls through to the
// backing repository.
type CachedPlayers struct {
	inner  PlayerRepository
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewCachedPlayers wraps inner with a TTL cache.
func NewCachedPlayers(inner PlayerRepository, client *redis.Client, prefix string, ttl time.Duration) *CachedPlayers {
	return &CachedPlayers{inner: inner, client: client, prefix: prefix, ttl: ttl}
}

func (c *CachedPlayers) idKey(id int64) string {
	return fmt.Sprintf("%s:player:id:%d", c.prefix, id)
}

func (c *CachedPlayers) nameKey(nameLower string) string {
	return c.prefix + ":player:name:" + nameLower
}

func (c *CachedPlayers) get(ctx context.Context, key string) *PlayerRecord {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		slog.Warn("player cache read failed", "key", key, "error", err)
		return nil
	}
	var rec PlayerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		slog.Warn("player cache entry corrupt", "key", key, "error", err)
		return nil
	}
	return &rec
}

func (c *CachedPlayers) put(ctx context.Context, rec *PlayerRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		slog.Warn("player cache encode failed", "player", rec.ID, "error", err)
		return
	}
	pipe := c.client.Pipeline()
	pipe.Set(ctx, c.idKey(rec.ID), data, c.ttl)
	pipe.Set(ctx, c.nameKey(rec.NameLower), data, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("player cache write failed", "player", rec.ID, "error", err)
	}
}

func (c *CachedPlayers) invalidate(ctx context.Context, id int64, nameLower string) {
	keys := []string{c.idKey(id)}
	if nameLower != "" {
		keys = append(keys, c.nameKey(nameLower))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("player cache invalidate failed", "player", id, "error", err)
	}
}

func (c *CachedPlayers) FindByID(ctx context.Context, id int64) (*PlayerRecord, error) {
	if rec := c.get(ctx, c.idKey(id)); rec != nil {
		return rec, nil
	}
	rec, err := c.inner.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.put(ctx, rec)
	return rec, nil
}

func (c *CachedPlayers) FindByNameLower(ctx context.Context, nameLower string) (*PlayerRecord, error) {
	if rec := c.get(ctx, c.nameKey(nameLower)); rec != nil {
		return rec, nil
	}
	rec, err := c.inner.FindByNameLower(ctx, nameLower)
	if err != nil {
		return nil, err
	}
	c.put(ctx, rec)
	return rec, nil
}

func (c *CachedPlayers) Create(ctx context.Context, rec *PlayerRecord) error {
	if err := c.inner.Create(ctx, rec); err != nil {
		return err
	}
	c.put(ctx, rec)
	return nil
}

// Save writes through and drops the cached copy so the next read refreshes
// it from the store.
func (c *CachedPlayers) Save(ctx context.Context, rec *PlayerRecord) error {
	if err := c.inner.Save(ctx, rec); err != nil {
		return err
	}
	c.invalidate(ctx, rec.ID, rec.NameLower)
	return nil
}

func (c *CachedPlayers) Delete(ctx context.Context, id int64) error {
	rec, err := c.inner.FindByID(ctx, id)
	nameLower := ""
	if err == nil {
		nameLower = rec.NameLower
	}
	if err := c.inner.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id, nameLower)
	return nil
}

var _ PlayerRepository = (*CachedPlayers)(nil)

// cachedStore is a full Store whose player reads go through the cache;
// account operations pass straight to the backend.
type cachedStore struct {
	*CachedPlayers
	AccountRepository
}

// WithPlayerCache layers the Redis read cache over a backend store.
func WithPlayerCache(inner Store, client *redis.Client, prefix string, ttl time.Duration) Store {
	return cachedStore{
		CachedPlayers:     NewCachedPlayers(inner, client, prefix, ttl),
		AccountRepository: inner,
	}
}
