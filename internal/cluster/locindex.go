package cluster

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// unregisterScript deletes a location entry only while it still points at
// the calling engine, so an engine that just received the player cannot
// have its fresh registration wiped by the old owner's cleanup.
var unregisterScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LocationIndex maps online player names to the engine hosting them, with a
// TTL refreshed by the owning engine's heartbeat. Writes go through a
// worker goroutine so the engine loop never blocks on Redis.
type LocationIndex struct {
	client   *redis.Client
	prefix   string
	engineID string
	ttl      time.Duration

	ops chan func(ctx context.Context)
}

// NewLocationIndex builds the index client. Run must be started for writes
// to flow.
func NewLocationIndex(client *redis.Client, prefix, engineID string, ttl time.Duration) *LocationIndex {
	return &LocationIndex{
		client:   client,
		prefix:   prefix,
		engineID: engineID,
		ttl:      ttl,
		ops:      make(chan func(ctx context.Context), 256),
	}
}

func (x *LocationIndex) key(nameLower string) string {
	return x.prefix + ":player:loc:" + nameLower
}

// Run executes queued writes until ctx is done.
func (x *LocationIndex) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case op := <-x.ops:
			op(ctx)
		}
	}
}

func (x *LocationIndex) enqueue(op func(ctx context.Context)) {
	select {
	case x.ops <- op:
	default:
		slog.Warn("location index write dropped, queue full", "engine", x.engineID)
	}
}

// Register claims a player name for this engine.
func (x *LocationIndex) Register(nameLower string) {
	x.enqueue(func(ctx context.Context) {
		if err := x.client.Set(ctx, x.key(nameLower), x.engineID, x.ttl).Err(); err != nil {
			slog.Warn("location register failed", "player", nameLower, "error", err)
		}
	})
}

// Unregister releases a name, but only if this engine still owns it.
func (x *LocationIndex) Unregister(nameLower string) {
	x.enqueue(func(ctx context.Context) {
		err := unregisterScript.Run(ctx, x.client, []string{x.key(nameLower)}, x.engineID).Err()
		if err != nil && err != redis.Nil {
			slog.Warn("location unregister failed", "player", nameLower, "error", err)
		}
	})
}

// RefreshTTLs re-arms the TTL for every hosted player. Called from the
// engine's heartbeat.
func (x *LocationIndex) RefreshTTLs(namesLower []string) {
	if len(namesLower) == 0 {
		return
	}
	names := make([]string, len(namesLower))
	copy(names, namesLower)
	x.enqueue(func(ctx context.Context) {
		pipe := x.client.Pipeline()
		for _, name := range names {
			pipe.Set(ctx, x.key(name), x.engineID, x.ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			slog.Warn("location ttl refresh failed", "players", len(names), "error", err)
		}
	})
}

// Lookup resolves a name to its hosting engine. Synchronous: callers are
// command handlers that need the answer now. Empty string means offline or
// unknown.
func (x *LocationIndex) Lookup(ctx context.Context, nameLower string) string {
	engine, err := x.client.Get(ctx, x.key(nameLower)).Result()
	if err == redis.Nil {
		return ""
	}
	if err != nil {
		slog.Warn("location lookup failed", "player", nameLower, "error", err)
		return ""
	}
	return engine
}
