package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ambonmud/ambonmud/internal/model"
)

// instanceInfo is the JSON value stored per engine in a zone's hash.
type instanceInfo struct {
	EngineID  string `json:"engineId"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Load      int    `json:"load"`
	Capacity  int    `json:"capacity"`
	UpdatedAt int64  `json:"updatedAtMs"`
}

// LeaseRegistry is the dynamic zone registry: each engine renews a lease
// entry per hosted zone under <prefix>:zone:<zone>. Entries not renewed
// within the TTL are treated as dead and pruned on read.
type LeaseRegistry struct {
	client   *redis.Client
	prefix   string
	engineID string
	self     EngineRef
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

// NewLeaseRegistry builds the registry for this engine's advertised address.
func NewLeaseRegistry(client *redis.Client, prefix string, self EngineRef, ttl time.Duration, capacity int) *LeaseRegistry {
	return &LeaseRegistry{
		client:   client,
		prefix:   prefix,
		engineID: self.EngineID,
		self:     self,
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

func (r *LeaseRegistry) zoneKey(zone model.Zone) string {
	return fmt.Sprintf("%s:zone:%s", r.prefix, zone)
}

// Announce renews this engine's lease on every hosted zone with the current
// player load. Called from the engine's periodic scheduler.
func (r *LeaseRegistry) Announce(ctx context.Context, loads map[model.Zone]int) error {
	pipe := r.client.Pipeline()
	for zone, load := range loads {
		info := instanceInfo{
			EngineID:  r.engineID,
			Host:      r.self.Host,
			Port:      r.self.Port,
			Load:      load,
			Capacity:  r.capacity,
			UpdatedAt: r.now().UnixMilli(),
		}
		data, err := json.Marshal(info)
		if err != nil {
			return fmt.Errorf("encode lease for zone %s: %w", zone, err)
		}
		pipe.HSet(ctx, r.zoneKey(zone), r.engineID, data)
		// The hash outlives any one instance; its own expiry is a backstop
		// for zones every engine abandoned.
		pipe.Expire(ctx, r.zoneKey(zone), 4*r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("announce leases: %w", err)
	}
	return nil
}

// Withdraw removes this engine's entries, for clean shutdown.
func (r *LeaseRegistry) Withdraw(ctx context.Context, zones []model.Zone) {
	pipe := r.client.Pipeline()
	for _, zone := range zones {
		pipe.HDel(ctx, r.zoneKey(zone), r.engineID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("lease withdraw failed", "engine", r.engineID, "error", err)
	}
}

// live reads the zone hash and drops expired entries, deleting them from
// Redis opportunistically.
func (r *LeaseRegistry) live(ctx context.Context, zone model.Zone) []instanceInfo {
	entries, err := r.client.HGetAll(ctx, r.zoneKey(zone)).Result()
	if err != nil {
		slog.Warn("zone lookup failed", "zone", zone, "error", err)
		return nil
	}
	cutoff := r.now().Add(-r.ttl).UnixMilli()
	var out []instanceInfo
	var stale []string
	for field, raw := range entries {
		var info instanceInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			stale = append(stale, field)
			continue
		}
		if info.UpdatedAt < cutoff {
			stale = append(stale, field)
			continue
		}
		out = append(out, info)
	}
	if len(stale) > 0 {
		if err := r.client.HDel(ctx, r.zoneKey(zone), stale...).Err(); err != nil {
			slog.Debug("stale lease prune failed", "zone", zone, "error", err)
		}
	}
	return out
}

func (r *LeaseRegistry) Instances(ctx context.Context, zone model.Zone) []EngineRef {
	infos := r.live(ctx, zone)
	refs := make([]EngineRef, 0, len(infos))
	for _, info := range infos {
		refs = append(refs, EngineRef{EngineID: info.EngineID, Host: info.Host, Port: info.Port})
	}
	return refs
}

// PickInstance chooses the engine for a zone move: the sticky instance if
// it is alive and under capacity, else the least-loaded instance under
// capacity, else the least-loaded overall.
func (r *LeaseRegistry) PickInstance(ctx context.Context, zone model.Zone, stickyEngineID string) (EngineRef, bool) {
	infos := r.live(ctx, zone)
	if len(infos) == 0 {
		return EngineRef{}, false
	}

	underCap := func(i instanceInfo) bool {
		return i.Capacity <= 0 || i.Load < i.Capacity
	}

	if stickyEngineID != "" {
		for _, info := range infos {
			if info.EngineID == stickyEngineID && underCap(info) {
				return EngineRef{EngineID: info.EngineID, Host: info.Host, Port: info.Port}, true
			}
		}
	}

	best := -1
	for i, info := range infos {
		if !underCap(info) {
			continue
		}
		if best < 0 || info.Load < infos[best].Load {
			best = i
		}
	}
	if best < 0 {
		// All full; overload the least-loaded rather than strand the player.
		for i, info := range infos {
			if best < 0 || info.Load < infos[best].Load {
				best = i
			}
		}
	}
	chosen := infos[best]
	return EngineRef{EngineID: chosen.EngineID, Host: chosen.Host, Port: chosen.Port}, true
}

var _ ZoneRegistry = (*LeaseRegistry)(nil)
