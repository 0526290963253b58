package config

import (
	"fmt"
	"strconv"
	"strings"
)

// EnvPrefix for configuration overrides.
const EnvPrefix = "AMBONMUD_"

// envSetter applies one override; the key documents the variable name.
type envSetter struct {
	name string
	set  func(cfg *Config, value string) error
}

// envSetters maps AMBONMUD_<SECTION>_<KEY> variables onto config fields.
// The variable name, lowercased with underscores read as dots, is the
// config path it overrides (AMBONMUD_SERVER_TELNET_PORT → server.telnet_port).
var envSetters = []envSetter{
	{"AMBONMUD_LOG_LEVEL", func(c *Config, v string) error { c.LogLevel = v; return nil }},

	{"AMBONMUD_SERVER_TELNET_PORT", intSetter(func(c *Config, n int) { c.Server.TelnetPort = n })},
	{"AMBONMUD_SERVER_WEB_PORT", intSetter(func(c *Config, n int) { c.Server.WebPort = n })},
	{"AMBONMUD_SERVER_TICK_MILLIS", intSetter(func(c *Config, n int) { c.Server.TickMillis = n })},
	{"AMBONMUD_SERVER_MAX_INBOUND_EVENTS_PER_TICK", intSetter(func(c *Config, n int) { c.Server.MaxInboundEventsPerTick = n })},

	{"AMBONMUD_PERSISTENCE_BACKEND", func(c *Config, v string) error { c.Persistence.Backend = v; return nil }},
	{"AMBONMUD_PERSISTENCE_ROOT_DIR", func(c *Config, v string) error { c.Persistence.RootDir = v; return nil }},
	{"AMBONMUD_PERSISTENCE_DATABASE_HOST", func(c *Config, v string) error { c.Persistence.Database.Host = v; return nil }},
	{"AMBONMUD_PERSISTENCE_DATABASE_PORT", intSetter(func(c *Config, n int) { c.Persistence.Database.Port = n })},
	{"AMBONMUD_PERSISTENCE_DATABASE_USER", func(c *Config, v string) error { c.Persistence.Database.User = v; return nil }},
	{"AMBONMUD_PERSISTENCE_DATABASE_PASSWORD", func(c *Config, v string) error { c.Persistence.Database.Password = v; return nil }},
	{"AMBONMUD_PERSISTENCE_DATABASE_DBNAME", func(c *Config, v string) error { c.Persistence.Database.DBName = v; return nil }},
	{"AMBONMUD_PERSISTENCE_WORKER_FLUSH_INTERVAL_MS", intSetter(func(c *Config, n int) { c.Persistence.Worker.FlushIntervalMs = n })},
	{"AMBONMUD_PERSISTENCE_CACHE_ENABLED", boolSetter(func(c *Config, b bool) { c.Persistence.Cache.Enabled = b })},

	{"AMBONMUD_REDIS_ADDR", func(c *Config, v string) error { c.Redis.Addr = v; return nil }},
	{"AMBONMUD_REDIS_PASSWORD", func(c *Config, v string) error { c.Redis.Password = v; return nil }},
	{"AMBONMUD_REDIS_PREFIX", func(c *Config, v string) error { c.Redis.Prefix = v; return nil }},

	{"AMBONMUD_GRPC_SERVER_PORT", intSetter(func(c *Config, n int) { c.GRPC.Server.Port = n })},
	{"AMBONMUD_GRPC_CLIENT_ENGINE_HOST", func(c *Config, v string) error { c.GRPC.Client.EngineHost = v; return nil }},
	{"AMBONMUD_GRPC_CLIENT_ENGINE_PORT", intSetter(func(c *Config, n int) { c.GRPC.Client.EnginePort = n })},

	{"AMBONMUD_SHARDING_ENABLED", boolSetter(func(c *Config, b bool) { c.Sharding.Enabled = b })},
	{"AMBONMUD_SHARDING_ENGINE_ID", func(c *Config, v string) error { c.Sharding.EngineID = v; return nil }},
	{"AMBONMUD_SHARDING_ZONES", func(c *Config, v string) error {
		c.Sharding.Zones = splitCSV(v)
		return nil
	}},
	{"AMBONMUD_SHARDING_REGISTRY_TYPE", func(c *Config, v string) error { c.Sharding.Registry.Type = v; return nil }},
	{"AMBONMUD_SHARDING_REGISTRY_LEASE_TTL_SECONDS", intSetter(func(c *Config, n int) { c.Sharding.Registry.LeaseTTLSeconds = n })},
	{"AMBONMUD_SHARDING_HANDOFF_ACK_TIMEOUT_MS", intSetter(func(c *Config, n int) { c.Sharding.Handoff.AckTimeoutMs = n })},
	{"AMBONMUD_SHARDING_ADVERTISE_HOST", func(c *Config, v string) error { c.Sharding.AdvertiseHost = v; return nil }},
	{"AMBONMUD_SHARDING_ADVERTISE_PORT", intSetter(func(c *Config, n int) { c.Sharding.AdvertisePort = n })},
	{"AMBONMUD_SHARDING_PLAYER_INDEX_ENABLED", boolSetter(func(c *Config, b bool) { c.Sharding.PlayerIndex.Enabled = b })},
	{"AMBONMUD_SHARDING_PLAYER_INDEX_HEARTBEAT_MS", intSetter(func(c *Config, n int) { c.Sharding.PlayerIndex.HeartbeatMs = n })},
	{"AMBONMUD_SHARDING_INSTANCING_ENABLED", boolSetter(func(c *Config, b bool) { c.Sharding.Instancing.Enabled = b })},
}

// applyEnv overlays environment variables onto cfg. lookup is injectable
// for tests.
func applyEnv(cfg *Config, lookup func(string) string) error {
	for _, s := range envSetters {
		v := lookup(s.name)
		if v == "" {
			continue
		}
		if err := s.set(cfg, v); err != nil {
			return fmt.Errorf("environment %s: %w", s.name, err)
		}
	}
	return nil
}

func intSetter(apply func(*Config, int)) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("want integer, got %q", v)
		}
		apply(c, n)
		return nil
	}
}

func boolSetter(apply func(*Config, bool)) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("want boolean, got %q", v)
		}
		apply(c, b)
		return nil
	}
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
