// Package config holds the engine's layered configuration: defaults,
// overridden by one YAML document, overridden by AMBONMUD_* environment
// variables, then validated as a whole.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document. It carries no logic beyond
// loading; validation lives in Validate.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Server      Server      `yaml:"server"`
	World       World       `yaml:"world"`
	Persistence Persistence `yaml:"persistence"`
	Login       Login       `yaml:"login"`
	Engine      Engine      `yaml:"engine"`
	Transport   Transport   `yaml:"transport"`
	Redis       Redis       `yaml:"redis"`
	GRPC        GRPC        `yaml:"grpc"`
	Sharding    Sharding    `yaml:"sharding"`
}

// Server holds the front-door and engine-loop sizing knobs.
type Server struct {
	TelnetPort                   int `yaml:"telnet_port"`
	WebPort                      int `yaml:"web_port"`
	InboundChannelCapacity       int `yaml:"inbound_channel_capacity"`
	OutboundChannelCapacity      int `yaml:"outbound_channel_capacity"`
	SessionOutboundQueueCapacity int `yaml:"session_outbound_queue_capacity"`
	MaxInboundEventsPerTick      int `yaml:"max_inbound_events_per_tick"`
	TickMillis                   int `yaml:"tick_millis"`
}

// World lists the YAML world resources loaded at startup.
type World struct {
	Resources []string `yaml:"resources"`
}

// Persistence selects and tunes the player store.
type Persistence struct {
	Backend  string        `yaml:"backend"` // "file" or "relational"
	RootDir  string        `yaml:"root_dir"`
	Database Database      `yaml:"database"`
	Worker   PersistWorker `yaml:"worker"`
	Cache    PersistCache  `yaml:"cache"`
}

// Database holds PostgreSQL connection parameters (relational backend).
type Database struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// PersistWorker tunes the write-behind flush loop.
type PersistWorker struct {
	FlushIntervalMs int `yaml:"flush_interval_ms"`
}

// PersistCache enables the Redis read cache in front of the repository.
type PersistCache struct {
	Enabled    bool `yaml:"enabled"`
	TTLSeconds int  `yaml:"ttl_seconds"`
}

// Login bounds authentication failures.
type Login struct {
	MaxWrongPasswordRetries           int `yaml:"max_wrong_password_retries"`
	MaxFailedAttemptsBeforeDisconnect int `yaml:"max_failed_attempts_before_disconnect"`
}

// Engine tunes the periodic game systems.
type Engine struct {
	Mob       Mob       `yaml:"mob"`
	Combat    Combat    `yaml:"combat"`
	Regen     Regen     `yaml:"regen"`
	Scheduler Scheduler `yaml:"scheduler"`
}

// Mob tunes wandering.
type Mob struct {
	WanderIntervalMillis int `yaml:"wander_interval_millis"`
	MaxMovesPerTick      int `yaml:"max_moves_per_tick"`
}

// Combat tunes the fight tick and the damage model.
type Combat struct {
	TickMillis        int     `yaml:"tick_millis"`
	MaxCombatsPerTick int     `yaml:"max_combats_per_tick"`
	BaseDamage        int     `yaml:"base_damage"`
	DexDodgePerPoint  float64 `yaml:"dex_dodge_per_point"`
	MaxDodgePercent   float64 `yaml:"max_dodge_percent"`
}

// Regen tunes HP/mana recovery cadence.
type Regen struct {
	BaseIntervalMillis int `yaml:"base_interval_millis"`
	MinIntervalMillis  int `yaml:"min_interval_millis"`
	MillisPerStat      int `yaml:"millis_per_stat"`
	MaxPlayersPerTick  int `yaml:"max_players_per_tick"`
}

// Scheduler caps total periodic work per tick.
type Scheduler struct {
	MaxActionsPerTick int `yaml:"max_actions_per_tick"`
}

// Transport tunes the wire-facing limits.
type Transport struct {
	Telnet                         Telnet    `yaml:"telnet"`
	MaxInboundBackpressureFailures int       `yaml:"max_inbound_backpressure_failures"`
	Websocket                      Websocket `yaml:"websocket"`
}

// Telnet bounds raw line input.
type Telnet struct {
	MaxLineLen             int `yaml:"max_line_len"`
	MaxNonPrintablePerLine int `yaml:"max_non_printable_per_line"`
}

// Websocket tunes the framed transport's shutdown behavior.
type Websocket struct {
	Host              string `yaml:"host"`
	StopGraceMillis   int    `yaml:"stop_grace_millis"`
	StopTimeoutMillis int    `yaml:"stop_timeout_millis"`
}

// Redis locates the shared fabric used by the inter-engine bus, the lease
// zone registry, the player location index and the read cache.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// GRPC is the split-topology surface (gateway <-> engine). The gateway
// itself lives outside this repository.
type GRPC struct {
	Server GRPCServer `yaml:"server"`
	Client GRPCClient `yaml:"client"`
}

// GRPCServer is the engine-side listen port in split topology.
type GRPCServer struct {
	Port int `yaml:"port"`
}

// GRPCClient is the gateway-side dial target in split topology.
type GRPCClient struct {
	EngineHost string `yaml:"engine_host"`
	EnginePort int    `yaml:"engine_port"`
}

// Sharding configures zone ownership and cross-engine behavior.
type Sharding struct {
	Enabled       bool        `yaml:"enabled"`
	EngineID      string      `yaml:"engine_id"`
	Zones         []string    `yaml:"zones"`
	Registry      Registry    `yaml:"registry"`
	Handoff       Handoff     `yaml:"handoff"`
	AdvertiseHost string      `yaml:"advertise_host"`
	AdvertisePort int         `yaml:"advertise_port"`
	PlayerIndex   PlayerIndex `yaml:"player_index"`
	Instancing    Instancing  `yaml:"instancing"`
}

// Registry selects the zone registry implementation.
type Registry struct {
	Type            string                    `yaml:"type"` // "static" or "lease"
	LeaseTTLSeconds int                       `yaml:"lease_ttl_seconds"`
	Assignments     map[string]StaticAssignee `yaml:"assignments"`
}

// StaticAssignee is one zone owner in a static registry.
type StaticAssignee struct {
	EngineID string `yaml:"engine_id"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
}

// Handoff bounds cross-engine player migration.
type Handoff struct {
	AckTimeoutMs int `yaml:"ack_timeout_ms"`
}

// PlayerIndex enables the distributed name → engine lookup.
type PlayerIndex struct {
	Enabled     bool `yaml:"enabled"`
	HeartbeatMs int  `yaml:"heartbeat_ms"`
	TTLSeconds  int  `yaml:"ttl_seconds"`
}

// Instancing enables multiple engine instances per zone plus the advisory
// threshold scaler.
type Instancing struct {
	Enabled            bool    `yaml:"enabled"`
	Capacity           int     `yaml:"capacity"`
	ScaleUpThreshold   float64 `yaml:"scale_up_threshold"`
	ScaleDownThreshold float64 `yaml:"scale_down_threshold"`
	MinInstances       int     `yaml:"min_instances"`
	CooldownSeconds    int     `yaml:"cooldown_seconds"`
}

// Default returns the configuration used when the YAML document is absent
// or partial.
func Default() Config {
	return Config{
		LogLevel: "info",
		Server: Server{
			TelnetPort:                   4000,
			WebPort:                      8080,
			InboundChannelCapacity:       1024,
			OutboundChannelCapacity:      4096,
			SessionOutboundQueueCapacity: 128,
			MaxInboundEventsPerTick:      256,
			TickMillis:                   100,
		},
		World: World{
			Resources: []string{"world/midgard.yaml"},
		},
		Persistence: Persistence{
			Backend: "file",
			RootDir: "data/players",
			Database: Database{
				Host:     "127.0.0.1",
				Port:     5432,
				User:     "ambonmud",
				Password: "ambonmud",
				DBName:   "ambonmud",
				SSLMode:  "disable",
			},
			Worker: PersistWorker{FlushIntervalMs: 5000},
			Cache:  PersistCache{Enabled: false, TTLSeconds: 300},
		},
		Login: Login{
			MaxWrongPasswordRetries:           3,
			MaxFailedAttemptsBeforeDisconnect: 5,
		},
		Engine: Engine{
			Mob: Mob{
				WanderIntervalMillis: 8000,
				MaxMovesPerTick:      16,
			},
			Combat: Combat{
				TickMillis:        2000,
				MaxCombatsPerTick: 64,
				BaseDamage:        4,
				DexDodgePerPoint:  1.5,
				MaxDodgePercent:   40,
			},
			Regen: Regen{
				BaseIntervalMillis: 6000,
				MinIntervalMillis:  1500,
				MillisPerStat:      200,
				MaxPlayersPerTick:  128,
			},
			Scheduler: Scheduler{MaxActionsPerTick: 512},
		},
		Transport: Transport{
			Telnet: Telnet{
				MaxLineLen:             512,
				MaxNonPrintablePerLine: 8,
			},
			MaxInboundBackpressureFailures: 5,
			Websocket: Websocket{
				Host:              "0.0.0.0",
				StopGraceMillis:   500,
				StopTimeoutMillis: 5000,
			},
		},
		Redis: Redis{
			Addr:   "127.0.0.1:6379",
			Prefix: "ambonmud",
		},
		Sharding: Sharding{
			Enabled:  false,
			EngineID: "engine-1",
			Registry: Registry{
				Type:            "static",
				LeaseTTLSeconds: 15,
			},
			Handoff:     Handoff{AckTimeoutMs: 3000},
			PlayerIndex: PlayerIndex{Enabled: false, HeartbeatMs: 5000, TTLSeconds: 30},
			Instancing: Instancing{
				Capacity:           100,
				ScaleUpThreshold:   0.8,
				ScaleDownThreshold: 0.3,
				MinInstances:       1,
				CooldownSeconds:    60,
			},
		},
	}
}

// Load reads the YAML document at path over Default, applies the
// environment overlay, and validates. A missing file is not an error:
// defaults plus environment apply.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
