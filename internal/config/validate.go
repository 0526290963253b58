package config

import (
	"fmt"
)

// Validate checks the whole document. The first failure is returned with
// its config path; validation failures are fatal at startup.
func (c Config) Validate() error {
	if err := requirePositive("server.tick_millis", c.Server.TickMillis); err != nil {
		return err
	}
	if err := requirePositive("server.inbound_channel_capacity", c.Server.InboundChannelCapacity); err != nil {
		return err
	}
	if err := requirePositive("server.outbound_channel_capacity", c.Server.OutboundChannelCapacity); err != nil {
		return err
	}
	if err := requirePositive("server.session_outbound_queue_capacity", c.Server.SessionOutboundQueueCapacity); err != nil {
		return err
	}
	if err := requirePositive("server.max_inbound_events_per_tick", c.Server.MaxInboundEventsPerTick); err != nil {
		return err
	}
	if err := requirePort("server.telnet_port", c.Server.TelnetPort); err != nil {
		return err
	}
	if err := requirePort("server.web_port", c.Server.WebPort); err != nil {
		return err
	}

	if len(c.World.Resources) == 0 {
		return fmt.Errorf("world.resources must list at least one world file")
	}

	switch c.Persistence.Backend {
	case "file":
		if c.Persistence.RootDir == "" {
			return fmt.Errorf("persistence.root_dir must be set for the file backend")
		}
	case "relational":
		if c.Persistence.Database.Host == "" {
			return fmt.Errorf("persistence.database.host must be set for the relational backend")
		}
	default:
		return fmt.Errorf("persistence.backend must be \"file\" or \"relational\", got %q", c.Persistence.Backend)
	}
	if err := requirePositive("persistence.worker.flush_interval_ms", c.Persistence.Worker.FlushIntervalMs); err != nil {
		return err
	}

	if err := requirePositive("engine.combat.tick_millis", c.Engine.Combat.TickMillis); err != nil {
		return err
	}
	if err := requirePositive("engine.combat.max_combats_per_tick", c.Engine.Combat.MaxCombatsPerTick); err != nil {
		return err
	}
	if c.Engine.Combat.MaxDodgePercent < 0 || c.Engine.Combat.MaxDodgePercent > 100 {
		return fmt.Errorf("engine.combat.max_dodge_percent must be within 0..100, got %v", c.Engine.Combat.MaxDodgePercent)
	}
	if err := requirePositive("engine.regen.base_interval_millis", c.Engine.Regen.BaseIntervalMillis); err != nil {
		return err
	}
	if err := requirePositive("engine.regen.min_interval_millis", c.Engine.Regen.MinIntervalMillis); err != nil {
		return err
	}
	if err := requirePositive("engine.mob.wander_interval_millis", c.Engine.Mob.WanderIntervalMillis); err != nil {
		return err
	}
	if err := requirePositive("engine.mob.max_moves_per_tick", c.Engine.Mob.MaxMovesPerTick); err != nil {
		return err
	}
	if err := requirePositive("engine.scheduler.max_actions_per_tick", c.Engine.Scheduler.MaxActionsPerTick); err != nil {
		return err
	}

	if err := requirePositive("transport.telnet.max_line_len", c.Transport.Telnet.MaxLineLen); err != nil {
		return err
	}
	if c.Transport.Telnet.MaxNonPrintablePerLine < 0 {
		return fmt.Errorf("transport.telnet.max_non_printable_per_line must be >= 0, got %d", c.Transport.Telnet.MaxNonPrintablePerLine)
	}
	if err := requirePositive("transport.max_inbound_backpressure_failures", c.Transport.MaxInboundBackpressureFailures); err != nil {
		return err
	}

	if c.Sharding.Enabled {
		if c.Sharding.EngineID == "" {
			return fmt.Errorf("sharding.engine_id must be set when sharding is enabled")
		}
		if err := requirePositive("sharding.handoff.ack_timeout_ms", c.Sharding.Handoff.AckTimeoutMs); err != nil {
			return err
		}
		switch c.Sharding.Registry.Type {
		case "static":
			if err := validateStaticAssignments(c.Sharding.Registry.Assignments); err != nil {
				return err
			}
		case "lease":
			if err := requirePositive("sharding.registry.lease_ttl_seconds", c.Sharding.Registry.LeaseTTLSeconds); err != nil {
				return err
			}
			if c.Redis.Addr == "" {
				return fmt.Errorf("redis.addr must be set for the lease registry")
			}
		default:
			return fmt.Errorf("sharding.registry.type must be \"static\" or \"lease\", got %q", c.Sharding.Registry.Type)
		}
		if c.Sharding.PlayerIndex.Enabled {
			if err := requirePositive("sharding.player_index.heartbeat_ms", c.Sharding.PlayerIndex.HeartbeatMs); err != nil {
				return err
			}
			if err := requirePositive("sharding.player_index.ttl_seconds", c.Sharding.PlayerIndex.TTLSeconds); err != nil {
				return err
			}
			// A heartbeat slower than the TTL loses entries between refreshes.
			if c.Sharding.PlayerIndex.HeartbeatMs >= c.Sharding.PlayerIndex.TTLSeconds*1000 {
				return fmt.Errorf("sharding.player_index.heartbeat_ms (%d) must be shorter than ttl_seconds (%d)",
					c.Sharding.PlayerIndex.HeartbeatMs, c.Sharding.PlayerIndex.TTLSeconds)
			}
		}
		if c.Sharding.Instancing.Enabled {
			if err := requirePositive("sharding.instancing.capacity", c.Sharding.Instancing.Capacity); err != nil {
				return err
			}
			if c.Sharding.Instancing.ScaleUpThreshold <= c.Sharding.Instancing.ScaleDownThreshold {
				return fmt.Errorf("sharding.instancing.scale_up_threshold must exceed scale_down_threshold")
			}
			if err := requirePositive("sharding.instancing.min_instances", c.Sharding.Instancing.MinInstances); err != nil {
				return err
			}
		}
	}

	return nil
}

// validateStaticAssignments rejects duplicate zone ownership: in classic
// mode at most one engine may own a zone.
func validateStaticAssignments(assignments map[string]StaticAssignee) error {
	for zone, a := range assignments {
		if zone == "" {
			return fmt.Errorf("sharding.registry.assignments contains an empty zone name")
		}
		if a.EngineID == "" {
			return fmt.Errorf("sharding.registry.assignments.%s.engine_id must be set", zone)
		}
		if a.Host == "" {
			return fmt.Errorf("sharding.registry.assignments.%s.host must be set", zone)
		}
		if err := requirePort(fmt.Sprintf("sharding.registry.assignments.%s.port", zone), a.Port); err != nil {
			return err
		}
	}
	return nil
}

func requirePositive(path string, v int) error {
	if v <= 0 {
		return fmt.Errorf("%s must be > 0, got %d", path, v)
	}
	return nil
}

func requirePort(path string, v int) error {
	if v <= 0 || v > 65535 {
		return fmt.Errorf("%s must be a valid port, got %d", path, v)
	}
	return nil
}
