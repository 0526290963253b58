package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ambonmud/ambonmud/internal/bus"
	"github.com/ambonmud/ambonmud/internal/cluster"
	"github.com/ambonmud/ambonmud/internal/config"
	"github.com/ambonmud/ambonmud/internal/engine"
	"github.com/ambonmud/ambonmud/internal/outbound"
	"github.com/ambonmud/ambonmud/internal/persist"
	"github.com/ambonmud/ambonmud/internal/transport"
	"github.com/ambonmud/ambonmud/internal/transport/telnet"
	"github.com/ambonmud/ambonmud/internal/transport/ws"
	"github.com/ambonmud/ambonmud/internal/world"
)

const defaultConfigPath = "config/ambonmud.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cancel); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stop context.CancelFunc) error {
	cfgPath := defaultConfigPath
	if p := os.Getenv("AMBONMUD_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("ambonmud starting",
		"log_level", cfg.LogLevel,
		"telnet_port", cfg.Server.TelnetPort,
		"web_port", cfg.Server.WebPort,
		"sharding", cfg.Sharding.Enabled)

	w, err := world.Load(cfg.World.Resources)
	if err != nil {
		return fmt.Errorf("loading world: %w", err)
	}

	var rdb *redis.Client
	if cfg.Sharding.Enabled || cfg.Persistence.Cache.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis %s: %w", cfg.Redis.Addr, err)
		}
		slog.Info("redis connected", "addr", cfg.Redis.Addr)
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	if cfg.Persistence.Cache.Enabled {
		store = persist.WithPlayerCache(store, rdb, cfg.Redis.Prefix,
			time.Duration(cfg.Persistence.Cache.TTLSeconds)*time.Second)
		slog.Info("player read cache enabled", "ttl_seconds", cfg.Persistence.Cache.TTLSeconds)
	}
	writer := persist.NewWriteBehind(store,
		time.Duration(cfg.Persistence.Worker.FlushIntervalMs)*time.Millisecond)

	in := bus.NewInbound(cfg.Server.InboundChannelCapacity)
	out := outbound.NewRouter(cfg.Server.OutboundChannelCapacity, cfg.Server.SessionOutboundQueueCapacity)

	fabric, err := buildCluster(cfg, rdb)
	if err != nil {
		return err
	}

	eng := engine.New(cfg, engine.Deps{
		World:    w,
		Inbound:  in,
		Out:      out,
		Store:    store,
		Writer:   writer,
		Bus:      fabric.bus,
		Registry: fabric.registry,
		Leases:   fabric.leases,
		Index:    fabric.index,
		Scaler:   fabric.scaler,
		Stop:     stop,
	})

	ids := &transport.IDAllocator{}
	telnetSrv := telnet.NewServer(cfg.Transport, cfg.Server.TelnetPort, in, out, ids)
	wsSrv := ws.NewServer(cfg.Transport, cfg.Server.WebPort, in, out, ids)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return out.Run(gctx) })
	g.Go(func() error { return writer.Run(gctx) })
	g.Go(func() error { return fabric.bus.Run(gctx) })
	if fabric.index != nil {
		g.Go(func() error { return fabric.index.Run(gctx) })
	}
	g.Go(func() error { return telnetSrv.Run(gctx) })
	g.Go(func() error { return wsSrv.Run(gctx) })
	g.Go(func() error { return eng.Run(gctx) })

	err = g.Wait()
	in.Close()
	if cerr := fabric.bus.Close(); cerr != nil {
		slog.Warn("closing cluster bus", "error", cerr)
	}
	slog.Info("ambonmud stopped")
	return err
}

// openStore builds the configured persistence backend.
func openStore(ctx context.Context, cfg config.Config) (persist.Store, func(), error) {
	switch cfg.Persistence.Backend {
	case "relational":
		dsn := cfg.Persistence.Database.DSN()
		if err := persist.RunMigrations(ctx, dsn); err != nil {
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		pg, err := persist.NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		slog.Info("database connected",
			"host", cfg.Persistence.Database.Host, "db", cfg.Persistence.Database.DBName)
		return pg, pg.Close, nil
	default:
		fs, err := persist.NewFileStore(cfg.Persistence.RootDir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening file store: %w", err)
		}
		slog.Info("file store opened", "dir", cfg.Persistence.RootDir)
		return fs, func() {}, nil
	}
}

// clusterFabric is the sharding wiring; everything but the bus is nil in
// single-engine mode.
type clusterFabric struct {
	bus      cluster.Bus
	registry cluster.ZoneRegistry
	leases   *cluster.LeaseRegistry
	index    *cluster.LocationIndex
	scaler   *cluster.Scaler
}

func buildCluster(cfg config.Config, rdb *redis.Client) (clusterFabric, error) {
	engineID := cfg.Sharding.EngineID
	if !cfg.Sharding.Enabled {
		return clusterFabric{bus: cluster.NewLocalBus(engineID)}, nil
	}

	f := clusterFabric{
		bus: cluster.NewRedisBus(rdb, engineID, cfg.Redis.Prefix, cfg.Server.InboundChannelCapacity),
	}

	switch cfg.Sharding.Registry.Type {
	case "lease":
		self := cluster.EngineRef{
			EngineID: engineID,
			Host:     cfg.Sharding.AdvertiseHost,
			Port:     cfg.Sharding.AdvertisePort,
		}
		ttl := time.Duration(cfg.Sharding.Registry.LeaseTTLSeconds) * time.Second
		lr := cluster.NewLeaseRegistry(rdb, cfg.Redis.Prefix, self, ttl, cfg.Sharding.Instancing.Capacity)
		f.leases = lr
		f.registry = lr
		if cfg.Sharding.Instancing.Enabled {
			f.scaler = cluster.NewScaler(lr, rdb, cfg.Redis.Prefix, cfg.Sharding.Instancing)
		}
	default:
		sr, err := cluster.NewStaticRegistry(cfg.Sharding.Registry.Assignments)
		if err != nil {
			return clusterFabric{}, fmt.Errorf("building zone registry: %w", err)
		}
		f.registry = sr
	}

	if cfg.Sharding.PlayerIndex.Enabled {
		f.index = cluster.NewLocationIndex(rdb, cfg.Redis.Prefix, engineID,
			time.Duration(cfg.Sharding.PlayerIndex.TTLSeconds)*time.Second)
	}
	return f, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
