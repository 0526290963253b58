package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ambonmud/ambonmud/internal/config"
	"github.com/ambonmud/ambonmud/internal/model"
)

// ScalingDecision is advisory: an external orchestrator subscribed to the
// decisions channel acts on it, this process never starts or stops engines.
type ScalingDecision struct {
	Zone      string    `json:"zone"`
	Action    string    `json:"action"` // "scale_up" or "scale_down"
	Instances int       `json:"instances"`
	AvgLoad   float64   `json:"avgLoad"`
	At        time.Time `json:"at"`
}

// Scaler watches per-zone aggregate load from the lease registry and
// publishes threshold crossings, one decision per zone per cooldown window.
type Scaler struct {
	registry *LeaseRegistry
	client   *redis.Client
	prefix   string
	cfg      config.Instancing
	now      func() time.Time

	lastDecision map[model.Zone]time.Time
}

// NewScaler builds the advisory scaler.
func NewScaler(registry *LeaseRegistry, client *redis.Client, prefix string, cfg config.Instancing) *Scaler {
	return &Scaler{
		registry:     registry,
		client:       client,
		prefix:       prefix,
		cfg:          cfg,
		now:          time.Now,
		lastDecision: make(map[model.Zone]time.Time),
	}
}

func (s *Scaler) channel() string { return s.prefix + ":scaling-decisions" }

// Evaluate inspects one zone and publishes a decision when a threshold is
// crossed and the zone is out of cooldown.
func (s *Scaler) Evaluate(ctx context.Context, zone model.Zone) {
	infos := s.registry.live(ctx, zone)
	if len(infos) == 0 {
		return
	}

	totalLoad, totalCap := 0, 0
	for _, info := range infos {
		totalLoad += info.Load
		c := info.Capacity
		if c <= 0 {
			c = s.cfg.Capacity
		}
		totalCap += c
	}
	if totalCap == 0 {
		return
	}
	avg := float64(totalLoad) / float64(totalCap)

	// Thresholds are inclusive: a zone sitting exactly on the line scales.
	var action string
	switch {
	case avg >= s.cfg.ScaleUpThreshold:
		action = "scale_up"
	case avg <= s.cfg.ScaleDownThreshold && len(infos) > s.cfg.MinInstances:
		action = "scale_down"
	default:
		return
	}

	cooldown := time.Duration(s.cfg.CooldownSeconds) * time.Second
	if last, ok := s.lastDecision[zone]; ok && s.now().Sub(last) < cooldown {
		return
	}
	s.lastDecision[zone] = s.now()

	dec := ScalingDecision{
		Zone:      string(zone),
		Action:    action,
		Instances: len(infos),
		AvgLoad:   avg,
		At:        s.now(),
	}
	data, err := json.Marshal(dec)
	if err != nil {
		slog.Error("encode scaling decision", "zone", zone, "error", err)
		return
	}
	if err := s.client.Publish(ctx, s.channel(), data).Err(); err != nil {
		slog.Warn("publish scaling decision failed", "zone", zone, "error", err)
		return
	}
	slog.Info("scaling decision published",
		"zone", zone, "action", action, "instances", len(infos),
		"avg_load", fmt.Sprintf("%.2f", avg))
}
