package cluster

import (
	"context"
	"fmt"
	"sort"

	"github.com/ambonmud/ambonmud/internal/config"
	"github.com/ambonmud/ambonmud/internal/model"
)

// EngineRef locates one engine instance.
type EngineRef struct {
	EngineID string
	Host     string
	Port     int
}

// ZoneRegistry answers which engine owns a zone. PickInstance prefers the
// sticky engine when it is still viable, keeping party members together.
type ZoneRegistry interface {
	// PickInstance resolves the engine for a zone. stickyEngineID may be
	// empty. ok=false when no engine hosts the zone.
	PickInstance(ctx context.Context, zone model.Zone, stickyEngineID string) (EngineRef, bool)
	// Instances lists every live engine hosting the zone.
	Instances(ctx context.Context, zone model.Zone) []EngineRef
}

// StaticRegistry maps zones to engines from configuration, fixed for the
// process lifetime.
type StaticRegistry struct {
	assignments map[model.Zone]EngineRef
}

// NewStaticRegistry validates the configured assignments. The same zone
// assigned to two engines is a configuration error, as is an empty target.
func NewStaticRegistry(assignments map[string]config.StaticAssignee) (*StaticRegistry, error) {
	out := make(map[model.Zone]EngineRef, len(assignments))
	for zone, a := range assignments {
		if a.EngineID == "" {
			return nil, fmt.Errorf("static registry: zone %q has no engine_id", zone)
		}
		out[model.Zone(zone)] = EngineRef{EngineID: a.EngineID, Host: a.Host, Port: a.Port}
	}
	return &StaticRegistry{assignments: out}, nil
}

func (r *StaticRegistry) PickInstance(_ context.Context, zone model.Zone, _ string) (EngineRef, bool) {
	ref, ok := r.assignments[zone]
	return ref, ok
}

func (r *StaticRegistry) Instances(_ context.Context, zone model.Zone) []EngineRef {
	if ref, ok := r.assignments[zone]; ok {
		return []EngineRef{ref}
	}
	return nil
}

// Zones lists the assigned zones in stable order.
func (r *StaticRegistry) Zones() []model.Zone {
	zones := make([]model.Zone, 0, len(r.assignments))
	for z := range r.assignments {
		zones = append(zones, z)
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i] < zones[j] })
	return zones
}

var _ ZoneRegistry = (*StaticRegistry)(nil)
