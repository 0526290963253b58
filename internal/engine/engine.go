// Package engine runs the simulation: a single-writer tick loop that drains
// inbound session events, dispatches commands, runs the periodic systems and
// exchanges cluster messages. Nothing else mutates the world.
package engine

import (
	"context"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/ambonmud/ambonmud/internal/auth"
	"github.com/ambonmud/ambonmud/internal/bus"
	"github.com/ambonmud/ambonmud/internal/cluster"
	"github.com/ambonmud/ambonmud/internal/command"
	"github.com/ambonmud/ambonmud/internal/config"
	"github.com/ambonmud/ambonmud/internal/event"
	"github.com/ambonmud/ambonmud/internal/model"
	"github.com/ambonmud/ambonmud/internal/outbound"
	"github.com/ambonmud/ambonmud/internal/persist"
	"github.com/ambonmud/ambonmud/internal/render"
	"github.com/ambonmud/ambonmud/internal/world"
)

// Deps are the collaborators the engine drives. Registry, Index and Scaler
// may be nil when sharding is off.
type Deps struct {
	World    *world.World
	Inbound  *bus.Inbound
	Out      *outbound.Router
	Store    persist.Store
	Writer   *persist.WriteBehind
	Bus      cluster.Bus
	Registry cluster.ZoneRegistry
	Leases   *cluster.LeaseRegistry
	Index    *cluster.LocationIndex
	Scaler   *cluster.Scaler
	// Stop requests a process-wide graceful shutdown (staff shutdown
	// command, cluster shutdown message).
	Stop context.CancelFunc
}

// whoPending aggregates cross-engine who responses until its deadline.
type whoPending struct {
	session  model.SessionID
	entries  []cluster.WhoEntry
	deadline time.Time
}

// Engine is the single-writer simulation loop for the zones this instance
// owns.
type Engine struct {
	cfg      config.Config
	engineID string
	deps     Deps

	sessions map[model.SessionID]*session
	dir      *directory
	routes   map[reflect.Type]handlerFunc
	handoffs *cluster.HandoffManager
	owned    map[model.Zone]bool

	pendingWho map[string]*whoPending

	// periodic system bookkeeping
	lastCombat   time.Time
	lastWander   time.Time
	lastLease    time.Time
	lastIndex    time.Time
	combatCursor int
	regenCursor  int
	regenDue     map[model.SessionID]time.Time

	now func() time.Time
}

// New wires an engine. Owned zones default to every loaded zone when
// sharding is disabled.
func New(cfg config.Config, deps Deps) *Engine {
	engineID := cfg.Sharding.EngineID
	if engineID == "" {
		engineID = "engine-1"
	}

	owned := make(map[model.Zone]bool)
	if cfg.Sharding.Enabled && len(cfg.Sharding.Zones) > 0 {
		for _, z := range cfg.Sharding.Zones {
			owned[model.Zone(z)] = true
		}
	} else {
		for _, z := range deps.World.Zones() {
			owned[z] = true
		}
	}

	e := &Engine{
		cfg:        cfg,
		engineID:   engineID,
		deps:       deps,
		sessions:   make(map[model.SessionID]*session),
		handoffs:   cluster.NewHandoffManager(engineID, time.Duration(cfg.Sharding.Handoff.AckTimeoutMs)*time.Millisecond),
		owned:      owned,
		pendingWho: make(map[string]*whoPending),
		regenDue:   make(map[model.SessionID]time.Time),
		now:        time.Now,
	}
	e.dir = &directory{world: deps.World, store: deps.Store}
	e.routes = buildRoutes(e)
	return e
}

// EngineID is this instance's cluster identity.
func (e *Engine) EngineID() string { return e.engineID }

// OwnsZone reports whether this engine simulates the zone.
func (e *Engine) OwnsZone(z model.Zone) bool { return e.owned[z] }

// Run ticks until ctx is done, then flushes every online player.
func (e *Engine) Run(ctx context.Context) error {
	e.dir.ctx = ctx

	spawned := e.deps.World.ApplySpawns(e.ownedOrNil())
	slog.Info("engine started",
		"engine", e.engineID,
		"rooms", e.deps.World.RoomCount(),
		"mobs_spawned", spawned,
		"zones", len(e.owned))

	tick := time.NewTicker(time.Duration(e.cfg.Server.TickMillis) * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			e.saveAllOnline()
			slog.Info("engine stopped", "engine", e.engineID)
			return nil
		case <-tick.C:
			e.tick()
		}
	}
}

func (e *Engine) ownedOrNil() map[model.Zone]bool {
	if e.cfg.Sharding.Enabled {
		return e.owned
	}
	return nil
}

// tick is one simulation step: inbound events first, then cluster messages,
// then the periodic systems.
func (e *Engine) tick() {
	e.drainInbound()
	e.drainCluster()
	e.runSystems(e.now())
}

func (e *Engine) drainInbound() {
	budget := e.cfg.Server.MaxInboundEventsPerTick
	for range budget {
		select {
		case ev, ok := <-e.deps.Inbound.Receive():
			if !ok {
				return
			}
			e.handleInbound(ev)
		default:
			return
		}
	}
}

func (e *Engine) handleInbound(ev event.Inbound) {
	switch v := ev.(type) {
	case event.Connected:
		e.onConnected(v)
	case event.LineReceived:
		e.onLine(v)
	case event.StructuredReceived:
		e.onStructured(v)
	case event.Disconnected:
		e.onDisconnected(v)
	}
}

func (e *Engine) onConnected(ev event.Connected) {
	if _, dup := e.sessions[ev.SessionID]; dup {
		slog.Warn("duplicate connect ignored", "session", ev.SessionID)
		return
	}
	e.sessions[ev.SessionID] = newSession(ev.SessionID, ev.AnsiDefault)
	slog.Info("session connected", "session", ev.SessionID, "ansi", ev.AnsiDefault)
	e.publish(event.ShowLoginScreen{SessionID: ev.SessionID})
	e.prompt(ev.SessionID)
}

func (e *Engine) onLine(ev event.LineReceived) {
	s, ok := e.sessions[ev.SessionID]
	if !ok {
		return
	}
	if e.handoffs.InTransit(s.id) {
		return // player is mid-handoff; input resumes on the new engine
	}
	if !s.authed() {
		e.stepAuth(s, ev.Line)
		return
	}
	cmd := command.Parse(ev.Line)
	e.dispatch(s, cmd)
	if _, alive := e.sessions[s.id]; alive {
		e.prompt(s.id)
	}
}

func (e *Engine) stepAuth(s *session, line string) {
	lim := auth.Limits{
		MaxWrongPasswordRetries:        e.cfg.Login.MaxWrongPasswordRetries,
		MaxFailedAttemptsBeforeDisconn: e.cfg.Login.MaxFailedAttemptsBeforeDisconnect,
	}
	res := s.flow.Step(line, e.dir, emitter{out: e.deps.Out, sid: s.id}, lim)
	if res.Disconnect {
		e.publish(event.Close{
			SessionID: s.id,
			Reason:    "too many failed login attempts",
			Goodbye:   "Too many failed attempts. Goodbye.",
		})
		delete(e.sessions, s.id)
		return
	}
	if res.Player != nil {
		e.bindPlayer(s, res.Player)
	}
}

// bindPlayer puts an authenticated player into the world and shows them in.
func (e *Engine) bindPlayer(s *session, p *model.Player) {
	p.SessionID = s.id
	if p.RoomID == "" || e.deps.World.Room(p.RoomID) == nil {
		p.RoomID = e.deps.World.DefaultStartRoom()
	}
	if err := e.deps.World.AddPlayer(p); err != nil {
		slog.Warn("player bind failed", "session", s.id, "name", p.Name, "error", err)
		e.sendError(s.id, "That character is already in the world.")
		e.publish(event.ShowLoginScreen{SessionID: s.id})
		s.flow = &auth.Flow{}
		s.player = nil
		e.prompt(s.id)
		return
	}
	s.player = p
	e.regenDue[s.id] = e.now().Add(e.regenInterval(p))

	slog.Info("player entered", "session", s.id, "name", p.Name, "room", p.RoomID)
	e.sendInfo(s.id, "Welcome, "+p.Name+"!")
	e.roomAnnounce(p.RoomID, s.id, p.Name+" has entered the world.")
	e.showRoom(s, false)
	e.emitVitals(s)

	if e.deps.Index != nil {
		e.deps.Index.Register(strings.ToLower(p.Name))
	}
	e.markDirty(p)
	e.prompt(s.id)
}

func (e *Engine) onDisconnected(ev event.Disconnected) {
	s, ok := e.sessions[ev.SessionID]
	if !ok {
		return
	}
	delete(e.sessions, ev.SessionID)
	e.handoffs.Cancel(ev.SessionID)
	e.handoffs.Release(ev.SessionID)

	if s.player != nil {
		p := e.deps.World.RemovePlayer(ev.SessionID)
		if p != nil {
			e.markDirty(p)
			e.roomAnnounce(p.RoomID, 0, p.Name+" has left the world.")
			if e.deps.Index != nil {
				e.deps.Index.Unregister(strings.ToLower(p.Name))
			}
		}
	}
	delete(e.regenDue, ev.SessionID)
	e.deps.Out.Unregister(ev.SessionID)
	slog.Info("session closed", "session", ev.SessionID, "reason", ev.Reason)
}

// closeSession tears a session down from the engine side: goodbye text,
// transport close, world removal.
func (e *Engine) closeSession(s *session, reason, goodbye string) {
	if s.player != nil {
		p := e.deps.World.RemovePlayer(s.id)
		if p != nil {
			e.markDirty(p)
			e.roomAnnounce(p.RoomID, 0, p.Name+" has left the world.")
			if e.deps.Index != nil {
				e.deps.Index.Unregister(strings.ToLower(p.Name))
			}
		}
	}
	delete(e.sessions, s.id)
	delete(e.regenDue, s.id)
	e.publish(event.Close{SessionID: s.id, Reason: reason, Goodbye: goodbye})
}

// saveAllOnline dirty-marks every online player, for shutdown flush.
func (e *Engine) saveAllOnline() {
	for _, p := range e.deps.World.Players() {
		e.markDirty(p)
	}
	if e.deps.Leases != nil {
		ctx, cancel := e.clusterCtx()
		e.deps.Leases.Withdraw(ctx, e.ownedZoneList())
		cancel()
	}
}

func (e *Engine) ownedZoneList() []model.Zone {
	out := make([]model.Zone, 0, len(e.owned))
	for z := range e.owned {
		out = append(out, z)
	}
	return out
}

// clusterOpTimeout bounds every Redis-backed call made from the tick loop;
// a stalled broker must not stall the simulation.
const clusterOpTimeout = 2 * time.Second

func (e *Engine) clusterCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), clusterOpTimeout)
}

// markDirty snapshots the player into the write-behind layer.
func (e *Engine) markDirty(p *model.Player) {
	if e.deps.Writer == nil || !p.AccountBound {
		return
	}
	e.deps.Writer.MarkDirty(persist.RecordFromPlayer(p, e.now()))
}

// --- outbound helpers ---

func (e *Engine) publish(ev event.Outbound) { e.deps.Out.Publish(ev) }

func (e *Engine) sendText(sid model.SessionID, text string) {
	e.publish(event.SendText{SessionID: sid, Text: text, Kind: event.KindNormal})
}

func (e *Engine) sendInfo(sid model.SessionID, text string) {
	e.publish(event.SendText{SessionID: sid, Text: text, Kind: event.KindInfo})
}

func (e *Engine) sendError(sid model.SessionID, text string) {
	e.publish(event.SendText{SessionID: sid, Text: text, Kind: event.KindError})
}

func (e *Engine) prompt(sid model.SessionID) {
	e.publish(event.SendPrompt{SessionID: sid, Text: render.DefaultPrompt})
}

// roomAnnounce sends a line to everyone in the room except the given
// session (zero excludes nobody).
func (e *Engine) roomAnnounce(room model.RoomID, except model.SessionID, text string) {
	for _, p := range e.deps.World.PlayersInRoom(room) {
		if p.SessionID == except {
			continue
		}
		e.sendText(p.SessionID, text)
		e.prompt(p.SessionID)
	}
}
