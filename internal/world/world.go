// Package world holds the in-memory authoritative game state: the immutable
// room/template content loaded at startup and the runtime registries for
// players, mobs and ground items.
//
// The engine loop is the sole writer of everything here; there are no locks
// by design. Read-only snapshots taken during emission stay on the engine
// goroutine.
package world

import (
	"fmt"
	"strings"

	"github.com/ambonmud/ambonmud/internal/model"
)

// World is the per-engine authoritative state.
type World struct {
	rooms         map[model.RoomID]*model.Room
	startRooms    map[model.Zone]model.RoomID
	defaultStart  model.RoomID
	itemTemplates map[model.ItemID]*model.ItemTemplate
	mobTemplates  map[model.MobID]*model.MobTemplate
	spawns        []Spawn

	players       map[model.SessionID]*model.Player
	playersByName map[string]*model.Player // lowercased name
	playersByRoom map[model.RoomID]map[model.SessionID]*model.Player

	mobs       map[model.MobInstanceID]*model.Mob
	mobsByRoom map[model.RoomID]map[model.MobInstanceID]*model.Mob
	nextMob    model.MobInstanceID

	groundItems map[model.RoomID][]model.ItemID
}

// Spawn places count instances of a mob template in a room at startup.
type Spawn struct {
	Mob   model.MobID
	Room  model.RoomID
	Count int
}

// New returns an empty world; content arrives via the loader.
func New() *World {
	return &World{
		rooms:         make(map[model.RoomID]*model.Room),
		startRooms:    make(map[model.Zone]model.RoomID),
		itemTemplates: make(map[model.ItemID]*model.ItemTemplate),
		mobTemplates:  make(map[model.MobID]*model.MobTemplate),
		players:       make(map[model.SessionID]*model.Player),
		playersByName: make(map[string]*model.Player),
		playersByRoom: make(map[model.RoomID]map[model.SessionID]*model.Player),
		mobs:          make(map[model.MobInstanceID]*model.Mob),
		mobsByRoom:    make(map[model.RoomID]map[model.MobInstanceID]*model.Mob),
		groundItems:   make(map[model.RoomID][]model.ItemID),
	}
}

// Room returns the room for id, nil when unknown.
func (w *World) Room(id model.RoomID) *model.Room {
	return w.rooms[id]
}

// RoomCount is the number of loaded rooms.
func (w *World) RoomCount() int { return len(w.rooms) }

// Zones lists every zone that contributed rooms.
func (w *World) Zones() []model.Zone {
	seen := make(map[model.Zone]bool)
	var out []model.Zone
	for id := range w.rooms {
		z := id.Zone()
		if !seen[z] {
			seen[z] = true
			out = append(out, z)
		}
	}
	return out
}

// StartRoom returns the zone's configured start room, falling back to the
// first loaded zone's start when the zone is unknown.
func (w *World) StartRoom(zone model.Zone) model.RoomID {
	if id, ok := w.startRooms[zone]; ok {
		return id
	}
	return w.defaultStart
}

// DefaultStartRoom is where fresh characters appear.
func (w *World) DefaultStartRoom() model.RoomID { return w.defaultStart }

// ItemTemplate returns the template for id, nil when unknown.
func (w *World) ItemTemplate(id model.ItemID) *model.ItemTemplate {
	return w.itemTemplates[id]
}

// ItemTemplates exposes the full template table for bonus computation.
func (w *World) ItemTemplates() map[model.ItemID]*model.ItemTemplate {
	return w.itemTemplates
}

// MobTemplate returns the template for id, nil when unknown.
func (w *World) MobTemplate(id model.MobID) *model.MobTemplate {
	return w.mobTemplates[id]
}

// FindItemTemplateByName matches a template by case-insensitive name or
// local id among the loaded content.
func (w *World) FindItemTemplateByName(name string) *model.ItemTemplate {
	lower := strings.ToLower(name)
	for _, t := range w.itemTemplates {
		if strings.ToLower(t.Name) == lower || strings.EqualFold(t.ID.Local(), name) {
			return t
		}
	}
	return nil
}

// --- players ---

// AddPlayer registers an online player. Fails when the session is already
// bound or the name is online case-insensitively.
func (w *World) AddPlayer(p *model.Player) error {
	if _, ok := w.players[p.SessionID]; ok {
		return fmt.Errorf("session %d already bound", p.SessionID)
	}
	lower := strings.ToLower(p.Name)
	if _, ok := w.playersByName[lower]; ok {
		return fmt.Errorf("player %q already online", p.Name)
	}
	w.players[p.SessionID] = p
	w.playersByName[lower] = p
	w.roomPlayers(p.RoomID)[p.SessionID] = p
	return nil
}

// RemovePlayer unbinds a session; returns the player, nil when absent.
func (w *World) RemovePlayer(sid model.SessionID) *model.Player {
	p, ok := w.players[sid]
	if !ok {
		return nil
	}
	delete(w.players, sid)
	delete(w.playersByName, strings.ToLower(p.Name))
	delete(w.roomPlayers(p.RoomID), sid)
	return p
}

// PlayerBySession returns the player bound to a session, nil when none.
func (w *World) PlayerBySession(sid model.SessionID) *model.Player {
	return w.players[sid]
}

// PlayerByName looks up an online player case-insensitively.
func (w *World) PlayerByName(name string) *model.Player {
	return w.playersByName[strings.ToLower(name)]
}

// Players returns every online player on this engine.
func (w *World) Players() []*model.Player {
	out := make([]*model.Player, 0, len(w.players))
	for _, p := range w.players {
		out = append(out, p)
	}
	return out
}

// PlayerCount is the number of online players.
func (w *World) PlayerCount() int { return len(w.players) }

// PlayersInRoom returns the players currently in a room.
func (w *World) PlayersInRoom(room model.RoomID) []*model.Player {
	members := w.playersByRoom[room]
	out := make([]*model.Player, 0, len(members))
	for _, p := range members {
		out = append(out, p)
	}
	return out
}

// PlayerCountByZone counts online players per zone, for load reporting.
func (w *World) PlayerCountByZone() map[model.Zone]int {
	out := make(map[model.Zone]int)
	for _, p := range w.players {
		out[p.RoomID.Zone()]++
	}
	return out
}

// MovePlayer relocates a player between rooms, keeping the room index
// consistent.
func (w *World) MovePlayer(sid model.SessionID, to model.RoomID) error {
	p, ok := w.players[sid]
	if !ok {
		return fmt.Errorf("session %d not bound", sid)
	}
	delete(w.roomPlayers(p.RoomID), sid)
	p.RoomID = to
	w.roomPlayers(to)[sid] = p
	return nil
}

func (w *World) roomPlayers(room model.RoomID) map[model.SessionID]*model.Player {
	m, ok := w.playersByRoom[room]
	if !ok {
		m = make(map[model.SessionID]*model.Player)
		w.playersByRoom[room] = m
	}
	return m
}

// --- mobs ---

// SpawnMob creates a live mob from a template. Returns nil for an unknown
// template.
func (w *World) SpawnMob(tmplID model.MobID, room model.RoomID) *model.Mob {
	tmpl, ok := w.mobTemplates[tmplID]
	if !ok {
		return nil
	}
	w.nextMob++
	m := &model.Mob{
		InstanceID: w.nextMob,
		TemplateID: tmplID,
		RoomID:     room,
		HP:         tmpl.MaxHP,
	}
	w.mobs[m.InstanceID] = m
	w.roomMobs(room)[m.InstanceID] = m
	return m
}

// ApplySpawns instantiates startup spawns, restricted to zones this engine
// owns (nil owned = all zones local).
func (w *World) ApplySpawns(owned map[model.Zone]bool) int {
	n := 0
	for _, s := range w.spawns {
		if owned != nil && !owned[s.Room.Zone()] {
			continue
		}
		for range s.Count {
			if w.SpawnMob(s.Mob, s.Room) != nil {
				n++
			}
		}
	}
	return n
}

// Mob returns a live mob by instance id, nil when gone.
func (w *World) Mob(id model.MobInstanceID) *model.Mob {
	return w.mobs[id]
}

// Mobs returns every live mob.
func (w *World) Mobs() []*model.Mob {
	out := make([]*model.Mob, 0, len(w.mobs))
	for _, m := range w.mobs {
		out = append(out, m)
	}
	return out
}

// MobsInRoom returns the live mobs in a room.
func (w *World) MobsInRoom(room model.RoomID) []*model.Mob {
	members := w.mobsByRoom[room]
	out := make([]*model.Mob, 0, len(members))
	for _, m := range members {
		out = append(out, m)
	}
	return out
}

// FindMobInRoom matches a live mob in a room by case-insensitive template
// name or local id.
func (w *World) FindMobInRoom(room model.RoomID, name string) *model.Mob {
	for _, m := range w.mobsByRoom[room] {
		tmpl := w.mobTemplates[m.TemplateID]
		if tmpl == nil {
			continue
		}
		if strings.EqualFold(tmpl.Name, name) ||
			strings.Contains(strings.ToLower(tmpl.Name), strings.ToLower(name)) ||
			strings.EqualFold(tmpl.ID.Local(), name) {
			return m
		}
	}
	return nil
}

// MoveMob relocates a live mob.
func (w *World) MoveMob(id model.MobInstanceID, to model.RoomID) error {
	m, ok := w.mobs[id]
	if !ok {
		return fmt.Errorf("mob %d not found", id)
	}
	delete(w.roomMobs(m.RoomID), id)
	m.RoomID = to
	w.roomMobs(to)[id] = m
	return nil
}

// RemoveMob deletes a live mob (death or despawn).
func (w *World) RemoveMob(id model.MobInstanceID) {
	m, ok := w.mobs[id]
	if !ok {
		return
	}
	delete(w.mobs, id)
	delete(w.roomMobs(m.RoomID), id)
}

func (w *World) roomMobs(room model.RoomID) map[model.MobInstanceID]*model.Mob {
	m, ok := w.mobsByRoom[room]
	if !ok {
		m = make(map[model.MobInstanceID]*model.Mob)
		w.mobsByRoom[room] = m
	}
	return m
}

// --- ground items ---

// ItemsInRoom returns the item templates lying in a room.
func (w *World) ItemsInRoom(room model.RoomID) []model.ItemID {
	return w.groundItems[room]
}

// DropItem puts an item on the room floor.
func (w *World) DropItem(room model.RoomID, item model.ItemID) {
	w.groundItems[room] = append(w.groundItems[room], item)
}

// TakeItem removes one occurrence of an item from the room floor.
func (w *World) TakeItem(room model.RoomID, item model.ItemID) bool {
	items := w.groundItems[room]
	for i, it := range items {
		if it == item {
			w.groundItems[room] = append(items[:i], items[i+1:]...)
			return true
		}
	}
	return false
}

// FindGroundItemByName matches a floor item in a room by template name.
func (w *World) FindGroundItemByName(room model.RoomID, name string) (model.ItemID, bool) {
	for _, id := range w.groundItems[room] {
		t := w.itemTemplates[id]
		if t == nil {
			continue
		}
		if strings.EqualFold(t.Name, name) ||
			strings.Contains(strings.ToLower(t.Name), strings.ToLower(name)) ||
			strings.EqualFold(t.ID.Local(), name) {
			return id, true
		}
	}
	return "", false
}
