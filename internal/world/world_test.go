package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ambonmud/ambonmud/internal/model"
)

var testZone = []byte(`
zone: midgard
start_room: temple
rooms:
  - id: temple
    title: The Temple
    description: A quiet stone hall.
    exits:
      north: square
  - id: square
    title: The Square
    description: Market stalls everywhere.
    exits:
      south: temple
      east: utgard:gate
items:
  - id: sword
    name: a rusty sword
    slot: weapon
    damage_bonus: 2
mobs:
  - id: rat
    name: a giant rat
    level: 1
    max_hp: 10
    damage: 2
    xp_reward: 25
    wanders: true
spawns:
  - mob: rat
    room: square
    count: 2
ground_items:
  - item: sword
    room: temple
`)

func loadTestWorld(t *testing.T) *World {
	t.Helper()
	w, err := LoadFromBytes(testZone)
	require.NoError(t, err)
	return w
}

func TestLoadZone(t *testing.T) {
	w := loadTestWorld(t)

	assert.Equal(t, 2, w.RoomCount())
	assert.Equal(t, model.RoomID("midgard:temple"), w.StartRoom("midgard"))

	temple := w.Room("midgard:temple")
	require.NotNil(t, temple)
	assert.Equal(t, "The Temple", temple.Title)
	dst, ok := temple.Exit(model.North)
	require.True(t, ok)
	assert.Equal(t, model.RoomID("midgard:square"), dst)

	// Cross-zone exit is kept even though utgard is not loaded here.
	square := w.Room("midgard:square")
	dst, ok = square.Exit(model.East)
	require.True(t, ok)
	assert.Equal(t, model.RoomID("utgard:gate"), dst)

	require.NotNil(t, w.ItemTemplate("midgard:sword"))
	require.NotNil(t, w.MobTemplate("midgard:rat"))
	assert.Equal(t, []model.ItemID{"midgard:sword"}, w.ItemsInRoom("midgard:temple"))
}

func TestLoad_BrokenLocalExit(t *testing.T) {
	broken := []byte(`
zone: midgard
start_room: a
rooms:
  - id: a
    title: A
    description: x
    exits:
      north: nowhere
`)
	_, err := LoadFromBytes(broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing room")
}

func TestApplySpawns_OwnedZonesOnly(t *testing.T) {
	w := loadTestWorld(t)

	n := w.ApplySpawns(map[model.Zone]bool{"utgard": true})
	assert.Equal(t, 0, n)

	n = w.ApplySpawns(map[model.Zone]bool{"midgard": true})
	assert.Equal(t, 2, n)
	assert.Len(t, w.MobsInRoom("midgard:square"), 2)
}

func TestPlayerRegistry(t *testing.T) {
	w := loadTestWorld(t)
	p := &model.Player{SessionID: 1, Name: "Keth", RoomID: "midgard:temple"}
	require.NoError(t, w.AddPlayer(p))

	assert.Same(t, p, w.PlayerBySession(1))
	assert.Same(t, p, w.PlayerByName("keth"))
	assert.Same(t, p, w.PlayerByName("KETH"))
	assert.Len(t, w.PlayersInRoom("midgard:temple"), 1)

	// Duplicate session and duplicate name (case-insensitive) both fail.
	assert.Error(t, w.AddPlayer(&model.Player{SessionID: 1, Name: "Other"}))
	assert.Error(t, w.AddPlayer(&model.Player{SessionID: 2, Name: "keth"}))

	require.NoError(t, w.MovePlayer(1, "midgard:square"))
	assert.Empty(t, w.PlayersInRoom("midgard:temple"))
	assert.Len(t, w.PlayersInRoom("midgard:square"), 1)
	assert.Equal(t, model.RoomID("midgard:square"), p.RoomID)

	got := w.RemovePlayer(1)
	assert.Same(t, p, got)
	assert.Nil(t, w.PlayerBySession(1))
	assert.Nil(t, w.PlayerByName("keth"))
	assert.Nil(t, w.RemovePlayer(1))
}

func TestMobLifecycle(t *testing.T) {
	w := loadTestWorld(t)

	m := w.SpawnMob("midgard:rat", "midgard:temple")
	require.NotNil(t, m)
	assert.Equal(t, 10, m.HP)

	found := w.FindMobInRoom("midgard:temple", "rat")
	assert.Same(t, m, found)
	assert.Nil(t, w.FindMobInRoom("midgard:square", "rat"))

	require.NoError(t, w.MoveMob(m.InstanceID, "midgard:square"))
	assert.Empty(t, w.MobsInRoom("midgard:temple"))
	assert.Len(t, w.MobsInRoom("midgard:square"), 1)

	w.RemoveMob(m.InstanceID)
	assert.Nil(t, w.Mob(m.InstanceID))
	assert.Empty(t, w.MobsInRoom("midgard:square"))

	assert.Nil(t, w.SpawnMob("midgard:unknown", "midgard:temple"))
}

func TestGroundItems(t *testing.T) {
	w := loadTestWorld(t)

	id, ok := w.FindGroundItemByName("midgard:temple", "rusty sword")
	require.True(t, ok)
	assert.Equal(t, model.ItemID("midgard:sword"), id)

	require.True(t, w.TakeItem("midgard:temple", id))
	assert.False(t, w.TakeItem("midgard:temple", id))
	_, ok = w.FindGroundItemByName("midgard:temple", "sword")
	assert.False(t, ok)

	w.DropItem("midgard:square", id)
	assert.Equal(t, []model.ItemID{id}, w.ItemsInRoom("midgard:square"))
}

func TestPlayerCountByZone(t *testing.T) {
	w := loadTestWorld(t)
	require.NoError(t, w.AddPlayer(&model.Player{SessionID: 1, Name: "A", RoomID: "midgard:temple"}))
	require.NoError(t, w.AddPlayer(&model.Player{SessionID: 2, Name: "B", RoomID: "midgard:square"}))

	counts := w.PlayerCountByZone()
	assert.Equal(t, 2, counts["midgard"])
}
