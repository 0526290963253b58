package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ambonmud/ambonmud/internal/cluster"
	"github.com/ambonmud/ambonmud/internal/config"
	"github.com/ambonmud/ambonmud/internal/event"
	"github.com/ambonmud/ambonmud/internal/model"
)

const shardMidgard = `
zone: midgard
start_room: temple
rooms:
  - id: temple
    title: The Temple of Midgard
    description: Sunlight falls through the broken roof.
    exits: {east: "east:road"}
`

const shardEast = `
zone: east
start_room: road
rooms:
  - id: road
    title: The East Road
    description: A dusty road runs toward the rising sun.
    exits: {west: "midgard:temple", east: hill}
  - id: hill
    title: Windy Hill
    description: The road climbs a bare hill.
    exits: {west: road}
`

// testBus connects two in-process engines, pushing every message through
// the real envelope codec.
type testBus struct {
	id    string
	in    chan cluster.Delivery
	peers map[string]*testBus
}

func newTestBusPair(a, b string) (*testBus, *testBus) {
	ba := &testBus{id: a, in: make(chan cluster.Delivery, 64), peers: make(map[string]*testBus)}
	bb := &testBus{id: b, in: make(chan cluster.Delivery, 64), peers: make(map[string]*testBus)}
	ba.peers[b] = bb
	bb.peers[a] = ba
	return ba, bb
}

func (b *testBus) relay(to *testBus, target string, msg cluster.Message) error {
	data, err := cluster.Encode(b.id, target, msg)
	if err != nil {
		return err
	}
	env, decoded, err := cluster.Decode(data)
	if err != nil {
		return err
	}
	to.in <- cluster.Delivery{From: env.SenderEngineID, Msg: decoded}
	return nil
}

func (b *testBus) Broadcast(_ context.Context, msg cluster.Message) error {
	for _, p := range b.peers {
		if err := b.relay(p, "", msg); err != nil {
			return err
		}
	}
	return nil
}

func (b *testBus) SendTo(_ context.Context, engineID string, msg cluster.Message) error {
	if engineID == b.id {
		return b.relay(b, engineID, msg)
	}
	p, ok := b.peers[engineID]
	if !ok {
		return fmt.Errorf("no route to %s", engineID)
	}
	return b.relay(p, engineID, msg)
}

func (b *testBus) Incoming() <-chan cluster.Delivery { return b.in }

func (b *testBus) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (b *testBus) Close() error { return nil }

var _ cluster.Bus = (*testBus)(nil)

func shardConfig(engineID string, zones ...string) config.Config {
	cfg := config.Default()
	cfg.Sharding.Enabled = true
	cfg.Sharding.EngineID = engineID
	cfg.Sharding.Zones = zones
	cfg.Sharding.Handoff.AckTimeoutMs = 3000
	return cfg
}

func shardRegistry(t *testing.T) *cluster.StaticRegistry {
	t.Helper()
	reg, err := cluster.NewStaticRegistry(map[string]config.StaticAssignee{
		"midgard": {EngineID: "engine-1", Host: "10.0.0.1", Port: 9001},
		"east":    {EngineID: "engine-2", Host: "10.0.0.2", Port: 9002},
	})
	require.NoError(t, err)
	return reg
}

// newShardPair builds engine-1 hosting midgard and engine-2 hosting east,
// joined by a testBus.
func newShardPair(t *testing.T) (*harness, *harness) {
	t.Helper()
	b1, b2 := newTestBusPair("engine-1", "engine-2")
	reg := shardRegistry(t)
	h1 := newHarness(t, shardConfig("engine-1", "midgard"), b1, reg, shardMidgard)
	h2 := newHarness(t, shardConfig("engine-2", "east"), b2, reg, shardEast)
	return h1, h2
}

// expectRedirect reads frames until the Session.Redirect payload arrives.
func (h *harness) expectRedirect(id model.SessionID) map[string]any {
	h.t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case f, ok := <-h.frames[id]:
			if !ok {
				h.t.Fatalf("session %d closed before redirect arrived", id)
			}
			sf, isStructured := f.(event.StructuredFrame)
			if !isStructured || sf.Package != "Session.Redirect" {
				continue
			}
			var payload map[string]any
			require.NoError(h.t, json.Unmarshal(sf.Data, &payload))
			return payload
		case <-timeout:
			h.t.Fatalf("session %d: redirect never arrived", id)
		}
	}
}

func TestHandoffHappyPath(t *testing.T) {
	h1, h2 := newShardPair(t)

	h1.connectFramed(1)
	h1.send(1, "3")
	h1.expect(1, "Welcome, Guest1!")

	h1.send(1, "east")
	h1.expect(1, "The world shimmers...")
	// The player leaves this engine's simulation immediately.
	assert.Nil(t, h1.eng.deps.World.PlayerByName("guest1"))
	assert.True(t, h1.eng.handoffs.InTransit(1))

	// The target engine materializes the player and acks.
	h2.eng.tick()
	p := h2.eng.deps.World.PlayerByName("guest1")
	require.NotNil(t, p)
	assert.Equal(t, model.RoomID("east:road"), p.RoomID)

	// Back on the source: redirect the session, then close it.
	h1.eng.tick()
	payload := h1.expectRedirect(1)
	assert.Equal(t, "engine-2", payload["engineId"])
	assert.Equal(t, "10.0.0.2", payload["host"])
	assert.Equal(t, float64(9002), payload["port"])
	h1.expectClosed(1)
	assert.Empty(t, h1.eng.sessions)
}

func TestHandoffTimeoutRollsBack(t *testing.T) {
	h1, h2 := newShardPair(t)

	h1.connectFramed(1)
	h1.send(1, "3")
	h1.expect(1, "Welcome, Guest1!")

	h1.send(1, "east")
	require.Nil(t, h1.eng.deps.World.PlayerByName("guest1"))

	// The target never answers; the ack timeout restores the player at
	// their origin room.
	h1.clk.Advance(4 * time.Second)
	h1.eng.tick()
	h1.expect(1, "The world shimmers, then settles. You remain where you are.")
	h1.expect(1, "The Temple of Midgard")

	p := h1.eng.deps.World.PlayerByName("guest1")
	require.NotNil(t, p)
	assert.Equal(t, model.RoomID("midgard:temple"), p.RoomID)

	// The ack that finally arrives is late and must not tear the session
	// down again.
	h2.eng.tick()
	h1.eng.tick()
	assert.NotNil(t, h1.eng.deps.World.PlayerByName("guest1"))
	h1.send(1, "look")
	h1.expect(1, "The Temple of Midgard")
}

func TestHandoffRejectedWhenZoneNotHosted(t *testing.T) {
	b1, b2 := newTestBusPair("engine-1", "engine-2")
	reg := shardRegistry(t)
	h1 := newHarness(t, shardConfig("engine-1", "midgard"), b1, reg, shardMidgard)
	// engine-2 is registered for east but actually hosts something else.
	h2 := newHarness(t, shardConfig("engine-2", "swamp"), b2, reg, shardEast)

	h1.connectFramed(1)
	h1.send(1, "3")
	h1.expect(1, "Welcome, Guest1!")

	h1.send(1, "east")
	h2.eng.tick()
	assert.Nil(t, h2.eng.deps.World.PlayerByName("guest1"))

	// Peek at the nack on its way back to engine-1.
	d := <-b1.in
	ack := d.Msg.(*cluster.HandoffAck)
	assert.False(t, ack.Accepted)
	assert.Equal(t, "Target room is not hosted on this engine", ack.Reason)
	b1.in <- d

	h1.eng.tick()
	h1.expect(1, "The world shimmers, then settles. You remain where you are.")
	p := h1.eng.deps.World.PlayerByName("guest1")
	require.NotNil(t, p)
	assert.Equal(t, model.RoomID("midgard:temple"), p.RoomID)
}

func TestHandoffDuplicateDeliveryNacked(t *testing.T) {
	b1, b2 := newTestBusPair("engine-1", "engine-2")
	reg := shardRegistry(t)
	h1 := newHarness(t, shardConfig("engine-1", "midgard"), b1, reg, shardMidgard)
	h2 := newHarness(t, shardConfig("engine-2", "east"), b2, reg, shardEast)

	h1.connectFramed(1)
	h1.send(1, "3")
	h1.expect(1, "Welcome, Guest1!")
	h1.send(1, "east")

	// Replay the handoff: the first copy binds, the second is refused.
	d := <-b2.in
	b2.in <- d
	b2.in <- d
	h2.eng.tick()

	first := (<-b1.in).Msg.(*cluster.HandoffAck)
	require.True(t, first.Accepted)
	second := (<-b1.in).Msg.(*cluster.HandoffAck)
	require.False(t, second.Accepted)
	assert.Equal(t, "Session already exists on target engine", second.Reason)
}

func TestHandoffUnreachableZone(t *testing.T) {
	b1, _ := newTestBusPair("engine-1", "engine-2")
	reg, err := cluster.NewStaticRegistry(map[string]config.StaticAssignee{
		"midgard": {EngineID: "engine-1"},
	})
	require.NoError(t, err)
	h1 := newHarness(t, shardConfig("engine-1", "midgard"), b1, reg, shardMidgard)

	h1.connectFramed(1)
	h1.send(1, "3")
	h1.expect(1, "Welcome, Guest1!")

	h1.send(1, "east")
	h1.expect(1, "That realm is unreachable right now.")
	assert.NotNil(t, h1.eng.deps.World.PlayerByName("guest1"))
}

func TestShoutCrossesEngines(t *testing.T) {
	h1, h2 := newShardPair(t)

	h1.loginGuest(1)
	h2.loginGuest(1)

	h1.send(1, "shout hello world")
	h1.expect(1, "You shout: hello world")
	h2.eng.tick()
	h2.expect(1, "Guest1 shouts: hello world")
}

func TestWhoAggregatesAcrossEngines(t *testing.T) {
	h1, h2 := newShardPair(t)

	h1.loginGuest(1)
	h2.signup(1, "Bob", "secret99")

	h1.send(1, "who")
	h2.eng.tick() // answer the roster request

	h1.clk.Advance(600 * time.Millisecond) // past the reply window
	h1.eng.tick()
	h1.expect(1, "Online players (2):")
	h1.expect(1, "Bob")
	h1.expect(1, "east")
}

func TestKickCrossesEngines(t *testing.T) {
	h1, h2 := newShardPair(t)

	h1.loginGuest(1)
	h1.player("guest1").IsStaff = true

	h2.signup(1, "Bob", "secret99")

	h1.send(1, "kick Bob")
	h1.expect(1, "Kick request sent for Bob.")
	h2.eng.tick()
	h2.expect(1, "You have been removed from the world.")
	h2.expectClosed(1)
	assert.Nil(t, h2.eng.deps.World.PlayerByName("bob"))
}

func TestTransferCrossesEngines(t *testing.T) {
	h1, h2 := newShardPair(t)

	h1.loginGuest(1)
	h1.player("guest1").IsStaff = true
	h2.signup(1, "Bob", "secret99")

	h1.send(1, "transfer Bob east:hill")
	h1.expect(1, "Transfer request sent for Bob.")
	h2.eng.tick()
	h2.expect(1, "A greater power moves you.")
	h2.expect(1, "Windy Hill")
	assert.Equal(t, model.RoomID("east:hill"), h2.player("bob").RoomID)
}

// deadlineBus records whether each outgoing call carried a deadline.
type deadlineBus struct {
	*testBus
	withDeadline []bool
}

func (b *deadlineBus) Broadcast(ctx context.Context, msg cluster.Message) error {
	_, ok := ctx.Deadline()
	b.withDeadline = append(b.withDeadline, ok)
	return b.testBus.Broadcast(ctx, msg)
}

func (b *deadlineBus) SendTo(ctx context.Context, engineID string, msg cluster.Message) error {
	_, ok := ctx.Deadline()
	b.withDeadline = append(b.withDeadline, ok)
	return b.testBus.SendTo(ctx, engineID, msg)
}

// A stalled broker must never stall the tick loop: every call the loop
// makes on the bus goes out with a deadline.
func TestClusterCallsAreDeadlineBounded(t *testing.T) {
	b1, b2 := newTestBusPair("engine-1", "engine-2")
	db := &deadlineBus{testBus: b1}
	reg := shardRegistry(t)
	h1 := newHarness(t, shardConfig("engine-1", "midgard"), db, reg, shardMidgard)
	newHarness(t, shardConfig("engine-2", "east"), b2, reg, shardEast)

	h1.loginGuest(1)
	h1.send(1, "shout hello")
	h1.send(1, "who")
	h1.send(1, "east")

	require.NotEmpty(t, db.withDeadline)
	for i, ok := range db.withDeadline {
		assert.True(t, ok, "bus call %d went out without a deadline", i)
	}
}

// recordingRegistry captures the sticky hint passed to instance selection.
type recordingRegistry struct {
	cluster.ZoneRegistry
	hints []string
}

func (r *recordingRegistry) PickInstance(ctx context.Context, zone model.Zone, sticky string) (cluster.EngineRef, bool) {
	r.hints = append(r.hints, sticky)
	return r.ZoneRegistry.PickInstance(ctx, zone, sticky)
}

func TestHandoffSelectionPrefersCurrentInstance(t *testing.T) {
	b1, b2 := newTestBusPair("engine-1", "engine-2")
	reg := &recordingRegistry{ZoneRegistry: shardRegistry(t)}
	h1 := newHarness(t, shardConfig("engine-1", "midgard"), b1, reg, shardMidgard)
	newHarness(t, shardConfig("engine-2", "east"), b2, shardRegistry(t), shardEast)

	h1.loginGuest(1)
	h1.send(1, "east")

	require.Equal(t, []string{"engine-1"}, reg.hints)
}

func TestTellRoutedThroughLocationIndex(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	b1, b2 := newTestBusPair("engine-1", "engine-2")
	reg := shardRegistry(t)
	h1 := newHarness(t, shardConfig("engine-1", "midgard"), b1, reg, shardMidgard)
	h2 := newHarness(t, shardConfig("engine-2", "east"), b2, reg, shardEast)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	idx1 := cluster.NewLocationIndex(client, "ambonmud", "engine-1", time.Minute)
	idx2 := cluster.NewLocationIndex(client, "ambonmud", "engine-2", time.Minute)
	go func() { _ = idx1.Run(ctx) }()
	go func() { _ = idx2.Run(ctx) }()
	h1.eng.deps.Index = idx1
	h2.eng.deps.Index = idx2

	h1.loginGuest(1)
	h2.signup(1, "Bob", "secret99")

	// Registration is asynchronous; wait for the index entry.
	require.Eventually(t, func() bool {
		return idx1.Lookup(context.Background(), "bob") == "engine-2"
	}, 2*time.Second, 10*time.Millisecond)

	h1.send(1, "tell Bob meet me at the gate")
	h1.expect(1, "You tell Bob: meet me at the gate")
	h2.eng.tick()
	h2.expect(1, "Guest1 tells you: meet me at the gate")
}
