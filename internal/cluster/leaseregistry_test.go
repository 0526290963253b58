package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ambonmud/ambonmud/internal/config"
	"github.com/ambonmud/ambonmud/internal/model"
)

func leaseClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newRegistry(client *redis.Client, id string, load int) *LeaseRegistry {
	r := NewLeaseRegistry(client, "ambonmud",
		EngineRef{EngineID: id, Host: "10.0.0.1", Port: 4000},
		10*time.Second, 100)
	return r
}

func TestLeaseRegistry_AnnounceAndPick(t *testing.T) {
	ctx := context.Background()
	client := leaseClient(t)

	r := newRegistry(client, "engine-a", 0)
	require.NoError(t, r.Announce(ctx, map[model.Zone]int{"midgard": 5}))

	ref, ok := r.PickInstance(ctx, "midgard", "")
	require.True(t, ok)
	assert.Equal(t, "engine-a", ref.EngineID)
	assert.Equal(t, 4000, ref.Port)

	_, ok = r.PickInstance(ctx, "utgard", "")
	assert.False(t, ok, "nobody hosts utgard")
}

func TestLeaseRegistry_PrefersSticky(t *testing.T) {
	ctx := context.Background()
	client := leaseClient(t)

	a := newRegistry(client, "engine-a", 0)
	b := newRegistry(client, "engine-b", 0)
	require.NoError(t, a.Announce(ctx, map[model.Zone]int{"midgard": 90}))
	require.NoError(t, b.Announce(ctx, map[model.Zone]int{"midgard": 2}))

	// Sticky wins while under capacity, even when another instance is
	// less loaded.
	ref, ok := a.PickInstance(ctx, "midgard", "engine-a")
	require.True(t, ok)
	assert.Equal(t, "engine-a", ref.EngineID)

	// Without stickiness the least-loaded instance wins.
	ref, ok = a.PickInstance(ctx, "midgard", "")
	require.True(t, ok)
	assert.Equal(t, "engine-b", ref.EngineID)
}

func TestLeaseRegistry_StickyAtCapacityFallsOver(t *testing.T) {
	ctx := context.Background()
	client := leaseClient(t)

	a := newRegistry(client, "engine-a", 0)
	b := newRegistry(client, "engine-b", 0)
	require.NoError(t, a.Announce(ctx, map[model.Zone]int{"midgard": 100})) // full
	require.NoError(t, b.Announce(ctx, map[model.Zone]int{"midgard": 10}))

	ref, ok := a.PickInstance(ctx, "midgard", "engine-a")
	require.True(t, ok)
	assert.Equal(t, "engine-b", ref.EngineID)
}

func TestLeaseRegistry_ExpiredLeasesFiltered(t *testing.T) {
	ctx := context.Background()
	client := leaseClient(t)

	a := newRegistry(client, "engine-a", 0)
	b := newRegistry(client, "engine-b", 0)

	base := time.Now()
	a.now = func() time.Time { return base }
	require.NoError(t, a.Announce(ctx, map[model.Zone]int{"midgard": 1}))
	b.now = func() time.Time { return base.Add(8 * time.Second) }
	require.NoError(t, b.Announce(ctx, map[model.Zone]int{"midgard": 50}))

	// Reading 12s after engine-a's renewal: its 10s lease is stale.
	reader := newRegistry(client, "engine-c", 0)
	reader.now = func() time.Time { return base.Add(12 * time.Second) }
	refs := reader.Instances(ctx, "midgard")
	require.Len(t, refs, 1)
	assert.Equal(t, "engine-b", refs[0].EngineID)
}

func TestLeaseRegistry_WithdrawRemovesEntries(t *testing.T) {
	ctx := context.Background()
	client := leaseClient(t)

	a := newRegistry(client, "engine-a", 0)
	require.NoError(t, a.Announce(ctx, map[model.Zone]int{"midgard": 1}))
	a.Withdraw(ctx, []model.Zone{"midgard"})

	_, ok := a.PickInstance(ctx, "midgard", "")
	assert.False(t, ok)
}

func TestStaticRegistry(t *testing.T) {
	r, err := NewStaticRegistry(map[string]config.StaticAssignee{
		"midgard": {EngineID: "engine-a", Host: "10.0.0.1", Port: 4000},
		"utgard":  {EngineID: "engine-b", Host: "10.0.0.2", Port: 4000},
	})
	require.NoError(t, err)

	ref, ok := r.PickInstance(context.Background(), "utgard", "ignored")
	require.True(t, ok)
	assert.Equal(t, "engine-b", ref.EngineID)
	assert.Equal(t, []model.Zone{"midgard", "utgard"}, r.Zones())

	_, err = NewStaticRegistry(map[string]config.StaticAssignee{"x": {}})
	assert.Error(t, err)
}
