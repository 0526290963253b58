package cluster

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ambonmud/ambonmud/internal/config"
	"github.com/ambonmud/ambonmud/internal/model"
)

func scalerUnderTest(t *testing.T) (*Scaler, *LeaseRegistry, <-chan *redis.Message) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sub := client.Subscribe(context.Background(), "ambonmud:scaling-decisions")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	reg := NewLeaseRegistry(client, "ambonmud",
		EngineRef{EngineID: "engine-a", Host: "10.0.0.1", Port: 4000},
		time.Minute, 100)
	s := NewScaler(reg, client, "ambonmud", config.Instancing{
		Enabled:            true,
		Capacity:           100,
		ScaleUpThreshold:   0.8,
		ScaleDownThreshold: 0.2,
		MinInstances:       1,
		CooldownSeconds:    300,
	})
	return s, reg, sub.Channel()
}

func decision(t *testing.T, ch <-chan *redis.Message) ScalingDecision {
	t.Helper()
	select {
	case m := <-ch:
		var dec ScalingDecision
		require.NoError(t, json.Unmarshal([]byte(m.Payload), &dec))
		return dec
	case <-time.After(2 * time.Second):
		t.Fatal("no scaling decision published")
		return ScalingDecision{}
	}
}

func noDecision(t *testing.T, ch <-chan *redis.Message) {
	t.Helper()
	select {
	case m := <-ch:
		t.Fatalf("unexpected scaling decision: %s", m.Payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestScaler_ScaleUpAboveThreshold(t *testing.T) {
	ctx := context.Background()
	s, reg, ch := scalerUnderTest(t)

	require.NoError(t, reg.Announce(ctx, map[model.Zone]int{"midgard": 90}))
	s.Evaluate(ctx, "midgard")

	dec := decision(t, ch)
	assert.Equal(t, "scale_up", dec.Action)
	assert.Equal(t, "midgard", dec.Zone)
	assert.InDelta(t, 0.9, dec.AvgLoad, 0.001)
}

func TestScaler_ScaleUpAtExactThreshold(t *testing.T) {
	ctx := context.Background()
	s, reg, ch := scalerUnderTest(t)

	// 80 / 100 sits exactly on the 0.8 threshold and must still trigger.
	require.NoError(t, reg.Announce(ctx, map[model.Zone]int{"midgard": 80}))
	s.Evaluate(ctx, "midgard")

	dec := decision(t, ch)
	assert.Equal(t, "scale_up", dec.Action)
	assert.InDelta(t, 0.8, dec.AvgLoad, 0.001)
}

func TestScaler_QuietZonePublishesNothing(t *testing.T) {
	ctx := context.Background()
	s, reg, ch := scalerUnderTest(t)

	require.NoError(t, reg.Announce(ctx, map[model.Zone]int{"midgard": 50}))
	s.Evaluate(ctx, "midgard")
	noDecision(t, ch)
}

func TestScaler_ScaleDownRespectsMinInstances(t *testing.T) {
	ctx := context.Background()
	s, reg, ch := scalerUnderTest(t)

	// One instance at near-zero load: below the threshold but already at
	// min_instances, so no decision.
	require.NoError(t, reg.Announce(ctx, map[model.Zone]int{"midgard": 1}))
	s.Evaluate(ctx, "midgard")
	noDecision(t, ch)
}

func TestScaler_CooldownSuppressesRepeat(t *testing.T) {
	ctx := context.Background()
	s, reg, ch := scalerUnderTest(t)

	require.NoError(t, reg.Announce(ctx, map[model.Zone]int{"midgard": 90}))
	base := time.Now()
	s.now = func() time.Time { return base }
	s.Evaluate(ctx, "midgard")
	decision(t, ch)

	s.now = func() time.Time { return base.Add(time.Minute) }
	s.Evaluate(ctx, "midgard")
	noDecision(t, ch)

	s.now = func() time.Time { return base.Add(6 * time.Minute) }
	s.Evaluate(ctx, "midgard")
	dec := decision(t, ch)
	assert.Equal(t, "scale_up", dec.Action)
}
