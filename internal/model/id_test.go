package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoomID(t *testing.T) {
	id, err := ParseRoomID("midgard:temple")
	require.NoError(t, err)
	assert.Equal(t, RoomID("midgard:temple"), id)
	assert.Equal(t, Zone("midgard"), id.Zone())
	assert.Equal(t, "temple", id.Local())
}

func TestParseRoomID_Invalid(t *testing.T) {
	for _, s := range []string{"", "temple", ":temple", "midgard:", ":"} {
		_, err := ParseRoomID(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestParseRoomID_ExtraColonStaysInLocal(t *testing.T) {
	id, err := ParseRoomID("zone:a:b")
	require.NoError(t, err)
	assert.Equal(t, Zone("zone"), id.Zone())
	assert.Equal(t, "a:b", id.Local())
}

func TestParseDirection(t *testing.T) {
	cases := map[string]Direction{
		"north": North, "N": North,
		"south": South, "s": South,
		"east": East, "E": East,
		"west": West, "w": West,
		"up": Up, "U": Up,
		"down": Down, "d": Down,
	}
	for in, want := range cases {
		got, ok := ParseDirection(in)
		require.True(t, ok, "input %q", in)
		assert.Equal(t, want, got)
	}
	_, ok := ParseDirection("northwest")
	assert.False(t, ok)
}

func TestDirectionOpposite(t *testing.T) {
	for _, d := range AllDirections {
		assert.Equal(t, d, d.Opposite().Opposite())
	}
}
