package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ambonmud/ambonmud/internal/event"
)

func TestTrySend_FullThenDrain(t *testing.T) {
	b := NewInbound(2)
	require.NoError(t, b.TrySend(event.LineReceived{SessionID: 1, Line: "a"}))
	require.NoError(t, b.TrySend(event.LineReceived{SessionID: 1, Line: "b"}))
	assert.ErrorIs(t, b.TrySend(event.LineReceived{SessionID: 1, Line: "c"}), ErrFull)

	got := <-b.Receive()
	assert.Equal(t, "a", got.(event.LineReceived).Line)
	require.NoError(t, b.TrySend(event.LineReceived{SessionID: 1, Line: "c"}))
}

func TestSend_ContextCancel(t *testing.T) {
	b := NewInbound(1)
	require.NoError(t, b.TrySend(event.Connected{SessionID: 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.Send(ctx, event.Connected{SessionID: 2})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClose_RejectsSendsKeepsBuffered(t *testing.T) {
	b := NewInbound(4)
	require.NoError(t, b.TrySend(event.LineReceived{SessionID: 1, Line: "a"}))
	b.Close()
	b.Close() // idempotent

	assert.ErrorIs(t, b.TrySend(event.LineReceived{SessionID: 1, Line: "b"}), ErrClosed)
	assert.ErrorIs(t, b.Send(context.Background(), event.LineReceived{SessionID: 1}), ErrClosed)

	got, ok := <-b.Receive()
	require.True(t, ok)
	assert.Equal(t, "a", got.(event.LineReceived).Line)
	_, ok = <-b.Receive()
	assert.False(t, ok, "channel should be closed after drain")
}

func TestOrderPreservedPerProducer(t *testing.T) {
	b := NewInbound(16)
	for _, line := range []string{"1", "2", "3", "4"} {
		require.NoError(t, b.TrySend(event.LineReceived{SessionID: 9, Line: line}))
	}
	for _, want := range []string{"1", "2", "3", "4"} {
		got := <-b.Receive()
		assert.Equal(t, want, got.(event.LineReceived).Line)
	}
}
