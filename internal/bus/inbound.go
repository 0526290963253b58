// Package bus provides the bounded many-producer single-consumer queue
// carrying inbound events from the transports to the engine loop.
package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/ambonmud/ambonmud/internal/event"
)

// ErrClosed is returned by Send and TrySend after Close.
var ErrClosed = errors.New("inbound bus closed")

// ErrFull is returned by TrySend when the queue is at capacity.
var ErrFull = errors.New("inbound bus full")

// Inbound is a bounded FIFO of inbound events. Per-producer ordering is the
// channel's: events from one session arrive at the engine in send order.
type Inbound struct {
	ch chan event.Inbound

	mu     sync.Mutex
	closed bool
}

// NewInbound creates a bus with the given capacity.
func NewInbound(capacity int) *Inbound {
	if capacity <= 0 {
		capacity = 1
	}
	return &Inbound{ch: make(chan event.Inbound, capacity)}
}

// Send blocks until the event is accepted, the bus closes, or ctx is done.
func (b *Inbound) Send(ctx context.Context, ev event.Inbound) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.mu.Unlock()

	select {
	case b.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend enqueues without blocking. Transports use this on their read path
// so a stalled engine cannot wedge a socket reader.
func (b *Inbound) TrySend(ev event.Inbound) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	select {
	case b.ch <- ev:
		return nil
	default:
		return ErrFull
	}
}

// Receive returns the consumer side of the queue. The channel is closed by
// Close after all buffered events are observable.
func (b *Inbound) Receive() <-chan event.Inbound {
	return b.ch
}

// Close stops accepting events. Safe to call more than once; buffered
// events remain readable.
func (b *Inbound) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}
