package cluster

import "context"

// Delivery is one received message with its origin.
type Delivery struct {
	From string
	Msg  Message
}

// Bus moves messages between engines. Implementations must drop rather than
// block when the receiver is slow.
type Bus interface {
	// Broadcast reaches every engine except the sender.
	Broadcast(ctx context.Context, msg Message) error
	// SendTo reaches exactly one engine.
	SendTo(ctx context.Context, engineID string, msg Message) error
	// Incoming delivers decoded messages addressed to this engine.
	Incoming() <-chan Delivery
	// Run pumps the underlying transport until ctx is done.
	Run(ctx context.Context) error
	Close() error
}

// LocalBus is the single-engine bus: there are no peers, so broadcasts go
// nowhere and the incoming channel never delivers. Messages sent to this
// engine's own id loop back, which keeps the staff commands uniform whether
// or not sharding is on.
type LocalBus struct {
	engineID string
	incoming chan Delivery
}

// NewLocalBus builds the loopback bus.
func NewLocalBus(engineID string) *LocalBus {
	return &LocalBus{
		engineID: engineID,
		incoming: make(chan Delivery, 64),
	}
}

func (b *LocalBus) Broadcast(context.Context, Message) error { return nil }

func (b *LocalBus) SendTo(_ context.Context, engineID string, msg Message) error {
	if engineID != b.engineID {
		return nil // no peers to reach
	}
	select {
	case b.incoming <- Delivery{From: b.engineID, Msg: msg}:
	default:
	}
	return nil
}

func (b *LocalBus) Incoming() <-chan Delivery { return b.incoming }

func (b *LocalBus) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (b *LocalBus) Close() error { return nil }

var _ Bus = (*LocalBus)(nil)
