package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
)

// RedisBus carries engine-to-engine messages over two pub/sub channels:
// <prefix>:broadcast for everyone and <prefix>:<engineId> for directed
// messages. Broadcasts from this engine are dropped on receipt.
type RedisBus struct {
	client   *redis.Client
	engineID string
	prefix   string
	incoming chan Delivery
}

// NewRedisBus builds the bus; Run must be called before messages arrive.
func NewRedisBus(client *redis.Client, engineID, prefix string, capacity int) *RedisBus {
	return &RedisBus{
		client:   client,
		engineID: engineID,
		prefix:   prefix,
		incoming: make(chan Delivery, capacity),
	}
}

func (b *RedisBus) broadcastChannel() string { return b.prefix + ":broadcast" }
func (b *RedisBus) directChannel(engineID string) string {
	return b.prefix + ":" + engineID
}

func (b *RedisBus) Broadcast(ctx context.Context, msg Message) error {
	data, err := Encode(b.engineID, "", msg)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.broadcastChannel(), data).Err(); err != nil {
		return fmt.Errorf("publish broadcast: %w", err)
	}
	return nil
}

func (b *RedisBus) SendTo(ctx context.Context, engineID string, msg Message) error {
	data, err := Encode(b.engineID, engineID, msg)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.directChannel(engineID), data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", engineID, err)
	}
	return nil
}

func (b *RedisBus) Incoming() <-chan Delivery { return b.incoming }

// Run subscribes and pumps messages until ctx is done, resubscribing with
// exponential backoff when the subscription drops.
func (b *RedisBus) Run(ctx context.Context) error {
	for {
		err := b.pump(ctx)
		if ctx.Err() != nil {
			return nil
		}
		slog.Warn("bus subscription lost, reconnecting", "engine", b.engineID, "error", err)

		_, err = backoff.Retry(ctx, func() (any, error) {
			return nil, b.client.Ping(ctx).Err()
		},
			backoff.WithBackOff(backoff.NewExponentialBackOff()),
			backoff.WithMaxTries(10),
			backoff.WithNotify(func(err error, wait time.Duration) {
				slog.Warn("redis unreachable, retrying", "engine", b.engineID, "wait", wait, "error", err)
			}),
		)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("bus reconnect failed", "engine", b.engineID, "error", err)
		}
	}
}

func (b *RedisBus) pump(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.broadcastChannel(), b.directChannel(b.engineID))
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("confirm subscription: %w", err)
	}
	slog.Info("bus subscribed",
		"engine", b.engineID,
		"channels", []string{b.broadcastChannel(), b.directChannel(b.engineID)})

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return errors.New("subscription channel closed")
			}
			b.deliver(m)
		}
	}
}

func (b *RedisBus) deliver(m *redis.Message) {
	env, msg, err := Decode([]byte(m.Payload))
	if err != nil {
		slog.Warn("undecodable bus message dropped", "channel", m.Channel, "error", err)
		return
	}
	if m.Channel == b.broadcastChannel() && env.SenderEngineID == b.engineID {
		return // own broadcast echoed back
	}
	select {
	case b.incoming <- Delivery{From: env.SenderEngineID, Msg: msg}:
	default:
		slog.Warn("bus incoming queue full, message dropped",
			"engine", b.engineID, "type", env.Type, "from", env.SenderEngineID)
	}
}

func (b *RedisBus) Close() error {
	close(b.incoming)
	return nil
}

var _ Bus = (*RedisBus)(nil)
