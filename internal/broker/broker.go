package broker

import (
	"context"
	"time"
)

// Message is a single payload delivered on a subscribed channel.
type Message struct {
	Channel string
	Payload []byte
}

// Subscription is an acknowledged channel subscription. Messages delivers
// inbound payloads until Close is called or the broker shuts down, at which
// point the channel is closed.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// Broker defines the transport every node speaks: pub/sub channels plus a
// key-value store with expiring keys. Delivery on a subscribed channel is
// at-least-once to live subscribers; expired keys read as absent.
//
// A connection in subscribe mode cannot issue ordinary commands, so
// providers keep two distinct connections: one dedicated to
// subscribe/receive, one for publish and the key-value commands. That split
// is a provider concern; callers just use this interface.
type Broker interface {
	// Subscribe attaches to a channel. It returns only after the broker has
	// acknowledged the subscription.
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	// Publish sends a payload to every current subscriber of the channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// SetEx writes a key with a time-to-live.
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error

	// Get reads a key. The second return is false when the key is absent
	// or expired.
	Get(ctx context.Context, key string) (string, bool, error)

	// Keys returns every live key matching a glob pattern. This is a full
	// scan on typical brokers; callers use it only on low-frequency paths.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Del removes keys in one batch and returns how many existed.
	Del(ctx context.Context, keys ...string) (int64, error)

	// Close tears down both underlying connections.
	Close() error
}
