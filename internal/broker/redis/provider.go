package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"courier/internal/broker"
	"courier/internal/logger"
)

// Options configures the Redis provider.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Provider implements broker.Broker on a Redis server. It holds two
// clients: sub is used only for SUBSCRIBE/receive, cmd carries publish and
// every key-value command. A subscribed Redis connection rejects ordinary
// commands, hence the split.
type Provider struct {
	cmd    *redis.Client
	sub    *redis.Client
	logger zerolog.Logger
}

// Dial connects both clients and verifies the command connection with a
// ping. A failure here is unrecoverable for the caller.
func Dial(ctx context.Context, opts Options) (*Provider, error) {
	ropts := &redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}

	cmd := redis.NewClient(ropts)
	if err := cmd.Ping(ctx).Err(); err != nil {
		cmd.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	return &Provider{
		cmd:    cmd,
		sub:    redis.NewClient(ropts),
		logger: logger.GetLogger("broker.redis"),
	}, nil
}

type subscription struct {
	pubsub *redis.PubSub
	out    chan broker.Message
}

func (s *subscription) Messages() <-chan broker.Message { return s.out }

func (s *subscription) Close() error { return s.pubsub.Close() }

// Subscribe attaches the receive connection to a channel and waits for the
// broker's subscription acknowledgment before returning.
func (p *Provider) Subscribe(ctx context.Context, channel string) (broker.Subscription, error) {
	pubsub := p.sub.Subscribe(ctx, channel)

	// Receive blocks until the subscription confirmation arrives.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	sub := &subscription{
		pubsub: pubsub,
		out:    make(chan broker.Message, 64),
	}

	go func() {
		defer close(sub.out)
		for msg := range pubsub.Channel() {
			sub.out <- broker.Message{
				Channel: msg.Channel,
				Payload: []byte(msg.Payload),
			}
		}
	}()

	p.logger.Debug().Str("channel", channel).Msg("Subscribed to channel")
	return sub, nil
}

func (p *Provider) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := p.cmd.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

func (p *Provider) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := p.cmd.SetEx(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (p *Provider) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := p.cmd.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return val, true, nil
}

func (p *Provider) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := p.cmd.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan keys %s: %w", pattern, err)
	}
	return keys, nil
}

func (p *Provider) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := p.cmd.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete keys: %w", err)
	}
	return n, nil
}

// Close closes the command connection first, then the receive connection.
func (p *Provider) Close() error {
	if err := p.cmd.Close(); err != nil {
		p.sub.Close()
		return fmt.Errorf("failed to close command connection: %w", err)
	}
	if err := p.sub.Close(); err != nil {
		return fmt.Errorf("failed to close receive connection: %w", err)
	}
	return nil
}
