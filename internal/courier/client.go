package courier

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"courier/internal/broker"
)

// Client issues calls to services advertised on the broker and awaits the
// correlated results on its own listen channel. It carries a node identity
// of its own so servers can route results (and direct messages) back to it.
type Client struct {
	id        string
	ns        Namespace
	heartbeat time.Duration
	broker    broker.Broker

	pending map[string]chan *Envelope
	mu      sync.Mutex

	onMessage []func(sender string, args []any)
	eventMu   sync.RWMutex

	listen string
	sub    broker.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger
}

// NewClient creates a client bound to a broker. Use the same prefix and
// heartbeat options as the nodes it calls.
func NewClient(b broker.Broker, opts ...Option) *Client {
	o := newOptions("client", opts...)
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		ns:        NewNamespace(o.prefix),
		heartbeat: o.heartbeat,
		broker:    b,
		pending:   make(map[string]chan *Envelope),
		ctx:       ctx,
		cancel:    cancel,
	}

	c.id = NewNodeID(o.role)
	c.listen = c.ns.ListenChannel(c.id)
	c.logger = o.logger.With().Str("component", "courier.client").Str("node_id", c.id).Logger()

	return c
}

// ID returns the client's identity.
func (c *Client) ID() string {
	return c.id
}

// OnMessage subscribes a listener to direct messages addressed to this
// client.
func (c *Client) OnMessage(fn func(sender string, args []any)) {
	c.eventMu.Lock()
	defer c.eventMu.Unlock()
	c.onMessage = append(c.onMessage, fn)
}

// Start subscribes the client to its own listen channel and begins
// correlating inbound results with outstanding calls.
func (c *Client) Start(ctx context.Context) error {
	sub, err := c.broker.Subscribe(ctx, c.listen)
	if err != nil {
		return fmt.Errorf("failed to subscribe to listen channel: %w", err)
	}
	c.sub = sub

	go c.receiveLoop()

	c.logger.Info().Str("listen_channel", c.listen).Msg("Courier client listening")
	return nil
}

func (c *Client) receiveLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.sub.Messages():
			if !ok {
				return
			}

			env, err := DecodeEnvelope(msg.Payload)
			if err != nil {
				c.logger.Warn().Err(err).Msg("Dropping undecodable payload")
				continue
			}
			if msg.Channel != c.listen {
				continue
			}

			switch env.Type {
			case TYPE_RESULT:
				c.resolve(env)
			case TYPE_MESSAGE:
				c.eventMu.RLock()
				listeners := c.onMessage
				c.eventMu.RUnlock()
				for _, fn := range listeners {
					fn(env.Sender, env.Args)
				}
			default:
				c.logger.Debug().Str("type", env.Type).Msg("Ignoring envelope type")
			}
		}
	}
}

// resolve hands a result to the outstanding call it answers. Results with
// no pending call are redeliveries or answers to abandoned calls; both are
// dropped.
func (c *Client) resolve(env *Envelope) {
	c.mu.Lock()
	ch, ok := c.pending[env.ID]
	if ok {
		delete(c.pending, env.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug().Str("id", env.ID).Msg("Dropping unmatched result")
		return
	}
	ch <- env
}

// Call invokes a named service on one live instance and waits for the
// correlated result. The target is the instance whose heartbeat key holds
// the lowest score; the chosen key's score is bumped by one so subsequent
// calls spread across instances. Cancellation of ctx abandons the call;
// the in-flight handler is not interrupted.
func (c *Client) Call(ctx context.Context, service string, args ...any) ([]any, error) {
	target, err := c.selectInstance(ctx, service)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	ch := make(chan *Envelope, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	data, err := EncodeEnvelope(NewCall(c.id, id, service, args))
	if err != nil {
		return nil, err
	}

	if err := c.broker.Publish(ctx, c.ns.ListenChannel(target), data); err != nil {
		return nil, fmt.Errorf("failed to publish call to %s: %w", target, err)
	}

	c.logger.Debug().
		Str("service", service).
		Str("target", target).
		Str("id", id).
		Msg("Issued call")

	select {
	case env := <-ch:
		if env.Error != "" {
			return env.Args, errors.New(env.Error)
		}
		return env.Args, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, fmt.Errorf("client closed")
	}
}

// Send publishes a one-way message to another node's listen channel.
func (c *Client) Send(ctx context.Context, receiverID string, payload any) error {
	data, err := EncodeEnvelope(NewMessage(c.id, payload))
	if err != nil {
		return err
	}
	if err := c.broker.Publish(ctx, c.ns.ListenChannel(receiverID), data); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", receiverID, err)
	}
	return nil
}

// selectInstance scans the heartbeat keys of a service's live instances and
// picks the least-loaded one. The bump written back here is the score that
// nodes preserve across their TTL refreshes.
func (c *Client) selectInstance(ctx context.Context, service string) (string, error) {
	keys, err := c.broker.Keys(ctx, c.ns.ServicePattern(service))
	if err != nil {
		return "", fmt.Errorf("failed to discover instances of %s: %w", service, err)
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("no live instances of service %s", service)
	}

	bestKey := ""
	bestScore := 0
	for _, key := range keys {
		val, ok, gerr := c.broker.Get(ctx, key)
		if gerr != nil {
			return "", fmt.Errorf("failed to read score for %s: %w", key, gerr)
		}
		if !ok {
			// Expired between the scan and the read.
			continue
		}

		score, perr := strconv.Atoi(val)
		if perr != nil || score < 0 {
			score = 0
		}

		if bestKey == "" || score < bestScore || (score == bestScore && rand.Intn(2) == 0) {
			bestKey = key
			bestScore = score
		}
	}
	if bestKey == "" {
		return "", fmt.Errorf("no live instances of service %s", service)
	}

	if err := c.broker.SetEx(ctx, bestKey, strconv.Itoa(bestScore+1), 2*c.heartbeat); err != nil {
		c.logger.Warn().Err(err).Str("key", bestKey).Msg("Failed to bump instance score")
	}

	return bestKey[strings.LastIndex(bestKey, ":")+1:], nil
}

// Close stops the receive loop and releases the subscription. The broker
// is left open; it may be shared with other endpoints in the process.
func (c *Client) Close() error {
	c.cancel()
	if c.sub != nil {
		if err := c.sub.Close(); err != nil {
			return fmt.Errorf("failed to close subscription: %w", err)
		}
	}
	c.logger.Info().Msg("Courier client closed")
	return nil
}
