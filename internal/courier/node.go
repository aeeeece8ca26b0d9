package courier

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"courier/internal/broker"
	"courier/internal/logger"
)

// answeredCacheSize bounds the cache of already-answered call ids used to
// absorb broker redeliveries.
const answeredCacheSize = 1024

// Node is a single peer: it registers named services, advertises their
// liveness through heartbeat keys, receives calls and direct messages on
// its own listen channel, and routes call results back to the caller.
type Node struct {
	id        string
	role      string
	ns        Namespace
	listen    string
	heartbeat time.Duration
	broker    broker.Broker

	services map[string]Handler
	mu       sync.RWMutex

	onMessage   []func(sender string, args []any)
	onListening []func()
	eventMu     sync.RWMutex

	answered *lru.Cache[string, []byte]

	sub    broker.Subscription
	ticker *time.Ticker
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger
}

// options collects the construction settings shared by nodes and clients.
type options struct {
	prefix    string
	role      string
	heartbeat time.Duration
	logger    zerolog.Logger
}

// Option configures a Node or Client at construction.
type Option func(*options)

// WithPrefix overrides the default key/channel namespace prefix.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithRole tags the generated node id with a role name.
func WithRole(role string) Option {
	return func(o *options) {
		o.role = role
	}
}

// WithHeartbeat overrides the default heartbeat interval. Heartbeat keys
// live for twice this interval.
func WithHeartbeat(interval time.Duration) Option {
	return func(o *options) {
		o.heartbeat = interval
	}
}

// WithLogger replaces the default logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}

func newOptions(role string, opts ...Option) options {
	o := options{
		prefix:    DefaultPrefix,
		role:      role,
		heartbeat: DefaultHeartbeat,
		logger:    logger.New(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewNode creates a node bound to a broker. The node id is fixed here and
// never changes for the life of the process.
func NewNode(b broker.Broker, opts ...Option) *Node {
	o := newOptions(DefaultRole, opts...)
	ctx, cancel := context.WithCancel(context.Background())

	n := &Node{
		role:      o.role,
		ns:        NewNamespace(o.prefix),
		heartbeat: o.heartbeat,
		broker:    b,
		services:  make(map[string]Handler),
		ctx:       ctx,
		cancel:    cancel,
	}

	n.id = NewNodeID(n.role)
	n.listen = n.ns.ListenChannel(n.id)
	n.answered, _ = lru.New[string, []byte](answeredCacheSize)
	n.logger = o.logger.With().Str("component", "courier.node").Str("node_id", n.id).Logger()

	return n
}

// ID returns the node's identity.
func (n *Node) ID() string {
	return n.id
}

// OnMessage subscribes a listener to direct messages. Listeners run
// synchronously on the dispatch path, in registration order.
func (n *Node) OnMessage(fn func(sender string, args []any)) {
	n.eventMu.Lock()
	defer n.eventMu.Unlock()
	n.onMessage = append(n.onMessage, fn)
}

// OnListening subscribes a listener to the listening event emitted once the
// broker has acknowledged the channel subscription.
func (n *Node) OnListening(fn func()) {
	n.eventMu.Lock()
	defer n.eventMu.Unlock()
	n.onListening = append(n.onListening, fn)
}

// Start subscribes the node to its listen channel, wires the dispatch
// pipeline, and starts the heartbeat timer. A subscription failure is
// unrecoverable for this instance.
func (n *Node) Start(ctx context.Context) error {
	n.logger.Info().
		Str("listen_channel", n.listen).
		Dur("heartbeat", n.heartbeat).
		Msg("Starting courier node")

	sub, err := n.broker.Subscribe(ctx, n.listen)
	if err != nil {
		return fmt.Errorf("failed to subscribe to listen channel: %w", err)
	}
	n.sub = sub

	go n.receiveLoop()

	n.ticker = time.NewTicker(n.heartbeat)
	go n.heartbeatLoop()

	n.eventMu.RLock()
	listeners := n.onListening
	n.eventMu.RUnlock()
	for _, fn := range listeners {
		fn()
	}

	n.logger.Info().Msg("Courier node listening")
	return nil
}

// Send publishes a one-way message to another node's listen channel. There
// is no delivery confirmation at this layer.
func (n *Node) Send(ctx context.Context, receiverID string, payload any) error {
	data, err := EncodeEnvelope(NewMessage(n.id, payload))
	if err != nil {
		return err
	}

	if err := n.broker.Publish(ctx, n.ns.ListenChannel(receiverID), data); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", receiverID, err)
	}

	n.logger.Debug().Str("receiver", receiverID).Msg("Sent message")
	return nil
}

// Exit tears the node down: it sweeps every broker key bearing this node's
// id, deletes them in one batch, stops the heartbeat timer, and closes the
// broker connections. A failed step aborts the rest; keys left behind by an
// aborted sweep still expire by TTL.
func (n *Node) Exit(ctx context.Context) error {
	n.logger.Info().Msg("Stopping courier node")

	keys, err := n.broker.Keys(ctx, NodePattern(n.id))
	if err != nil {
		return fmt.Errorf("failed to scan node keys: %w", err)
	}

	if len(keys) > 0 {
		if _, err := n.broker.Del(ctx, keys...); err != nil {
			return fmt.Errorf("failed to delete node keys: %w", err)
		}
	}

	// Stop the heartbeat before the connections go away so a refresh never
	// races a closed connection.
	if n.ticker != nil {
		n.ticker.Stop()
	}
	n.cancel()

	if n.sub != nil {
		if err := n.sub.Close(); err != nil {
			return fmt.Errorf("failed to close subscription: %w", err)
		}
	}

	if err := n.broker.Close(); err != nil {
		return fmt.Errorf("failed to close broker connections: %w", err)
	}

	n.logger.Info().Msg("Courier node stopped")
	return nil
}
