package courier

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/broker/memory"
)

func newTestClient(t *testing.T, p *memory.Provider) *Client {
	t.Helper()

	c := NewClient(p, WithPrefix("app"), WithHeartbeat(testHeartbeat))
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientCallRoundTrip(t *testing.T) {
	p := memory.New()
	n := newTestNode(t, p)
	c := newTestClient(t, p)

	n.Register("echo", func(ctx context.Context, args []any) ([]any, error) {
		return args, nil
	})

	waitForHeartbeatKey(t, p, n, "echo")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	results, err := c.Call(ctx, "echo", "hi")
	require.NoError(t, err)
	assert.Equal(t, []any{"hi"}, results)
}

func TestClientCallRemoteError(t *testing.T) {
	p := memory.New()
	n := newTestNode(t, p)
	c := newTestClient(t, p)

	n.Register("echo", func(ctx context.Context, args []any) ([]any, error) {
		return args, nil
	})
	waitForHeartbeatKey(t, p, n, "echo")

	// Forge a heartbeat key advertising a service the node never
	// registered. The call reaches the node and comes back with the
	// protocol error.
	ctx := context.Background()
	key := n.ns.HeartbeatKey("ghost", n.id)
	require.NoError(t, p.SetEx(ctx, key, "0", time.Minute))

	callCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	_, err := c.Call(callCtx, "ghost")
	require.Error(t, err)
	assert.Equal(t, ERR_NO_HANDLER, err.Error())
}

func TestClientCallNoInstances(t *testing.T) {
	p := memory.New()
	c := newTestClient(t, p)

	_, err := c.Call(context.Background(), "nothing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no live instances")
}

func TestClientCallTimeout(t *testing.T) {
	p := memory.New()
	c := newTestClient(t, p)

	// A heartbeat key with no node behind it: the call publishes into the
	// void and the context expires.
	ctx := context.Background()
	ns := NewNamespace("app")
	require.NoError(t, p.SetEx(ctx, ns.HeartbeatKey("gone", "dead-node"), "0", time.Minute))

	callCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	_, err := c.Call(callCtx, "gone")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientSelectsLowestScoreAndBumps(t *testing.T) {
	p := memory.New()
	c := newTestClient(t, p)
	ctx := context.Background()

	ns := NewNamespace("app")
	busy := ns.HeartbeatKey("echo", "node-busy")
	idle := ns.HeartbeatKey("echo", "node-idle")
	require.NoError(t, p.SetEx(ctx, busy, "5", time.Minute))
	require.NoError(t, p.SetEx(ctx, idle, "1", time.Minute))

	idleChannel := observe(t, p, ns.ListenChannel("node-idle"))
	busyChannel := observe(t, p, ns.ListenChannel("node-busy"))

	callCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, _ = c.Call(callCtx, "echo", "hi") // nobody answers; routing is what matters

	env := recvEnvelope(t, idleChannel, time.Second)
	assert.Equal(t, TYPE_CALL, env.Type)
	assert.Equal(t, c.ID(), env.Sender)

	select {
	case <-busyChannel.Messages():
		t.Fatal("call must route to the lowest-score instance")
	case <-time.After(50 * time.Millisecond):
	}

	val, ok, err := p.Get(ctx, idle)
	require.NoError(t, err)
	require.True(t, ok)
	bumped, err := strconv.Atoi(val)
	require.NoError(t, err)
	assert.Equal(t, 2, bumped, "selection bumps the chosen instance's score")
}

func TestClientReceivesDirectMessages(t *testing.T) {
	p := memory.New()
	n := newTestNode(t, p)
	c := newTestClient(t, p)

	got := make(chan []any, 1)
	c.OnMessage(func(sender string, args []any) {
		assert.Equal(t, n.ID(), sender)
		got <- args
	})

	require.NoError(t, n.Send(context.Background(), c.ID(), "ping"))

	select {
	case args := <-got:
		assert.Equal(t, []any{"ping"}, args)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for direct message")
	}
}

func TestClientSendPublishesSingleMessage(t *testing.T) {
	p := memory.New()
	c := newTestClient(t, p)

	ns := NewNamespace("app")
	receiver := observe(t, p, ns.ListenChannel("R"))

	require.NoError(t, c.Send(context.Background(), "R", "payload"))

	env := recvEnvelope(t, receiver, time.Second)
	assert.Equal(t, TYPE_MESSAGE, env.Type)
	assert.Equal(t, c.ID(), env.Sender)
	assert.Equal(t, []any{"payload"}, env.Args)

	select {
	case <-receiver.Messages():
		t.Fatal("send must publish exactly one envelope")
	case <-time.After(50 * time.Millisecond):
	}
}

// waitForHeartbeatKey blocks until a node's registration write has landed.
func waitForHeartbeatKey(t *testing.T, p *memory.Provider, n *Node, service string) {
	t.Helper()

	require.Eventually(t, func() bool {
		_, ok, _ := p.Get(context.Background(), n.ns.HeartbeatKey(service, n.id))
		return ok
	}, time.Second, 5*time.Millisecond)
}
