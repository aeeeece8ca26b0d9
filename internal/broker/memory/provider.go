package memory

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"courier/internal/broker"
)

// Provider is an in-process broker.Broker. Keys expire like Redis keys and
// published payloads fan out to every live subscriber of the channel. It is
// safe for concurrent use and is shared by every node of an in-process
// deployment, which also makes it the transport used by the test suite.
type Provider struct {
	mu      sync.RWMutex
	entries map[string]entry
	subs    map[string][]*subscription
	closed  bool
}

type entry struct {
	value   string
	expires time.Time
}

type subscription struct {
	provider *Provider
	channel  string
	out      chan broker.Message
	once     sync.Once
}

// New creates an empty in-process broker.
func New() *Provider {
	return &Provider{
		entries: make(map[string]entry),
		subs:    make(map[string][]*subscription),
	}
}

func (s *subscription) Messages() <-chan broker.Message { return s.out }

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.provider.mu.Lock()
		defer s.provider.mu.Unlock()
		s.provider.detach(s)
		close(s.out)
	})
	return nil
}

// detach removes a subscription from the fan-out list. Caller holds mu.
func (p *Provider) detach(s *subscription) {
	subs := p.subs[s.channel]
	for i, cur := range subs {
		if cur == s {
			p.subs[s.channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(p.subs[s.channel]) == 0 {
		delete(p.subs, s.channel)
	}
}

func (p *Provider) Subscribe(ctx context.Context, channel string) (broker.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("broker is closed")
	}

	sub := &subscription{
		provider: p,
		channel:  channel,
		out:      make(chan broker.Message, 64),
	}
	p.subs[channel] = append(p.subs[channel], sub)
	return sub, nil
}

func (p *Provider) Publish(ctx context.Context, channel string, payload []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return fmt.Errorf("broker is closed")
	}

	msg := broker.Message{Channel: channel, Payload: payload}
	for _, sub := range p.subs[channel] {
		select {
		case sub.out <- msg:
		default:
			// Subscriber is not draining; drop rather than block the
			// publisher. Live subscribers never hit this in practice.
		}
	}
	return nil
}

func (p *Provider) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("broker is closed")
	}

	p.entries[key] = entry{value: value, expires: time.Now().Add(ttl)}
	return nil
}

func (p *Provider) Get(ctx context.Context, key string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[key]
	if !ok {
		return "", false, nil
	}
	if time.Now().After(e.expires) {
		delete(p.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (p *Provider) Keys(ctx context.Context, pattern string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	var keys []string
	for key, e := range p.entries {
		if now.After(e.expires) {
			delete(p.entries, key)
			continue
		}
		ok, err := path.Match(pattern, key)
		if err != nil {
			return nil, fmt.Errorf("bad key pattern %q: %w", pattern, err)
		}
		if ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (p *Provider) Del(ctx context.Context, keys ...string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var removed int64
	for _, key := range keys {
		if _, ok := p.entries[key]; ok {
			delete(p.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Close shuts down the broker and closes every open subscription.
func (p *Provider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	var open []*subscription
	for _, subs := range p.subs {
		open = append(open, subs...)
	}
	p.subs = make(map[string][]*subscription)
	p.mu.Unlock()

	for _, sub := range open {
		sub.once.Do(func() { close(sub.out) })
	}
	return nil
}

// TTL reports the remaining lifetime of a key. Test helper; not part of
// the broker.Broker interface.
func (p *Provider) TTL(key string) (time.Duration, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	e, ok := p.entries[key]
	if !ok {
		return 0, false
	}
	remaining := time.Until(e.expires)
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}

// Expire force-expires a key immediately. Test helper.
func (p *Provider) Expire(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, key)
}
