package courier

import (
	"context"
	"fmt"
	"strconv"

	"courier/internal/telemetry"
)

// Register stores a handler under a service name and immediately resets the
// service's heartbeat key, without blocking on the broker write. Registering
// the same name again silently replaces the handler. Returns the node for
// chaining.
func (n *Node) Register(name string, handler Handler) *Node {
	n.mu.Lock()
	n.services[name] = handler
	n.mu.Unlock()

	n.logger.Info().Str("service", name).Msg("Registered service")

	go func() {
		if err := n.resetServiceScore(n.ctx, name); err != nil {
			n.logger.Error().Err(err).Str("service", name).Msg("Failed to reset service score")
		}
	}()

	return n
}

// resetServiceScore writes the heartbeat key with score 0 and a fresh TTL.
// Used at registration and as the recovery path when a refresh finds the
// key missing or corrupted.
func (n *Node) resetServiceScore(ctx context.Context, name string) error {
	key := n.ns.HeartbeatKey(name, n.id)
	if err := n.broker.SetEx(ctx, key, "0", 2*n.heartbeat); err != nil {
		telemetry.HeartbeatRefreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to reset score for %s: %w", name, err)
	}
	telemetry.HeartbeatRefreshes.WithLabelValues("reset").Inc()
	return nil
}

// keepServiceScore extends the heartbeat key's lifetime while preserving
// whatever score an external collaborator wrote there. Scores are only
// invented on first creation or on recovery from a lost or corrupted key.
func (n *Node) keepServiceScore(ctx context.Context, name string) error {
	key := n.ns.HeartbeatKey(name, n.id)

	val, ok, err := n.broker.Get(ctx, key)
	if err != nil {
		telemetry.HeartbeatRefreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to read score for %s: %w", name, err)
	}

	if !ok {
		return n.resetServiceScore(ctx, name)
	}
	if score, perr := strconv.Atoi(val); perr != nil || score < 0 {
		n.logger.Warn().Str("service", name).Str("value", val).Msg("Heartbeat key corrupted, resetting")
		return n.resetServiceScore(ctx, name)
	}

	if err := n.broker.SetEx(ctx, key, val, 2*n.heartbeat); err != nil {
		telemetry.HeartbeatRefreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to refresh score for %s: %w", name, err)
	}
	telemetry.HeartbeatRefreshes.WithLabelValues("keep").Inc()
	return nil
}

// heartbeatLoop refreshes every registered service on each tick. Each
// service refreshes independently; one failing does not block the others.
func (n *Node) heartbeatLoop() {
	n.logger.Debug().Dur("interval", n.heartbeat).Msg("Starting heartbeat loop")

	for {
		select {
		case <-n.ticker.C:
			n.mu.RLock()
			names := make([]string, 0, len(n.services))
			for name := range n.services {
				names = append(names, name)
			}
			n.mu.RUnlock()

			for _, name := range names {
				go func(name string) {
					if err := n.keepServiceScore(n.ctx, name); err != nil {
						n.logger.Warn().Err(err).Str("service", name).Msg("Heartbeat refresh failed")
					}
				}(name)
			}
		case <-n.ctx.Done():
			n.logger.Debug().Msg("Heartbeat loop stopping")
			return
		}
	}
}
