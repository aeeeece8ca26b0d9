package courier

import (
	"errors"
	"fmt"

	"courier/internal/broker"
	"courier/internal/telemetry"
)

// receiveLoop drains the listen channel subscription and dispatches every
// payload until the node is torn down.
func (n *Node) receiveLoop() {
	for {
		select {
		case <-n.ctx.Done():
			return
		case msg, ok := <-n.sub.Messages():
			if !ok {
				return
			}
			n.dispatch(msg)
		}
	}
}

// dispatch classifies one inbound payload. Undecodable payloads and
// payloads arriving on a foreign channel are dropped locally; there is no
// sender context to answer to yet.
func (n *Node) dispatch(msg broker.Message) {
	env, err := DecodeEnvelope(msg.Payload)
	if err != nil {
		telemetry.DroppedEnvelopes.Inc()
		n.logger.Warn().Err(err).Msg("Dropping undecodable payload")
		return
	}

	if msg.Channel != n.listen {
		telemetry.DroppedEnvelopes.Inc()
		n.logger.Warn().Str("channel", msg.Channel).Msg("Dropping misrouted envelope")
		return
	}

	telemetry.EnvelopesReceived.WithLabelValues(env.Type).Inc()

	switch env.Type {
	case TYPE_CALL:
		// Calls dispatch concurrently; results may publish in any order
		// relative to receipt order.
		go n.handleCall(env)
	case TYPE_MESSAGE:
		n.emitMessage(env)
	default:
		go func() {
			if err := n.respond(env, errors.New(ERR_UNKNOWN_TYPE), nil); err != nil {
				n.logger.Error().Err(err).Str("type", env.Type).Msg("Failed to answer unknown envelope type")
			}
		}()
	}
}

// handleCall invokes the named service handler and publishes exactly one
// result envelope back to the caller, whatever the handler does. The
// broker redelivers at least once; a call id already answered gets its
// original result republished instead of a second handler invocation.
func (n *Node) handleCall(env *Envelope) {
	cacheKey := env.Sender + "/" + env.ID
	if cached, ok := n.answered.Get(cacheKey); ok {
		n.logger.Debug().Str("id", env.ID).Msg("Republishing result for redelivered call")
		if err := n.broker.Publish(n.ctx, n.ns.ListenChannel(env.Sender), cached); err != nil {
			n.logger.Error().Err(err).Str("id", env.ID).Msg("Failed to republish result")
		}
		return
	}

	n.mu.RLock()
	handler, ok := n.services[env.Name]
	n.mu.RUnlock()

	if !ok {
		n.logger.Warn().Str("service", env.Name).Str("sender", env.Sender).Msg("Call for unregistered service")
		if err := n.respond(env, errors.New(ERR_NO_HANDLER), nil); err != nil {
			n.logger.Error().Err(err).Str("id", env.ID).Msg("Failed to answer call")
		}
		return
	}

	results, err := n.invoke(handler, env.Args)
	if rerr := n.respond(env, err, results); rerr != nil {
		n.logger.Error().Err(rerr).Str("id", env.ID).Msg("Failed to answer call")
	}
}

// invoke runs a handler, converting a panic into an error so the call
// still gets its one result.
func (n *Node) invoke(handler Handler, args []any) (results []any, err error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(n.ctx, args)
}

// respond publishes the result envelope for a call to the original
// sender's listen channel and caches it against redelivery.
func (n *Node) respond(source *Envelope, callErr error, results []any) error {
	if source.Sender == "" {
		return fmt.Errorf("envelope has no sender to respond to")
	}

	data, err := EncodeEnvelope(NewResult(n.id, source, callErr, results))
	if err != nil {
		return err
	}

	if err := n.broker.Publish(n.ctx, n.ns.ListenChannel(source.Sender), data); err != nil {
		telemetry.ResultsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to publish result for %s: %w", source.ID, err)
	}

	if source.ID != "" {
		n.answered.Add(source.Sender+"/"+source.ID, data)
	}

	if callErr != nil {
		telemetry.ResultsPublished.WithLabelValues("failed_call").Inc()
	} else {
		telemetry.ResultsPublished.WithLabelValues("ok").Inc()
	}
	return nil
}

// emitMessage surfaces a direct message to every registered listener.
func (n *Node) emitMessage(env *Envelope) {
	n.eventMu.RLock()
	listeners := n.onMessage
	n.eventMu.RUnlock()

	n.logger.Debug().Str("sender", env.Sender).Int("args", len(env.Args)).Msg("Received message")

	for _, fn := range listeners {
		fn(env.Sender, env.Args)
	}
}
