package courier

import (
	"context"
	"fmt"
	"time"
)

// Courier Protocol Constants
const (
	// Envelope types
	TYPE_CALL    = "call"
	TYPE_MESSAGE = "message"
	TYPE_RESULT  = "result"

	// Key namespace tags
	TAG_SERVICE = "S"
	TAG_LISTEN  = "L"

	// Protocol error strings carried on result envelopes
	ERR_NO_HANDLER   = "service handler not found"
	ERR_UNKNOWN_TYPE = "unknown message type"
)

// Defaults applied when construction options leave a value unset
const (
	DefaultPrefix    = "courier"
	DefaultHeartbeat = 15 * time.Second
	DefaultRole      = "node"
)

// Envelope is the unit exchanged between nodes over listen channels.
// A call carries a correlation ID and a service name; the matching result
// carries the same ID back to the caller's channel. A message carries
// neither, it is one-way.
type Envelope struct {
	Type   string `json:"type"`
	Sender string `json:"sender"`
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Args   []any  `json:"args"`
	Error  string `json:"error,omitempty"`
}

// Handler processes an inbound call. The returned values become the args of
// the result envelope; a non-nil error becomes its error string. Handlers
// run concurrently with each other and with heartbeat refreshes.
type Handler func(ctx context.Context, args []any) ([]any, error)

// ValidateEnvelope checks the structural rules an envelope must satisfy
// before it may be dispatched or published.
func ValidateEnvelope(env *Envelope) error {
	if env.Sender == "" {
		return fmt.Errorf("sender is required")
	}

	switch env.Type {
	case TYPE_CALL:
		if env.ID == "" {
			return fmt.Errorf("id required for call envelope")
		}
		if env.Name == "" {
			return fmt.Errorf("name required for call envelope")
		}
	case TYPE_RESULT:
		if env.ID == "" {
			return fmt.Errorf("id required for result envelope")
		}
	case TYPE_MESSAGE:
		// No additional fields required
	default:
		return fmt.Errorf("unknown envelope type: %s", env.Type)
	}

	return nil
}
