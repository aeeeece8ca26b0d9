package courier

import (
	"encoding/json"
	"fmt"
)

// EncodeEnvelope serializes an envelope to its wire form.
func EncodeEnvelope(env *Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses a raw channel payload into an envelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return &env, nil
}

// NewCall builds a call envelope for a named service.
func NewCall(sender, id, name string, args []any) *Envelope {
	if args == nil {
		args = []any{}
	}
	return &Envelope{
		Type:   TYPE_CALL,
		Sender: sender,
		ID:     id,
		Name:   name,
		Args:   args,
	}
}

// NewMessage builds a one-way message envelope carrying a single payload.
func NewMessage(sender string, payload any) *Envelope {
	return &Envelope{
		Type:   TYPE_MESSAGE,
		Sender: sender,
		Args:   []any{payload},
	}
}

// NewResult builds the result envelope answering a call. The correlation ID
// is taken from the call so the caller can match it to the outstanding
// request.
func NewResult(sender string, call *Envelope, err error, results []any) *Envelope {
	if results == nil {
		results = []any{}
	}
	env := &Envelope{
		Type:   TYPE_RESULT,
		Sender: sender,
		ID:     call.ID,
		Args:   results,
	}
	if err != nil {
		env.Error = err.Error()
	}
	return env
}
