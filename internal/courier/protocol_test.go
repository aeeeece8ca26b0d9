package courier

import (
	"errors"
	"testing"
)

func TestEnvelopeBuilders(t *testing.T) {
	t.Run("NewCall", func(t *testing.T) {
		env := NewCall("node-a", "id-1", "echo", []any{"hi"})

		if env.Type != TYPE_CALL {
			t.Errorf("Expected type %s, got %s", TYPE_CALL, env.Type)
		}
		if env.Sender != "node-a" {
			t.Errorf("Expected sender 'node-a', got %s", env.Sender)
		}
		if env.ID != "id-1" {
			t.Errorf("Expected id 'id-1', got %s", env.ID)
		}
		if env.Name != "echo" {
			t.Errorf("Expected name 'echo', got %s", env.Name)
		}
		if len(env.Args) != 1 || env.Args[0] != "hi" {
			t.Errorf("Expected args ['hi'], got %v", env.Args)
		}
	})

	t.Run("NewCallNilArgs", func(t *testing.T) {
		env := NewCall("node-a", "id-1", "echo", nil)
		if env.Args == nil {
			t.Error("Expected empty args slice, got nil")
		}
	})

	t.Run("NewMessage", func(t *testing.T) {
		env := NewMessage("node-a", "hello")

		if env.Type != TYPE_MESSAGE {
			t.Errorf("Expected type %s, got %s", TYPE_MESSAGE, env.Type)
		}
		if env.ID != "" {
			t.Errorf("Expected empty id, got %s", env.ID)
		}
		if len(env.Args) != 1 || env.Args[0] != "hello" {
			t.Errorf("Expected args ['hello'], got %v", env.Args)
		}
	})

	t.Run("NewResultSuccess", func(t *testing.T) {
		call := NewCall("node-b", "id-7", "echo", []any{"hi"})
		env := NewResult("node-a", call, nil, []any{"hi"})

		if env.Type != TYPE_RESULT {
			t.Errorf("Expected type %s, got %s", TYPE_RESULT, env.Type)
		}
		if env.ID != "id-7" {
			t.Errorf("Expected correlation id 'id-7', got %s", env.ID)
		}
		if env.Sender != "node-a" {
			t.Errorf("Expected sender 'node-a', got %s", env.Sender)
		}
		if env.Error != "" {
			t.Errorf("Expected no error, got %s", env.Error)
		}
	})

	t.Run("NewResultFailure", func(t *testing.T) {
		call := NewCall("node-b", "id-7", "echo", nil)
		env := NewResult("node-a", call, errors.New(ERR_NO_HANDLER), nil)

		if env.Error != ERR_NO_HANDLER {
			t.Errorf("Expected error %q, got %q", ERR_NO_HANDLER, env.Error)
		}
		if env.Args == nil || len(env.Args) != 0 {
			t.Errorf("Expected empty args, got %v", env.Args)
		}
	})
}

func TestEnvelopeValidation(t *testing.T) {
	t.Run("ValidCall", func(t *testing.T) {
		env := NewCall("node-a", "id-1", "echo", []any{"hi"})
		if err := ValidateEnvelope(env); err != nil {
			t.Errorf("Expected valid envelope, got error: %v", err)
		}
	})

	t.Run("CallMissingID", func(t *testing.T) {
		env := &Envelope{Type: TYPE_CALL, Sender: "node-a", Name: "echo"}
		if err := ValidateEnvelope(env); err == nil {
			t.Error("Expected validation error for call without id")
		}
	})

	t.Run("CallMissingName", func(t *testing.T) {
		env := &Envelope{Type: TYPE_CALL, Sender: "node-a", ID: "id-1"}
		if err := ValidateEnvelope(env); err == nil {
			t.Error("Expected validation error for call without name")
		}
	})

	t.Run("ResultMissingID", func(t *testing.T) {
		env := &Envelope{Type: TYPE_RESULT, Sender: "node-a"}
		if err := ValidateEnvelope(env); err == nil {
			t.Error("Expected validation error for result without id")
		}
	})

	t.Run("MissingSender", func(t *testing.T) {
		env := &Envelope{Type: TYPE_MESSAGE}
		if err := ValidateEnvelope(env); err == nil {
			t.Error("Expected validation error for missing sender")
		}
	})

	t.Run("UnknownType", func(t *testing.T) {
		env := &Envelope{Type: "bogus", Sender: "node-a"}
		if err := ValidateEnvelope(env); err == nil {
			t.Error("Expected validation error for unknown type")
		}
	})
}

func TestCodec(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		env := NewCall("node-b", "id-1", "echo", []any{"hi", float64(3)})

		data, err := EncodeEnvelope(env)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}

		decoded, err := DecodeEnvelope(data)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}

		if decoded.Type != env.Type || decoded.Sender != env.Sender ||
			decoded.ID != env.ID || decoded.Name != env.Name {
			t.Errorf("Decoded envelope %+v does not match original %+v", decoded, env)
		}
		if len(decoded.Args) != 2 || decoded.Args[0] != "hi" || decoded.Args[1] != float64(3) {
			t.Errorf("Expected args ['hi', 3], got %v", decoded.Args)
		}
	})

	t.Run("DecodeGarbage", func(t *testing.T) {
		if _, err := DecodeEnvelope([]byte("{not json")); err == nil {
			t.Error("Expected decode error for malformed payload")
		}
	})
}
