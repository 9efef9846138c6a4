package persistence

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/petrijr/flowgraph/pkg/api"
)

func init() {
	// Everything crosses the wire as an interface payload, so every
	// concrete type a store may carry must be registered for gob.
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register(map[string]api.ExecutionState{})
	gob.Register([]api.LogEntry{})
	gob.Register(api.Graph{})
}

// EncodeValue serializes a Go value using encoding/gob. Callers must
// ensure the value is gob-encodable. A nil value encodes to nil.
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	// Encode through an interface so payloads round-trip regardless of the
	// concrete type the caller happened to pass.
	iv := v
	if err := gob.NewEncoder(&buf).Encode(&iv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeValue deserializes data produced by EncodeValue into T. Empty
// input yields the zero value.
func DecodeValue[T any](data []byte) (T, error) {
	var zero T
	if len(data) == 0 {
		return zero, nil
	}
	var iv any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&iv); err != nil {
		return zero, err
	}
	v, ok := iv.(T)
	if !ok {
		return zero, fmt.Errorf("gob: decoded payload of type %T not assignable to target", iv)
	}
	return v, nil
}
