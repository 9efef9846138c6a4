package taskqueue

import (
	"bytes"
	"encoding/gob"
)

func init() {
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

// encodeTask serializes a whole task for backends that store opaque
// payloads (Redis, RabbitMQ). Seed values must be gob-encodable.
func encodeTask(t Task) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeTask(data []byte) (*Task, error) {
	var t Task
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

// encodeSeed serializes just the seed map for backends with columnar
// storage (SQLite).
func encodeSeed(seed map[string]any) ([]byte, error) {
	if seed == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(seed); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSeed(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var seed map[string]any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&seed); err != nil {
		return nil, err
	}
	return seed, nil
}
