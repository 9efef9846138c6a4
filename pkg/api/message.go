package api

import (
	"context"
	"sync"
	"time"
)

// MessageType identifies an inter-node status message.
type MessageType string

const (
	MessageTaskRequest            MessageType = "task.request"
	MessageTaskResponse           MessageType = "task.response"
	MessageTaskError              MessageType = "task.error"
	MessageHeartbeat              MessageType = "heartbeat"
	MessageStatusUpdate           MessageType = "status.update"
	MessageCapabilityAnnouncement MessageType = "capability.announcement"
)

// Message is a small coordination/observability record emitted by the
// scheduler, executor, and workers. Messages never carry pipeline data;
// that lives in the execution context.
type Message struct {
	Type      MessageType
	From      string
	To        string
	RunID     string
	Payload   any
	Timestamp time.Time
}

// MessageSink receives protocol messages. Implementations should be fast
// and non-blocking; heavy work should be done asynchronously so as not to
// delay execution. Delivery is at-least-once; consumers must be idempotent.
type MessageSink interface {
	Publish(ctx context.Context, msg Message) error
}

// NoopSink discards all messages. It is the default when no sink is
// configured.
type NoopSink struct{}

func (NoopSink) Publish(ctx context.Context, msg Message) error { return nil }

// BufferSink collects messages in memory. Intended for tests and for
// in-process observers that drain Messages() after a run.
type BufferSink struct {
	mu   sync.Mutex
	msgs []Message
}

var _ MessageSink = (*BufferSink)(nil)

func (s *BufferSink) Publish(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

// Messages returns a copy of everything published so far, in arrival order.
func (s *BufferSink) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// CompositeSink fans messages out to multiple sinks.
type CompositeSink struct {
	sinks []MessageSink
}

// NewCompositeSink creates a sink that forwards to each non-nil sink.
func NewCompositeSink(sinks ...MessageSink) MessageSink {
	filtered := make([]MessageSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) == 0 {
		return NoopSink{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeSink{sinks: filtered}
}

func (c *CompositeSink) Publish(ctx context.Context, msg Message) error {
	for _, s := range c.sinks {
		if err := s.Publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}
