package api

import (
	"context"
	"sync"
	"time"
)

// StatusEvent is one item of the status feed consumed by UIs. An event
// with an empty NodeID reports a run-level transition; otherwise it
// reports a node transition.
//
// Delivery is at-least-once; consumers must be idempotent on
// (NodeID, NodeState) and (RunID, RunState) pairs.
type StatusEvent struct {
	RunID     string         `json:"run_id"`
	NodeID    string         `json:"node_id,omitempty"`
	NodeState ExecutionState `json:"node_state,omitempty"`
	RunState  RunState       `json:"run_state,omitempty"`
	At        time.Time      `json:"at"`
}

// StatusFeed receives status events as the scheduler transitions nodes
// and runs. Implementations must tolerate concurrent publishers.
type StatusFeed interface {
	Publish(ctx context.Context, ev StatusEvent) error
}

// NoopFeed discards all events. It is the default when no feed is
// configured.
type NoopFeed struct{}

func (NoopFeed) Publish(ctx context.Context, ev StatusEvent) error { return nil }

// BufferFeed collects events in memory, preserving arrival order.
// Intended for tests and for polling UIs in single-process deployments.
type BufferFeed struct {
	mu     sync.Mutex
	events []StatusEvent
}

var _ StatusFeed = (*BufferFeed)(nil)

func (f *BufferFeed) Publish(ctx context.Context, ev StatusEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

// Events returns a copy of everything published so far.
func (f *BufferFeed) Events() []StatusEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]StatusEvent, len(f.events))
	copy(out, f.events)
	return out
}
