// Package runctx holds the per-run execution context: the shared data
// store keyed by output port and the append-only run log.
package runctx

import (
	"fmt"
	"sync"
	"time"

	"github.com/petrijr/flowgraph/pkg/api"
)

// DuplicateWriteError reports a second write to a port key within the same
// run. Each output port produces a value at most once per run; concurrent
// writers on the same key are a bug surfaced as this error, never silent
// corruption.
type DuplicateWriteError struct {
	Key string
}

func (e *DuplicateWriteError) Error() string {
	return fmt.Sprintf("port key %q was already written this run", e.Key)
}

// Context is the single mutable shared resource of a run. It is safe for
// concurrent use through the Write/Append contracts: writes are keyed by
// distinct port keys, and log appends preserve arrival order.
type Context struct {
	runID string

	mu   sync.Mutex
	data map[string]any
	log  []api.LogEntry
}

// New creates an empty execution context for the given run.
func New(runID string) *Context {
	return &Context{
		runID: runID,
		data:  make(map[string]any),
	}
}

// RunID returns the id of the run this context belongs to.
func (c *Context) RunID() string { return c.runID }

// Write stores the value produced on a port key. A second write to the
// same key fails with *DuplicateWriteError.
func (c *Context) Write(key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; exists {
		return &DuplicateWriteError{Key: key}
	}
	c.data[key] = value
	return nil
}

// Read returns the value written on a port key, if available.
func (c *Context) Read(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.data[key]
	return v, ok
}

// Snapshot returns a copy of all accumulated data. Condition predicates
// receive this so they can consult the whole run, not just static config.
func (c *Context) Snapshot() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]any, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// Append adds one entry to the run log. The log is append-only and ordered
// by arrival, which makes it the authoritative audit trail of the run.
func (c *Context) Append(nodeID, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.log = append(c.log, api.LogEntry{
		At:      time.Now(),
		NodeID:  nodeID,
		Message: message,
	})
}

// Appendf is Append with fmt-style formatting.
func (c *Context) Appendf(nodeID, format string, args ...any) {
	c.Append(nodeID, fmt.Sprintf(format, args...))
}

// Log returns a copy of the log accumulated so far, in arrival order.
func (c *Context) Log() []api.LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]api.LogEntry, len(c.log))
	copy(out, c.log)
	return out
}
