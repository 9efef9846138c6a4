package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// CapabilityRef names an external capability (model call, speech synthesis,
// telephony, ...). The engine treats capabilities as opaque, possibly slow,
// possibly failing operations.
type CapabilityRef string

// Invoker executes a capability. Implementations should honor ctx for
// cancellation and deadlines; the executor enforces per-node timeouts
// through the context it passes in.
type Invoker interface {
	Invoke(ctx context.Context, ref CapabilityRef, config map[string]any, inputs map[string]any) (map[string]any, error)
}

// InvokerFunc adapts a plain function into an Invoker.
type InvokerFunc func(ctx context.Context, ref CapabilityRef, config map[string]any, inputs map[string]any) (map[string]any, error)

func (f InvokerFunc) Invoke(ctx context.Context, ref CapabilityRef, config map[string]any, inputs map[string]any) (map[string]any, error) {
	return f(ctx, ref, config, inputs)
}

// CapabilityError wraps a failure reported by a capability integration.
// It carries the original cause for errors.Is/As chains.
type CapabilityError struct {
	Ref   CapabilityRef
	Cause error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability %q failed: %v", e.Ref, e.Cause)
}

func (e *CapabilityError) Unwrap() error { return e.Cause }

// Registry resolves capability refs to invokers and their manifests.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	invokers  map[CapabilityRef]Invoker
	manifests map[CapabilityRef]Manifest
	sink      MessageSink
}

// NewRegistry creates an empty capability registry. Registrations are
// announced on sink as MessageCapabilityAnnouncement; pass nil to skip
// announcements.
func NewRegistry(sink MessageSink) *Registry {
	if sink == nil {
		sink = NoopSink{}
	}
	return &Registry{
		invokers:  make(map[CapabilityRef]Invoker),
		manifests: make(map[CapabilityRef]Manifest),
		sink:      sink,
	}
}

// Register binds an invoker (and optional manifest) to a capability ref.
// Re-registering a ref replaces the previous binding.
func (r *Registry) Register(m Manifest, inv Invoker) error {
	if m.Ref == "" {
		return fmt.Errorf("capability ref is required")
	}
	if inv == nil {
		return fmt.Errorf("capability %q has nil invoker", m.Ref)
	}
	if err := m.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	r.invokers[m.Ref] = inv
	r.manifests[m.Ref] = m
	r.mu.Unlock()

	_ = r.sink.Publish(context.Background(), Message{
		Type:      MessageCapabilityAnnouncement,
		From:      string(m.Ref),
		Payload:   m,
		Timestamp: time.Now(),
	})
	return nil
}

// Manifest returns the manifest registered for ref, if any.
func (r *Registry) Manifest(ref CapabilityRef) (Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.manifests[ref]
	return m, ok
}

// Refs lists all registered capability refs in lexical order.
func (r *Registry) Refs() []CapabilityRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CapabilityRef, 0, len(r.invokers))
	for ref := range r.invokers {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Invoke dispatches to the registered invoker. An unknown ref is reported
// as a CapabilityError so the retry policy treats it uniformly.
func (r *Registry) Invoke(ctx context.Context, ref CapabilityRef, config map[string]any, inputs map[string]any) (map[string]any, error) {
	r.mu.RLock()
	inv, ok := r.invokers[ref]
	r.mu.RUnlock()
	if !ok {
		return nil, &CapabilityError{Ref: ref, Cause: fmt.Errorf("no invoker registered")}
	}
	return inv.Invoke(ctx, ref, config, inputs)
}

var _ Invoker = (*Registry)(nil)
