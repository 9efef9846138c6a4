package api

import "context"

// Engine is the run control surface. An Engine stores graph definitions,
// registers capability invokers, starts and cancels runs, and exposes
// execution records.
type Engine interface {
	// RegisterGraph validates and stores a graph definition by name.
	// A graph that fails validation is rejected and can never run.
	RegisterGraph(g Graph) error

	// RegisterCapability binds an invoker (with its manifest) so agent and
	// condition nodes can reference it from their config.
	RegisterCapability(m Manifest, inv Invoker) error

	// StartRun executes the named graph to a terminal state (synchronously)
	// and returns its execution record. Seed maps input node ids to
	// externally supplied values; input nodes without a seed use their
	// configured constant.
	StartRun(ctx context.Context, graphName string, seed map[string]any) (*Run, error)

	// CancelRun requests cooperative cancellation of an in-flight run.
	// All pending/running nodes are marked cancelled and no further nodes
	// are dispatched. Cancelling a run that is not active is an error.
	CancelRun(ctx context.Context, runID string) error

	// GetRun looks up a run by ID, including per-node states and the log.
	// Returns an error if the run is not found.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs matching the given options.
	// If options are zero-valued, all runs are returned.
	ListRuns(ctx context.Context, opts RunListOptions) ([]*Run, error)
}
