package api

import "time"

// ExecutionState is the per-node lifecycle state within a run.
type ExecutionState string

const (
	StateIdle      ExecutionState = "IDLE"
	StatePending   ExecutionState = "PENDING"
	StateRunning   ExecutionState = "RUNNING"
	StateCompleted ExecutionState = "COMPLETED"
	StateFailed    ExecutionState = "FAILED"
	StateSkipped   ExecutionState = "SKIPPED"
	StateCancelled ExecutionState = "CANCELLED"
)

// Terminal reports whether a node in this state will not change again.
func (s ExecutionState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateSkipped, StateCancelled:
		return true
	default:
		return false
	}
}

// RunState is the lifecycle state of a whole run.
type RunState string

const (
	RunNotStarted RunState = "NOT_STARTED"
	RunRunning    RunState = "RUNNING"
	RunCompleted  RunState = "COMPLETED"
	RunFailed     RunState = "FAILED"
	RunCancelled  RunState = "CANCELLED"
)

// Terminal reports whether the run has reached a final state.
func (s RunState) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	default:
		return false
	}
}

// LogEntry is one line of a run's append-only audit log. Entries are
// ordered by arrival (completion time), not by node id.
type LogEntry struct {
	At      time.Time
	NodeID  string
	Message string
}

// Run is the execution record of a single graph run. It is created when
// the run starts and archived, not mutated, once the run reaches a
// terminal state.
type Run struct {
	ID        string
	GraphName string
	State     RunState

	// NodeStates holds the final (or latest persisted) per-node states.
	NodeStates map[string]ExecutionState

	// Seed maps input node ids to externally supplied seed values.
	Seed map[string]any

	// Outputs maps output node ids to the data they received ("delivered").
	Outputs map[string]any

	// Log is the ordered narrative of the run, the only externally exposed
	// audit trail.
	Log []LogEntry

	Err error

	StartedAt time.Time
	EndedAt   time.Time
}

// RunListOptions controls how runs are listed. Zero values mean
// "no filter" for that field.
type RunListOptions struct {
	// GraphName, if non-empty, limits results to runs of the given graph.
	GraphName string

	// State, if non-empty, limits results to runs in the given state.
	State RunState
}
