package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay run execution.
type Observer interface {
	// OnRunStart is called once when a run is started, after graph
	// validation and before the first node is dispatched.
	OnRunStart(ctx context.Context, run *Run)

	// OnRunCompleted is called when a run reaches RunCompleted.
	OnRunCompleted(ctx context.Context, run *Run)

	// OnRunFailed is called when a run transitions to RunFailed.
	OnRunFailed(ctx context.Context, run *Run, err error)

	// OnRunCancelled is called when a run transitions to RunCancelled.
	// Cancellation is a distinct terminal outcome, not a failure.
	OnRunCancelled(ctx context.Context, run *Run)

	// OnNodeStart is called when a node is dispatched (Pending -> Running).
	OnNodeStart(ctx context.Context, run *Run, nodeID string)

	// OnNodeFinished is called when a node reaches a terminal state, for
	// successes and failures alike (err != nil on failure).
	OnNodeFinished(ctx context.Context, run *Run, nodeID string, state ExecutionState, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(ctx context.Context, run *Run)             {}
func (NoopObserver) OnRunCompleted(ctx context.Context, run *Run)         {}
func (NoopObserver) OnRunFailed(ctx context.Context, run *Run, err error) {}
func (NoopObserver) OnRunCancelled(ctx context.Context, run *Run)         {}
func (NoopObserver) OnNodeStart(ctx context.Context, run *Run, nodeID string) {
}
func (NoopObserver) OnNodeFinished(ctx context.Context, run *Run, nodeID string, state ExecutionState, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, run *Run) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, run)
	}
}

func (c *CompositeObserver) OnRunCompleted(ctx context.Context, run *Run) {
	for _, o := range c.observers {
		o.OnRunCompleted(ctx, run)
	}
}

func (c *CompositeObserver) OnRunFailed(ctx context.Context, run *Run, err error) {
	for _, o := range c.observers {
		o.OnRunFailed(ctx, run, err)
	}
}

func (c *CompositeObserver) OnRunCancelled(ctx context.Context, run *Run) {
	for _, o := range c.observers {
		o.OnRunCancelled(ctx, run)
	}
}

func (c *CompositeObserver) OnNodeStart(ctx context.Context, run *Run, nodeID string) {
	for _, o := range c.observers {
		o.OnNodeStart(ctx, run, nodeID)
	}
}

func (c *CompositeObserver) OnNodeFinished(ctx context.Context, run *Run, nodeID string, state ExecutionState, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnNodeFinished(ctx, run, nodeID, state, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run / node lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, run *Run) {
	o.Logger.InfoContext(ctx, "run_start",
		slog.String("graph", run.GraphName),
		slog.String("run_id", run.ID),
	)
}

func (o *LoggingObserver) OnRunCompleted(ctx context.Context, run *Run) {
	o.Logger.InfoContext(ctx, "run_completed",
		slog.String("graph", run.GraphName),
		slog.String("run_id", run.ID),
	)
}

func (o *LoggingObserver) OnRunFailed(ctx context.Context, run *Run, err error) {
	o.Logger.ErrorContext(ctx, "run_failed",
		slog.String("graph", run.GraphName),
		slog.String("run_id", run.ID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnRunCancelled(ctx context.Context, run *Run) {
	o.Logger.WarnContext(ctx, "run_cancelled",
		slog.String("graph", run.GraphName),
		slog.String("run_id", run.ID),
	)
}

func (o *LoggingObserver) OnNodeStart(ctx context.Context, run *Run, nodeID string) {
	o.Logger.DebugContext(ctx, "node_start",
		slog.String("graph", run.GraphName),
		slog.String("run_id", run.ID),
		slog.String("node", nodeID),
	)
}

func (o *LoggingObserver) OnNodeFinished(ctx context.Context, run *Run, nodeID string, state ExecutionState, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "node_finished",
		slog.String("graph", run.GraphName),
		slog.String("run_id", run.ID),
		slog.String("node", nodeID),
		slog.String("state", string(state)),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate node durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	runsStarted       atomic.Int64
	runsCompleted     atomic.Int64
	runsFailed        atomic.Int64
	runsCancelled     atomic.Int64
	nodesCompleted    atomic.Int64
	totalNodeDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64
	RunsCancelled int64
	ActiveRuns    int64

	NodesCompleted  int64
	AvgNodeDuration time.Duration
}

func (m *BasicMetrics) OnRunStart(ctx context.Context, run *Run) {
	m.runsStarted.Add(1)
}

func (m *BasicMetrics) OnRunCompleted(ctx context.Context, run *Run) {
	m.runsCompleted.Add(1)
}

func (m *BasicMetrics) OnRunFailed(ctx context.Context, run *Run, err error) {
	m.runsFailed.Add(1)
}

func (m *BasicMetrics) OnRunCancelled(ctx context.Context, run *Run) {
	m.runsCancelled.Add(1)
}

func (m *BasicMetrics) OnNodeFinished(ctx context.Context, run *Run, nodeID string, state ExecutionState, err error, d time.Duration) {
	// Only count successful nodes for average duration.
	if err == nil && state == StateCompleted {
		m.nodesCompleted.Add(1)
		m.totalNodeDuration.Add(d.Nanoseconds())
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.runsStarted.Load()
	completed := m.runsCompleted.Load()
	failed := m.runsFailed.Load()
	cancelled := m.runsCancelled.Load()
	nodes := m.nodesCompleted.Load()
	totalNs := m.totalNodeDuration.Load()

	var avg time.Duration
	if nodes > 0 {
		avg = time.Duration(totalNs / nodes)
	}

	return BasicMetricsSnapshot{
		RunsStarted:     started,
		RunsCompleted:   completed,
		RunsFailed:      failed,
		RunsCancelled:   cancelled,
		ActiveRuns:      started - completed - failed - cancelled,
		NodesCompleted:  nodes,
		AvgNodeDuration: avg,
	}
}
