// Package scheduler drives one run of a workflow graph: it dispatches
// nodes as their dependencies resolve, fans out independent branches,
// prunes the losing side of conditions, and settles the run into a
// terminal state.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/petrijr/flowgraph/internal/executor"
	"github.com/petrijr/flowgraph/internal/graph"
	"github.com/petrijr/flowgraph/internal/runctx"
	"github.com/petrijr/flowgraph/pkg/api"
)

// edgeStatus tracks whether an edge will ever deliver. Every edge starts
// unknown; a node completion resolves its outgoing edges to active or
// pruned. A node dispatches only once none of its incoming edges are
// unknown.
type edgeStatus int

const (
	edgeUnknown edgeStatus = iota
	edgeActive
	edgePruned
)

// Options tunes a single run.
type Options struct {
	// MaxConcurrent caps the number of nodes executing at once.
	// Zero means unlimited.
	MaxConcurrent int
}

// Scheduler executes one run of one graph. It is single-use: create a new
// Scheduler per run.
type Scheduler struct {
	graph    *api.Graph
	exec     *executor.Executor
	rc       *runctx.Context
	run      *api.Run
	seed     map[string]any
	observer api.Observer
	feed     api.StatusFeed
	opts     Options

	// incoming/outgoing hold edge indices into graph.Edges per node.
	incoming map[string][]int
	outgoing map[string][]int

	mu          sync.Mutex
	states      map[string]api.ExecutionState
	edges       []edgeStatus
	delivered   map[string]any
	firstErr    error
	cancelled   bool
	outstanding int

	cancelRun context.CancelFunc
	wake      chan struct{}
}

// New prepares a scheduler for one run. The graph must already be
// validated; seed maps input node ids to externally supplied values.
func New(g *api.Graph, exec *executor.Executor, rc *runctx.Context, run *api.Run, seed map[string]any, observer api.Observer, feed api.StatusFeed, opts Options) *Scheduler {
	if observer == nil {
		observer = api.NoopObserver{}
	}
	if feed == nil {
		feed = api.NoopFeed{}
	}
	s := &Scheduler{
		graph:    g,
		exec:     exec,
		rc:       rc,
		run:      run,
		seed:     seed,
		observer: observer,
		feed:     feed,
		opts:     opts,

		incoming:  make(map[string][]int),
		outgoing:  make(map[string][]int),
		states:    make(map[string]api.ExecutionState, len(g.Nodes)),
		edges:     make([]edgeStatus, len(g.Edges)),
		delivered: make(map[string]any),
		wake:      make(chan struct{}, 1),
	}
	for i, e := range g.Edges {
		s.incoming[e.TargetNode] = append(s.incoming[e.TargetNode], i)
		s.outgoing[e.SourceNode] = append(s.outgoing[e.SourceNode], i)
	}
	for _, n := range g.Nodes {
		s.states[n.ID] = api.StateIdle
	}
	return s
}

// Run executes the graph to a terminal run state. It returns the first
// node error, context.Canceled on cancellation, or nil on success. The
// run record passed to New is updated in place before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancelRun = cancel
	s.mu.Unlock()

	// Dispatch in topological order so log output and tie-breaking are
	// deterministic across runs of an unchanged graph.
	order, err := graph.TopologicalOrder(s.graph)
	if err != nil {
		return err
	}

	for {
		s.mu.Lock()
		s.resolveSkips(runCtx)
		dispatched := s.dispatch(runCtx, order)
		// A halted run only drains; idle nodes it will never dispatch
		// must not keep the loop alive.
		done := s.outstanding == 0 && (s.halted(runCtx) || !s.anyDispatchable(order))
		s.mu.Unlock()

		if done && !dispatched {
			break
		}
		if !dispatched {
			// Progress always arrives as a wake: workers signal on
			// completion and Cancel signals explicitly.
			<-s.wake
		}
	}

	return s.finish(ctx)
}

// Cancel requests cooperative cancellation: in-flight nodes are stopped
// through their context and nothing new is dispatched.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	cancel := s.cancelRun
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.signal()
}

// NodeStates returns a point-in-time copy of all node states.
func (s *Scheduler) NodeStates() map[string]api.ExecutionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]api.ExecutionState, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out
}

// resolveSkips marks nodes whose every incoming edge is pruned as skipped
// and prunes their outgoing edges. Skips cascade, so the loop repeats
// until it stops making progress. Caller holds s.mu.
func (s *Scheduler) resolveSkips(ctx context.Context) {
	for {
		progressed := false
		for _, n := range s.graph.Nodes {
			if s.states[n.ID] != api.StateIdle {
				continue
			}
			in := s.incoming[n.ID]
			if len(in) == 0 {
				continue
			}
			allPruned := true
			for _, i := range in {
				if s.edges[i] != edgePruned {
					allPruned = false
					break
				}
			}
			if !allPruned {
				continue
			}
			s.setStateLocked(ctx, n.ID, api.StateSkipped)
			for _, i := range s.outgoing[n.ID] {
				s.edges[i] = edgePruned
			}
			progressed = true
		}
		if !progressed {
			return
		}
	}
}

// dispatch launches every ready node, respecting the concurrency cap.
// Caller holds s.mu; returns whether anything was launched.
func (s *Scheduler) dispatch(ctx context.Context, order []string) bool {
	if s.halted(ctx) {
		return false
	}
	launched := false
	for _, id := range order {
		if s.opts.MaxConcurrent > 0 && s.outstanding >= s.opts.MaxConcurrent {
			break
		}
		if s.states[id] != api.StateIdle || !s.readyLocked(id) {
			continue
		}
		node, _ := s.graph.Node(id)
		inputs := s.gatherInputsLocked(*node)

		s.setStateLocked(ctx, id, api.StatePending)
		s.setStateLocked(ctx, id, api.StateRunning)
		s.outstanding++
		launched = true
		go s.runNode(ctx, *node, inputs)
	}
	return launched
}

// readyLocked reports whether a node can dispatch: no incoming edge is
// still unresolved, and at least one delivers.
func (s *Scheduler) readyLocked(id string) bool {
	in := s.incoming[id]
	if len(in) == 0 {
		return true
	}
	active := false
	for _, i := range in {
		switch s.edges[i] {
		case edgeUnknown:
			return false
		case edgeActive:
			active = true
		}
	}
	return active
}

// anyDispatchable reports whether some idle node could still run or skip.
func (s *Scheduler) anyDispatchable(order []string) bool {
	for _, id := range order {
		if s.states[id] == api.StateIdle {
			return true
		}
	}
	return false
}

func (s *Scheduler) halted(ctx context.Context) bool {
	return s.cancelled || s.firstErr != nil || ctx.Err() != nil
}

// gatherInputsLocked assembles a node's input values from the values its
// active incoming data edges carry. Control and event edges gate order
// only. Input nodes receive their external seed under "seed".
func (s *Scheduler) gatherInputsLocked(node api.Node) map[string]any {
	inputs := make(map[string]any)
	if node.Kind == api.NodeInput {
		if v, ok := s.seed[node.ID]; ok {
			inputs["seed"] = v
		}
		return inputs
	}
	for _, i := range s.incoming[node.ID] {
		if s.edges[i] != edgeActive {
			continue
		}
		e := s.graph.Edges[i]
		if e.Kind == api.EdgeControl || e.Kind == api.EdgeEvent {
			continue
		}
		src, ok := s.graph.Node(e.SourceNode)
		if !ok {
			continue
		}
		srcPort := e.SourcePort
		if srcPort == "" {
			srcPort = api.DefaultOutputPort(*src)
		}
		value, found := s.rc.Read(api.PortKey(e.SourceNode, srcPort))
		if !found {
			continue
		}
		key := e.TargetPort
		if key == "" {
			key = srcPort
		}
		inputs[key] = value
	}
	return inputs
}

// runNode executes one node on its own goroutine and folds the outcome
// back into scheduler state.
func (s *Scheduler) runNode(ctx context.Context, node api.Node, inputs map[string]any) {
	s.observer.OnNodeStart(ctx, s.run, node.ID)
	start := time.Now()

	res, err := s.exec.Execute(ctx, s.rc, node, inputs)
	if err == nil {
		err = s.commitOutputs(node, res)
	}

	s.mu.Lock()
	var state api.ExecutionState
	switch {
	case err == nil:
		state = api.StateCompleted
		s.resolveOutgoingLocked(node, res.Branch)
		if node.Kind == api.NodeOutput {
			s.delivered[node.ID] = deliveredValue(res.Delivered)
		}
	case errors.Is(err, context.Canceled):
		state = api.StateCancelled
		s.pruneOutgoingLocked(node)
	default:
		state = api.StateFailed
		s.pruneOutgoingLocked(node)
		if s.firstErr == nil && !s.cancelled {
			// First failure wins; stop in-flight work and let pruning turn
			// the rest of the graph into skips.
			s.firstErr = err
			if s.cancelRun != nil {
				s.cancelRun()
			}
		}
	}
	s.setStateLocked(ctx, node.ID, state)
	s.outstanding--
	s.mu.Unlock()

	s.observer.OnNodeFinished(ctx, s.run, node.ID, state, err, time.Since(start))
	s.signal()
}

// commitOutputs writes the node's produced values into the execution
// context. A duplicate port write is a run-level bug and fails the node.
func (s *Scheduler) commitOutputs(node api.Node, res executor.Result) error {
	for portID, v := range res.Outputs {
		if err := s.rc.Write(api.PortKey(node.ID, portID), v); err != nil {
			return err
		}
	}
	return nil
}

// resolveOutgoingLocked activates a completed node's outgoing edges. For
// condition nodes only the winning branch activates; the other is pruned.
func (s *Scheduler) resolveOutgoingLocked(node api.Node, branch api.BranchLabel) {
	for _, i := range s.outgoing[node.ID] {
		e := s.graph.Edges[i]
		if node.Kind == api.NodeCondition && e.Branch != branch {
			s.edges[i] = edgePruned
			continue
		}
		s.edges[i] = edgeActive
	}
}

func (s *Scheduler) pruneOutgoingLocked(node api.Node) {
	for _, i := range s.outgoing[node.ID] {
		s.edges[i] = edgePruned
	}
}

// setStateLocked records a node state transition and publishes it on the
// status feed. Terminal states are never overwritten. Caller holds s.mu.
func (s *Scheduler) setStateLocked(ctx context.Context, nodeID string, state api.ExecutionState) {
	if cur, ok := s.states[nodeID]; ok && cur.Terminal() {
		return
	}
	s.states[nodeID] = state
	_ = s.feed.Publish(ctx, api.StatusEvent{
		RunID:     s.run.ID,
		NodeID:    nodeID,
		NodeState: state,
		RunState:  api.RunRunning,
		At:        time.Now(),
	})
}

// finish settles the run record once no work remains.
func (s *Scheduler) finish(ctx context.Context) error {
	s.mu.Lock()

	externalCancel := s.cancelled || (ctx.Err() != nil && s.firstErr == nil)
	for _, n := range s.graph.Nodes {
		if !s.states[n.ID].Terminal() {
			if externalCancel {
				s.setStateLocked(ctx, n.ID, api.StateCancelled)
			} else {
				s.setStateLocked(ctx, n.ID, api.StateSkipped)
			}
		}
	}

	var runState api.RunState
	var err error
	switch {
	case externalCancel:
		runState = api.RunCancelled
		err = context.Canceled
	case s.firstErr != nil:
		runState = api.RunFailed
		err = s.firstErr
	default:
		runState = api.RunCompleted
	}

	s.run.State = runState
	s.run.Err = err
	s.run.NodeStates = make(map[string]api.ExecutionState, len(s.states))
	for k, v := range s.states {
		s.run.NodeStates[k] = v
	}
	s.run.Outputs = make(map[string]any, len(s.delivered))
	for k, v := range s.delivered {
		s.run.Outputs[k] = v
	}
	s.run.Log = s.rc.Log()
	s.run.EndedAt = time.Now()
	s.mu.Unlock()

	_ = s.feed.Publish(ctx, api.StatusEvent{
		RunID:    s.run.ID,
		RunState: runState,
		At:       time.Now(),
	})
	return err
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// deliveredValue collapses an output node's consumed inputs: a single
// wired value is exposed directly, multiple values as the map itself.
func deliveredValue(delivered map[string]any) any {
	if len(delivered) == 1 {
		for _, v := range delivered {
			return v
		}
	}
	return delivered
}
