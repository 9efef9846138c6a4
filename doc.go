// Package flowgraph provides an embeddable workflow-graph execution engine
// for Go.
//
// Flowgraph runs directed acyclic graphs of nodes: agents that invoke
// external capabilities, conditions that route execution down a true or
// false branch, inputs that seed data into a run, and outputs that collect
// results. It runs fully in Go, supports multiple persistence backends, and
// integrates cleanly into existing codebases.
//
// # Core Concepts
//
// The flowgraph programming model is intentionally small:
//
//  1. Graph
//  2. Engine
//  3. Capability
//  4. Worker
//  5. LocalRunner
//
// Together these form a complete workflow system with deterministic
// scheduling, durable run records (when using persistent backends), and a
// clear mental model.
//
// # Graph
//
// A Graph is a named set of nodes and directed edges. Nodes declare ports;
// data edges carry values from an output port to an input port, while
// control and event edges only gate execution order. Graphs are validated
// before they can run: cycles, dangling edges, unsatisfied required ports,
// and malformed condition branches are all rejected up front.
//
// Graphs can be built in code with GraphBuilder:
//
//	g, err := flowgraph.NewGraph("score-pipeline").
//	    Input("A", 42).
//	    Condition("B", "score.check").
//	    Agent("C", "label.high").
//	    Agent("D", "label.low").
//	    Output("E").
//	    Connect("A", "B").
//	    BranchTrue("B", "C").
//	    BranchFalse("B", "D").
//	    Connect("C", "E").
//	    Connect("D", "E").
//	    Graph()
//
// or loaded from YAML documents with LoadGraph / SaveGraph, the format a
// visual canvas exchanges with the engine.
//
// # Engine
//
// The Engine stores graph definitions, registers capability invokers, and
// executes runs. A run walks the graph in dependency order, fans out to
// parallel branches, prunes the branch a condition did not take, and records
// every node outcome in an append-only log.
//
// Engines can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Postgres
//   - Redis
//
// Each persistent backend has a matching task queue implementation so
// workers can reliably fetch work.
//
// # Capability
//
// Agent and condition nodes do their work by invoking capabilities: opaque,
// possibly slow, possibly failing operations registered on the engine with a
// Manifest describing their inputs and outputs. The engine enforces per-node
// timeouts and applies each node's retry policy; condition predicates are
// fail-closed, so a failing predicate fails the run rather than guessing a
// branch.
//
// # Worker
//
// A Worker pulls run-control tasks (start run, cancel run) from a queue and
// executes them against an Engine. Workers emit heartbeats so supervisors
// can tell a slow worker from a dead one, and can be scaled horizontally
// when the queue backend is shared.
//
// # LocalRunner
//
// LocalRunner bundles an in-memory engine, queue, and worker into a single
// process-local helper for development and unit testing. It is intentionally
// not crash-durable, but it is the most convenient way to run and debug
// graphs during development.
//
// For examples, see the /examples directory or the project README.
package flowgraph
