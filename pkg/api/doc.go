// Package api contains the core building blocks used by the flowgraph
// workflow engine. It provides the low-level primitives for describing
// workflow graphs, invoking capabilities, and observing engine behavior.
//
// Most users interact with the higher-level flowgraph package, which
// re-exports selected types and helpers from this package. The api package
// is intended for advanced use cases, custom integrations, or contributors
// extending the engine itself.
//
// # Concepts
//
// The api package centers around a small set of concepts:
//
//   - Graphs: nodes, ports, and edges
//   - Runs: per-run execution records and states
//   - Capabilities: opaque external operations invoked by agent nodes
//   - The task/message protocol
//   - Observability
//
// # Graphs
//
// A Graph describes the structure of a workflow: typed nodes (agent,
// condition, input, output), their ports, and the directed edges between
// them. Condition nodes always carry exactly two outgoing edges labelled
// "true" and "false"; all other nodes carry unlabelled data/control edges.
//
// Graphs are immutable once a run starts and are registered with an engine
// before they can be executed. Validation (acyclicity, edge integrity,
// branch labels, required ports) happens at registration and again before
// each run; a graph that fails validation never starts.
//
// # Capabilities
//
// Agent and condition nodes do not embed code. They reference a
// CapabilityRef which the engine resolves through a Registry of Invokers.
// A capability is an opaque, possibly slow, possibly failing call; the
// executor wraps every invocation with a per-node timeout and an optional
// retry policy. Manifests describe a capability's inputs and outputs so the
// executor can validate values before invoking.
//
// # Task/Message Protocol
//
// Every node execution is tracked by a Task (with priority, status, and an
// attempt counter) and narrated by Messages (task requests and responses,
// errors, heartbeats, status updates, capability announcements). Messages
// are observability records; pipeline data lives only in the execution
// context.
//
// # Observability
//
// The api package defines the Observer interface, which engines and workers
// use to report lifecycle events and metrics, and the StatusFeed interface,
// which carries per-node and per-run state transitions to UI consumers.
// Ready-made implementations include a slog-backed logging observer, basic
// in-memory metrics, and buffering feeds/sinks for tests.
//
// # Usage
//
// Most applications should start from the flowgraph package, using the
// GraphBuilder and Engine constructors provided there. See the examples
// directory for end-to-end usage.
package api
