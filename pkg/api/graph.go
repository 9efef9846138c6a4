package api

import "fmt"

// NodeKind identifies the behavior of a node in a workflow graph.
// The set is closed; the executor switches exhaustively over it.
type NodeKind string

const (
	NodeAgent     NodeKind = "agent"
	NodeCondition NodeKind = "condition"
	NodeInput     NodeKind = "input"
	NodeOutput    NodeKind = "output"
)

// PortDirection tells whether a port consumes or produces data.
type PortDirection string

const (
	DirectionIn  PortDirection = "in"
	DirectionOut PortDirection = "out"
)

// Port is a named input or output slot on a node.
//
// DataType is a free-form tag used by the canvas for compatibility display;
// the engine does not enforce it as a type system at runtime.
type Port struct {
	ID        string
	Direction PortDirection
	DataType  string
	Label     string
	Required  bool
}

// Node is a unit of work in a workflow graph. It is immutable once a run
// has started; the engine never mutates nodes.
type Node struct {
	ID       string
	Kind     NodeKind
	Category string
	Config   map[string]any
	Inputs   []Port
	Outputs  []Port
}

// EdgeKind classifies an edge. Data edges carry port values; control and
// event edges only gate execution order.
type EdgeKind string

const (
	EdgeData    EdgeKind = "data"
	EdgeControl EdgeKind = "control"
	EdgeEvent   EdgeKind = "event"
)

// BranchLabel marks the two outgoing edges of a condition node.
// Edges leaving any other node kind carry BranchNone.
type BranchLabel string

const (
	BranchNone  BranchLabel = ""
	BranchTrue  BranchLabel = "true"
	BranchFalse BranchLabel = "false"
)

// Edge is a directed connection between two nodes. SourcePort and
// TargetPort are optional; when empty, the single declared port of the
// respective endpoint is assumed.
type Edge struct {
	ID         string
	SourceNode string
	SourcePort string
	TargetNode string
	TargetPort string
	Kind       EdgeKind
	Branch     BranchLabel
}

// Graph is a validated set of nodes and edges. Graphs are created and
// edited externally (typically by the canvas backend) and loaded read-only
// by a run.
type Graph struct {
	Name  string
	Nodes []Node
	Edges []Edge
}

// Node returns the node with the given id, if present.
func (g *Graph) Node(id string) (*Node, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// Incoming returns all edges targeting the given node, in declaration order.
func (g *Graph) Incoming(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.TargetNode == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Outgoing returns all edges leaving the given node, in declaration order.
func (g *Graph) Outgoing(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.SourceNode == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// PortKey builds the execution-context key for a node's port. Each output
// port key receives at most one value per run.
func PortKey(nodeID, portID string) string {
	return nodeID + ":" + portID
}

// DefaultOutputPort is the port assumed for edges that leave a node without
// naming a source port: the first declared output port, or "result" for
// condition nodes, or "out" otherwise.
func DefaultOutputPort(n Node) string {
	if len(n.Outputs) > 0 {
		return n.Outputs[0].ID
	}
	if n.Kind == NodeCondition {
		return "result"
	}
	return "out"
}

// DefaultInputPort is the port assumed for edges that reach a node without
// naming a target port: the first declared input port, or "in".
func DefaultInputPort(n Node) string {
	if len(n.Inputs) > 0 {
		return n.Inputs[0].ID
	}
	return "in"
}

// GraphErrorKind enumerates the validation failures that prevent a run
// from starting.
type GraphErrorKind string

const (
	GraphCycle               GraphErrorKind = "cycle"
	GraphDanglingEdge        GraphErrorKind = "dangling-edge"
	GraphMissingRequiredPort GraphErrorKind = "missing-required-port"
	GraphInvalidBranchLabel  GraphErrorKind = "invalid-branch-label"
)

// GraphError describes why a graph failed validation. Validation errors
// are fatal and never retried.
type GraphError struct {
	Kind   GraphErrorKind
	NodeID string
	EdgeID string
	Detail string
}

func (e *GraphError) Error() string {
	switch {
	case e.NodeID != "":
		return fmt.Sprintf("invalid graph (%s): node %q: %s", e.Kind, e.NodeID, e.Detail)
	case e.EdgeID != "":
		return fmt.Sprintf("invalid graph (%s): edge %q: %s", e.Kind, e.EdgeID, e.Detail)
	default:
		return fmt.Sprintf("invalid graph (%s): %s", e.Kind, e.Detail)
	}
}
