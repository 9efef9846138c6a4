package graph

import (
	"fmt"

	"github.com/petrijr/flowgraph/pkg/api"
)

// Validate checks the structural invariants of a graph. It must run before
// any execution; a failing validation prevents a run from starting and is
// never retried.
//
// Checks, in order: node identity, edge integrity (including port
// references), branch labels on condition edges, connectivity of required
// ports, and acyclicity.
func Validate(g *api.Graph) error {
	nodes := make(map[string]*api.Node, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.ID == "" {
			return &api.GraphError{Kind: api.GraphDanglingEdge, Detail: "node with empty id"}
		}
		if _, dup := nodes[n.ID]; dup {
			return &api.GraphError{Kind: api.GraphDanglingEdge, NodeID: n.ID, Detail: "duplicate node id"}
		}
		switch n.Kind {
		case api.NodeAgent, api.NodeCondition, api.NodeInput, api.NodeOutput:
		default:
			return &api.GraphError{Kind: api.GraphDanglingEdge, NodeID: n.ID, Detail: fmt.Sprintf("unknown node kind %q", n.Kind)}
		}
		nodes[n.ID] = n
	}

	for _, e := range g.Edges {
		src, ok := nodes[e.SourceNode]
		if !ok {
			return &api.GraphError{Kind: api.GraphDanglingEdge, EdgeID: e.ID, Detail: fmt.Sprintf("source node %q does not exist", e.SourceNode)}
		}
		dst, ok := nodes[e.TargetNode]
		if !ok {
			return &api.GraphError{Kind: api.GraphDanglingEdge, EdgeID: e.ID, Detail: fmt.Sprintf("target node %q does not exist", e.TargetNode)}
		}
		if e.SourcePort != "" && !hasPort(src.Outputs, e.SourcePort) {
			return &api.GraphError{Kind: api.GraphDanglingEdge, EdgeID: e.ID, Detail: fmt.Sprintf("source port %q not declared on node %q", e.SourcePort, src.ID)}
		}
		if e.TargetPort != "" && !hasPort(dst.Inputs, e.TargetPort) {
			return &api.GraphError{Kind: api.GraphDanglingEdge, EdgeID: e.ID, Detail: fmt.Sprintf("target port %q not declared on node %q", e.TargetPort, dst.ID)}
		}

		switch e.Branch {
		case api.BranchNone:
			if src.Kind == api.NodeCondition {
				return &api.GraphError{Kind: api.GraphInvalidBranchLabel, EdgeID: e.ID, Detail: "edge leaving a condition node must be labelled true or false"}
			}
		case api.BranchTrue, api.BranchFalse:
			if src.Kind != api.NodeCondition {
				return &api.GraphError{Kind: api.GraphInvalidBranchLabel, EdgeID: e.ID, Detail: fmt.Sprintf("branch label on edge leaving %s node %q", src.Kind, src.ID)}
			}
		default:
			return &api.GraphError{Kind: api.GraphInvalidBranchLabel, EdgeID: e.ID, Detail: fmt.Sprintf("unknown branch label %q", e.Branch)}
		}
	}

	// Condition nodes expose exactly two outgoing edges, one per branch.
	for _, n := range g.Nodes {
		if n.Kind != api.NodeCondition {
			continue
		}
		var hasTrue, hasFalse bool
		count := 0
		for _, e := range g.Outgoing(n.ID) {
			count++
			switch e.Branch {
			case api.BranchTrue:
				if hasTrue {
					return &api.GraphError{Kind: api.GraphInvalidBranchLabel, NodeID: n.ID, Detail: "duplicate true branch"}
				}
				hasTrue = true
			case api.BranchFalse:
				if hasFalse {
					return &api.GraphError{Kind: api.GraphInvalidBranchLabel, NodeID: n.ID, Detail: "duplicate false branch"}
				}
				hasFalse = true
			}
		}
		if count != 2 || !hasTrue || !hasFalse {
			return &api.GraphError{Kind: api.GraphInvalidBranchLabel, NodeID: n.ID, Detail: "condition node must have exactly one true and one false outgoing edge"}
		}
	}

	// Every non-input node is reachable; every non-output node feeds someone.
	for _, n := range g.Nodes {
		in := g.Incoming(n.ID)
		out := g.Outgoing(n.ID)
		if n.Kind != api.NodeInput && len(in) == 0 {
			return &api.GraphError{Kind: api.GraphMissingRequiredPort, NodeID: n.ID, Detail: "no incoming edge"}
		}
		if n.Kind != api.NodeOutput && len(out) == 0 {
			return &api.GraphError{Kind: api.GraphMissingRequiredPort, NodeID: n.ID, Detail: "no outgoing edge"}
		}
		// Required input ports must be wired when edges name their targets.
		for _, p := range n.Inputs {
			if !p.Required {
				continue
			}
			wired := false
			for _, e := range in {
				if e.TargetPort == p.ID || e.TargetPort == "" {
					wired = true
					break
				}
			}
			if !wired {
				return &api.GraphError{Kind: api.GraphMissingRequiredPort, NodeID: n.ID, Detail: fmt.Sprintf("required input port %q is not connected", p.ID)}
			}
		}
	}

	if nodeID, cyclic := findCycle(g); cyclic {
		return &api.GraphError{Kind: api.GraphCycle, NodeID: nodeID, Detail: "graph contains a cycle"}
	}

	return nil
}

func hasPort(ports []api.Port, id string) bool {
	for _, p := range ports {
		if p.ID == id {
			return true
		}
	}
	return false
}

// findCycle runs a depth-first search with the classic three-color scheme:
// permanent nodes are fully visited, temporary nodes are on the current
// recursion stack, everything else is unvisited.
func findCycle(g *api.Graph) (string, bool) {
	permanent := make(map[string]bool, len(g.Nodes))
	temporary := make(map[string]bool)

	var offender string
	var visit func(id string) bool
	visit = func(id string) bool {
		if permanent[id] {
			return false
		}
		if temporary[id] {
			offender = id
			return true
		}
		temporary[id] = true
		for _, e := range g.Outgoing(id) {
			if visit(e.TargetNode) {
				return true
			}
		}
		delete(temporary, id)
		permanent[id] = true
		return false
	}

	for _, n := range g.Nodes {
		if !permanent[n.ID] {
			if visit(n.ID) {
				return offender, true
			}
		}
	}
	return "", false
}

// TopologicalOrder returns the node ids of a valid acyclic graph in a
// deterministic topological order. Ties are broken by original node
// declaration order, so re-running an unchanged graph always yields the
// same sequence for diagnostics.
func TopologicalOrder(g *api.Graph) ([]string, error) {
	indegree := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		indegree[n.ID] = 0
	}
	for _, e := range g.Edges {
		if _, ok := indegree[e.TargetNode]; !ok {
			return nil, &api.GraphError{Kind: api.GraphDanglingEdge, EdgeID: e.ID, Detail: fmt.Sprintf("target node %q does not exist", e.TargetNode)}
		}
		indegree[e.TargetNode]++
	}

	order := make([]string, 0, len(g.Nodes))
	emitted := make(map[string]bool, len(g.Nodes))

	for len(order) < len(g.Nodes) {
		progressed := false
		// Scan in declaration order so ties resolve deterministically.
		for _, n := range g.Nodes {
			if emitted[n.ID] || indegree[n.ID] != 0 {
				continue
			}
			emitted[n.ID] = true
			order = append(order, n.ID)
			for _, e := range g.Outgoing(n.ID) {
				indegree[e.TargetNode]--
			}
			progressed = true
		}
		if !progressed {
			return nil, &api.GraphError{Kind: api.GraphCycle, Detail: "graph contains a cycle"}
		}
	}
	return order, nil
}
