package flowgraph

import (
	"fmt"

	"github.com/petrijr/flowgraph/internal/graph"
	"github.com/petrijr/flowgraph/pkg/api"
)

// GraphBuilder provides a fluent API for defining workflow graphs in code:
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
// The builder only assembles the definition; Graph() validates it, so a
// malformed graph is caught before it can be registered.
type GraphBuilder struct {
	g api.Graph
}

// NewGraph creates a new graph builder with the given name.
func NewGraph(name string) *GraphBuilder {
	return &GraphBuilder{g: api.Graph{Name: name}}
}

// Name returns the graph name.
func (b *GraphBuilder) Name() string {
	return b.g.Name
}

// Input adds an input node seeded with a constant value. An external seed
// passed to StartRun under the node id overrides the constant.
func (b *GraphBuilder) Input(id string, value any) *GraphBuilder {
	return b.Node(api.Node{
		ID:     id,
		Kind:   api.NodeInput,
		Config: map[string]any{"value": value},
	})
}

// Agent adds an agent node that invokes the named capability.
func (b *GraphBuilder) Agent(id string, capability string) *GraphBuilder {
	return b.Node(api.Node{
		ID:     id,
		Kind:   api.NodeAgent,
		Config: map[string]any{"capability": capability},
	})
}

// AgentWithRetry adds an agent node with an explicit retry policy.
func (b *GraphBuilder) AgentWithRetry(id string, capability string, retry RetryPolicy) *GraphBuilder {
	return b.Node(api.Node{
		ID:   id,
		Kind: api.NodeAgent,
		Config: map[string]any{
			"capability": capability,
			"retry":      retry,
		},
	})
}

// Condition adds a condition node that routes execution to its true or
// false branch by invoking the named predicate capability.
func (b *GraphBuilder) Condition(id string, predicate string) *GraphBuilder {
	return b.Node(api.Node{
		ID:     id,
		Kind:   api.NodeCondition,
		Config: map[string]any{"predicate": predicate},
	})
}

// Output adds an output node. Values delivered to it become the run's
// outputs under the node id.
func (b *GraphBuilder) Output(id string) *GraphBuilder {
	return b.Node(api.Node{ID: id, Kind: api.NodeOutput})
}

// Node adds a fully specified node. Use this for nodes that need declared
// ports, a category, or extra config keys the convenience methods don't
// cover.
func (b *GraphBuilder) Node(n Node) *GraphBuilder {
	if n.ID == "" {
		panic("flowgraph: node id must not be empty")
	}
	b.g.Nodes = append(b.g.Nodes, n)
	return b
}

// Connect adds a data edge from source to target, using the endpoints'
// default ports.
func (b *GraphBuilder) Connect(source, target string) *GraphBuilder {
	return b.Edge(api.Edge{SourceNode: source, TargetNode: target, Kind: api.EdgeData})
}

// ConnectPorts adds a data edge between explicitly named ports. Both port
// names must be declared on their nodes.
func (b *GraphBuilder) ConnectPorts(source, sourcePort, target, targetPort string) *GraphBuilder {
	return b.Edge(api.Edge{
		SourceNode: source,
		SourcePort: sourcePort,
		TargetNode: target,
		TargetPort: targetPort,
		Kind:       api.EdgeData,
	})
}

// BranchTrue adds the true-branch edge leaving a condition node.
func (b *GraphBuilder) BranchTrue(source, target string) *GraphBuilder {
	return b.Edge(api.Edge{SourceNode: source, TargetNode: target, Kind: api.EdgeData, Branch: api.BranchTrue})
}

// BranchFalse adds the false-branch edge leaving a condition node.
func (b *GraphBuilder) BranchFalse(source, target string) *GraphBuilder {
	return b.Edge(api.Edge{SourceNode: source, TargetNode: target, Kind: api.EdgeData, Branch: api.BranchFalse})
}

// Control adds a control edge: it gates execution order but carries no
// data.
func (b *GraphBuilder) Control(source, target string) *GraphBuilder {
	return b.Edge(api.Edge{SourceNode: source, TargetNode: target, Kind: api.EdgeControl})
}

// Edge adds a fully specified edge. An empty edge ID is filled in from the
// endpoints.
func (b *GraphBuilder) Edge(e Edge) *GraphBuilder {
	if e.SourceNode == "" || e.TargetNode == "" {
		panic("flowgraph: edge endpoints must not be empty")
	}
	if e.ID == "" {
		e.ID = fmt.Sprintf("%s->%s", e.SourceNode, e.TargetNode)
	}
	b.g.Edges = append(b.g.Edges, e)
	return b
}

// Graph validates and returns the assembled graph.
func (b *GraphBuilder) Graph() (Graph, error) {
	if err := graph.Validate(&b.g); err != nil {
		return Graph{}, err
	}
	return b.g, nil
}

// Register validates the graph and registers it with the given engine.
func (b *GraphBuilder) Register(eng Engine) error {
	g, err := b.Graph()
	if err != nil {
		return err
	}
	return eng.RegisterGraph(g)
}

// MustRegister is like Register but panics on error.
// Useful for initialization in main().
func (b *GraphBuilder) MustRegister(eng Engine) {
	if err := b.Register(eng); err != nil {
		panic(err)
	}
}
