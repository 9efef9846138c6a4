package flowgraph

import (
	"errors"
	"testing"
)

func TestGraphBuilderAssemblesValidGraph(t *testing.T) {
	g, err := NewGraph("sample").
		Input("A", 1).
		Condition("B", "pred").
		Agent("C", "cap").
		Agent("D", "cap").
		Output("E").
		Connect("A", "B").
		BranchTrue("B", "C").
		BranchFalse("B", "D").
		Connect("C", "E").
		Connect("D", "E").
		Graph()
	if err != nil {
		t.Fatalf("Graph failed: %v", err)
	}

	if g.Name != "sample" || len(g.Nodes) != 5 || len(g.Edges) != 5 {
		t.Fatalf("graph = %+v", g)
	}
	if g.Edges[0].ID != "A->B" {
		t.Fatalf("edge id = %q, want generated from endpoints", g.Edges[0].ID)
	}

	b, ok := g.Node("B")
	if !ok || b.Kind != NodeCondition || b.Config["predicate"] != "pred" {
		t.Fatalf("node B = %+v", b)
	}
}

func TestGraphBuilderRejectsInvalidGraph(t *testing.T) {
	// Condition with only one branch fails validation.
	_, err := NewGraph("broken").
		Input("A", 1).
		Condition("B", "pred").
		Output("E").
		Connect("A", "B").
		BranchTrue("B", "E").
		Graph()

	var gerr *GraphError
	if !errors.As(err, &gerr) {
		t.Fatalf("error = %v, want *GraphError", err)
	}
}

func TestGraphBuilderRetryConfig(t *testing.T) {
	policy := Retry(3).WithConstantBackoff(0).RetryOnTimeout().Policy()

	g, err := NewGraph("retrying").
		Input("A", 1).
		AgentWithRetry("B", "cap", policy).
		Output("E").
		Connect("A", "B").
		Connect("B", "E").
		Graph()
	if err != nil {
		t.Fatalf("Graph failed: %v", err)
	}

	b, _ := g.Node("B")
	got, ok := b.Config["retry"].(RetryPolicy)
	if !ok {
		t.Fatalf("retry config is %T", b.Config["retry"])
	}
	if got.MaxAttempts != 3 || !got.RetryOnTimeout {
		t.Fatalf("policy = %+v", got)
	}
}

func TestGraphBuilderPanicsOnEmptyNodeID(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for empty node id")
		}
	}()
	NewGraph("bad").Node(Node{Kind: NodeAgent})
}
