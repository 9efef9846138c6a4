package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/petrijr/flowgraph/internal/engine"
	"github.com/petrijr/flowgraph/internal/taskqueue"
	"github.com/petrijr/flowgraph/pkg/api"
)

func testEngine(t *testing.T) api.Engine {
	t.Helper()
	eng := engine.NewInMemoryEngine()
	err := eng.RegisterCapability(api.Manifest{Ref: "echo", Name: "Echo", Version: "1.0.0"},
		api.InvokerFunc(func(ctx context.Context, ref api.CapabilityRef, cfg, in map[string]any) (map[string]any, error) {
			return map[string]any{"out": in["out"]}, nil
		}))
	if err != nil {
		t.Fatalf("RegisterCapability failed: %v", err)
	}
	g := api.Graph{
		Name: "echo-pipeline",
		Nodes: []api.Node{
			{ID: "A", Kind: api.NodeInput},
			{ID: "B", Kind: api.NodeAgent, Config: map[string]any{"capability": "echo"}},
			{ID: "Z", Kind: api.NodeOutput},
		},
		Edges: []api.Edge{
			{ID: "ab", SourceNode: "A", TargetNode: "B", Kind: api.EdgeData},
			{ID: "bz", SourceNode: "B", TargetNode: "Z", Kind: api.EdgeData},
		},
	}
	if err := eng.RegisterGraph(g); err != nil {
		t.Fatalf("RegisterGraph failed: %v", err)
	}
	return eng
}

func TestProcessOneStartsRun(t *testing.T) {
	ctx := context.Background()
	eng := testEngine(t)
	q := taskqueue.NewInMemoryQueue(8)
	w := New(eng, q)

	if _, err := w.EnqueueStartRun(ctx, "echo-pipeline", map[string]any{"A": "hello"}); err != nil {
		t.Fatalf("EnqueueStartRun failed: %v", err)
	}

	processed, err := w.ProcessOne(ctx)
	if err != nil {
		t.Fatalf("ProcessOne failed: %v", err)
	}
	if !processed {
		t.Fatal("task not processed")
	}

	runs, err := eng.ListRuns(ctx, api.RunListOptions{GraphName: "echo-pipeline"})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if runs[0].State != api.RunCompleted || runs[0].Outputs["Z"] != "hello" {
		t.Fatalf("run = %+v", runs[0])
	}
}

func TestProcessOneUnknownGraphReportsError(t *testing.T) {
	ctx := context.Background()
	eng := testEngine(t)
	q := taskqueue.NewInMemoryQueue(8)
	w := New(eng, q)

	if _, err := w.EnqueueStartRun(ctx, "no-such-graph", nil); err != nil {
		t.Fatalf("EnqueueStartRun failed: %v", err)
	}

	processed, err := w.ProcessOne(ctx)
	if !processed {
		t.Fatal("task should count as processed")
	}
	if err == nil {
		t.Fatal("expected handler error for unknown graph")
	}
}

func TestProcessOneRespectsContext(t *testing.T) {
	eng := testEngine(t)
	q := taskqueue.NewInMemoryQueue(8)
	w := New(eng, q)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	processed, err := w.ProcessOne(ctx)
	if processed {
		t.Fatal("nothing should be processed on an empty queue")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
}

func TestCancelRunTaskPriority(t *testing.T) {
	ctx := context.Background()
	eng := testEngine(t)
	q := taskqueue.NewInMemoryQueue(8)
	w := New(eng, q)

	if err := w.EnqueueCancelRun(ctx, "some-run"); err != nil {
		t.Fatalf("EnqueueCancelRun failed: %v", err)
	}
	task, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if task.Type != taskqueue.TaskTypeCancelRun || task.RunID != "some-run" {
		t.Fatalf("task = %+v", task)
	}
	if task.Priority != api.PriorityCritical {
		t.Fatalf("priority = %v, want critical", task.Priority)
	}
}

func TestRunEmitsHeartbeats(t *testing.T) {
	eng := testEngine(t)
	q := taskqueue.NewInMemoryQueue(8)
	sink := &api.BufferSink{}
	w := New(eng, q,
		WithMessageSink(sink),
		WithHeartbeatInterval(10*time.Millisecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_ = w.Run(ctx)

	beats := 0
	for _, m := range sink.Messages() {
		if m.Type != api.MessageHeartbeat {
			continue
		}
		beats++
		if m.From != w.ID() {
			t.Fatalf("heartbeat from %q, want %q", m.From, w.ID())
		}
		payload, ok := m.Payload.(map[string]any)
		if !ok {
			t.Fatalf("heartbeat payload is %T", m.Payload)
		}
		if _, ok := payload["queued"]; !ok {
			t.Fatalf("heartbeat payload missing queue depth: %#v", payload)
		}
	}
	if beats < 2 {
		t.Fatalf("got %d heartbeats, want at least 2", beats)
	}
}

func TestRunProcessesUntilCancelled(t *testing.T) {
	ctx := context.Background()
	eng := testEngine(t)
	q := taskqueue.NewInMemoryQueue(8)
	w := New(eng, q)

	for i := 0; i < 3; i++ {
		if _, err := w.EnqueueStartRun(ctx, "echo-pipeline", map[string]any{"A": i}); err != nil {
			t.Fatalf("EnqueueStartRun failed: %v", err)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	err := w.Run(runCtx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run returned %v, want deadline exceeded after draining", err)
	}

	runs, err := eng.ListRuns(ctx, api.RunListOptions{GraphName: "echo-pipeline"})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(runs))
	}
}
