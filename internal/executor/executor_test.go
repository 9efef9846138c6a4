package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/petrijr/flowgraph/internal/runctx"
	"github.com/petrijr/flowgraph/pkg/api"
)

func agentNode(id string, cfg map[string]any) api.Node {
	if cfg == nil {
		cfg = map[string]any{}
	}
	if _, ok := cfg["capability"]; !ok {
		cfg["capability"] = "test.cap"
	}
	return api.Node{ID: id, Kind: api.NodeAgent, Config: cfg}
}

func TestExecuteAgentSuccess(t *testing.T) {
	inv := api.InvokerFunc(func(ctx context.Context, ref api.CapabilityRef, cfg, in map[string]any) (map[string]any, error) {
		return map[string]any{"out": "done"}, nil
	})
	sink := &api.BufferSink{}
	ex := New(inv, sink, Options{})
	rc := runctx.New("run-1")

	res, err := ex.Execute(context.Background(), rc, agentNode("A", nil), nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Outputs["out"] != "done" {
		t.Fatalf("unexpected outputs: %#v", res.Outputs)
	}
	if res.Task.Status != api.TaskCompleted {
		t.Fatalf("task status = %s, want %s", res.Task.Status, api.TaskCompleted)
	}
	if res.Task.Attempt != 1 {
		t.Fatalf("attempt = %d, want 1", res.Task.Attempt)
	}

	msgs := sink.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want request+response", len(msgs))
	}
	if msgs[0].Type != api.MessageTaskRequest || msgs[1].Type != api.MessageTaskResponse {
		t.Fatalf("unexpected message types: %s, %s", msgs[0].Type, msgs[1].Type)
	}
	if msgs[0].RunID != "run-1" {
		t.Fatalf("message run id = %q, want run-1", msgs[0].RunID)
	}

	log := rc.Log()
	if len(log) != 1 {
		t.Fatalf("got %d log entries, want 1", len(log))
	}
	if log[0].NodeID != "A" || !strings.Contains(log[0].Message, "completed") {
		t.Fatalf("unexpected log entry: %+v", log[0])
	}
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	calls := 0
	inv := api.InvokerFunc(func(ctx context.Context, ref api.CapabilityRef, cfg, in map[string]any) (map[string]any, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("transient")
		}
		return map[string]any{"out": calls}, nil
	})
	ex := New(inv, nil, Options{})
	rc := runctx.New("run-retry")

	node := agentNode("A", map[string]any{
		"max_attempts":    3,
		"initial_backoff": "1ms",
	})
	res, err := ex.Execute(context.Background(), rc, node, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if calls != 3 {
		t.Fatalf("capability called %d times, want 3", calls)
	}
	if res.Task.Attempt != 3 {
		t.Fatalf("attempt = %d, want 3", res.Task.Attempt)
	}
	if got := len(rc.Log()); got != 3 {
		t.Fatalf("got %d log entries, want one per attempt", got)
	}
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	inv := api.InvokerFunc(func(ctx context.Context, ref api.CapabilityRef, cfg, in map[string]any) (map[string]any, error) {
		return nil, errors.New("boom")
	})
	sink := &api.BufferSink{}
	ex := New(inv, sink, Options{})
	rc := runctx.New("run-fail")

	node := agentNode("A", map[string]any{"max_attempts": 2, "initial_backoff": "1ms"})
	_, err := ex.Execute(context.Background(), rc, node, nil)
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	var capErr *api.CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("error is %T, want *api.CapabilityError", err)
	}
	if got := len(rc.Log()); got != 2 {
		t.Fatalf("got %d log entries, want 2", got)
	}

	msgs := sink.Messages()
	last := msgs[len(msgs)-1]
	if last.Type != api.MessageTaskError {
		t.Fatalf("last message type = %s, want %s", last.Type, api.MessageTaskError)
	}
	task, ok := last.Payload.(api.Task)
	if !ok {
		t.Fatalf("payload is %T, want api.Task", last.Payload)
	}
	if task.Status != api.TaskFailed {
		t.Fatalf("task status = %s, want %s", task.Status, api.TaskFailed)
	}
}

func TestExecuteTimeoutIsTerminal(t *testing.T) {
	calls := 0
	inv := api.InvokerFunc(func(ctx context.Context, ref api.CapabilityRef, cfg, in map[string]any) (map[string]any, error) {
		calls++
		<-ctx.Done()
		return nil, ctx.Err()
	})
	ex := New(inv, nil, Options{})
	rc := runctx.New("run-timeout")

	// Retries configured, but a timeout must not consume them.
	node := agentNode("slow", map[string]any{
		"timeout":      "15ms",
		"max_attempts": 3,
	})
	res, err := ex.Execute(context.Background(), rc, node, nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("error is %T, want *TimeoutError", err)
	}
	if calls != 1 {
		t.Fatalf("capability called %d times, want 1", calls)
	}
	if res.Task.Status != api.TaskTimeout {
		t.Fatalf("task status = %s, want %s", res.Task.Status, api.TaskTimeout)
	}
	log := rc.Log()
	if len(log) != 1 || !strings.Contains(log[0].Message, "timeout") {
		t.Fatalf("unexpected log: %+v", log)
	}
}

func TestExecuteRetryOnTimeoutOptIn(t *testing.T) {
	calls := 0
	inv := api.InvokerFunc(func(ctx context.Context, ref api.CapabilityRef, cfg, in map[string]any) (map[string]any, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return map[string]any{"out": "ok"}, nil
	})
	ex := New(inv, nil, Options{})
	rc := runctx.New("run-timeout-retry")

	node := agentNode("slow", map[string]any{
		"timeout":          "15ms",
		"max_attempts":     2,
		"initial_backoff":  "1ms",
		"retry_on_timeout": true,
	})
	res, err := ex.Execute(context.Background(), rc, node, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("capability called %d times, want 2", calls)
	}
	if res.Task.Status != api.TaskCompleted {
		t.Fatalf("task status = %s, want %s", res.Task.Status, api.TaskCompleted)
	}
}

func TestExecuteCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inv := api.InvokerFunc(func(ctx context.Context, ref api.CapabilityRef, cfg, in map[string]any) (map[string]any, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})
	ex := New(inv, nil, Options{})
	rc := runctx.New("run-cancel")

	res, err := ex.Execute(ctx, rc, agentNode("A", nil), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if res.Task.Status != api.TaskCancelled {
		t.Fatalf("task status = %s, want %s", res.Task.Status, api.TaskCancelled)
	}
}

func TestExecuteConditionBranches(t *testing.T) {
	inv := api.InvokerFunc(func(ctx context.Context, ref api.CapabilityRef, cfg, in map[string]any) (map[string]any, error) {
		score, _ := in["score"].(int)
		return map[string]any{"result": score > 50}, nil
	})
	ex := New(inv, nil, Options{})

	cases := []struct {
		score int
		want  api.BranchLabel
	}{
		{80, api.BranchTrue},
		{20, api.BranchFalse},
	}
	for _, tc := range cases {
		rc := runctx.New("run-cond")
		node := api.Node{ID: "check", Kind: api.NodeCondition, Config: map[string]any{"predicate": "test.pred"}}
		res, err := ex.Execute(context.Background(), rc, node, map[string]any{"score": tc.score})
		if err != nil {
			t.Fatalf("score %d: Execute failed: %v", tc.score, err)
		}
		if res.Branch != tc.want {
			t.Fatalf("score %d: branch = %q, want %q", tc.score, res.Branch, tc.want)
		}
		if res.Outputs["result"] != (tc.want == api.BranchTrue) {
			t.Fatalf("score %d: unexpected outputs %#v", tc.score, res.Outputs)
		}
	}
}

func TestExecuteConditionSeesContextSnapshot(t *testing.T) {
	var seen map[string]any
	inv := api.InvokerFunc(func(ctx context.Context, ref api.CapabilityRef, cfg, in map[string]any) (map[string]any, error) {
		seen = in
		return map[string]any{"result": true}, nil
	})
	ex := New(inv, nil, Options{})
	rc := runctx.New("run-snap")
	if err := rc.Write(api.PortKey("upstream", "out"), 42); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	node := api.Node{ID: "check", Kind: api.NodeCondition, Config: map[string]any{"predicate": "test.pred"}}
	if _, err := ex.Execute(context.Background(), rc, node, map[string]any{"in": "direct"}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if seen[api.PortKey("upstream", "out")] != 42 {
		t.Fatalf("predicate did not receive context snapshot: %#v", seen)
	}
	if seen["in"] != "direct" {
		t.Fatalf("predicate did not receive direct inputs: %#v", seen)
	}
}

func TestExecuteConditionFailsClosed(t *testing.T) {
	inv := api.InvokerFunc(func(ctx context.Context, ref api.CapabilityRef, cfg, in map[string]any) (map[string]any, error) {
		return nil, errors.New("predicate exploded")
	})
	ex := New(inv, nil, Options{})
	rc := runctx.New("run-closed")

	node := api.Node{ID: "check", Kind: api.NodeCondition, Config: map[string]any{"predicate": "test.pred"}}
	res, err := ex.Execute(context.Background(), rc, node, nil)
	if err == nil {
		t.Fatal("expected predicate error to propagate")
	}
	if res.Branch != api.BranchNone {
		t.Fatalf("branch = %q, want none on failure", res.Branch)
	}
	if res.Task.Status != api.TaskFailed {
		t.Fatalf("task status = %s, want %s", res.Task.Status, api.TaskFailed)
	}
}

func TestExecuteConditionRejectsNonBoolean(t *testing.T) {
	inv := api.InvokerFunc(func(ctx context.Context, ref api.CapabilityRef, cfg, in map[string]any) (map[string]any, error) {
		return map[string]any{"result": "yes"}, nil
	})
	ex := New(inv, nil, Options{})
	rc := runctx.New("run-nonbool")

	node := api.Node{ID: "check", Kind: api.NodeCondition, Config: map[string]any{"predicate": "test.pred"}}
	if _, err := ex.Execute(context.Background(), rc, node, nil); err == nil {
		t.Fatal("expected error for non-boolean predicate result")
	}
}

func TestExecuteInputNode(t *testing.T) {
	ex := New(nil, nil, Options{})

	t.Run("seed wins over config", func(t *testing.T) {
		rc := runctx.New("run-in")
		node := api.Node{
			ID:      "start",
			Kind:    api.NodeInput,
			Config:  map[string]any{"value": 1},
			Outputs: []api.Port{{ID: "out", Direction: api.DirectionOut}},
		}
		res, err := ex.Execute(context.Background(), rc, node, map[string]any{"seed": 80})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if res.Outputs["out"] != 80 {
			t.Fatalf("outputs = %#v, want seed value", res.Outputs)
		}
	})

	t.Run("config value fallback", func(t *testing.T) {
		rc := runctx.New("run-in2")
		node := api.Node{ID: "start", Kind: api.NodeInput, Config: map[string]any{"value": "const"}}
		res, err := ex.Execute(context.Background(), rc, node, nil)
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if res.Outputs["out"] != "const" {
			t.Fatalf("outputs = %#v, want configured constant", res.Outputs)
		}
	})
}

func TestExecuteOutputNode(t *testing.T) {
	ex := New(nil, nil, Options{})
	rc := runctx.New("run-out")

	node := api.Node{ID: "end", Kind: api.NodeOutput}
	res, err := ex.Execute(context.Background(), rc, node, map[string]any{"in": "final"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Delivered["in"] != "final" {
		t.Fatalf("delivered = %#v", res.Delivered)
	}
}

func TestExecuteValidatesManifestInputs(t *testing.T) {
	reg := api.NewRegistry(nil)
	min := 0.0
	err := reg.Register(api.Manifest{
		Ref:     "math.sqrt",
		Name:    "Square root",
		Version: "1.0.0",
		Inputs: map[string]api.PortSpec{
			"x": {Type: "number", Required: true, Constraints: &api.Constraints{Min: &min}},
		},
	}, api.InvokerFunc(func(ctx context.Context, ref api.CapabilityRef, cfg, in map[string]any) (map[string]any, error) {
		return map[string]any{"out": 0}, nil
	}))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	ex := New(reg, nil, Options{})
	rc := runctx.New("run-manifest")
	node := agentNode("A", map[string]any{"capability": "math.sqrt"})

	if _, err := ex.Execute(context.Background(), rc, node, map[string]any{"x": -1.0}); err == nil {
		t.Fatal("expected constraint violation for negative input")
	}
	if _, err := ex.Execute(context.Background(), rc, node, map[string]any{}); err == nil {
		t.Fatal("expected error for missing required input")
	}
	if _, err := ex.Execute(context.Background(), rc, node, map[string]any{"x": 4.0}); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
}

func TestExecuteUnknownCapability(t *testing.T) {
	reg := api.NewRegistry(nil)
	ex := New(reg, nil, Options{})
	rc := runctx.New("run-unknown")

	_, err := ex.Execute(context.Background(), rc, agentNode("A", map[string]any{"capability": "no.such"}), nil)
	var capErr *api.CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("error is %T, want *api.CapabilityError", err)
	}
	if capErr.Ref != "no.such" {
		t.Fatalf("ref = %q, want no.such", capErr.Ref)
	}
}

func TestExecuteTaskPriority(t *testing.T) {
	inv := api.InvokerFunc(func(ctx context.Context, ref api.CapabilityRef, cfg, in map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	})
	ex := New(inv, nil, Options{})

	for _, tc := range []struct {
		cfg  string
		want api.TaskPriority
	}{
		{"critical", api.PriorityCritical},
		{"high", api.PriorityHigh},
		{"", api.PriorityNormal},
	} {
		rc := runctx.New(fmt.Sprintf("run-prio-%s", tc.cfg))
		node := agentNode("A", map[string]any{"priority": tc.cfg})
		res, err := ex.Execute(context.Background(), rc, node, nil)
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if res.Task.Priority != tc.want {
			t.Fatalf("priority(%q) = %v, want %v", tc.cfg, res.Task.Priority, tc.want)
		}
	}
}

func TestRetryPolicyFromConfig(t *testing.T) {
	node := agentNode("A", map[string]any{
		"max_attempts":       3,
		"initial_backoff":    "10ms",
		"backoff_multiplier": 1.5,
		"max_backoff":        "100ms",
	})
	p := retryPolicy(node)
	if p.MaxAttempts != 3 || p.InitialBackoff != 10*time.Millisecond ||
		p.BackoffMultiplier != 1.5 || p.MaxBackoff != 100*time.Millisecond || p.RetryOnTimeout {
		t.Fatalf("unexpected policy: %+v", p)
	}

	full := agentNode("B", map[string]any{
		"retry": api.RetryPolicy{MaxAttempts: 5, RetryOnTimeout: true},
	})
	p = retryPolicy(full)
	if p.MaxAttempts != 5 || !p.RetryOnTimeout {
		t.Fatalf("structured policy ignored: %+v", p)
	}
}
