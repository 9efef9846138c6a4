package flowgraph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newScoreEngine builds an in-memory engine with a branching graph:
// an input feeds a score to a condition, which routes to one of two
// labelling agents, both converging on a single output node.
func newScoreEngine(t *testing.T) Engine {
	t.Helper()
	eng := NewInMemoryEngine()

	require.NoError(t, eng.RegisterCapability(
		Manifest{Ref: "score.check", Name: "Score Check", Version: "1.0.0"},
		InvokerFunc(func(ctx context.Context, ref CapabilityRef, cfg, in map[string]any) (map[string]any, error) {
			score, _ := in["out"].(int)
			return map[string]any{"result": score > 50}, nil
		})))

	label := func(text string) Invoker {
		return InvokerFunc(func(ctx context.Context, ref CapabilityRef, cfg, in map[string]any) (map[string]any, error) {
			return map[string]any{"out": text}, nil
		})
	}
	require.NoError(t, eng.RegisterCapability(Manifest{Ref: "label.high", Name: "High", Version: "1.0.0"}, label("high")))
	require.NoError(t, eng.RegisterCapability(Manifest{Ref: "label.low", Name: "Low", Version: "1.0.0"}, label("low")))

	err := NewGraph("score-pipeline").
		Input("A", 0).
		Condition("B", "score.check").
		Agent("C", "label.high").
		Agent("D", "label.low").
		Output("E").
		Connect("A", "B").
		BranchTrue("B", "C").
		BranchFalse("B", "D").
		Connect("C", "E").
		Connect("D", "E").
		Register(eng)
	require.NoError(t, err)

	return eng
}

func TestStartRunTakesTrueBranch(t *testing.T) {
	ctx := context.Background()
	eng := newScoreEngine(t)

	run, err := StartRun(ctx, eng, "score-pipeline", map[string]any{"A": 80})
	require.NoError(t, err)

	assert.Equal(t, RunCompleted, run.State)
	assert.Equal(t, "high", run.Outputs["E"])
	assert.Equal(t, StateCompleted, run.NodeStates["C"])
	assert.Equal(t, StateSkipped, run.NodeStates["D"])
	assert.NotEmpty(t, run.Log)
}

func TestStartRunTakesFalseBranch(t *testing.T) {
	ctx := context.Background()
	eng := newScoreEngine(t)

	run, err := StartRun(ctx, eng, "score-pipeline", map[string]any{"A": 20})
	require.NoError(t, err)

	assert.Equal(t, RunCompleted, run.State)
	assert.Equal(t, "low", run.Outputs["E"])
	assert.Equal(t, StateSkipped, run.NodeStates["C"])
	assert.Equal(t, StateCompleted, run.NodeStates["D"])
}

func TestStartRunTimeoutFailsRun(t *testing.T) {
	ctx := context.Background()
	eng := NewInMemoryEngine()

	require.NoError(t, eng.RegisterCapability(
		Manifest{Ref: "slow", Name: "Slow", Version: "1.0.0"},
		InvokerFunc(func(ctx context.Context, ref CapabilityRef, cfg, in map[string]any) (map[string]any, error) {
			select {
			case <-time.After(time.Second):
				return map[string]any{"out": "too late"}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})))

	err := NewGraph("slow-pipeline").
		Input("A", "go").
		Node(Node{
			ID:     "S",
			Kind:   NodeAgent,
			Config: map[string]any{"capability": "slow", "timeout": "20ms"},
		}).
		Output("E").
		Connect("A", "S").
		Connect("S", "E").
		Register(eng)
	require.NoError(t, err)

	run, err := StartRun(ctx, eng, "slow-pipeline", nil)
	require.Error(t, err)

	assert.Equal(t, RunFailed, run.State)
	assert.Equal(t, StateFailed, run.NodeStates["S"])
	assert.Equal(t, StateSkipped, run.NodeStates["E"])
}

func TestGetRunAndListRuns(t *testing.T) {
	ctx := context.Background()
	eng := newScoreEngine(t)

	run, err := StartRun(ctx, eng, "score-pipeline", map[string]any{"A": 80})
	require.NoError(t, err)

	got, err := GetRun(ctx, eng, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, RunCompleted, got.State)

	runs, err := ListRuns(ctx, eng, RunListOptions{GraphName: "score-pipeline", State: RunCompleted})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestEngineWithObserverCollectsMetrics(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetrics{}
	eng := NewInMemoryEngineWithObserver(metrics)

	require.NoError(t, eng.RegisterCapability(
		Manifest{Ref: "echo", Name: "Echo", Version: "1.0.0"},
		InvokerFunc(func(ctx context.Context, ref CapabilityRef, cfg, in map[string]any) (map[string]any, error) {
			return map[string]any{"out": in["out"]}, nil
		})))

	err := NewGraph("echo-pipeline").
		Input("A", "ping").
		Agent("B", "echo").
		Output("Z").
		Connect("A", "B").
		Connect("B", "Z").
		Register(eng)
	require.NoError(t, err)

	run, err := StartRun(ctx, eng, "echo-pipeline", nil)
	require.NoError(t, err)
	assert.Equal(t, "ping", run.Outputs["Z"])

	snap := metrics.Snapshot()
	assert.Equal(t, int64(1), snap.RunsStarted)
	assert.Equal(t, int64(1), snap.RunsCompleted)
	assert.Equal(t, int64(0), snap.ActiveRuns)
	assert.Equal(t, int64(3), snap.NodesCompleted)
}
