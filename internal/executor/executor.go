// Package executor runs individual workflow nodes: it dispatches on node
// kind, enforces per-node timeouts, and applies retry policies around
// capability invocations.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/flowgraph/internal/runctx"
	"github.com/petrijr/flowgraph/pkg/api"
)

// TimeoutError reports that a node's capability call exceeded its timeout.
// Timeouts are terminal for the task by default; see api.RetryPolicy.
type TimeoutError struct {
	NodeID  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("node %q timed out after %s", e.NodeID, e.Timeout)
}

// Options tunes the executor. Zero values select the defaults.
type Options struct {
	// DefaultTimeout applies to agent and condition nodes whose config
	// does not set one. Zero means no timeout.
	DefaultTimeout time.Duration
}

// manifestSource is implemented by invokers (notably api.Registry) that
// can describe their capabilities. Input validation is skipped when the
// invoker has no manifest for a ref.
type manifestSource interface {
	Manifest(ref api.CapabilityRef) (api.Manifest, bool)
}

// Executor executes single nodes. It is stateless across nodes and safe
// for concurrent use; all per-run state lives in the runctx.Context.
type Executor struct {
	invoker api.Invoker
	sink    api.MessageSink
	opts    Options
}

// New creates an Executor that resolves capabilities through invoker and
// reports task lifecycle messages on sink.
func New(invoker api.Invoker, sink api.MessageSink, opts Options) *Executor {
	if sink == nil {
		sink = api.NoopSink{}
	}
	return &Executor{
		invoker: invoker,
		sink:    sink,
		opts:    opts,
	}
}

// Result is the outcome of one node execution.
type Result struct {
	// Outputs maps output port ids to the values the node produced.
	Outputs map[string]any

	// Delivered holds the inputs consumed by an output node; nil for
	// other kinds.
	Delivered map[string]any

	// Branch is set for condition nodes: the outgoing edge that fired.
	Branch api.BranchLabel

	// Task records the attempt history of this execution.
	Task *api.Task
}

// Execute runs one node to a terminal task status. Inputs are keyed by the
// node's input port ids. Every attempt, success or failure, appends
// exactly one entry to the run log.
func (e *Executor) Execute(ctx context.Context, rc *runctx.Context, node api.Node, inputs map[string]any) (Result, error) {
	task := &api.Task{
		ID:        uuid.NewString(),
		NodeID:    node.ID,
		Priority:  api.ParsePriority(configString(node.Config, "priority")),
		Status:    api.TaskPending,
		CreatedAt: time.Now(),
	}
	res := Result{Task: task}

	e.publish(ctx, rc, api.MessageTaskRequest, node.ID, task)

	policy := retryPolicy(node)
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	backoff := policy.InitialBackoff
	multiplier := policy.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	task.Status = api.TaskRunning
	task.StartedAt = time.Now()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			task.Status = api.TaskCancelled
			task.EndedAt = time.Now()
			rc.Appendf(node.ID, "attempt %d: cancelled", attempt)
			return res, ctx.Err()
		default:
		}

		task.Attempt = attempt

		out, err := e.executeOnce(ctx, rc, node, inputs, &res)
		if err == nil {
			res.Outputs = out
			task.Status = api.TaskCompleted
			task.EndedAt = time.Now()
			e.logOutcome(rc, node, attempt, nil, res.Branch)
			e.publish(ctx, rc, api.MessageTaskResponse, node.ID, task)
			return res, nil
		}

		lastErr = err
		e.logOutcome(rc, node, attempt, err, api.BranchNone)

		if errors.Is(err, context.Canceled) {
			task.Status = api.TaskCancelled
			task.EndedAt = time.Now()
			return res, err
		}

		var timeout *TimeoutError
		if errors.As(err, &timeout) && !policy.RetryOnTimeout {
			// A timed-out capability may still be running remotely; do not
			// re-attempt unless explicitly configured to.
			task.Status = api.TaskTimeout
			task.EndedAt = time.Now()
			e.publish(ctx, rc, api.MessageTaskError, node.ID, task)
			return res, err
		}

		if attempt == maxAttempts {
			if errors.As(err, &timeout) {
				task.Status = api.TaskTimeout
			} else {
				task.Status = api.TaskFailed
			}
			task.EndedAt = time.Now()
			e.publish(ctx, rc, api.MessageTaskError, node.ID, task)
			return res, lastErr
		}

		if backoff > 0 {
			delay := backoff
			if policy.MaxBackoff > 0 && delay > policy.MaxBackoff {
				delay = policy.MaxBackoff
			}
			select {
			case <-ctx.Done():
				task.Status = api.TaskCancelled
				task.EndedAt = time.Now()
				return res, ctx.Err()
			case <-time.After(delay):
			}
			next := time.Duration(float64(backoff) * multiplier)
			if policy.MaxBackoff > 0 && next > policy.MaxBackoff {
				backoff = policy.MaxBackoff
			} else {
				backoff = next
			}
		}
	}

	// Unreachable: the loop always returns on the last attempt.
	return res, lastErr
}

// executeOnce performs a single attempt. Dispatch is by node kind, not by
// a type hierarchy; the switch is exhaustive over api.NodeKind.
func (e *Executor) executeOnce(ctx context.Context, rc *runctx.Context, node api.Node, inputs map[string]any, res *Result) (map[string]any, error) {
	switch node.Kind {
	case api.NodeInput:
		value, ok := inputs["seed"]
		if !ok {
			value = node.Config["value"]
		}
		outputs := make(map[string]any)
		if len(node.Outputs) == 0 {
			outputs[api.DefaultOutputPort(node)] = value
		} else {
			for _, p := range node.Outputs {
				outputs[p.ID] = value
			}
		}
		return outputs, nil

	case api.NodeOutput:
		delivered := make(map[string]any, len(inputs))
		for k, v := range inputs {
			delivered[k] = v
		}
		res.Delivered = delivered
		return nil, nil

	case api.NodeAgent:
		ref := api.CapabilityRef(configString(node.Config, "capability"))
		if ref == "" {
			return nil, &api.CapabilityError{Ref: ref, Cause: fmt.Errorf("node %q has no capability configured", node.ID)}
		}
		if ms, ok := e.invoker.(manifestSource); ok {
			if m, found := ms.Manifest(ref); found {
				if err := m.ValidateInputs(inputs); err != nil {
					return nil, &api.CapabilityError{Ref: ref, Cause: err}
				}
			}
		}
		return e.invoke(ctx, node, ref, inputs)

	case api.NodeCondition:
		result, err := e.evaluateCondition(ctx, rc, node, inputs)
		if err != nil {
			return nil, err
		}
		if result {
			res.Branch = api.BranchTrue
		} else {
			res.Branch = api.BranchFalse
		}
		return map[string]any{
			"result": result,
			"branch": string(res.Branch),
		}, nil

	default:
		return nil, fmt.Errorf("unknown node kind %q", node.Kind)
	}
}

// invoke calls the capability under the node's timeout. A deadline hit is
// reported as *TimeoutError; every other failure is wrapped as a
// capability failure carrying the original cause.
func (e *Executor) invoke(ctx context.Context, node api.Node, ref api.CapabilityRef, inputs map[string]any) (map[string]any, error) {
	timeout := configDuration(node.Config, "timeout")
	if timeout <= 0 {
		timeout = e.opts.DefaultTimeout
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out, err := e.invoker.Invoke(callCtx, ref, node.Config, inputs)
	if err != nil {
		if timedOut(callCtx, ctx, err) {
			return nil, &TimeoutError{NodeID: node.ID, Timeout: timeout}
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		var capErr *api.CapabilityError
		if errors.As(err, &capErr) {
			return nil, err
		}
		return nil, &api.CapabilityError{Ref: ref, Cause: err}
	}
	return out, nil
}

// timedOut distinguishes the per-node deadline from run-level cancellation:
// only the former counts as a timeout.
func timedOut(callCtx, parent context.Context, err error) bool {
	if !errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return false
	}
	if parent.Err() != nil {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded) || err != nil
}

func (e *Executor) logOutcome(rc *runctx.Context, node api.Node, attempt int, err error, branch api.BranchLabel) {
	switch {
	case err == nil && node.Kind == api.NodeCondition:
		rc.Appendf(node.ID, "attempt %d: completed (branch %s)", attempt, branch)
	case err == nil:
		rc.Appendf(node.ID, "attempt %d: completed", attempt)
	default:
		var timeout *TimeoutError
		if errors.As(err, &timeout) {
			rc.Appendf(node.ID, "attempt %d: timeout after %s", attempt, timeout.Timeout)
		} else {
			rc.Appendf(node.ID, "attempt %d: %v", attempt, err)
		}
	}
}

func (e *Executor) publish(ctx context.Context, rc *runctx.Context, typ api.MessageType, nodeID string, task *api.Task) {
	// Messages are observability records; a sink failure never fails the run.
	_ = e.sink.Publish(ctx, api.Message{
		Type:      typ,
		From:      nodeID,
		To:        "scheduler",
		RunID:     rc.RunID(),
		Payload:   *task,
		Timestamp: time.Now(),
	})
}

// retryPolicy extracts the retry policy from node config. A full
// api.RetryPolicy stored under "retry" wins; otherwise the flat keys the
// canvas emits are consulted.
func retryPolicy(node api.Node) api.RetryPolicy {
	switch p := node.Config["retry"].(type) {
	case api.RetryPolicy:
		return p
	case *api.RetryPolicy:
		if p != nil {
			return *p
		}
	}
	return api.RetryPolicy{
		MaxAttempts:       configInt(node.Config, "max_attempts"),
		InitialBackoff:    configDuration(node.Config, "initial_backoff"),
		BackoffMultiplier: configFloat(node.Config, "backoff_multiplier"),
		MaxBackoff:        configDuration(node.Config, "max_backoff"),
		RetryOnTimeout:    configBool(node.Config, "retry_on_timeout"),
	}
}
