package executor

import (
	"context"
	"fmt"

	"github.com/petrijr/flowgraph/internal/runctx"
	"github.com/petrijr/flowgraph/pkg/api"
)

// evaluateCondition resolves the branch of a condition node by invoking its
// predicate capability. The predicate receives the node's direct inputs
// merged over a snapshot of the whole execution context, so it can consult
// values produced anywhere upstream.
//
// The decision is fail-closed: any predicate error propagates to the caller
// and the node fails; no branch is guessed.
func (e *Executor) evaluateCondition(ctx context.Context, rc *runctx.Context, node api.Node, inputs map[string]any) (bool, error) {
	ref := api.CapabilityRef(configString(node.Config, "predicate"))
	if ref == "" {
		ref = api.CapabilityRef(configString(node.Config, "capability"))
	}
	if ref == "" {
		return false, &api.CapabilityError{Ref: ref, Cause: fmt.Errorf("condition node %q has no predicate configured", node.ID)}
	}

	merged := rc.Snapshot()
	for k, v := range inputs {
		merged[k] = v
	}

	out, err := e.invoke(ctx, node, ref, merged)
	if err != nil {
		return false, err
	}
	return branchValue(ref, out)
}

// branchValue extracts the boolean decision from a predicate's outputs.
// The conventional key is "result"; a single-entry output map with one
// boolean is also accepted.
func branchValue(ref api.CapabilityRef, out map[string]any) (bool, error) {
	if v, ok := out["result"]; ok {
		b, isBool := v.(bool)
		if !isBool {
			return false, &api.CapabilityError{Ref: ref, Cause: fmt.Errorf("predicate output %q is %T, want bool", "result", v)}
		}
		return b, nil
	}
	if len(out) == 1 {
		for _, v := range out {
			if b, isBool := v.(bool); isBool {
				return b, nil
			}
		}
	}
	return false, &api.CapabilityError{Ref: ref, Cause: fmt.Errorf("predicate produced no boolean %q output", "result")}
}
