package builtins

import (
	"github.com/flowcraft/flowcraft/internal/domain/blueprint"
	"github.com/flowcraft/flowcraft/internal/domain/flowctx"
	"github.com/flowcraft/flowcraft/internal/domain/state"
	"github.com/flowcraft/flowcraft/internal/engine/executor"
	"github.com/flowcraft/flowcraft/internal/pkg/errors"
)

// SubflowRunner is the narrow surface subflow needs from
// internal/engine/runtime.Runtime, named independently here to keep this
// package's only upward dependency a single small interface rather than the
// whole runtime façade.
type SubflowRunner interface {
	RunNested(nc executor.NodeContext, sub *blueprint.Blueprint, initialState map[string]interface{}) (state.WorkflowResult, error)
}

// Subflow implements the `subflow` built-in (§4.7): resolves
// params.blueprintId via the blueprint registry in
// dependencies["blueprintRegistry"], seeds the sub-context, runs the nested
// blueprint through the runtime in dependencies["runtime"], and on completion extracts its outputs per the
// params.outputs/terminal-node rules. On the sub-run remaining awaiting, the
// parent node itself becomes awaiting with the sub-context preserved under
// `_subflowState.<nodeId>`.
func Subflow(nc executor.NodeContext) (executor.NodeResult, error) {
	blueprintID, _ := nc.Params["blueprintId"].(string)
	if blueprintID == "" {
		return executor.NodeResult{}, errors.Configuration("subflow node requires params.blueprintId").WithNode(nc.NodeID, nc.BlueprintID, nc.ExecutionID)
	}

	runner, ok := nc.Dependencies["runtime"].(SubflowRunner)
	if !ok {
		return executor.NodeResult{}, errors.Configuration("subflow requires a runtime dependency implementing SubflowRunner").WithNode(nc.NodeID, nc.BlueprintID, nc.ExecutionID)
	}

	registry, ok := nc.Dependencies["blueprintRegistry"].(interface {
		Get(id string) (*blueprint.Blueprint, bool)
	})
	if !ok {
		return executor.NodeResult{}, errors.Configuration("subflow requires a blueprintRegistry dependency").WithNode(nc.NodeID, nc.BlueprintID, nc.ExecutionID)
	}
	sub, found := registry.Get(blueprintID)
	if !found {
		return executor.NodeResult{}, errors.NotFound("blueprint", blueprintID).WithNode(nc.NodeID, nc.BlueprintID, nc.ExecutionID)
	}

	initial := buildSubContext(nc, sub)

	result, err := runner.RunNested(nc, sub, initial)
	if err != nil {
		return executor.NodeResult{}, err
	}

	if result.Status == state.StatusAwaiting {
		subflowKey := flowctx.SubflowStateKey(nc.NodeID)
		if err := nc.Async.Set(nc.GoCtx, subflowKey, result.Context); err != nil {
			return executor.NodeResult{}, err
		}
		return executor.NodeResult{Awaiting: true, AwaitingReason: "subflow"}, nil
	}

	if result.Status != state.StatusCompleted {
		return executor.NodeResult{}, errors.NodeExecution("subflow did not complete successfully", nil).WithNode(nc.NodeID, nc.BlueprintID, nc.ExecutionID)
	}

	output, err := extractSubflowOutput(nc, sub, result)
	if err != nil {
		return executor.NodeResult{}, err
	}
	return executor.NodeResult{Output: output}, nil
}

func buildSubContext(nc executor.NodeContext, sub *blueprint.Blueprint) map[string]interface{} {
	if mapping, ok := nc.Params["inputs"].(map[string]interface{}); ok {
		return mapping
	}

	analysis := blueprint.Analyze(sub)
	initial := make(map[string]interface{}, len(analysis.StartNodeIDs))
	for _, startID := range analysis.StartNodeIDs {
		initial[flowctx.InputKey(startID)] = nc.Input
	}
	return initial
}

// extractSubflowOutput implements §4.7 subflow's output rule: with
// params.outputs, assign parent context keys from sub-context values
// (preferring `_outputs.<subKey>`, falling back to `subKey`) and return the
// full sub-context as output; otherwise, with exactly one sub terminal
// node, return its `_outputs.<terminalId>`; otherwise an object keyed by
// each terminal id.
func extractSubflowOutput(nc executor.NodeContext, sub *blueprint.Blueprint, result state.WorkflowResult) (interface{}, error) {
	if outputs, ok := nc.Params["outputs"].(map[string]interface{}); ok {
		for parentKey, raw := range outputs {
			subKey, ok := raw.(string)
			if !ok {
				continue
			}
			var v interface{}
			if vv, found := result.Context[flowctx.OutputKey(subKey)]; found {
				v = vv
			} else if vv, found := result.Context[subKey]; found {
				v = vv
			}
			if err := nc.Async.Set(nc.GoCtx, parentKey, v); err != nil {
				return nil, err
			}
		}
		return result.Context, nil
	}

	analysis := blueprint.Analyze(sub)
	if len(analysis.TerminalNodeIDs) == 1 {
		return result.Context[flowctx.OutputKey(analysis.TerminalNodeIDs[0])], nil
	}

	out := make(map[string]interface{}, len(analysis.TerminalNodeIDs))
	for _, id := range analysis.TerminalNodeIDs {
		out[id] = result.Context[flowctx.OutputKey(id)]
	}
	return out, nil
}
