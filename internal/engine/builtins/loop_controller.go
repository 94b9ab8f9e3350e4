package builtins

import (
	"encoding/json"

	"github.com/flowcraft/flowcraft/internal/engine/evaluator"
	"github.com/flowcraft/flowcraft/internal/engine/executor"
	"github.com/flowcraft/flowcraft/internal/pkg/errors"
)

// LoopController implements the `loop-controller` built-in (§4.7):
// evaluates params.condition against the current context, producing
// action:"continue" when truthy (the fluent builder wires this to the loop
// body's start node) and action:"break" with a nil output otherwise. Its
// join strategy is always `any`, enforced by the traverser's
// loop-controller override rather than by this body.
func LoopController(nc executor.NodeContext) (executor.NodeResult, error) {
	condition, _ := nc.Params["condition"].(string)
	if condition == "" {
		return executor.NodeResult{}, errors.Configuration("loop-controller requires params.condition").WithNode(nc.NodeID, nc.BlueprintID, nc.ExecutionID)
	}

	eval, ok := nc.Dependencies["evaluator"].(evaluator.Evaluator)
	if !ok {
		return executor.NodeResult{}, errors.Configuration("loop-controller requires an evaluator dependency").WithNode(nc.NodeID, nc.BlueprintID, nc.ExecutionID)
	}

	contextJSONStr, err := nc.Async.ToJSON(nc.GoCtx)
	if err != nil {
		return executor.NodeResult{}, err
	}
	var contextJSON map[string]interface{}
	if err := json.Unmarshal([]byte(contextJSONStr), &contextJSON); err != nil {
		return executor.NodeResult{}, err
	}

	scope := evaluator.BuildRoutingScope(contextJSON, nil)
	result, err := eval.Evaluate(condition, scope)
	if err != nil {
		return executor.NodeResult{}, err
	}

	if evaluator.Truthy(result) {
		return executor.NodeResult{Action: "continue"}, nil
	}
	return executor.NodeResult{Action: "break", Output: nil}, nil
}
