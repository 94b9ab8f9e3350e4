// Package routing implements determineNextNodes and applyEdgeTransform
// (§4.8): the edge-selection and input-materialization logic shared by the
// Orchestrator's per-tick successor wiring and the Runtime façade's resume
// path. Grounded on the teacher's graph/engine.go getNextNodes (action/
// condition edge filtering) and its edge-transform-less direct wiring,
// generalized to evaluate arbitrary transform expressions via
// internal/engine/evaluator.
package routing

import (
	"context"
	"encoding/json"

	"github.com/flowcraft/flowcraft/internal/domain/blueprint"
	"github.com/flowcraft/flowcraft/internal/domain/flowctx"
	"github.com/flowcraft/flowcraft/internal/engine/evaluator"
	"github.com/flowcraft/flowcraft/internal/pkg/eventbus"
)

// Bus is the narrow publish surface routing needs.
type Bus interface {
	Publish(ctx context.Context, event eventbus.Event) error
}

// MatchedEdge is one outgoing edge that survived action/condition filtering.
type MatchedEdge struct {
	Edge blueprint.Edge
}

// DetermineNextNodes implements §4.8's determineNextNodes: candidate edges
// whose `action` matches the completed node's result.Action take priority;
// if none match (or the result carried no action), default edges (no
// `action`) are evaluated instead. Every surviving edge's `condition` (if
// any) must evaluate truthy. Emits edge:evaluate for matches, node:skipped
// for edges filtered out.
func DetermineNextNodes(
	ctx context.Context,
	bus Bus,
	eval evaluator.Evaluator,
	bp *blueprint.Blueprint,
	sourceID string,
	action string,
	result interface{},
	contextJSON map[string]interface{},
	blueprintID, executionID string,
) ([]MatchedEdge, error) {
	all := bp.OutgoingEdges(sourceID)

	var actionEdges, defaultEdges []blueprint.Edge
	for _, e := range all {
		if e.Action != "" {
			actionEdges = append(actionEdges, e)
		} else {
			defaultEdges = append(defaultEdges, e)
		}
	}

	var candidates []blueprint.Edge
	if action != "" {
		for _, e := range actionEdges {
			if e.Action == action {
				candidates = append(candidates, e)
			}
		}
	}
	if len(candidates) == 0 {
		candidates = defaultEdges
	}

	scope := evaluator.BuildRoutingScope(contextJSON, result)

	var matched []MatchedEdge
	for _, e := range candidates {
		ok := true
		var condResult interface{}
		if e.Condition != "" {
			v, err := eval.Evaluate(e.Condition, scope)
			if err != nil {
				return nil, err
			}
			condResult = v
			ok = evaluator.Truthy(v)
		}

		if ok {
			matched = append(matched, MatchedEdge{Edge: e})
			publish(ctx, bus, eventbus.NewEdgeEvaluate(blueprintID, executionID, e.Source, e.Target, e.Condition, condResult))
		} else {
			publish(ctx, bus, eventbus.NewNodeSkipped(blueprintID, executionID, sourceID, e))
		}
	}

	return matched, nil
}

// ApplyEdgeTransform implements §4.8's applyEdgeTransform: materializes
// `_inputs.<targetId>` from the source's output (optionally transformed),
// unless the target already declares explicit `inputs` or has more than one
// predecessor with no transform (ambiguous fan-in the author must resolve
// explicitly).
func ApplyEdgeTransform(
	ctx context.Context,
	async flowctx.AsyncView,
	bus Bus,
	eval evaluator.Evaluator,
	bp *blueprint.Blueprint,
	edge blueprint.Edge,
	sourceOutput interface{},
	predecessorCount int,
	blueprintID, executionID string,
) error {
	target, ok := bp.Node(edge.Target)
	if !ok {
		return nil
	}
	if target.Inputs != nil {
		return nil
	}
	if predecessorCount > 1 && edge.Transform == "" {
		return nil
	}

	finalInput := sourceOutput
	if edge.Transform != "" {
		contextJSON, err := contextSnapshot(ctx, async)
		if err != nil {
			return err
		}
		scope := evaluator.BuildTransformScope(sourceOutput, contextJSON)
		v, err := eval.Evaluate(edge.Transform, scope)
		if err != nil {
			return err
		}
		finalInput = v
	}

	key := flowctx.InputKey(edge.Target)
	if err := async.Set(ctx, key, finalInput); err != nil {
		return err
	}
	publish(ctx, bus, eventbus.NewContextChange(blueprintID, executionID, edge.Source, key, "set", finalInput))

	bp.SetInputs(edge.Target, key)
	return nil
}

func contextSnapshot(ctx context.Context, async flowctx.AsyncView) (map[string]interface{}, error) {
	j, err := async.ToJSON(ctx)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(j), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func publish(ctx context.Context, bus Bus, evt eventbus.Event) {
	if bus == nil {
		return
	}
	_ = bus.Publish(ctx, evt)
}
