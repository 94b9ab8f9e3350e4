package executor

import (
	"context"
	"fmt"

	"github.com/flowcraft/flowcraft/internal/domain/blueprint"
	"github.com/flowcraft/flowcraft/internal/domain/flowctx"
	"github.com/flowcraft/flowcraft/internal/pkg/errors"
	"github.com/flowcraft/flowcraft/internal/pkg/eventbus"
)

// Outcome is NodeExecutor.Execute's settled verdict after fallback routing
// (§4.6 step 6).
type Outcome int

const (
	// OutcomeSuccess: the node (or its fallback) produced a NodeResult with
	// no error.
	OutcomeSuccess Outcome = iota
	// OutcomeFailedWithFallback: the primary node failed but its fallback
	// succeeded. WorkflowState.anyFallbackExecuted is set.
	OutcomeFailedWithFallback
	// OutcomeFailed: the primary node failed and either had no fallback or
	// the fallback also failed.
	OutcomeFailed
	// OutcomeCancelled: the run was cancelled mid-execution.
	OutcomeCancelled
)

// ExecutionOutcome bundles the settled Outcome with the NodeResult that
// produced it and, when applicable, which node ID actually ran (the
// fallback's ID, distinct from the original node).
type ExecutionOutcome struct {
	Outcome      Outcome
	Result       NodeResult
	Err          error
	ExecutedNode string // original nodeID, or the fallback nodeID if fallback ran
	Fallback     bool
}

// MiddlewareChain is the narrow surface NodeExecutor needs from
// internal/engine/middleware.Chain, kept here to avoid an import cycle (the
// middleware package depends on this one for NodeContext/NodeResult).
type MiddlewareChain interface {
	Execute(nc *NodeContext, core func() (NodeResult, error)) (NodeResult, error)
}

// StrategyFactory builds the retry-wrapped execution strategy for a resolved
// registry entry. internal/engine/strategy.Select satisfies this signature.
type StrategyFactory func(resolved interface{}, nodeID string, params map[string]interface{}, maxRetries, retryDelayMs int, onRetry func(nc NodeContext, attempt int)) (func(nc NodeContext) (NodeResult, error), error)

// Bus is the narrow eventbus surface NodeExecutor needs.
type Bus interface {
	Publish(ctx context.Context, event eventbus.Event) error
}

// NodeExecutor runs one node to a settled ExecutionOutcome: resolves input,
// builds the NodeContext, runs it through middleware and a retrying
// strategy, and on failure attempts the node's configured fallback.
// Grounded on the teacher's execution.Executor.Execute (input assembly +
// ExecuteWithRetry + event publication), generalized to the registry/
// middleware/strategy split described above.
type NodeExecutor struct {
	Registry   *Registry
	Chain      MiddlewareChain
	Bus        Bus
	Strategy   StrategyFactory
	Dependencies map[string]interface{}
	Logger     Logger
}

// ResolveInput implements §4.6 step 1's input-resolution rule: a string key K
// first tries the just-completed-node-scoped `_outputs.K`, falling back to a
// plain context key K; a map resolves every entry the same way; absent any
// `inputs` declaration, it falls back to `_inputs.<nodeId>`.
func ResolveInput(ctx context.Context, async flowctx.AsyncView, nodeID string, inputs interface{}) (interface{}, error) {
	lookup := func(key string) (interface{}, error) {
		if v, ok, err := async.Get(ctx, flowctx.OutputKey(key)); err != nil {
			return nil, err
		} else if ok {
			return v, nil
		}
		if v, ok, err := async.Get(ctx, key); err != nil {
			return nil, err
		} else if ok {
			return v, nil
		}
		return nil, nil
	}

	switch v := inputs.(type) {
	case nil:
		val, _, err := async.Get(ctx, flowctx.InputKey(nodeID))
		if err != nil {
			return nil, err
		}
		return val, nil
	case string:
		return lookup(v)
	case map[string]string:
		out := make(map[string]interface{}, len(v))
		for param, key := range v {
			val, err := lookup(key)
			if err != nil {
				return nil, err
			}
			out[param] = val
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for param, raw := range v {
			key, ok := raw.(string)
			if !ok {
				out[param] = raw
				continue
			}
			val, err := lookup(key)
			if err != nil {
				return nil, err
			}
			out[param] = val
		}
		return out, nil
	default:
		return nil, errors.Configuration(fmt.Sprintf("unsupported inputs shape: %T", inputs))
	}
}

// Execute runs node to a settled ExecutionOutcome. async must already be
// scoped to nodeID as its sourceNode so context:change events attribute
// correctly (§4.1).
func (e *NodeExecutor) Execute(goCtx context.Context, async flowctx.AsyncView, blueprintID, executionID string, node blueprint.Node) ExecutionOutcome {
	result, err := e.runOnce(goCtx, async, blueprintID, executionID, node)
	if err != nil {
		if fe, ok := err.(*errors.FlowError); ok && fe.Kind == errors.KindCancelled {
			return ExecutionOutcome{Outcome: OutcomeCancelled, Err: err, ExecutedNode: node.ID}
		}
	}

	if err == nil {
		e.publish(goCtx, eventbus.NewNodeFinish(blueprintID, executionID, node.ID, result.Output))
		return ExecutionOutcome{Outcome: OutcomeSuccess, Result: result, ExecutedNode: node.ID}
	}

	if node.Config.Fallback == "" {
		e.publish(goCtx, eventbus.NewNodeError(blueprintID, executionID, node.ID, err.Error()))
		return ExecutionOutcome{Outcome: OutcomeFailed, Err: err, ExecutedNode: node.ID, Result: result}
	}

	fbNode := blueprint.Node{ID: node.Config.Fallback, Uses: node.Config.Fallback, Params: node.Params}
	e.publish(goCtx, eventbus.NewNodeFallback(blueprintID, executionID, node.ID, node.Config.Fallback))

	fbResult, fbErr := e.runOnce(goCtx, async, blueprintID, executionID, fbNode)
	if fbErr == nil {
		fbResult.FallbackExecuted = true
		e.publish(goCtx, eventbus.NewNodeFinish(blueprintID, executionID, fbNode.ID, fbResult.Output))
		return ExecutionOutcome{Outcome: OutcomeFailedWithFallback, Result: fbResult, ExecutedNode: fbNode.ID, Fallback: true}
	}

	e.publish(goCtx, eventbus.NewNodeError(blueprintID, executionID, fbNode.ID, fbErr.Error()))
	return ExecutionOutcome{Outcome: OutcomeFailed, Err: fbErr, ExecutedNode: fbNode.ID, Fallback: true}
}

func (e *NodeExecutor) runOnce(goCtx context.Context, async flowctx.AsyncView, blueprintID, executionID string, node blueprint.Node) (NodeResult, error) {
	resolved, ok := e.Registry.Lookup(node.Uses)
	if !ok {
		return NodeResult{}, errors.NotFound("registry entry", node.Uses).WithNode(node.ID, blueprintID, executionID)
	}

	input, err := ResolveInput(goCtx, async, node.ID, node.Inputs)
	if err != nil {
		return NodeResult{}, errors.NodeExecution("failed to resolve input", err).WithNode(node.ID, blueprintID, executionID)
	}

	nc := &NodeContext{
		GoCtx:        goCtx,
		Async:        async,
		Input:        input,
		Params:       node.Params,
		Dependencies: e.Dependencies,
		Logger:       e.Logger,
		ExecutionID:  executionID,
		BlueprintID:  blueprintID,
		NodeID:       node.ID,
	}

	e.publish(goCtx, eventbus.NewNodeStart(blueprintID, executionID, node.ID, input))

	onRetry := func(retryNC NodeContext, attempt int) {
		e.publish(goCtx, eventbus.NewNodeRetry(blueprintID, executionID, node.ID, attempt))
	}

	run, err := e.Strategy(resolved, node.ID, node.Params, node.Config.MaxRetries, node.Config.RetryDelayMs, onRetry)
	if err != nil {
		return NodeResult{}, errors.Configuration(err.Error()).WithNode(node.ID, blueprintID, executionID)
	}

	core := func() (NodeResult, error) { return run(*nc) }
	if e.Chain != nil {
		return e.Chain.Execute(nc, core)
	}
	return core()
}

func (e *NodeExecutor) publish(ctx context.Context, evt eventbus.Event) {
	if e.Bus == nil {
		return
	}
	_ = e.Bus.Publish(ctx, evt)
}
