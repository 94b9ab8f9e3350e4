// Package executor implements NodeExecutor (§4.6): per-node input
// resolution, middleware invocation, strategy execution, and fallback
// routing. Grounded on the teacher's execution.NodeExecutor interface and
// node type dispatcher (execution/node.go GetExecutorForNodeType),
// generalized from the teacher's fixed node-type switch into a registry of
// user-supplied function/lifecycle implementations plus Flowcraft's
// built-ins.
package executor

import (
	"context"
	"time"

	"github.com/flowcraft/flowcraft/internal/domain/blueprint"
	"github.com/flowcraft/flowcraft/internal/domain/flowctx"
)

// NodeResult is returned by every node body (§3). A node that suspends
// itself (wait/sleep/an awaiting subflow) sets Awaiting true instead of
// returning a normal Output; the orchestrator routes such a result into
// WorkflowState.SetAwaiting rather than normal successor wiring (§4.7).
type NodeResult struct {
	Output           interface{}
	Action           string
	Err              error
	DynamicNodes     []blueprint.Node
	DynamicEdges     []blueprint.Edge
	FallbackExecuted bool

	Awaiting       bool
	AwaitingReason string
	WakeUpAt       *time.Time
}

// NodeContext is what a node body (function or lifecycle) receives (§4.6
// step 2, §6).
type NodeContext struct {
	GoCtx        context.Context
	Async        flowctx.AsyncView
	Input        interface{}
	Params       map[string]interface{}
	Dependencies map[string]interface{}
	Logger       Logger
	ExecutionID  string
	BlueprintID  string
	NodeID       string
}

// Logger is the narrow logging surface injected into Dependencies["logger"]
// (§6 "dependencies (includes logger, runtime handle, workflowState, plus
// user-provided dependencies)").
type Logger interface {
	Printf(format string, args ...interface{})
}

// Func is the function-style node implementation contract (§6).
type Func func(nc NodeContext) (NodeResult, error)

// LifecycleNode is the lifecycle-style node implementation contract (§6).
// Constructed per-node-execution via a LifecycleFactory with (params,
// nodeID).
type LifecycleNode interface {
	Prep(nc NodeContext) (interface{}, error)
	Exec(prepResult interface{}, nc NodeContext) (NodeResult, error)
	Post(execResult NodeResult, nc NodeContext) (NodeResult, error)
	Fallback(err error, nc NodeContext) (NodeResult, error)
	Recover(err error, nc NodeContext)
}

// LifecycleFactory constructs a LifecycleNode instance for one execution.
type LifecycleFactory func(params map[string]interface{}, nodeID string) LifecycleNode

// Registry maps a `uses` key to either a Func or a LifecycleFactory, merging
// the process-wide registry with a per-run dynamic registry at execution
// time (§6 "Dynamic node registry").
type Registry struct {
	entries map[string]interface{}
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]interface{})}
}

func (r *Registry) RegisterFunc(uses string, fn Func) {
	r.entries[uses] = fn
}

func (r *Registry) RegisterLifecycle(uses string, factory LifecycleFactory) {
	r.entries[uses] = factory
}

func (r *Registry) Lookup(uses string) (interface{}, bool) {
	v, ok := r.entries[uses]
	return v, ok
}

// Merge returns a new Registry containing this registry's entries
// overlaid with override's (the per-run dynamic registry wins on key
// collision), never mutating either input.
func (r *Registry) Merge(override *Registry) *Registry {
	merged := NewRegistry()
	for k, v := range r.entries {
		merged.entries[k] = v
	}
	if override != nil {
		for k, v := range override.entries {
			merged.entries[k] = v
		}
	}
	return merged
}
