package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/flowcraft/internal/domain/blueprint"
	"github.com/flowcraft/flowcraft/internal/domain/flowctx"
	"github.com/flowcraft/flowcraft/internal/pkg/eventbus"
)

// passthroughStrategy wraps a registered Func with no retry/backoff, enough
// to exercise NodeExecutor's own orchestration (input resolution, fallback
// routing, event publication) independent of internal/engine/strategy.
func passthroughStrategy(resolved interface{}, _ string, _ map[string]interface{}, _ int, _ int, _ func(nc NodeContext, attempt int)) (func(nc NodeContext) (NodeResult, error), error) {
	fn, ok := resolved.(Func)
	if !ok {
		return nil, errors.New("not a Func")
	}
	return fn, nil
}

func TestNodeExecutor_ResolveInput_StringKeyPrefersOutput(t *testing.T) {
	store := flowctx.NewMemoryContext()
	store.Set("key", "plain-value")
	store.Set(flowctx.OutputKey("key"), "output-value")
	async := flowctx.NewMemoryAsyncView(store, nil, "bp-1", "exec-1", "n")

	val, err := ResolveInput(context.Background(), async, "n", "key")
	require.NoError(t, err)
	assert.Equal(t, "output-value", val)
}

func TestNodeExecutor_ResolveInput_NoInputsFallsBackToNodeScoped(t *testing.T) {
	store := flowctx.NewMemoryContext()
	store.Set(flowctx.InputKey("n"), "scoped-value")
	async := flowctx.NewMemoryAsyncView(store, nil, "bp-1", "exec-1", "n")

	val, err := ResolveInput(context.Background(), async, "n", nil)
	require.NoError(t, err)
	assert.Equal(t, "scoped-value", val)
}

func TestNodeExecutor_ResolveInput_MapResolvesEachEntry(t *testing.T) {
	store := flowctx.NewMemoryContext()
	store.Set("a", 1)
	store.Set("b", 2)
	async := flowctx.NewMemoryAsyncView(store, nil, "bp-1", "exec-1", "n")

	val, err := ResolveInput(context.Background(), async, "n", map[string]string{"x": "a", "y": "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"x": 1, "y": 2}, val)
}

func TestNodeExecutor_Execute_Success(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterFunc("echo", func(nc NodeContext) (NodeResult, error) {
		return NodeResult{Output: nc.Input}, nil
	})
	bus := eventbus.New()
	store := flowctx.NewMemoryContext()
	store.Set(flowctx.InputKey("n1"), "hello")
	async := flowctx.NewMemoryAsyncView(store, bus, "bp-1", "exec-1", "n1")

	ex := &NodeExecutor{Registry: reg, Bus: bus, Strategy: passthroughStrategy}
	outcome := ex.Execute(context.Background(), async, "bp-1", "exec-1", blueprint.Node{ID: "n1", Uses: "echo"})

	assert.Equal(t, OutcomeSuccess, outcome.Outcome)
	assert.Equal(t, "hello", outcome.Result.Output)
	assert.Equal(t, "n1", outcome.ExecutedNode)
}

func TestNodeExecutor_Execute_UnknownUsesFails(t *testing.T) {
	reg := NewRegistry()
	bus := eventbus.New()
	store := flowctx.NewMemoryContext()
	async := flowctx.NewMemoryAsyncView(store, bus, "bp-1", "exec-1", "n1")

	ex := &NodeExecutor{Registry: reg, Bus: bus, Strategy: passthroughStrategy}
	outcome := ex.Execute(context.Background(), async, "bp-1", "exec-1", blueprint.Node{ID: "n1", Uses: "missing"})

	assert.Equal(t, OutcomeFailed, outcome.Outcome)
	require.Error(t, outcome.Err)
}

func TestNodeExecutor_Execute_FallbackRunsOnPrimaryFailure(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterFunc("primary", func(nc NodeContext) (NodeResult, error) {
		return NodeResult{}, errors.New("primary boom")
	})
	reg.RegisterFunc("fallback-node", func(nc NodeContext) (NodeResult, error) {
		return NodeResult{Output: "recovered"}, nil
	})
	bus := eventbus.New()
	store := flowctx.NewMemoryContext()
	async := flowctx.NewMemoryAsyncView(store, bus, "bp-1", "exec-1", "n1")

	ex := &NodeExecutor{Registry: reg, Bus: bus, Strategy: passthroughStrategy}
	node := blueprint.Node{ID: "n1", Uses: "primary", Config: blueprint.NodeConfig{Fallback: "fallback-node"}}
	outcome := ex.Execute(context.Background(), async, "bp-1", "exec-1", node)

	assert.Equal(t, OutcomeFailedWithFallback, outcome.Outcome)
	assert.True(t, outcome.Fallback)
	assert.Equal(t, "recovered", outcome.Result.Output)
	assert.True(t, outcome.Result.FallbackExecuted)
}

func TestNodeExecutor_Execute_FallbackAlsoFails(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterFunc("primary", func(nc NodeContext) (NodeResult, error) {
		return NodeResult{}, errors.New("primary boom")
	})
	reg.RegisterFunc("fallback-node", func(nc NodeContext) (NodeResult, error) {
		return NodeResult{}, errors.New("fallback boom")
	})
	bus := eventbus.New()
	store := flowctx.NewMemoryContext()
	async := flowctx.NewMemoryAsyncView(store, bus, "bp-1", "exec-1", "n1")

	ex := &NodeExecutor{Registry: reg, Bus: bus, Strategy: passthroughStrategy}
	node := blueprint.Node{ID: "n1", Uses: "primary", Config: blueprint.NodeConfig{Fallback: "fallback-node"}}
	outcome := ex.Execute(context.Background(), async, "bp-1", "exec-1", node)

	assert.Equal(t, OutcomeFailed, outcome.Outcome)
	assert.True(t, outcome.Fallback)
	require.Error(t, outcome.Err)
}

func TestNodeExecutor_Execute_RunsThroughMiddlewareChain(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterFunc("echo", func(nc NodeContext) (NodeResult, error) {
		return NodeResult{Output: nc.Input}, nil
	})
	bus := eventbus.New()
	store := flowctx.NewMemoryContext()
	async := flowctx.NewMemoryAsyncView(store, bus, "bp-1", "exec-1", "n1")

	called := false
	chain := chainFunc(func(nc *NodeContext, core func() (NodeResult, error)) (NodeResult, error) {
		called = true
		return core()
	})

	ex := &NodeExecutor{Registry: reg, Bus: bus, Strategy: passthroughStrategy, Chain: chain}
	outcome := ex.Execute(context.Background(), async, "bp-1", "exec-1", blueprint.Node{ID: "n1", Uses: "echo"})

	assert.True(t, called)
	assert.Equal(t, OutcomeSuccess, outcome.Outcome)
}

type chainFunc func(nc *NodeContext, core func() (NodeResult, error)) (NodeResult, error)

func (f chainFunc) Execute(nc *NodeContext, core func() (NodeResult, error)) (NodeResult, error) {
	return f(nc, core)
}
