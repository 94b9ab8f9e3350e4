package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/flowcraft/internal/domain/blueprint"
	"github.com/flowcraft/flowcraft/internal/domain/flowctx"
	"github.com/flowcraft/flowcraft/internal/domain/state"
	"github.com/flowcraft/flowcraft/internal/engine/evaluator"
	"github.com/flowcraft/flowcraft/internal/engine/executor"
	"github.com/flowcraft/flowcraft/internal/pkg/eventbus"
)

type memoryRegistry struct {
	blueprints map[string]*blueprint.Blueprint
}

func (r *memoryRegistry) Get(id string) (*blueprint.Blueprint, bool) {
	bp, ok := r.blueprints[id]
	return bp, ok
}

func newTestRuntime(t *testing.T) (*Runtime, *executor.Registry) {
	t.Helper()
	reg := executor.NewRegistry()
	reg.RegisterFunc("echo", func(nc executor.NodeContext) (executor.NodeResult, error) {
		return executor.NodeResult{Output: nc.Input}, nil
	})
	rt := New(reg, evaluator.NewPropertyPath(), eventbus.New(), &memoryRegistry{blueprints: map[string]*blueprint.Blueprint{}})
	return rt, reg
}

func TestRuntime_Run_CompletesLinearBlueprint(t *testing.T) {
	rt, _ := newTestRuntime(t)
	bp, err := blueprint.New("bp-1", []blueprint.Node{{ID: "a", Uses: "echo"}}, nil, blueprint.Metadata{})
	require.NoError(t, err)

	result, err := rt.Run(context.Background(), bp, map[string]interface{}{"x": 1}, Options{})
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, result.Status)
	assert.Equal(t, float64(1), asFloat(result.Context["x"]))
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return -1
	}
}

func TestRuntime_Run_AwaitingThenResumeCompletes(t *testing.T) {
	reg := executor.NewRegistry()
	reg.RegisterFunc("pause", func(nc executor.NodeContext) (executor.NodeResult, error) {
		return executor.NodeResult{Awaiting: true, AwaitingReason: "manual"}, nil
	})
	reg.RegisterFunc("echo", func(nc executor.NodeContext) (executor.NodeResult, error) {
		return executor.NodeResult{Output: "resumed"}, nil
	})
	rt := New(reg, evaluator.NewPropertyPath(), eventbus.New(), &memoryRegistry{})

	bp, err := blueprint.New("bp-1", []blueprint.Node{
		{ID: "a", Uses: "pause"},
		{ID: "b", Uses: "echo"},
	}, []blueprint.Edge{{Source: "a", Target: "b"}}, blueprint.Metadata{})
	require.NoError(t, err)

	result, err := rt.Run(context.Background(), bp, nil, Options{})
	require.NoError(t, err)
	require.Equal(t, state.StatusAwaiting, result.Status)

	resumed, err := rt.Resume(context.Background(), bp, result.Context, nil, "a", Options{})
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, resumed.Status)
}

func TestRuntime_Resume_MissingAwaitingNodeErrors(t *testing.T) {
	rt, _ := newTestRuntime(t)
	bp, err := blueprint.New("bp-1", []blueprint.Node{{ID: "a", Uses: "echo"}}, nil, blueprint.Metadata{})
	require.NoError(t, err)

	_, err = rt.Resume(context.Background(), bp, map[string]interface{}{flowctx.KeyExecutionID: "exec-1"}, nil, "", Options{})
	require.Error(t, err)
}

func TestRuntime_ExecuteNode_RunsSingleNodeOutOfFrontier(t *testing.T) {
	rt, _ := newTestRuntime(t)
	bp, err := blueprint.New("bp-1", []blueprint.Node{{ID: "a", Uses: "echo"}}, nil, blueprint.Metadata{})
	require.NoError(t, err)

	st := state.New("bp-1", "exec-1")
	st.Context().Set(flowctx.InputKey("a"), "direct-input")

	outcome, err := rt.ExecuteNode(context.Background(), bp, "a", st, Options{})
	require.NoError(t, err)
	assert.Equal(t, executor.OutcomeSuccess, outcome.Outcome)
	assert.Equal(t, "direct-input", outcome.Result.Output)
}

func TestRuntime_ExecuteNode_UnknownNodeErrors(t *testing.T) {
	rt, _ := newTestRuntime(t)
	bp, err := blueprint.New("bp-1", []blueprint.Node{{ID: "a", Uses: "echo"}}, nil, blueprint.Metadata{})
	require.NoError(t, err)

	st := state.New("bp-1", "exec-1")
	_, err = rt.ExecuteNode(context.Background(), bp, "missing", st, Options{})
	require.Error(t, err)
}

func TestRuntime_RunNested_SharesRuntimeCollaborators(t *testing.T) {
	reg := executor.NewRegistry()
	blueprints := &memoryRegistry{blueprints: map[string]*blueprint.Blueprint{}}
	rt := New(reg, evaluator.NewPropertyPath(), eventbus.New(), blueprints)

	nested, err := blueprint.New("nested", []blueprint.Node{{ID: "n", Uses: "echo"}}, nil, blueprint.Metadata{})
	require.NoError(t, err)
	reg.RegisterFunc("echo", func(nc executor.NodeContext) (executor.NodeResult, error) {
		return executor.NodeResult{Output: "nested-done"}, nil
	})

	result, err := rt.RunNested(executor.NodeContext{GoCtx: context.Background()}, nested, nil)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, result.Status)
}
