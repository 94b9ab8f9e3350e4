package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/flowcraft/internal/domain/blueprint"
	"github.com/flowcraft/flowcraft/internal/domain/flowctx"
	"github.com/flowcraft/flowcraft/internal/engine/evaluator"
	"github.com/flowcraft/flowcraft/internal/engine/executor"
	"github.com/flowcraft/flowcraft/internal/pkg/eventbus"
)

func newBlueprint(t *testing.T, edges []blueprint.Edge) *blueprint.Blueprint {
	t.Helper()
	bp, err := blueprint.New("bp-1", []blueprint.Node{{ID: "a", Uses: "noop"}, {ID: "b", Uses: "noop"}, {ID: "c", Uses: "noop"}}, edges, blueprint.Metadata{})
	require.NoError(t, err)
	return bp
}

func TestDetermineNextNodes_ActionEdgeTakesPriorityOverDefault(t *testing.T) {
	bp := newBlueprint(t, []blueprint.Edge{
		{Source: "a", Target: "b", Action: "retry"},
		{Source: "a", Target: "c"},
	})
	eval := evaluator.NewPropertyPath()

	matched, err := DetermineNextNodes(context.Background(), nil, eval, bp, "a", "retry", nil, nil, "bp-1", "exec-1")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "b", matched[0].Edge.Target)
}

func TestDetermineNextNodes_NoMatchingActionFallsBackToDefault(t *testing.T) {
	bp := newBlueprint(t, []blueprint.Edge{
		{Source: "a", Target: "b", Action: "retry"},
		{Source: "a", Target: "c"},
	})
	eval := evaluator.NewPropertyPath()

	matched, err := DetermineNextNodes(context.Background(), nil, eval, bp, "a", "unmatched-action", nil, nil, "bp-1", "exec-1")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "c", matched[0].Edge.Target)
}

func TestDetermineNextNodes_ConditionFiltersEdge(t *testing.T) {
	bp := newBlueprint(t, []blueprint.Edge{
		{Source: "a", Target: "b", Condition: "result.Output"},
		{Source: "a", Target: "c", Condition: "result.missing"},
	})
	eval := evaluator.NewPropertyPath()

	matched, err := DetermineNextNodes(context.Background(), nil, eval, bp, "a", "", executor.NodeResult{Output: true}, nil, "bp-1", "exec-1")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "b", matched[0].Edge.Target)
}

func TestDetermineNextNodes_NoOutgoingEdgesReturnsEmpty(t *testing.T) {
	bp := newBlueprint(t, nil)
	eval := evaluator.NewPropertyPath()

	matched, err := DetermineNextNodes(context.Background(), nil, eval, bp, "a", "", nil, nil, "bp-1", "exec-1")
	require.NoError(t, err)
	assert.Empty(t, matched)
}

func TestApplyEdgeTransform_SingleInputMaterializesInputKey(t *testing.T) {
	bp := newBlueprint(t, []blueprint.Edge{{Source: "a", Target: "b"}})
	store := flowctx.NewMemoryContext()
	bus := eventbus.New()
	async := flowctx.NewMemoryAsyncView(store, bus, "bp-1", "exec-1", "a")
	eval := evaluator.NewPropertyPath()

	err := ApplyEdgeTransform(context.Background(), async, bus, eval, bp, bp.Edges()[0], "hello", 1, "bp-1", "exec-1")
	require.NoError(t, err)

	val, ok := store.Get(flowctx.InputKey("b"))
	require.True(t, ok)
	assert.Equal(t, "hello", val)
}

func TestApplyEdgeTransform_TargetWithExplicitInputsSkipped(t *testing.T) {
	bp, err := blueprint.New("bp-1", []blueprint.Node{
		{ID: "a", Uses: "noop"},
		{ID: "b", Uses: "noop", Inputs: "explicit-key"},
	}, []blueprint.Edge{{Source: "a", Target: "b"}}, blueprint.Metadata{})
	require.NoError(t, err)
	store := flowctx.NewMemoryContext()
	bus := eventbus.New()
	async := flowctx.NewMemoryAsyncView(store, bus, "bp-1", "exec-1", "a")
	eval := evaluator.NewPropertyPath()

	err = ApplyEdgeTransform(context.Background(), async, bus, eval, bp, bp.Edges()[0], "hello", 1, "bp-1", "exec-1")
	require.NoError(t, err)

	_, ok := store.Get(flowctx.InputKey("b"))
	assert.False(t, ok)
}

func TestApplyEdgeTransform_AmbiguousFanInWithoutTransformSkipped(t *testing.T) {
	bp := newBlueprint(t, []blueprint.Edge{{Source: "a", Target: "b"}})
	store := flowctx.NewMemoryContext()
	bus := eventbus.New()
	async := flowctx.NewMemoryAsyncView(store, bus, "bp-1", "exec-1", "a")
	eval := evaluator.NewPropertyPath()

	err := ApplyEdgeTransform(context.Background(), async, bus, eval, bp, bp.Edges()[0], "hello", 2, "bp-1", "exec-1")
	require.NoError(t, err)

	_, ok := store.Get(flowctx.InputKey("b"))
	assert.False(t, ok)
}

func TestApplyEdgeTransform_AppliesTransformExpression(t *testing.T) {
	bp := newBlueprint(t, []blueprint.Edge{{Source: "a", Target: "b", Transform: "input"}})
	store := flowctx.NewMemoryContext()
	bus := eventbus.New()
	async := flowctx.NewMemoryAsyncView(store, bus, "bp-1", "exec-1", "a")
	eval := evaluator.NewPropertyPath()

	err := ApplyEdgeTransform(context.Background(), async, bus, eval, bp, bp.Edges()[0], "raw-value", 1, "bp-1", "exec-1")
	require.NoError(t, err)

	val, ok := store.Get(flowctx.InputKey("b"))
	require.True(t, ok)
	assert.Equal(t, "raw-value", val)
}
