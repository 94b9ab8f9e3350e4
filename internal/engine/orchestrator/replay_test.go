package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/flowcraft/internal/domain/state"
	"github.com/flowcraft/flowcraft/internal/pkg/eventbus"
)

func TestReplay_ReconstructsCompletedNodesAndContext(t *testing.T) {
	st := state.New("bp-1", "exec-1")
	r := NewReplay(st, "exec-1")

	events := []eventbus.Event{
		eventbus.NewWorkflowStart("bp-1", "exec-1"),
		eventbus.NewNodeFinish("bp-1", "exec-1", "a", "output-a"),
		eventbus.NewContextChange("bp-1", "exec-1", "a", "some.key", "set", "value"),
		eventbus.NewNodeFinish("bp-1", "exec-1", "b", "output-b"),
		eventbus.NewWorkflowFinish("bp-1", "exec-1", "completed", nil),
	}

	result, err := r.Apply(events, []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, state.StatusCompleted, result.Status)
	assert.True(t, st.IsNodeCompleted("a"))
	assert.True(t, st.IsNodeCompleted("b"))
	val, ok := st.Context().Get("some.key")
	require.True(t, ok)
	assert.Equal(t, "value", val)
}

func TestReplay_IgnoresEventsFromOtherExecutions(t *testing.T) {
	st := state.New("bp-1", "exec-1")
	r := NewReplay(st, "exec-1")

	events := []eventbus.Event{
		eventbus.NewNodeFinish("bp-1", "exec-1", "a", nil),
		eventbus.NewNodeFinish("bp-1", "other-exec", "b", nil),
	}

	_, err := r.Apply(events, []string{"a", "b"})
	require.NoError(t, err)

	assert.True(t, st.IsNodeCompleted("a"))
	assert.False(t, st.IsNodeCompleted("b"))
}

func TestReplay_FallbackReplayCompletesOriginalNode(t *testing.T) {
	st := state.New("bp-1", "exec-1")
	r := NewReplay(st, "exec-1")

	events := []eventbus.Event{
		eventbus.NewNodeFallback("bp-1", "exec-1", "primary", "rescue"),
		eventbus.NewNodeFinish("bp-1", "exec-1", "rescue", "recovered"),
	}

	_, err := r.Apply(events, []string{"primary"})
	require.NoError(t, err)

	assert.True(t, st.IsNodeCompleted("primary"))
	assert.True(t, st.AnyFallbackExecuted())
}

func TestReplay_StallMarksRemainingNodesAwaiting(t *testing.T) {
	st := state.New("bp-1", "exec-1")
	r := NewReplay(st, "exec-1")

	events := []eventbus.Event{
		eventbus.NewWorkflowStall("bp-1", "exec-1", []string{"b"}),
	}

	_, err := r.Apply(events, []string{"a", "b"})
	require.NoError(t, err)

	assert.Contains(t, st.AwaitingNodeIDs(), "b")
}
