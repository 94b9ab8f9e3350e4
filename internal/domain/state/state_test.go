package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/flowcraft/internal/domain/flowctx"
)

func TestNew_StartsEmpty(t *testing.T) {
	s := New("bp-1", "exec-1")
	assert.Equal(t, "bp-1", s.BlueprintID)
	assert.Equal(t, "exec-1", s.ExecutionID)
	assert.Empty(t, s.CompletedNodeIDs())
	assert.False(t, s.IsAwaiting())
	assert.False(t, s.IsCancelled())
	assert.False(t, s.AnyFallbackExecuted())
}

func TestMarkNodeCompleted_RedirectsFallbackToOriginal(t *testing.T) {
	s := New("bp-1", "exec-1")
	s.RecordFallback("primary", "rescue")
	s.MarkNodeCompleted("rescue")

	assert.True(t, s.IsNodeCompleted("primary"))
	assert.False(t, s.IsNodeCompleted("rescue"))
	assert.True(t, s.AnyFallbackExecuted())
}

func TestCompletedNodeIDs_SortedDeterministically(t *testing.T) {
	s := New("bp-1", "exec-1")
	s.MarkNodeCompleted("c")
	s.MarkNodeCompleted("a")
	s.MarkNodeCompleted("b")
	assert.Equal(t, []string{"a", "b", "c"}, s.CompletedNodeIDs())
}

func TestRecordError_AppendsStructuredEntry(t *testing.T) {
	s := New("bp-1", "exec-1")
	s.RecordError("boom", "node exploded", "node-1", true, nil)

	errs := s.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "boom", errs[0].Name)
	assert.Equal(t, "node-1", errs[0].NodeID)
	assert.Equal(t, "bp-1", errs[0].BlueprintID)
	assert.Equal(t, "exec-1", errs[0].ExecutionID)
	assert.True(t, errs[0].IsFatal)
}

func TestAwaitingLifecycle_SetClearAndEntryLookup(t *testing.T) {
	s := New("bp-1", "exec-1")
	wake := time.Now().Add(time.Minute)
	s.SetAwaiting("a", "timer", &wake)

	assert.True(t, s.IsAwaiting())
	assert.Equal(t, []string{"a"}, s.AwaitingNodeIDs())

	entry, ok := s.AwaitingEntryFor("a")
	require.True(t, ok)
	assert.Equal(t, "timer", entry.Reason)
	assert.Equal(t, &wake, entry.WakeUpAt)

	s.ClearAwaiting("a")
	assert.False(t, s.IsAwaiting())
	_, ok = s.AwaitingEntryFor("a")
	assert.False(t, ok)
}

func TestCancel_SetsCancelledStatus(t *testing.T) {
	s := New("bp-1", "exec-1")
	assert.False(t, s.IsCancelled())
	s.Cancel()
	assert.True(t, s.IsCancelled())
	assert.Equal(t, StatusCancelled, s.DeriveStatus(nil, true))
}

func TestDeriveStatus_AwaitingBeatsEverythingElse(t *testing.T) {
	s := New("bp-1", "exec-1")
	s.RecordError("x", "y", "a", false, nil)
	s.SetAwaiting("b", "manual", nil)
	assert.Equal(t, StatusAwaiting, s.DeriveStatus([]string{"a", "b"}, true))
}

func TestDeriveStatus_FallbackWithNoErrorsIsCompleted(t *testing.T) {
	s := New("bp-1", "exec-1")
	s.RecordFallback("a", "rescue")
	s.MarkNodeCompleted("rescue")
	assert.Equal(t, StatusCompleted, s.DeriveStatus([]string{"a"}, true))
}

func TestDeriveStatus_ErrorsWithoutAwaitingIsFailed(t *testing.T) {
	s := New("bp-1", "exec-1")
	s.RecordError("x", "y", "a", false, nil)
	assert.Equal(t, StatusFailed, s.DeriveStatus([]string{"a"}, true))
}

func TestDeriveStatus_IncompleteTraversalWithNoErrorsIsStalled(t *testing.T) {
	s := New("bp-1", "exec-1")
	s.MarkNodeCompleted("a")
	assert.Equal(t, StatusStalled, s.DeriveStatus([]string{"a", "b"}, true))
}

func TestDeriveStatus_TraversalNotYetCompleteIsCompletedNotStalled(t *testing.T) {
	s := New("bp-1", "exec-1")
	s.MarkNodeCompleted("a")
	assert.Equal(t, StatusCompleted, s.DeriveStatus([]string{"a", "b"}, false))
}

func TestDeriveStatus_AllNodesDoneIsCompleted(t *testing.T) {
	s := New("bp-1", "exec-1")
	s.MarkNodeCompleted("a")
	s.MarkNodeCompleted("b")
	assert.Equal(t, StatusCompleted, s.DeriveStatus([]string{"a", "b"}, true))
}

func TestToResult_StampsAwaitingAndCompletedKeysOntoSnapshotOnly(t *testing.T) {
	s := New("bp-1", "exec-1")
	s.Context().Set("x", 1)
	s.MarkNodeCompleted("a")
	s.SetAwaiting("b", "manual", nil)

	result, err := s.ToResult([]string{"a", "b"}, true)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Context["x"])
	assert.Equal(t, []interface{}{"b"}, result.Context[flowctx.KeyAwaitingNodeIDs])
	assert.Equal(t, []interface{}{"a"}, result.Context["_completedNodes"])

	// Never written to the live, node-visible store.
	assert.False(t, s.Context().Has(flowctx.KeyAwaitingNodeIDs))
	assert.False(t, s.Context().Has("_completedNodes"))
}

func TestToResult_OmitsKeysWhenEmpty(t *testing.T) {
	s := New("bp-1", "exec-1")
	result, err := s.ToResult(nil, true)
	require.NoError(t, err)

	_, hasAwaiting := result.Context[flowctx.KeyAwaitingNodeIDs]
	_, hasCompleted := result.Context["_completedNodes"]
	assert.False(t, hasAwaiting)
	assert.False(t, hasCompleted)
}

func TestReconstruct_LoadsSnapshotAndCompletedNodesButNotAwaiting(t *testing.T) {
	s := Reconstruct("bp-1", "exec-1", map[string]interface{}{"x": 1}, []string{"a"})

	v, ok := s.Context().Get("x")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.True(t, s.IsNodeCompleted("a"))
	assert.False(t, s.IsAwaiting())
}
