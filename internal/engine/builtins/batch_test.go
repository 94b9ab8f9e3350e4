package builtins

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/flowcraft/internal/domain/flowctx"
	"github.com/flowcraft/flowcraft/internal/engine/executor"
)

func batchNodeContext(nodeID string, input interface{}, params map[string]interface{}, async flowctx.AsyncView) executor.NodeContext {
	nc := newNodeContext(nodeID, input, params)
	nc.Async = async
	nc.Dependencies = map[string]interface{}{}
	return nc
}

func TestBatchScatter_RequiresArrayInput(t *testing.T) {
	nc := newNodeContext("scatter", "not-an-array", map[string]interface{}{"gatherNodeId": "gather", "workerUses": "worker"})
	_, err := BatchScatter(nc)
	assert.Error(t, err)
}

func TestBatchScatter_RequiresGatherNodeIdAndWorkerUses(t *testing.T) {
	nc := newNodeContext("scatter", []interface{}{1}, nil)
	_, err := BatchScatter(nc)
	assert.Error(t, err)
}

func TestBatchScatter_SchedulesOneWorkerPerItemWithDefaultChunkSize(t *testing.T) {
	async := newAsyncView()
	items := []interface{}{"a", "b", "c"}
	nc := batchNodeContext("scatter", items, map[string]interface{}{"gatherNodeId": "gather", "workerUses": "worker"}, async)

	result, err := BatchScatter(nc)
	require.NoError(t, err)

	require.Len(t, result.DynamicNodes, 3)
	require.Len(t, result.DynamicEdges, 3)
	for _, edge := range result.DynamicEdges {
		assert.Equal(t, "gather", edge.Target)
	}
	outputIDs, ok := result.Output.([]interface{})
	require.True(t, ok)
	assert.Len(t, outputIDs, 3)

	hasMore, _, err := async.Get(context.Background(), "gather_hasMore")
	require.NoError(t, err)
	assert.Equal(t, false, hasMore)
}

func TestBatchScatter_ChunksAcrossRepeatedCalls(t *testing.T) {
	async := newAsyncView()
	items := []interface{}{"a", "b", "c"}
	params := map[string]interface{}{"gatherNodeId": "gather", "workerUses": "worker", "chunkSize": 2}

	first, err := BatchScatter(batchNodeContext("scatter", items, params, async))
	require.NoError(t, err)
	assert.Len(t, first.DynamicNodes, 2)
	hasMore, _, err := async.Get(context.Background(), "gather_hasMore")
	require.NoError(t, err)
	assert.Equal(t, true, hasMore)

	second, err := BatchScatter(batchNodeContext("scatter", items, params, async))
	require.NoError(t, err)
	assert.Len(t, second.DynamicNodes, 1)
	hasMore, _, err = async.Get(context.Background(), "gather_hasMore")
	require.NoError(t, err)
	assert.Equal(t, false, hasMore)

	allWorkers, _, err := async.Get(context.Background(), "gather_allWorkerIds")
	require.NoError(t, err)
	assert.Len(t, allWorkers.([]interface{}), 3)
}

func TestBatchGather_ContinuesScatteringWhileMoreRemain(t *testing.T) {
	async := newAsyncView()
	require.NoError(t, async.Set(context.Background(), "gather_hasMore", true))

	nc := batchNodeContext("gather", nil, map[string]interface{}{"scatterUses": "worker"}, async)
	result, err := BatchGather(nc)
	require.NoError(t, err)

	require.Len(t, result.DynamicNodes, 1)
	assert.True(t, strings.HasPrefix(result.DynamicNodes[0].ID, "worker_continue_"))
}

func TestBatchGather_MissingScatterUsesErrorsWhileMoreRemain(t *testing.T) {
	async := newAsyncView()
	require.NoError(t, async.Set(context.Background(), "gather_hasMore", true))

	_, err := BatchGather(batchNodeContext("gather", nil, nil, async))
	assert.Error(t, err)
}

func TestBatchGather_ConcatenatesWorkerOutputsInScatterOrder(t *testing.T) {
	async := newAsyncView()
	ctx := context.Background()
	require.NoError(t, async.Set(ctx, "gather_hasMore", false))
	require.NoError(t, async.Set(ctx, "gather_allWorkerIds", []interface{}{"w1", "w2"}))
	require.NoError(t, async.Set(ctx, "_outputs.w1", 10))
	require.NoError(t, async.Set(ctx, "_outputs.w2", 20))

	nc := batchNodeContext("gather", nil, map[string]interface{}{"outputKey": "results"}, async)
	result, err := BatchGather(nc)
	require.NoError(t, err)

	assert.Equal(t, []interface{}{10, 20}, result.Output)
	stored, _, err := async.Get(ctx, "results")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{10, 20}, stored)
}
