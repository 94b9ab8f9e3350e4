package builtins

import (
	"context"
	"fmt"

	"github.com/flowcraft/flowcraft/internal/domain/blueprint"
	"github.com/flowcraft/flowcraft/internal/engine/executor"
	"github.com/flowcraft/flowcraft/internal/pkg/errors"
	"github.com/flowcraft/flowcraft/internal/pkg/eventbus"
	"github.com/flowcraft/flowcraft/internal/pkg/idgen"
)

const defaultChunkSize = 10

type bus interface {
	Publish(ctx context.Context, event eventbus.Event) error
}

func paramInt(params map[string]interface{}, key string, def int) int {
	raw, ok := params[key]
	if !ok {
		return def
	}
	switch v := raw.(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func paramString(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return s
}

// BatchScatter implements the `batch-scatter` built-in (§4.7): slices the
// input array into a chunk starting at `<nodeId>_currentIndex`, stashes each
// item under `_batch.<nodeId>_<batchId>_item_<i>`, and schedules a dynamic
// worker node per item wired to params.gatherNodeId. Updates
// `<nodeId>_currentIndex`, `<gatherNodeId>_hasMore`, and appends to
// `<gatherNodeId>_allWorkerIds`.
func BatchScatter(nc executor.NodeContext) (executor.NodeResult, error) {
	items, ok := nc.Input.([]interface{})
	if !ok {
		return executor.NodeResult{}, errors.Configuration("batch-scatter input must be an array").WithNode(nc.NodeID, nc.BlueprintID, nc.ExecutionID)
	}

	gatherNodeID := paramString(nc.Params, "gatherNodeId")
	workerUses := paramString(nc.Params, "workerUses")
	if gatherNodeID == "" || workerUses == "" {
		return executor.NodeResult{}, errors.Configuration("batch-scatter requires params.gatherNodeId and params.workerUses").WithNode(nc.NodeID, nc.BlueprintID, nc.ExecutionID)
	}
	chunkSize := paramInt(nc.Params, "chunkSize", defaultChunkSize)

	currentIndexKey := nc.NodeID + "_currentIndex"
	currentIndex := 0
	if v, found, err := nc.Async.Get(nc.GoCtx, currentIndexKey); err != nil {
		return executor.NodeResult{}, err
	} else if found {
		currentIndex = toInt(v)
	}

	batchIDKey := "_batch." + nc.NodeID + "_batchId"
	var batchID string
	if v, found, err := nc.Async.Get(nc.GoCtx, batchIDKey); err != nil {
		return executor.NodeResult{}, err
	} else if found {
		batchID, _ = v.(string)
	}
	if batchID == "" {
		batchID = idgen.New()
		if err := nc.Async.Set(nc.GoCtx, batchIDKey, batchID); err != nil {
			return executor.NodeResult{}, err
		}
	}

	end := currentIndex + chunkSize
	if end > len(items) {
		end = len(items)
	}

	var dynNodes []blueprint.Node
	var dynEdges []blueprint.Edge
	workerIDs := make([]interface{}, 0, end-currentIndex)

	for i := currentIndex; i < end; i++ {
		itemKey := fmt.Sprintf("_batch.%s_%s_item_%d", nc.NodeID, batchID, i)
		if err := nc.Async.Set(nc.GoCtx, itemKey, items[i]); err != nil {
			return executor.NodeResult{}, err
		}
		workerID := fmt.Sprintf("%s_%s_%d", workerUses, batchID, i)
		dynNodes = append(dynNodes, blueprint.Node{ID: workerID, Uses: workerUses, Inputs: itemKey})
		dynEdges = append(dynEdges, blueprint.Edge{Source: workerID, Target: gatherNodeID})
		workerIDs = append(workerIDs, workerID)
	}

	if err := nc.Async.Set(nc.GoCtx, currentIndexKey, end); err != nil {
		return executor.NodeResult{}, err
	}
	hasMore := end < len(items)
	if err := nc.Async.Set(nc.GoCtx, gatherNodeID+"_hasMore", hasMore); err != nil {
		return executor.NodeResult{}, err
	}

	allWorkersKey := gatherNodeID + "_allWorkerIds"
	existing := []interface{}{}
	if v, found, err := nc.Async.Get(nc.GoCtx, allWorkersKey); err != nil {
		return executor.NodeResult{}, err
	} else if found {
		if list, ok := v.([]interface{}); ok {
			existing = list
		}
	}
	if err := nc.Async.Set(nc.GoCtx, allWorkersKey, append(existing, workerIDs...)); err != nil {
		return executor.NodeResult{}, err
	}

	if b, ok := nc.Dependencies["eventBus"].(bus); ok && b != nil {
		workerIDStrs := make([]string, len(workerIDs))
		for i, id := range workerIDs {
			workerIDStrs[i] = id.(string)
		}
		_ = b.Publish(nc.GoCtx, eventbus.NewBatchStart(nc.BlueprintID, nc.ExecutionID, batchID, nc.NodeID, workerIDStrs))
	}

	return executor.NodeResult{DynamicNodes: dynNodes, DynamicEdges: dynEdges, Output: workerIDs}, nil
}

// BatchGather implements the `batch-gather` built-in (§4.7): if more chunks
// remain, schedules a dynamic successor scatter for the next chunk;
// otherwise concatenates every worker's `_outputs.<workerId>` (in scatter
// order) into params.outputKey and emits batch:finish. Its join strategy is
// always `all` (blueprint.Node.EffectiveJoinStrategy / traverser override
// apply independently of this body).
func BatchGather(nc executor.NodeContext) (executor.NodeResult, error) {
	hasMoreKey := nc.NodeID + "_hasMore"
	hasMore := false
	if v, found, err := nc.Async.Get(nc.GoCtx, hasMoreKey); err != nil {
		return executor.NodeResult{}, err
	} else if found {
		hasMore, _ = v.(bool)
	}

	if hasMore {
		scatterUses := paramString(nc.Params, "scatterUses")
		if scatterUses == "" {
			return executor.NodeResult{}, errors.Configuration("batch-gather requires params.scatterUses to continue scattering").WithNode(nc.NodeID, nc.BlueprintID, nc.ExecutionID)
		}
		nextID := fmt.Sprintf("%s_continue_%s", scatterUses, idgen.New())
		dynNode := blueprint.Node{ID: nextID, Uses: scatterUses, Params: nc.Params}
		return executor.NodeResult{DynamicNodes: []blueprint.Node{dynNode}}, nil
	}

	allWorkersKey := nc.NodeID + "_allWorkerIds"
	var workerIDs []interface{}
	if v, found, err := nc.Async.Get(nc.GoCtx, allWorkersKey); err != nil {
		return executor.NodeResult{}, err
	} else if found {
		workerIDs, _ = v.([]interface{})
	}

	results := make([]interface{}, 0, len(workerIDs))
	for _, raw := range workerIDs {
		workerID, _ := raw.(string)
		v, _, err := nc.Async.Get(nc.GoCtx, "_outputs."+workerID)
		if err != nil {
			return executor.NodeResult{}, err
		}
		results = append(results, v)
	}

	outputKey := paramString(nc.Params, "outputKey")
	if outputKey != "" {
		if err := nc.Async.Set(nc.GoCtx, outputKey, results); err != nil {
			return executor.NodeResult{}, err
		}
	}

	if b, ok := nc.Dependencies["eventBus"].(bus); ok && b != nil {
		batchID, _, _ := nc.Async.Get(nc.GoCtx, "_batch."+nc.NodeID+"_batchId")
		batchIDStr, _ := batchID.(string)
		_ = b.Publish(nc.GoCtx, eventbus.NewBatchFinish(nc.BlueprintID, nc.ExecutionID, batchIDStr, nc.NodeID, results))
	}

	return executor.NodeResult{Output: results}, nil
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
