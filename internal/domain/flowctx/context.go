// Package flowctx implements Flowcraft's Context and AsyncContextView (§4.1):
// a keyed store of arbitrary values, presented to nodes exclusively through
// its asynchronous projection so a distributed backend (internal/infra/
// flowctx/redis) can satisfy the same interface. Grounded on the teacher's
// execution.ExecutionState.GlobalState, generalized from a single global map
// into the full reserved-namespace model §3 requires.
package flowctx

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/flowcraft/flowcraft/internal/pkg/eventbus"
)

// Reserved key namespace helpers (§3).
func OutputKey(nodeID string) string          { return "_outputs." + nodeID }
func InputKey(nodeID string) string           { return "_inputs." + nodeID }
func AwaitingDetailsKey(nodeID string) string  { return "_awaitingDetails." + nodeID }
func SubflowStateKey(nodeID string) string     { return "_subflowState." + nodeID }

const (
	KeyExecutionID    = "_executionId"
	KeyAwaitingNodeIDs = "_awaitingNodeIds"
)

// Store is the synchronous, single-threaded view: get/set/has/delete/toJSON.
type Store interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{})
	Has(key string) bool
	Delete(key string)
	ToJSON() (string, error)
}

// PatchOp is one operation in an atomic multi-key patch, per §4.1.
type PatchOp struct {
	Op    string // "set" | "delete"
	Key   string
	Value interface{}
}

// AsyncView is the interface every node body sees. The core always presents
// this view to nodes (§4.1), whether it's backed by the in-memory
// MemoryContext below or a network store.
type AsyncView interface {
	Get(ctx context.Context, key string) (interface{}, bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Has(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Patch(ctx context.Context, ops []PatchOp) error
	ToJSON(ctx context.Context) (string, error)
}

// MemoryContext is the default in-process Store, safe for concurrent access
// from the orchestrator's within-tick concurrent node executions (§5).
type MemoryContext struct {
	mu   sync.RWMutex
	data map[string]interface{}
}

func NewMemoryContext() *MemoryContext {
	return &MemoryContext{data: make(map[string]interface{})}
}

func (c *MemoryContext) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *MemoryContext) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

func (c *MemoryContext) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.data[key]
	return ok
}

func (c *MemoryContext) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

func (c *MemoryContext) ToJSON() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, err := json.Marshal(c.data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Snapshot returns a shallow copy of the underlying map, used by
// serialization and by subflow context construction.
func (c *MemoryContext) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]interface{}, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// LoadSnapshot replaces the underlying map wholesale, used when
// deserializing a context for resume/replay.
func (c *MemoryContext) LoadSnapshot(snapshot map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]interface{}, len(snapshot))
	for k, v := range snapshot {
		c.data[k] = v
	}
}

// eventEmitter is the narrow surface flowctx needs from eventbus.Bus,
// independently satisfiable so tests can stub it without constructing a
// full bus.
type eventEmitter interface {
	Publish(ctx context.Context, event eventbus.Event) error
}

// memoryAsyncView adapts a MemoryContext into the AsyncView every node sees,
// resolving immediately since the store is in-process. Every set/delete
// (including those applied via Patch) emits a context:change event carrying
// {sourceNode, key, op, value?} (§4.1).
type memoryAsyncView struct {
	store       *MemoryContext
	bus         eventEmitter
	blueprintID string
	executionID string
	sourceNode  string
}

// NewMemoryAsyncView wraps store with the async projection nodes consume.
// sourceNode identifies the node attributed to changes made through this
// view (set per node-context construction in the executor).
func NewMemoryAsyncView(store *MemoryContext, bus eventEmitter, blueprintID, executionID, sourceNode string) AsyncView {
	return &memoryAsyncView{store: store, bus: bus, blueprintID: blueprintID, executionID: executionID, sourceNode: sourceNode}
}

func (v *memoryAsyncView) Get(_ context.Context, key string) (interface{}, bool, error) {
	val, ok := v.store.Get(key)
	return val, ok, nil
}

func (v *memoryAsyncView) Has(_ context.Context, key string) (bool, error) {
	return v.store.Has(key), nil
}

func (v *memoryAsyncView) Set(ctx context.Context, key string, value interface{}) error {
	v.store.Set(key, value)
	return v.emitChange(ctx, key, "set", value)
}

func (v *memoryAsyncView) Delete(ctx context.Context, key string) error {
	v.store.Delete(key)
	return v.emitChange(ctx, key, "delete", nil)
}

// Patch applies every op, in order, as a single logical unit — the store
// itself is not transactional, but since both memoryAsyncView and
// MemoryContext run single-process with one outstanding patch at a time in
// practice, sequential application is observably atomic for callers that
// don't interleave their own concurrent Sets against the same keys.
func (v *memoryAsyncView) Patch(ctx context.Context, ops []PatchOp) error {
	for _, op := range ops {
		switch op.Op {
		case "set":
			if err := v.Set(ctx, op.Key, op.Value); err != nil {
				return err
			}
		case "delete":
			if err := v.Delete(ctx, op.Key); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *memoryAsyncView) ToJSON(_ context.Context) (string, error) {
	return v.store.ToJSON()
}

func (v *memoryAsyncView) emitChange(ctx context.Context, key, op string, value interface{}) error {
	if v.bus == nil {
		return nil
	}
	evt := eventbus.NewContextChange(v.blueprintID, v.executionID, v.sourceNode, key, op, value)
	return v.bus.Publish(ctx, evt)
}
