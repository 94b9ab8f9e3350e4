// Package redis is the distributed AsyncContextView backend (§4.1 "a
// network store"): every node's context reads/writes go through a Redis
// hash keyed by execution id, so multiple processes executing the same
// blueprint (the distributed adapter case §5 gestures at) observe the same
// context without any in-memory aliasing. Grounded on the teacher's
// internal/infrastructure/cache/redis.go (redis/go-redis/v9 client
// construction, JSON-encoded values, context-bounded Ping on connect).
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowcraft/flowcraft/internal/domain/flowctx"
	"github.com/flowcraft/flowcraft/internal/pkg/eventbus"
)

// NewClient constructs a go-redis client and verifies connectivity, exactly
// as the teacher's cache.NewRedisCache does.
func NewClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

// View implements flowctx.AsyncView over a single Redis hash, one per
// execution, with each field holding a JSON-encoded value. Every set/delete
// emits context:change exactly like the in-process MemoryContext view,
// through the same eventbus.Bus interface.
type View struct {
	client      *redis.Client
	bus         eventbus.Bus
	blueprintID string
	executionID string
	sourceNode  string
}

// New constructs a distributed AsyncView for one execution. sourceNode
// identifies the node attributed to changes made through this view, mirroring
// flowctx.NewMemoryAsyncView's per-node-context construction.
func New(client *redis.Client, bus eventbus.Bus, blueprintID, executionID, sourceNode string) *View {
	return &View{client: client, bus: bus, blueprintID: blueprintID, executionID: executionID, sourceNode: sourceNode}
}

func (v *View) hashKey() string {
	return fmt.Sprintf("flowcraft:context:%s:%s", v.blueprintID, v.executionID)
}

func (v *View) Get(ctx context.Context, key string) (interface{}, bool, error) {
	raw, err := v.client.HGet(ctx, v.hashKey(), key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var val interface{}
	if err := json.Unmarshal([]byte(raw), &val); err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (v *View) Has(ctx context.Context, key string) (bool, error) {
	n, err := v.client.HExists(ctx, v.hashKey(), key).Result()
	return n, err
}

func (v *View) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := v.client.HSet(ctx, v.hashKey(), key, data).Err(); err != nil {
		return err
	}
	return v.emitChange(ctx, key, "set", value)
}

func (v *View) Delete(ctx context.Context, key string) error {
	if err := v.client.HDel(ctx, v.hashKey(), key).Err(); err != nil {
		return err
	}
	return v.emitChange(ctx, key, "delete", nil)
}

// Patch applies every op in order, mirroring flowctx.memoryAsyncView.Patch's
// sequential (not Redis-transactional) application.
func (v *View) Patch(ctx context.Context, ops []flowctx.PatchOp) error {
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

// ToJSON returns the entire context as one JSON object, decoding each
// stored field value before re-encoding so the result nests properly
// instead of double-encoding each field as a JSON string.
func (v *View) ToJSON(ctx context.Context) (string, error) {
	all, err := v.client.HGetAll(ctx, v.hashKey()).Result()
	if err != nil {
		return "", err
	}
	out := make(map[string]interface{}, len(all))
	for k, raw := range all {
		var val interface{}
		if err := json.Unmarshal([]byte(raw), &val); err != nil {
			return "", err
		}
		out[k] = val
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (v *View) emitChange(ctx context.Context, key, op string, value interface{}) error {
	if v.bus == nil {
		return nil
	}
	evt := eventbus.NewContextChange(v.blueprintID, v.executionID, v.sourceNode, key, op, value)
	return v.bus.Publish(ctx, evt)
}

var _ flowctx.AsyncView = (*View)(nil)
