package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/flowcraft/flowcraft/internal/domain/blueprint"
	"github.com/flowcraft/flowcraft/internal/engine/builtins"
	"github.com/flowcraft/flowcraft/internal/engine/evaluator"
	"github.com/flowcraft/flowcraft/internal/engine/executor"
	"github.com/flowcraft/flowcraft/internal/engine/runtime"
	"github.com/flowcraft/flowcraft/internal/infra/http/handlers"
	"github.com/flowcraft/flowcraft/internal/infra/persistence/postgres"
	"github.com/flowcraft/flowcraft/internal/pkg/eventbus"
)

// checkpointAdapter satisfies handlers.Checkpointer over a
// *postgres.CheckpointRepository, translating between the two packages'
// identically-shaped but distinct Checkpoint types so neither package has to
// import the other.
type checkpointAdapter struct {
	repo *postgres.CheckpointRepository
}

func (a checkpointAdapter) Save(ctx context.Context, cp handlers.Checkpoint) error {
	return a.repo.Save(ctx, postgres.Checkpoint{
		ExecutionID:       cp.ExecutionID,
		BlueprintID:       cp.BlueprintID,
		Status:            cp.Status,
		SerializedContext: cp.SerializedContext,
		AwaitingNodeIDs:   cp.AwaitingNodeIDs,
	})
}

func (a checkpointAdapter) Delete(ctx context.Context, executionID string) error {
	return a.repo.Delete(ctx, executionID)
}

// newInProcessRuntime builds a Runtime with the built-in node registry
// (wait/sleep/subflow/batch-scatter/batch-gather/loop-controller), the
// default PropertyPath evaluator, and an in-process event bus — everything
// `run` and `resume` need without standing up Postgres/NATS/Redis.
func newInProcessRuntime() (*runtime.Runtime, *handlers.BlueprintRegistry) {
	registry := executor.NewRegistry()
	builtins.Register(registry)

	blueprints := handlers.NewBlueprintRegistry()
	rt := runtime.New(registry, evaluator.NewPropertyPath(), eventbus.New(), blueprints)
	return rt, blueprints
}

// loadBlueprint reads and decodes a blueprint document from path.
func loadBlueprint(path string) (*blueprint.Blueprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return blueprint.FromDocument(doc)
}

// loadContext reads a serialized context snapshot from path, or returns an
// empty map when path is empty.
func loadContext(path string) (map[string]interface{}, error) {
	if path == "" {
		return map[string]interface{}{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ctx map[string]interface{}
	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(out, '\n'))
	return err
}
