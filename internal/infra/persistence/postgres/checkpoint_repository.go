package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowcraft/flowcraft/internal/pkg/errors"
)

// Checkpoint is the persisted snapshot of one execution: its serialized
// context and the set of node IDs it is currently awaiting on, sufficient
// to reconstruct a state.WorkflowState via state.Reconstruct.
type Checkpoint struct {
	ExecutionID       string
	BlueprintID       string
	Status            string
	SerializedContext map[string]interface{}
	AwaitingNodeIDs   []string
}

// CheckpointRepository persists the latest checkpoint per execution,
// grounded on the teacher's internal/infrastructure/persistence/postgres/
// checkpoint_repository.go (upsert-by-key, JSON-encoded channel state),
// generalized from the teacher's thread/checkpoint-namespace key to
// Flowcraft's single executionId-keyed row — Flowcraft has one linear
// context per execution rather than LangGraph-style branching checkpoint
// history.
type CheckpointRepository struct {
	pool *pgxpool.Pool
}

// NewCheckpointRepository constructs a CheckpointRepository over pool.
func NewCheckpointRepository(pool *pgxpool.Pool) *CheckpointRepository {
	return &CheckpointRepository{pool: pool}
}

// Save upserts a checkpoint, keyed by ExecutionID.
func (r *CheckpointRepository) Save(ctx context.Context, cp Checkpoint) error {
	contextJSON, err := json.Marshal(cp.SerializedContext)
	if err != nil {
		return errors.Fatal("failed to marshal checkpoint context", err)
	}
	awaitingJSON, err := json.Marshal(cp.AwaitingNodeIDs)
	if err != nil {
		return errors.Fatal("failed to marshal awaiting node ids", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO checkpoints (execution_id, blueprint_id, status, serialized_context, awaiting_node_ids, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (execution_id)
		DO UPDATE SET
			status             = EXCLUDED.status,
			serialized_context = EXCLUDED.serialized_context,
			awaiting_node_ids  = EXCLUDED.awaiting_node_ids,
			updated_at         = now()
	`, cp.ExecutionID, cp.BlueprintID, cp.Status, contextJSON, awaitingJSON)
	if err != nil {
		return errors.Fatal("failed to save checkpoint", err)
	}
	return nil
}

// FindByExecutionID loads the checkpoint for one execution, or
// pgx.ErrNoRows if none exists.
func (r *CheckpointRepository) FindByExecutionID(ctx context.Context, executionID string) (Checkpoint, error) {
	var cp Checkpoint
	var contextJSON, awaitingJSON []byte

	err := r.pool.QueryRow(ctx, `
		SELECT execution_id, blueprint_id, status, serialized_context, awaiting_node_ids
		FROM checkpoints
		WHERE execution_id = $1
	`, executionID).Scan(&cp.ExecutionID, &cp.BlueprintID, &cp.Status, &contextJSON, &awaitingJSON)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Checkpoint{}, err
		}
		return Checkpoint{}, errors.Fatal("failed to load checkpoint", err)
	}

	if err := json.Unmarshal(contextJSON, &cp.SerializedContext); err != nil {
		return Checkpoint{}, errors.Fatal("failed to unmarshal checkpoint context", err)
	}
	if err := json.Unmarshal(awaitingJSON, &cp.AwaitingNodeIDs); err != nil {
		return Checkpoint{}, errors.Fatal("failed to unmarshal awaiting node ids", err)
	}
	return cp, nil
}

// Delete removes a checkpoint, called once an execution reaches a terminal
// status and no longer needs resumption support.
func (r *CheckpointRepository) Delete(ctx context.Context, executionID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM checkpoints WHERE execution_id = $1`, executionID)
	if err != nil {
		return errors.Fatal("failed to delete checkpoint", err)
	}
	return nil
}
