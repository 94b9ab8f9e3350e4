//go:build integration
// +build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/stretchr/testify/require"

	"github.com/flowcraft/flowcraft/internal/pkg/eventbus"

	"github.com/flowcraft/flowcraft/internal/infra/persistence/postgres"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("flowcraft_test"),
		tcpostgres.WithUsername("flowcraft"),
		tcpostgres.WithPassword("flowcraft"),
		tcpostgres.BasicWaitStrategies(),
		wait.ForListeningPort("5432/tcp"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, postgres.Migrate(dsn))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestEventStore_AppendAndLoad(t *testing.T) {
	pool := setupTestDB(t)
	store := postgres.NewEventStore(pool)
	ctx := context.Background()

	events := []eventbus.Event{
		eventbus.NewWorkflowStart("bp-1", "exec-1"),
		eventbus.NewNodeStart("bp-1", "exec-1", "node-a", nil),
	}

	require.NoError(t, store.Append(ctx, "bp-1", "exec-1", events))

	loaded, err := store.Load(ctx, "bp-1", "exec-1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, "workflow:start", loaded[0].EventType)
	require.Equal(t, "node:start", loaded[1].EventType)
}

func TestCheckpointRepository_SaveAndFind(t *testing.T) {
	pool := setupTestDB(t)
	repo := postgres.NewCheckpointRepository(pool)
	ctx := context.Background()

	cp := postgres.Checkpoint{
		ExecutionID:       "exec-2",
		BlueprintID:       "bp-2",
		Status:            "awaiting",
		SerializedContext: map[string]interface{}{"_outputs.a": float64(1)},
		AwaitingNodeIDs:   []string{"wait-node"},
	}
	require.NoError(t, repo.Save(ctx, cp))

	found, err := repo.FindByExecutionID(ctx, "exec-2")
	require.NoError(t, err)
	require.Equal(t, "awaiting", found.Status)
	require.Equal(t, []string{"wait-node"}, found.AwaitingNodeIDs)

	require.NoError(t, repo.Delete(ctx, "exec-2"))
	_, err = repo.FindByExecutionID(ctx, "exec-2")
	require.Error(t, err)
}
