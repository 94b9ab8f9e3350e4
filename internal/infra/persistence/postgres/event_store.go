package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowcraft/flowcraft/internal/pkg/errors"
	"github.com/flowcraft/flowcraft/internal/pkg/eventbus"
)

// EventStore persists the FlowcraftEvent stream an execution produces,
// making it sufficient for replay (§6). Grounded directly on the teacher's
// internal/infrastructure/persistence/postgres/event_store.go: the same
// ensure-stream-then-append-with-version pattern, retargeted from the
// teacher's aggregate_type/aggregate_id pair to Flowcraft's
// blueprintId/executionId pair.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore constructs an EventStore over pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append persists events for one execution, assigning each the next
// monotonic version in its stream.
func (s *EventStore) Append(ctx context.Context, blueprintID, executionID string, events []eventbus.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Fatal("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var streamID string
	err = tx.QueryRow(ctx, `
		INSERT INTO event_streams (blueprint_id, execution_id, version)
		VALUES ($1, $2, 0)
		ON CONFLICT (blueprint_id, execution_id)
		DO UPDATE SET updated_at = now()
		RETURNING stream_id
	`, blueprintID, executionID).Scan(&streamID)
	if err != nil {
		return errors.Fatal("failed to create/update event stream", err)
	}

	var currentVersion int
	if err := tx.QueryRow(ctx, `SELECT version FROM event_streams WHERE stream_id = $1`, streamID).Scan(&currentVersion); err != nil {
		return errors.Fatal("failed to read stream version", err)
	}

	for i, event := range events {
		version := currentVersion + i + 1

		payload, err := json.Marshal(event)
		if err != nil {
			return errors.Fatal("failed to marshal event", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO events (stream_id, blueprint_id, execution_id, event_type, event_version, payload)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, streamID, blueprintID, executionID, event.EventType(), version, payload)
		if err != nil {
			return errors.Fatal("failed to save event", err)
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE event_streams SET version = $1 WHERE stream_id = $2`, currentVersion+len(events), streamID); err != nil {
		return errors.Fatal("failed to advance stream version", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Fatal("failed to commit transaction", err)
	}
	return nil
}

// StoredEvent is a single persisted event, as raw JSON pending decode into a
// concrete eventbus event type by the caller (the replay orchestrator knows
// the event type → Go type mapping; this package does not).
type StoredEvent struct {
	EventType  string
	Payload    []byte
	OccurredAt time.Time
}

// Load returns every event recorded for one execution, in version order —
// the input the replay orchestrator (internal/engine/orchestrator.Replay)
// folds over.
func (s *EventStore) Load(ctx context.Context, blueprintID, executionID string) ([]StoredEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_type, payload, occurred_at
		FROM events
		WHERE blueprint_id = $1 AND execution_id = $2
		ORDER BY event_version ASC
	`, blueprintID, executionID)
	if err != nil {
		return nil, errors.Fatal("failed to load events", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var se StoredEvent
		if err := rows.Scan(&se.EventType, &se.Payload, &se.OccurredAt); err != nil {
			return nil, errors.Fatal("failed to scan event", err)
		}
		out = append(out, se)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event rows: %w", err)
	}
	return out, nil
}
