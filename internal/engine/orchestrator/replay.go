package orchestrator

import (
	"github.com/flowcraft/flowcraft/internal/domain/state"
	"github.com/flowcraft/flowcraft/internal/pkg/eventbus"
)

// Replay reconstructs a WorkflowState from a recorded event log without
// executing any user code (§4.9 "Replay orchestrator"). Grounded on the
// teacher's event-sourced Run/Graph aggregates' applyEvent dispatch,
// generalized to Flowcraft's FlowcraftEvent union and forced-completed
// terminal status.
type Replay struct {
	State       *state.WorkflowState
	ExecutionID string

	fallbackOf map[string]string // fallback node id -> original node id
	awaiting   map[string]bool
}

// NewReplay constructs a Replay bound to a fresh WorkflowState.
func NewReplay(s *state.WorkflowState, executionID string) *Replay {
	return &Replay{
		State:       s,
		ExecutionID: executionID,
		fallbackOf:  make(map[string]string),
		awaiting:    make(map[string]bool),
	}
}

// Apply replays events in order, filtering to this execution, and returns
// the forced-completed WorkflowResult once done.
func (r *Replay) Apply(events []eventbus.Event, allNodeIDs []string) (state.WorkflowResult, error) {
	for _, evt := range events {
		if evt.ExecutionID() != r.ExecutionID {
			continue
		}
		r.applyOne(evt)
	}

	result, err := r.State.ToResult(allNodeIDs, true)
	if err != nil {
		return state.WorkflowResult{}, err
	}
	result.Status = state.StatusCompleted // replay always reconstructs final state (§4.9)
	return result, nil
}

func (r *Replay) applyOne(evt eventbus.Event) {
	switch e := evt.(type) {
	case eventbus.NodeFinish:
		if original, ok := r.fallbackOf[e.NodeID]; ok {
			r.State.MarkNodeCompleted(original)
			return
		}
		r.State.MarkNodeCompleted(e.NodeID)
	case eventbus.ContextChange:
		switch e.Op {
		case "set":
			r.State.Context().Set(e.Key, e.Value)
		case "delete":
			r.State.Context().Delete(e.Key)
		}
	case eventbus.NodeError:
		r.State.RecordError("NodeExecution", e.Error, e.NodeID, false, nil)
	case eventbus.NodeFallback:
		r.fallbackOf[e.Fallback] = e.NodeID
		r.State.RecordFallback(e.NodeID, e.Fallback)
	case eventbus.WorkflowStall:
		for _, id := range e.RemainingNodes {
			r.awaiting[id] = true
			r.State.SetAwaiting(id, "replayed_stall", nil)
		}
	case eventbus.WorkflowPause:
		// no additional bookkeeping: awaiting nodes are captured only via
		// workflow:stall.
	}
}
