// Package state implements WorkflowState (§3): the aggregate that owns the
// run's Context and tracks completed nodes, errors, the fallback flag, and
// the awaiting set, then derives the terminal WorkflowResult.status. Grounded
// on the teacher's run.Run aggregate — kept its created-at-run-start,
// mutated-by-orchestrator-only, destroyed-at-return lifecycle and its
// event-sourcing Reconstruct/applyEvent pattern, generalized from run
// lifecycle transitions to per-node completion/error/awaiting tracking.
package state

import (
	"sort"
	"time"

	"github.com/flowcraft/flowcraft/internal/domain/flowctx"
	"github.com/flowcraft/flowcraft/internal/pkg/errors"
)

// Status is the WorkflowResult.status enum (§3, derivation rules §4.10).
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStalled   Status = "stalled"
	StatusCancelled Status = "cancelled"
	StatusAwaiting  Status = "awaiting"
)

// AwaitingEntry records why a node is suspended and, for timer-based
// suspensions, when it should wake.
type AwaitingEntry struct {
	Reason   string
	WakeUpAt *time.Time
}

// WorkflowError is one structured entry in WorkflowResult.errors (§3).
type WorkflowError struct {
	Name        string
	Message     string
	NodeID      string
	BlueprintID string
	ExecutionID string
	IsFatal     bool
	Cause       error
	Timestamp   time.Time
}

// WorkflowResult is the value Runtime.run/resume/executeNode ultimately
// returns.
type WorkflowResult struct {
	Context          map[string]interface{}
	SerializedContext string
	Status           Status
	Errors           []WorkflowError
}

// WorkflowState owns the Context and the bookkeeping the orchestrator and
// executor mutate turn by turn. It is created fresh at `run` (or
// reconstructed at `resume`/replay) and discarded once a WorkflowResult has
// been produced — it is never itself persisted as a whole (the event stream
// is what's durable, per the core's "no persistence layer" non-goal).
type WorkflowState struct {
	BlueprintID string
	ExecutionID string

	ctx *flowctx.MemoryContext

	completedNodes map[string]bool
	// fallbackOriginal maps a fallback node's ID back to the original node
	// it executed on behalf of, so completion bookkeeping and successor
	// wiring happen under the original node's identity (§4.9, §8 law 2).
	fallbackOriginal map[string]string
	errs             []WorkflowError
	anyFallback      bool
	awaiting         map[string]AwaitingEntry
	cancelled        bool
}

// New creates a fresh WorkflowState for a `run` invocation.
func New(blueprintID, executionID string) *WorkflowState {
	return &WorkflowState{
		BlueprintID:      blueprintID,
		ExecutionID:      executionID,
		ctx:              flowctx.NewMemoryContext(),
		completedNodes:   make(map[string]bool),
		fallbackOriginal: make(map[string]string),
		awaiting:         make(map[string]AwaitingEntry),
	}
}

// Reconstruct deserializes a context snapshot into a fresh WorkflowState for
// `resume`. The awaiting set is rebuilt by the caller (Runtime.resume) from
// the reserved `_awaitingNodeIds`/`_awaitingDetails.<id>` context keys.
func Reconstruct(blueprintID, executionID string, snapshot map[string]interface{}, completed []string) *WorkflowState {
	s := New(blueprintID, executionID)
	s.ctx.LoadSnapshot(snapshot)
	for _, id := range completed {
		s.completedNodes[id] = true
	}
	return s
}

// Context returns the underlying in-memory store; the executor wraps it in
// an AsyncView per node invocation.
func (s *WorkflowState) Context() *flowctx.MemoryContext { return s.ctx }

// MarkNodeCompleted records nodeID (or, if it was executing as a fallback,
// the original node it stands in for) as completed.
func (s *WorkflowState) MarkNodeCompleted(nodeID string) {
	if original, ok := s.fallbackOriginal[nodeID]; ok {
		s.completedNodes[original] = true
		return
	}
	s.completedNodes[nodeID] = true
}

// IsNodeCompleted reports whether nodeID has completed.
func (s *WorkflowState) IsNodeCompleted(nodeID string) bool {
	return s.completedNodes[nodeID]
}

// CompletedNodeIDs returns every completed node, sorted for deterministic
// iteration in tests and replay comparisons.
func (s *WorkflowState) CompletedNodeIDs() []string {
	out := make([]string, 0, len(s.completedNodes))
	for id := range s.completedNodes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RecordFallback remembers that fallbackID executed in place of nodeID, and
// sets the fallback-executed flag (§4.6, §4.9).
func (s *WorkflowState) RecordFallback(nodeID, fallbackID string) {
	s.fallbackOriginal[fallbackID] = nodeID
	s.anyFallback = true
}

// AnyFallbackExecuted reports whether any node in this run completed via its
// fallback.
func (s *WorkflowState) AnyFallbackExecuted() bool { return s.anyFallback }

// RecordError appends a structured WorkflowError.
func (s *WorkflowState) RecordError(name, message, nodeID string, isFatal bool, cause error) {
	s.errs = append(s.errs, WorkflowError{
		Name:        name,
		Message:     message,
		NodeID:      nodeID,
		BlueprintID: s.BlueprintID,
		ExecutionID: s.ExecutionID,
		IsFatal:     isFatal,
		Cause:       cause,
		Timestamp:   time.Now(),
	})
}

// Errors returns every recorded error.
func (s *WorkflowState) Errors() []WorkflowError { return s.errs }

// SetAwaiting suspends nodeID with the given reason and optional wake-up
// time.
func (s *WorkflowState) SetAwaiting(nodeID, reason string, wakeUpAt *time.Time) {
	s.awaiting[nodeID] = AwaitingEntry{Reason: reason, WakeUpAt: wakeUpAt}
}

// ClearAwaiting removes nodeID from the awaiting set (on resume).
func (s *WorkflowState) ClearAwaiting(nodeID string) {
	delete(s.awaiting, nodeID)
}

// IsAwaiting reports whether any node is currently suspended.
func (s *WorkflowState) IsAwaiting() bool { return len(s.awaiting) > 0 }

// AwaitingNodeIDs returns every currently-awaiting node, sorted — resume
// without an explicit nodeId resumes the lexicographically-first one per the
// Open Question decision in SPEC_FULL.md Part A.3.
func (s *WorkflowState) AwaitingNodeIDs() []string {
	out := make([]string, 0, len(s.awaiting))
	for id := range s.awaiting {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// AwaitingEntryFor returns the awaiting entry for nodeID, if any.
func (s *WorkflowState) AwaitingEntryFor(nodeID string) (AwaitingEntry, bool) {
	e, ok := s.awaiting[nodeID]
	return e, ok
}

// Cancel marks the run cancelled; subsequent strategy invocations must
// observe this before starting a new attempt (§5).
func (s *WorkflowState) Cancel() { s.cancelled = true }

// IsCancelled reports whether the run has been cancelled.
func (s *WorkflowState) IsCancelled() bool { return s.cancelled }

// DeriveStatus implements the §4.10 derivation rules, checking cancelled
// first, then awaiting > (fallback, no errors -> completed) > failed >
// stalled > completed.
func (s *WorkflowState) DeriveStatus(allNodeIDs []string, traversalComplete bool) Status {
	if s.IsCancelled() {
		return StatusCancelled
	}
	if s.IsAwaiting() {
		return StatusAwaiting
	}
	if s.anyFallback && len(s.errs) == 0 {
		return StatusCompleted
	}
	if len(s.errs) > 0 {
		return StatusFailed
	}
	if len(s.completedNodes) < len(allNodeIDs) && traversalComplete {
		return StatusStalled
	}
	return StatusCompleted
}

// ToResult serializes the final Context and packages the WorkflowResult.
// The reserved `_awaitingNodeIds`/`_completedNodes` keys are stamped onto the
// returned snapshot (never onto the live, node-visible context) so a caller
// that round-trips Context back into Reconstruct/Resume — whether in-process
// or after a JSON hop over HTTP — can rebuild the awaiting set and completed
// bookkeeping exactly as this run left them.
func (s *WorkflowState) ToResult(allNodeIDs []string, traversalComplete bool) (WorkflowResult, error) {
	serialized, err := s.ctx.ToJSON()
	if err != nil {
		return WorkflowResult{}, errors.Fatal("failed to serialize context", err)
	}

	snapshot := s.ctx.Snapshot()
	if awaiting := s.AwaitingNodeIDs(); len(awaiting) > 0 {
		ids := make([]interface{}, len(awaiting))
		for i, id := range awaiting {
			ids[i] = id
		}
		snapshot[flowctx.KeyAwaitingNodeIDs] = ids
	}
	if completed := s.CompletedNodeIDs(); len(completed) > 0 {
		ids := make([]interface{}, len(completed))
		for i, id := range completed {
			ids[i] = id
		}
		snapshot["_completedNodes"] = ids
	}

	return WorkflowResult{
		Context:           snapshot,
		SerializedContext: serialized,
		Status:            s.DeriveStatus(allNodeIDs, traversalComplete),
		Errors:            s.errs,
	}, nil
}
