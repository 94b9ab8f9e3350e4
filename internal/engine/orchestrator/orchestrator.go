// Package orchestrator implements the Orchestrator tick loop (§4.9): pulls
// ready nodes from the traverser in bounded-concurrency batches, executes
// them, wires successors, and derives the terminal status. Grounded on the
// teacher's workflow/engine.go executePlan (frontier-driven batch execution
// with a worker-pool cap), generalized from the teacher's all-join-only,
// single-pass plan execution into the spec's frontier/join/fallback/dynamic-
// node model, using golang.org/x/sync/errgroup for the bounded-concurrency
// batch the teacher's own worker-pool code hand-rolls with channels.
package orchestrator

import (
	gocontext "context"
	"encoding/json"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/flowcraft/flowcraft/internal/domain/blueprint"
	"github.com/flowcraft/flowcraft/internal/domain/flowctx"
	"github.com/flowcraft/flowcraft/internal/domain/state"
	"github.com/flowcraft/flowcraft/internal/engine/evaluator"
	"github.com/flowcraft/flowcraft/internal/engine/executor"
	"github.com/flowcraft/flowcraft/internal/engine/routing"
	"github.com/flowcraft/flowcraft/internal/engine/traverser"
	"github.com/flowcraft/flowcraft/internal/pkg/errors"
	"github.com/flowcraft/flowcraft/internal/pkg/eventbus"
)

// maxIterations is the hard guard against a suspected infinite loop (§4.9
// step 8).
const maxIterations = 10000

// defaultConcurrency mirrors the spec's min(hardwareConcurrency, 10).
func defaultConcurrency() int {
	if n := runtime.NumCPU(); n < 10 {
		return n
	}
	return 10
}

// Bus is the narrow publish surface the orchestrator needs.
type Bus interface {
	Publish(ctx gocontext.Context, event eventbus.Event) error
}

// Orchestrator ties together a Traverser, a WorkflowState, and a
// NodeExecutor to drive one blueprint run to completion, one node batch at a
// time.
type Orchestrator struct {
	Traverser   *traverser.Traverser
	State       *state.WorkflowState
	Executor    *executor.NodeExecutor
	Evaluator   evaluator.Evaluator
	Bus         Bus
	Concurrency int

	BlueprintID string
	ExecutionID string
	AllNodeIDs  []string
}

// New constructs an Orchestrator, defaulting Concurrency when unset.
func New(t *traverser.Traverser, s *state.WorkflowState, ex *executor.NodeExecutor, ev evaluator.Evaluator, bus Bus, concurrency int, blueprintID, executionID string, allNodeIDs []string) *Orchestrator {
	if concurrency <= 0 {
		concurrency = defaultConcurrency()
	}
	return &Orchestrator{
		Traverser:   t,
		State:       s,
		Executor:    ex,
		Evaluator:   ev,
		Bus:         bus,
		Concurrency: concurrency,
		BlueprintID: blueprintID,
		ExecutionID: executionID,
		AllNodeIDs:  allNodeIDs,
	}
}

// settledResult is one node's settled outcome, carried from the concurrent
// execution phase into the serial result-processing phase (§4.9 steps 4-5).
type settledResult struct {
	node    blueprint.Node
	outcome executor.ExecutionOutcome
}

// Run executes the default run-to-completion loop until the traverser has
// no more work, the run becomes awaiting, or cancellation/the iteration
// guard fires.
func (o *Orchestrator) Run(ctx gocontext.Context) (state.WorkflowResult, error) {
	for iteration := 0; ; iteration++ {
		if iteration >= maxIterations {
			return state.WorkflowResult{}, errors.Fatal("exceeded maximum orchestrator iterations, suspected infinite loop", nil).
				WithNode("", o.BlueprintID, o.ExecutionID)
		}

		done, result, err := o.Tick(ctx)
		if err != nil {
			return result, err
		}
		if done {
			return result, nil
		}
	}
}

// Tick performs exactly one iteration of the loop and reports whether the
// run has settled (done=true) along with the result computed so far. The
// Step orchestrator calls this directly once per invocation; Run loops it.
func (o *Orchestrator) Tick(ctx gocontext.Context) (bool, state.WorkflowResult, error) {
	if o.State.IsCancelled() {
		return true, o.finalize(), errors.Cancelled("workflow run cancelled")
	}
	select {
	case <-ctx.Done():
		o.State.Cancel()
		return true, o.finalize(), errors.Cancelled("workflow run cancelled")
	default:
	}

	if !o.Traverser.HasMoreWork() {
		return true, o.finalize(), nil
	}

	ready := o.Traverser.GetReadyNodes()
	batch := ready
	var overflow []traverser.ReadyNode
	if len(batch) > o.Concurrency {
		overflow = batch[o.Concurrency:]
		batch = batch[:o.Concurrency]
	}

	settled, err := o.executeBatch(ctx, batch)
	if err != nil {
		o.State.Cancel()
		return true, o.finalize(), err
	}

	for _, s := range settled {
		if err := o.processResult(ctx, s); err != nil {
			return true, o.finalize(), err
		}
	}

	for _, rn := range overflow {
		o.Traverser.AddToFrontier(rn.ID)
	}

	if o.State.IsAwaiting() {
		return true, o.finalize(), nil
	}
	if !o.Traverser.HasMoreWork() {
		return true, o.finalize(), nil
	}

	return false, state.WorkflowResult{}, nil
}

// executeBatch runs every ready node concurrently via errgroup, capped
// implicitly by len(batch) (the caller already capped batch at
// o.Concurrency).
func (o *Orchestrator) executeBatch(ctx gocontext.Context, batch []traverser.ReadyNode) ([]settledResult, error) {
	results := make([]settledResult, len(batch))
	g, gctx := errgroup.WithContext(ctx)

	for i, rn := range batch {
		i, rn := i, rn
		g.Go(func() error {
			async := flowctx.NewMemoryAsyncView(o.State.Context(), o.Bus, o.BlueprintID, o.ExecutionID, rn.ID)
			outcome := o.Executor.Execute(gctx, async, o.BlueprintID, o.ExecutionID, rn.Node)
			results[i] = settledResult{node: rn.Node, outcome: outcome}
			if outcome.Outcome == executor.OutcomeCancelled {
				return outcome.Err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// processResult implements §4.9 step 5: route a settled node outcome into
// state/traverser bookkeeping, successor wiring, and dynamic node splicing.
func (o *Orchestrator) processResult(ctx gocontext.Context, s settledResult) error {
	switch s.outcome.Outcome {
	case executor.OutcomeSuccess, executor.OutcomeFailedWithFallback:
		return o.completeNode(ctx, s)
	case executor.OutcomeFailed:
		o.State.RecordError("NodeExecution", s.outcome.Err.Error(), s.node.ID, isFatal(s.outcome.Err), s.outcome.Err)
		o.Traverser.MarkNodeCompleted(s.node.ID, nil)
		return nil
	case executor.OutcomeCancelled:
		return s.outcome.Err
	}
	return nil
}

func (o *Orchestrator) completeNode(ctx gocontext.Context, s settledResult) error {
	originalID := s.node.ID

	if s.outcome.Result.Awaiting {
		o.State.SetAwaiting(originalID, s.outcome.Result.AwaitingReason, s.outcome.Result.WakeUpAt)
		return nil
	}

	if s.outcome.Fallback {
		o.State.RecordFallback(originalID, s.outcome.ExecutedNode)
	}
	o.State.MarkNodeCompleted(originalID)
	o.State.Context().Set(flowctx.OutputKey(originalID), s.outcome.Result.Output)

	for _, dn := range s.outcome.Result.DynamicNodes {
		o.Traverser.AddDynamicNode(dn, "")
	}
	for _, de := range s.outcome.Result.DynamicEdges {
		o.Traverser.Blueprint().AddEdge(de)
	}

	async := flowctx.NewMemoryAsyncView(o.State.Context(), o.Bus, o.BlueprintID, o.ExecutionID, originalID)
	contextJSON, err := snapshotJSON(ctx, async)
	if err != nil {
		return err
	}

	matched, err := routing.DetermineNextNodes(ctx, o.Bus, o.Evaluator, o.Traverser.Blueprint(), originalID, s.outcome.Result.Action, s.outcome.Result, contextJSON, o.BlueprintID, o.ExecutionID)
	if err != nil {
		return err
	}

	successors := make([]string, 0, len(matched))
	for _, m := range matched {
		predCount := len(o.Traverser.PredecessorIDs(m.Edge.Target))
		if err := routing.ApplyEdgeTransform(ctx, async, o.Bus, o.Evaluator, o.Traverser.Blueprint(), m.Edge, s.outcome.Result.Output, predCount, o.BlueprintID, o.ExecutionID); err != nil {
			return err
		}
		successors = append(successors, m.Edge.Target)
	}

	o.Traverser.MarkNodeCompleted(originalID, successors)
	return nil
}

func (o *Orchestrator) finalize() state.WorkflowResult {
	traversalComplete := !o.Traverser.HasMoreWork()
	result, err := o.State.ToResult(o.AllNodeIDs, traversalComplete)
	if err != nil {
		return state.WorkflowResult{Status: state.StatusFailed}
	}

	if result.Status == state.StatusStalled {
		remaining := make([]string, 0)
		completed := make(map[string]bool)
		for _, id := range o.State.CompletedNodeIDs() {
			completed[id] = true
		}
		for _, id := range o.AllNodeIDs {
			if !completed[id] {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		if o.Bus != nil {
			_ = o.Bus.Publish(gocontext.Background(), eventbus.NewWorkflowStall(o.BlueprintID, o.ExecutionID, remaining))
			_ = o.Bus.Publish(gocontext.Background(), eventbus.NewWorkflowPause(o.BlueprintID, o.ExecutionID))
		}
	}
	if (result.Status == state.StatusAwaiting || result.Status == state.StatusCancelled) && o.Bus != nil {
		_ = o.Bus.Publish(gocontext.Background(), eventbus.NewWorkflowPause(o.BlueprintID, o.ExecutionID))
	}

	errStrings := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		errStrings = append(errStrings, e.Message)
	}
	if o.Bus != nil {
		_ = o.Bus.Publish(gocontext.Background(), eventbus.NewWorkflowFinish(o.BlueprintID, o.ExecutionID, string(result.Status), errStrings))
	}

	return result
}

func isFatal(err error) bool {
	if fe, ok := err.(*errors.FlowError); ok {
		return fe.IsFatal()
	}
	return false
}

func snapshotJSON(ctx gocontext.Context, async flowctx.AsyncView) (map[string]interface{}, error) {
	j, err := async.ToJSON(ctx)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(j), &out); err != nil {
		return nil, err
	}
	return out, nil
}
