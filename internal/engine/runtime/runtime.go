// Package runtime implements the Runtime façade (§4.8): run, resume, and
// executeNode, calling package routing for determineNextNodes and
// applyEdgeTransform. Grounded on the
// teacher's application/command handlers (StartWorkflowHandler,
// ResumeWorkflowHandler) which wire a Graph + ExecutionState into the
// orchestrator, generalized from the teacher's single-blueprint-registry
// command surface into Flowcraft's explicit façade functions operating
// directly on a Blueprint value.
package runtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/flowcraft/flowcraft/internal/domain/blueprint"
	"github.com/flowcraft/flowcraft/internal/domain/flowctx"
	"github.com/flowcraft/flowcraft/internal/domain/state"
	"github.com/flowcraft/flowcraft/internal/engine/evaluator"
	"github.com/flowcraft/flowcraft/internal/engine/executor"
	"github.com/flowcraft/flowcraft/internal/engine/orchestrator"
	"github.com/flowcraft/flowcraft/internal/engine/routing"
	"github.com/flowcraft/flowcraft/internal/engine/strategy"
	"github.com/flowcraft/flowcraft/internal/engine/traverser"
	"github.com/flowcraft/flowcraft/internal/pkg/errors"
	"github.com/flowcraft/flowcraft/internal/pkg/eventbus"
	"github.com/flowcraft/flowcraft/internal/pkg/idgen"
)

// BlueprintRegistry resolves a blueprint ID to its Blueprint, used by the
// `subflow` built-in (§4.7) to find the nested blueprint it must run.
type BlueprintRegistry interface {
	Get(blueprintID string) (*blueprint.Blueprint, bool)
}

// Options configures a single run/resume invocation (§4.8, §6 "public
// configuration options").
type Options struct {
	DynamicRegistry *executor.Registry
	Strict          bool
	Concurrency     int
	Dependencies    map[string]interface{}
	Logger          executor.Logger
}

// Runtime bundles the process-wide collaborators a run/resume/executeNode
// invocation needs: the node registry, the evaluator implementation, the
// event bus, and a blueprint registry for subflow resolution.
type Runtime struct {
	ProcessRegistry   *executor.Registry
	Evaluator         evaluator.Evaluator
	Bus               *eventbus.EventBus
	BlueprintRegistry BlueprintRegistry
	Scheduler         Scheduler
}

// Scheduler is the narrow surface Runtime needs to register a timer-based
// awaiting node (§4.11); nil disables scheduler registration.
type Scheduler interface {
	Register(executionID, blueprintID, nodeID string, wakeUpAt time.Time, serializedContext string)
}

// New constructs a Runtime.
func New(processRegistry *executor.Registry, eval evaluator.Evaluator, bus *eventbus.EventBus, blueprints BlueprintRegistry) *Runtime {
	return &Runtime{ProcessRegistry: processRegistry, Evaluator: eval, Bus: bus, BlueprintRegistry: blueprints}
}

// buildOrchestrator assembles a fresh Traverser/NodeExecutor/Orchestrator
// triple for one run or resume.
func (rt *Runtime) buildOrchestrator(bp *blueprint.Blueprint, st *state.WorkflowState, opts Options, executionID string) (*orchestrator.Orchestrator, error) {
	analysis := blueprint.Analyze(bp)
	if opts.Strict && len(analysis.Cycles) > 0 {
		return nil, errors.Cycle("blueprint contains a cycle and strict mode is enabled").WithNode("", bp.ID(), executionID)
	}

	trav, err := traverser.New(bp, analysis, opts.Strict)
	if err != nil {
		return nil, err
	}

	registry := rt.ProcessRegistry
	if opts.DynamicRegistry != nil {
		registry = registry.Merge(opts.DynamicRegistry)
	}

	deps := map[string]interface{}{}
	for k, v := range opts.Dependencies {
		deps[k] = v
	}
	deps["workflowState"] = st
	deps["runtime"] = rt
	deps["eventBus"] = rt.Bus
	deps["evaluator"] = rt.Evaluator
	if rt.BlueprintRegistry != nil {
		deps["blueprintRegistry"] = rt.BlueprintRegistry
	}

	ex := &executor.NodeExecutor{
		Registry:     registry,
		Bus:          rt.Bus,
		Strategy:     strategyFactory,
		Dependencies: deps,
		Logger:       opts.Logger,
	}

	allNodeIDs := make([]string, 0, len(bp.Nodes()))
	for _, n := range bp.Nodes() {
		allNodeIDs = append(allNodeIDs, n.ID)
	}

	return orchestrator.New(trav, st, ex, rt.Evaluator, rt.Bus, opts.Concurrency, bp.ID(), executionID, allNodeIDs), nil
}

// strategyFactory adapts internal/engine/strategy.Select to the
// executor.StrategyFactory shape, living here (rather than in executor
// itself) to avoid an import cycle between executor and strategy.
func strategyFactory(resolved interface{}, nodeID string, params map[string]interface{}, maxRetries, retryDelayMs int, onRetry func(nc executor.NodeContext, attempt int)) (func(nc executor.NodeContext) (executor.NodeResult, error), error) {
	s, err := strategy.Select(resolved, nodeID, params, maxRetries, retryDelayMs, strategy.RetryHook(onRetry))
	if err != nil {
		return nil, err
	}
	return s.Execute, nil
}

// Run implements §4.8 `run` on an already constructed Blueprint (Run itself
// does not sanitize or validate it): constructs a fresh WorkflowState seeded
// with initialState, emits workflow:start, and drives the orchestrator to
// completion.
func (rt *Runtime) Run(ctx context.Context, bp *blueprint.Blueprint, initialState map[string]interface{}, opts Options) (state.WorkflowResult, error) {
	executionID := idgen.New()
	st := state.New(bp.ID(), executionID)
	for k, v := range initialState {
		st.Context().Set(k, v)
	}
	st.Context().Set(flowctx.KeyExecutionID, executionID)

	orch, err := rt.buildOrchestrator(bp, st, opts, executionID)
	if err != nil {
		return state.WorkflowResult{}, err
	}

	rt.publish(ctx, eventbus.NewWorkflowStart(bp.ID(), executionID))

	result, err := orch.Run(ctx)
	if err != nil {
		if fe, ok := err.(*errors.FlowError); ok && fe.Kind == errors.KindCancelled {
			st.Cancel()
			result, _ = st.ToResult(orch.AllNodeIDs, !orch.Traverser.HasMoreWork())
			return result, nil
		}
		return result, err
	}

	if result.Status == state.StatusAwaiting {
		rt.registerTimers(st, bp.ID(), executionID)
	}

	return result, nil
}

// RunNested implements builtins.SubflowRunner: runs a nested blueprint
// through this same Runtime (sharing its registry, evaluator, and event
// bus), propagating the parent node's Go context and dependencies so a
// subflow's own nested subflow can recurse (§4.7 `subflow`).
func (rt *Runtime) RunNested(nc executor.NodeContext, sub *blueprint.Blueprint, initialState map[string]interface{}) (state.WorkflowResult, error) {
	return rt.Run(nc.GoCtx, sub, initialState, Options{Dependencies: nc.Dependencies, Logger: nc.Logger})
}

// Resume implements §4.8 `resume`: deserializes context into a fresh
// WorkflowState, validates the awaiting node, wires its successors exactly
// as normal execution would, clears the awaiting flag, and invokes the
// orchestrator.
func (rt *Runtime) Resume(ctx context.Context, bp *blueprint.Blueprint, serializedContext map[string]interface{}, resumeOutput interface{}, nodeID string, opts Options) (state.WorkflowResult, error) {
	executionID, _ := serializedContext[flowctx.KeyExecutionID].(string)
	if executionID == "" {
		executionID = idgen.New()
	}

	completed := decodeStringList(serializedContext["_completedNodes"])
	st := state.Reconstruct(bp.ID(), executionID, serializedContext, completed)

	awaitingIDs := decodeAwaitingIDs(serializedContext)
	for _, id := range awaitingIDs {
		st.SetAwaiting(id, "", nil)
	}

	target := nodeID
	if target == "" {
		ids := st.AwaitingNodeIDs()
		if len(ids) == 0 {
			return state.WorkflowResult{}, errors.InvalidState("no awaiting nodes", "resume")
		}
		target = ids[0]
	}
	if _, ok := st.AwaitingEntryFor(target); !ok {
		return state.WorkflowResult{}, errors.InvalidState("not awaiting", "resume node "+target)
	}

	rt.publish(ctx, eventbus.NewWorkflowResume(bp.ID(), executionID, target))

	orch, err := rt.buildOrchestrator(bp, st, opts, executionID)
	if err != nil {
		return state.WorkflowResult{}, err
	}

	st.MarkNodeCompleted(target)
	st.ClearAwaiting(target)
	st.Context().Set(flowctx.OutputKey(target), resumeOutput)

	// The fresh traverser seeded the blueprint's start nodes; keep only those
	// that have neither completed nor are still awaiting, and record every
	// prior completion so `all` joins downstream of them can be satisfied.
	for _, rn := range orch.Traverser.GetReadyNodes() {
		if _, waiting := st.AwaitingEntryFor(rn.ID); !waiting && !st.IsNodeCompleted(rn.ID) {
			orch.Traverser.AddToFrontier(rn.ID)
		}
	}
	for _, id := range st.CompletedNodeIDs() {
		orch.Traverser.MarkNodeCompleted(id, nil)
	}

	async := flowctx.NewMemoryAsyncView(st.Context(), rt.Bus, bp.ID(), executionID, target)
	contextJSON, err := jsonSnapshot(ctx, async)
	if err != nil {
		return state.WorkflowResult{}, err
	}

	matched, err := routing.DetermineNextNodes(ctx, rt.Bus, rt.Evaluator, orch.Traverser.Blueprint(), target, "", executor.NodeResult{Output: resumeOutput}, contextJSON, bp.ID(), executionID)
	if err != nil {
		return state.WorkflowResult{}, err
	}

	successors := make([]string, 0, len(matched))
	for _, m := range matched {
		predCount := len(orch.Traverser.PredecessorIDs(m.Edge.Target))
		if err := routing.ApplyEdgeTransform(ctx, async, rt.Bus, rt.Evaluator, orch.Traverser.Blueprint(), m.Edge, resumeOutput, predCount, bp.ID(), executionID); err != nil {
			return state.WorkflowResult{}, err
		}
		successors = append(successors, m.Edge.Target)
	}
	orch.Traverser.MarkNodeCompleted(target, successors)

	result, err := orch.Run(ctx)
	if err != nil {
		return result, err
	}
	if result.Status == state.StatusAwaiting {
		rt.registerTimers(st, bp.ID(), executionID)
	}
	return result, nil
}

// ExecuteNode implements §4.8 `executeNode`: single-node execution used by
// distributed adapters, sharing input resolution/strategy/middleware/
// fallback handling with the orchestrator but never touching the frontier.
func (rt *Runtime) ExecuteNode(ctx context.Context, bp *blueprint.Blueprint, nodeID string, st *state.WorkflowState, opts Options) (executor.ExecutionOutcome, error) {
	node, ok := bp.Node(nodeID)
	if !ok {
		return executor.ExecutionOutcome{}, errors.NotFound("node", nodeID).WithNode(nodeID, bp.ID(), st.ExecutionID)
	}

	registry := rt.ProcessRegistry
	if opts.DynamicRegistry != nil {
		registry = registry.Merge(opts.DynamicRegistry)
	}
	deps := map[string]interface{}{}
	for k, v := range opts.Dependencies {
		deps[k] = v
	}
	deps["workflowState"] = st
	deps["runtime"] = rt
	deps["eventBus"] = rt.Bus
	deps["evaluator"] = rt.Evaluator
	if rt.BlueprintRegistry != nil {
		deps["blueprintRegistry"] = rt.BlueprintRegistry
	}

	ex := &executor.NodeExecutor{
		Registry:     registry,
		Bus:          rt.Bus,
		Strategy:     strategyFactory,
		Dependencies: deps,
		Logger:       opts.Logger,
	}

	async := flowctx.NewMemoryAsyncView(st.Context(), rt.Bus, bp.ID(), st.ExecutionID, nodeID)
	outcome := ex.Execute(ctx, async, bp.ID(), st.ExecutionID, node)
	return outcome, nil
}

// ResumeByID implements scheduler.Resumer: looks the blueprint up in the
// BlueprintRegistry, deserializes the scheduler's stashed context, and
// resumes the named node. Returns the resulting workflow status so the
// scheduler knows whether to drop its entry for good.
func (rt *Runtime) ResumeByID(ctx context.Context, blueprintID, executionID, nodeID, serializedContext string) (string, error) {
	if rt.BlueprintRegistry == nil {
		return "", errors.Configuration("resume by id requires a blueprintRegistry")
	}
	bp, found := rt.BlueprintRegistry.Get(blueprintID)
	if !found {
		return "", errors.NotFound("blueprint", blueprintID)
	}

	var snapshot map[string]interface{}
	if serializedContext != "" {
		if err := json.Unmarshal([]byte(serializedContext), &snapshot); err != nil {
			return "", err
		}
	}
	if snapshot == nil {
		snapshot = map[string]interface{}{}
	}
	snapshot[flowctx.KeyExecutionID] = executionID

	result, err := rt.Resume(ctx, bp, snapshot, nil, nodeID, Options{})
	if err != nil {
		return "", err
	}
	return string(result.Status), nil
}

func (rt *Runtime) publish(ctx context.Context, evt eventbus.Event) {
	if rt.Bus == nil {
		return
	}
	_ = rt.Bus.Publish(ctx, evt)
}

func (rt *Runtime) registerTimers(st *state.WorkflowState, blueprintID, executionID string) {
	if rt.Scheduler == nil {
		return
	}
	serialized, err := st.Context().ToJSON()
	if err != nil {
		return
	}
	for _, nodeID := range st.AwaitingNodeIDs() {
		entry, ok := st.AwaitingEntryFor(nodeID)
		if !ok || entry.WakeUpAt == nil {
			continue
		}
		rt.Scheduler.Register(executionID, blueprintID, nodeID, *entry.WakeUpAt, serialized)
	}
}

func decodeAwaitingIDs(snapshot map[string]interface{}) []string {
	return decodeStringList(snapshot[flowctx.KeyAwaitingNodeIDs])
}

// decodeStringList tolerates both a native []string (set in-process, e.g. by
// tests constructing a snapshot directly) and the []interface{} a JSON round
// trip always produces (e.g. serializedContext arriving over HTTP).
func decodeStringList(raw interface{}) []string {
	switch list := raw.(type) {
	case []string:
		return list
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, v := range list {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func jsonSnapshot(ctx context.Context, async flowctx.AsyncView) (map[string]interface{}, error) {
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
