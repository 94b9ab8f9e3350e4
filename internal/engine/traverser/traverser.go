// Package traverser implements GraphTraverser (§4.4): owns a deep-copied
// mutable blueprint, predecessor sets, and the frontier of nodes ready to
// run next tick, including dynamic node splicing for scatter/gather and
// subflow built-ins. Grounded on the teacher's graph/engine.go
// buildExecutionPlan (adjacency lists, in-degree maps, start-node discovery)
// and executePlan's areDependenciesSatisfied/getNextNodes readiness checks,
// generalized from the teacher's all-only join semantics to the spec's
// dual all/any strategy plus the loop-controller override.
package traverser

import (
	"sort"

	"github.com/flowcraft/flowcraft/internal/domain/blueprint"
	"github.com/flowcraft/flowcraft/internal/pkg/errors"
)

// ReadyNode is one (id, definition) pair drained from the frontier.
type ReadyNode struct {
	ID   string
	Node blueprint.Node
}

// Traverser owns the single source of truth for what's ready to run. It is
// not safe for concurrent mutation (§5) — the orchestrator serializes all
// calls into it between ticks.
type Traverser struct {
	bp *blueprint.Blueprint

	predecessors map[string]map[string]bool // target -> set of predecessor IDs
	frontierSet  map[string]bool
	frontierSeq  []string // preserves insertion order for deterministic draining
	completed    map[string]bool
	fallbackOf   map[string]bool // node IDs that serve as someone's fallback
}

// New builds a Traverser from the canonical blueprint and its precomputed
// GraphAnalysis. strict rejects construction when cycles exist.
func New(bp *blueprint.Blueprint, analysis blueprint.Analysis, strict bool) (*Traverser, error) {
	if strict && len(analysis.Cycles) > 0 {
		return nil, errors.Cycle("blueprint contains a cycle and strict mode is enabled")
	}

	t := &Traverser{
		bp:           bp.Clone(),
		predecessors: make(map[string]map[string]bool),
		frontierSet:  make(map[string]bool),
		completed:    make(map[string]bool),
		fallbackOf:   make(map[string]bool),
	}

	for _, n := range t.bp.Nodes() {
		t.predecessors[n.ID] = make(map[string]bool)
		if n.Config.Fallback != "" {
			t.fallbackOf[n.Config.Fallback] = true
		}
	}
	for _, e := range t.bp.Edges() {
		t.predecessors[e.Target][e.Source] = true
	}

	startSet := make(map[string]bool, len(analysis.StartNodeIDs))
	for _, id := range analysis.StartNodeIDs {
		startSet[id] = true
	}

	seeded := false
	for _, id := range analysis.StartNodeIDs {
		if t.fallbackOf[id] {
			continue // fallbacks only run on demand, never seeded (§4.4 step 2)
		}
		t.addToFrontier(id)
		seeded = true
	}

	if !seeded && len(analysis.Cycles) > 0 {
		meta := t.bp.Metadata()
		for _, cycle := range analysis.Cycles {
			entry := blueprint.CycleEntryPoint(cycle, meta.CycleEntryPoints)
			t.addToFrontier(entry)
		}
	}

	return t, nil
}

// GetReadyNodes drains the frontier and returns every (id, def) pair.
func (t *Traverser) GetReadyNodes() []ReadyNode {
	out := make([]ReadyNode, 0, len(t.frontierSeq))
	for _, id := range t.frontierSeq {
		if !t.frontierSet[id] {
			continue
		}
		if def, ok := t.bp.Node(id); ok {
			out = append(out, ReadyNode{ID: id, Node: def})
		}
	}
	t.frontierSet = make(map[string]bool)
	t.frontierSeq = nil
	return out
}

// HasMoreWork reports whether the frontier holds anything.
func (t *Traverser) HasMoreWork() bool {
	return len(t.frontierSet) > 0
}

// Blueprint exposes the private working copy as a read-only view for the
// runtime's edge routing (determineNextNodes/applyEdgeTransform need
// OutgoingEdges/Node/SetInputs).
func (t *Traverser) Blueprint() *blueprint.Blueprint { return t.bp }

func (t *Traverser) addToFrontier(id string) {
	if t.frontierSet[id] {
		return
	}
	t.frontierSet[id] = true
	t.frontierSeq = append(t.frontierSeq, id)
}

// AddToFrontier is the public entry point used by resume (to re-admit an
// awaiting node) and by built-ins that need to directly schedule a node.
func (t *Traverser) AddToFrontier(id string) { t.addToFrontier(id) }

// isLoopController reports whether id's node `uses` loop-controller.
func (t *Traverser) isLoopController(id string) bool {
	n, ok := t.bp.Node(id)
	return ok && n.Uses == blueprint.UsesLoopCtrl
}

// effectiveJoinStrategy applies the loop-controller override (§4.4): any
// node that is itself a loop-controller, or has at least one loop-controller
// predecessor, is always treated as `any` so re-entry across iterations
// doesn't require every prior predecessor to re-complete.
func (t *Traverser) effectiveJoinStrategy(nodeID string) blueprint.JoinStrategy {
	n, ok := t.bp.Node(nodeID)
	if !ok {
		return blueprint.JoinAll
	}
	if n.Uses == blueprint.UsesLoopCtrl {
		return blueprint.JoinAny
	}
	for pred := range t.predecessors[nodeID] {
		if t.isLoopController(pred) {
			return blueprint.JoinAny
		}
	}
	return n.EffectiveJoinStrategy()
}

// ready evaluates the readiness test for target after one of its
// predecessors completed: under `all`, every predecessor must be in
// completed; under `any`, that one completion is sufficient (§4.4).
func (t *Traverser) ready(target string) bool {
	switch t.effectiveJoinStrategy(target) {
	case blueprint.JoinAny:
		return true
	default:
		for pred := range t.predecessors[target] {
			if !t.completed[pred] {
				return false
			}
		}
		return true
	}
}

// MarkNodeCompleted records nodeID's completion and, for every successor in
// matchedSuccessors (the edges determineNextNodes selected), admits it to
// the frontier if its effective join strategy is satisfied. A node already
// in completed is never re-added under `all` (§8 law 3); loop-controller
// successors may legitimately re-enter under `any`.
func (t *Traverser) MarkNodeCompleted(nodeID string, matchedSuccessors []string) {
	t.completed[nodeID] = true

	for _, succ := range matchedSuccessors {
		if t.completed[succ] && t.effectiveJoinStrategy(succ) != blueprint.JoinAny {
			continue
		}
		if t.ready(succ) {
			t.addToFrontier(succ)
		}
	}
}

// IsCompleted reports whether nodeID has completed from the traverser's own
// bookkeeping (distinct from, but kept consistent with, WorkflowState's).
func (t *Traverser) IsCompleted(nodeID string) bool { return t.completed[nodeID] }

// AddDynamicNode splices a dynamically produced node (scatter worker,
// subflow placeholder) into the private blueprint copy, wires it as a new
// predecessor of gatherNodeID when given, and admits it to the frontier
// immediately — its input having already been materialized by the producer
// (§4.6 NodeResult.dynamicNodes, §4.7 batch-scatter, §8 law 8).
func (t *Traverser) AddDynamicNode(node blueprint.Node, gatherNodeID string) {
	t.bp.AddNode(node)
	t.predecessors[node.ID] = make(map[string]bool)
	if gatherNodeID != "" {
		if t.predecessors[gatherNodeID] == nil {
			t.predecessors[gatherNodeID] = make(map[string]bool)
		}
		t.predecessors[gatherNodeID][node.ID] = true
		t.bp.AddEdge(blueprint.Edge{Source: node.ID, Target: gatherNodeID})
	}
	t.addToFrontier(node.ID)
}

// PredecessorIDs returns, sorted, every predecessor currently recorded for
// nodeID (used by applyEdgeTransform's "more than one predecessor" check).
func (t *Traverser) PredecessorIDs(nodeID string) []string {
	preds := t.predecessors[nodeID]
	out := make([]string, 0, len(preds))
	for id := range preds {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
