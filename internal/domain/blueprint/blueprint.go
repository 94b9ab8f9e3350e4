// Package blueprint models Flowcraft's declarative graph: nodes, edges, and
// metadata, plus the structural analysis (start/terminal nodes, cycles) the
// traverser seeds itself from. Grounded on the teacher's workflow.Graph
// aggregate, generalized from an LLM-pipeline graph to Flowcraft's
// registry-keyed node model.
package blueprint

import (
	"encoding/json"

	"github.com/flowcraft/flowcraft/internal/pkg/errors"
)

// JoinStrategy controls when a multi-predecessor node becomes ready.
type JoinStrategy string

const (
	JoinAll JoinStrategy = "all"
	JoinAny JoinStrategy = "any"
)

// Built-in `uses` registry keys (§4.7).
const (
	UsesWait         = "wait"
	UsesSleep        = "sleep"
	UsesSubflow      = "subflow"
	UsesBatchScatter = "batch-scatter"
	UsesBatchGather  = "batch-gather"
	UsesLoopCtrl     = "loop-controller"
)

// NodeConfig is the optional per-node execution configuration (§3).
type NodeConfig struct {
	MaxRetries   int          `json:"maxRetries,omitempty"`
	RetryDelayMs int          `json:"retryDelay,omitempty"`
	TimeoutMs    int          `json:"timeout,omitempty"`
	Fallback     string       `json:"fallback,omitempty"`
	JoinStrategy JoinStrategy `json:"joinStrategy,omitempty"`
}

// Node is a unit of computation selected from a registry via Uses.
type Node struct {
	ID     string                 `json:"id"`
	Uses   string                 `json:"uses"`
	Params map[string]interface{} `json:"params,omitempty"`
	// Inputs is either a string (single key) or a map[string]string
	// (parameter name -> context key), per §3.
	Inputs interface{} `json:"inputs,omitempty"`
	Config NodeConfig  `json:"config,omitempty"`
}

// EffectiveJoinStrategy returns the node's configured join strategy,
// defaulting to "all" when unset. The traverser, not this accessor, applies
// the loop-controller override described in §4.4.
func (n Node) EffectiveJoinStrategy() JoinStrategy {
	if n.Config.JoinStrategy == JoinAny {
		return JoinAny
	}
	return JoinAll
}

// Edge is a directed connection between nodes with optional routing
// metadata.
type Edge struct {
	Source    string      `json:"source"`
	Target    string      `json:"target"`
	Action    string      `json:"action,omitempty"`
	Condition string      `json:"condition,omitempty"`
	Transform string      `json:"transform,omitempty"`
}

// Metadata is free-form blueprint metadata; CycleEntryPoints names, per
// cycle, the node that should seed the frontier when strict mode is off and
// no start node exists.
type Metadata struct {
	CycleEntryPoints []string               `json:"cycleEntryPoints,omitempty"`
	Extra            map[string]interface{} `json:"-"`
}

// Blueprint is the immutable, serializable declarative graph. It is never
// mutated in place during a run; the traverser deep-copies it into its own
// private working copy (§3 Ownership).
type Blueprint struct {
	id       string
	nodes    []Node
	edges    []Edge
	metadata Metadata
}

// New validates and constructs a Blueprint. Unlike the teacher's Graph
// aggregate, Blueprint records no domain events: it is a pure value object,
// not a thing the engine creates via a command — only the engine's own
// execution history is event-sourced.
func New(id string, nodes []Node, edges []Edge, metadata Metadata) (*Blueprint, error) {
	if id == "" {
		return nil, errors.Configuration("blueprint id is required")
	}
	if err := validate(nodes, edges); err != nil {
		return nil, err
	}
	return &Blueprint{id: id, nodes: nodes, edges: edges, metadata: metadata}, nil
}

// FromDocument sanitizes raw (an untrusted decoded JSON/YAML document) and
// decodes the result into a validated Blueprint (§4.2, §4.8 run step 1).
func FromDocument(raw map[string]interface{}) (*Blueprint, error) {
	clean := SanitizeDocument(raw)

	data, err := json.Marshal(clean)
	if err != nil {
		return nil, errors.Configuration("malformed blueprint document: " + err.Error())
	}

	var decoded struct {
		ID       string   `json:"id"`
		Nodes    []Node   `json:"nodes"`
		Edges    []Edge   `json:"edges"`
		Metadata Metadata `json:"metadata"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, errors.Configuration("malformed blueprint document: " + err.Error())
	}

	return New(decoded.ID, decoded.Nodes, decoded.Edges, decoded.Metadata)
}

func (b *Blueprint) ID() string          { return b.id }
func (b *Blueprint) Nodes() []Node       { return b.nodes }
func (b *Blueprint) Edges() []Edge       { return b.edges }
func (b *Blueprint) Metadata() Metadata  { return b.metadata }

// Node looks up a node by ID.
func (b *Blueprint) Node(id string) (Node, bool) {
	for _, n := range b.nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// OutgoingEdges returns edges sourced from nodeID, in blueprint order — edge
// evaluation order for a single source node is defined (§5b).
func (b *Blueprint) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range b.edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Clone deep-copies the blueprint for the traverser's private working copy.
func (b *Blueprint) Clone() *Blueprint {
	nodes := make([]Node, len(b.nodes))
	copy(nodes, b.nodes)
	for i := range nodes {
		if nodes[i].Params != nil {
			p := make(map[string]interface{}, len(nodes[i].Params))
			for k, v := range nodes[i].Params {
				p[k] = v
			}
			nodes[i].Params = p
		}
	}
	edges := make([]Edge, len(b.edges))
	copy(edges, b.edges)
	return &Blueprint{id: b.id, nodes: nodes, edges: edges, metadata: b.metadata}
}

// AddNode appends a dynamically spliced node to the traverser's private
// copy. Never call this on the canonical Blueprint shared across runs.
func (b *Blueprint) AddNode(n Node) {
	b.nodes = append(b.nodes, n)
}

// AddEdge appends a dynamically spliced edge (used by batch-scatter to wire
// a worker to its gather node) to the traverser's private copy.
func (b *Blueprint) AddEdge(e Edge) {
	b.edges = append(b.edges, e)
}

// SetInputs overwrites a node's Inputs field in place, used by
// applyEdgeTransform to fix up a target node with no explicit `inputs` so its
// next execution picks up the materialized `_inputs.<id>` key (§4.8).
func (b *Blueprint) SetInputs(nodeID string, inputs interface{}) {
	for i := range b.nodes {
		if b.nodes[i].ID == nodeID {
			b.nodes[i].Inputs = inputs
			return
		}
	}
}

func validate(nodes []Node, edges []Edge) error {
	if len(nodes) == 0 {
		return errors.Configuration("blueprint must have at least one node")
	}
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			return errors.Configuration("node id is required")
		}
		if seen[n.ID] {
			return errors.Configuration("duplicate node id: " + n.ID)
		}
		seen[n.ID] = true
	}
	for _, e := range edges {
		if e.Source == "" || e.Target == "" {
			return errors.Configuration("edge source and target are required")
		}
		if !seen[e.Source] {
			return errors.Configuration("edge source not found: " + e.Source)
		}
		if !seen[e.Target] {
			return errors.Configuration("edge target not found: " + e.Target)
		}
	}
	return nil
}
