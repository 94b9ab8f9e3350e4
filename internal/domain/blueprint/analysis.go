package blueprint

import "sort"

// color marks a node's state during iterative DFS cycle detection.
type color int

const (
	white color = iota // not visited
	gray               // on the current DFS stack ("visiting")
	black              // fully explored ("visited")
)

// Cycle is the ordered path from a back edge's target around to the node
// that closes the cycle, recorded as the path followed by the back-edge
// target again (§4.3).
type Cycle struct {
	Path []string
}

// Analysis is the GraphAnalysis result: start nodes (no incoming edges),
// terminal nodes (no outgoing edges), and every cycle discovered.
type Analysis struct {
	StartNodeIDs    []string
	TerminalNodeIDs []string
	Cycles          []Cycle
}

// Analyze computes GraphAnalysis over a blueprint's static structure. Cycle
// detection is iterative with an explicit stack and three-color marking —
// deliberately not recursive, so arbitrarily deep graphs never blow a Go
// goroutine stack (spec.md §4.3 mandates "never recursion").
func Analyze(b *Blueprint) Analysis {
	nodes := b.Nodes()
	edges := b.Edges()

	indeg := make(map[string]int, len(nodes))
	outdeg := make(map[string]int, len(nodes))
	adj := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		indeg[n.ID] = 0
		outdeg[n.ID] = 0
	}
	for _, e := range edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
		indeg[e.Target]++
		outdeg[e.Source]++
	}

	var start, terminal []string
	for _, n := range nodes {
		if indeg[n.ID] == 0 {
			start = append(start, n.ID)
		}
		if outdeg[n.ID] == 0 {
			terminal = append(terminal, n.ID)
		}
	}
	sort.Strings(start)
	sort.Strings(terminal)

	return Analysis{
		StartNodeIDs:    start,
		TerminalNodeIDs: terminal,
		Cycles:          detectCycles(nodes, adj),
	}
}

// frame is one explicit-stack entry: the node being explored and the index
// of the next neighbor to visit, so the loop can resume a partially-explored
// node without recursion.
type frame struct {
	nodeID   string
	nextEdge int
}

func detectCycles(nodes []Node, adj map[string][]string) []Cycle {
	colors := make(map[string]color, len(nodes))
	for _, n := range nodes {
		colors[n.ID] = white
	}

	var cycles []Cycle
	// Stable iteration order keeps cycle-detection output deterministic.
	order := make([]string, 0, len(nodes))
	for _, n := range nodes {
		order = append(order, n.ID)
	}

	for _, root := range order {
		if colors[root] != white {
			continue
		}

		var stack []frame
		var path []string
		stack = append(stack, frame{nodeID: root})
		colors[root] = gray
		path = append(path, root)

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			neighbors := adj[top.nodeID]

			if top.nextEdge >= len(neighbors) {
				colors[top.nodeID] = black
				path = path[:len(path)-1]
				stack = stack[:len(stack)-1]
				continue
			}

			next := neighbors[top.nextEdge]
			top.nextEdge++

			switch colors[next] {
			case white:
				colors[next] = gray
				path = append(path, next)
				stack = append(stack, frame{nodeID: next})
			case gray:
				// Back edge: record the path from next's position in the
				// current path back to the top, then repeat next to close
				// the loop (§4.3: "followed by the back-edge target").
				idx := indexOf(path, next)
				cyclePath := append([]string{}, path[idx:]...)
				cyclePath = append(cyclePath, next)
				cycles = append(cycles, Cycle{Path: cyclePath})
			case black:
				// Cross/forward edge, not a cycle.
			}
		}
	}

	return cycles
}

func indexOf(path []string, id string) int {
	for i, v := range path {
		if v == id {
			return i
		}
	}
	return 0
}

// CycleEntryPoint picks the node that should seed the frontier for a cycle
// when the frontier would otherwise be empty and strict mode is off:
// metadata.cycleEntryPoints wins if it names a member of the cycle;
// otherwise fall back to the lexicographically-first node ID in the cycle,
// our resolution of the spec's documented open question about
// nondeterministic tie-breaking (SPEC_FULL.md Part A.3, DESIGN.md).
func CycleEntryPoint(cycle Cycle, metadataEntryPoints []string) string {
	members := make(map[string]bool, len(cycle.Path))
	for _, id := range cycle.Path {
		members[id] = true
	}
	for _, candidate := range metadataEntryPoints {
		if members[candidate] {
			return candidate
		}
	}
	sorted := append([]string{}, cycle.Path...)
	sort.Strings(sorted)
	return sorted[0]
}
