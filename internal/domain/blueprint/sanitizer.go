package blueprint

// RawNode and RawEdge mirror the wire shape a blueprint arrives in before
// sanitization — an untrusted map decoded from JSON that may carry extra,
// inherited-style fields a hostile or buggy producer attached.
type RawNode map[string]interface{}
type RawEdge map[string]interface{}

// allowed node/edge/top-level fields (§4.2). Anything else is dropped.
var (
	allowedNodeFields = map[string]bool{"id": true, "uses": true, "params": true, "inputs": true, "config": true}
	allowedEdgeFields = map[string]bool{"source": true, "target": true, "action": true, "condition": true, "transform": true}
)

// SanitizeNode strips every field not on the node allow-list and discards
// the node entirely if it has no non-empty string id.
func SanitizeNode(raw RawNode) (RawNode, bool) {
	id, ok := raw["id"].(string)
	if !ok || id == "" {
		return nil, false
	}
	clean := make(RawNode, len(raw))
	for k, v := range raw {
		if allowedNodeFields[k] {
			clean[k] = v
		}
	}
	return clean, true
}

// SanitizeEdge strips every field not on the edge allow-list.
func SanitizeEdge(raw RawEdge) RawEdge {
	clean := make(RawEdge, len(raw))
	for k, v := range raw {
		if allowedEdgeFields[k] {
			clean[k] = v
		}
	}
	return clean
}

// SanitizeDocument filters an entire raw blueprint document (id, nodes,
// edges, metadata at the top level; per-field allow-listing within each
// node/edge), dropping unknown top-level keys and malformed nodes. This is
// the external collaborator the runtime calls before constructing a
// Blueprint (§1: "the ... sanitizer ... specified only as an external
// collaborator").
func SanitizeDocument(raw map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	if id, ok := raw["id"]; ok {
		out["id"] = id
	}
	if metadata, ok := raw["metadata"]; ok {
		out["metadata"] = metadata
	}

	if rawNodes, ok := raw["nodes"].([]interface{}); ok {
		nodes := make([]interface{}, 0, len(rawNodes))
		for _, rn := range rawNodes {
			m, ok := rn.(map[string]interface{})
			if !ok {
				continue
			}
			if clean, kept := SanitizeNode(RawNode(m)); kept {
				nodes = append(nodes, map[string]interface{}(clean))
			}
		}
		out["nodes"] = nodes
	}

	if rawEdges, ok := raw["edges"].([]interface{}); ok {
		edges := make([]interface{}, 0, len(rawEdges))
		for _, re := range rawEdges {
			m, ok := re.(map[string]interface{})
			if !ok {
				continue
			}
			edges = append(edges, map[string]interface{}(SanitizeEdge(RawEdge(m))))
		}
		out["edges"] = edges
	}

	return out
}
