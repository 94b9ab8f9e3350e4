package blueprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeNode_DropsUnknownFieldsAndKeepsAllowed(t *testing.T) {
	clean, ok := SanitizeNode(RawNode{"id": "a", "uses": "echo", "__proto__": "evil"})
	assert.True(t, ok)
	assert.Equal(t, "a", clean["id"])
	assert.Equal(t, "echo", clean["uses"])
	_, present := clean["__proto__"]
	assert.False(t, present)
}

func TestSanitizeNode_RejectsMissingOrEmptyID(t *testing.T) {
	_, ok := SanitizeNode(RawNode{"uses": "echo"})
	assert.False(t, ok)

	_, ok = SanitizeNode(RawNode{"id": ""})
	assert.False(t, ok)

	_, ok = SanitizeNode(RawNode{"id": 42})
	assert.False(t, ok)
}

func TestSanitizeEdge_DropsUnknownFields(t *testing.T) {
	clean := SanitizeEdge(RawEdge{"source": "a", "target": "b", "weight": 9})
	assert.Equal(t, "a", clean["source"])
	assert.Equal(t, "b", clean["target"])
	_, present := clean["weight"]
	assert.False(t, present)
}

func TestSanitizeDocument_DropsUnknownTopLevelKeysAndMalformedNodes(t *testing.T) {
	raw := map[string]interface{}{
		"id": "bp",
		"nodes": []interface{}{
			map[string]interface{}{"id": "a"},
			"not-a-node",
			map[string]interface{}{"uses": "echo"},
		},
		"edges": []interface{}{
			map[string]interface{}{"source": "a", "target": "a"},
		},
		"secretKey": "drop-me",
	}

	clean := SanitizeDocument(raw)
	assert.Equal(t, "bp", clean["id"])
	_, present := clean["secretKey"]
	assert.False(t, present)

	nodes, ok := clean["nodes"].([]interface{})
	assert.True(t, ok)
	assert.Len(t, nodes, 1)

	edges, ok := clean["edges"].([]interface{})
	assert.True(t, ok)
	assert.Len(t, edges, 1)
}

func TestSanitizeDocument_PreservesMetadata(t *testing.T) {
	raw := map[string]interface{}{
		"id":       "bp",
		"metadata": map[string]interface{}{"cycleEntryPoints": []interface{}{"a"}},
	}
	clean := SanitizeDocument(raw)
	assert.Equal(t, raw["metadata"], clean["metadata"])
}
