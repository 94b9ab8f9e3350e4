// Package serializer implements the Serializer interface (§6): serialize an
// arbitrary context value to a string and back. Grounded on the rest of the
// engine's own choice of encoding/json for context snapshots (routing.go,
// orchestrator.go, runtime.go all already round-trip context through
// encoding/json) — the default implementation here reuses the same codec
// rather than introducing a second one.
package serializer

import "encoding/json"

// Serializer converts a context value to and from its wire representation.
// Implementations should preserve the structured types a user stores in
// context; JSONSerializer documents where JSON's representation loses fidelity.
type Serializer interface {
	Serialize(obj interface{}) (string, error)
	Deserialize(text string) (interface{}, error)
}

// JSONSerializer is the default Serializer (§6). It loses the distinction
// between int and float64 (JSON numbers decode to float64), does not
// round-trip time.Time (decodes as a plain string), and cannot represent
// map keys other than strings.
type JSONSerializer struct{}

// Default is the engine's default Serializer.
var Default Serializer = JSONSerializer{}

func (JSONSerializer) Serialize(obj interface{}) (string, error) {
	b, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (JSONSerializer) Deserialize(text string) (interface{}, error) {
	var out interface{}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, err
	}
	return out, nil
}
