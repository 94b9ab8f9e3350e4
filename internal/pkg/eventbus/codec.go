package eventbus

import "encoding/json"

// decoders maps each FlowcraftEvent type constant back to its concrete Go
// type, so a distributed transport (NATS) or an offline tool (the replay
// CLI) can round-trip a type-tagged JSON envelope without either caller
// hand-rolling its own type switch.
var decoders = map[string]func([]byte) (Event, error){
	EventTypeWorkflowStart:  decodeAs[WorkflowStart],
	EventTypeWorkflowResume: decodeAs[WorkflowResume],
	EventTypeWorkflowStall:  decodeAs[WorkflowStall],
	EventTypeWorkflowPause:  decodeAs[WorkflowPause],
	EventTypeWorkflowFinish: decodeAs[WorkflowFinish],
	EventTypeNodeStart:      decodeAs[NodeStart],
	EventTypeNodeFinish:     decodeAs[NodeFinish],
	EventTypeNodeError:      decodeAs[NodeError],
	EventTypeNodeRetry:      decodeAs[NodeRetry],
	EventTypeNodeFallback:   decodeAs[NodeFallback],
	EventTypeNodeSkipped:    decodeAs[NodeSkipped],
	EventTypeEdgeEvaluate:   decodeAs[EdgeEvaluate],
	EventTypeContextChange:  decodeAs[ContextChange],
	EventTypeJobEnqueued:    decodeAs[JobEnqueued],
	EventTypeJobProcessed:   decodeAs[JobProcessed],
	EventTypeJobFailed:      decodeAs[JobFailed],
	EventTypeBatchStart:     decodeAs[BatchStart],
	EventTypeBatchFinish:    decodeAs[BatchFinish],
}

func decodeAs[T Event](payload []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Envelope pairs an event's type tag with its marshaled payload, the wire
// shape every distributed adapter and the replay CLI use to recover the
// concrete event behind the Event interface.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps evt in its type-tagged Envelope, marshaled to JSON.
func Encode(evt Event) ([]byte, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: evt.EventType(), Payload: payload})
}

// Decode reverses Encode, dispatching on the envelope's type tag.
func Decode(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	decode, ok := decoders[env.Type]
	if !ok {
		return nil, &UnknownEventTypeError{Type: env.Type}
	}
	return decode(env.Payload)
}

// UnknownEventTypeError reports an envelope tagged with a type this codec
// doesn't know how to decode.
type UnknownEventTypeError struct {
	Type string
}

func (e *UnknownEventTypeError) Error() string {
	return "eventbus: unknown event type " + e.Type
}
