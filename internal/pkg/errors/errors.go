// Package errors implements Flowcraft's structured error taxonomy:
// Cancelled, NodeExecution, Fatal, Configuration, and Cycle errors, all
// wrapping a common FlowError so callers can branch on Kind() or use the
// stdlib errors.Is/errors.As idiom.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind discriminates the taxonomy named in the error-handling design.
type Kind string

const (
	KindCancelled     Kind = "CANCELLED"
	KindNodeExecution Kind = "NODE_EXECUTION"
	KindFatal         Kind = "FATAL"
	KindConfiguration Kind = "CONFIGURATION"
	KindCycle         Kind = "CYCLE"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidState  = errors.New("invalid state")
	ErrCancelled     = errors.New("workflow cancelled")
	ErrMaxIterations = errors.New("max iterations exceeded")
)

// FlowError is the concrete error type produced throughout the engine. It
// carries enough identifying context (node, blueprint, execution) to appear
// verbatim in a WorkflowError entry.
type FlowError struct {
	Kind        Kind
	Message     string
	Err         error
	NodeID      string
	BlueprintID string
	ExecutionID string
	Timestamp   time.Time
	Details     map[string]interface{}
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether retries and fallbacks must be skipped for this
// error. Fatal and Configuration errors are always fatal; Cycle errors never
// reach execution so they carry no retry semantics either way.
func (e *FlowError) IsFatal() bool {
	return e.Kind == KindFatal || e.Kind == KindConfiguration
}

func newFlowError(kind Kind, message string, err error) *FlowError {
	return &FlowError{
		Kind:      kind,
		Message:   message,
		Err:       err,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}
}

// WithNode attaches node/blueprint/execution identifiers, mirroring how a
// WorkflowError entry is assembled.
func (e *FlowError) WithNode(nodeID, blueprintID, executionID string) *FlowError {
	e.NodeID = nodeID
	e.BlueprintID = blueprintID
	e.ExecutionID = executionID
	return e
}

func (e *FlowError) WithDetails(key string, value interface{}) *FlowError {
	e.Details[key] = value
	return e
}

// Cancelled constructs a non-fatal, workflow-level cancellation error.
func Cancelled(reason string) *FlowError {
	return newFlowError(KindCancelled, reason, ErrCancelled)
}

// NodeExecution constructs an error raised by a strategy during node
// execution; callers attach node identity via WithNode.
func NodeExecution(message string, cause error) *FlowError {
	return newFlowError(KindNodeExecution, message, cause)
}

// Fatal marks a non-recoverable error: retries and fallback routing must be
// skipped.
func Fatal(message string, cause error) *FlowError {
	return newFlowError(KindFatal, message, cause)
}

// Configuration raises a fatal error for a missing implementation, missing
// blueprint, missing fallback node, or malformed duration.
func Configuration(message string) *FlowError {
	return newFlowError(KindConfiguration, message, ErrInvalidInput)
}

// Cycle raises a strictness violation, surfaced before any node executes.
func Cycle(message string) *FlowError {
	return newFlowError(KindCycle, message, nil)
}

// NotFound mirrors the teacher's lookup-failure helper for registries,
// blueprints, and awaiting nodes.
func NotFound(resource, id string) *FlowError {
	return newFlowError(KindConfiguration, fmt.Sprintf("%s not found: %s", resource, id), ErrNotFound).
		WithDetails("resource", resource).WithDetails("id", id)
}

// InvalidState flags an operation attempted against a WorkflowState that
// cannot currently support it (e.g. resuming a node that isn't awaiting).
func InvalidState(current, attempted string) *FlowError {
	return newFlowError(KindConfiguration, fmt.Sprintf("cannot %s in state %s", attempted, current), ErrInvalidState).
		WithDetails("current_state", current).WithDetails("attempted_operation", attempted)
}

// Is delegates to errors.Is so FlowError composes with stdlib sentinel
// checks the way the teacher's DomainError does.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As delegates to errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
