// Package evaluator implements Flowcraft's Evaluator (interface) component
// (§4.5): evaluates edge `condition`/`transform` expressions against a
// projected scope. Two implementations are provided, both acceptable per
// spec: PropertyPath (safe a.b.c lookups, the default) and Expr
// (unrestricted, caller-opt-in). Grounded on the teacher's graph/engine.go
// evaluateCondition (a simple key==value matcher marked TODO for "more
// sophisticated condition evaluation" — this package is that evaluation),
// generalized using tidwall/gjson and expr-lang/expr, both present
// across the retrieved example pack.
package evaluator

import (
	"encoding/json"

	"github.com/expr-lang/expr"
	"github.com/tidwall/gjson"
)

// Evaluator evaluates an expression against a scope and returns the result.
// Edge routing exposes `context` (the full context JSON), `result` (the
// just-completed node's NodeResult), and the flat context keys as top-level
// bindings; transform expressions expose `input` and `context` (§4.5).
type Evaluator interface {
	Evaluate(expression string, scope map[string]interface{}) (interface{}, error)
}

// Truthy reports whether v should be treated as a truthy condition result:
// nil, false, 0, "", and empty collections are falsy; everything else is
// truthy. Shared by both evaluator implementations and by edge-condition
// filtering in determineNextNodes.
func Truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	default:
		return true
	}
}

// PropertyPath implements the "safe property-path evaluation" option: dotted
// paths (a.b.c, arr.0.field) resolved against scope via gjson, never
// executing arbitrary code (§6: "Must not execute arbitrary code unless the
// caller opts in").
type PropertyPath struct{}

func NewPropertyPath() *PropertyPath { return &PropertyPath{} }

func (p *PropertyPath) Evaluate(expression string, scope map[string]interface{}) (interface{}, error) {
	if expression == "" {
		return nil, nil
	}
	data, err := json.Marshal(scope)
	if err != nil {
		return nil, err
	}
	result := gjson.GetBytes(data, expression)
	if !result.Exists() {
		return nil, nil
	}
	return result.Value(), nil
}

// Expr implements the "unrestricted expression evaluation (caller-opt-in)"
// option via expr-lang/expr, letting blueprint authors write arbitrary
// boolean/arithmetic expressions over the scope (e.g.
// `context.retries < 3 && result.output.score > 0.5`).
type Expr struct{}

func NewExpr() *Expr { return &Expr{} }

func (e *Expr) Evaluate(expression string, scope map[string]interface{}) (interface{}, error) {
	if expression == "" {
		return nil, nil
	}
	program, err := expr.Compile(expression, expr.Env(scope), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	return expr.Run(program, scope)
}

// BuildRoutingScope assembles the scope edge `condition` evaluation sees:
// `context`, `result`, and every flat context key promoted to a top-level
// binding (§4.5).
func BuildRoutingScope(contextJSON map[string]interface{}, result interface{}) map[string]interface{} {
	scope := make(map[string]interface{}, len(contextJSON)+2)
	for k, v := range contextJSON {
		scope[k] = v
	}
	scope["context"] = contextJSON
	scope["result"] = result
	return scope
}

// BuildTransformScope assembles the scope `applyEdgeTransform` sees: `input`
// (the source node's output) and `context` (§4.5).
func BuildTransformScope(input interface{}, contextJSON map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"input":   input,
		"context": contextJSON,
	}
}
