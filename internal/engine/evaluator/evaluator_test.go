package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruthy(t *testing.T) {
	cases := []struct {
		name string
		in   interface{}
		want bool
	}{
		{"nil", nil, false},
		{"false", false, false},
		{"true", true, true},
		{"empty string", "", false},
		{"non-empty string", "x", true},
		{"zero float", float64(0), false},
		{"nonzero float", float64(1), true},
		{"zero int", 0, false},
		{"nonzero int", 7, true},
		{"empty slice", []interface{}{}, false},
		{"nonempty slice", []interface{}{1}, true},
		{"empty map", map[string]interface{}{}, false},
		{"nonempty map", map[string]interface{}{"k": 1}, true},
		{"other type", struct{}{}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Truthy(c.in))
		})
	}
}

func TestPropertyPath_EvaluateEmptyExpressionReturnsNil(t *testing.T) {
	p := NewPropertyPath()
	v, err := p.Evaluate("", map[string]interface{}{"a": 1})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestPropertyPath_EvaluateDottedPath(t *testing.T) {
	p := NewPropertyPath()
	scope := map[string]interface{}{
		"result": map[string]interface{}{"Output": map[string]interface{}{"score": 0.9}},
	}
	v, err := p.Evaluate("result.Output.score", scope)
	require.NoError(t, err)
	assert.Equal(t, 0.9, v)
}

func TestPropertyPath_EvaluateMissingPathReturnsNilNotError(t *testing.T) {
	p := NewPropertyPath()
	v, err := p.Evaluate("does.not.exist", map[string]interface{}{"a": 1})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestPropertyPath_EvaluateArrayIndex(t *testing.T) {
	p := NewPropertyPath()
	scope := map[string]interface{}{"items": []interface{}{"first", "second"}}
	v, err := p.Evaluate("items.1", scope)
	require.NoError(t, err)
	assert.Equal(t, "second", v)
}

func TestExpr_EvaluateEmptyExpressionReturnsNil(t *testing.T) {
	e := NewExpr()
	v, err := e.Evaluate("", map[string]interface{}{})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestExpr_EvaluateArithmeticAndComparison(t *testing.T) {
	e := NewExpr()
	scope := map[string]interface{}{"retries": 2}
	v, err := e.Evaluate("retries < 3", scope)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestExpr_EvaluateAllowsUndefinedVariables(t *testing.T) {
	e := NewExpr()
	v, err := e.Evaluate("missing == nil", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestExpr_CompileErrorOnInvalidSyntax(t *testing.T) {
	e := NewExpr()
	_, err := e.Evaluate("(((", map[string]interface{}{})
	assert.Error(t, err)
}

func TestBuildRoutingScope_PromotesContextKeysAndSetsResult(t *testing.T) {
	contextJSON := map[string]interface{}{"x": 1}
	scope := BuildRoutingScope(contextJSON, "done")
	assert.Equal(t, 1, scope["x"])
	assert.Equal(t, contextJSON, scope["context"])
	assert.Equal(t, "done", scope["result"])
}

func TestBuildTransformScope_ExposesInputAndContext(t *testing.T) {
	contextJSON := map[string]interface{}{"x": 1}
	scope := BuildTransformScope("raw-input", contextJSON)
	assert.Equal(t, "raw-input", scope["input"])
	assert.Equal(t, contextJSON, scope["context"])
}
