package serializer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/flowcraft/internal/engine/serializer"
)

func TestJSONSerializer_RoundTrip(t *testing.T) {
	s := serializer.JSONSerializer{}

	text, err := s.Serialize(map[string]interface{}{"a": 1, "b": "two", "c": []interface{}{1, 2, 3}})
	require.NoError(t, err)

	out, err := s.Deserialize(text)
	require.NoError(t, err)

	m, ok := out.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), m["a"])
	assert.Equal(t, "two", m["b"])
}

func TestJSONSerializer_NumberLosesIntDistinction(t *testing.T) {
	s := serializer.JSONSerializer{}

	text, err := s.Serialize(42)
	require.NoError(t, err)

	out, err := s.Deserialize(text)
	require.NoError(t, err)
	assert.Equal(t, float64(42), out, "JSON numbers always decode as float64")
}

func TestJSONSerializer_DeserializeInvalidText(t *testing.T) {
	s := serializer.JSONSerializer{}
	_, err := s.Deserialize("{not valid json")
	assert.Error(t, err)
}

func TestDefaultIsJSONSerializer(t *testing.T) {
	_, ok := serializer.Default.(serializer.JSONSerializer)
	assert.True(t, ok)
}
