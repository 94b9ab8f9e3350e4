package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	original := NewNodeFinish("bp-1", "exec-1", "node-a", map[string]interface{}{"ok": true})

	data, err := Encode(original)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	finish, ok := decoded.(NodeFinish)
	require.True(t, ok)
	assert.Equal(t, original.BlueprintID(), finish.BlueprintID())
	assert.Equal(t, original.ExecutionID(), finish.ExecutionID())
	assert.Equal(t, original.NodeID, finish.NodeID)
}

func TestDecode_UnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"not:a:real:type","payload":{}}`))
	require.Error(t, err)

	var unknown *UnknownEventTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "not:a:real:type", unknown.Type)
}

func TestDecode_MalformedEnvelope(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	require.Error(t, err)
}
