package builtins

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration_NumericMilliseconds(t *testing.T) {
	d, err := ParseDuration(float64(1500))
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)
}

func TestParseDuration_StringUnits(t *testing.T) {
	cases := map[string]time.Duration{
		"30s": 30 * time.Second,
		"5m":  5 * time.Minute,
		"2h":  2 * time.Hour,
		"1d":  24 * time.Hour,
	}
	for raw, want := range cases {
		d, err := ParseDuration(raw)
		require.NoError(t, err)
		assert.Equal(t, want, d)
	}
}

func TestParseDuration_NegativeRejected(t *testing.T) {
	_, err := ParseDuration(float64(-1))
	assert.Error(t, err)
}

func TestParseDuration_MalformedStringRejected(t *testing.T) {
	_, err := ParseDuration("5 minutes")
	assert.Error(t, err)
}

func TestParseDuration_UnsupportedTypeRejected(t *testing.T) {
	_, err := ParseDuration(true)
	assert.Error(t, err)
}

func TestSleep_MissingDurationParamErrors(t *testing.T) {
	_, err := Sleep(newNodeContext("a", nil, nil))
	assert.Error(t, err)
}

func TestSleep_SetsAwaitingWithTimerReasonAndWakeUpAt(t *testing.T) {
	before := time.Now()
	result, err := Sleep(newNodeContext("a", nil, map[string]interface{}{"duration": "10s"}))
	require.NoError(t, err)

	assert.True(t, result.Awaiting)
	assert.Equal(t, "timer", result.AwaitingReason)
	require.NotNil(t, result.WakeUpAt)
	assert.True(t, result.WakeUpAt.After(before))
	assert.WithinDuration(t, before.Add(10*time.Second), *result.WakeUpAt, time.Second)
}
