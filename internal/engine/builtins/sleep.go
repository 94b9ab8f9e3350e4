package builtins

import (
	"regexp"
	"strconv"
	"time"

	"github.com/flowcraft/flowcraft/internal/engine/executor"
	"github.com/flowcraft/flowcraft/internal/pkg/errors"
)

var durationPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

var unitToDuration = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// ParseDuration accepts either a numeric value (milliseconds) or a string of
// the form `\d+[smhd]` (§4.7 `sleep`). Negative durations are rejected.
func ParseDuration(raw interface{}) (time.Duration, error) {
	switch v := raw.(type) {
	case float64:
		if v < 0 {
			return 0, errors.Configuration("sleep duration must not be negative")
		}
		return time.Duration(v) * time.Millisecond, nil
	case int:
		if v < 0 {
			return 0, errors.Configuration("sleep duration must not be negative")
		}
		return time.Duration(v) * time.Millisecond, nil
	case string:
		m := durationPattern.FindStringSubmatch(v)
		if m == nil {
			return 0, errors.Configuration("sleep duration string must match /^\\d+[smhd]$/")
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, errors.Configuration("invalid sleep duration: " + v)
		}
		return time.Duration(n) * unitToDuration[m[2]], nil
	default:
		return 0, errors.Configuration("sleep duration must be a number or a duration string")
	}
}

// Sleep implements the `sleep` built-in: suspends with reason timer and a
// wakeUpAt computed from params.duration.
func Sleep(nc executor.NodeContext) (executor.NodeResult, error) {
	raw, ok := nc.Params["duration"]
	if !ok {
		return executor.NodeResult{}, errors.Configuration("sleep node requires params.duration").WithNode(nc.NodeID, nc.BlueprintID, nc.ExecutionID)
	}
	d, err := ParseDuration(raw)
	if err != nil {
		return executor.NodeResult{}, err
	}
	wakeUpAt := time.Now().Add(d)
	return executor.NodeResult{Awaiting: true, AwaitingReason: "timer", WakeUpAt: &wakeUpAt}, nil
}
