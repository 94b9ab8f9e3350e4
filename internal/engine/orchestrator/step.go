package orchestrator

import (
	gocontext "context"

	"github.com/flowcraft/flowcraft/internal/domain/state"
)

// Step performs exactly one tick of the orchestrator loop and returns the
// interim result; the caller may call it again to continue (§4.9
// "Step-by-step orchestrator").
type Step struct {
	Orchestrator *Orchestrator
}

// Tick delegates to the underlying Orchestrator's single-iteration Tick.
func (s *Step) Tick(ctx gocontext.Context) (done bool, result state.WorkflowResult, err error) {
	return s.Orchestrator.Tick(ctx)
}
