// Package builtins implements Flowcraft's six built-in node behaviors
// (§4.7): wait, sleep, subflow, batch-scatter, batch-gather, loop-controller.
// Grounded on the teacher's execution/node.go node-type dispatch table
// (GetExecutorForNodeType's switch over WAIT_FOR_HUMAN/human-loop node
// types), generalized into Flowcraft's own registry-of-Funcs shape and the
// spec's exact per-built-in semantics.
package builtins

import (
	"github.com/flowcraft/flowcraft/internal/domain/blueprint"
	"github.com/flowcraft/flowcraft/internal/engine/executor"
)

// Wait implements the `wait` built-in: suspends unconditionally with reason
// external_event. Output is undefined until resume supplies resumeData.
func Wait(nc executor.NodeContext) (executor.NodeResult, error) {
	return executor.NodeResult{Awaiting: true, AwaitingReason: "external_event"}, nil
}

// Register registers every built-in under its Uses key (blueprint.Uses*
// constants) into reg.
func Register(reg *executor.Registry) {
	reg.RegisterFunc(blueprint.UsesWait, Wait)
	reg.RegisterFunc(blueprint.UsesSleep, Sleep)
	reg.RegisterFunc(blueprint.UsesSubflow, Subflow)
	reg.RegisterFunc(blueprint.UsesBatchScatter, BatchScatter)
	reg.RegisterFunc(blueprint.UsesBatchGather, BatchGather)
	reg.RegisterFunc(blueprint.UsesLoopCtrl, LoopController)
}
