package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowcraft/flowcraft/internal/domain/state"
	"github.com/flowcraft/flowcraft/internal/engine/orchestrator"
	"github.com/flowcraft/flowcraft/internal/pkg/eventbus"
)

var replayExecutionID string

var replayCmd = &cobra.Command{
	Use:   "replay <blueprint.json> <events.json>",
	Short: "Reconstruct a WorkflowResult from a recorded event log without executing any node",
	Args:  cobra.ExactArgs(2),
	RunE: func(c *cobra.Command, args []string) error {
		bp, err := loadBlueprint(args[0])
		if err != nil {
			return err
		}

		raw, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		var envelopes []json.RawMessage
		if err := json.Unmarshal(raw, &envelopes); err != nil {
			return err
		}
		events := make([]eventbus.Event, 0, len(envelopes))
		for _, env := range envelopes {
			evt, err := eventbus.Decode(env)
			if err != nil {
				return err
			}
			events = append(events, evt)
		}

		executionID := replayExecutionID
		if executionID == "" && len(events) > 0 {
			executionID = events[0].ExecutionID()
		}

		st := state.New(bp.ID(), executionID)
		allNodeIDs := make([]string, 0, len(bp.Nodes()))
		for _, n := range bp.Nodes() {
			allNodeIDs = append(allNodeIDs, n.ID)
		}

		result, err := orchestrator.NewReplay(st, executionID).Apply(events, allNodeIDs)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayExecutionID, "execution-id", "", "execution id to filter the event log to (defaults to the first event's)")
}
