package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/flowcraft/flowcraft/internal/engine/runtime"
)

var resumeNodeID string

var resumeCmd = &cobra.Command{
	Use:   "resume <blueprint.json> <context.json>",
	Short: "Resume an awaiting execution from a serialized context snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(c *cobra.Command, args []string) error {
		bp, err := loadBlueprint(args[0])
		if err != nil {
			return err
		}
		snapshot, err := loadContext(args[1])
		if err != nil {
			return err
		}

		rt, blueprints := newInProcessRuntime()
		blueprints.Register(bp)

		result, err := rt.Resume(context.Background(), bp, snapshot, nil, resumeNodeID, runtime.Options{})
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	resumeCmd.Flags().StringVar(&resumeNodeID, "node", "", "node id to resume (defaults to the first awaiting node id in sorted order)")
}
