package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/flowcraft/flowcraft/internal/engine/runtime"
)

var runCmd = &cobra.Command{
	Use:   "run <blueprint.json>",
	Short: "Run a blueprint to completion or its first awaiting point",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		bp, err := loadBlueprint(args[0])
		if err != nil {
			return err
		}

		rt, blueprints := newInProcessRuntime()
		blueprints.Register(bp)

		result, err := rt.Run(context.Background(), bp, nil, runtime.Options{})
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}
