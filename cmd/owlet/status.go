package main

import (
	"context"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the internal state of every component as JSON",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := mustOpen(ctx)
		defer app.Close()

		states := make(map[string]any)
		for _, c := range app.Components() {
			name := "component"
			if typed, ok := c.(interface{ ComponentType() string }); ok {
				name = typed.ComponentType()
			}
			states[name] = c.State()
		}
		printJSON(states)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
