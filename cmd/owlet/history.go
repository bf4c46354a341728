package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the change history of a versioned profile",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := mustOpen(ctx)
		defer app.Close()

		entries, err := app.History(ctx, historyLimit)
		if err != nil {
			fatal("Failed to read history", err)
		}
		for _, e := range entries {
			fmt.Println(e)
		}
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of entries")
}
