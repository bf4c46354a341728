package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/owlet"
	"github.com/aretw0/owlet/pkg/adapters/lifecycle"
	"github.com/aretw0/owlet/pkg/core"
)

var watchPattern string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print model events, including edits made to the store by other programs",
	Long: `Watch opens the profile with its external change watcher enabled and prints
every model batch until interrupted. --pattern limits the watched entity
files, e.g. "feed/**".`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app := mustOpen(ctx, owlet.WithWatch(watchPattern))
		defer app.Close()

		src := lifecycle.NewSource(app.Model.Subscribe(ctx))
		if err := src.Start(ctx); err != nil {
			fatal("Failed to start event source", err)
		}
		fmt.Fprintln(os.Stderr, "Watching for changes. Press Ctrl+C to stop.")

		for e := range src.Events() {
			fmt.Println(e.String())
			if b, ok := e.(core.Batch); ok {
				printEvents("+", b.Added)
				printEvents("~", b.Updated)
				printEvents("-", b.Deleted)
			}
		}
	},
}

func printEvents(mark string, events []core.ModelEvent) {
	for _, ev := range events {
		root := ""
		if !ev.IsRoot() {
			root = " (cascade)"
		}
		fmt.Printf("  %s %s%s\n", mark, ev.Reference(), root)
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchPattern, "pattern", "", "Only watch entity files matching this glob")
}
