package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/owlet"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a profile",
	Long: `Create the profile at --location (default: the working directory). For
the fs store this creates the system directory and, unless --no-versioning
is set, a git repository.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		loc, err := resolveLocation()
		if err != nil {
			fatal("Failed to resolve location", err)
		}
		opts := []owlet.Option{owlet.WithAdapter(store), owlet.WithAutoInit(true), owlet.WithVersioning(!noVersioning)}
		repo, err := owlet.Init(loc, opts...)
		if err != nil {
			fatal("Failed to initialize profile", err)
		}
		if err := repo.Close(); err != nil {
			fatal("Failed to close profile", err)
		}
		fmt.Printf("Initialized %s profile in %s\n", store, loc)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
