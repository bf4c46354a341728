package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/owlet"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of owlet",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("owlet version %s\n", strings.TrimSpace(owlet.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
