package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aretw0/owlet"
	"github.com/aretw0/owlet/pkg/core"
)

var folderParent int64

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage folders",
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		failf("invalid id %q", s)
	}
	return id
}

func loadFolder(ctx context.Context, app *owlet.App, id int64) *core.Folder {
	f, ok, err := owlet.NewRepository[*core.Folder](app).Get(ctx, core.IDRef[*core.Folder](id))
	if err != nil {
		fatal("Failed to load folder", err)
	}
	if !ok {
		failf("folder %d not found", id)
	}
	return f
}

var folderAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := mustOpen(ctx)
		defer app.Close()

		if folderParent != 0 {
			loadFolder(ctx, app, folderParent)
		}
		folder := &core.Folder{Name: args[0], Parent: folderParent}
		ctx = reasonContext(ctx, owlet.ChangeFeat, "folder", "add "+folder.Name)
		if err := app.Model.Save(ctx, folder); err != nil {
			fatal("Failed to create folder", err)
		}
		fmt.Printf("Folder %d created: %s\n", folder.ID, folder.Name)
	},
}

var folderMvCmd = &cobra.Command{
	Use:   "mv [id] [parent-id]",
	Short: "Move a folder under another folder (0 for the top level)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := mustOpen(ctx)
		defer app.Close()

		folder := loadFolder(ctx, app, parseID(args[0]))
		var parent int64
		if args[1] != "0" {
			parent = loadFolder(ctx, app, parseID(args[1])).ID
		}
		for p := parent; p != 0; p = loadFolder(ctx, app, p).Parent {
			if p == folder.ID {
				failf("cannot move folder %d into itself or a subfolder", folder.ID)
			}
		}

		folder.Parent = parent
		ctx = reasonContext(ctx, owlet.ChangeFeat, "folder", fmt.Sprintf("move %d to %d", folder.ID, parent))
		if err := app.Model.Save(ctx, folder); err != nil {
			fatal("Failed to move folder", err)
		}
		fmt.Printf("Folder %d moved to %d\n", folder.ID, parent)
	},
}

var folderRmCmd = &cobra.Command{
	Use:   "rm [id]",
	Short: "Delete a folder and everything inside it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := mustOpen(ctx)
		defer app.Close()

		id := parseID(args[0])
		ctx = reasonContext(ctx, owlet.ChangeChore, "folder", "remove "+args[0])
		if err := app.Model.Delete(ctx, core.IDRef[*core.Folder](id)); err != nil {
			fatal("Failed to delete folder", err)
		}
		fmt.Printf("Folder %d deleted\n", id)
	},
}

var folderListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the folder tree",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := mustOpen(ctx)
		defer app.Close()

		folders, err := owlet.NewRepository[*core.Folder](app).List(ctx)
		if err != nil {
			fatal("Failed to list folders", err)
		}
		children := make(map[int64][]*core.Folder)
		for _, f := range folders {
			children[f.Parent] = append(children[f.Parent], f)
		}
		var walk func(parent int64, depth int)
		walk = func(parent int64, depth int) {
			for _, f := range children[parent] {
				fmt.Printf("%*s%d %s\n", depth*2, "", f.ID, f.Name)
				walk(f.ID, depth+1)
			}
		}
		walk(0, 0)
	},
}

func init() {
	rootCmd.AddCommand(folderCmd)
	folderCmd.AddCommand(folderAddCmd, folderMvCmd, folderRmCmd, folderListCmd)
	folderAddCmd.Flags().Int64Var(&folderParent, "parent", 0, "Parent folder id")
}
