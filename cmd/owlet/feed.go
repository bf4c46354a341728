package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/owlet"
	"github.com/aretw0/owlet/pkg/core"
)

var (
	feedTitle  string
	feedFolder int64
	feedJSON   bool
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Manage feed subscriptions",
}

var feedAddCmd = &cobra.Command{
	Use:   "add [link]",
	Short: "Subscribe to a feed",
	Long:  `Store the feed and, with --folder, a bookmark for it inside that folder.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := mustOpen(ctx)
		defer app.Close()

		feed := &core.Feed{Link: args[0], Title: feedTitle}
		ctx = reasonContext(ctx, owlet.ChangeFeat, "feed", "subscribe to "+feed.Link)
		err := app.Model.WithTransaction(ctx, func(tx *core.Tx) error {
			if err := tx.Save(ctx, feed); err != nil {
				return err
			}
			if feedFolder == 0 {
				return nil
			}
			if _, ok, err := tx.Get(ctx, core.IDRef[*core.Folder](feedFolder)); err != nil {
				return err
			} else if !ok {
				return fmt.Errorf("folder %d not found", feedFolder)
			}
			name := feedTitle
			if name == "" {
				name = feed.Link
			}
			return tx.Save(ctx, &core.BookMark{Name: name, Parent: feedFolder, FeedLink: feed.Link})
		})
		if err != nil {
			fatal("Failed to subscribe", err)
		}
		fmt.Printf("Subscribed to %s\n", feed.Link)
	},
}

type feedRow struct {
	Link   string `json:"link"`
	Title  string `json:"title,omitempty"`
	New    int    `json:"new"`
	Unread int    `json:"unread"`
	Sticky int    `json:"sticky"`
}

var feedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List feeds with their news counters",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := mustOpen(ctx)
		defer app.Close()

		feeds, err := owlet.NewRepository[*core.Feed](app).List(ctx)
		if err != nil {
			fatal("Failed to list feeds", err)
		}

		rows := make([]feedRow, 0, len(feeds))
		for _, f := range feeds {
			c, _ := app.Model.Counter().Get(f.Link)
			rows = append(rows, feedRow{Link: f.Link, Title: f.Title, New: c.New, Unread: c.Unread, Sticky: c.Sticky})
		}

		if feedJSON {
			printJSON(rows)
			return
		}
		for _, r := range rows {
			fmt.Printf("%s\t%d new\t%d unread\t%s\n", r.Link, r.New, r.Unread, r.Title)
		}
	},
}

var feedRmCmd = &cobra.Command{
	Use:   "rm [link]",
	Short: "Unsubscribe from a feed and drop its news",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := mustOpen(ctx)
		defer app.Close()

		ctx = reasonContext(ctx, owlet.ChangeChore, "feed", "unsubscribe from "+args[0])
		if err := app.Model.Delete(ctx, core.LinkRef(args[0])); err != nil {
			fatal("Failed to unsubscribe", err)
		}
		fmt.Printf("Unsubscribed from %s\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(feedCmd)
	feedCmd.AddCommand(feedAddCmd, feedListCmd, feedRmCmd)
	feedAddCmd.Flags().StringVar(&feedTitle, "title", "", "Feed title")
	feedAddCmd.Flags().Int64Var(&feedFolder, "folder", 0, "Folder id to place a bookmark in")
	feedListCmd.Flags().BoolVar(&feedJSON, "json", false, "Output in JSON format")
}
