package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/owlet/pkg/core"
	"github.com/aretw0/owlet/pkg/search"
)

var (
	searchWhere []string
	searchAny   bool
	searchMark  int64
)

// parseCondition reads "field:op:value"; the value may contain colons.
func parseCondition(s string) (core.SearchCondition, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return core.SearchCondition{}, fmt.Errorf("condition %q is not field:op:value", s)
	}
	c := core.SearchCondition{Field: parts[0], Op: parts[1], Value: parts[2]}
	if err := search.Validate([]core.SearchCondition{c}); err != nil {
		return core.SearchCondition{}, err
	}
	return c, nil
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search news",
	Long: `Search news by conditions of the form field:op:value, where field is
title, description, author, state or link and op is contains, is or is_not.
--mark runs the conditions stored in a saved search instead.`,
	Example: `  owlet search -w title:contains:golang -w state:is_not:read`,
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := mustOpen(ctx)
		defer app.Close()

		var (
			hits []search.Hit
			err  error
		)
		if searchMark != 0 {
			ent, ok, lerr := app.Model.Load(ctx, core.KindSearchMark, core.IDRef[*core.SearchMark](searchMark).Key())
			if lerr != nil {
				fatal("Failed to load search mark", lerr)
			}
			if !ok {
				failf("search mark %d not found", searchMark)
			}
			hits, err = app.Search.SearchMark(ctx, ent.(*core.SearchMark))
		} else {
			conditions := make([]core.SearchCondition, 0, len(searchWhere))
			for _, w := range searchWhere {
				c, perr := parseCondition(w)
				if perr != nil {
					fatal("Invalid condition", perr)
				}
				conditions = append(conditions, c)
			}
			hits, err = app.Search.SearchNews(ctx, conditions, !searchAny)
		}
		if err != nil {
			fatal("Search failed", err)
		}

		for _, h := range hits {
			ent, ok, err := h.News.Resolve(ctx, app.Model)
			if err != nil {
				fatal("Failed to resolve news", err)
			}
			if !ok {
				continue
			}
			fmt.Printf("%.2f\t%s\t%s\n", h.Score, h.News.Key(), ent.Title)
		}
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringArrayVarP(&searchWhere, "where", "w", nil, "Condition field:op:value (repeatable)")
	searchCmd.Flags().BoolVar(&searchAny, "any", false, "Match any condition instead of all")
	searchCmd.Flags().Int64Var(&searchMark, "mark", 0, "Run the saved search with this id")
	searchCmd.MarkFlagsMutuallyExclusive("where", "mark")
}
