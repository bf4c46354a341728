package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/aretw0/owlet"
	"github.com/aretw0/owlet/pkg/core"
	"github.com/aretw0/owlet/pkg/prefs"
)

var (
	prefsFeed    string
	prefsFolder  int64
	prefsDefault bool
	prefsType    string
	prefsJSON    bool
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Read and write preferences",
	Long: `Preferences resolve through the entity scope (--feed or --folder), then
Global, then Default. Without a scope flag commands act on Global.`,
}

// checkScopeFlags rejects scope flags that cannot name an entity.
func checkScopeFlags() error {
	if prefsFolder < 0 {
		return fmt.Errorf("--folder must be a positive folder id, got %d", prefsFolder)
	}
	return nil
}

// selectScope returns the scope chosen by the scope flags.
func selectScope(ctx context.Context, app *owlet.App) *prefs.Scope {
	if err := checkScopeFlags(); err != nil {
		failf("%v", err)
	}
	var ref core.Reference
	switch {
	case prefsDefault:
		return app.Prefs.Default()
	case prefsFeed != "":
		ref = core.LinkRef(prefsFeed)
	case prefsFolder != 0:
		ref = core.IDRef[*core.Folder](prefsFolder)
	default:
		return app.Prefs.Global()
	}
	scope, err := app.Prefs.ReferenceScope(ctx, ref)
	if err != nil {
		fatal("Failed to load scope", err)
	}
	return scope
}

func writableScope(ctx context.Context, app *owlet.App) *prefs.Scope {
	if prefsDefault {
		failf("the Default scope is rebuilt at startup and cannot be edited")
	}
	return selectScope(ctx, app)
}

// keyType resolves the type of a value for key from --type or the
// well-known keys.
func keyType(key string) (prefs.Type, error) {
	if prefsType != "" {
		return prefs.ParseType(prefsType)
	}
	if t, ok := owlet.KnownKeys()[key]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("unknown key %q: pass --type", key)
}

var prefsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Resolve a preference and show which scope provides it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := mustOpen(ctx)
		defer app.Close()

		v, from, ok := selectScope(ctx, app).Lookup(args[0])
		if !ok {
			failf("%s is not set", args[0])
		}
		fmt.Printf("%s = %s (%s)\n", args[0], v, from.ID())
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set [key] [value...]",
	Short: "Store a preference in the selected scope",
	Long:  `Arrays take one argument per element. An array key with no value stores an empty array.`,
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		typ, err := keyType(args[0])
		if err != nil {
			fatal("Failed to set preference", err)
		}
		v, err := prefs.Decode(typ, args[1:])
		if err != nil {
			fatal("Invalid value", err)
		}

		ctx := context.Background()
		app := mustOpen(ctx)
		defer app.Close()

		scope := writableScope(ctx, app)
		if err := scope.Put(ctx, args[0], v); err != nil {
			fatal("Failed to set preference", err)
		}
		fmt.Printf("%s = %s (%s)\n", args[0], v, scope.ID())
	},
}

var prefsClearCmd = &cobra.Command{
	Use:   "clear [key...]",
	Short: "Remove keys from the selected scope, or every key when none is given",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := mustOpen(ctx)
		defer app.Close()

		scope := writableScope(ctx, app)
		if len(args) == 0 {
			if err := scope.Clear(ctx); err != nil {
				fatal("Failed to clear scope", err)
			}
			fmt.Printf("Cleared %s\n", scope.ID())
			return
		}
		for _, key := range args {
			if err := scope.Delete(ctx, key); err != nil {
				fatal("Failed to delete preference", err)
			}
		}
		fmt.Printf("Removed %d key(s) from %s\n", len(args), scope.ID())
	},
}

type prefRow struct {
	Key   string   `json:"key"`
	Type  string   `json:"type"`
	Value []string `json:"value"`
	Scope string   `json:"scope"`
}

var prefsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every preference visible from the selected scope",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := mustOpen(ctx)
		defer app.Close()

		scope := selectScope(ctx, app)
		var keys []string
		for s := scope; s != nil; s = s.Parent() {
			keys = append(keys, s.Keys()...)
		}
		slices.Sort(keys)
		keys = slices.Compact(keys)

		rows := make([]prefRow, 0, len(keys))
		for _, key := range keys {
			v, from, _ := scope.Lookup(key)
			rows = append(rows, prefRow{Key: key, Type: v.Type().String(), Value: v.Encoded(), Scope: from.ID()})
		}

		if prefsJSON {
			printJSON(rows)
			return
		}
		for _, r := range rows {
			fmt.Printf("%-28s %-10s %v\t(%s)\n", r.Key, r.Type, r.Value, r.Scope)
		}
	},
}

func init() {
	rootCmd.AddCommand(prefsCmd)
	prefsCmd.AddCommand(prefsGetCmd, prefsSetCmd, prefsClearCmd, prefsListCmd)

	pf := prefsCmd.PersistentFlags()
	pf.StringVar(&prefsFeed, "feed", "", "Use the scope of the feed with this link")
	pf.Int64Var(&prefsFolder, "folder", 0, "Use the scope of the folder with this id")
	pf.BoolVar(&prefsDefault, "default", false, "Use the Default scope (read-only)")
	prefsCmd.MarkFlagsMutuallyExclusive("feed", "folder", "default")

	prefsSetCmd.Flags().StringVar(&prefsType, "type", "", "Value type: boolean, integer, long, string or an array form like string[]")
	prefsListCmd.Flags().BoolVar(&prefsJSON, "json", false, "Output in JSON format")
}
