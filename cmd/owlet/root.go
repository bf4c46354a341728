package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aretw0/owlet"
)

var (
	verbose      bool
	store        string
	location     string
	noVersioning bool
	readOnly     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "owlet",
	Short: "Inspect and edit an owlet feed reader profile",
	Long: `owlet manages the model of a feed reader profile: folders, feeds,
news and the preference scopes that configure them.

The store is selected with --store (or OWLET_STORE): fs (default), sqlite,
postgres or memory. --location (or OWLET_DSN) is the profile directory, the
SQLite file or the Postgres connection URL.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	flags.StringVar(&store, "store", envOr("OWLET_STORE", owlet.AdapterFS), "Store adapter: fs, sqlite, postgres or memory")
	flags.StringVarP(&location, "location", "l", os.Getenv("OWLET_DSN"), "Profile directory, SQLite file or Postgres URL")
	flags.BoolVar(&noVersioning, "no-versioning", false, "Do not record git history (fs store)")
	flags.BoolVar(&readOnly, "read-only", false, "Open the profile read-only")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// resolveLocation picks the profile location when --location is empty:
// the nearest profile root above the working directory, or the working
// directory itself.
func resolveLocation() (string, error) {
	if location != "" || store == owlet.AdapterPostgres || store == owlet.AdapterMemory {
		return location, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	root, err := owlet.FindRoot(wd, "")
	if err != nil {
		root = wd
	}
	if store == owlet.AdapterSQLite {
		return filepath.Join(root, "owlet.db"), nil
	}
	return root, nil
}

// openApp opens the profile selected by the persistent flags.
func openApp(ctx context.Context, extra ...owlet.Option) (*owlet.App, error) {
	loc, err := resolveLocation()
	if err != nil {
		return nil, err
	}
	opts := []owlet.Option{
		owlet.WithAdapter(store),
		owlet.WithLogger(slog.Default()),
		owlet.WithReadOnly(readOnly),
	}
	if noVersioning {
		opts = append(opts, owlet.WithVersioning(false))
	}
	return owlet.Open(ctx, loc, append(opts, extra...)...)
}

// mustOpen is openApp for commands that cannot continue without a profile.
func mustOpen(ctx context.Context, extra ...owlet.Option) *owlet.App {
	app, err := openApp(ctx, extra...)
	if err != nil {
		fatal("Failed to open profile", err)
	}
	return app
}

func printJSON(v any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fatal("Failed to encode JSON", err)
	}
}

func reasonContext(ctx context.Context, ctype, scope, subject string) context.Context {
	return owlet.WithChangeReason(ctx, owlet.FormatChangeReason(ctype, scope, subject, ""))
}

// failf is fatal for messages built from a format string.
func failf(format string, args ...any) {
	fatal("Error", fmt.Errorf(format, args...))
}
