// Command bench measures listing news from an fs profile with a cold and
// a warm index cache, and commit throughput of the selected store.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/owlet"
	"github.com/aretw0/owlet/pkg/core"
)

func main() {
	count := flag.Int("count", 1000, "Number of news items to generate")
	commits := flag.Int("commits", 200, "Number of single-item transactions to time")
	adapter := flag.String("store", owlet.AdapterFS, "Store to time commits against: fs or sqlite")
	keep := flag.Bool("keep", false, "Keep the benchmark profile after running")
	flag.Parse()

	benchDir, err := os.MkdirTemp("", "owlet_bench_")
	if err != nil {
		panic(err)
	}
	defer func() {
		if !*keep {
			os.RemoveAll(benchDir)
		} else {
			fmt.Printf("Keeping bench dir: %s\n", benchDir)
		}
	}()

	fmt.Printf("Generating %d news files in %s...\n", *count, benchDir)
	startGen := time.Now()
	newsDir := filepath.Join(benchDir, string(core.KindNews))
	if err := os.MkdirAll(newsDir, 0755); err != nil {
		panic(err)
	}
	for i := 1; i <= *count; i++ {
		content := fmt.Sprintf("id: %d\nfeed_link: http://bench.example/rss\ntitle: Item %d\nstate: new\n", i, i)
		name := url.QueryEscape(fmt.Sprint(i)) + ".yaml"
		if err := os.WriteFile(filepath.Join(newsDir, name), []byte(content), 0644); err != nil {
			panic(err)
		}
	}
	fmt.Printf("Generation took: %v\n", time.Since(startGen))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	open := func(dir string, opts ...owlet.Option) *owlet.App {
		base := []owlet.Option{owlet.WithLogger(logger), owlet.WithAutoInit(true), owlet.WithVersioning(false), owlet.WithDevSafety(false)}
		app, err := owlet.Open(ctx, dir, append(base, opts...)...)
		if err != nil {
			panic(err)
		}
		return app
	}

	// Opening lists every news item to build counters and the search index,
	// which fills the index cache as a side effect.
	startCold := time.Now()
	cold := open(benchDir)
	coldDuration := time.Since(startCold)
	cold.Close()

	startWarm := time.Now()
	warm := open(benchDir)
	warmDuration := time.Since(startWarm)
	warm.Close()

	target := filepath.Join(benchDir, "commits")
	opts := []owlet.Option{owlet.WithAdapter(*adapter)}
	if *adapter == owlet.AdapterSQLite {
		target = filepath.Join(benchDir, "owlet.db")
	}
	app := open(target, opts...)
	if err := app.Model.Save(ctx, &core.Feed{Link: "http://bench.example/rss"}); err != nil {
		panic(err)
	}
	startCommits := time.Now()
	for i := 0; i < *commits; i++ {
		n := &core.News{FeedLink: "http://bench.example/rss", Title: fmt.Sprintf("Commit %d", i), State: core.StateNew}
		if err := app.Model.Save(ctx, n); err != nil {
			panic(err)
		}
	}
	commitDuration := time.Since(startCommits)
	app.Close()

	fmt.Printf("--------------------------------------------------\n")
	fmt.Printf("Benchmark Result (%d news):\n", *count)
	fmt.Printf("  Open (cold cache): %v\n", coldDuration)
	fmt.Printf("  Open (warm cache): %v\n", warmDuration)
	fmt.Printf("  %d commits on %s: %v (%v/commit)\n", *commits, *adapter, commitDuration, commitDuration/time.Duration(max(*commits, 1)))
	fmt.Printf("--------------------------------------------------\n")
}
