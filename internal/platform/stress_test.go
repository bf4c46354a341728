package platform_test

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aretw0/owlet/internal/platform"
	"github.com/aretw0/owlet/pkg/core"
)

// TestConcurrency_ExternalVsInternal edits news files behind the model's
// back while the model commits its own news and the watcher runs. The
// profile must survive without panics and stay listable.
func TestConcurrency_ExternalVsInternal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	app, dir := setupApp(t, platform.WithWatch(""))
	const feed = "http://stress.example/rss"
	require.NoError(t, app.Model.Save(context.Background(), &core.Feed{Link: feed}))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	batches := app.Model.Subscribe(ctx)

	var wg sync.WaitGroup

	// External actor: rewrites a small set of news files with high ids.
	wg.Add(1)
	go func() {
		defer wg.Done()
		newsDir := filepath.Join(dir, string(core.KindNews))
		_ = os.MkdirAll(newsDir, 0755)
		for ctx.Err() == nil {
			id := 100000 + rand.Intn(10)
			content := fmt.Sprintf("id: %d\nfeed_link: %s\ntitle: Noise %d\nstate: unread\n", id, feed, time.Now().UnixNano())
			_ = os.WriteFile(filepath.Join(newsDir, fmt.Sprintf("%d.yaml", id)), []byte(content), 0644)
			time.Sleep(time.Duration(rand.Intn(10)) * time.Millisecond)
		}
	}()

	// Internal actor: commits news through the model.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			// Errors are tolerated here; the assertion is that nothing panics.
			_ = app.Model.Save(context.Background(), &core.News{FeedLink: feed, Title: "Internal", State: core.StateNew})
			time.Sleep(time.Duration(rand.Intn(10)) * time.Millisecond)
		}
	}()

	// Subscriber: drains batches.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range batches {
		}
	}()

	wg.Wait()

	news, err := app.Model.List(context.Background(), core.KindNews)
	require.NoError(t, err)
	t.Logf("Survived chaos with %d news items", len(news))
}
