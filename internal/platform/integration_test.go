package platform_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/owlet/internal/platform"
	"github.com/aretw0/owlet/pkg/core"
	"github.com/aretw0/owlet/pkg/prefs"
	"github.com/aretw0/owlet/pkg/search"
)

func setupApp(t *testing.T, opts ...platform.Option) (*platform.App, string) {
	t.Helper()
	dir := t.TempDir()
	base := []platform.Option{quiet(), platform.WithAutoInit(true), platform.WithVersioning(false)}
	app, err := platform.New(context.Background(), dir, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return app, dir
}

func TestApp_ModelPrefsAndSearch(t *testing.T) {
	ctx := context.Background()
	reg := prefs.NewRegistry()
	reg.RegisterFunc("defaults", func(ctx context.Context, d *prefs.Scope) error {
		return d.PutInteger(ctx, "refresh.minutes", 30)
	})
	reg.RegisterFunc("broken", func(ctx context.Context, d *prefs.Scope) error {
		return errors.New("boom")
	})
	app, dir := setupApp(t, platform.WithInitializers(reg), platform.WithRegisterer(prometheus.NewRegistry()))

	assert.Equal(t, []string{"defaults"}, app.InitReport.Ran)
	assert.Contains(t, app.InitReport.Failed, "broken")

	feed := &core.Feed{Link: "http://example.com/rss", Title: "Example"}
	require.NoError(t, app.Model.Save(ctx, feed, &core.News{FeedLink: feed.Link, Title: "Hello owls", State: core.StateNew}))
	assert.FileExists(t, filepath.Join(dir, "feed", "http%3A%2F%2Fexample.com%2Frss.yaml"))

	hits, err := app.Search.SearchNews(ctx, []core.SearchCondition{{Field: search.FieldTitle, Op: search.OpContains, Value: "owls"}}, true)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	scope, err := app.Prefs.EntityScope(ctx, feed)
	require.NoError(t, err)
	v, ok := scope.GetInteger("refresh.minutes")
	require.True(t, ok)
	assert.Equal(t, int32(30), v)

	require.NoError(t, scope.PutInteger(ctx, "refresh.minutes", 5))
	require.NoError(t, app.Prefs.Global().PutBoolean(ctx, "ui.compact", true))
	require.NoError(t, app.Close())
	require.NoError(t, app.Close(), "close is idempotent")

	// Reopen: entities, counters and stored preferences survive.
	again, err := platform.New(ctx, dir, quiet(), platform.WithVersioning(false))
	require.NoError(t, err)
	defer again.Close()

	item, ok := again.Model.Counter().Get(feed.Link)
	require.True(t, ok)
	assert.Equal(t, 1, item.New)

	compact, ok := again.Prefs.Global().GetBoolean("ui.compact")
	require.True(t, ok)
	assert.True(t, compact)

	scope, err = again.Prefs.EntityScope(ctx, feed)
	require.NoError(t, err)
	v, _ = scope.GetInteger("refresh.minutes")
	assert.Equal(t, int32(5), v)

	_, err = again.History(ctx, 1)
	assert.Error(t, err, "unversioned profiles keep no history")
	assert.Len(t, again.Components(), 4)
}

func TestApp_SQLite(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "owlet.db")
	app, err := platform.New(ctx, dbPath, quiet(), platform.WithAdapter(platform.AdapterSQLite))
	require.NoError(t, err)
	defer app.Close()

	folder := &core.Folder{Name: "News"}
	require.NoError(t, app.Model.Save(ctx, folder))
	require.NoError(t, app.Prefs.Global().PutString(ctx, "theme", "dark"))

	got, ok, err := app.Model.Load(ctx, core.KindFolder, folder.NaturalKey())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "News", got.(*core.Folder).Name)

	theme, ok := app.Prefs.Global().GetString("theme")
	require.True(t, ok)
	assert.Equal(t, "dark", theme)

	err = app.Watch("")
	assert.Error(t, err, "sql stores cannot be watched")
}

func TestApp_Watch(t *testing.T) {
	ctx := context.Background()
	app, dir := setupApp(t, platform.WithWatch("feed/**"))

	batches := app.Model.Subscribe(ctx)

	content := "link: http://hand.example/rss\ntitle: Hand made\n"
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "feed"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "feed", "http%3A%2F%2Fhand.example%2Frss.yaml"), []byte(content), 0644))

	select {
	case b := <-batches:
		assert.Equal(t, core.KindFeed, b.Kind)
		require.Len(t, b.Added, 1)
		assert.Equal(t, "http://hand.example/rss", b.Added[0].Entity().NaturalKey())
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for external change")
	}
}

func TestApp_UnknownAdapter(t *testing.T) {
	_, err := platform.New(context.Background(), t.TempDir(), quiet(), platform.WithAdapter("s3"))
	assert.Error(t, err)
}
