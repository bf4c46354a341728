package typed_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/owlet/pkg/adapters/memory"
	"github.com/aretw0/owlet/pkg/core"
	"github.com/aretw0/owlet/pkg/prefs"
	"github.com/aretw0/owlet/pkg/typed"
)

func setupService(t *testing.T) *core.Service {
	t.Helper()
	svc := core.NewService(memory.NewRepository(), core.Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, svc.Start(context.Background()))
	return svc
}

func TestTypedRepository(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	feeds := typed.NewRepository[*core.Feed](svc)
	assert.Equal(t, core.KindFeed, feeds.Kind())

	var added, deleted []core.Ref[*core.Feed]
	feeds.Listen(typed.Listener[*core.Feed]{
		OnAdded:   func(refs []core.Ref[*core.Feed]) { added = append(added, refs...) },
		OnDeleted: func(refs []core.Ref[*core.Feed]) { deleted = append(deleted, refs...) },
	})

	require.NoError(t, feeds.Save(ctx,
		&core.Feed{Link: "http://b/feed", Title: "B"},
		&core.Feed{Link: "http://a/feed", Title: "A"},
	))
	assert.Equal(t, []core.Ref[*core.Feed]{core.LinkRef("http://b/feed"), core.LinkRef("http://a/feed")}, added)

	list, err := feeds.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[0].Title)

	feed, ok, err := feeds.Get(ctx, core.LinkRef("http://b/feed"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "B", feed.Title)

	require.NoError(t, feeds.Delete(ctx, core.LinkRef("http://b/feed")))
	assert.Equal(t, []core.Ref[*core.Feed]{core.LinkRef("http://b/feed")}, deleted)

	_, ok, err = feeds.Get(ctx, core.LinkRef("http://b/feed"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeys(t *testing.T) {
	ctx := context.Background()
	svc, err := prefs.NewService(ctx, prefs.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)

	interval := typed.IntKey("update.interval")
	reg := prefs.NewRegistry()
	reg.Register("update", interval.Initializer(60))
	svc.Initialize(ctx, reg)

	got, ok := interval.Get(svc.Global())
	require.True(t, ok)
	assert.Equal(t, int32(60), got)

	require.NoError(t, interval.Put(ctx, svc.Global(), 15))
	assert.Equal(t, int32(15), interval.GetOr(svc.Global(), 1))

	cols := typed.StringsKey("news.columns")
	assert.Equal(t, []string{"title"}, cols.GetOr(svc.Global(), []string{"title"}))
	assert.Equal(t, prefs.StringArray, cols.Type())

	var seen []int32
	svc.AddListener(prefs.ListenerFuncs{OnUpdated: func(e prefs.Event) {
		if v, ok := interval.Event(e); ok {
			seen = append(seen, v)
		}
	}})
	require.NoError(t, interval.Put(ctx, svc.Global(), 20))
	assert.Equal(t, []int32{20}, seen)

	t.Run("all key kinds round trip", func(t *testing.T) {
		s := prefs.NewScope("solo", nil)
		require.NoError(t, typed.BoolKey("b").Put(ctx, s, true))
		require.NoError(t, typed.LongKey("l").Put(ctx, s, 1<<40))
		require.NoError(t, typed.StringKey("s").Put(ctx, s, "x"))
		require.NoError(t, typed.BoolsKey("bs").Put(ctx, s, []bool{true}))
		require.NoError(t, typed.IntsKey("is").Put(ctx, s, []int32{1}))
		require.NoError(t, typed.LongsKey("ls").Put(ctx, s, []int64{2}))

		assert.True(t, typed.BoolKey("b").GetOr(s, false))
		assert.Equal(t, int64(1<<40), typed.LongKey("l").GetOr(s, 0))
		assert.Equal(t, "x", typed.StringKey("s").GetOr(s, ""))
		assert.Equal(t, []bool{true}, typed.BoolsKey("bs").GetOr(s, nil))
		assert.Equal(t, []int32{1}, typed.IntsKey("is").GetOr(s, nil))
		assert.Equal(t, []int64{2}, typed.LongsKey("ls").GetOr(s, nil))
	})
}
