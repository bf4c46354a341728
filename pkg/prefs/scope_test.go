package prefs_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/owlet/pkg/core"
	"github.com/aretw0/owlet/pkg/prefs"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T, store prefs.Store) *prefs.Service {
	t.Helper()
	svc, err := prefs.NewService(context.Background(), prefs.Config{Store: store, Logger: quietLogger()})
	require.NoError(t, err)
	return svc
}

func TestScope_Fallback(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, nil)
	d, g := svc.Default(), svc.Global()
	e, err := svc.EntityScope(ctx, &core.BookMark{ID: 1})
	require.NoError(t, err)

	require.Same(t, g, e.Parent())
	require.Same(t, d, g.Parent())
	assert.Nil(t, d.Parent())

	const k = "k"
	_, ok := e.Get(k)
	assert.False(t, ok)

	require.NoError(t, d.PutString(ctx, k, "v"))
	got, _ := e.GetString(k)
	assert.Equal(t, "v", got)
	got, _ = g.GetString(k)
	assert.Equal(t, "v", got)

	require.NoError(t, g.PutString(ctx, k, "v2"))
	got, _ = e.GetString(k)
	assert.Equal(t, "v2", got)
	got, _ = d.GetString(k)
	assert.Equal(t, "v", got)

	require.NoError(t, e.PutString(ctx, k, "v3"))
	got, _ = e.GetString(k)
	assert.Equal(t, "v3", got)
	got, _ = g.GetString(k)
	assert.Equal(t, "v2", got)

	_, from, _ := e.Lookup(k)
	assert.Same(t, e, from)

	t.Run("clear only touches the local scope", func(t *testing.T) {
		require.NoError(t, e.Clear(ctx))
		got, _ := e.GetString(k)
		assert.Equal(t, "v2", got)
		assert.Empty(t, e.Keys())
		assert.Equal(t, []string{k}, g.Keys())
	})
}

func TestScope_UpdateIntervalScenario(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, prefs.NewMemoryStore())
	mark := &core.BookMark{ID: 7, Name: "B"}

	require.NoError(t, svc.Global().PutInteger(ctx, "update.interval", 30))

	scope, err := svc.EntityScope(ctx, mark)
	require.NoError(t, err)
	v, ok := scope.GetInteger("update.interval")
	require.True(t, ok)
	assert.Equal(t, int32(30), v)

	require.NoError(t, scope.PutInteger(ctx, "update.interval", 5))
	v, _ = scope.GetInteger("update.interval")
	assert.Equal(t, int32(5), v)
	v, _ = svc.Global().GetInteger("update.interval")
	assert.Equal(t, int32(30), v)

	t.Run("a fresh entity scope sees the persisted override", func(t *testing.T) {
		again, err := svc.EntityScope(ctx, mark)
		require.NoError(t, err)
		assert.NotSame(t, scope, again)
		v, _ := again.GetInteger("update.interval")
		assert.Equal(t, int32(5), v)
	})

	t.Run("other entities are not affected", func(t *testing.T) {
		other, err := svc.EntityScope(ctx, &core.BookMark{ID: 8})
		require.NoError(t, err)
		v, _ := other.GetInteger("update.interval")
		assert.Equal(t, int32(30), v)
	})
}

func TestScope_AbsentValues(t *testing.T) {
	s := prefs.NewScope("solo", nil)
	_, ok := s.GetBoolean("x")
	assert.False(t, ok)
	_, ok = s.GetLong("x")
	assert.False(t, ok)
	assert.Nil(t, s.GetStrings("x"))
	assert.Empty(t, s.GetIntegers("x"))
	assert.Nil(t, s.GetLongs("x"))
	assert.Nil(t, s.GetBooleans("x"))
}

func TestScope_PutReplacesArrays(t *testing.T) {
	ctx := context.Background()
	s := prefs.NewScope("solo", nil)
	require.NoError(t, s.PutStrings(ctx, "cols", []string{"title", "date", "author"}))
	require.NoError(t, s.PutStrings(ctx, "cols", []string{"date"}))
	assert.Equal(t, []string{"date"}, s.GetStrings("cols"))

	require.NoError(t, s.PutLongs(ctx, "ids", []int64{}))
	assert.Equal(t, []int64{}, s.GetLongs("ids"))
}

func TestScope_Violations(t *testing.T) {
	ctx := context.Background()
	s := prefs.NewScope("solo", nil)
	assertViolation(t, func() { _ = s.Put(ctx, "k", prefs.Value{}) })
	assertViolation(t, func() { _ = s.Put(ctx, "", prefs.BooleanValue(true)) })
	assertViolation(t, func() { _ = s.PutStrings(ctx, "k", nil) })

	require.NoError(t, s.PutBoolean(ctx, "flag", true))
	assertViolation(t, func() { s.GetInteger("flag") })
}

func TestScope_PersistenceFailureLeavesMemoryUntouched(t *testing.T) {
	ctx := context.Background()
	store := prefs.NewMemoryStore()
	svc := newService(t, store)
	g := svc.Global()
	require.NoError(t, g.PutString(ctx, "theme", "dark"))

	store.FailWith = errors.New("read-only filesystem")

	err := g.PutString(ctx, "theme", "light")
	var pe *core.PersistenceError
	require.ErrorAs(t, err, &pe)
	got, _ := g.GetString("theme")
	assert.Equal(t, "dark", got)

	require.Error(t, g.Clear(ctx))
	assert.Equal(t, []string{"theme"}, g.Keys())

	require.Error(t, g.Delete(ctx, "theme"))
	_, ok := g.Local("theme")
	assert.True(t, ok)

	_, err = svc.EntityScope(ctx, &core.Label{ID: 1})
	assert.ErrorAs(t, err, &pe)
}

func TestScope_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s := prefs.NewScope("solo", nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n := int64(i)
			_ = s.PutLongs(ctx, "k", []int64{n, n, n})
			_ = s.GetLongs("k")
		}(i)
	}
	wg.Wait()

	got := s.GetLongs("k")
	require.Len(t, got, 3)
	assert.Equal(t, got[0], got[1])
	assert.Equal(t, got[1], got[2])
}
