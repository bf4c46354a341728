package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/owlet/pkg/core"
	"github.com/aretw0/owlet/pkg/prefs"
)

func TestPreferenceStore(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewPreferenceStore(root, "", false)

	values, err := store.Load(ctx, "global")
	require.NoError(t, err)
	assert.Empty(t, values)

	want := map[string]prefs.Value{
		"update.interval": prefs.IntegerValue(30),
		"mark.read":       prefs.BooleanValue(true),
		"retention":       prefs.LongValue(1 << 40),
		"browser":         prefs.StringValue("firefox --new-tab"),
		"columns":         prefs.StringsValue([]string{"title", "date"}),
		"empty":           prefs.StringsValue([]string{}),
		"ids":             prefs.IntegersValue([]int32{3, 1}),
	}
	for k, v := range want {
		require.NoError(t, store.Put(ctx, "global", k, v))
	}

	t.Run("values round trip with their types", func(t *testing.T) {
		reopened := NewPreferenceStore(root, DefaultSystemDir, false)
		got, err := reopened.Load(ctx, "global")
		require.NoError(t, err)
		require.Len(t, got, len(want))
		for k, v := range want {
			assert.True(t, v.Equal(got[k]), "%s: want %s got %s", k, v, got[k])
		}
	})

	t.Run("scopes are isolated files", func(t *testing.T) {
		scope := prefs.EntityScopeID(core.IDRef[*core.Folder](3))
		require.NoError(t, store.Put(ctx, scope, "update.interval", prefs.IntegerValue(5)))

		got, err := store.Load(ctx, scope)
		require.NoError(t, err)
		assert.Equal(t, map[string]prefs.Value{"update.interval": prefs.IntegerValue(5)}, got)

		entries, err := os.ReadDir(filepath.Join(root, DefaultSystemDir, "prefs"))
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("delete and clear", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "global", "browser"))
		got, err := store.Load(ctx, "global")
		require.NoError(t, err)
		assert.NotContains(t, got, "browser")

		require.NoError(t, store.Clear(ctx, "global"))
		got, err = store.Load(ctx, "global")
		require.NoError(t, err)
		assert.Empty(t, got)

		require.NoError(t, store.Clear(ctx, "never-written"))
	})

	t.Run("corrupt files surface as errors", func(t *testing.T) {
		path := filepath.Join(root, DefaultSystemDir, "prefs", "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("k:\n  type: integer\n  values: [abc]\n"), 0644))
		_, err := store.Load(ctx, "broken")
		assert.Error(t, err)
	})

	t.Run("read only", func(t *testing.T) {
		ro := NewPreferenceStore(root, "", true)
		assert.ErrorIs(t, ro.Put(ctx, "global", "k", prefs.BooleanValue(true)), core.ErrReadOnly)
	})
}

func TestPreferenceStore_WithService(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	first, err := prefs.NewService(ctx, prefs.Config{Store: NewPreferenceStore(root, "", false), Logger: quietLogger()})
	require.NoError(t, err)
	require.NoError(t, first.Global().PutInteger(ctx, "update.interval", 15))

	folder := &core.Folder{ID: 4, Name: "News"}
	scope, err := first.EntityScope(ctx, folder)
	require.NoError(t, err)
	require.NoError(t, scope.PutBoolean(ctx, "mark.read", false))

	second, err := prefs.NewService(ctx, prefs.Config{Store: NewPreferenceStore(root, "", false), Logger: quietLogger()})
	require.NoError(t, err)
	v, ok := second.Global().GetInteger("update.interval")
	require.True(t, ok)
	assert.Equal(t, int32(15), v)

	again, err := second.EntityScope(ctx, folder)
	require.NoError(t, err)
	b, ok := again.GetBoolean("mark.read")
	require.True(t, ok)
	assert.False(t, b)
	i, ok := again.GetInteger("update.interval")
	require.True(t, ok, "entity scope falls back to global")
	assert.Equal(t, int32(15), i)
}
