package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/owlet/pkg/adapters/memory"
	"github.com/aretw0/owlet/pkg/core"
)

func TestRef_Equality(t *testing.T) {
	t.Run("same key text is equal", func(t *testing.T) {
		a := core.LinkRef("http://a/feed.xml")
		b := core.NewRef[*core.Feed]("http://a/feed.xml")

		assert.True(t, a == b)
		assert.True(t, a.Equal(b))

		set := map[core.Ref[*core.Feed]]int{a: 1}
		set[b]++
		assert.Len(t, set, 1)
		assert.Equal(t, 2, set[a])
	})

	t.Run("id and key constructors agree", func(t *testing.T) {
		assert.Equal(t, core.NewRef[*core.News]("42"), core.IDRef[*core.News](42))
	})

	t.Run("kind-erased refs compare by kind and key", func(t *testing.T) {
		var a, b core.Reference = core.IDRef[*core.Folder](1), core.IDRef[*core.Folder](1)
		var c core.Reference = core.IDRef[*core.Label](1)
		assert.True(t, a == b)
		assert.False(t, a == c)
	})

	t.Run("string form", func(t *testing.T) {
		assert.Equal(t, "folder:7", core.IDRef[*core.Folder](7).String())
		assert.Equal(t, core.KindFeed, core.LinkRef("x").Kind())
	})
}

func TestRef_ConstructionViolations(t *testing.T) {
	assertViolation(t, func() { core.LinkRef("") })
	assertViolation(t, func() { core.IDRef[*core.News](0) })
	assertViolation(t, func() { core.RefOf(&core.Feed{}) })
	assertViolation(t, func() {
		var f *core.Folder
		core.RefOf(f)
	})
}

func TestRef_ReferencesSameTarget(t *testing.T) {
	ref := core.LinkRef("http://a/feed.xml")

	assert.True(t, ref.ReferencesSameTarget(&core.Feed{Link: "http://a/feed.xml"}))
	assert.False(t, ref.ReferencesSameTarget(&core.Feed{}))
	assert.False(t, ref.ReferencesSameTarget(&core.Feed{Link: "http://b/feed.xml"}))
	assert.False(t, ref.ReferencesSameTarget(nil))

	var nilFeed *core.Feed
	assert.False(t, ref.ReferencesSameTarget(nilFeed))

	news := core.IDRef[*core.News](3)
	assert.False(t, news.ReferencesSameTarget(&core.Label{ID: 3}))
	assert.True(t, news.ReferencesSameTarget(&core.News{ID: 3}))
}

type failingLoader struct{ err error }

func (f failingLoader) Load(ctx context.Context, kind core.Kind, key string) (core.Entity, bool, error) {
	return nil, false, f.err
}

type countingLoader struct {
	core.Loader
	calls int
}

func (c *countingLoader) Load(ctx context.Context, kind core.Kind, key string) (core.Entity, bool, error) {
	c.calls++
	return c.Loader.Load(ctx, kind, key)
}

func TestRef_Resolve(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	require.NoError(t, repo.Commit(ctx, []core.Change{
		{Action: core.ActionSave, Kind: core.KindFeed, Key: "http://a/feed.xml", Entity: &core.Feed{Link: "http://a/feed.xml", Title: "A"}},
	}))

	t.Run("found", func(t *testing.T) {
		feed, ok, err := core.LinkRef("http://a/feed.xml").Resolve(ctx, repo)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "A", feed.Title)
	})

	t.Run("deleted entity is not found, not an error", func(t *testing.T) {
		feed, ok, err := core.LinkRef("http://gone/feed.xml").Resolve(ctx, repo)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, feed)
	})

	t.Run("store failure is a persistence error", func(t *testing.T) {
		boom := errors.New("disk on fire")
		_, ok, err := core.LinkRef("http://a/feed.xml").Resolve(ctx, failingLoader{err: boom})
		assert.False(t, ok)

		var pe *core.PersistenceError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, core.KindFeed, pe.Kind)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("no caching between resolves", func(t *testing.T) {
		loader := &countingLoader{Loader: repo}
		ref := core.LinkRef("http://a/feed.xml")
		for i := 0; i < 3; i++ {
			_, _, err := ref.Resolve(ctx, loader)
			require.NoError(t, err)
		}
		assert.Equal(t, 3, loader.calls)
	})

	t.Run("zero ref violates the contract", func(t *testing.T) {
		var zero core.Ref[*core.Feed]
		assertViolation(t, func() { _, _, _ = zero.Resolve(ctx, repo) })
	})
}

func TestParseRef(t *testing.T) {
	ref, err := core.ParseRef(core.KindNews, "12")
	require.NoError(t, err)
	assert.Equal(t, core.Reference(core.IDRef[*core.News](12)), ref)

	_, err = core.ParseRef("bogus", "1")
	assert.Error(t, err)

	_, err = core.ParseRef(core.KindFeed, "")
	assert.Error(t, err)
}

func assertViolation(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a contract violation")
		_, ok := r.(*core.ContractViolation)
		assert.True(t, ok, "expected *core.ContractViolation, got %T", r)
	}()
	fn()
}
