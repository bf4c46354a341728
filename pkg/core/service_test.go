package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/owlet/pkg/adapters/memory"
	"github.com/aretw0/owlet/pkg/core"
)

type capture struct {
	batches []core.Batch
}

func (c *capture) listen(svc *core.Service, kinds ...core.Kind) {
	for _, k := range kinds {
		k := k
		svc.AddListener(k, core.ListenerFuncs{
			OnAdded:   func(evs []core.ModelEvent) { c.add(k, core.EventAdded, evs) },
			OnUpdated: func(evs []core.ModelEvent) { c.add(k, core.EventUpdated, evs) },
			OnDeleted: func(evs []core.ModelEvent) { c.add(k, core.EventDeleted, evs) },
		})
	}
}

func (c *capture) add(kind core.Kind, typ core.EventType, evs []core.ModelEvent) {
	b := core.Batch{Kind: kind}
	switch typ {
	case core.EventAdded:
		b.Added = evs
	case core.EventUpdated:
		b.Updated = evs
	case core.EventDeleted:
		b.Deleted = evs
	}
	c.batches = append(c.batches, b)
}

func (c *capture) events(kind core.Kind, typ core.EventType) []core.ModelEvent {
	var out []core.ModelEvent
	for _, b := range c.batches {
		if b.Kind != kind {
			continue
		}
		switch typ {
		case core.EventAdded:
			out = append(out, b.Added...)
		case core.EventUpdated:
			out = append(out, b.Updated...)
		case core.EventDeleted:
			out = append(out, b.Deleted...)
		}
	}
	return out
}

func newService(t *testing.T) (*core.Service, *memory.Repository) {
	t.Helper()
	repo := memory.NewRepository()
	svc := core.NewService(repo, core.Config{Logger: quietLogger()})
	require.NoError(t, svc.Start(context.Background()))
	return svc, repo
}

func TestService_SaveAssignsIDsAndEmitsAdded(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	c := &capture{}
	c.listen(svc, core.KindFolder, core.KindBookMark)

	root := &core.Folder{Name: "Root"}
	require.NoError(t, svc.Save(ctx, root))
	require.NotZero(t, root.ID)

	mark := &core.BookMark{Name: "Go blog", Parent: root.ID, FeedLink: "http://go.dev/blog/feed.atom"}
	require.NoError(t, svc.Save(ctx, mark))

	assert.Equal(t, 1, repo.Len(core.KindBookMark))

	added := c.events(core.KindBookMark, core.EventAdded)
	require.Len(t, added, 1)
	assert.True(t, added[0].IsRoot())

	// The folder gained a child.
	updated := c.events(core.KindFolder, core.EventUpdated)
	require.Len(t, updated, 1)
	assert.False(t, updated[0].IsRoot())
	assert.Equal(t, root.NaturalKey(), updated[0].Entity().NaturalKey())
}

func TestService_Reparent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	a := &core.Folder{Name: "A"}
	b := &core.Folder{Name: "B"}
	require.NoError(t, svc.Save(ctx, a, b))
	mark := &core.BookMark{Name: "m", Parent: a.ID, FeedLink: "http://x/feed"}
	require.NoError(t, svc.Save(ctx, mark))

	c := &capture{}
	c.listen(svc, core.KindFolder, core.KindBookMark)

	moved, ok, err := core.RefOf(mark).Resolve(ctx, svc)
	require.NoError(t, err)
	require.True(t, ok)
	moved.Parent = b.ID
	require.NoError(t, svc.Save(ctx, moved))

	updated := c.events(core.KindBookMark, core.EventUpdated)
	require.Len(t, updated, 1)
	assert.True(t, updated[0].IsRoot())
	require.NotNil(t, updated[0].OldParent())
	assert.Equal(t, a.ID, updated[0].OldParent().ID)

	cascades := c.events(core.KindFolder, core.EventUpdated)
	require.Len(t, cascades, 2)
	assert.Equal(t, a.NaturalKey(), cascades[0].Entity().NaturalKey())
	assert.Equal(t, b.NaturalKey(), cascades[1].Entity().NaturalKey())
	for _, ev := range cascades {
		assert.False(t, ev.IsRoot())
	}
}

func TestService_PlainUpdateHasNoOldParent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	feed := &core.Feed{Link: "http://a/feed.xml", Title: "A"}
	require.NoError(t, svc.Save(ctx, feed))

	c := &capture{}
	c.listen(svc, core.KindFeed)
	feed.Title = "A2"
	require.NoError(t, svc.Save(ctx, feed))

	updated := c.events(core.KindFeed, core.EventUpdated)
	require.Len(t, updated, 1)
	assert.Nil(t, updated[0].OldParent())
}

func TestService_DeleteFolderCascades(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	root := &core.Folder{Name: "root"}
	require.NoError(t, svc.Save(ctx, root))
	sub := &core.Folder{Name: "sub", Parent: root.ID}
	require.NoError(t, svc.Save(ctx, sub))
	m1 := &core.BookMark{Name: "m1", Parent: root.ID, FeedLink: "http://1"}
	m2 := &core.BookMark{Name: "m2", Parent: sub.ID, FeedLink: "http://2"}
	bin := &core.NewsBin{Name: "bin", Parent: sub.ID}
	require.NoError(t, svc.Save(ctx, m1, m2, bin))

	c := &capture{}
	c.listen(svc, core.KindFolder, core.KindBookMark, core.KindNewsBin)

	require.NoError(t, svc.Delete(ctx, core.RefOf(root)))

	folders := c.events(core.KindFolder, core.EventDeleted)
	require.Len(t, folders, 2)
	assert.True(t, folders[0].IsRoot())
	assert.Equal(t, root.NaturalKey(), folders[0].Entity().NaturalKey())
	assert.False(t, folders[1].IsRoot())

	marks := c.events(core.KindBookMark, core.EventDeleted)
	require.Len(t, marks, 2)
	for _, ev := range marks {
		assert.False(t, ev.IsRoot())
	}
	assert.Len(t, c.events(core.KindNewsBin, core.EventDeleted), 1)

	assert.Zero(t, repo.Len(core.KindFolder))
	assert.Zero(t, repo.Len(core.KindBookMark))
	assert.Zero(t, repo.Len(core.KindNewsBin))
}

func TestService_DeleteFeedCascadesToNewsAndAttachments(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	feed := &core.Feed{Link: "http://a/feed.xml"}
	n1 := &core.News{FeedLink: feed.Link, Title: "one", State: core.StateNew}
	n2 := &core.News{FeedLink: feed.Link, Title: "two", State: core.StateRead}
	require.NoError(t, svc.Save(ctx, feed, n1, n2))
	att := &core.Attachment{NewsID: n1.ID, Link: "http://a/one.mp3"}
	require.NoError(t, svc.Save(ctx, att))

	c := &capture{}
	c.listen(svc, core.KindNews, core.KindAttachment)

	require.NoError(t, svc.Delete(ctx, core.LinkRef(feed.Link)))

	assert.Len(t, c.events(core.KindNews, core.EventDeleted), 2)
	assert.Len(t, c.events(core.KindAttachment, core.EventDeleted), 1)
	assert.Zero(t, repo.Len(core.KindNews))
	assert.Zero(t, repo.Len(core.KindAttachment))

	_, ok := svc.Counter().Get(feed.Link)
	assert.False(t, ok)
}

func TestService_BatchesShareTransaction(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	stream := svc.Subscribe(ctx)
	var txID string
	err := svc.WithTransaction(ctx, func(tx *core.Tx) error {
		txID = tx.ID()
		if err := tx.Save(ctx, &core.Feed{Link: "http://a"}); err != nil {
			return err
		}
		if err := tx.Save(ctx, &core.News{FeedLink: "http://a", Title: "1"}); err != nil {
			return err
		}
		return tx.Save(ctx, &core.News{FeedLink: "http://a", Title: "2"})
	})
	require.NoError(t, err)

	first := <-stream
	second := <-stream
	assert.Equal(t, core.KindFeed, first.Kind)
	assert.Equal(t, core.KindNews, second.Kind)
	assert.Equal(t, txID, first.TxID)
	assert.Equal(t, txID, second.TxID)
	require.Len(t, second.Added, 2)
	assert.Equal(t, "1", second.Added[0].Entity().(*core.News).Title)
	assert.Equal(t, "2", second.Added[1].Entity().(*core.News).Title)
}

func TestService_RollbackProducesNothing(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	c := &capture{}
	c.listen(svc, core.KindFeed)

	boom := errors.New("abort")
	err := svc.WithTransaction(ctx, func(tx *core.Tx) error {
		require.NoError(t, tx.Save(ctx, &core.Feed{Link: "http://a"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, repo.Len(core.KindFeed))
	assert.Empty(t, c.batches)
}

func TestService_CreateThenDeleteInOneTransaction(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	c := &capture{}
	c.listen(svc, core.KindLabel)

	err := svc.WithTransaction(ctx, func(tx *core.Tx) error {
		l := &core.Label{Name: "tmp"}
		require.NoError(t, tx.Save(ctx, l))
		return tx.Delete(ctx, core.RefOf(l))
	})
	require.NoError(t, err)
	assert.Zero(t, repo.Len(core.KindLabel))
	assert.Empty(t, c.batches)
}

func TestService_DeleteMissing(t *testing.T) {
	svc, _ := newService(t)
	err := svc.Delete(context.Background(), core.IDRef[*core.Label](99))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestService_CommitFailure(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	repo := memory.NewRepository()
	svc := core.NewService(repo, core.Config{Logger: quietLogger(), Registerer: reg})
	require.NoError(t, svc.Start(ctx))

	feed := &core.Feed{Link: "http://a"}
	require.NoError(t, svc.Save(ctx, feed))

	repo.FailWith = errors.New("unreachable")
	err := svc.Save(ctx, feed)
	var pe *core.PersistenceError
	require.ErrorAs(t, err, &pe)

	m := core.NewMetrics(reg)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Transactions().WithLabelValues("committed")))
}

func TestService_Counters(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	link := "http://a/feed.xml"

	fresh := &core.News{FeedLink: link, Title: "fresh", State: core.StateNew, Sticky: true}
	unread := &core.News{FeedLink: link, Title: "unread", State: core.StateUnread}
	read := &core.News{FeedLink: link, Title: "read", State: core.StateRead}
	require.NoError(t, svc.Save(ctx, &core.Feed{Link: link}, fresh, unread, read))

	got, ok := svc.Counter().Get(link)
	require.True(t, ok)
	assert.Equal(t, core.CounterItem{New: 1, Unread: 2, Sticky: 1}, got)

	fresh.State = core.StateRead
	fresh.Sticky = false
	require.NoError(t, svc.Save(ctx, fresh))
	got, _ = svc.Counter().Get(link)
	assert.Equal(t, core.CounterItem{Unread: 1}, got)

	require.NoError(t, svc.Delete(ctx, core.RefOf(unread)))
	got, _ = svc.Counter().Get(link)
	assert.True(t, got.IsZero())

	t.Run("rebuild from storage", func(t *testing.T) {
		svc.Counter().Reset()
		require.NoError(t, svc.RebuildCounters(ctx))
		got, _ := svc.Counter().Get(link)
		assert.True(t, got.IsZero())
	})
}

func TestService_ListenerMayCommit(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	svc.AddListener(core.KindFeed, core.ListenerFuncs{
		OnAdded: func(evs []core.ModelEvent) {
			for _, ev := range evs {
				feed := ev.Entity().(*core.Feed)
				require.NoError(t, svc.Save(ctx, &core.News{FeedLink: feed.Link, Title: "welcome", State: core.StateNew}))
			}
		},
	})
	var news int
	svc.AddListener(core.KindNews, core.ListenerFuncs{
		OnAdded: func(evs []core.ModelEvent) { news += len(evs) },
	})

	require.NoError(t, svc.Save(ctx, &core.Feed{Link: "http://a"}))
	assert.Equal(t, 1, repo.Len(core.KindNews))
	assert.Equal(t, 1, news)
}

func TestService_State(t *testing.T) {
	svc, _ := newService(t)
	svc.AddListener(core.KindNews, core.ListenerFuncs{})

	state, ok := svc.State().(core.ServiceState)
	require.True(t, ok)
	assert.Equal(t, "memory-repository", state.RepositoryType)
	assert.True(t, state.CountersLoaded)
	assert.Equal(t, 1, state.Listeners[core.KindNews])
	assert.Equal(t, core.DefaultEventBuffer, state.EventBufferSize)
}

func TestService_ExplicitIDsAreNotReused(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	imported := &core.Folder{ID: 1, Name: "imported"}
	require.NoError(t, svc.Save(ctx, imported))

	fresh := &core.Folder{Name: "fresh"}
	require.NoError(t, svc.Save(ctx, fresh))
	assert.Greater(t, fresh.ID, imported.ID)

	got, ok, err := core.IDRef[*core.Folder](1).Resolve(ctx, svc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "imported", got.Name)

	folders, err := svc.List(ctx, core.KindFolder)
	require.NoError(t, err)
	assert.Len(t, folders, 2)
}

// laggingSequence hands out ids from its own counter, ignoring what the
// underlying repository has stored.
type laggingSequence struct {
	*memory.Repository
	next int64
}

func (r *laggingSequence) NextID(context.Context) (int64, error) {
	r.next++
	return r.next, nil
}

func TestService_FreshIDsSkipStoredEntities(t *testing.T) {
	ctx := context.Background()
	repo := &laggingSequence{Repository: memory.NewRepository()}
	svc := core.NewService(repo, core.Config{Logger: quietLogger()})
	require.NoError(t, svc.Start(ctx))

	external := &core.Folder{ID: 1, Name: "written elsewhere"}
	require.NoError(t, repo.Commit(ctx, []core.Change{
		{Action: core.ActionSave, Kind: core.KindFolder, Key: external.NaturalKey(), Entity: external},
	}))

	c := &capture{}
	c.listen(svc, core.KindFolder)
	fresh := &core.Folder{Name: "fresh"}
	require.NoError(t, svc.Save(ctx, fresh))

	assert.Equal(t, int64(2), fresh.ID)
	assert.Len(t, c.events(core.KindFolder, core.EventAdded), 1)
	assert.Empty(t, c.events(core.KindFolder, core.EventUpdated))
}

// rebuildingRepository rebuilds the service counters while a commit is in
// flight, as the external change watcher may.
type rebuildingRepository struct {
	*memory.Repository
	svc *core.Service
}

func (r *rebuildingRepository) Commit(ctx context.Context, changes []core.Change) error {
	if err := r.Repository.Commit(ctx, changes); err != nil {
		return err
	}
	return r.svc.RebuildCounters(ctx)
}

func TestService_CountersRebuiltDuringCommit(t *testing.T) {
	ctx := context.Background()
	repo := &rebuildingRepository{Repository: memory.NewRepository()}
	svc := core.NewService(repo, core.Config{Logger: quietLogger()})
	repo.svc = svc
	require.NoError(t, svc.Start(ctx))

	link := "http://a/feed.xml"
	news := &core.News{FeedLink: link, Title: "fresh", State: core.StateNew}
	require.NoError(t, svc.Save(ctx, &core.Feed{Link: link}, news))

	c := &capture{}
	c.listen(svc, core.KindNews)
	news.State = core.StateRead
	require.NotPanics(t, func() {
		require.NoError(t, svc.Save(ctx, news))
	})

	got, _ := svc.Counter().Get(link)
	assert.True(t, got.IsZero(), "counters: %+v", got)
	assert.Len(t, c.events(core.KindNews, core.EventUpdated), 1)
}
