package lifecycle_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/owlet/pkg/adapters/lifecycle"
	"github.com/aretw0/owlet/pkg/adapters/memory"
	"github.com/aretw0/owlet/pkg/core"
)

func TestSource_ModelBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := core.NewService(memory.NewRepository(), core.Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, svc.Start(ctx))

	src := lifecycle.NewSource(svc.Subscribe(ctx))
	require.NoError(t, src.Start(ctx))

	require.NoError(t, svc.Save(ctx, &core.Label{Name: "Later"}))

	select {
	case e := <-src.Events():
		batch, ok := e.(core.Batch)
		require.True(t, ok, "got %T", e)
		assert.Equal(t, core.KindLabel, batch.Kind)
		assert.Len(t, batch.Added, 1)
		assert.Contains(t, e.String(), "label")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-src.Events():
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestSource_ClosesWithInput(t *testing.T) {
	in := make(chan core.ExternalEvent, 1)
	in <- core.ExternalEvent{Type: core.ExternalCreate, Kind: core.KindFeed, Key: "http://x"}
	close(in)

	src := lifecycle.NewSource(in)
	require.NoError(t, src.Start(context.Background()))

	var got []string
	for e := range src.Events() {
		got = append(got, e.String())
	}
	assert.Equal(t, []string{"CREATE feed/http://x"}, got)
}
