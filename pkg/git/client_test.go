package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Lock(t *testing.T) {
	tmpDir := t.TempDir()
	client := NewClient(tmpDir, "", nil)
	ctx := context.Background()

	unlock, err := client.Lock(ctx)
	require.NoError(t, err)

	lockPath := filepath.Join(tmpDir, DefaultLockName)
	_, err = os.Stat(lockPath)
	require.NoError(t, err, "lock file not created")

	t.Run("contention honors the context", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err := client.Lock(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	unlock()

	_, err = os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err), "lock file not removed after unlock")
}

func TestClient_CommitAndLog(t *testing.T) {
	if !IsInstalled() {
		t.Skip("git not installed")
	}
	ctx := context.Background()
	tmpDir := t.TempDir()
	client := NewClient(tmpDir, "", nil)

	require.NoError(t, client.Init(ctx))
	assert.True(t, client.IsRepo())

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "a.yaml"), []byte("id: 1\n"), 0644))
	require.NoError(t, client.Add(ctx, "a.yaml"))
	require.NoError(t, client.Commit(ctx, "add a"))

	// Nothing staged: no empty commit.
	require.NoError(t, client.Commit(ctx, "noop"))

	require.NoError(t, client.Rm(ctx, "a.yaml", "missing.yaml"))
	require.NoError(t, client.Commit(ctx, "remove a"))

	log, err := client.Log(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"remove a", "add a"}, log)
}
