package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/famlearn/internal/config"
	"github.com/xxxsen/famlearn/internal/repo"
	"github.com/xxxsen/famlearn/internal/service"
)

func TestChunkCleanupJob_RemovesStaleDirs(t *testing.T) {
	root := t.TempDir()
	cfg := config.UploadConfig{
		TempDir:        filepath.Join(root, "temp"),
		FilesDir:       filepath.Join(root, "files"),
		MaxTotalChunks: 10000,
		RetentionHours: 24,
	}
	stale := filepath.Join(cfg.TempDir, "old-upload")
	fresh := filepath.Join(cfg.TempDir, "new-upload")
	for _, dir := range []string{stale, fresh} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "chunk-0"), []byte("12345"), 0o644))
	}
	old := time.Now().Add(-25 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	job := NewChunkCleanupJob(service.NewUploadService(cfg, repo.NewMemoryUploadSessionStore()))
	require.Equal(t, "chunk_cleanup", job.Name())
	require.NoError(t, job.Run(context.Background()))

	_, err := os.Stat(stale)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	require.NoError(t, err)
}

type purgerFunc func(ctx context.Context) (int64, error)

func (f purgerFunc) PurgeExpired(ctx context.Context) (int64, error) {
	return f(ctx)
}

func TestSessionPurgeJob(t *testing.T) {
	calls := 0
	job := NewSessionPurgeJob(purgerFunc(func(ctx context.Context) (int64, error) {
		calls++
		return 2, nil
	}))
	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, 1, calls)

	boom := errors.New("db down")
	job = NewSessionPurgeJob(purgerFunc(func(ctx context.Context) (int64, error) {
		return 0, boom
	}))
	require.ErrorIs(t, job.Run(context.Background()), boom)
}
