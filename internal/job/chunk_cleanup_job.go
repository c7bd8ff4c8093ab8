package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/famlearn/internal/service"
)

type chunkSweeper interface {
	CleanupTempChunks(ctx context.Context) *service.CleanupStats
}

type ChunkCleanupJob struct {
	uploads chunkSweeper
}

func NewChunkCleanupJob(uploads chunkSweeper) *ChunkCleanupJob {
	return &ChunkCleanupJob{uploads: uploads}
}

func (j *ChunkCleanupJob) Name() string {
	return "chunk_cleanup"
}

func (j *ChunkCleanupJob) Run(ctx context.Context) error {
	if j.uploads == nil {
		return nil
	}
	stats := j.uploads.CleanupTempChunks(ctx)
	logutil.GetLogger(ctx).Info("stale chunks swept",
		zap.Int("deleted_dirs", stats.DeletedDirs),
		zap.Int("deleted_files", stats.DeletedFiles),
		zap.Int64("freed_space", stats.FreedSpace),
		zap.Int64("deleted_sessions", stats.DeletedSessions),
	)
	return ctx.Err()
}
