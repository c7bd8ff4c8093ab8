package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/famlearn/internal/config"
	"github.com/xxxsen/famlearn/internal/model"
	appErr "github.com/xxxsen/famlearn/internal/pkg/errors"
	"github.com/xxxsen/famlearn/internal/repo"
)

const chunkPrefix = "chunk-"

var (
	fileIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	extPattern    = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)
)

type ChunkInput struct {
	FileID      string
	FileName    string
	OwnerID     string
	ChunkIndex  int
	TotalChunks int
	Data        io.Reader
}

// IncompleteError reports the chunk indices a merge could not find.
type IncompleteError struct {
	Missing []int
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("upload incomplete, missing chunks %v", e.Missing)
}

func (e *IncompleteError) Unwrap() error {
	return appErr.ErrIncomplete
}

type MergeResult struct {
	FileID   string
	FileName string
	// Name is the generated file name under the files dir.
	Name string
	Path string
	Size int64
}

type CleanupStats struct {
	DeletedDirs     int   `json:"deletedDirs"`
	DeletedFiles    int   `json:"deletedFiles"`
	FreedSpace      int64 `json:"freedSpace"`
	DeletedSessions int64 `json:"deletedSessions"`
}

type UploadService struct {
	cfg      config.UploadConfig
	sessions repo.UploadSessionStore

	mu     sync.Mutex
	now    func() time.Time
	create func(name string) (io.WriteCloser, error)
}

func NewUploadService(cfg config.UploadConfig, sessions repo.UploadSessionStore) *UploadService {
	return &UploadService{
		cfg:      cfg,
		sessions: sessions,
		now:      time.Now,
		create: func(name string) (io.WriteCloser, error) {
			return os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		},
	}
}

func (s *UploadService) FilesDir() string {
	return s.cfg.FilesDir
}

func ValidateFileID(fileID string) error {
	if fileID == "" || fileID == "." || fileID == ".." || !fileIDPattern.MatchString(fileID) {
		return fmt.Errorf("invalid file id: %w", appErr.ErrInvalid)
	}
	return nil
}

func (s *UploadService) ReceiveChunk(ctx context.Context, in ChunkInput) error {
	if err := ValidateFileID(in.FileID); err != nil {
		return err
	}
	if in.OwnerID == "" || strings.TrimSpace(in.FileName) == "" {
		return fmt.Errorf("fileName and ownerId are required: %w", appErr.ErrInvalid)
	}
	if in.TotalChunks <= 0 || in.TotalChunks > s.cfg.MaxTotalChunks {
		return fmt.Errorf("totalChunks out of range: %w", appErr.ErrInvalid)
	}
	if in.ChunkIndex < 0 || in.ChunkIndex >= in.TotalChunks {
		return fmt.Errorf("chunkIndex out of range: %w", appErr.ErrInvalid)
	}
	if in.Data == nil {
		return fmt.Errorf("chunk data is required: %w", appErr.ErrInvalid)
	}
	if err := s.checkSession(ctx, in.FileID, in.TotalChunks); err != nil {
		return err
	}
	if err := s.writeChunk(in.FileID, in.ChunkIndex, in.Data); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().Unix()
	sess, err := s.sessions.GetUploadSession(ctx, in.FileID)
	if err != nil && !appErr.IsNotFound(err) {
		return err
	}
	if sess == nil {
		sess = &model.UploadSession{
			FileID:      in.FileID,
			TotalChunks: in.TotalChunks,
			Ctime:       now,
		}
	}
	if sess.Status == model.UploadMerged {
		sess.Received = nil
		sess.FilePath = ""
		sess.TotalChunks = in.TotalChunks
	}
	sess.FileName = filepath.Base(in.FileName)
	sess.OwnerID = in.OwnerID
	sess.Status = model.UploadPending
	if !sess.HasChunk(in.ChunkIndex) {
		sess.Received = append(sess.Received, in.ChunkIndex)
		sort.Ints(sess.Received)
	}
	sess.Mtime = now
	return s.sessions.SaveUploadSession(ctx, sess)
}

func (s *UploadService) checkSession(ctx context.Context, fileID string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.sessions.GetUploadSession(ctx, fileID)
	if appErr.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	switch sess.Status {
	case model.UploadMerging:
		return fmt.Errorf("merge in progress: %w", appErr.ErrConflict)
	case model.UploadMerged:
		return nil
	}
	if sess.TotalChunks != total {
		return fmt.Errorf("totalChunks %d does not match recorded %d: %w", total, sess.TotalChunks, appErr.ErrInvalid)
	}
	return nil
}

func (s *UploadService) writeChunk(fileID string, idx int, data io.Reader) error {
	dir := filepath.Join(s.cfg.TempDir, fileID)
	_, statErr := os.Stat(dir)
	created := os.IsNotExist(statErr)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create chunk dir: %w", err)
	}
	// A rejected first chunk must not leave a scratch dir that merge would
	// report as an incomplete upload.
	dropDir := func() {
		if created {
			_ = os.Remove(dir)
		}
	}
	tmp, err := os.CreateTemp(dir, ".part-*")
	if err != nil {
		dropDir()
		return fmt.Errorf("create chunk temp: %w", err)
	}
	tmpName := tmp.Name()
	limit := s.cfg.MaxChunkSize
	var n int64
	if limit > 0 {
		n, err = io.Copy(tmp, io.LimitReader(data, limit+1))
	} else {
		n, err = io.Copy(tmp, data)
	}
	if err == nil && limit > 0 && n > limit {
		err = fmt.Errorf("chunk exceeds %d bytes: %w", limit, appErr.ErrTooLarge)
	}
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		dropDir()
		if errors.Is(err, appErr.ErrTooLarge) {
			return err
		}
		return fmt.Errorf("write chunk: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, chunkPrefix+strconv.Itoa(idx))); err != nil {
		_ = os.Remove(tmpName)
		dropDir()
		return fmt.Errorf("store chunk: %w", err)
	}
	return nil
}

// listChunks maps chunk index to file path for every chunk-N file in dir.
func listChunks(dir string) (map[int]string, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, -1, err
	}
	chunks := make(map[int]string, len(entries))
	maxIdx := -1
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), chunkPrefix) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(e.Name(), chunkPrefix))
		if err != nil || idx < 0 {
			continue
		}
		chunks[idx] = filepath.Join(dir, e.Name())
		if idx > maxIdx {
			maxIdx = idx
		}
	}
	return chunks, maxIdx, nil
}

func (s *UploadService) Merge(ctx context.Context, fileID, fileName, ownerID string) (*MergeResult, error) {
	if err := ValidateFileID(fileID); err != nil {
		return nil, err
	}
	if ownerID == "" || strings.TrimSpace(fileName) == "" {
		return nil, fmt.Errorf("fileName and ownerId are required: %w", appErr.ErrInvalid)
	}
	dir := filepath.Join(s.cfg.TempDir, fileID)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("no chunks for %s: %w", fileID, appErr.ErrNotFound)
	}
	safeName := filepath.Base(fileName)
	logger := logutil.GetLogger(ctx).With(zap.String("file_id", fileID), zap.String("owner_id", ownerID))

	sess, total, paths, err := s.beginMerge(ctx, fileID, safeName, ownerID, dir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.cfg.FilesDir, 0o755); err != nil {
		s.finishMerge(ctx, sess, model.UploadFailed, "")
		return nil, fmt.Errorf("create files dir: %w", err)
	}
	name := uuid.NewString() + safeExt(safeName)
	dest := filepath.Join(s.cfg.FilesDir, name)
	size, err := s.concat(dest, paths)
	if err != nil {
		_ = os.Remove(dest)
		s.finishMerge(ctx, sess, model.UploadFailed, "")
		logger.Error("merge chunks failed", zap.Error(err))
		return nil, fmt.Errorf("merge chunks: %w", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("remove chunk dir failed", zap.Error(err))
	}
	s.finishMerge(ctx, sess, model.UploadMerged, dest)
	logger.Info("merge chunks succeeded", zap.String("file_name", safeName), zap.String("dest", name), zap.Int("chunks", total), zap.Int64("size", size))
	return &MergeResult{FileID: fileID, FileName: safeName, Name: name, Path: dest, Size: size}, nil
}

// beginMerge verifies completeness and moves the session to merging.
func (s *UploadService) beginMerge(ctx context.Context, fileID, fileName, ownerID, dir string) (*model.UploadSession, int, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chunks, maxIdx, err := listChunks(dir)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("list chunks: %w", err)
	}
	sess, err := s.sessions.GetUploadSession(ctx, fileID)
	if err != nil && !appErr.IsNotFound(err) {
		return nil, 0, nil, err
	}
	if sess != nil && sess.Status == model.UploadMerging {
		return nil, 0, nil, fmt.Errorf("merge in progress: %w", appErr.ErrConflict)
	}
	total := maxIdx + 1
	if sess != nil && sess.Status != model.UploadMerged && sess.TotalChunks > 0 {
		total = sess.TotalChunks
	}
	if total <= 0 {
		return nil, 0, nil, &IncompleteError{Missing: []int{0}}
	}
	paths := make([]string, total)
	missing := make([]int, 0)
	for i := 0; i < total; i++ {
		p, ok := chunks[i]
		if !ok {
			missing = append(missing, i)
			continue
		}
		paths[i] = p
	}
	if len(missing) > 0 {
		return nil, 0, nil, &IncompleteError{Missing: missing}
	}
	now := s.now().Unix()
	if sess == nil || sess.Status == model.UploadMerged {
		sess = &model.UploadSession{FileID: fileID, Ctime: now}
		for i := 0; i < total; i++ {
			sess.Received = append(sess.Received, i)
		}
	}
	sess.FileName = fileName
	sess.OwnerID = ownerID
	sess.TotalChunks = total
	sess.Status = model.UploadMerging
	sess.Mtime = now
	if err := s.sessions.SaveUploadSession(ctx, sess); err != nil {
		return nil, 0, nil, err
	}
	return sess, total, paths, nil
}

func (s *UploadService) finishMerge(ctx context.Context, sess *model.UploadSession, status model.UploadStatus, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.Status = status
	sess.FilePath = path
	sess.Mtime = s.now().Unix()
	if err := s.sessions.SaveUploadSession(ctx, sess); err != nil {
		logutil.GetLogger(ctx).Error("save upload session failed", zap.String("file_id", sess.FileID), zap.String("status", string(status)), zap.Error(err))
	}
}

func (s *UploadService) concat(dest string, paths []string) (int64, error) {
	out, err := s.create(dest)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, p := range paths {
		n, err := appendFile(out, p)
		total += n
		if err != nil {
			_ = out.Close()
			return total, err
		}
	}
	if err := out.Close(); err != nil {
		return total, err
	}
	return total, nil
}

func appendFile(w io.Writer, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()
	return io.Copy(w, f)
}

func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if !extPattern.MatchString(ext) {
		return ""
	}
	return ext
}

func (s *UploadService) Status(ctx context.Context, fileID string) (*model.UploadSession, error) {
	if err := ValidateFileID(fileID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.GetUploadSession(ctx, fileID)
}

// CleanupTempChunks deletes scratch dirs older than the retention window.
// Failures are logged per dir and never stop the sweep.
func (s *UploadService) CleanupTempChunks(ctx context.Context) *CleanupStats {
	logger := logutil.GetLogger(ctx)
	stats := &CleanupStats{}
	retention := time.Duration(s.cfg.RetentionHours) * time.Hour
	now := s.now()

	entries, err := os.ReadDir(s.cfg.TempDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Error("read temp dir failed", zap.String("dir", s.cfg.TempDir), zap.Error(err))
		}
		entries = nil
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(s.cfg.TempDir, e.Name())
		info, err := e.Info()
		if err != nil {
			logger.Warn("stat chunk dir failed", zap.String("dir", dir), zap.Error(err))
			continue
		}
		if now.Sub(info.ModTime()) <= retention {
			continue
		}
		files, size, err := dirUsage(dir)
		if err != nil {
			logger.Warn("measure chunk dir failed", zap.String("dir", dir), zap.Error(err))
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("remove chunk dir failed", zap.String("dir", dir), zap.Error(err))
			continue
		}
		stats.DeletedDirs++
		stats.DeletedFiles += files
		stats.FreedSpace += size
	}

	n, err := s.sessions.DeleteStaleUploadSessions(ctx, now.Add(-retention).Unix())
	if err != nil {
		logger.Warn("prune upload sessions failed", zap.Error(err))
	}
	stats.DeletedSessions = n
	return stats
}

func dirUsage(dir string) (int, int64, error) {
	var (
		files int
		size  int64
	)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files++
		size += info.Size()
		return nil
	})
	return files, size, err
}
