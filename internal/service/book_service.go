package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/famlearn/internal/ai"
	"github.com/xxxsen/famlearn/internal/filestore"
	"github.com/xxxsen/famlearn/internal/index"
	"github.com/xxxsen/famlearn/internal/model"
	"github.com/xxxsen/famlearn/internal/parser"
	appErr "github.com/xxxsen/famlearn/internal/pkg/errors"
	"github.com/xxxsen/famlearn/internal/pkg/timeutil"
)

const (
	bookStatusCompleted = "completed"
	defaultBookCategory = "textbook"
)

type BookServiceConfig struct {
	// FilesDir holds merged uploads waiting to be saved.
	FilesDir    string
	MaxBookSize int64
	CacheSize   int
	CacheTTL    time.Duration
}

type BookService struct {
	cfg   BookServiceConfig
	ai    *ai.Manager
	files filestore.Store
	index index.Store
	users Users
	cache *expirable.LRU[string, *model.BookMetadata]
	now   func() time.Time
}

func NewBookService(cfg BookServiceConfig, manager *ai.Manager, files filestore.Store, idx index.Store, users Users) *BookService {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 100
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 2 * time.Hour
	}
	return &BookService{
		cfg:   cfg,
		ai:    manager,
		files: files,
		index: idx,
		users: users,
		cache: expirable.NewLRU[string, *model.BookMetadata](cfg.CacheSize, nil, cfg.CacheTTL),
		now:   time.Now,
	}
}

// AnalyzeUpload parses an uploaded book and asks the AI for its metadata.
func (s *BookService) AnalyzeUpload(ctx context.Context, fileName, contentType string, data []byte) (*model.ParsedBook, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file: %w", appErr.ErrInvalid)
	}
	if s.cfg.MaxBookSize > 0 && int64(len(data)) > s.cfg.MaxBookSize {
		return nil, fmt.Errorf("book exceeds %d bytes: %w", s.cfg.MaxBookSize, appErr.ErrTooLarge)
	}
	format, ok := parser.FormatFromMIME(contentType)
	if !ok {
		format = parser.FormatFromName(fileName)
	}
	return s.analyze(ctx, filepath.Base(fileName), format, data)
}

// AnalyzeFile does the same for a merged upload on disk.
func (s *BookService) AnalyzeFile(ctx context.Context, filePath, fileName string) (*model.ParsedBook, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read merged file: %w", err)
	}
	return s.analyze(ctx, filepath.Base(fileName), parser.FormatFromName(fileName), data)
}

func (s *BookService) analyze(ctx context.Context, fileName string, format model.FileFormat, data []byte) (*model.ParsedBook, error) {
	res, err := parser.Parse(format, data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %v: %w", format, err, appErr.ErrInvalid)
	}
	key := contentHash(data)
	aiMeta, ok := s.cache.Get(key)
	if !ok {
		aiMeta, err = s.ai.ExtractBookMetadata(ctx, fileName, res.Content, res.TableOfContents)
		if err != nil {
			logutil.GetLogger(ctx).Error("extract book metadata failed", zap.String("file_name", fileName), zap.Error(err))
			return nil, err
		}
		s.cache.Add(key, aiMeta)
	}
	meta := mergeBookMetadata(res.Estimated, *aiMeta)
	if len(meta.TableOfContents) == 0 {
		meta.TableOfContents = res.TableOfContents
	}
	if meta.Title == "" {
		meta.Title = parser.TitleFromName(fileName)
	}
	return &model.ParsedBook{
		FileName:   fileName,
		FileFormat: format,
		FileSize:   int64(len(data)),
		PageCount:  res.PageCount,
		Content:    res.Content,
		Metadata:   &meta,
	}, nil
}

// mergeBookMetadata lays the non-empty fields of override over base.
func mergeBookMetadata(base, override model.BookMetadata) model.BookMetadata {
	pick := func(a, b string) string {
		if strings.TrimSpace(b) != "" {
			return strings.TrimSpace(b)
		}
		return a
	}
	out := base
	out.Title = pick(base.Title, override.Title)
	out.Author = pick(base.Author, override.Author)
	out.Subject = pick(base.Subject, override.Subject)
	out.Category = pick(base.Category, override.Category)
	out.Grade = pick(base.Grade, override.Grade)
	out.Publisher = pick(base.Publisher, override.Publisher)
	out.PublishDate = pick(base.PublishDate, override.PublishDate)
	if len(override.Tags) > 0 {
		out.Tags = override.Tags
	}
	if len(override.TableOfContents) > 0 {
		out.TableOfContents = override.TableOfContents
	}
	return out
}

// ParseStored reads the embedded metadata of a merged upload without calling
// the AI. Parse failures fall back to a title taken from the file name.
func (s *BookService) ParseStored(ctx context.Context, uploadPath, fileName string) (*model.ParsedBook, error) {
	full, err := s.resolveUpload(uploadPath)
	if err != nil {
		return nil, err
	}
	if fileName == "" {
		fileName = filepath.Base(full)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	format := parser.FormatFromName(fileName)
	meta := model.BookMetadata{Category: defaultBookCategory, Tags: []string{}}
	out := &model.ParsedBook{FileName: fileName, FileFormat: format, FileSize: int64(len(data)), Metadata: &meta}
	res, err := parser.Parse(format, data)
	if err != nil {
		logutil.GetLogger(ctx).Warn("parse stored book failed", zap.String("file_name", fileName), zap.Error(err))
		meta.Title = parser.TitleFromName(fileName)
		return out, nil
	}
	meta.Title = res.Estimated.Title
	if meta.Title == "" {
		meta.Title = parser.TitleFromName(fileName)
	}
	meta.Author = res.Estimated.Author
	out.PageCount = res.PageCount
	return out, nil
}

// resolveUpload maps a client supplied path such as /uploads/files/x.pdf to
// the merged file. Only the base name is honoured.
func (s *BookService) resolveUpload(uploadPath string) (string, error) {
	base := filepath.Base(filepath.FromSlash(strings.TrimSpace(uploadPath)))
	if base == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fmt.Errorf("invalid upload path: %w", appErr.ErrInvalid)
	}
	full := filepath.Join(s.cfg.FilesDir, base)
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("upload %s expired or missing: %w", base, appErr.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("upload %s: %w", base, appErr.ErrNotFound)
	}
	return full, nil
}

type SaveBookInput struct {
	Metadata     model.BookMetadata
	TempFilePath string
	OwnerID      string
}

// Save archives a merged upload under books/YYYY-MM/ and indexes it.
func (s *BookService) Save(ctx context.Context, in SaveBookInput) (*model.BookRecord, error) {
	if in.OwnerID == "" {
		in.OwnerID = model.SharedOwner
	}
	full, err := s.resolveUpload(in.TempFilePath)
	if err != nil {
		return nil, err
	}
	meta := in.Metadata
	meta.Title = strings.TrimSpace(meta.Title)
	if meta.Title == "" {
		meta.Title = parser.TitleFromName(full)
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, err
	}
	now := s.now()
	name := filepath.Base(full)
	key := path.Join("books", timeutil.MonthDir(now), name)
	err = s.files.Save(ctx, key, f, info.Size())
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("store book: %w", err)
	}
	rec := &model.BookRecord{
		ID:           newBookID(now),
		OwnerID:      in.OwnerID,
		FileFormat:   parser.FormatFromName(name),
		FileSize:     info.Size(),
		FilePath:     key,
		Status:       bookStatusCompleted,
		Ctime:        now.UnixMilli(),
		Mtime:        now.UnixMilli(),
		BookMetadata: meta,
	}
	if err := s.putRecord(ctx, rec); err != nil {
		return nil, err
	}
	if err := os.Remove(full); err != nil {
		logutil.GetLogger(ctx).Warn("remove merged upload failed", zap.String("path", full), zap.Error(err))
	}
	logutil.GetLogger(ctx).Info("book saved", zap.String("id", rec.ID), zap.String("owner_id", rec.OwnerID), zap.String("key", key))
	return rec, nil
}

func (s *BookService) putRecord(ctx context.Context, rec *model.BookRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.index.Put(ctx, &model.IndexEntry{
		ID:        rec.ID,
		Type:      model.DocTextbook,
		OwnerID:   rec.OwnerID,
		UserName:  s.users.Name(rec.OwnerID),
		Subject:   rec.Subject,
		Title:     rec.Title,
		Timestamp: rec.Ctime,
		FilePath:  rec.FilePath,
		Data:      raw,
	})
}

func bookFromEntry(e *model.IndexEntry) (*model.BookRecord, error) {
	rec := &model.BookRecord{}
	if len(e.Data) > 0 {
		if err := json.Unmarshal(e.Data, rec); err != nil {
			return nil, fmt.Errorf("decode book %s: %w", e.ID, err)
		}
	}
	rec.ID = e.ID
	rec.OwnerID = e.OwnerID
	if rec.FilePath == "" {
		rec.FilePath = e.FilePath
	}
	if rec.Title == "" {
		rec.Title = e.Title
	}
	if rec.Subject == "" {
		rec.Subject = e.Subject
	}
	if rec.Ctime == 0 {
		rec.Ctime = e.Timestamp
	}
	return rec, nil
}

func (s *BookService) List(ctx context.Context, ownerID, subject string, limit int) ([]*model.BookRecord, error) {
	entries, err := s.index.Query(ctx, model.IndexQuery{OwnerID: ownerID, Subject: subject, Type: model.DocTextbook, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]*model.BookRecord, 0, len(entries))
	for _, e := range entries {
		rec, err := bookFromEntry(e)
		if err != nil {
			logutil.GetLogger(ctx).Warn("skip unreadable book entry", zap.String("id", e.ID), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *BookService) Get(ctx context.Context, id string) (*model.BookRecord, error) {
	e, err := s.index.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Type != model.DocTextbook {
		return nil, appErr.ErrNotFound
	}
	return bookFromEntry(e)
}

// Update replaces the editable metadata of a saved book. An empty title keeps
// the current one.
func (s *BookService) Update(ctx context.Context, id string, meta model.BookMetadata) (*model.BookRecord, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = rec.Title
	}
	rec.BookMetadata = meta
	rec.Title = title
	rec.Mtime = s.now().UnixMilli()
	if err := s.putRecord(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
