package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/xxxsen/famlearn/internal/ai"
	"github.com/xxxsen/famlearn/internal/filestore"
	"github.com/xxxsen/famlearn/internal/index"
	"github.com/xxxsen/famlearn/internal/model"
	appErr "github.com/xxxsen/famlearn/internal/pkg/errors"
	"github.com/xxxsen/famlearn/internal/pkg/timeutil"
)

var dataURLPrefix = regexp.MustCompile(`^data:([\w.+-]+/[\w.+-]+);base64,`)

var categoryDirs = map[model.DocType]string{
	model.DocWrongProblem: "Wrong_Problems",
	model.DocExam:         "No_Problems",
	model.DocHomework:     "No_Problems",
	model.DocNote:         "No_Problems",
	model.DocCourseware:   "Courses",
}

type ScanServiceConfig struct {
	CacheSize int
	CacheTTL  time.Duration
}

type ScanService struct {
	ai     *ai.Manager
	files  filestore.Store
	index  index.Store
	users  Users
	cache  *expirable.LRU[string, *model.ImageAnalysis]
	flight singleflight.Group
	md     goldmark.Markdown
	now    func() time.Time
}

func NewScanService(cfg ScanServiceConfig, manager *ai.Manager, files filestore.Store, idx index.Store, users Users) *ScanService {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 2 * time.Hour
	}
	return &ScanService{
		ai:    manager,
		files: files,
		index: idx,
		users: users,
		cache: expirable.NewLRU[string, *model.ImageAnalysis](cfg.CacheSize, nil, cfg.CacheTTL),
		md:    goldmark.New(goldmark.WithExtensions(extension.GFM)),
		now:   time.Now,
	}
}

// DecodeImage accepts raw base64 or a data URL and returns the bytes with
// their mime type.
func DecodeImage(encoded string) (ai.InlineData, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return ai.InlineData{}, fmt.Errorf("image is required: %w", appErr.ErrInvalid)
	}
	mimeType := ""
	if m := dataURLPrefix.FindStringSubmatch(encoded); m != nil {
		mimeType = strings.ToLower(m[1])
		encoded = encoded[len(m[0]):]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
	}
	if err != nil || len(data) == 0 {
		return ai.InlineData{}, fmt.Errorf("image is not valid base64: %w", appErr.ErrInvalid)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
		if i := strings.Index(mimeType, ";"); i >= 0 {
			mimeType = mimeType[:i]
		}
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return ai.InlineData{}, fmt.Errorf("unsupported image type %s: %w", mimeType, appErr.ErrInvalid)
	}
	return ai.InlineData{MIMEType: mimeType, Data: data}, nil
}

// Analyze runs OCR over one image. Identical images share one AI call and
// one cached result.
func (s *ScanService) Analyze(ctx context.Context, encoded string) (*model.ImageAnalysis, error) {
	img, err := DecodeImage(encoded)
	if err != nil {
		return nil, err
	}
	key := contentHash(img.Data)
	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}
	// The shared call outlives any single caller; ai.timeout still bounds it.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(key, func() (interface{}, error) {
		res, err := s.ai.AnalyzeImage(flightCtx, img)
		if err != nil {
			return nil, err
		}
		s.cache.Add(key, res)
		return res, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			logutil.GetLogger(ctx).Error("analyze image failed", zap.String("mime", img.MIMEType), zap.Int("size", len(img.Data)), zap.Error(r.Err))
			return nil, r.Err
		}
		return r.Val.(*model.ImageAnalysis), nil
	}
}

type SaveScanInput struct {
	Item                model.ScannedItem
	OriginalImageBase64 string
}

type SaveScanResult struct {
	ID        string `json:"id"`
	MDPath    string `json:"mdPath"`
	ImagePath string `json:"imagePath"`
	ImageURL  string `json:"imageUrl"`
}

// Save stores the original image, an Obsidian style markdown note and the
// index entry for one scanned item.
func (s *ScanService) Save(ctx context.Context, in SaveScanInput) (*SaveScanResult, error) {
	item := in.Item
	if item.OwnerID == "" {
		return nil, fmt.Errorf("scannedItem.ownerId is required: %w", appErr.ErrInvalid)
	}
	if err := normalizeProblems(item.Meta.Problems); err != nil {
		return nil, err
	}
	img, err := DecodeImage(in.OriginalImageBase64)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if item.ID == "" {
		item.ID = fmt.Sprintf("%d", now.UnixMilli())
	}
	if item.Timestamp == 0 {
		item.Timestamp = now.UnixMilli()
	}
	if item.Meta.Subject == "" {
		item.Meta.Subject = "general"
	}
	if item.Meta.Type == "" {
		item.Meta.Type = model.DocNote
	}
	if item.Meta.HasIssues() {
		item.Meta.Type = model.DocWrongProblem
		item.Meta.KnowledgeStatus = model.KnowledgeUnmastered
	} else if item.Meta.KnowledgeStatus == "" {
		item.Meta.KnowledgeStatus = model.KnowledgeMastered
	}
	logger := logutil.GetLogger(ctx).With(zap.String("id", item.ID), zap.String("owner_id", item.OwnerID))

	imageKey := path.Join("images", timeutil.MonthDir(now), fmt.Sprintf("%s_%s.jpg", now.Format("02_150405"), shortID()))
	if err := s.files.Save(ctx, imageKey, bytes.NewReader(img.Data), int64(len(img.Data))); err != nil {
		logger.Error("store scanned image failed", zap.Error(err))
		return nil, fmt.Errorf("store image: %w", err)
	}
	item.ImagePath = imageKey
	item.ImageURL = s.files.URL(imageKey, "")
	item.Status = model.ProcessingCompleted

	userName := s.users.Name(item.OwnerID)
	md, err := buildObsidianMarkdown(&item, imageKey)
	if err != nil {
		return nil, err
	}
	mdKey := obsidianKey(&item, userName)
	if err := s.files.Save(ctx, mdKey, strings.NewReader(md), int64(len(md))); err != nil {
		logger.Error("store scanned markdown failed", zap.Error(err))
		return nil, fmt.Errorf("store markdown: %w", err)
	}

	raw, err := json.Marshal(&item)
	if err != nil {
		return nil, err
	}
	title := item.Meta.ChapterHint
	if title == "" {
		title = item.Meta.Subject
	}
	entry := &model.IndexEntry{
		ID:        item.ID,
		Type:      item.Meta.Type,
		OwnerID:   item.OwnerID,
		UserName:  userName,
		Subject:   item.Meta.Subject,
		Chapter:   item.Meta.ChapterHint,
		Title:     title,
		Timestamp: item.Timestamp,
		MDPath:    mdKey,
		ImagePath: imageKey,
		Data:      raw,
	}
	if err := s.index.Put(ctx, entry); err != nil {
		logger.Error("index scanned item failed", zap.Error(err))
		s.dropArtifacts(ctx, logger, imageKey, mdKey)
		return nil, err
	}
	logger.Info("scanned item saved", zap.String("md_path", mdKey), zap.String("image_path", imageKey))
	return &SaveScanResult{ID: item.ID, MDPath: mdKey, ImagePath: imageKey, ImageURL: item.ImageURL}, nil
}

// dropArtifacts removes stored files that no index entry points at.
func (s *ScanService) dropArtifacts(ctx context.Context, logger *zap.Logger, keys ...string) {
	for _, key := range keys {
		if err := s.files.Delete(ctx, key); err != nil {
			logger.Warn("remove orphaned scan file failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// normalizeProblems lowercases statuses in place and rejects unknown ones.
func normalizeProblems(problems []model.ProblemUnit) error {
	for i := range problems {
		st := model.ProblemStatus(strings.ToLower(strings.TrimSpace(string(problems[i].Status))))
		if st == "" {
			st = model.ProblemCorrect
		}
		if !st.Valid() {
			return fmt.Errorf("problem %s has unknown status %q: %w", problems[i].ID, problems[i].Status, appErr.ErrInvalid)
		}
		problems[i].Status = st
	}
	return nil
}

func obsidianKey(item *model.ScannedItem, userName string) string {
	category, ok := categoryDirs[item.Meta.Type]
	if !ok {
		category = "No_Problems"
	}
	date := time.UnixMilli(item.Timestamp).UTC().Format("2006-01-02")
	topic := item.Meta.ChapterHint
	if topic == "" {
		topic = item.Meta.Subject
	}
	name := fmt.Sprintf("%s_%s_%s.md", date, safeSegment(topic, "general"), shortID())
	return path.Join("obsidian", category, safeSegment(userName, model.SharedOwner), safeSegment(item.Meta.Subject, "general"), name)
}

type frontmatter struct {
	Type            model.DocType         `yaml:"type"`
	Subject         string                `yaml:"subject"`
	Chapter         string                `yaml:"chapter"`
	KnowledgeStatus model.KnowledgeStatus `yaml:"knowledge_status"`
	Owner           string                `yaml:"owner"`
	Created         string                `yaml:"created"`
	ImagePath       string                `yaml:"imagePath,omitempty"`
	ParentExamID    string                `yaml:"parentExamId,omitempty"`
	PageNumber      int                   `yaml:"pageNumber,omitempty"`
	TotalPages      int                   `yaml:"totalPages,omitempty"`
	ProblemsCount   int                   `yaml:"problems_count"`
	Tags            []string              `yaml:"tags"`
}

var statusLabels = map[model.ProblemStatus]string{
	model.ProblemCorrect:   "correct",
	model.ProblemWrong:     "wrong",
	model.ProblemCorrected: "corrected",
}

func buildObsidianMarkdown(item *model.ScannedItem, imagePath string) (string, error) {
	chapter := item.Meta.ChapterHint
	heading := chapter
	if heading == "" {
		heading = "general"
	}
	created := time.UnixMilli(item.Timestamp).UTC()
	fm := frontmatter{
		Type:            item.Meta.Type,
		Subject:         item.Meta.Subject,
		Chapter:         chapter,
		KnowledgeStatus: item.Meta.KnowledgeStatus,
		Owner:           item.OwnerID,
		Created:         created.Format(time.RFC3339),
		ImagePath:       imagePath,
		ParentExamID:    item.ParentExamID,
		PageNumber:      item.PageNumber,
		TotalPages:      item.TotalPages,
		ProblemsCount:   len(item.Meta.Problems),
		Tags:            []string{item.Meta.Subject, heading, string(item.Meta.Type)},
	}
	head, err := yaml.Marshal(&fm)
	if err != nil {
		return "", fmt.Errorf("encode frontmatter: %w", err)
	}
	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(head)
	sb.WriteString("---\n\n")
	fmt.Fprintf(&sb, "# %s - %s (%s)\n\n", item.Meta.Subject, heading, created.Format("2006-01-02"))
	if len(item.Meta.Problems) > 0 {
		sb.WriteString("## Problems\n")
		for i, p := range item.Meta.Problems {
			qn := p.QuestionNumber
			if qn == "" {
				qn = fmt.Sprintf("Q%d", i+1)
			}
			fmt.Fprintf(&sb, "\n### Problem %d: %s\n\n", i+1, qn)
			fmt.Fprintf(&sb, "**Question:**\n%s\n\n", p.Content)
			fmt.Fprintf(&sb, "**Student answer:**\n%s\n\n", orDefault(p.StudentAnswer, "no answer"))
			fmt.Fprintf(&sb, "**Teacher comment:**\n%s\n\n", orDefault(p.TeacherComment, "none"))
			fmt.Fprintf(&sb, "**Correction:**\n%s\n\n", orDefault(p.Correction, "not corrected"))
			fmt.Fprintf(&sb, "**Status:** %s\n", statusLabels[p.Status])
		}
		sb.WriteString("\n")
	}
	sb.WriteString("## Recognized content\n\n")
	sb.WriteString(item.RawMarkdown)
	sb.WriteString("\n")
	return sb.String(), nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

type ScannedItemMeta struct {
	Type    model.DocType `json:"type"`
	Subject string        `json:"subject"`
	Chapter string        `json:"chapter,omitempty"`
}

type ScannedItemSummary struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"ownerId"`
	UserName  string          `json:"userName"`
	Timestamp int64           `json:"timestamp"`
	MDPath    string          `json:"mdPath,omitempty"`
	ImagePath string          `json:"imagePath,omitempty"`
	ImageURL  string          `json:"imageUrl,omitempty"`
	Meta      ScannedItemMeta `json:"meta"`
}

type ScannedItemDetail struct {
	ScannedItemSummary
	Item     *model.ScannedItem `json:"item,omitempty"`
	Markdown string             `json:"markdown"`
	HTML     string             `json:"html,omitempty"`
}

func (s *ScanService) summary(e *model.IndexEntry) ScannedItemSummary {
	out := ScannedItemSummary{
		ID:        e.ID,
		OwnerID:   e.OwnerID,
		UserName:  e.UserName,
		Timestamp: e.Timestamp,
		MDPath:    e.MDPath,
		ImagePath: e.ImagePath,
		Meta:      ScannedItemMeta{Type: e.Type, Subject: e.Subject, Chapter: e.Chapter},
	}
	if e.ImagePath != "" {
		out.ImageURL = s.files.URL(e.ImagePath, "")
	}
	return out
}

func (s *ScanService) List(ctx context.Context, q model.IndexQuery) ([]ScannedItemSummary, error) {
	entries, err := s.index.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]ScannedItemSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.summary(e))
	}
	return out, nil
}

// Get returns one entry with its markdown note, rendered to HTML when asked.
func (s *ScanService) Get(ctx context.Context, id string, renderHTML bool) (*ScannedItemDetail, error) {
	e, err := s.index.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out := &ScannedItemDetail{ScannedItemSummary: s.summary(e)}
	if len(e.Data) > 0 && e.Type != model.DocTextbook {
		var item model.ScannedItem
		if err := json.Unmarshal(e.Data, &item); err == nil {
			out.Item = &item
		}
	}
	if e.MDPath == "" {
		return out, nil
	}
	rc, err := s.files.Open(ctx, e.MDPath)
	if err != nil {
		return nil, fmt.Errorf("open markdown %s: %w", e.MDPath, err)
	}
	defer func() { _ = rc.Close() }()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}
	out.Markdown = string(raw)
	if renderHTML {
		var buf bytes.Buffer
		if err := s.md.Convert(stripFrontmatter(raw), &buf); err != nil {
			return nil, fmt.Errorf("render markdown: %w", err)
		}
		out.HTML = buf.String()
	}
	return out, nil
}

func stripFrontmatter(raw []byte) []byte {
	if !bytes.HasPrefix(raw, []byte("---\n")) {
		return raw
	}
	rest := raw[4:]
	end := bytes.Index(rest, []byte("\n---\n"))
	if end < 0 {
		return raw
	}
	return rest[end+5:]
}
