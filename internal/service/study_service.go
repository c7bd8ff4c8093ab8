package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xxxsen/famlearn/internal/ai"
	"github.com/xxxsen/famlearn/internal/filestore"
	"github.com/xxxsen/famlearn/internal/index"
	"github.com/xxxsen/famlearn/internal/model"
	appErr "github.com/xxxsen/famlearn/internal/pkg/errors"
)

const (
	materialCourseware = "courseware"
	materialQuiz       = "quiz"

	defaultHistoryLimit = 20
)

type CoursewareRequest struct {
	BookTitle   string `json:"bookTitle"`
	Chapter     string `json:"chapter"`
	StudentName string `json:"studentName"`
	Subject     string `json:"subject,omitempty"`
	OwnerID     string `json:"ownerId,omitempty"`
	Save        bool   `json:"save,omitempty"`
}

type AssessmentRequest struct {
	BookTitle         string              `json:"bookTitle"`
	Subject           string              `json:"subject"`
	Chapter           string              `json:"chapter"`
	StudentName       string              `json:"studentName"`
	WrongProblems     []model.ScannedItem `json:"wrongProblems"`
	CoursewareContent string              `json:"coursewareContent"`
	OwnerID           string              `json:"ownerId,omitempty"`
	Save              bool                `json:"save,omitempty"`
}

type StudyMaterial struct {
	Content string `json:"content"`
	ID      string `json:"id,omitempty"`
	MDPath  string `json:"mdPath,omitempty"`
}

type StudyService struct {
	ai    *ai.Manager
	files filestore.Store
	index index.Store
	users Users
	now   func() time.Time
}

func NewStudyService(manager *ai.Manager, files filestore.Store, idx index.Store, users Users) *StudyService {
	return &StudyService{ai: manager, files: files, index: idx, users: users, now: time.Now}
}

func (s *StudyService) GenerateCourseware(ctx context.Context, req CoursewareRequest) (*StudyMaterial, error) {
	if strings.TrimSpace(req.BookTitle) == "" || strings.TrimSpace(req.Chapter) == "" {
		return nil, fmt.Errorf("bookTitle and chapter are required: %w", appErr.ErrInvalid)
	}
	content, err := s.ai.GenerateCourseware(ctx, ai.CoursewareInput{
		BookTitle:   req.BookTitle,
		Chapter:     req.Chapter,
		StudentName: s.studentName(req.StudentName, req.OwnerID),
	})
	if err != nil {
		logutil.GetLogger(ctx).Error("generate courseware failed", zap.String("book", req.BookTitle), zap.String("chapter", req.Chapter), zap.Error(err))
		return nil, err
	}
	out := &StudyMaterial{Content: content}
	if !req.Save {
		return out, nil
	}
	if err := s.persist(ctx, out, req.OwnerID, req.Subject, req.BookTitle, req.Chapter, materialCourseware); err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateAssessment builds a quiz. Without explicit wrong problems the owner's
// recorded mistakes for the subject are used as context.
func (s *StudyService) GenerateAssessment(ctx context.Context, req AssessmentRequest) (*StudyMaterial, error) {
	if strings.TrimSpace(req.BookTitle) == "" || strings.TrimSpace(req.Chapter) == "" {
		return nil, fmt.Errorf("bookTitle and chapter are required: %w", appErr.ErrInvalid)
	}
	wrong := req.WrongProblems
	if len(wrong) == 0 && req.OwnerID != "" {
		wrong = s.history(ctx, req.OwnerID, req.Subject)
	}
	content, err := s.ai.GenerateAssessment(ctx, ai.AssessmentInput{
		BookTitle:         req.BookTitle,
		Subject:           req.Subject,
		Chapter:           req.Chapter,
		StudentName:       s.studentName(req.StudentName, req.OwnerID),
		WrongProblems:     wrong,
		CoursewareContent: req.CoursewareContent,
	})
	if err != nil {
		logutil.GetLogger(ctx).Error("generate assessment failed", zap.String("book", req.BookTitle), zap.String("chapter", req.Chapter), zap.Error(err))
		return nil, err
	}
	out := &StudyMaterial{Content: content}
	if !req.Save {
		return out, nil
	}
	if err := s.persist(ctx, out, req.OwnerID, req.Subject, req.BookTitle, req.Chapter, materialQuiz); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *StudyService) studentName(name, ownerID string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	if ownerID != "" {
		return s.users.Name(ownerID)
	}
	return "student"
}

func (s *StudyService) history(ctx context.Context, ownerID, subject string) []model.ScannedItem {
	entries, err := s.index.Query(ctx, model.IndexQuery{
		OwnerID: ownerID,
		Subject: subject,
		Type:    model.DocWrongProblem,
		Limit:   defaultHistoryLimit,
	})
	if err != nil {
		logutil.GetLogger(ctx).Warn("load wrong problem history failed", zap.String("owner_id", ownerID), zap.Error(err))
		return nil
	}
	items := make([]model.ScannedItem, 0, len(entries))
	for _, e := range entries {
		var item model.ScannedItem
		if len(e.Data) == 0 || json.Unmarshal(e.Data, &item) != nil {
			continue
		}
		items = append(items, item)
	}
	return items
}

type studyFrontmatter struct {
	Type    model.DocType `yaml:"type"`
	Kind    string        `yaml:"kind"`
	Subject string        `yaml:"subject"`
	Book    string        `yaml:"book"`
	Chapter string        `yaml:"chapter"`
	Owner   string        `yaml:"owner"`
	Created string        `yaml:"created"`
	Tags    []string      `yaml:"tags"`
}

func (s *StudyService) persist(ctx context.Context, out *StudyMaterial, ownerID, subject, book, chapter, kind string) error {
	if ownerID == "" {
		ownerID = model.SharedOwner
	}
	if subject == "" {
		subject = "general"
	}
	now := s.now()
	userName := s.users.Name(ownerID)
	head, err := yaml.Marshal(&studyFrontmatter{
		Type:    model.DocCourseware,
		Kind:    kind,
		Subject: subject,
		Book:    book,
		Chapter: chapter,
		Owner:   ownerID,
		Created: now.UTC().Format(time.RFC3339),
		Tags:    []string{subject, chapter, kind},
	})
	if err != nil {
		return fmt.Errorf("encode frontmatter: %w", err)
	}
	doc := "---\n" + string(head) + "---\n\n" + out.Content + "\n"
	name := fmt.Sprintf("%s_%s_%s_%s.md", now.UTC().Format("2006-01-02"), safeSegment(chapter, "chapter"), kind, shortID())
	key := path.Join("obsidian", categoryDirs[model.DocCourseware], safeSegment(userName, model.SharedOwner), safeSegment(subject, "general"), name)
	if err := s.files.Save(ctx, key, strings.NewReader(doc), int64(len(doc))); err != nil {
		return fmt.Errorf("store %s: %w", kind, err)
	}
	id := fmt.Sprintf("%s_%d_%s", kind, now.UnixMilli(), randomBase36(6))
	if err := s.index.Put(ctx, &model.IndexEntry{
		ID:        id,
		Type:      model.DocCourseware,
		OwnerID:   ownerID,
		UserName:  userName,
		Subject:   subject,
		Chapter:   chapter,
		Title:     book + " - " + chapter,
		Timestamp: now.UnixMilli(),
		MDPath:    key,
	}); err != nil {
		return err
	}
	out.ID = id
	out.MDPath = key
	logutil.GetLogger(ctx).Info("study material saved", zap.String("id", id), zap.String("kind", kind), zap.String("md_path", key))
	return nil
}
