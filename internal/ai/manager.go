package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/famlearn/internal/model"
	"github.com/xxxsen/famlearn/internal/parser"
)

const (
	defaultSampleChars     = 3000
	coursewareContextChars = 1000
	defaultSubject         = "general"
)

type ManagerConfig struct {
	Model         string
	VisionModel   string
	Timeout       int
	MaxInputChars int
}

type Manager struct {
	provider IProvider
	cfg      ManagerConfig
}

func NewManager(provider IProvider, cfg ManagerConfig) *Manager {
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = defaultSampleChars
	}
	return &Manager{provider: provider, cfg: cfg}
}

type rawAnalysis struct {
	Type            model.DocType       `json:"type"`
	Subject         string              `json:"subject"`
	ChapterHint     string              `json:"chapter_hint"`
	ContentMarkdown string              `json:"content_markdown"`
	Problems        []model.ProblemUnit `json:"problems"`
}

func (m *Manager) AnalyzeImage(ctx context.Context, img InlineData) (*model.ImageAnalysis, error) {
	out, err := m.generate(ctx, m.cfg.VisionModel, &Request{
		System:      ocrSystemPrompt,
		Prompt:      ocrUserPrompt,
		Images:      []InlineData{img},
		Schema:      ocrSchema,
		Temperature: Temperature(0.1),
	})
	if err != nil {
		return nil, err
	}
	var raw rawAnalysis
	if err := decodeJSON(out, &raw); err != nil {
		return nil, fmt.Errorf("parse image analysis: %w", err)
	}
	return normalizeAnalysis(&raw), nil
}

// normalizeAnalysis reclassifies a page as a wrong problem sheet as soon as one
// problem is wrong or corrected.
func normalizeAnalysis(raw *rawAnalysis) *model.ImageAnalysis {
	problems := make([]model.ProblemUnit, 0, len(raw.Problems))
	for i, p := range raw.Problems {
		p.Status = model.ProblemStatus(strings.ToLower(strings.TrimSpace(string(p.Status))))
		if !p.Status.Valid() {
			p.Status = model.ProblemCorrect
		}
		if p.ID == "" {
			p.ID = fmt.Sprintf("p%d", i+1)
		}
		problems = append(problems, p)
	}
	meta := model.StructuredMeta{
		Type:        raw.Type,
		Subject:     strings.TrimSpace(raw.Subject),
		ChapterHint: strings.TrimSpace(raw.ChapterHint),
		Problems:    problems,
	}
	if meta.Subject == "" {
		meta.Subject = defaultSubject
	}
	if meta.HasIssues() {
		meta.Type = model.DocWrongProblem
		meta.KnowledgeStatus = model.KnowledgeUnmastered
	} else {
		meta.KnowledgeStatus = model.KnowledgeMastered
	}
	return &model.ImageAnalysis{Text: raw.ContentMarkdown, Meta: meta}
}

func (m *Manager) ExtractBookMetadata(ctx context.Context, fileName string, content string, toc []*model.ChapterNode) (*model.BookMetadata, error) {
	sample := parser.Summary(content, m.cfg.MaxInputChars)
	prompt := fmt.Sprintf(bookMetadataPrompt, fileName, sample, formatTOC(toc))
	out, err := m.generate(ctx, m.cfg.Model, &Request{
		Prompt:      prompt,
		Schema:      bookMetadataSchema,
		Temperature: Temperature(0.1),
	})
	if err != nil {
		return nil, err
	}
	var meta model.BookMetadata
	if err := decodeJSON(out, &meta); err != nil {
		return nil, fmt.Errorf("parse book metadata: %w", err)
	}
	meta.Title = strings.TrimSpace(meta.Title)
	return &meta, nil
}

type CoursewareInput struct {
	BookTitle   string
	Chapter     string
	StudentName string
}

func (m *Manager) GenerateCourseware(ctx context.Context, in CoursewareInput) (string, error) {
	prompt := fmt.Sprintf(coursewarePrompt, in.StudentName, in.BookTitle, in.Chapter)
	return m.generate(ctx, m.cfg.Model, &Request{
		System:      coursewareSystemPrompt,
		Prompt:      prompt,
		Temperature: Temperature(0.7),
	})
}

type AssessmentInput struct {
	BookTitle         string
	Subject           string
	Chapter           string
	StudentName       string
	WrongProblems     []model.ScannedItem
	CoursewareContent string
}

func (m *Manager) GenerateAssessment(ctx context.Context, in AssessmentInput) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Student: %s\nTextbook: %s\nSubject: %s\nChapter: %s\n", in.StudentName, in.BookTitle, in.Subject, in.Chapter)
	if history := formatWrongProblems(in.WrongProblems); history != "" {
		sb.WriteString("\nPrevious mistakes:\n")
		sb.WriteString(history)
		sb.WriteString("\n")
	}
	if courseware := strings.TrimSpace(in.CoursewareContent); courseware != "" {
		sb.WriteString("\nCourseware summary:\n")
		sb.WriteString(truncateRunes(courseware, coursewareContextChars))
		sb.WriteString("\n")
	}
	sb.WriteString(assessmentInstructions)
	return m.generate(ctx, m.cfg.Model, &Request{
		System:      assessmentSystemPrompt,
		Prompt:      sb.String(),
		Temperature: Temperature(0.7),
	})
}

func formatWrongProblems(items []model.ScannedItem) string {
	lines := make([]string, 0)
	n := 0
	for _, item := range items {
		for _, p := range item.Meta.Problems {
			if p.Status != model.ProblemWrong && p.Status != model.ProblemCorrected {
				continue
			}
			n++
			content := p.Content
			if content == "" {
				content = "(question not recognized)"
			}
			answer := p.StudentAnswer
			if answer == "" {
				answer = "no answer"
			}
			lines = append(lines, fmt.Sprintf("%d. %s\n   student answer: %s\n   correction: %s\n   comment: %s",
				n, content, answer, p.Correction, p.TeacherComment))
		}
	}
	return strings.Join(lines, "\n")
}

func formatTOC(toc []*model.ChapterNode) string {
	if len(toc) == 0 {
		return "(none detected)"
	}
	var sb strings.Builder
	var walk func(nodes []*model.ChapterNode)
	walk = func(nodes []*model.ChapterNode) {
		for _, n := range nodes {
			level := n.Level
			if level < 1 {
				level = 1
			}
			sb.WriteString(strings.Repeat("  ", level-1))
			sb.WriteString(n.Title)
			sb.WriteString("\n")
			walk(n.Children)
		}
	}
	walk(toc)
	return sb.String()
}

func (m *Manager) generate(ctx context.Context, modelName string, req *Request) (string, error) {
	if m.provider == nil {
		return "", ErrUnavailable
	}
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	resp, err := m.provider.Generate(ctx, modelName, req)
	if err != nil {
		return "", Classify(err)
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", &Error{Kind: KindGeneric, Err: fmt.Errorf("empty ai response")}
	}
	return text, nil
}

func (m *Manager) MaxInputChars() int {
	return m.cfg.MaxInputChars
}

func decodeJSON(output string, dst interface{}) error {
	clean := strings.TrimSpace(output)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)
	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start >= 0 && end > start {
		clean = clean[start : end+1]
	}
	return json.Unmarshal([]byte(clean), dst)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
