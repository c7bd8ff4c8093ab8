package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/famlearn/internal/model"
)

type fakeProvider struct {
	reply   string
	err     error
	lastReq *Request
	model   string
	wait    time.Duration
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, modelName string, req *Request) (string, error) {
	f.lastReq = req
	f.model = modelName
	if f.wait > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.wait):
		}
	}
	return f.reply, f.err
}

func TestAnalyzeImage_NormalizesWrongProblems(t *testing.T) {
	fp := &fakeProvider{reply: "```json\n" + `{
		"type": "homework",
		"subject": "math",
		"content_markdown": "# page",
		"problems": [
			{"content": "1+1", "status": "correct"},
			{"id": "q2", "content": "2+2", "status": "WRONG"}
		]
	}` + "\n```"}
	m := NewManager(fp, ManagerConfig{Model: "text", VisionModel: "vision"})

	res, err := m.AnalyzeImage(context.Background(), InlineData{MIMEType: "image/png", Data: []byte("img")})
	require.NoError(t, err)
	require.Equal(t, "vision", fp.model)
	require.Len(t, fp.lastReq.Images, 1)
	require.NotNil(t, fp.lastReq.Schema)
	require.Equal(t, "# page", res.Text)
	require.Equal(t, model.DocWrongProblem, res.Meta.Type)
	require.Equal(t, model.KnowledgeUnmastered, res.Meta.KnowledgeStatus)
	require.Equal(t, "p1", res.Meta.Problems[0].ID)
	require.Equal(t, model.ProblemWrong, res.Meta.Problems[1].Status)
}

func TestAnalyzeImage_AllCorrectIsMastered(t *testing.T) {
	fp := &fakeProvider{reply: `{"type": "note", "subject": "", "content_markdown": "x", "problems": [{"content": "a", "status": "correct"}]}`}
	m := NewManager(fp, ManagerConfig{Model: "m"})

	res, err := m.AnalyzeImage(context.Background(), InlineData{MIMEType: "image/jpeg", Data: []byte("img")})
	require.NoError(t, err)
	require.Equal(t, model.DocNote, res.Meta.Type)
	require.Equal(t, model.KnowledgeMastered, res.Meta.KnowledgeStatus)
	require.Equal(t, "general", res.Meta.Subject)
}

func TestAnalyzeImage_CorrectedCountsAsIssue(t *testing.T) {
	fp := &fakeProvider{reply: `{"type": "exam_paper", "subject": "english", "content_markdown": "x", "problems": [{"content": "a", "status": "corrected"}]}`}
	m := NewManager(fp, ManagerConfig{Model: "m"})

	res, err := m.AnalyzeImage(context.Background(), InlineData{MIMEType: "image/jpeg", Data: []byte("img")})
	require.NoError(t, err)
	require.Equal(t, model.DocWrongProblem, res.Meta.Type)
}

func TestAnalyzeImage_BadJSON(t *testing.T) {
	m := NewManager(&fakeProvider{reply: "sorry, I cannot"}, ManagerConfig{Model: "m"})
	_, err := m.AnalyzeImage(context.Background(), InlineData{})
	require.Error(t, err)
}

func TestExtractBookMetadata_SamplesContent(t *testing.T) {
	fp := &fakeProvider{reply: `{"title": " Math Grade 3 ", "subject": "math", "category": "textbook"}`}
	m := NewManager(fp, ManagerConfig{Model: "m", MaxInputChars: 10})

	toc := []*model.ChapterNode{{Title: "Chapter 1 Numbers", Level: 1, Children: []*model.ChapterNode{{Title: "1.1 Counting", Level: 2}}}}
	content := strings.Repeat("数", 50) + strings.Repeat("尾", 50)
	meta, err := m.ExtractBookMetadata(context.Background(), "math.pdf", content, toc)
	require.NoError(t, err)
	require.Equal(t, "Math Grade 3", meta.Title)
	require.Contains(t, fp.lastReq.Prompt, strings.Repeat("数", 5))
	require.NotContains(t, fp.lastReq.Prompt, strings.Repeat("数", 6))
	require.Contains(t, fp.lastReq.Prompt, strings.Repeat("尾", 5))
	require.NotContains(t, fp.lastReq.Prompt, strings.Repeat("尾", 6))
	require.Contains(t, fp.lastReq.Prompt, "  1.1 Counting")
}

func TestGenerateAssessment_IncludesOnlyMistakes(t *testing.T) {
	fp := &fakeProvider{reply: "# quiz"}
	m := NewManager(fp, ManagerConfig{Model: "m"})

	items := []model.ScannedItem{{Meta: model.StructuredMeta{Problems: []model.ProblemUnit{
		{Content: "right one", Status: model.ProblemCorrect},
		{Content: "wrong one", Status: model.ProblemWrong},
		{Content: "fixed one", Status: model.ProblemCorrected},
	}}}}
	out, err := m.GenerateAssessment(context.Background(), AssessmentInput{
		BookTitle:         "Math",
		Subject:           "math",
		Chapter:           "1",
		StudentName:       "Amy",
		WrongProblems:     items,
		CoursewareContent: strings.Repeat("c", 1500),
	})
	require.NoError(t, err)
	require.Equal(t, "# quiz", out)
	require.Contains(t, fp.lastReq.Prompt, "wrong one")
	require.Contains(t, fp.lastReq.Prompt, "fixed one")
	require.NotContains(t, fp.lastReq.Prompt, "right one")
	require.Contains(t, fp.lastReq.Prompt, strings.Repeat("c", 1000))
	require.NotContains(t, fp.lastReq.Prompt, strings.Repeat("c", 1001))
}

func TestGenerate_Timeout(t *testing.T) {
	fp := &fakeProvider{reply: "late", wait: 3 * time.Second}
	m := NewManager(fp, ManagerConfig{Model: "m", Timeout: 1})
	_, err := m.GenerateCourseware(context.Background(), CoursewareInput{BookTitle: "b", Chapter: "c", StudentName: "s"})
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.Equal(t, KindConnectivity, Classify(err).Kind)
}

func TestGenerate_EmptyAndUnconfigured(t *testing.T) {
	m := NewManager(&fakeProvider{reply: "  "}, ManagerConfig{Model: "m"})
	_, err := m.GenerateCourseware(context.Background(), CoursewareInput{})
	require.Error(t, err)

	m = NewManager(nil, ManagerConfig{Model: "m"})
	_, err = m.GenerateCourseware(context.Background(), CoursewareInput{})
	require.ErrorIs(t, err, ErrUnavailable)
}
