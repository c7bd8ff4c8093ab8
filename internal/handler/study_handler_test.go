package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/famlearn/internal/ai"
	"github.com/xxxsen/famlearn/internal/pkg/errcode"
	"github.com/xxxsen/famlearn/internal/service"
)

func TestStudy_GenerateCourseware(t *testing.T) {
	env := newTestEnv(t)
	rec, body := env.postJSON(t, "/api/generate-courseware", map[string]string{
		"bookTitle": "Fun Math", "chapter": "Fractions", "studentName": "Alice",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out service.StudyMaterial
	decodeData(t, body, &out)
	require.Contains(t, out.Content, "Fractions are parts")

	rec, _ = env.postJSON(t, "/api/generate-courseware", map[string]string{"bookTitle": "Fun Math"}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStudy_GenerateAssessmentUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.provider.fail(ai.ErrUnavailable)
	rec, body := env.postJSON(t, "/api/generate-assessment", map[string]interface{}{
		"bookTitle": "Fun Math", "subject": "math", "chapter": "Fractions", "studentName": "Alice",
	}, "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.EqualValues(t, errcode.ErrAIUnavailable, body.Code)
}
