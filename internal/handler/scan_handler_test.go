package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/famlearn/internal/ai"
	"github.com/xxxsen/famlearn/internal/model"
	"github.com/xxxsen/famlearn/internal/service"
)

func TestScan_AnalyzeSaveListGet(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.postJSON(t, "/api/analyze-image", map[string]string{"base64Image": pngDataURL()}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var analysis model.ImageAnalysis
	decodeData(t, body, &analysis)
	require.Equal(t, model.DocWrongProblem, analysis.Meta.Type)
	require.Equal(t, model.KnowledgeUnmastered, analysis.Meta.KnowledgeStatus)

	item := model.ScannedItem{OwnerID: "child_1", RawMarkdown: analysis.Text, Meta: analysis.Meta}
	rec, body = env.postJSON(t, "/api/save-scanned-item", map[string]interface{}{
		"scannedItem":         item,
		"originalImageBase64": pngDataURL(),
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var saved service.SaveScanResult
	decodeData(t, body, &saved)
	require.True(t, strings.HasPrefix(saved.MDPath, "obsidian/Wrong_Problems/Alice/math/"), saved.MDPath)
	require.True(t, strings.HasPrefix(saved.ImageURL, "/api/files/images/"), saved.ImageURL)

	rec, _ = env.get(t, saved.ImageURL, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, pngHeader, rec.Body.Bytes())

	rec, body = env.get(t, "/api/scanned-items?ownerId=child_1&type=wrong_problem", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []service.ScannedItemSummary
	decodeData(t, body, &list)
	require.Len(t, list, 1)
	require.Equal(t, saved.ID, list[0].ID)
	require.Equal(t, "Alice", list[0].UserName)

	rec, body = env.get(t, "/api/scanned-items/"+saved.ID+"?render=html", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail service.ScannedItemDetail
	decodeData(t, body, &detail)
	require.Contains(t, detail.Markdown, "knowledge_status: unmastered")
	require.Contains(t, detail.HTML, "<h1>")

	rec, _ = env.get(t, "/api/scanned-items/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScan_RejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name   string
		path   string
		body   interface{}
		status int
	}{
		{name: "missing image", path: "/api/analyze-image", body: map[string]string{}, status: http.StatusBadRequest},
		{name: "not an image", path: "/api/analyze-image", body: map[string]string{"base64Image": "aGVsbG8gd29ybGQ="}, status: http.StatusBadRequest},
		{name: "missing item", path: "/api/save-scanned-item", body: map[string]string{"originalImageBase64": pngDataURL()}, status: http.StatusBadRequest},
		{
			name: "unknown problem status",
			path: "/api/save-scanned-item",
			body: map[string]interface{}{
				"scannedItem": model.ScannedItem{OwnerID: "child_1", Meta: model.StructuredMeta{
					Problems: []model.ProblemUnit{{ID: "p1", Status: "maybe"}},
				}},
				"originalImageBase64": pngDataURL(),
			},
			status: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.postJSON(t, tt.path, tt.body, "")
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			require.False(t, body.Success)
			require.NotEmpty(t, body.Error)
		})
	}
	require.Zero(t, env.provider.calls)
}

func TestScan_AIErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "auth", err: &ai.StatusError{Code: 403, Message: "forbidden"}, status: http.StatusForbidden},
		{name: "connectivity", err: errString("fetch failed: connection reset"), status: http.StatusServiceUnavailable},
		{name: "quota", err: &ai.StatusError{Code: 429, Message: "slow down"}, status: http.StatusTooManyRequests},
		{name: "generic", err: &ai.StatusError{Code: 500, Message: "boom"}, status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.provider.fail(tt.err)
			rec, body := env.postJSON(t, "/api/analyze-image", map[string]string{"base64Image": pngDataURL()}, "")
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			require.False(t, body.Success)
		})
	}
}

type errString string

func (e errString) Error() string {
	return string(e)
}
