package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/famlearn/internal/ai"
	"github.com/xxxsen/famlearn/internal/config"
	"github.com/xxxsen/famlearn/internal/filestore"
	"github.com/xxxsen/famlearn/internal/index"
	"github.com/xxxsen/famlearn/internal/middleware"
	"github.com/xxxsen/famlearn/internal/pkg/password"
	"github.com/xxxsen/famlearn/internal/repo"
	"github.com/xxxsen/famlearn/internal/service"
)

const (
	bookReply = `{"title":"Fun Math","subject":"math","grade":"3","tags":["numbers"]}`
	ocrReply  = `{"type":"homework","subject":"math","chapter_hint":"Fractions","content_markdown":"1/2 + 1/4 = 2/6",` +
		`"problems":[{"id":"p1","questionNumber":"1","content":"1/2 + 1/4","studentAnswer":"2/6","status":"wrong"}]}`
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeProvider) Name() string {
	return "fake"
}

func (f *fakeProvider) Generate(ctx context.Context, model string, req *ai.Request) (string, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	f.mu.Unlock()
	switch {
	case err != nil:
		return "", err
	case len(req.Images) > 0:
		return ocrReply, nil
	case req.Schema != nil:
		return bookReply, nil
	default:
		return "# Lesson\n\nFractions are parts of a whole.", nil
	}
}

func (f *fakeProvider) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type testEnv struct {
	engine   *gin.Engine
	provider *fakeProvider
	uploads  config.UploadConfig
	index    *index.JSONStore
	files    filestore.Store
}

type envOption func(deps *RouterDeps, auth *service.AuthService)

func withAuth() envOption {
	return func(deps *RouterDeps, auth *service.AuthService) {
		deps.Verifier = auth
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	root := t.TempDir()
	uploadCfg := config.UploadConfig{
		TempDir:        filepath.Join(root, "uploads", "temp"),
		FilesDir:       filepath.Join(root, "uploads", "files"),
		MaxChunkSize:   1 << 20,
		MaxTotalChunks: 10000,
		RetentionHours: 24,
		MaxBookSize:    1 << 20,
	}
	files, err := filestore.New(config.FileStoreConfig{
		Type: "local",
		Data: map[string]interface{}{"dir": filepath.Join(root, "store")},
	})
	require.NoError(t, err)
	idx, err := index.NewJSONStore(filepath.Join(root, "metadata.json"))
	require.NoError(t, err)

	provider := &fakeProvider{}
	manager := ai.NewManager(provider, ai.ManagerConfig{Model: "test-model"})
	users := service.Users{"child_1": "Alice", "shared": "Family"}
	adminHash, err := password.Hash("4321")
	require.NoError(t, err)

	uploads := service.NewUploadService(uploadCfg, repo.NewMemoryUploadSessionStore())
	books := service.NewBookService(service.BookServiceConfig{FilesDir: uploadCfg.FilesDir, MaxBookSize: uploadCfg.MaxBookSize}, manager, files, idx, users)
	scans := service.NewScanService(service.ScanServiceConfig{}, manager, files, idx, users)
	study := service.NewStudyService(manager, files, idx, users)
	auth := service.NewAuthService(service.AuthServiceConfig{
		Secret:        []byte("test-secret"),
		TTL:           time.Hour,
		StudentPIN:    "0000",
		StudentUserID: "child_1",
		AdminPINHash:  adminHash,
	}, repo.NewMemoryAuthStore())

	deps := RouterDeps{
		Auth:    NewAuthHandler(auth),
		Uploads: NewUploadHandler(uploads, books, uploadCfg.MaxChunkSize),
		Books:   NewBookHandler(books, uploadCfg.MaxBookSize),
		Scans:   NewScanHandler(scans),
		Study:   NewStudyHandler(study),
		Files:   NewFileHandler(files),
	}
	for _, opt := range opts {
		opt(&deps, auth)
	}
	engine := gin.New()
	engine.Use(middleware.RequestID())
	RegisterRoutes(engine.Group("/api"), deps)
	return &testEnv{engine: engine, provider: provider, uploads: uploadCfg, index: idx, files: files}
}

type apiBody struct {
	Success bool            `json:"success"`
	Code    uint32          `json:"code"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, apiBody) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	var body apiBody
	if rec.Header().Get("Content-Type") != "" && bytes.HasPrefix(bytes.TrimSpace(rec.Body.Bytes()), []byte("{")) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	}
	return rec, body
}

func (e *testEnv) postJSON(t *testing.T, path string, in interface{}, token string) (*httptest.ResponseRecorder, apiBody) {
	t.Helper()
	payload, err := json.Marshal(in)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.do(t, req)
}

func (e *testEnv) get(t *testing.T, path, token string) (*httptest.ResponseRecorder, apiBody) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.do(t, req)
}

func multipartRequest(t *testing.T, path string, fields map[string]string, fileField, fileName string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		part, err := mw.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = io.Copy(part, bytes.NewReader(data))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeData(t *testing.T, body apiBody, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body.Data, out))
}

func pngDataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader)
}

func jsonUnmarshal(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}
