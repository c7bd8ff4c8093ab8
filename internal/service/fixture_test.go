package service

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/famlearn/internal/ai"
	"github.com/xxxsen/famlearn/internal/config"
	"github.com/xxxsen/famlearn/internal/filestore"
	"github.com/xxxsen/famlearn/internal/index"
)

type fakeProvider struct {
	mu    sync.Mutex
	reqs  []*ai.Request
	reply func(req *ai.Request) (string, error)
	// wait, when set, runs before reply and sees the call's context
	wait func(ctx context.Context) error
}

func (f *fakeProvider) Name() string {
	return "fake"
}

func (f *fakeProvider) Generate(ctx context.Context, model string, req *ai.Request) (string, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.wait != nil {
		if err := f.wait(ctx); err != nil {
			return "", err
		}
	}
	if f.reply == nil {
		return "ok", nil
	}
	return f.reply(req)
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func (f *fakeProvider) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reqs) == 0 {
		return ""
	}
	return f.reqs[len(f.reqs)-1].Prompt
}

type fixture struct {
	root     string
	files    filestore.Store
	index    *index.JSONStore
	provider *fakeProvider
	manager  *ai.Manager
	users    Users
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	files, err := filestore.New(config.FileStoreConfig{
		Type: "local",
		Data: map[string]interface{}{"dir": filepath.Join(root, "store")},
	})
	require.NoError(t, err)
	idx, err := index.NewJSONStore(filepath.Join(root, "index", "index.json"))
	require.NoError(t, err)
	provider := &fakeProvider{}
	return &fixture{
		root:     root,
		files:    files,
		index:    idx,
		provider: provider,
		manager:  ai.NewManager(provider, ai.ManagerConfig{Model: "test-model"}),
		users:    Users{"child_1": "Alice", "shared": "Family"},
	}
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

func pngBase64() string {
	return base64.StdEncoding.EncodeToString(pngHeader)
}
