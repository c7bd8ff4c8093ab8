package repo

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/famlearn/internal/config"
	"github.com/xxxsen/famlearn/internal/index"
	"github.com/xxxsen/famlearn/internal/model"
	appErr "github.com/xxxsen/famlearn/internal/pkg/errors"
)

var (
	_ index.Store        = (*IndexRepo)(nil)
	_ UploadSessionStore = (*UploadSessionRepo)(nil)
	_ UploadSessionStore = (*MemoryUploadSessionStore)(nil)
	_ AuthStore          = (*AuthRepo)(nil)
	_ AuthStore          = (*MemoryAuthStore)(nil)
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "db", "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, ApplyMigrations(db))
	// applying twice is a no-op
	require.NoError(t, ApplyMigrations(db))
	return db
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "mysql"})
	require.Error(t, err)
}

func TestUploadSessionStores(t *testing.T) {
	stores := map[string]UploadSessionStore{
		"sql":    NewUploadSessionRepo(openTestDB(t)),
		"memory": NewMemoryUploadSessionStore(),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := store.GetUploadSession(ctx, "f1")
			require.ErrorIs(t, err, appErr.ErrNotFound)

			s := &model.UploadSession{FileID: "f1", FileName: "a.pdf", OwnerID: "child_1", TotalChunks: 3, Received: []int{0, 2}, Status: model.UploadPending, Ctime: 10, Mtime: 10}
			require.NoError(t, store.SaveUploadSession(ctx, s))
			s.Received = append(s.Received, 1)
			s.Status = model.UploadMerged
			s.FilePath = "files/x.pdf"
			s.Mtime = 20
			s.Ctime = 99
			require.NoError(t, store.SaveUploadSession(ctx, s))

			got, err := store.GetUploadSession(ctx, "f1")
			require.NoError(t, err)
			require.Equal(t, []int{0, 2, 1}, got.Received)
			require.Equal(t, model.UploadMerged, got.Status)
			require.Equal(t, "files/x.pdf", got.FilePath)
			require.Equal(t, int64(10), got.Ctime)
			require.Equal(t, int64(20), got.Mtime)

			require.NoError(t, store.SaveUploadSession(ctx, &model.UploadSession{FileID: "old", Status: model.UploadPending, Mtime: 5}))
			require.NoError(t, store.SaveUploadSession(ctx, &model.UploadSession{FileID: "new", Status: model.UploadPending, Mtime: 50}))
			n, err := store.DeleteStaleUploadSessions(ctx, 30)
			require.NoError(t, err)
			require.Equal(t, int64(1), n)
			_, err = store.GetUploadSession(ctx, "old")
			require.ErrorIs(t, err, appErr.ErrNotFound)
			_, err = store.GetUploadSession(ctx, "f1")
			require.NoError(t, err)

			require.NoError(t, store.DeleteUploadSession(ctx, "new"))
			_, err = store.GetUploadSession(ctx, "new")
			require.ErrorIs(t, err, appErr.ErrNotFound)
		})
	}
}

func TestAuthStores(t *testing.T) {
	stores := map[string]AuthStore{
		"sql":    NewAuthRepo(openTestDB(t)),
		"memory": NewMemoryAuthStore(),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.CreateSession(ctx, &model.AuthSession{ID: "s1", UserID: "child_1", Role: model.RoleStudent, Ctime: 1, Expire: 100}))
			require.ErrorIs(t, store.CreateSession(ctx, &model.AuthSession{ID: "s1", UserID: "x", Role: model.RoleAdmin}), appErr.ErrConflict)
			require.NoError(t, store.CreateSession(ctx, &model.AuthSession{ID: "s2", UserID: "admin", Role: model.RoleAdmin, Ctime: 1, Expire: 10}))

			s, err := store.GetSession(ctx, "s1")
			require.NoError(t, err)
			require.Equal(t, model.RoleStudent, s.Role)

			n, err := store.DeleteExpiredSessions(ctx, 50)
			require.NoError(t, err)
			require.Equal(t, int64(1), n)
			_, err = store.GetSession(ctx, "s2")
			require.ErrorIs(t, err, appErr.ErrNotFound)

			require.NoError(t, store.DeleteSession(ctx, "s1"))
			_, err = store.GetSession(ctx, "s1")
			require.ErrorIs(t, err, appErr.ErrNotFound)

			_, err = store.GetAttempt(ctx, "1.2.3.4")
			require.ErrorIs(t, err, appErr.ErrNotFound)
			require.NoError(t, store.SaveAttempt(ctx, &model.LoginAttempt{ClientKey: "1.2.3.4", Failures: 1, Mtime: 1}))
			require.NoError(t, store.SaveAttempt(ctx, &model.LoginAttempt{ClientKey: "1.2.3.4", Failures: 5, LockedUntil: 300, Mtime: 2}))
			a, err := store.GetAttempt(ctx, "1.2.3.4")
			require.NoError(t, err)
			require.Equal(t, 5, a.Failures)
			require.Equal(t, int64(300), a.LockedUntil)
			require.NoError(t, store.DeleteAttempt(ctx, "1.2.3.4"))
			_, err = store.GetAttempt(ctx, "1.2.3.4")
			require.ErrorIs(t, err, appErr.ErrNotFound)
		})
	}
}

func TestIndexRepo(t *testing.T) {
	r := NewIndexRepo(openTestDB(t))
	ctx := context.Background()

	entries := []*model.IndexEntry{
		{ID: "1", OwnerID: "child_1", Subject: "math", Type: model.DocWrongProblem, Timestamp: 10},
		{ID: "2", OwnerID: "child_2", Subject: "math", Type: model.DocHomework, Timestamp: 20},
		{ID: "3", OwnerID: model.SharedOwner, Subject: "math", Type: model.DocTextbook, Timestamp: 30, Data: json.RawMessage(`{"title":"Algebra"}`)},
		{ID: "4", OwnerID: "child_1", Subject: "english", Type: model.DocNote, Timestamp: 40},
	}
	for _, e := range entries {
		require.NoError(t, r.Put(ctx, e))
	}
	require.NoError(t, r.Put(ctx, &model.IndexEntry{ID: "1", OwnerID: "child_1", Subject: "math", Type: model.DocWrongProblem, Timestamp: 15, Title: "fractions"}))
	require.ErrorIs(t, r.Put(ctx, &model.IndexEntry{}), appErr.ErrInvalid)

	got, err := r.Query(ctx, model.IndexQuery{OwnerID: "child_1"})
	require.NoError(t, err)
	require.Equal(t, []string{"4", "3", "1"}, entryIDs(got))

	got, err = r.Query(ctx, model.IndexQuery{OwnerID: "child_1", Subject: "math", Limit: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"3"}, entryIDs(got))

	got, err = r.Query(ctx, model.IndexQuery{Type: model.DocHomework})
	require.NoError(t, err)
	require.Equal(t, []string{"2"}, entryIDs(got))

	e, err := r.Get(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "fractions", e.Title)
	require.Equal(t, int64(15), e.Timestamp)
	require.Nil(t, e.Data)

	e, err = r.Get(ctx, "3")
	require.NoError(t, err)
	require.JSONEq(t, `{"title":"Algebra"}`, string(e.Data))

	require.NoError(t, r.Delete(ctx, "3"))
	require.ErrorIs(t, r.Delete(ctx, "3"), appErr.ErrNotFound)
	_, err = r.Get(ctx, "3")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func entryIDs(entries []*model.IndexEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}
