package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/famlearn/internal/model"
	appErr "github.com/xxxsen/famlearn/internal/pkg/errors"
)

func newStore(t *testing.T) (*JSONStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "metadata.json")
	s, err := NewJSONStore(path)
	require.NoError(t, err)
	return s, path
}

func TestJSONStore_PutReplacesByID(t *testing.T) {
	s, path := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &model.IndexEntry{ID: "a", OwnerID: "child_1", Timestamp: 1, Subject: "math"}))
	require.NoError(t, s.Put(ctx, &model.IndexEntry{ID: "b", OwnerID: "child_1", Timestamp: 3}))
	require.NoError(t, s.Put(ctx, &model.IndexEntry{ID: "a", OwnerID: "child_1", Timestamp: 5, Subject: "english"}))

	all, err := s.Query(ctx, model.IndexQuery{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "a", all[0].ID)
	require.Equal(t, "english", all[0].Subject)
	require.Equal(t, "b", all[1].ID)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"english"`)
	require.NotContains(t, string(raw), `"math"`)
}

func TestJSONStore_QueryFilters(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	entries := []*model.IndexEntry{
		{ID: "1", OwnerID: "child_1", Subject: "math", Type: model.DocWrongProblem, Timestamp: 10},
		{ID: "2", OwnerID: "child_2", Subject: "math", Type: model.DocHomework, Timestamp: 20},
		{ID: "3", OwnerID: "shared", Subject: "math", Type: model.DocTextbook, Timestamp: 30},
		{ID: "4", OwnerID: "child_1", Subject: "english", Type: model.DocNote, Timestamp: 40},
	}
	for _, e := range entries {
		require.NoError(t, s.Put(ctx, e))
	}

	got, err := s.Query(ctx, model.IndexQuery{OwnerID: "child_1"})
	require.NoError(t, err)
	require.Equal(t, []string{"4", "3", "1"}, ids(got))

	got, err = s.Query(ctx, model.IndexQuery{OwnerID: "child_1", Subject: "math"})
	require.NoError(t, err)
	require.Equal(t, []string{"3", "1"}, ids(got))

	got, err = s.Query(ctx, model.IndexQuery{Type: model.DocHomework})
	require.NoError(t, err)
	require.Equal(t, []string{"2"}, ids(got))

	got, err = s.Query(ctx, model.IndexQuery{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"4", "3"}, ids(got))
}

func TestJSONStore_GetDelete(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, appErr.ErrNotFound)

	require.NoError(t, s.Put(ctx, &model.IndexEntry{ID: "x", Timestamp: 1}))
	e, err := s.Get(ctx, "x")
	require.NoError(t, err)
	require.Equal(t, "x", e.ID)

	require.NoError(t, s.Delete(ctx, "x"))
	require.ErrorIs(t, s.Delete(ctx, "x"), appErr.ErrNotFound)
	require.ErrorIs(t, s.Put(ctx, &model.IndexEntry{}), appErr.ErrInvalid)
}

func TestJSONStore_ConcurrentPutsKeepEveryEntry(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, s.Put(ctx, &model.IndexEntry{ID: fmt.Sprintf("e%d", i), Timestamp: int64(i)}))
		}(i)
	}
	wg.Wait()

	all, err := s.Query(ctx, model.IndexQuery{})
	require.NoError(t, err)
	require.Len(t, all, 20)
	require.Equal(t, "e19", all[0].ID)
}

func TestJSONStore_CorruptFile(t *testing.T) {
	s, path := newStore(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := s.Query(context.Background(), model.IndexQuery{})
	require.Error(t, err)
}

func ids(entries []*model.IndexEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}
