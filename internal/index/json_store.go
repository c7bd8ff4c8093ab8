package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/xxxsen/famlearn/internal/model"
	appErr "github.com/xxxsen/famlearn/internal/pkg/errors"
)

// JSONStore keeps the index as one JSON array file. All access goes through
// one mutex and every write replaces the file by rename.
type JSONStore struct {
	mu   sync.Mutex
	path string
}

func NewJSONStore(path string) (*JSONStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	return &JSONStore{path: path}, nil
}

func (s *JSONStore) Put(ctx context.Context, entry *model.IndexEntry) error {
	_ = ctx
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("index entry id is required: %w", appErr.ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load()
	if err != nil {
		return err
	}
	replaced := false
	for i, e := range entries {
		if e.ID == entry.ID {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}
	SortByRecency(entries)
	return s.save(entries)
}

func (s *JSONStore) Get(ctx context.Context, id string) (*model.IndexEntry, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (s *JSONStore) Query(ctx context.Context, q model.IndexQuery) ([]*model.IndexEntry, error) {
	_ = ctx
	s.mu.Lock()
	entries, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]*model.IndexEntry, 0, len(entries))
	for _, e := range entries {
		if Match(e, q) {
			out = append(out, e)
		}
	}
	SortByRecency(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *JSONStore) Delete(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load()
	if err != nil {
		return err
	}
	kept := entries[:0]
	found := false
	for _, e := range entries {
		if e.ID == id {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return appErr.ErrNotFound
	}
	return s.save(kept)
}

func (s *JSONStore) load() ([]*model.IndexEntry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []*model.IndexEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	if len(data) == 0 {
		return []*model.IndexEntry{}, nil
	}
	var entries []*model.IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	return entries, nil
}

func (s *JSONStore) save(entries []*model.IndexEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".metadata-*.json")
	if err != nil {
		return fmt.Errorf("create index temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close index: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}
