package index

import (
	"context"
	"sort"

	"github.com/xxxsen/famlearn/internal/model"
)

// Store is the metadata index over scanned items and books.
type Store interface {
	// Put appends entry or replaces the entry with the same id.
	Put(ctx context.Context, entry *model.IndexEntry) error
	Get(ctx context.Context, id string) (*model.IndexEntry, error)
	// Query returns matching entries, newest first.
	Query(ctx context.Context, q model.IndexQuery) ([]*model.IndexEntry, error)
	Delete(ctx context.Context, id string) error
}

// Match reports whether entry passes q. An owner filter also admits entries
// owned by the shared pseudo user.
func Match(entry *model.IndexEntry, q model.IndexQuery) bool {
	if q.OwnerID != "" && entry.OwnerID != q.OwnerID && entry.OwnerID != model.SharedOwner {
		return false
	}
	if q.Subject != "" && entry.Subject != q.Subject {
		return false
	}
	if q.Type != "" && entry.Type != q.Type {
		return false
	}
	return true
}

func SortByRecency(entries []*model.IndexEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp > entries[j].Timestamp
	})
}
