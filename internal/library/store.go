package library

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
)

// Library is the read side of the catalog. Implementations must be safe for
// concurrent use.
type Library interface {
	// Items returns base titles and DLC in iteration order, each carrying its
	// updates sorted by version.
	Items(ctx context.Context) ([]Item, error)
	// Get finds a title or update by id; nil, nil when absent. Update ids
	// resolve to the latest version.
	Get(ctx context.Context, titleID string) (*Item, error)
}

// Writer is what the scanner needs to record files.
type Writer interface {
	UpsertTitle(ctx context.Context, it Item) error
	// UpsertUpdate reports false when baseID is not in the catalog; the
	// update is not stored then.
	UpsertUpdate(ctx context.Context, baseID string, it Item) (bool, error)
	// Prune forgets files under roots that are not in seen: titles lose
	// their rom path, updates are removed. It returns how many rows changed.
	Prune(ctx context.Context, roots []string, seen map[string]bool) (int, error)
}

// gone is true for a recorded path under one of roots that the last walk
// did not see.
func gone(path string, roots []string, seen map[string]bool) bool {
	if path == "" || seen[path] {
		return false
	}
	for _, r := range roots {
		if path == r || strings.HasPrefix(path, r+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// MemStore keeps the catalog in memory. Used by tests and by callers that
// build a library without SQLite.
type MemStore struct {
	mu    sync.RWMutex
	items []Item
	index map[string]int
}

func NewMemStore(items ...Item) *MemStore {
	s := &MemStore{index: map[string]int{}}
	for _, it := range items {
		_ = s.UpsertTitle(context.Background(), it)
	}
	return s
}

func (s *MemStore) UpsertTitle(_ context.Context, it Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.index[it.TitleID]; ok {
		if it.Updates == nil {
			it.Updates = s.items[i].Updates
		}
		s.items[i] = it.clone()
		return nil
	}
	s.index[it.TitleID] = len(s.items)
	s.items = append(s.items, it.clone())
	return nil
}

func (s *MemStore) UpsertUpdate(_ context.Context, baseID string, up Item) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[baseID]
	if !ok {
		return false, nil
	}
	base := s.items[i].clone()
	pos := len(base.Updates)
	for j, u := range base.Updates {
		if u.TitleID == up.TitleID && u.Version == up.Version {
			base.Updates[j] = up
			s.items[i] = base
			return true, nil
		}
		if u.Version > up.Version && pos == len(base.Updates) {
			pos = j
		}
	}
	base.Updates = append(base.Updates, Item{})
	copy(base.Updates[pos+1:], base.Updates[pos:])
	base.Updates[pos] = up
	s.items[i] = base
	return true, nil
}

func (s *MemStore) Prune(_ context.Context, roots []string, seen map[string]bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.items {
		it := &s.items[i]
		if gone(it.RomPath, roots, seen) {
			it.RomPath = ""
			n++
		}
		kept := it.Updates[:0]
		for _, u := range it.Updates {
			if gone(u.RomPath, roots, seen) {
				n++
				continue
			}
			kept = append(kept, u)
		}
		it.Updates = kept
	}
	return n, nil
}

func (s *MemStore) Items(_ context.Context) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, len(s.items))
	for i, it := range s.items {
		out[i] = it.clone()
	}
	return out, nil
}

func (s *MemStore) Get(_ context.Context, titleID string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i, ok := s.index[titleID]; ok {
		it := s.items[i].clone()
		return &it, nil
	}
	var latest *Item
	for _, base := range s.items {
		for _, u := range base.Updates {
			if u.TitleID == titleID && (latest == nil || u.Version > latest.Version) {
				cp := u
				latest = &cp
			}
		}
	}
	return latest, nil
}
