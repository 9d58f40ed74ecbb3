package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process RecordStore, used as the default backend and
// in tests. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record // keyed by category + "\x00" + key
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func recordKey(category, key string) string {
	return category + "\x00" + key
}

// Store inserts or replaces the record for (category, key).
func (s *MemoryStore) Store(_ context.Context, rec Record) error {
	if rec.StoredAt.IsZero() {
		rec.StoredAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey(rec.Category, rec.Key)] = rec
	return nil
}

// Search returns matching records ordered by key for stable results.
func (s *MemoryStore) Search(_ context.Context, q Query) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.records {
		if q.Category != "" && rec.Category != q.Category {
			continue
		}
		if q.Keyword != "" && !matchesKeyword(rec, q.Keyword) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Key < out[j].Key
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matchesKeyword(rec Record, keyword string) bool {
	kw := strings.ToLower(keyword)
	return strings.Contains(strings.ToLower(rec.Key), kw) ||
		strings.Contains(strings.ToLower(rec.Payload), kw)
}
