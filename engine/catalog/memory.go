package catalog

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/ragplane/ragplane/engine/core"
	"github.com/ragplane/ragplane/engine/query"
)

// MemoryStore is an in-memory Store. It is safe for concurrent use and
// intended for dev and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[Kind]map[string]Entry
	seq   int64
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[Kind]map[string]Entry)}
}

func (s *MemoryStore) Create(ctx context.Context, kind Kind, id string, body map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return core.Validationf("catalog: config id is required")
	}
	cp, err := copyBody(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.items[kind]
	if !ok {
		bucket = make(map[string]Entry)
		s.items[kind] = bucket
	}
	if _, exists := bucket[id]; exists {
		return core.AlreadyExistsf("catalog: %s config %q", kind, id)
	}
	s.seq++
	now := time.Now().UTC()
	bucket[id] = Entry{Kind: kind, ID: id, Body: cp, Seq: s.seq, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, kind Kind, id string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	entry, ok := s.items[kind][id]
	s.mu.RUnlock()
	if !ok {
		return nil, core.NotFoundf("catalog: %s config %q", kind, id)
	}
	return copyBody(entry.Body)
}

func (s *MemoryStore) Update(ctx context.Context, kind Kind, id string, body map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp, err := copyBody(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[kind][id]
	if !ok {
		return core.NotFoundf("catalog: %s config %q", kind, id)
	}
	entry.Body = cp
	entry.UpdatedAt = time.Now().UTC()
	s.items[kind][id] = entry
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, kind Kind, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[kind][id]; !ok {
		return core.NotFoundf("catalog: %s config %q", kind, id)
	}
	delete(s.items[kind], id)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, kind Kind) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	entries := make([]Entry, 0, len(s.items[kind]))
	for _, entry := range s.items[kind] {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	for i := range entries {
		cp, err := copyBody(entries[i].Body)
		if err != nil {
			return nil, err
		}
		entries[i].Body = cp
	}
	return entries, nil
}

func (s *MemoryStore) Search(ctx context.Context, kind Kind, filter map[string]any) ([]Entry, error) {
	pred, err := query.Parse(filter)
	if err != nil {
		return nil, err
	}
	entries, err := s.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		raw, err := json.Marshal(entry.Body)
		if err != nil {
			return nil, err
		}
		if pred.MatchesJSON(raw) {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *MemoryStore) Close(context.Context) error { return nil }

func copyBody(body map[string]any) (map[string]any, error) {
	if body == nil {
		return map[string]any{}, nil
	}
	var cp map[string]any
	if err := core.DeepCopyJSON(body, &cp); err != nil {
		return nil, core.Validationf("catalog: body is not serializable: %v", err)
	}
	return cp, nil
}
