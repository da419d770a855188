package docstore

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ragplane/ragplane/engine/core"
)

// MemoryStore is an in-memory Store for dev and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]CollectionInfo
	docs        map[string]map[string]Document
	order       map[string][]string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]CollectionInfo),
		docs:        make(map[string]map[string]Document),
		order:       make(map[string][]string),
	}
}

func (s *MemoryStore) CreateCollection(ctx context.Context, name, description string, custom map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" {
		return core.Validationf("docstore: collection name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return core.AlreadyExistsf("docstore: collection %q", name)
	}
	s.collections[name] = CollectionInfo{
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
		Custom:      core.CloneMap(custom),
	}
	return nil
}

func (s *MemoryStore) GetCollection(ctx context.Context, name string) (*CollectionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.collections[name]
	if !ok {
		return nil, core.NotFoundf("docstore: collection %q", name)
	}
	return &info, nil
}

func (s *MemoryStore) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CollectionInfo, 0, len(s.collections))
	for _, info := range s.collections {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) DeleteCollection(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		if _, hasDocs := s.docs[name]; !hasDocs {
			return core.NotFoundf("docstore: collection %q", name)
		}
	}
	delete(s.collections, name)
	delete(s.docs, name)
	delete(s.order, name)
	return nil
}

func (s *MemoryStore) Create(ctx context.Context, collection string, doc *Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := Normalize(collection, doc)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.docs[collection]
	if !ok {
		bucket = make(map[string]Document)
		s.docs[collection] = bucket
	}
	if _, exists := bucket[id]; exists {
		return "", core.AlreadyExistsf("docstore: document %q in collection %q", id, collection)
	}
	bucket[id] = *doc
	s.order[collection] = append(s.order[collection], id)
	return id, nil
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[collection][id]
	if !ok {
		return nil, core.NotFoundf("docstore: document %q in collection %q", id, collection)
	}
	return &doc, nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, doc *Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc.ID = id
	if _, err := Normalize(collection, doc); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[collection][id]; !ok {
		return core.NotFoundf("docstore: document %q in collection %q", id, collection)
	}
	s.docs[collection][id] = *doc
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[collection][id]; !ok {
		return core.NotFoundf("docstore: document %q in collection %q", id, collection)
	}
	delete(s.docs[collection], id)
	ids := s.order[collection]
	for i, existing := range ids {
		if existing == id {
			s.order[collection] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) List(ctx context.Context, collection, prefix string, skip, limit int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, 0)
	for _, id := range s.order[collection] {
		if prefix != "" && !strings.HasPrefix(id, prefix) {
			continue
		}
		out = append(out, s.docs[collection][id])
	}
	return page(out, skip, limit), nil
}

func (s *MemoryStore) Search(ctx context.Context, collection, pattern string, skip, limit int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, core.Validationf("docstore: invalid search pattern: %v", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, 0)
	for _, id := range s.order[collection] {
		doc := s.docs[collection][id]
		if matchDocument(&doc, re) {
			out = append(out, doc)
		}
	}
	return page(out, skip, limit), nil
}

func (s *MemoryStore) All(ctx context.Context, collection string) ([]Document, error) {
	return s.List(ctx, collection, "", 0, 0)
}

func (s *MemoryStore) Close(context.Context) error { return nil }

func matchDocument(doc *Document, re *regexp.Regexp) bool {
	if re.MatchString(doc.PageContent) || re.MatchString(doc.ID) {
		return true
	}
	if title, ok := doc.Metadata["title"].(string); ok && re.MatchString(title) {
		return true
	}
	return false
}

func page(docs []Document, skip, limit int) []Document {
	if skip >= len(docs) {
		return []Document{}
	}
	docs = docs[skip:]
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}
