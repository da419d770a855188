package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/afero"

	"github.com/ragplane/ragplane/engine/core"
)

// localIndex is an in-process cosine index, optionally persisted to a JSON
// snapshot so it survives restarts. It plays the role FAISS plays in the
// deployment: a local index without a server.
type localIndex struct {
	mu        sync.RWMutex
	fs        afero.Fs
	path      string
	dimension int
	records   map[string]Record
}

func newLocalIndex(kwargs *Kwargs) (*localIndex, error) {
	idx := &localIndex{
		fs:        afero.NewOsFs(),
		path:      kwargs.Path,
		dimension: kwargs.Dimension,
		records:   make(map[string]Record),
	}
	if err := idx.load(); err != nil {
		return nil, err
	}
	return idx, nil
}

func newMemoryIndex(dimension int) *localIndex {
	return &localIndex{dimension: dimension, records: make(map[string]Record)}
}

func (idx *localIndex) load() error {
	if idx.path == "" {
		return nil
	}
	raw, err := afero.ReadFile(idx.fs, idx.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("vector store: read index %s: %w", idx.path, err)
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("%w: vector index %s is corrupt: %v", core.ErrIntegrity, idx.path, err)
	}
	for _, r := range records {
		idx.records[r.ID] = r
	}
	return nil
}

// persist writes the snapshot while the caller holds the write lock.
func (idx *localIndex) persist() error {
	if idx.path == "" {
		return nil
	}
	records := make([]Record, 0, len(idx.records))
	for _, r := range idx.records {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("vector store: marshal index: %w", err)
	}
	if err := idx.fs.MkdirAll(filepath.Dir(idx.path), 0o755); err != nil {
		return fmt.Errorf("vector store: create index dir: %w", err)
	}
	if err := afero.WriteFile(idx.fs, idx.path, raw, 0o644); err != nil {
		return fmt.Errorf("vector store: write index %s: %w", idx.path, err)
	}
	return nil
}

func (idx *localIndex) Upsert(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, r := range records {
		if idx.dimension > 0 && len(r.Embedding) != idx.dimension {
			return core.Validationf(
				"vector store: record %q has dimension %d, index expects %d",
				r.ID, len(r.Embedding), idx.dimension,
			)
		}
		idx.records[r.ID] = r
	}
	return idx.persist()
}

func (idx *localIndex) Query(ctx context.Context, embedding []float32, topK int, withVectors bool) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if idx.dimension > 0 && len(embedding) != idx.dimension {
		return nil, core.Validationf(
			"vector store: query dimension %d, index expects %d",
			len(embedding), idx.dimension,
		)
	}
	idx.mu.RLock()
	matches := make([]Match, 0, len(idx.records))
	for _, r := range idx.records {
		score, err := cosineSimilarity(embedding, r.Embedding)
		if err != nil {
			idx.mu.RUnlock()
			return nil, err
		}
		m := Match{Record: r, Score: relevanceScore(score)}
		if !withVectors {
			m.Embedding = nil
		}
		matches = append(matches, m)
	}
	idx.mu.RUnlock()
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

func (idx *localIndex) Delete(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, id := range ids {
		delete(idx.records, id)
	}
	return idx.persist()
}

func (idx *localIndex) Close(context.Context) error { return nil }

func cosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, core.Validationf("vector store: dimension mismatch %d vs %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// relevanceScore maps cosine similarity [-1, 1] into [0, 1].
func relevanceScore(cosine float64) float64 {
	return (cosine + 1) / 2
}
