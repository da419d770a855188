// Package vectorstore provides named indexes over document embeddings with
// similarity, MMR and score-threshold search on pluggable backends.
package vectorstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/ragplane/ragplane/engine/core"
	"github.com/ragplane/ragplane/engine/docstore"
	"github.com/ragplane/ragplane/engine/embedder"
)

// Supported vector store classes.
const (
	ClassChroma              = "Chroma"
	ClassElasticsearchStore  = "ElasticsearchStore"
	ClassElasticVectorSearch = "ElasticVectorSearch"
	ClassFAISS               = "FAISS"
)

// Config is the persisted vector store configuration body.
type Config struct {
	Class      string `json:"class"`
	EmbedderID string `json:"embedder_id"`
	Kwargs     Kwargs `json:"kwargs"`
}

// Kwargs carries backend connection arguments.
type Kwargs struct {
	URL        string `json:"url,omitempty"`
	Index      string `json:"index,omitempty"`
	Collection string `json:"collection_name,omitempty"`
	Path       string `json:"path,omitempty"`
	Dimension  int    `json:"dimension,omitempty"`
	APIKey     string `json:"api_key,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
}

// Result is one search hit.
type Result struct {
	ID          string         `json:"id"`
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Score       float64        `json:"score"`
}

// Record is a chunk persisted to a backend.
type Record struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Match is a backend hit; Embedding is populated only when requested.
type Match struct {
	Record
	Score float64
}

// backend is the minimal contract a vector database must satisfy. Upsert
// dedupes on id so re-ingestion converges.
type backend interface {
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, embedding []float32, topK int, withVectors bool) ([]Match, error)
	Delete(ctx context.Context, ids []string) error
	Close(ctx context.Context) error
}

// Store couples an embedder with a vector backend.
type Store struct {
	id       string
	class    string
	embedder *embedder.Adapter
	backend  backend
}

// New materialises a vector store from its configuration body and the
// already-live embedder it references.
func New(_ context.Context, id string, body map[string]any, emb *embedder.Adapter) (*Store, error) {
	cfg := &Config{}
	if err := core.DeepCopyJSON(body, cfg); err != nil {
		return nil, core.Validationf("vector store %q: invalid config body: %v", id, err)
	}
	var (
		be  backend
		err error
	)
	switch cfg.Class {
	case ClassFAISS:
		be, err = newLocalIndex(&cfg.Kwargs)
	case ClassChroma:
		be, err = newChromaBackend(&cfg.Kwargs)
	case ClassElasticsearchStore:
		be, err = newElasticBackend(&cfg.Kwargs, true)
	case ClassElasticVectorSearch:
		be, err = newElasticBackend(&cfg.Kwargs, false)
	default:
		return nil, core.Unsupportedf("vector store class %q", cfg.Class)
	}
	if err != nil {
		return nil, err
	}
	return &Store{id: id, class: cfg.Class, embedder: emb, backend: be}, nil
}

// NewWithBackend wires an explicit backend. Intended for tests.
func NewWithBackend(id string, emb *embedder.Adapter, be backend) *Store {
	return &Store{id: id, class: ClassFAISS, embedder: emb, backend: be}
}

// ID returns the instance id.
func (s *Store) ID() string { return s.id }

// Class returns the configured class name.
func (s *Store) Class() string { return s.class }

// Close releases the underlying backend.
func (s *Store) Close(ctx context.Context) error {
	return s.backend.Close(ctx)
}

// AddDocuments embeds and indexes documents, keyed by their document ids so
// re-adding the same documents converges.
func (s *Store) AddDocuments(ctx context.Context, docs []docstore.Document) ([]string, error) {
	if len(docs) == 0 {
		return []string{}, nil
	}
	texts := make([]string, len(docs))
	for i := range docs {
		texts[i] = docs[i].PageContent
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	records := make([]Record, len(docs))
	ids := make([]string, len(docs))
	for i := range docs {
		id := docs[i].ID
		if id == "" {
			id = uuid.NewString()
		}
		ids[i] = id
		records[i] = Record{
			ID:        id,
			Text:      docs[i].PageContent,
			Embedding: vectors[i],
			Metadata:  docs[i].Metadata,
		}
	}
	if err := s.backend.Upsert(ctx, records); err != nil {
		return nil, err
	}
	return ids, nil
}

// AddTexts embeds and indexes raw texts with optional parallel metadata.
func (s *Store) AddTexts(ctx context.Context, texts []string, metadatas []map[string]any) ([]string, error) {
	if metadatas != nil && len(metadatas) != len(texts) {
		return nil, core.Validationf("vector store: %d metadatas for %d texts", len(metadatas), len(texts))
	}
	docs := make([]docstore.Document, len(texts))
	for i := range texts {
		docs[i] = docstore.Document{PageContent: texts[i]}
		if metadatas != nil {
			docs[i].Metadata = metadatas[i]
		}
	}
	return s.AddDocuments(ctx, docs)
}

// Delete removes records by id.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	return s.backend.Delete(ctx, ids)
}

// Update re-embeds and replaces one record.
func (s *Store) Update(ctx context.Context, id string, doc *docstore.Document) error {
	if id == "" {
		return core.Validationf("vector store: id is required")
	}
	doc.ID = id
	_, err := s.AddDocuments(ctx, []docstore.Document{*doc})
	return err
}

// SimilaritySearch returns the k nearest chunks for the query.
func (s *Store) SimilaritySearch(ctx context.Context, query string, k int) ([]Result, error) {
	return s.search(ctx, query, k, 0)
}

// SimilaritySearchWithScores returns the k nearest chunks filtered by a
// relevance score threshold; scores are in [0, 1].
func (s *Store) SimilaritySearchWithScores(ctx context.Context, query string, k int, scoreThreshold float64) ([]Result, error) {
	return s.search(ctx, query, k, scoreThreshold)
}

func (s *Store) search(ctx context.Context, query string, k int, scoreThreshold float64) ([]Result, error) {
	if k <= 0 {
		k = 4
	}
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	matches, err := s.backend.Query(ctx, vector, k, false)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		if scoreThreshold > 0 && m.Score < scoreThreshold {
			continue
		}
		results = append(results, Result{
			ID:          m.ID,
			PageContent: m.Text,
			Metadata:    m.Metadata,
			Score:       m.Score,
		})
	}
	return results, nil
}

// MMRSearch fetches fetchK candidates and reranks them with maximal
// marginal relevance before returning k results.
func (s *Store) MMRSearch(ctx context.Context, query string, k, fetchK int, lambdaMult float64) ([]Result, error) {
	if k <= 0 {
		k = 4
	}
	if fetchK < k {
		fetchK = k * 5
	}
	if lambdaMult <= 0 || lambdaMult > 1 {
		lambdaMult = 0.5
	}
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	matches, err := s.backend.Query(ctx, vector, fetchK, true)
	if err != nil {
		return nil, err
	}
	selected := maximalMarginalRelevance(vector, matches, k, lambdaMult)
	results := make([]Result, 0, len(selected))
	for _, m := range selected {
		results = append(results, Result{
			ID:          m.ID,
			PageContent: m.Text,
			Metadata:    m.Metadata,
			Score:       m.Score,
		})
	}
	return results, nil
}
