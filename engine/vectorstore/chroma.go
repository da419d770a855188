package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-resty/resty/v2"

	"github.com/ragplane/ragplane/engine/core"
)

// chromaBackend speaks the Chroma REST API. Collections are created with
// cosine space so scores line up with the local index's relevance scale.
type chromaBackend struct {
	client     *resty.Client
	collection string

	mu           sync.Mutex
	collectionID string
}

func newChromaBackend(kwargs *Kwargs) (*chromaBackend, error) {
	if kwargs.URL == "" {
		return nil, core.Validationf("vector store: chroma requires a url")
	}
	collection := kwargs.Collection
	if collection == "" {
		collection = "ragplane"
	}
	return &chromaBackend{
		client:     resty.New().SetBaseURL(kwargs.URL),
		collection: collection,
	}, nil
}

type chromaCollection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (b *chromaBackend) ensureCollection(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.collectionID != "" {
		return b.collectionID, nil
	}
	var out chromaCollection
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"name":          b.collection,
			"get_or_create": true,
			"metadata":      map[string]any{"hnsw:space": "cosine"},
		}).
		SetResult(&out).
		Post("/api/v1/collections")
	if err != nil {
		return "", core.AdapterErr("chroma", err)
	}
	if !resp.IsSuccess() {
		return "", core.AdapterErr("chroma", fmt.Errorf("create collection: %s", resp.Status()))
	}
	b.collectionID = out.ID
	return out.ID, nil
}

func (b *chromaBackend) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	collID, err := b.ensureCollection(ctx)
	if err != nil {
		return err
	}
	ids := make([]string, len(records))
	embeddings := make([][]float32, len(records))
	documents := make([]string, len(records))
	metadatas := make([]map[string]any, len(records))
	for i, r := range records {
		ids[i] = r.ID
		embeddings[i] = r.Embedding
		documents[i] = r.Text
		metadatas[i] = r.Metadata
	}
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"ids":        ids,
			"embeddings": embeddings,
			"documents":  documents,
			"metadatas":  metadatas,
		}).
		Post(fmt.Sprintf("/api/v1/collections/%s/upsert", collID))
	if err != nil {
		return core.AdapterErr("chroma", err)
	}
	if !resp.IsSuccess() {
		return core.AdapterErr("chroma", fmt.Errorf("upsert: %s: %s", resp.Status(), resp.String()))
	}
	return nil
}

type chromaQueryResult struct {
	IDs        [][]string         `json:"ids"`
	Documents  [][]string         `json:"documents"`
	Metadatas  [][]map[string]any `json:"metadatas"`
	Distances  [][]float64        `json:"distances"`
	Embeddings [][][]float32      `json:"embeddings"`
}

func (b *chromaBackend) Query(ctx context.Context, embedding []float32, topK int, withVectors bool) ([]Match, error) {
	collID, err := b.ensureCollection(ctx)
	if err != nil {
		return nil, err
	}
	include := []string{"documents", "metadatas", "distances"}
	if withVectors {
		include = append(include, "embeddings")
	}
	var out chromaQueryResult
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"query_embeddings": [][]float32{embedding},
			"n_results":        topK,
			"include":          include,
		}).
		SetResult(&out).
		Post(fmt.Sprintf("/api/v1/collections/%s/query", collID))
	if err != nil {
		return nil, core.AdapterErr("chroma", err)
	}
	if !resp.IsSuccess() {
		return nil, core.AdapterErr("chroma", fmt.Errorf("query: %s: %s", resp.Status(), resp.String()))
	}
	if len(out.IDs) == 0 {
		return []Match{}, nil
	}
	matches := make([]Match, 0, len(out.IDs[0]))
	for i, id := range out.IDs[0] {
		m := Match{Record: Record{ID: id}}
		if len(out.Documents) > 0 && i < len(out.Documents[0]) {
			m.Text = out.Documents[0][i]
		}
		if len(out.Metadatas) > 0 && i < len(out.Metadatas[0]) {
			m.Metadata = out.Metadatas[0][i]
		}
		if len(out.Distances) > 0 && i < len(out.Distances[0]) {
			// Cosine distance in [0,2] maps onto the shared [0,1] scale.
			m.Score = (2 - out.Distances[0][i]) / 2
		}
		if withVectors && len(out.Embeddings) > 0 && i < len(out.Embeddings[0]) {
			m.Embedding = out.Embeddings[0][i]
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (b *chromaBackend) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	collID, err := b.ensureCollection(ctx)
	if err != nil {
		return err
	}
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"ids": ids}).
		Post(fmt.Sprintf("/api/v1/collections/%s/delete", collID))
	if err != nil {
		return core.AdapterErr("chroma", err)
	}
	if !resp.IsSuccess() {
		return core.AdapterErr("chroma", fmt.Errorf("delete: %s: %s", resp.Status(), resp.String()))
	}
	return nil
}

func (b *chromaBackend) Close(context.Context) error { return nil }
