package vectorstore

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-resty/resty/v2"

	"github.com/ragplane/ragplane/engine/core"
)

// elasticBackend speaks the Elasticsearch REST API. The knn flag selects
// approximate knn search; otherwise an exact script_score query is used,
// matching the two store flavours the control plane exposes.
type elasticBackend struct {
	client    *resty.Client
	index     string
	dimension int
	knn       bool

	mu      sync.Mutex
	ensured bool
}

func newElasticBackend(kwargs *Kwargs, knn bool) (*elasticBackend, error) {
	if kwargs.URL == "" {
		return nil, core.Validationf("vector store: elasticsearch requires a url")
	}
	index := kwargs.Index
	if index == "" {
		return nil, core.Validationf("vector store: elasticsearch requires an index")
	}
	client := resty.New().SetBaseURL(kwargs.URL)
	if kwargs.Username != "" {
		client.SetBasicAuth(kwargs.Username, kwargs.Password)
	}
	if kwargs.APIKey != "" {
		client.SetHeader("Authorization", "ApiKey "+kwargs.APIKey)
	}
	return &elasticBackend{
		client:    client,
		index:     index,
		dimension: kwargs.Dimension,
		knn:       knn,
	}, nil
}

func (b *elasticBackend) ensureIndex(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ensured {
		return nil
	}
	vector := map[string]any{"type": "dense_vector", "similarity": "cosine"}
	if b.dimension > 0 {
		vector["dims"] = b.dimension
	}
	if b.knn {
		vector["index"] = true
	}
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"mappings": map[string]any{
				"properties": map[string]any{
					"text":     map[string]any{"type": "text"},
					"vector":   vector,
					"metadata": map[string]any{"type": "object", "enabled": true},
				},
			},
		}).
		Put("/" + b.index)
	if err != nil {
		return core.AdapterErr("elasticsearch", err)
	}
	// 400 resource_already_exists means another writer won the race.
	if !resp.IsSuccess() && resp.StatusCode() != http.StatusBadRequest {
		return core.AdapterErr("elasticsearch", fmt.Errorf("create index: %s: %s", resp.Status(), resp.String()))
	}
	b.ensured = true
	return nil
}

func (b *elasticBackend) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := b.ensureIndex(ctx); err != nil {
		return err
	}
	for _, r := range records {
		resp, err := b.client.R().
			SetContext(ctx).
			SetBody(map[string]any{
				"text":     r.Text,
				"vector":   r.Embedding,
				"metadata": r.Metadata,
			}).
			Put(fmt.Sprintf("/%s/_doc/%s", b.index, r.ID))
		if err != nil {
			return core.AdapterErr("elasticsearch", err)
		}
		if !resp.IsSuccess() {
			return core.AdapterErr("elasticsearch", fmt.Errorf("index %s: %s: %s", r.ID, resp.Status(), resp.String()))
		}
	}
	resp, err := b.client.R().SetContext(ctx).Post(fmt.Sprintf("/%s/_refresh", b.index))
	if err != nil {
		return core.AdapterErr("elasticsearch", err)
	}
	if !resp.IsSuccess() {
		return core.AdapterErr("elasticsearch", fmt.Errorf("refresh: %s", resp.Status()))
	}
	return nil
}

type elasticSearchResult struct {
	Hits struct {
		Hits []struct {
			ID     string  `json:"_id"`
			Score  float64 `json:"_score"`
			Source struct {
				Text     string         `json:"text"`
				Vector   []float32      `json:"vector"`
				Metadata map[string]any `json:"metadata"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (b *elasticBackend) Query(ctx context.Context, embedding []float32, topK int, withVectors bool) ([]Match, error) {
	if err := b.ensureIndex(ctx); err != nil {
		return nil, err
	}
	source := []string{"text", "metadata"}
	if withVectors {
		source = append(source, "vector")
	}
	body := map[string]any{"size": topK, "_source": source}
	if b.knn {
		body["knn"] = map[string]any{
			"field":          "vector",
			"query_vector":   embedding,
			"k":              topK,
			"num_candidates": topK * 5,
		}
	} else {
		body["query"] = map[string]any{
			"script_score": map[string]any{
				"query": map[string]any{"match_all": map[string]any{}},
				"script": map[string]any{
					"source": "cosineSimilarity(params.query_vector, 'vector') + 1.0",
					"params": map[string]any{"query_vector": embedding},
				},
			},
		}
	}
	var out elasticSearchResult
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post(fmt.Sprintf("/%s/_search", b.index))
	if err != nil {
		return nil, core.AdapterErr("elasticsearch", err)
	}
	if !resp.IsSuccess() {
		return nil, core.AdapterErr("elasticsearch", fmt.Errorf("search: %s: %s", resp.Status(), resp.String()))
	}
	matches := make([]Match, 0, len(out.Hits.Hits))
	for _, hit := range out.Hits.Hits {
		score := hit.Score
		if !b.knn {
			// script_score yields cosine+1 in [0,2]; fold onto [0,1].
			score /= 2
		}
		matches = append(matches, Match{
			Record: Record{
				ID:        hit.ID,
				Text:      hit.Source.Text,
				Embedding: hit.Source.Vector,
				Metadata:  hit.Source.Metadata,
			},
			Score: score,
		})
	}
	return matches, nil
}

func (b *elasticBackend) Delete(ctx context.Context, ids []string) error {
	for _, id := range ids {
		resp, err := b.client.R().SetContext(ctx).Delete(fmt.Sprintf("/%s/_doc/%s", b.index, id))
		if err != nil {
			return core.AdapterErr("elasticsearch", err)
		}
		if !resp.IsSuccess() && resp.StatusCode() != http.StatusNotFound {
			return core.AdapterErr("elasticsearch", fmt.Errorf("delete %s: %s", id, resp.Status()))
		}
	}
	return nil
}

func (b *elasticBackend) Close(context.Context) error { return nil }
