// Package embedder materialises embedding-model configurations into
// provider-backed adapters.
package embedder

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"
	hfembeddings "github.com/tmc/langchaingo/embeddings/huggingface"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/ragplane/ragplane/engine/core"
)

// Supported embedder classes.
const (
	ClassOpenAI      = "OpenAIEmbeddings"
	ClassHuggingFace = "HuggingFaceEmbeddings"
)

// Config is the persisted embedder configuration body.
type Config struct {
	Class  string `json:"class"`
	Kwargs Kwargs `json:"kwargs"`
}

// Kwargs carries the per-class constructor arguments.
type Kwargs struct {
	Model         string `json:"model,omitempty"`
	APIKey        string `json:"api_key,omitempty"`
	BaseURL       string `json:"base_url,omitempty"`
	BatchSize     int    `json:"batch_size,omitempty"`
	StripNewLines bool   `json:"strip_new_lines,omitempty"`
	CacheSize     int    `json:"cache_size,omitempty"`
}

// Adapter wraps a langchaingo embedder and adds an optional LRU cache.
type Adapter struct {
	id      string
	class   string
	model   string
	impl    embeddings.Embedder
	cacheMu sync.Mutex
	cache   *lru.Cache[string, []float32]
}

// New constructs an adapter from a decoded configuration body.
func New(_ context.Context, id string, body map[string]any) (*Adapter, error) {
	cfg := &Config{}
	if err := core.DeepCopyJSON(body, cfg); err != nil {
		return nil, core.Validationf("embedder %q: invalid config body: %v", id, err)
	}
	impl, err := buildImpl(cfg)
	if err != nil {
		return nil, err
	}
	adapter := &Adapter{id: id, class: cfg.Class, model: cfg.Kwargs.Model, impl: impl}
	if cfg.Kwargs.CacheSize > 0 {
		if err := adapter.EnableCache(cfg.Kwargs.CacheSize); err != nil {
			return nil, err
		}
	}
	return adapter, nil
}

// Wrap builds an adapter around an existing implementation. Intended for
// tests.
func Wrap(id string, impl embeddings.Embedder) *Adapter {
	return &Adapter{id: id, impl: impl}
}

func buildImpl(cfg *Config) (embeddings.Embedder, error) {
	switch cfg.Class {
	case ClassOpenAI:
		opts := []openai.Option{}
		if cfg.Kwargs.Model != "" {
			opts = append(opts, openai.WithEmbeddingModel(cfg.Kwargs.Model))
		}
		if cfg.Kwargs.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.Kwargs.APIKey))
		}
		if cfg.Kwargs.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.Kwargs.BaseURL))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return nil, core.AdapterErr("openai embeddings", err)
		}
		embOpts := []embeddings.Option{embeddings.WithStripNewLines(cfg.Kwargs.StripNewLines)}
		if cfg.Kwargs.BatchSize > 0 {
			embOpts = append(embOpts, embeddings.WithBatchSize(cfg.Kwargs.BatchSize))
		}
		impl, err := embeddings.NewEmbedder(client, embOpts...)
		if err != nil {
			return nil, core.AdapterErr("openai embeddings", err)
		}
		return impl, nil
	case ClassHuggingFace:
		opts := []hfembeddings.Option{}
		if cfg.Kwargs.Model != "" {
			opts = append(opts, hfembeddings.WithModel(cfg.Kwargs.Model))
		}
		impl, err := hfembeddings.NewHuggingface(opts...)
		if err != nil {
			return nil, core.AdapterErr("huggingface embeddings", err)
		}
		return impl, nil
	default:
		return nil, core.Unsupportedf("embedder class %q", cfg.Class)
	}
}

// ID returns the instance id.
func (a *Adapter) ID() string { return a.id }

// Class returns the configured class name.
func (a *Adapter) Class() string { return a.class }

// EnableCache initialises an LRU cache for query embeddings.
func (a *Adapter) EnableCache(size int) error {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return fmt.Errorf("embedder %q: init cache: %w", a.id, err)
	}
	a.cacheMu.Lock()
	a.cache = cache
	a.cacheMu.Unlock()
	return nil
}

// EmbedDocuments embeds a batch of texts.
func (a *Adapter) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := a.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, core.AdapterErr(fmt.Sprintf("embedder %q", a.id), err)
	}
	if len(vectors) != len(texts) {
		return nil, core.AdapterErr(
			fmt.Sprintf("embedder %q", a.id),
			fmt.Errorf("received %d embeddings for %d texts", len(vectors), len(texts)),
		)
	}
	return vectors, nil
}

// EmbedQuery embeds a single query text, consulting the cache when enabled.
func (a *Adapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	a.cacheMu.Lock()
	cache := a.cache
	a.cacheMu.Unlock()
	if cache != nil {
		if vector, ok := cache.Get(text); ok {
			return cloneVector(vector), nil
		}
	}
	vector, err := a.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, core.AdapterErr(fmt.Sprintf("embedder %q", a.id), err)
	}
	if cache != nil {
		cache.Add(text, cloneVector(vector))
	}
	return vector, nil
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
