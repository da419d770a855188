package server

import (
	"context"
	"strings"

	"github.com/spf13/afero"

	"github.com/ragplane/ragplane/engine/blob"
	"github.com/ragplane/ragplane/engine/catalog"
	"github.com/ragplane/ragplane/engine/chain"
	"github.com/ragplane/ragplane/engine/core"
	"github.com/ragplane/ragplane/engine/docstore"
	"github.com/ragplane/ragplane/engine/embedder"
	"github.com/ragplane/ragplane/engine/infra/mongoconn"
	"github.com/ragplane/ragplane/engine/llm"
	"github.com/ragplane/ragplane/engine/loader"
	"github.com/ragplane/ragplane/engine/prompt"
	"github.com/ragplane/ragplane/engine/registry"
	"github.com/ragplane/ragplane/engine/task"
	"github.com/ragplane/ragplane/engine/tool"
	"github.com/ragplane/ragplane/engine/transformer"
	"github.com/ragplane/ragplane/engine/vectorstore"
	"github.com/ragplane/ragplane/pkg/config"
)

// State bundles the stores, registries and engines the route handlers share.
// Registries rebuild lazily from the catalog, so state survives a restart
// through the catalog and blob contents alone.
type State struct {
	cfg     *config.Config
	fs      afero.Fs
	catalog catalog.Store
	blob    *blob.Store
	docs    docstore.Store
	tasks   *task.Runner
	engine  *chain.Engine

	embedders    *registry.Registry[*embedder.Adapter]
	vectorStores *registry.Registry[*vectorstore.Store]
	llms         *registry.Registry[*llm.Model]
	prompts      *registry.Registry[*prompt.Prompt]
	chatPrompts  *registry.Registry[*prompt.ChatPrompt]
	tools        *registry.Registry[tool.Tool]
	loaders      *registry.Registry[*loader.Loader]
	transformers *registry.Registry[*transformer.Transformer]
	transMaps    *registry.Registry[*transformer.Map]
	chains       *registry.Registry[chain.Chain]
}

// NewState connects the metadata backend and assembles the shared state.
func NewState(ctx context.Context, cfg *config.Config) (*State, error) {
	db, err := mongoconn.Connect(ctx, cfg.Mongo.ConnectionString, cfg.Mongo.Database)
	if err != nil {
		return nil, err
	}
	cat := catalog.NewMongoStore(db)
	if err := cat.EnsureCollections(ctx); err != nil {
		return nil, err
	}
	return BuildState(cfg, afero.NewOsFs(),
		cat,
		docstore.NewMongoStore(db),
		task.NewMongoStore(db),
	)
}

// BuildState assembles state over explicit store implementations. Tests pass
// in-memory stores here.
func BuildState(cfg *config.Config, fs afero.Fs, cat catalog.Store, docs docstore.Store, tasks task.Store) (*State, error) {
	blobStore, err := blob.NewStore(fs, cfg.Blob.Root)
	if err != nil {
		return nil, err
	}
	s := &State{
		cfg:     cfg,
		fs:      fs,
		catalog: cat,
		blob:    blobStore,
		docs:    docs,
		tasks:   task.NewRunner(tasks, cfg.Worker.MaxConcurrency),
	}
	s.embedders = registry.New(string(catalog.KindEmbedder), func(ctx context.Context, id string) (*embedder.Adapter, error) {
		body, err := cat.Get(ctx, catalog.KindEmbedder, id)
		if err != nil {
			return nil, err
		}
		return embedder.New(ctx, id, body)
	})
	s.vectorStores = registry.New(string(catalog.KindVectorStore), func(ctx context.Context, id string) (*vectorstore.Store, error) {
		body, err := cat.Get(ctx, catalog.KindVectorStore, id)
		if err != nil {
			return nil, err
		}
		embedderID, _ := body["embedder_id"].(string)
		if embedderID == "" {
			return nil, core.Validationf("vector store %s: embedder_id is required", id)
		}
		emb, err := s.embedders.Get(ctx, embedderID)
		if err != nil {
			return nil, err
		}
		return vectorstore.New(ctx, id, body, emb)
	}).WithReleaser(func(ctx context.Context, store *vectorstore.Store) error {
		return store.Close(ctx)
	})
	s.llms = registry.New(string(catalog.KindLLM), func(ctx context.Context, id string) (*llm.Model, error) {
		body, err := cat.Get(ctx, catalog.KindLLM, id)
		if err != nil {
			return nil, err
		}
		return llm.New(id, body)
	})
	s.prompts = registry.New(string(catalog.KindPrompt), func(ctx context.Context, id string) (*prompt.Prompt, error) {
		body, err := cat.Get(ctx, catalog.KindPrompt, id)
		if err != nil {
			return nil, err
		}
		return prompt.New(id, body)
	})
	s.chatPrompts = registry.New(string(catalog.KindChatPrompt), func(ctx context.Context, id string) (*prompt.ChatPrompt, error) {
		body, err := cat.Get(ctx, catalog.KindChatPrompt, id)
		if err != nil {
			return nil, err
		}
		return prompt.NewChat(id, body)
	})
	s.tools = registry.New(string(catalog.KindTool), func(ctx context.Context, id string) (tool.Tool, error) {
		body, err := cat.Get(ctx, catalog.KindTool, id)
		if err != nil {
			return nil, err
		}
		return tool.New(id, body)
	})
	s.loaders = registry.New(string(catalog.KindLoader), func(ctx context.Context, id string) (*loader.Loader, error) {
		body, err := cat.Get(ctx, catalog.KindLoader, id)
		if err != nil {
			return nil, err
		}
		return loader.FromBody(body)
	})
	s.transformers = registry.New(string(catalog.KindTransformer), func(ctx context.Context, id string) (*transformer.Transformer, error) {
		body, err := cat.Get(ctx, catalog.KindTransformer, id)
		if err != nil {
			return nil, err
		}
		return transformer.FromBody(body)
	})
	s.transMaps = registry.New(string(catalog.KindTransformerMap), func(ctx context.Context, id string) (*transformer.Map, error) {
		body, err := cat.Get(ctx, catalog.KindTransformerMap, id)
		if err != nil {
			return nil, err
		}
		return transformer.MapFromBody(body)
	})
	s.engine = chain.NewEngine(chain.Deps{
		LLM:          s.llms.Get,
		Prompt:       s.prompts.Get,
		ChatPrompt:   s.chatPrompts.Get,
		VectorStore:  s.vectorStores.Get,
		StreamBuffer: cfg.Worker.StreamBuffer,
	})
	s.chains = registry.New(string(catalog.KindChain), func(ctx context.Context, id string) (chain.Chain, error) {
		body, err := cat.Get(ctx, catalog.KindChain, id)
		if err != nil {
			return nil, err
		}
		return s.engine.Build(ctx, id, body)
	})
	return s, nil
}

// Close releases the metadata backend connection.
func (s *State) Close(ctx context.Context) error {
	return s.catalog.Close(ctx)
}

// chainHandle resolves a chain id, falling back to the "<id>_config"
// configuration name when the id itself is unknown.
func (s *State) chainHandle(ctx context.Context, id string) (chain.Chain, error) {
	c, err := s.chains.Get(ctx, id)
	if err == nil {
		return c, nil
	}
	if !core.IsNotFound(err) || strings.HasSuffix(id, "_config") {
		return nil, err
	}
	fallback, ferr := s.chains.Get(ctx, id+"_config")
	if ferr != nil {
		return nil, err
	}
	return fallback, nil
}
