// Package catalog is the durable configuration store partitioned by kind.
// It is the single source of truth: a process restart reconstructs behaviour
// solely from catalog and blob store contents.
package catalog

import (
	"context"
	"time"
)

// Kind identifies a configuration collection.
type Kind string

const (
	KindDataStoreDir       Kind = "data_store_dir"
	KindLoader             Kind = "loader"
	KindTransformer        Kind = "transformer"
	KindTransformerMap     Kind = "transformer_map"
	KindDocStoreCollection Kind = "doc_store_collection"
	KindEmbedder           Kind = "embedder"
	KindVectorStore        Kind = "vector_store"
	KindLLM                Kind = "llm"
	KindPrompt             Kind = "prompt"
	KindChatPrompt         Kind = "chat_prompt"
	KindTool               Kind = "tool"
	KindChain              Kind = "chain"
)

// Kinds enumerates every configuration kind, one metadata collection each.
func Kinds() []Kind {
	return []Kind{
		KindDataStoreDir,
		KindLoader,
		KindTransformer,
		KindTransformerMap,
		KindDocStoreCollection,
		KindEmbedder,
		KindVectorStore,
		KindLLM,
		KindPrompt,
		KindChatPrompt,
		KindTool,
		KindChain,
	}
}

// Entry is one stored configuration document.
type Entry struct {
	Kind      Kind           `json:"kind"`
	ID        string         `json:"id"`
	Body      map[string]any `json:"body"`
	Seq       int64          `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Store is the durable mapping (kind, config_id) → config body.
// Every write is atomic for its document; there are no cross-kind
// transactions. List order is insertion order.
type Store interface {
	Create(ctx context.Context, kind Kind, id string, body map[string]any) error
	Get(ctx context.Context, kind Kind, id string) (map[string]any, error)
	Update(ctx context.Context, kind Kind, id string, body map[string]any) error
	Delete(ctx context.Context, kind Kind, id string) error
	List(ctx context.Context, kind Kind) ([]Entry, error)
	Search(ctx context.Context, kind Kind, filter map[string]any) ([]Entry, error)
	Close(ctx context.Context) error
}
