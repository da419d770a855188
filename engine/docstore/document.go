// Package docstore provides named buckets of full-text documents with
// metadata, persisted in the metadata backend.
package docstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ragplane/ragplane/engine/core"
)

// MetadataKeyID lets clients supply their own document id.
const MetadataKeyID = "id"

// Enrichment keys always present after insertion.
const (
	MetadataKeyStoreID    = "doc_store_id"
	MetadataKeyCollection = "doc_store_collection"
)

// Document is one stored text unit. (collection, id) is unique.
type Document struct {
	ID          string         `json:"id"`
	Collection  string         `json:"collection"`
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata"`
}

// CollectionInfo is the separate per-collection metadata record.
type CollectionInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	Custom      map[string]any `json:"custom_metadata,omitempty"`
}

// Store is the document bucket contract. List and Search page with
// skip/limit; Search matches a regex over content, metadata.title and id.
type Store interface {
	CreateCollection(ctx context.Context, name, description string, custom map[string]any) error
	GetCollection(ctx context.Context, name string) (*CollectionInfo, error)
	ListCollections(ctx context.Context) ([]CollectionInfo, error)
	DeleteCollection(ctx context.Context, name string) error

	Create(ctx context.Context, collection string, doc *Document) (string, error)
	Get(ctx context.Context, collection, id string) (*Document, error)
	Update(ctx context.Context, collection, id string, doc *Document) error
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection, prefix string, skip, limit int) ([]Document, error)
	Search(ctx context.Context, collection, pattern string, skip, limit int) ([]Document, error)
	All(ctx context.Context, collection string) ([]Document, error)
	Close(ctx context.Context) error
}

// Normalize assigns the document id (client-supplied via metadata.id or a
// fresh UUID) and stamps the enrichment keys. Returns the effective id.
func Normalize(collection string, doc *Document) (string, error) {
	if doc == nil {
		return "", core.Validationf("docstore: document is required")
	}
	if collection == "" {
		return "", core.Validationf("docstore: collection is required")
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any)
	}
	id := doc.ID
	if id == "" {
		if supplied, ok := doc.Metadata[MetadataKeyID].(string); ok && supplied != "" {
			id = supplied
		} else {
			id = uuid.NewString()
		}
	}
	doc.ID = id
	doc.Collection = collection
	doc.Metadata[MetadataKeyStoreID] = id
	doc.Metadata[MetadataKeyCollection] = collection
	return id, nil
}
