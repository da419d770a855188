// Package transformer splits documents into chunks carrying provenance back
// to their parents.
package transformer

import (
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/ragplane/ragplane/engine/core"
	"github.com/ragplane/ragplane/engine/docstore"
)

// Supported transformer classes.
const (
	ClassCharacter          = "CharacterTextSplitter"
	ClassRecursiveCharacter = "RecursiveCharacterTextSplitter"
	ClassToken              = "TokenTextSplitter"
)

// Chunk metadata keys stamped during enrichment.
const (
	MetadataKeySourceMetadata    = "source_document_metadata"
	MetadataKeySplitIndex        = "split_index"
	MetadataKeyMaxSplitIndex     = "max_split_index"
	MetadataKeyTransformerConfig = "transformer_config"
)

// Kwargs carries the per-class splitter arguments.
type Kwargs struct {
	ChunkSize    int      `json:"chunk_size,omitempty"`
	ChunkOverlap int      `json:"chunk_overlap,omitempty"`
	Separator    string   `json:"separator,omitempty"`
	Separators   []string `json:"separators,omitempty"`
	ModelName    string   `json:"model_name,omitempty"`
	EncodingName string   `json:"encoding_name,omitempty"`
}

// Config is the persisted transformer configuration body.
type Config struct {
	Class    string `json:"class"`
	Kwargs   Kwargs `json:"kwargs"`
	IDPrefix string `json:"id_prefix,omitempty"`
	IDSuffix string `json:"id_suffix,omitempty"`
}

// Transformer splits documents and enriches the produced chunks.
type Transformer struct {
	cfg      Config
	splitter textsplitter.TextSplitter
}

// New builds a transformer from its configuration.
func New(cfg *Config) (*Transformer, error) {
	if cfg == nil {
		return nil, core.Validationf("transformer: config is required")
	}
	splitter, err := buildSplitter(cfg)
	if err != nil {
		return nil, err
	}
	return &Transformer{cfg: *cfg, splitter: splitter}, nil
}

// FromBody decodes a raw configuration body and builds the transformer.
func FromBody(body map[string]any) (*Transformer, error) {
	cfg := &Config{}
	if err := core.DeepCopyJSON(body, cfg); err != nil {
		return nil, core.Validationf("transformer: invalid config body: %v", err)
	}
	return New(cfg)
}

func buildSplitter(cfg *Config) (textsplitter.TextSplitter, error) {
	size := cfg.Kwargs.ChunkSize
	if size <= 0 {
		size = 512
	}
	overlap := cfg.Kwargs.ChunkOverlap
	if overlap < 0 || overlap >= size {
		return nil, core.Validationf("transformer: overlap %d must be in [0, %d)", overlap, size)
	}
	switch cfg.Class {
	case ClassCharacter:
		separator := cfg.Kwargs.Separator
		if separator == "" {
			separator = "\n\n"
		}
		// The terminal "" separator splits character by character, so pieces
		// still over the chunk size after the separator pass keep splitting
		// instead of passing through oversized.
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators([]string{separator, ""}),
		), nil
	case ClassRecursiveCharacter:
		opts := []textsplitter.Option{
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		}
		if len(cfg.Kwargs.Separators) > 0 {
			opts = append(opts, textsplitter.WithSeparators(cfg.Kwargs.Separators))
		}
		return textsplitter.NewRecursiveCharacter(opts...), nil
	case ClassToken:
		opts := []textsplitter.Option{
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		}
		if cfg.Kwargs.ModelName != "" {
			opts = append(opts, textsplitter.WithModelName(cfg.Kwargs.ModelName))
		}
		if cfg.Kwargs.EncodingName != "" {
			opts = append(opts, textsplitter.WithEncodingName(cfg.Kwargs.EncodingName))
		}
		return textsplitter.NewTokenSplitter(opts...), nil
	default:
		return nil, core.Unsupportedf("transformer class %q", cfg.Class)
	}
}

// Config returns the transformer's configuration.
func (t *Transformer) Config() Config { return t.cfg }

// Transform splits each document and enriches every produced chunk with its
// provenance: the parent metadata at the moment of splitting, split indexes,
// the transformer settings, and a rewritten id.
func (t *Transformer) Transform(docs []docstore.Document) ([]docstore.Document, error) {
	chunks := make([]docstore.Document, 0, len(docs))
	for i := range docs {
		doc := &docs[i]
		segments, err := t.splitter.SplitText(doc.PageContent)
		if err != nil {
			return nil, fmt.Errorf("transformer: split document %s: %w", doc.ID, err)
		}
		parentMeta, err := snapshotMetadata(doc.Metadata)
		if err != nil {
			return nil, err
		}
		maxIndex := len(segments) - 1
		for idx, segment := range segments {
			chunkID := fmt.Sprintf("%s%s%s_%d", t.cfg.IDPrefix, doc.ID, t.cfg.IDSuffix, idx)
			metadata := core.CloneMap(doc.Metadata)
			if metadata == nil {
				metadata = make(map[string]any)
			}
			metadata[MetadataKeySourceMetadata] = parentMeta
			metadata[MetadataKeySplitIndex] = idx
			metadata[MetadataKeyMaxSplitIndex] = maxIndex
			metadata[MetadataKeyTransformerConfig] = map[string]any{
				"class":  t.cfg.Class,
				"kwargs": kwargsMap(&t.cfg.Kwargs),
			}
			metadata[docstore.MetadataKeyID] = chunkID
			chunks = append(chunks, docstore.Document{
				ID:          chunkID,
				Collection:  doc.Collection,
				PageContent: segment,
				Metadata:    metadata,
			})
		}
	}
	return chunks, nil
}

func snapshotMetadata(metadata map[string]any) (map[string]any, error) {
	if metadata == nil {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := core.DeepCopyJSON(metadata, &out); err != nil {
		return nil, core.Validationf("transformer: parent metadata is not serializable: %v", err)
	}
	return out, nil
}

func kwargsMap(kwargs *Kwargs) map[string]any {
	var out map[string]any
	if err := core.DeepCopyJSON(kwargs, &out); err != nil {
		return map[string]any{}
	}
	return out
}
