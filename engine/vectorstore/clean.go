package vectorstore

import "github.com/ragplane/ragplane/engine/docstore"

// Vector backends only accept flat scalar metadata; longer strings tend to be
// base64 payloads or serialized structures and are dropped alongside nested
// values.
const maxMetadataStringLen = 1024

// CleanMetadata keeps scalar values and short strings, dropping nested
// structures and binary-looking fields.
func CleanMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		switch v := value.(type) {
		case string:
			if len(v) <= maxMetadataStringLen {
				out[key] = v
			}
		case bool, int, int32, int64, float32, float64:
			out[key] = v
		}
	}
	return out
}

// CleanDocuments returns copies of docs with backend-safe metadata. Used by
// the ingest-from-doc-store shortcut.
func CleanDocuments(docs []docstore.Document) []docstore.Document {
	out := make([]docstore.Document, len(docs))
	for i, doc := range docs {
		doc.Metadata = CleanMetadata(doc.Metadata)
		out[i] = doc
	}
	return out
}
