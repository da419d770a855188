package vectorstore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragplane/ragplane/engine/core"
	"github.com/ragplane/ragplane/engine/docstore"
	"github.com/ragplane/ragplane/engine/embedder"
)

// axisEmbedder maps texts onto two axes so similarity is predictable: the
// "feline" axis and the "canine" axis.
type axisEmbedder struct{}

func embedText(text string) []float32 {
	v := []float32{0.1, 0.1}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "cat") {
		v[0] = 1
	}
	if strings.Contains(lower, "dog") {
		v[1] = 1
	}
	return v
}

func (axisEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = embedText(text)
	}
	return out, nil
}

func (axisEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return embedText(text), nil
}

func newTestStore() *Store {
	return NewWithBackend("vs", embedder.Wrap("emb", axisEmbedder{}), newMemoryIndex(2))
}

func TestStore_AddDocuments(t *testing.T) {
	ctx := context.Background()
	t.Run("Should index documents and return their ids", func(t *testing.T) {
		store := newTestStore()
		ids, err := store.AddDocuments(ctx, []docstore.Document{
			{ID: "c1", PageContent: "cats purr"},
			{ID: "d1", PageContent: "dogs bark"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"c1", "d1"}, ids)
	})
	t.Run("Should generate ids when absent", func(t *testing.T) {
		store := newTestStore()
		ids, err := store.AddDocuments(ctx, []docstore.Document{{PageContent: "cats"}})
		require.NoError(t, err)
		require.Len(t, ids, 1)
		assert.NotEmpty(t, ids[0])
	})
	t.Run("Should converge on re-ingestion of the same ids", func(t *testing.T) {
		store := newTestStore()
		docs := []docstore.Document{{ID: "c1", PageContent: "cats purr"}}
		_, err := store.AddDocuments(ctx, docs)
		require.NoError(t, err)
		_, err = store.AddDocuments(ctx, docs)
		require.NoError(t, err)
		results, err := store.SimilaritySearch(ctx, "cat", 10)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})
}

func TestStore_SimilaritySearch(t *testing.T) {
	ctx := context.Background()
	t.Run("Should rank the closer document first", func(t *testing.T) {
		store := newTestStore()
		_, err := store.AddDocuments(ctx, []docstore.Document{
			{ID: "c1", PageContent: "cats purr", Metadata: map[string]any{"animal": "cat"}},
			{ID: "d1", PageContent: "dogs bark", Metadata: map[string]any{"animal": "dog"}},
		})
		require.NoError(t, err)
		results, err := store.SimilaritySearch(ctx, "tell me about cats", 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "c1", results[0].ID)
		assert.Equal(t, "cat", results[0].Metadata["animal"])
		assert.Greater(t, results[0].Score, results[1].Score)
	})
	t.Run("Should cap results at k", func(t *testing.T) {
		store := newTestStore()
		_, err := store.AddTexts(ctx, []string{"cat one", "cat two", "cat three"}, nil)
		require.NoError(t, err)
		results, err := store.SimilaritySearch(ctx, "cat", 2)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})
	t.Run("Should drop hits below the score threshold", func(t *testing.T) {
		store := newTestStore()
		_, err := store.AddDocuments(ctx, []docstore.Document{
			{ID: "c1", PageContent: "cats purr"},
			{ID: "d1", PageContent: "dogs bark"},
		})
		require.NoError(t, err)
		all, err := store.SimilaritySearchWithScores(ctx, "cat", 10, 0)
		require.NoError(t, err)
		require.Len(t, all, 2)
		strict, err := store.SimilaritySearchWithScores(ctx, "cat", 10, all[0].Score)
		require.NoError(t, err)
		assert.Len(t, strict, 1)
	})
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	t.Run("Should remove records by id", func(t *testing.T) {
		store := newTestStore()
		_, err := store.AddDocuments(ctx, []docstore.Document{{ID: "c1", PageContent: "cats"}})
		require.NoError(t, err)
		require.NoError(t, store.Delete(ctx, []string{"c1"}))
		results, err := store.SimilaritySearch(ctx, "cats", 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestStore_Update(t *testing.T) {
	ctx := context.Background()
	t.Run("Should re-embed and replace the record", func(t *testing.T) {
		store := newTestStore()
		_, err := store.AddDocuments(ctx, []docstore.Document{{ID: "x", PageContent: "cats"}})
		require.NoError(t, err)
		require.NoError(t, store.Update(ctx, "x", &docstore.Document{PageContent: "dogs"}))
		results, err := store.SimilaritySearch(ctx, "dogs", 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "x", results[0].ID)
		assert.Equal(t, "dogs", results[0].PageContent)
	})
}

func TestStore_AsRetriever(t *testing.T) {
	ctx := context.Background()
	t.Run("Should reject unknown search types", func(t *testing.T) {
		store := newTestStore()
		_, err := store.AsRetriever("cosine_walk", SearchKwargs{})
		assert.ErrorIs(t, err, core.ErrUnsupported)
	})
	t.Run("Should default to similarity search", func(t *testing.T) {
		store := newTestStore()
		_, err := store.AddTexts(ctx, []string{"cats purr", "dogs bark"}, nil)
		require.NoError(t, err)
		retriever, err := store.AsRetriever("", SearchKwargs{K: 1})
		require.NoError(t, err)
		results, err := retriever.Invoke(ctx, "cat")
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "cats purr", results[0].PageContent)
	})
	t.Run("Should run MMR search", func(t *testing.T) {
		store := newTestStore()
		_, err := store.AddTexts(ctx, []string{"cats purr", "cats nap", "dogs bark"}, nil)
		require.NoError(t, err)
		retriever, err := store.AsRetriever(SearchTypeMMR, SearchKwargs{K: 2, FetchK: 3, LambdaMult: 0.5})
		require.NoError(t, err)
		results, err := retriever.Invoke(ctx, "cat")
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})
}

func TestCleanDocuments(t *testing.T) {
	t.Run("Should strip non-primitive metadata values", func(t *testing.T) {
		cleaned := CleanDocuments([]docstore.Document{{
			ID: "d",
			Metadata: map[string]any{
				"keep_str":  "x",
				"keep_num":  3.5,
				"keep_bool": true,
				"drop_map":  map[string]any{"nested": 1},
				"drop_list": []any{1, 2},
			},
		}})
		require.Len(t, cleaned, 1)
		meta := cleaned[0].Metadata
		assert.Contains(t, meta, "keep_str")
		assert.Contains(t, meta, "keep_num")
		assert.Contains(t, meta, "keep_bool")
		assert.NotContains(t, meta, "drop_map")
		assert.NotContains(t, meta, "drop_list")
	})
}
