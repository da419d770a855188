package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragplane/ragplane/engine/core"
)

func TestMemoryStore_Create(t *testing.T) {
	ctx := context.Background()
	t.Run("Should store and return a deep copy of the body", func(t *testing.T) {
		store := NewMemoryStore()
		body := map[string]any{"class": "TextLoader", "kwargs": map[string]any{"encoding": "utf-8"}}
		require.NoError(t, store.Create(ctx, KindLoader, "l1", body))
		body["class"] = "mutated"
		got, err := store.Get(ctx, KindLoader, "l1")
		require.NoError(t, err)
		assert.Equal(t, "TextLoader", got["class"])
		got["class"] = "mutated-again"
		again, err := store.Get(ctx, KindLoader, "l1")
		require.NoError(t, err)
		assert.Equal(t, "TextLoader", again["class"])
	})
	t.Run("Should fail on duplicate id within a kind", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Create(ctx, KindLLM, "gpt", map[string]any{}))
		assert.ErrorIs(t, store.Create(ctx, KindLLM, "gpt", map[string]any{}), core.ErrAlreadyExists)
	})
	t.Run("Should allow the same id across kinds", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Create(ctx, KindLLM, "shared", map[string]any{}))
		assert.NoError(t, store.Create(ctx, KindPrompt, "shared", map[string]any{}))
	})
	t.Run("Should reject empty id", func(t *testing.T) {
		store := NewMemoryStore()
		assert.ErrorIs(t, store.Create(ctx, KindLLM, "", map[string]any{}), core.ErrValidation)
	})
}

func TestMemoryStore_Update(t *testing.T) {
	ctx := context.Background()
	t.Run("Should replace the body wholesale", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Create(ctx, KindPrompt, "p", map[string]any{"template": "a", "extra": 1}))
		require.NoError(t, store.Update(ctx, KindPrompt, "p", map[string]any{"template": "b"}))
		got, err := store.Get(ctx, KindPrompt, "p")
		require.NoError(t, err)
		assert.Equal(t, "b", got["template"])
		assert.NotContains(t, got, "extra")
	})
	t.Run("Should fail for unknown id", func(t *testing.T) {
		store := NewMemoryStore()
		assert.ErrorIs(t, store.Update(ctx, KindPrompt, "nope", map[string]any{}), core.ErrNotFound)
	})
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	t.Run("Should remove the config", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Create(ctx, KindTool, "t", map[string]any{}))
		require.NoError(t, store.Delete(ctx, KindTool, "t"))
		_, err := store.Get(ctx, KindTool, "t")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
	t.Run("Should fail for unknown id", func(t *testing.T) {
		store := NewMemoryStore()
		assert.ErrorIs(t, store.Delete(ctx, KindTool, "nope"), core.ErrNotFound)
	})
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	t.Run("Should preserve insertion order", func(t *testing.T) {
		store := NewMemoryStore()
		for _, id := range []string{"zeta", "alpha", "mid"} {
			require.NoError(t, store.Create(ctx, KindChain, id, map[string]any{}))
		}
		entries, err := store.List(ctx, KindChain)
		require.NoError(t, err)
		ids := make([]string, 0, len(entries))
		for _, e := range entries {
			ids = append(ids, e.ID)
		}
		assert.Equal(t, []string{"zeta", "alpha", "mid"}, ids)
	})
	t.Run("Should return empty slice for unused kind", func(t *testing.T) {
		store := NewMemoryStore()
		entries, err := store.List(ctx, KindEmbedder)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestMemoryStore_Search(t *testing.T) {
	ctx := context.Background()
	t.Run("Should filter bodies with the query DSL", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Create(ctx, KindLoader, "a", map[string]any{"class": "TextLoader"}))
		require.NoError(t, store.Create(ctx, KindLoader, "b", map[string]any{"class": "CSVLoader"}))
		entries, err := store.Search(ctx, KindLoader, map[string]any{"class": "CSVLoader"})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "b", entries[0].ID)
	})
	t.Run("Should support $or across bodies", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Create(ctx, KindLoader, "a", map[string]any{"class": "TextLoader"}))
		require.NoError(t, store.Create(ctx, KindLoader, "b", map[string]any{"class": "CSVLoader"}))
		require.NoError(t, store.Create(ctx, KindLoader, "c", map[string]any{"class": "PyMuPDFLoader"}))
		entries, err := store.Search(ctx, KindLoader, map[string]any{"$or": []any{
			map[string]any{"class": "TextLoader"},
			map[string]any{"class": "CSVLoader"},
		}})
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})
	t.Run("Should reject invalid filters", func(t *testing.T) {
		store := NewMemoryStore()
		_, err := store.Search(ctx, KindLoader, map[string]any{"$or": "bad"})
		assert.Error(t, err)
	})
}
