package blob

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragplane/ragplane/engine/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(afero.NewMemMapFs(), "/data/files")
	require.NoError(t, err)
	return store
}

func TestStore_Save(t *testing.T) {
	ctx := context.Background()
	t.Run("Should persist bytes and metadata together", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Save(ctx, "docs/a.txt", []byte("hello"), map[string]any{"owner": "ops"}))
		data, err := store.Get(ctx, "docs/a.txt")
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
		meta, err := store.GetMeta(ctx, "docs/a.txt")
		require.NoError(t, err)
		require.NotNil(t, meta.Size)
		assert.Equal(t, int64(5), *meta.Size)
		assert.Equal(t, "docs/a.txt", meta.Path)
		assert.Equal(t, "ops", meta.Custom["owner"])
		assert.Contains(t, meta.MIME, "text/plain")
	})
	t.Run("Should store unsafe paths under encoded keys", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Save(ctx, "dir with space/naïve.txt", []byte("x"), nil))
		data, err := store.Get(ctx, "dir with space/naïve.txt")
		require.NoError(t, err)
		assert.Equal(t, "x", string(data))
		entries, err := store.List(ctx, "")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "dir with space/naïve.txt", entries[0].Path)
	})
	t.Run("Should merge custom metadata on re-save", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Save(ctx, "a.txt", []byte("v1"), map[string]any{"a": "1"}))
		require.NoError(t, store.Save(ctx, "a.txt", []byte("v2"), map[string]any{"b": "2"}))
		meta, err := store.GetMeta(ctx, "a.txt")
		require.NoError(t, err)
		assert.Equal(t, "1", meta.Custom["a"])
		assert.Equal(t, "2", meta.Custom["b"])
	})
	t.Run("Should reject empty path", func(t *testing.T) {
		store := newTestStore(t)
		err := store.Save(ctx, "", []byte("x"), nil)
		assert.ErrorIs(t, err, core.ErrValidation)
	})
}

func TestStore_Update(t *testing.T) {
	ctx := context.Background()
	t.Run("Should fail for missing file", func(t *testing.T) {
		store := newTestStore(t)
		err := store.Update(ctx, "nope.txt", []byte("x"), nil)
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
	t.Run("Should overwrite existing bytes", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Save(ctx, "a.txt", []byte("old"), nil))
		require.NoError(t, store.Update(ctx, "a.txt", []byte("new"), nil))
		data, err := store.Get(ctx, "a.txt")
		require.NoError(t, err)
		assert.Equal(t, "new", string(data))
	})
}

func TestStore_Get(t *testing.T) {
	ctx := context.Background()
	t.Run("Should return nil for absent path", func(t *testing.T) {
		store := newTestStore(t)
		data, err := store.Get(ctx, "missing.bin")
		require.NoError(t, err)
		assert.Nil(t, data)
	})
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	t.Run("Should remove bytes and metadata", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Save(ctx, "a.txt", []byte("x"), nil))
		require.NoError(t, store.Delete(ctx, "a.txt"))
		data, err := store.Get(ctx, "a.txt")
		require.NoError(t, err)
		assert.Nil(t, data)
		_, err = store.GetMeta(ctx, "a.txt")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
	t.Run("Should succeed for absent path", func(t *testing.T) {
		store := newTestStore(t)
		assert.NoError(t, store.Delete(ctx, "never-there.txt"))
	})
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	t.Run("Should filter by prefix and sort by path", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Save(ctx, "b/two.txt", []byte("2"), nil))
		require.NoError(t, store.Save(ctx, "a/one.txt", []byte("1"), nil))
		require.NoError(t, store.Save(ctx, "b/one.txt", []byte("1"), nil))
		entries, err := store.List(ctx, "b/")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "b/one.txt", entries[0].Path)
		assert.Equal(t, "b/two.txt", entries[1].Path)
	})
}

func TestStore_Search(t *testing.T) {
	ctx := context.Background()
	t.Run("Should match path substrings case-insensitively", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Save(ctx, "Reports/Q1.txt", []byte("x"), nil))
		require.NoError(t, store.Save(ctx, "misc/notes.txt", []byte("x"), nil))
		entries, err := store.Search(ctx, "reports", "")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "Reports/Q1.txt", entries[0].Path)
	})
	t.Run("Should match string custom metadata", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Save(ctx, "a.txt", []byte("x"), map[string]any{"team": "Platform"}))
		entries, err := store.Search(ctx, "platform", "")
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestStore_Filter(t *testing.T) {
	ctx := context.Background()
	t.Run("Should filter by mime prefix and size bounds", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Save(ctx, "small.txt", []byte("hi"), nil))
		require.NoError(t, store.Save(ctx, "big.txt", []byte("a much longer body of text"), nil))
		entries, err := store.Filter(ctx, "text/", 10, 0)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "big.txt", entries[0].Path)
	})
}

func TestStore_Dirs(t *testing.T) {
	ctx := context.Background()
	t.Run("Should create list and delete directory metadata", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.CreateDir(ctx, "archive", map[string]any{"retention": "30d"}))
		dirs, err := store.ListDirs(ctx)
		require.NoError(t, err)
		require.Len(t, dirs, 1)
		assert.True(t, dirs[0].IsDir())
		assert.Equal(t, "30d", dirs[0].Custom["retention"])
		require.NoError(t, store.DeleteDir(ctx, "archive"))
		dirs, err = store.ListDirs(ctx)
		require.NoError(t, err)
		assert.Empty(t, dirs)
	})
	t.Run("Should fail deleting unknown directory", func(t *testing.T) {
		store := newTestStore(t)
		assert.ErrorIs(t, store.DeleteDir(ctx, "ghost"), core.ErrNotFound)
	})
	t.Run("Should replace metadata on save and merge on update", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.CreateDir(ctx, "d", map[string]any{"a": "1", "b": "2"}))
		require.NoError(t, store.SaveDirMeta(ctx, "d", map[string]any{"c": "3"}))
		dirs, err := store.ListDirs(ctx)
		require.NoError(t, err)
		require.Len(t, dirs, 1)
		assert.Equal(t, map[string]any{"c": "3"}, dirs[0].Custom)
		require.NoError(t, store.UpdateDirMeta(ctx, "d", map[string]any{"a": "9"}))
		dirs, err = store.ListDirs(ctx)
		require.NoError(t, err)
		assert.Equal(t, "9", dirs[0].Custom["a"])
		assert.Equal(t, "3", dirs[0].Custom["c"])
	})
}
