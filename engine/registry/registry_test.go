package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragplane/ragplane/engine/core"
)

func TestRegistry_Get(t *testing.T) {
	ctx := context.Background()
	t.Run("Should build lazily and cache the handle", func(t *testing.T) {
		var calls atomic.Int32
		reg := New("llm", func(_ context.Context, id string) (string, error) {
			calls.Add(1)
			return "handle:" + id, nil
		})
		first, err := reg.Get(ctx, "a")
		require.NoError(t, err)
		second, err := reg.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "handle:a", first)
		assert.Equal(t, first, second)
		assert.Equal(t, int32(1), calls.Load())
	})
	t.Run("Should construct at most once under concurrency", func(t *testing.T) {
		var calls atomic.Int32
		reg := New("llm", func(_ context.Context, id string) (string, error) {
			calls.Add(1)
			return id, nil
		})
		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := reg.Get(ctx, "shared")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), calls.Load())
	})
	t.Run("Should not cache factory failures", func(t *testing.T) {
		var calls atomic.Int32
		reg := New("llm", func(_ context.Context, _ string) (string, error) {
			if calls.Add(1) == 1 {
				return "", core.NotFoundf("llm config %q", "x")
			}
			return "ok", nil
		})
		_, err := reg.Get(ctx, "x")
		require.ErrorIs(t, err, core.ErrNotFound)
		handle, err := reg.Get(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, "ok", handle)
	})
	t.Run("Should reject empty id", func(t *testing.T) {
		reg := New("llm", func(_ context.Context, id string) (string, error) { return id, nil })
		_, err := reg.Get(ctx, "")
		assert.ErrorIs(t, err, core.ErrValidation)
	})
}

func TestRegistry_Load(t *testing.T) {
	ctx := context.Background()
	t.Run("Should fail when instance is already live", func(t *testing.T) {
		reg := New("tool", func(_ context.Context, id string) (int, error) { return 42, nil })
		_, err := reg.Load(ctx, "t")
		require.NoError(t, err)
		_, err = reg.Load(ctx, "t")
		assert.ErrorIs(t, err, core.ErrAlreadyLoaded)
	})
}

func TestRegistry_Unload(t *testing.T) {
	ctx := context.Background()
	t.Run("Should release the handle and allow rebuild", func(t *testing.T) {
		var released []string
		reg := New("vs", func(_ context.Context, id string) (string, error) {
			return "live:" + id, nil
		}).WithReleaser(func(_ context.Context, handle string) error {
			released = append(released, handle)
			return nil
		})
		_, err := reg.Get(ctx, "v")
		require.NoError(t, err)
		require.NoError(t, reg.Unload(ctx, "v"))
		assert.Equal(t, []string{"live:v"}, released)
		assert.False(t, reg.Loaded("v"))
		_, err = reg.Get(ctx, "v")
		assert.NoError(t, err)
	})
	t.Run("Should fail when instance is not live", func(t *testing.T) {
		reg := New("vs", func(_ context.Context, id string) (string, error) { return id, nil })
		assert.ErrorIs(t, reg.Unload(ctx, "ghost"), core.ErrNotLoaded)
	})
}

func TestRegistry_List(t *testing.T) {
	ctx := context.Background()
	t.Run("Should return sorted live ids", func(t *testing.T) {
		reg := New("p", func(_ context.Context, id string) (string, error) { return id, nil })
		for _, id := range []string{"c", "a", "b"} {
			_, err := reg.Get(ctx, id)
			require.NoError(t, err)
		}
		assert.Equal(t, []string{"a", "b", "c"}, reg.List())
	})
}
