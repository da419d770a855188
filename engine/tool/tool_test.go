package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragplane/ragplane/engine/core"
)

func TestNew(t *testing.T) {
	t.Run("Should reject an unknown class", func(t *testing.T) {
		_, err := New("t1", map[string]any{"class": "TimeMachine"})
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrUnsupported)
	})

	t.Run("Should reject a malformed config body", func(t *testing.T) {
		_, err := New("t1", map[string]any{"class": ClassPythonREPL, "kwargs": "nope"})
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("Should build a search tool", func(t *testing.T) {
		impl, err := New("search", map[string]any{
			"class":  ClassDuckDuckGo,
			"kwargs": map[string]any{"max_results": 3},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, impl.Name())
	})

	t.Run("Should build a wikipedia tool", func(t *testing.T) {
		impl, err := New("wiki", map[string]any{"class": ClassWikipedia})
		require.NoError(t, err)
		assert.NotEmpty(t, impl.Description())
	})
}

func TestPythonREPL(t *testing.T) {
	t.Run("Should default name, description and interpreter", func(t *testing.T) {
		impl, err := New("repl", map[string]any{"class": ClassPythonREPL})
		require.NoError(t, err)
		assert.Equal(t, "python_repl", impl.Name())
		assert.Contains(t, impl.Description(), "print")
	})

	t.Run("Should honour a custom name and description", func(t *testing.T) {
		impl, err := New("repl", map[string]any{
			"class": ClassPythonAstREPL,
			"kwargs": map[string]any{
				"name":        "calculator",
				"description": "Evaluates expressions.",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "calculator", impl.Name())
		assert.Equal(t, "Evaluates expressions.", impl.Description())
	})

	t.Run("Should run a snippet through the configured interpreter", func(t *testing.T) {
		impl, err := New("repl", map[string]any{
			"class":  ClassPythonREPL,
			"kwargs": map[string]any{"interpreter": "sh"},
		})
		require.NoError(t, err)
		out, err := impl.Call(context.Background(), "echo hi")
		require.NoError(t, err)
		assert.Equal(t, "hi\n", out)
	})

	t.Run("Should surface stderr output on failure instead of erroring", func(t *testing.T) {
		impl, err := New("repl", map[string]any{
			"class":  ClassPythonREPL,
			"kwargs": map[string]any{"interpreter": "sh"},
		})
		require.NoError(t, err)
		out, err := impl.Call(context.Background(), "echo oops >&2; exit 1")
		require.NoError(t, err)
		assert.Contains(t, out, "oops")
	})
}
