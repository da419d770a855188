package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/ragplane/ragplane/engine/core"
)

type flakyModel struct {
	failures atomic.Int32
	response string
	seen     llms.CallOptions
}

func (m *flakyModel) GenerateContent(_ context.Context, _ []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if m.failures.Load() > 0 {
		m.failures.Add(-1)
		return nil, errors.New("upstream hiccup")
	}
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	m.seen = opts
	if opts.StreamingFunc != nil {
		if err := opts.StreamingFunc(context.Background(), []byte(m.response)); err != nil {
			return nil, err
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.response}}}, nil
}

func (m *flakyModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := m.GenerateContent(ctx, nil, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func TestNew(t *testing.T) {
	t.Run("Should build an OpenAI-backed model", func(t *testing.T) {
		m, err := New("m", map[string]any{
			"class":  ClassChatOpenAI,
			"kwargs": map[string]any{"api_key": "sk-test", "model": "gpt-4o-mini"},
		})
		require.NoError(t, err)
		assert.Equal(t, "m", m.ID())
		assert.Equal(t, ClassChatOpenAI, m.Class())
	})
	t.Run("Should require base_url for vLLM classes", func(t *testing.T) {
		_, err := New("m", map[string]any{
			"class":  ClassVLLM,
			"kwargs": map[string]any{"model": "llama"},
		})
		assert.ErrorIs(t, err, core.ErrValidation)
	})
	t.Run("Should reject unknown classes", func(t *testing.T) {
		_, err := New("m", map[string]any{"class": "MysteryModel"})
		assert.ErrorIs(t, err, core.ErrUnsupported)
	})
	t.Run("Should reject malformed bodies", func(t *testing.T) {
		_, err := New("m", map[string]any{"class": ClassOpenAI, "kwargs": "nope"})
		assert.ErrorIs(t, err, core.ErrValidation)
	})
}

func TestModel_CallOptions(t *testing.T) {
	t.Run("Should surface only configured kwargs", func(t *testing.T) {
		temp := 0.2
		m, err := New("m", map[string]any{
			"class": ClassChatOpenAI,
			"kwargs": map[string]any{
				"api_key":     "sk-test",
				"temperature": temp,
				"max_tokens":  256,
				"stop":        []any{"END"},
			},
		})
		require.NoError(t, err)
		assert.Len(t, m.CallOptions(), 3)
	})
	t.Run("Should be empty without generation kwargs", func(t *testing.T) {
		m, err := New("m", map[string]any{
			"class":  ClassChatOpenAI,
			"kwargs": map[string]any{"api_key": "sk-test"},
		})
		require.NoError(t, err)
		assert.Empty(t, m.CallOptions())
	})
}

func TestOptionsFromKwargs(t *testing.T) {
	t.Run("Should map the recognised sampling keys", func(t *testing.T) {
		opts, err := OptionsFromKwargs(map[string]any{
			"model":       "gpt-4o",
			"temperature": 0.1,
			"max_tokens":  5,
			"top_p":       0.9,
			"stop":        []any{"END"},
		})
		require.NoError(t, err)
		resolved := llms.CallOptions{}
		for _, opt := range opts {
			opt(&resolved)
		}
		assert.Equal(t, "gpt-4o", resolved.Model)
		assert.Equal(t, 0.1, resolved.Temperature)
		assert.Equal(t, 5, resolved.MaxTokens)
		assert.Equal(t, 0.9, resolved.TopP)
		assert.Equal(t, []string{"END"}, resolved.StopWords)
	})
	t.Run("Should return nothing for empty kwargs", func(t *testing.T) {
		opts, err := OptionsFromKwargs(nil)
		require.NoError(t, err)
		assert.Empty(t, opts)
	})
	t.Run("Should reject malformed kwargs", func(t *testing.T) {
		_, err := OptionsFromKwargs(map[string]any{"max_tokens": "many"})
		assert.ErrorIs(t, err, core.ErrValidation)
	})
}

func TestModel_Generate(t *testing.T) {
	ctx := context.Background()
	t.Run("Should return the first choice text", func(t *testing.T) {
		m := Wrap("m", &flakyModel{response: "hello"})
		out, err := m.Generate(ctx, "hi")
		require.NoError(t, err)
		assert.Equal(t, "hello", out)
	})
	t.Run("Should forward per-call options to the provider", func(t *testing.T) {
		impl := &flakyModel{response: "tuned"}
		m := Wrap("m", impl)
		_, err := m.Generate(ctx, "hi", llms.WithTemperature(0.4), llms.WithMaxTokens(7))
		require.NoError(t, err)
		assert.Equal(t, 0.4, impl.seen.Temperature)
		assert.Equal(t, 7, impl.seen.MaxTokens)
	})
	t.Run("Should retry transient provider failures", func(t *testing.T) {
		impl := &flakyModel{response: "recovered"}
		impl.failures.Store(1)
		m := Wrap("m", impl)
		out, err := m.Generate(ctx, "hi")
		require.NoError(t, err)
		assert.Equal(t, "recovered", out)
	})
	t.Run("Should give up after exhausting retries", func(t *testing.T) {
		impl := &flakyModel{response: "never"}
		impl.failures.Store(10)
		m := Wrap("m", impl)
		_, err := m.Generate(ctx, "hi")
		require.ErrorIs(t, err, core.ErrAdapter)
	})
}

func TestModel_StreamContent(t *testing.T) {
	ctx := context.Background()
	t.Run("Should forward chunks to the callback", func(t *testing.T) {
		m := Wrap("m", &flakyModel{response: "streamed"})
		var got string
		resp, err := m.StreamContent(ctx, nil, func(_ context.Context, chunk []byte) error {
			got += string(chunk)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "streamed", got)
		assert.Equal(t, "streamed", resp.Choices[0].Content)
	})
	t.Run("Should not retry streaming calls", func(t *testing.T) {
		impl := &flakyModel{response: "x"}
		impl.failures.Store(1)
		m := Wrap("m", impl)
		_, err := m.StreamContent(ctx, nil, func(context.Context, []byte) error { return nil })
		require.ErrorIs(t, err, core.ErrAdapter)
		// One failure consumed, none retried.
		assert.Equal(t, int32(0), impl.failures.Load())
	})
}
