// Package llm materialises chat/completion model configurations into
// provider-backed adapters.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/ragplane/ragplane/engine/core"
)

// Supported model classes. The vLLM variants speak the OpenAI-compatible
// surface the inference server exposes, so all four resolve to the same
// client with different defaults.
const (
	ClassOpenAI     = "OpenAI"
	ClassChatOpenAI = "ChatOpenAI"
	ClassVLLM       = "VLLM"
	ClassVLLMOpenAI = "VLLMOpenAI"
)

// Kwargs carries the per-class constructor arguments.
type Kwargs struct {
	Model       string   `json:"model,omitempty"`
	APIKey      string   `json:"api_key,omitempty"`
	BaseURL     string   `json:"base_url,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	StopWords   []string `json:"stop,omitempty"`
	MaxRetries  int      `json:"max_retries,omitempty"`
}

// Config is the persisted llm configuration body.
type Config struct {
	Class  string `json:"class"`
	Kwargs Kwargs `json:"kwargs"`
}

// Model wraps a langchaingo model with the configured call defaults and a
// bounded retry policy for transient provider failures.
type Model struct {
	id   string
	cfg  Config
	impl llms.Model
}

// New builds a model adapter from a raw configuration body.
func New(id string, body map[string]any) (*Model, error) {
	cfg := &Config{}
	if err := core.DeepCopyJSON(body, cfg); err != nil {
		return nil, core.Validationf("llm %s: invalid config body: %v", id, err)
	}
	impl, err := buildImpl(cfg)
	if err != nil {
		return nil, err
	}
	return &Model{id: id, cfg: *cfg, impl: impl}, nil
}

// Wrap adapts an existing langchaingo model. Used by tests to substitute
// deterministic fakes at the provider seam.
func Wrap(id string, impl llms.Model) *Model {
	return &Model{id: id, cfg: Config{Class: ClassChatOpenAI}, impl: impl}
}

func buildImpl(cfg *Config) (llms.Model, error) {
	opts := []openai.Option{}
	if cfg.Kwargs.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Kwargs.Model))
	}
	if cfg.Kwargs.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.Kwargs.APIKey))
	}
	switch cfg.Class {
	case ClassOpenAI, ClassChatOpenAI:
		if cfg.Kwargs.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.Kwargs.BaseURL))
		}
	case ClassVLLM, ClassVLLMOpenAI:
		base := cfg.Kwargs.BaseURL
		if base == "" {
			return nil, core.Validationf("llm: class %s requires a base_url kwarg", cfg.Class)
		}
		opts = append(opts, openai.WithBaseURL(base))
		if cfg.Kwargs.APIKey == "" {
			// vLLM ignores the key but the client requires one.
			opts = append(opts, openai.WithToken("EMPTY"))
		}
	default:
		return nil, core.Unsupportedf("llm class %q", cfg.Class)
	}
	impl, err := openai.New(opts...)
	if err != nil {
		return nil, core.AdapterErr(cfg.Class, err)
	}
	return impl, nil
}

// OptionsFromKwargs maps per-call inference kwargs onto call options. The
// recognised keys mirror the constructor kwargs; unrecognised keys are
// dropped, the way providers treat unknown sampling parameters.
func OptionsFromKwargs(kwargs map[string]any) ([]llms.CallOption, error) {
	if len(kwargs) == 0 {
		return nil, nil
	}
	decoded := &Kwargs{}
	if err := core.DeepCopyJSON(kwargs, decoded); err != nil {
		return nil, core.Validationf("llm: invalid inference kwargs: %v", err)
	}
	opts := []llms.CallOption{}
	if decoded.Model != "" {
		opts = append(opts, llms.WithModel(decoded.Model))
	}
	if decoded.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*decoded.Temperature))
	}
	if decoded.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(decoded.MaxTokens))
	}
	if decoded.TopP != nil {
		opts = append(opts, llms.WithTopP(*decoded.TopP))
	}
	if len(decoded.StopWords) > 0 {
		opts = append(opts, llms.WithStopWords(decoded.StopWords))
	}
	return opts, nil
}

// ID returns the configuration id the model was loaded under.
func (m *Model) ID() string { return m.id }

// Class returns the model's configured class.
func (m *Model) Class() string { return m.cfg.Class }

// CallOptions returns the configured generation defaults. Callers append
// their own options after these so per-call settings win.
func (m *Model) CallOptions() []llms.CallOption {
	opts := []llms.CallOption{}
	if m.cfg.Kwargs.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*m.cfg.Kwargs.Temperature))
	}
	if m.cfg.Kwargs.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(m.cfg.Kwargs.MaxTokens))
	}
	if m.cfg.Kwargs.TopP != nil {
		opts = append(opts, llms.WithTopP(*m.cfg.Kwargs.TopP))
	}
	if len(m.cfg.Kwargs.StopWords) > 0 {
		opts = append(opts, llms.WithStopWords(m.cfg.Kwargs.StopWords))
	}
	return opts
}

// GenerateContent calls the provider with the configured defaults, retrying
// transient failures with exponential backoff.
func (m *Model) GenerateContent(ctx context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	merged := append(m.CallOptions(), opts...)
	attempts := uint64(m.cfg.Kwargs.MaxRetries)
	if attempts == 0 {
		attempts = 2
	}
	var resp *llms.ContentResponse
	backoff := retry.WithMaxRetries(attempts, retry.NewExponential(250*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var callErr error
		resp, callErr = m.impl.GenerateContent(ctx, messages, merged...)
		if callErr != nil {
			return retry.RetryableError(callErr)
		}
		return nil
	})
	if err != nil {
		return nil, core.AdapterErr(m.cfg.Class, err)
	}
	return resp, nil
}

// StreamContent calls the provider once, forwarding chunks to fn as they
// arrive. Streaming calls are never retried since chunks may already have
// been delivered.
func (m *Model) StreamContent(ctx context.Context, messages []llms.MessageContent, fn func(ctx context.Context, chunk []byte) error, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	merged := append(m.CallOptions(), opts...)
	merged = append(merged, llms.WithStreamingFunc(fn))
	resp, err := m.impl.GenerateContent(ctx, messages, merged...)
	if err != nil {
		return nil, core.AdapterErr(m.cfg.Class, err)
	}
	return resp, nil
}

// Generate is the single-prompt convenience used by the direct generation
// endpoint. It returns the first choice's text.
func (m *Model) Generate(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	resp, err := m.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, opts...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", core.AdapterErr(m.cfg.Class, fmt.Errorf("model returned no choices"))
	}
	return resp.Choices[0].Content, nil
}
