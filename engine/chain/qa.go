package chain

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/ragplane/ragplane/engine/core"
	"github.com/ragplane/ragplane/engine/llm"
	"github.com/ragplane/ragplane/engine/prompt"
	"github.com/ragplane/ragplane/engine/vectorstore"
)

const qaDefaultK = 10

// qaChain is retrieval-augmented question answering: a history-aware query
// rewrite, a retrieval pass, then a stuffed-context answer.
type qaChain struct {
	id        string
	model     *llm.Model
	rewrite   *prompt.Prompt
	answer    *prompt.Prompt
	retriever *vectorstore.Retriever
}

func (e *Engine) buildQA(ctx context.Context, id string, cfg *Config) (Chain, error) {
	if cfg.LLMID == "" || cfg.PromptID == "" || cfg.VectorStoreID == "" {
		return nil, core.Validationf("chain %s: llm_id, prompt_id and vector_store_id are required", id)
	}
	model, err := e.deps.LLM(ctx, cfg.LLMID)
	if err != nil {
		return nil, err
	}
	answer, err := e.deps.Prompt(ctx, cfg.PromptID)
	if err != nil {
		return nil, err
	}
	var rewrite *prompt.Prompt
	if cfg.RewritePromptID != "" {
		rewrite, err = e.deps.Prompt(ctx, cfg.RewritePromptID)
		if err != nil {
			return nil, err
		}
	}
	store, err := e.deps.VectorStore(ctx, cfg.VectorStoreID)
	if err != nil {
		return nil, err
	}
	kwargs := vectorstore.SearchKwargs{K: qaDefaultK}
	if cfg.SearchKwargs != nil {
		kwargs = *cfg.SearchKwargs
		if kwargs.K <= 0 {
			kwargs.K = qaDefaultK
		}
	}
	retriever, err := store.AsRetriever(cfg.SearchType, kwargs)
	if err != nil {
		return nil, err
	}
	return &qaChain{id: id, model: model, rewrite: rewrite, answer: answer, retriever: retriever}, nil
}

func (c *qaChain) ID() string    { return c.id }
func (c *qaChain) Class() string { return ClassQAOverRetriever }

func (c *qaChain) run(ctx context.Context, input Input, out sink) (map[string]any, error) {
	if err := out.emitEvent(ctx, Event{Event: EventChainStart, Name: c.id, Data: map[string]any{
		"input": input.Query,
	}}); err != nil {
		return nil, err
	}
	callOpts, err := llm.OptionsFromKwargs(input.InferenceKwargs)
	if err != nil {
		return nil, err
	}
	history := formatHistory(input.ChatHistory)
	query, err := c.retrievalQuery(ctx, input.Query, history, callOpts)
	if err != nil {
		return nil, err
	}
	results, err := c.retriever.Invoke(ctx, query)
	if err != nil {
		return nil, err
	}
	contextText := stuffContext(results)
	if err := out.emitChunk(ctx, map[string]any{"input": input.Query}); err != nil {
		return nil, err
	}
	if err := out.emitChunk(ctx, map[string]any{"context": results}); err != nil {
		return nil, err
	}
	rendered, err := c.answer.Render(map[string]any{
		"context":      contextText,
		"chat_history": history,
		"input":        input.Query,
	})
	if err != nil {
		return nil, err
	}
	messages := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, rendered)}
	answer, err := streamText(ctx, c.model, c.id, messages, callOpts, out, func(token string) map[string]any {
		return map[string]any{"answer": token}
	})
	if err != nil {
		return nil, err
	}
	output := map[string]any{
		"input":        input.Query,
		"chat_history": history,
		"context":      results,
		"answer":       answer,
	}
	if err := out.emitEvent(ctx, Event{Event: EventChainEnd, Name: c.id, Data: map[string]any{
		"output": output,
	}}); err != nil {
		return nil, err
	}
	return output, nil
}

// retrievalQuery rewrites the user question into a standalone retrieval
// query when conversation history exists and a rewrite prompt is configured.
func (c *qaChain) retrievalQuery(ctx context.Context, query, history string, opts []llms.CallOption) (string, error) {
	if c.rewrite == nil || history == "" {
		return query, nil
	}
	rendered, err := c.rewrite.Render(map[string]any{
		"chat_history": history,
		"input":        query,
	})
	if err != nil {
		return "", err
	}
	rewritten, err := c.model.Generate(ctx, rendered, opts...)
	if err != nil {
		return "", err
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return query, nil
	}
	return rewritten, nil
}

func stuffContext(results []vectorstore.Result) string {
	parts := make([]string, 0, len(results))
	for i := range results {
		parts = append(parts, results[i].PageContent)
	}
	return strings.Join(parts, "\n\n")
}

// streamText generates with token streaming, forwarding each token both as a
// raw chunk (shaped by wrap) and as a model-stream event. The aggregated text
// comes from the provider response so non-streaming backends still work.
func streamText(ctx context.Context, model *llm.Model, name string, messages []llms.MessageContent, opts []llms.CallOption, out sink, wrap func(token string) map[string]any) (string, error) {
	var streamed strings.Builder
	var emitErr error
	resp, err := model.StreamContent(ctx, messages, func(ctx context.Context, chunk []byte) error {
		token := string(chunk)
		streamed.WriteString(token)
		if err := out.emitChunk(ctx, wrap(token)); err != nil {
			emitErr = err
			return err
		}
		if err := out.emitEvent(ctx, Event{Event: EventChatModelStream, Name: name, Data: map[string]any{
			"chunk": map[string]any{"content": token},
		}}); err != nil {
			emitErr = err
			return err
		}
		return nil
	}, opts...)
	if emitErr != nil {
		return "", emitErr
	}
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return streamed.String(), nil
	}
	if content := resp.Choices[0].Content; content != "" {
		return content, nil
	}
	return streamed.String(), nil
}
