// Package chain composes models, prompts, retrievers and tools into
// invokable and streamable units.
package chain

import (
	"context"
	"strings"

	"github.com/ragplane/ragplane/engine/core"
	"github.com/ragplane/ragplane/engine/llm"
	"github.com/ragplane/ragplane/engine/prompt"
	"github.com/ragplane/ragplane/engine/vectorstore"
)

// Supported chain classes. "qa_chain" is accepted as an alias kept for
// configurations written against the older name.
const (
	ClassQAOverRetriever = "qa_over_retriever"
	ClassQAAlias         = "qa_chain"
	ClassAgentWithTools  = "agent_with_tools"
)

// Stream event kinds.
const (
	EventChainStart      = "on_chain_start"
	EventChainEnd        = "on_chain_end"
	EventChatModelStream = "on_chat_model_stream"
	EventToolStart       = "on_tool_start"
	EventToolEnd         = "on_tool_end"
)

// ToolEntry names a tool variant and its constructor arguments.
type ToolEntry struct {
	Name   string         `json:"name"`
	Kwargs map[string]any `json:"kwargs,omitempty"`
}

// Config is the persisted chain configuration body. Which fields apply
// depends on the class: the qa variant needs the retrieval trio, the agent
// variant needs a system prompt and tools.
type Config struct {
	Class string `json:"class"`

	LLMID           string `json:"llm_id"`
	PromptID        string `json:"prompt_id,omitempty"`
	RewritePromptID string `json:"rewrite_prompt_id,omitempty"`
	VectorStoreID   string `json:"vector_store_id,omitempty"`

	SearchType   string                    `json:"search_type,omitempty"`
	SearchKwargs *vectorstore.SearchKwargs `json:"search_kwargs,omitempty"`

	SystemPromptID string      `json:"system_prompt_id,omitempty"`
	SystemPrompt   string      `json:"system_prompt,omitempty"`
	Tools          []ToolEntry `json:"tools,omitempty"`
	MaxSteps       int         `json:"max_steps,omitempty"`
}

// HistoryMessage is one prior turn of the conversation.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Input is a single chain invocation request.
type Input struct {
	Query           string           `json:"input"`
	ChatHistory     []HistoryMessage `json:"chat_history,omitempty"`
	InferenceKwargs map[string]any   `json:"inference_kwargs,omitempty"`
}

// Event is one structured stream event.
type Event struct {
	Event string         `json:"event"`
	Name  string         `json:"name"`
	Data  map[string]any `json:"data"`
}

// Item is one element of a stream: either a JSON-encodable payload or a
// terminal error. The channel closes after the terminal item.
type Item struct {
	Payload any
	Err     error
}

// sink receives chunks and events as a chain run produces them. Emit calls
// return the context error once the consumer is gone so producers stop
// within one model turn or tool step.
type sink interface {
	emitChunk(ctx context.Context, chunk map[string]any) error
	emitEvent(ctx context.Context, ev Event) error
}

// Chain is a loaded, runnable composition.
type Chain interface {
	ID() string
	Class() string
	run(ctx context.Context, input Input, out sink) (map[string]any, error)
}

// Deps resolves a chain's referenced instances, lazy-loading them through
// the caller's registries.
type Deps struct {
	LLM         func(ctx context.Context, id string) (*llm.Model, error)
	Prompt      func(ctx context.Context, id string) (*prompt.Prompt, error)
	ChatPrompt  func(ctx context.Context, id string) (*prompt.ChatPrompt, error)
	VectorStore func(ctx context.Context, id string) (*vectorstore.Store, error)

	// StreamBuffer bounds the producer/consumer channel for streaming runs.
	StreamBuffer int
}

// Engine builds and runs chains.
type Engine struct {
	deps Deps
}

// NewEngine returns an engine resolving references through deps.
func NewEngine(deps Deps) *Engine {
	if deps.StreamBuffer <= 0 {
		deps.StreamBuffer = 64
	}
	return &Engine{deps: deps}
}

// Build materialises a chain from a raw configuration body, lazy-loading its
// referenced LLM, prompts and vector store.
func (e *Engine) Build(ctx context.Context, id string, body map[string]any) (Chain, error) {
	cfg := &Config{}
	if err := core.DeepCopyJSON(body, cfg); err != nil {
		return nil, core.Validationf("chain %s: invalid config body: %v", id, err)
	}
	switch cfg.Class {
	case ClassQAOverRetriever, ClassQAAlias:
		return e.buildQA(ctx, id, cfg)
	case ClassAgentWithTools:
		return e.buildAgent(ctx, id, cfg)
	default:
		return nil, core.Unsupportedf("chain class %q", cfg.Class)
	}
}

// Invoke runs the chain to completion and returns its aggregated output.
func (e *Engine) Invoke(ctx context.Context, c Chain, input Input) (map[string]any, error) {
	return c.run(ctx, input, nopSink{})
}

// Stream runs the chain in a goroutine, yielding its output chunks over a
// bounded channel. The channel closes after the terminal item.
func (e *Engine) Stream(ctx context.Context, c Chain, input Input) <-chan Item {
	return e.produce(ctx, c, input, false)
}

// StreamEvents is Stream with the structured event contract.
func (e *Engine) StreamEvents(ctx context.Context, c Chain, input Input) <-chan Item {
	return e.produce(ctx, c, input, true)
}

func (e *Engine) produce(ctx context.Context, c Chain, input Input, events bool) <-chan Item {
	ch := make(chan Item, e.deps.StreamBuffer)
	out := &channelSink{ch: ch, events: events}
	go func() {
		defer close(ch)
		_, err := c.run(ctx, input, out)
		if err != nil && ctx.Err() == nil {
			select {
			case ch <- Item{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return ch
}

type nopSink struct{}

func (nopSink) emitChunk(context.Context, map[string]any) error { return nil }
func (nopSink) emitEvent(context.Context, Event) error          { return nil }

// channelSink forwards either raw chunks or structured events, dropping the
// other flavor.
type channelSink struct {
	ch     chan Item
	events bool
}

func (s *channelSink) emitChunk(ctx context.Context, chunk map[string]any) error {
	if s.events {
		return ctx.Err()
	}
	return s.send(ctx, chunk)
}

func (s *channelSink) emitEvent(ctx context.Context, ev Event) error {
	if !s.events {
		return ctx.Err()
	}
	return s.send(ctx, ev)
}

func (s *channelSink) send(ctx context.Context, payload any) error {
	select {
	case s.ch <- Item{Payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// formatHistory renders prior turns into the flat transcript form the
// prompts interpolate.
func formatHistory(history []HistoryMessage) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	for i, msg := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(msg.Content)
	}
	return b.String()
}

// historyMessages converts prior turns into chat messages.
func historyMessages(history []HistoryMessage) []llmMessage {
	out := make([]llmMessage, 0, len(history))
	for _, msg := range history {
		out = append(out, llmMessage{role: msg.Role, content: msg.Content})
	}
	return out
}

type llmMessage struct {
	role    string
	content string
}
