package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tmc/langchaingo/llms"

	"github.com/ragplane/ragplane/engine/core"
	"github.com/ragplane/ragplane/engine/llm"
	"github.com/ragplane/ragplane/engine/metrics"
	"github.com/ragplane/ragplane/engine/prompt"
	"github.com/ragplane/ragplane/engine/tool"
)

const defaultMaxSteps = 15

// Single-input tools expose one string argument under this key, matching the
// convention tool-calling models are prompted with.
const toolArgKey = "__arg1"

// agentChain is a tool-calling loop: the model either answers or requests
// tool invocations whose observations are fed back until it answers or the
// step budget runs out.
type agentChain struct {
	id       string
	model    *llm.Model
	system   string
	sysTmpl  *prompt.Prompt
	tools    map[string]tool.Tool
	defs     []llms.Tool
	maxSteps int
}

func (e *Engine) buildAgent(ctx context.Context, id string, cfg *Config) (Chain, error) {
	if cfg.LLMID == "" {
		return nil, core.Validationf("chain %s: llm_id is required", id)
	}
	model, err := e.deps.LLM(ctx, cfg.LLMID)
	if err != nil {
		return nil, err
	}
	c := &agentChain{
		id:       id,
		model:    model,
		system:   cfg.SystemPrompt,
		tools:    make(map[string]tool.Tool, len(cfg.Tools)),
		maxSteps: cfg.MaxSteps,
	}
	if c.maxSteps <= 0 {
		c.maxSteps = defaultMaxSteps
	}
	if cfg.SystemPromptID != "" {
		c.sysTmpl, err = e.deps.Prompt(ctx, cfg.SystemPromptID)
		if err != nil {
			return nil, err
		}
	}
	for i := range cfg.Tools {
		entry := &cfg.Tools[i]
		t, err := tool.New(entry.Name, map[string]any{
			"class":  entry.Name,
			"kwargs": entry.Kwargs,
		})
		if err != nil {
			return nil, err
		}
		if _, dup := c.tools[t.Name()]; dup {
			return nil, core.Validationf("chain %s: duplicate tool %q", id, t.Name())
		}
		c.tools[t.Name()] = t
		c.defs = append(c.defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						toolArgKey: map[string]any{"type": "string"},
					},
					"required": []string{toolArgKey},
				},
			},
		})
	}
	return c, nil
}

func (c *agentChain) ID() string    { return c.id }
func (c *agentChain) Class() string { return ClassAgentWithTools }

func (c *agentChain) run(ctx context.Context, input Input, out sink) (map[string]any, error) {
	if err := out.emitEvent(ctx, Event{Event: EventChainStart, Name: c.id, Data: map[string]any{
		"input": input.Query,
	}}); err != nil {
		return nil, err
	}
	messages, err := c.seedMessages(input)
	if err != nil {
		return nil, err
	}
	callOpts, err := llm.OptionsFromKwargs(input.InferenceKwargs)
	if err != nil {
		return nil, err
	}
	if len(c.defs) > 0 {
		callOpts = append(callOpts, llms.WithTools(c.defs))
	}
	var final string
	for step := 0; step < c.maxSteps; step++ {
		resp, text, err := c.turn(ctx, messages, callOpts, out)
		if err != nil {
			return nil, err
		}
		choice := resp.Choices[0]
		if len(choice.ToolCalls) == 0 {
			final = text
			break
		}
		messages = append(messages, assistantToolCalls(choice.ToolCalls))
		for _, call := range choice.ToolCalls {
			observation, err := c.dispatch(ctx, call, out)
			if err != nil {
				return nil, err
			}
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: call.ID,
					Name:       call.FunctionCall.Name,
					Content:    observation,
				}},
			})
		}
	}
	if final == "" {
		return nil, fmt.Errorf("chain %s: step budget of %d exhausted without a final answer", c.id, c.maxSteps)
	}
	output := map[string]any{
		"input":        input.Query,
		"chat_history": formatHistory(input.ChatHistory),
		"output":       final,
	}
	if err := out.emitEvent(ctx, Event{Event: EventChainEnd, Name: c.id, Data: map[string]any{
		"output": output,
	}}); err != nil {
		return nil, err
	}
	return output, nil
}

// turn runs one model call, streaming its tokens as they arrive.
func (c *agentChain) turn(ctx context.Context, messages []llms.MessageContent, opts []llms.CallOption, out sink) (*llms.ContentResponse, string, error) {
	var streamed strings.Builder
	var emitErr error
	resp, err := c.model.StreamContent(ctx, messages, func(ctx context.Context, chunk []byte) error {
		token := string(chunk)
		if token == "" {
			return nil
		}
		streamed.WriteString(token)
		if err := out.emitChunk(ctx, map[string]any{"output": token}); err != nil {
			emitErr = err
			return err
		}
		if err := out.emitEvent(ctx, Event{Event: EventChatModelStream, Name: c.id, Data: map[string]any{
			"chunk": map[string]any{"content": token},
		}}); err != nil {
			emitErr = err
			return err
		}
		return nil
	}, opts...)
	if emitErr != nil {
		return nil, "", emitErr
	}
	if err != nil {
		return nil, "", err
	}
	if len(resp.Choices) == 0 {
		return nil, "", core.AdapterErr(ClassAgentWithTools, fmt.Errorf("model returned no choices"))
	}
	text := resp.Choices[0].Content
	if text == "" {
		text = streamed.String()
	}
	return resp, text, nil
}

func (c *agentChain) dispatch(ctx context.Context, call llms.ToolCall, out sink) (string, error) {
	if call.FunctionCall == nil {
		return "", core.AdapterErr(ClassAgentWithTools, fmt.Errorf("tool call %s carries no function", call.ID))
	}
	name := call.FunctionCall.Name
	arg := toolArgument(call.FunctionCall.Arguments)
	if err := out.emitEvent(ctx, Event{Event: EventToolStart, Name: name, Data: map[string]any{
		"input": arg,
	}}); err != nil {
		return "", err
	}
	metrics.RecordToolCall(ctx, c.id, name)
	t, ok := c.tools[name]
	var observation string
	if !ok {
		// Let the model recover from hallucinated tool names.
		observation = fmt.Sprintf("unknown tool %q", name)
	} else {
		var err error
		observation, err = t.Call(ctx, arg)
		if err != nil {
			return "", core.AdapterErr(name, err)
		}
	}
	if err := out.emitEvent(ctx, Event{Event: EventToolEnd, Name: name, Data: map[string]any{
		"input":  arg,
		"output": observation,
	}}); err != nil {
		return "", err
	}
	return observation, nil
}

func (c *agentChain) seedMessages(input Input) ([]llms.MessageContent, error) {
	var system string
	switch {
	case c.sysTmpl != nil:
		rendered, err := c.sysTmpl.Render(map[string]any{
			"input":        input.Query,
			"chat_history": formatHistory(input.ChatHistory),
		})
		if err != nil {
			return nil, err
		}
		system = rendered
	case c.system != "":
		system = c.system
	}
	messages := make([]llms.MessageContent, 0, len(input.ChatHistory)+2)
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	for _, msg := range historyMessages(input.ChatHistory) {
		role := llms.ChatMessageTypeHuman
		if msg.role == "ai" || msg.role == "assistant" {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, msg.content))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, input.Query))
	return messages, nil
}

func assistantToolCalls(calls []llms.ToolCall) llms.MessageContent {
	parts := make([]llms.ContentPart, 0, len(calls))
	for _, call := range calls {
		parts = append(parts, call)
	}
	return llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts}
}

// toolArgument unpacks the single-string argument convention, falling back
// to the raw argument payload for free-form inputs.
func toolArgument(raw string) string {
	if v := gjson.Get(raw, toolArgKey); v.Exists() {
		return v.String()
	}
	if v := gjson.Get(raw, "input"); v.Exists() {
		return v.String()
	}
	return raw
}
