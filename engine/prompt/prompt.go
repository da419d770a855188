// Package prompt materialises string and chat prompt templates. Templates use
// f-string interpolation; variables can be pre-bound with partials.
package prompt

import (
	"sort"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"

	"github.com/ragplane/ragplane/engine/core"
)

// Config is the persisted string-prompt configuration body.
type Config struct {
	Template         string         `json:"template"`
	InputVariables   []string       `json:"input_variables,omitempty"`
	PartialVariables map[string]any `json:"partial_variables,omitempty"`
}

// Prompt renders a single f-string template.
type Prompt struct {
	id  string
	cfg Config
}

// New builds a string prompt from a raw configuration body.
func New(id string, body map[string]any) (*Prompt, error) {
	cfg := &Config{}
	if err := core.DeepCopyJSON(body, cfg); err != nil {
		return nil, core.Validationf("prompt %s: invalid config body: %v", id, err)
	}
	if cfg.Template == "" {
		return nil, core.Validationf("prompt %s: template is required", id)
	}
	return &Prompt{id: id, cfg: *cfg}, nil
}

// ID returns the configuration id the prompt was loaded under.
func (p *Prompt) ID() string { return p.id }

// Config returns the prompt's configuration, reflecting any bound partials.
func (p *Prompt) Config() Config { return p.cfg }

// Render interpolates the template with the given values layered over the
// bound partials. Unbound required variables are a validation error.
func (p *Prompt) Render(values map[string]any) (string, error) {
	if missing := missingVariables(p.cfg.InputVariables, p.cfg.PartialVariables, values); len(missing) > 0 {
		return "", core.Validationf("prompt %s: missing variables %v", p.id, missing)
	}
	tmpl := prompts.PromptTemplate{
		Template:         p.cfg.Template,
		InputVariables:   p.cfg.InputVariables,
		TemplateFormat:   prompts.TemplateFormatFString,
		PartialVariables: p.cfg.PartialVariables,
	}
	out, err := tmpl.Format(values)
	if err != nil {
		return "", core.Validationf("prompt %s: %v", p.id, err)
	}
	return out, nil
}

// Partial returns a copy of the prompt with the given values bound as
// partials. Bound variables no longer count as required at render time.
func (p *Prompt) Partial(values map[string]any) *Prompt {
	cfg := p.cfg
	cfg.PartialVariables = core.MergeMaps(p.cfg.PartialVariables, values)
	cfg.InputVariables = subtractBound(p.cfg.InputVariables, values)
	return &Prompt{id: p.id, cfg: cfg}
}

// Message is one templated message of a chat prompt. Role is one of system,
// human, ai, or a generic role name.
type Message struct {
	Role     string `json:"role"`
	Template string `json:"template"`
}

// ChatConfig is the persisted chat-prompt configuration body.
type ChatConfig struct {
	Messages         []Message      `json:"messages"`
	InputVariables   []string       `json:"input_variables,omitempty"`
	PartialVariables map[string]any `json:"partial_variables,omitempty"`
}

// ChatPrompt renders a sequence of templated chat messages.
type ChatPrompt struct {
	id  string
	cfg ChatConfig
}

// NewChat builds a chat prompt from a raw configuration body.
func NewChat(id string, body map[string]any) (*ChatPrompt, error) {
	cfg := &ChatConfig{}
	if err := core.DeepCopyJSON(body, cfg); err != nil {
		return nil, core.Validationf("chat prompt %s: invalid config body: %v", id, err)
	}
	if len(cfg.Messages) == 0 {
		return nil, core.Validationf("chat prompt %s: at least one message is required", id)
	}
	for i := range cfg.Messages {
		if cfg.Messages[i].Role == "" {
			return nil, core.Validationf("chat prompt %s: message %d has no role", id, i)
		}
	}
	return &ChatPrompt{id: id, cfg: *cfg}, nil
}

// ID returns the configuration id the chat prompt was loaded under.
func (p *ChatPrompt) ID() string { return p.id }

// Config returns the chat prompt's configuration.
func (p *ChatPrompt) Config() ChatConfig { return p.cfg }

// Render interpolates every message template and returns the result in the
// wire shape the model plane consumes.
func (p *ChatPrompt) Render(values map[string]any) ([]llms.MessageContent, error) {
	if missing := missingVariables(p.cfg.InputVariables, p.cfg.PartialVariables, values); len(missing) > 0 {
		return nil, core.Validationf("chat prompt %s: missing variables %v", p.id, missing)
	}
	merged := core.MergeMaps(p.cfg.PartialVariables, values)
	out := make([]llms.MessageContent, 0, len(p.cfg.Messages))
	for i := range p.cfg.Messages {
		msg := &p.cfg.Messages[i]
		tmpl := prompts.PromptTemplate{
			Template:       msg.Template,
			InputVariables: p.cfg.InputVariables,
			TemplateFormat: prompts.TemplateFormatFString,
		}
		text, err := tmpl.Format(merged)
		if err != nil {
			return nil, core.Validationf("chat prompt %s: message %d: %v", p.id, i, err)
		}
		out = append(out, llms.TextParts(roleType(msg.Role), text))
	}
	return out, nil
}

// Partial returns a copy of the chat prompt with the given values bound.
func (p *ChatPrompt) Partial(values map[string]any) *ChatPrompt {
	cfg := p.cfg
	cfg.PartialVariables = core.MergeMaps(p.cfg.PartialVariables, values)
	cfg.InputVariables = subtractBound(p.cfg.InputVariables, values)
	return &ChatPrompt{id: p.id, cfg: cfg}
}

func roleType(role string) llms.ChatMessageType {
	switch role {
	case "system":
		return llms.ChatMessageTypeSystem
	case "human", "user":
		return llms.ChatMessageTypeHuman
	case "ai", "assistant":
		return llms.ChatMessageTypeAI
	case "tool":
		return llms.ChatMessageTypeTool
	default:
		return llms.ChatMessageTypeGeneric
	}
}

func missingVariables(required []string, partials, values map[string]any) []string {
	var missing []string
	for _, name := range required {
		if _, ok := partials[name]; ok {
			continue
		}
		if _, ok := values[name]; ok {
			continue
		}
		missing = append(missing, name)
	}
	sort.Strings(missing)
	return missing
}

func subtractBound(required []string, bound map[string]any) []string {
	out := make([]string, 0, len(required))
	for _, name := range required {
		if _, ok := bound[name]; ok {
			continue
		}
		out = append(out, name)
	}
	return out
}
