// Package tool materialises tool configurations into callable adapters the
// agent chain can hand to a model.
package tool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/tmc/langchaingo/tools"
	"github.com/tmc/langchaingo/tools/duckduckgo"
	"github.com/tmc/langchaingo/tools/scraper"
	"github.com/tmc/langchaingo/tools/wikipedia"

	"github.com/ragplane/ragplane/engine/core"
)

// Supported tool classes.
const (
	ClassPythonREPL    = "PythonREPLTool"
	ClassPythonAstREPL = "PythonAstREPLTool"
	ClassDuckDuckGo    = "DuckDuckGoSearchRun"
	ClassWikipedia     = "WikipediaQueryRun"
	ClassScraper       = "WebScraper"
)

const defaultUserAgent = "ragplane/1.0"

// Kwargs carries the per-class constructor arguments.
type Kwargs struct {
	Name           string  `json:"name,omitempty"`
	Description    string  `json:"description,omitempty"`
	Interpreter    string  `json:"interpreter,omitempty"`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
	MaxResults     int     `json:"max_results,omitempty"`
	UserAgent      string  `json:"user_agent,omitempty"`
}

// Config is the persisted tool configuration body.
type Config struct {
	Class  string `json:"class"`
	Kwargs Kwargs `json:"kwargs"`
}

// Tool is what the agent chain consumes: langchaingo's tool surface.
type Tool = tools.Tool

// New builds a tool from a raw configuration body.
func New(id string, body map[string]any) (Tool, error) {
	cfg := &Config{}
	if err := core.DeepCopyJSON(body, cfg); err != nil {
		return nil, core.Validationf("tool %s: invalid config body: %v", id, err)
	}
	ua := cfg.Kwargs.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	switch cfg.Class {
	case ClassPythonREPL, ClassPythonAstREPL:
		return newPythonREPL(cfg), nil
	case ClassDuckDuckGo:
		max := cfg.Kwargs.MaxResults
		if max <= 0 {
			max = 5
		}
		impl, err := duckduckgo.New(max, ua)
		if err != nil {
			return nil, core.AdapterErr(cfg.Class, err)
		}
		return impl, nil
	case ClassWikipedia:
		return wikipedia.New(ua), nil
	case ClassScraper:
		impl, err := scraper.New()
		if err != nil {
			return nil, core.AdapterErr(cfg.Class, err)
		}
		return impl, nil
	default:
		return nil, core.Unsupportedf("tool class %q", cfg.Class)
	}
}

// pythonREPL executes snippets with a local interpreter. The Ast variant
// mirrors the plain one: both feed the snippet to the interpreter on stdin,
// the distinction only matters for the description shown to the model.
type pythonREPL struct {
	name        string
	description string
	interpreter string
	timeout     time.Duration
}

func newPythonREPL(cfg *Config) *pythonREPL {
	name := cfg.Kwargs.Name
	if name == "" {
		name = "python_repl"
	}
	description := cfg.Kwargs.Description
	if description == "" {
		description = "Executes a Python snippet and returns whatever it prints to stdout. " +
			"Use print(...) to surface results."
	}
	interpreter := cfg.Kwargs.Interpreter
	if interpreter == "" {
		interpreter = "python3"
	}
	timeout := defaultREPLTimeout
	if cfg.Kwargs.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Kwargs.TimeoutSeconds * float64(time.Second))
	}
	return &pythonREPL{name: name, description: description, interpreter: interpreter, timeout: timeout}
}

const defaultREPLTimeout = 30 * time.Second

func (t *pythonREPL) Name() string        { return t.name }
func (t *pythonREPL) Description() string { return t.description }

func (t *pythonREPL) Call(ctx context.Context, input string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, t.interpreter, "-")
	cmd.Stdin = strings.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			// Surface the traceback to the model so it can correct itself.
			return stderr.String(), nil
		}
		return "", fmt.Errorf("tool %s: %w", t.name, err)
	}
	return stdout.String(), nil
}
