package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/ragplane/ragplane/engine/core"
)

// Supported loader classes.
const (
	ClassText         = "TextLoader"
	ClassCSV          = "CSVLoader"
	ClassBSHTML       = "BSHTMLLoader"
	ClassPyMuPDF      = "PyMuPDFLoader"
	ClassImage        = "ImageDescriptionLoader"
	ClassVideo        = "VideoDescriptionLoader"
	ClassUnstructured = "UnstructuredLoader"
)

const defaultAdapterTimeout = 120 * time.Second

func knownClass(class string) bool {
	switch class {
	case ClassText, ClassCSV, ClassBSHTML, ClassPyMuPDF, ClassImage, ClassVideo, ClassUnstructured:
		return true
	}
	return false
}

// loadFile materialises one file's bytes into documents using the variant
// selected by class.
func loadFile(ctx context.Context, class string, data []byte, mime string, kwargs map[string]any) ([]schema.Document, error) {
	switch class {
	case ClassText:
		return documentloaders.NewText(bytes.NewReader(data)).Load(ctx)
	case ClassCSV:
		return documentloaders.NewCSV(bytes.NewReader(data)).Load(ctx)
	case ClassBSHTML:
		return documentloaders.NewHTML(bytes.NewReader(data)).Load(ctx)
	case ClassPyMuPDF:
		return documentloaders.NewPDF(bytes.NewReader(data), int64(len(data))).Load(ctx)
	case ClassImage, ClassVideo:
		return describeMedia(ctx, class, data, mime, kwargs)
	case ClassUnstructured:
		return loadUnstructured(ctx, data, kwargs)
	default:
		return nil, core.Unsupportedf("loader class %q", class)
	}
}

// describeMedia asks a multimodal chat model for a textual description of the
// file and returns it as a single document.
func describeMedia(ctx context.Context, class string, data []byte, mime string, kwargs map[string]any) ([]schema.Document, error) {
	prompt := stringKwarg(kwargs, "prompt")
	if prompt == "" {
		if class == ClassVideo {
			prompt = "Describe the contents of this video in detail."
		} else {
			prompt = "Describe the contents of this image in detail."
		}
	}
	opts := []openai.Option{}
	if model := stringKwarg(kwargs, "model"); model != "" {
		opts = append(opts, openai.WithModel(model))
	}
	if key := stringKwarg(kwargs, "api_key"); key != "" {
		opts = append(opts, openai.WithToken(key))
	}
	if base := stringKwarg(kwargs, "base_url"); base != "" {
		opts = append(opts, openai.WithBaseURL(base))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, core.AdapterErr(class, err)
	}
	messages := []llms.MessageContent{{
		Role: llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{
			llms.BinaryPart(mime, data),
			llms.TextPart(prompt),
		},
	}}
	resp, err := model.GenerateContent(ctx, messages)
	if err != nil {
		return nil, core.AdapterErr(class, err)
	}
	if len(resp.Choices) == 0 {
		return nil, core.AdapterErr(class, fmt.Errorf("model returned no choices"))
	}
	return []schema.Document{{PageContent: resp.Choices[0].Content, Metadata: map[string]any{}}}, nil
}

type unstructuredElement struct {
	Text     string         `json:"text"`
	Type     string         `json:"type"`
	Metadata map[string]any `json:"metadata"`
}

// loadUnstructured submits the file to an Unstructured partition endpoint.
// mode "elements" yields one document per returned element; the default
// "single" mode joins everything into one document.
func loadUnstructured(ctx context.Context, data []byte, kwargs map[string]any) ([]schema.Document, error) {
	url := stringKwarg(kwargs, "url")
	if url == "" {
		return nil, core.Validationf("loader: unstructured requires a url kwarg")
	}
	timeout := defaultAdapterTimeout
	if secs, ok := numberKwarg(kwargs, "timeout_seconds"); ok && secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}
	client := resty.New().SetTimeout(timeout)
	req := client.R().SetContext(ctx).
		SetFileReader("files", stringOr(kwargs, "file_name", "document"), bytes.NewReader(data))
	if key := stringKwarg(kwargs, "api_key"); key != "" {
		req.SetHeader("unstructured-api-key", key)
	}
	resp, err := req.Post(url)
	if err != nil {
		return nil, core.AdapterErr(ClassUnstructured, err)
	}
	if resp.IsError() {
		return nil, core.AdapterErr(ClassUnstructured, fmt.Errorf("partition returned %s: %s", resp.Status(), resp.String()))
	}
	var elements []unstructuredElement
	if err := json.Unmarshal(resp.Body(), &elements); err != nil {
		return nil, core.AdapterErr(ClassUnstructured, fmt.Errorf("decode partition response: %w", err))
	}
	if stringKwarg(kwargs, "mode") == "elements" {
		docs := make([]schema.Document, 0, len(elements))
		for _, el := range elements {
			meta := core.CloneMap(el.Metadata)
			if meta == nil {
				meta = map[string]any{}
			}
			if el.Type != "" {
				meta["category"] = el.Type
			}
			docs = append(docs, schema.Document{PageContent: el.Text, Metadata: meta})
		}
		return docs, nil
	}
	var joined bytes.Buffer
	for i, el := range elements {
		if i > 0 {
			joined.WriteString("\n\n")
		}
		joined.WriteString(el.Text)
	}
	return []schema.Document{{PageContent: joined.String(), Metadata: map[string]any{}}}, nil
}

func stringKwarg(kwargs map[string]any, key string) string {
	if kwargs == nil {
		return ""
	}
	if v, ok := kwargs[key].(string); ok {
		return v
	}
	return ""
}

func stringOr(kwargs map[string]any, key, fallback string) string {
	if v := stringKwarg(kwargs, key); v != "" {
		return v
	}
	return fallback
}

func numberKwarg(kwargs map[string]any, key string) (float64, bool) {
	if kwargs == nil {
		return 0, false
	}
	switch v := kwargs[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
