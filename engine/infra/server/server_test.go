package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragplane/ragplane/engine/catalog"
	"github.com/ragplane/ragplane/engine/docstore"
	"github.com/ragplane/ragplane/engine/task"
	"github.com/ragplane/ragplane/pkg/config"
)

type testServer struct {
	srv *Server
	fs  afero.Fs
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.Blob.Root = "/data/files"
	fs := afero.NewMemMapFs()
	state, err := BuildState(cfg, fs, catalog.NewMemoryStore(), docstore.NewMemoryStore(), task.NewMemoryStore())
	require.NoError(t, err)
	return &testServer{srv: New(context.Background(), cfg, state), fs: fs}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (ts *testServer) configure(t *testing.T, group, singular, id string, cfg map[string]any) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/"+group+"/configure_"+singular,
		map[string]any{"config_id": id, "config": cfg})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestServerHealth(t *testing.T) {
	t.Run("Should report ok", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodGet, "/healthz", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", decodeBody(t, rec)["status"])
	})
}

func TestServerConfigCRUD(t *testing.T) {
	llmBody := map[string]any{
		"class":  "ChatOpenAI",
		"kwargs": map[string]any{"model": "gpt-4o-mini", "api_key": "sk-test"},
	}

	t.Run("Should create a config and echo it back", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/llms/configure_llm",
			map[string]any{"config_id": "main", "config": llmBody})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		assert.Equal(t, "main", body["id"])

		rec = ts.do(t, http.MethodGet, "/llms/llm_config/main", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		got := decodeBody(t, rec)
		assert.Equal(t, "ChatOpenAI", got["config"].(map[string]any)["class"])
	})

	t.Run("Should reject a duplicate id with a problem document", func(t *testing.T) {
		ts := newTestServer(t)
		ts.configure(t, "llms", "llm", "main", llmBody)
		rec := ts.do(t, http.MethodPost, "/llms/configure_llm",
			map[string]any{"config_id": "main", "config": llmBody})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, float64(http.StatusBadRequest), body["status"])
		assert.NotEmpty(t, body["error"])
		assert.Contains(t, body["detail"], "main")
	})

	t.Run("Should reject a missing config body", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/llms/configure_llm", map[string]any{"config_id": "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Should list configs in insertion order", func(t *testing.T) {
		ts := newTestServer(t)
		ts.configure(t, "llms", "llm", "zeta", llmBody)
		ts.configure(t, "llms", "llm", "alpha", llmBody)
		rec := ts.do(t, http.MethodGet, "/llms/list_llm_configs", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		configs := decodeBody(t, rec)["configs"].([]any)
		require.Len(t, configs, 2)
		assert.Equal(t, "zeta", configs[0].(map[string]any)["id"])
		assert.Equal(t, "alpha", configs[1].(map[string]any)["id"])
	})

	t.Run("Should search configs with a filter", func(t *testing.T) {
		ts := newTestServer(t)
		ts.configure(t, "llms", "llm", "openai", llmBody)
		ts.configure(t, "llms", "llm", "local", map[string]any{
			"class":  "VLLMOpenAI",
			"kwargs": map[string]any{"model": "llama", "base_url": "http://localhost:8000"},
		})
		rec := ts.do(t, http.MethodPost, "/llms/search_llm_configs",
			map[string]any{"filter": map[string]any{"class": "VLLMOpenAI"}})
		require.Equal(t, http.StatusOK, rec.Code)
		configs := decodeBody(t, rec)["configs"].([]any)
		require.Len(t, configs, 1)
		assert.Equal(t, "local", configs[0].(map[string]any)["id"])
	})

	t.Run("Should update a config wholesale", func(t *testing.T) {
		ts := newTestServer(t)
		ts.configure(t, "llms", "llm", "main", llmBody)
		updated := map[string]any{
			"class":  "ChatOpenAI",
			"kwargs": map[string]any{"model": "gpt-4o", "api_key": "sk-test"},
		}
		rec := ts.do(t, http.MethodPut, "/llms/update_llm_config/main",
			map[string]any{"config": updated})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = ts.do(t, http.MethodGet, "/llms/llm_config/main", nil)
		got := decodeBody(t, rec)["config"].(map[string]any)
		assert.Equal(t, "gpt-4o", got["kwargs"].(map[string]any)["model"])
	})

	t.Run("Should delete a config and 404 afterwards", func(t *testing.T) {
		ts := newTestServer(t)
		ts.configure(t, "llms", "llm", "main", llmBody)
		rec := ts.do(t, http.MethodDelete, "/llms/delete_llm_config/main", nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = ts.do(t, http.MethodGet, "/llms/llm_config/main", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, float64(http.StatusNotFound), body["status"])
	})
}

func TestServerLifecycle(t *testing.T) {
	promptBody := map[string]any{
		"template":        "Hello {name}",
		"input_variables": []string{"name"},
	}

	t.Run("Should load, list and unload a prompt", func(t *testing.T) {
		ts := newTestServer(t)
		ts.configure(t, "prompts", "prompt", "greet", promptBody)

		rec := ts.do(t, http.MethodPost, "/prompts/load/greet", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "loaded", decodeBody(t, rec)["status"])

		rec = ts.do(t, http.MethodPost, "/prompts/load/greet", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = ts.do(t, http.MethodGet, "/prompts/list_loaded_prompts", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []any{"greet"}, decodeBody(t, rec)["loaded"])

		rec = ts.do(t, http.MethodPost, "/prompts/unload/greet", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = ts.do(t, http.MethodPost, "/prompts/unload/greet", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Should return 404 for an unknown config id", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/prompts/load/ghost", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Should route chat prompt ids through the shared load verbs", func(t *testing.T) {
		ts := newTestServer(t)
		ts.configure(t, "prompts", "chat_prompt", "chat", map[string]any{
			"messages": []map[string]any{
				{"role": "system", "template": "You are terse."},
				{"role": "human", "template": "{input}"},
			},
			"input_variables": []string{"input"},
		})

		rec := ts.do(t, http.MethodPost, "/prompts/load/chat", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = ts.do(t, http.MethodGet, "/prompts/list_loaded_chat_prompts", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []any{"chat"}, decodeBody(t, rec)["loaded"])

		rec = ts.do(t, http.MethodPost, "/prompts/unload/chat", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestServerPromptEndpoints(t *testing.T) {
	t.Run("Should render a string prompt", func(t *testing.T) {
		ts := newTestServer(t)
		ts.configure(t, "prompts", "prompt", "greet", map[string]any{
			"template":        "Hello {name}",
			"input_variables": []string{"name"},
		})
		rec := ts.do(t, http.MethodPost, "/prompts/render/greet",
			map[string]any{"bindings": map[string]any{"name": "Ada"}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "Hello Ada", decodeBody(t, rec)["text"])
	})

	t.Run("Should render a chat prompt as role tagged messages", func(t *testing.T) {
		ts := newTestServer(t)
		ts.configure(t, "prompts", "chat_prompt", "chat", map[string]any{
			"messages": []map[string]any{
				{"role": "system", "template": "You are terse."},
				{"role": "human", "template": "{input}"},
			},
			"input_variables": []string{"input"},
		})
		rec := ts.do(t, http.MethodPost, "/prompts/render/chat",
			map[string]any{"bindings": map[string]any{"input": "hi"}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		messages := decodeBody(t, rec)["messages"].([]any)
		require.Len(t, messages, 2)
		first := messages[0].(map[string]any)
		assert.Equal(t, "system", first["role"])
		assert.Equal(t, "You are terse.", first["content"])
		assert.Equal(t, "hi", messages[1].(map[string]any)["content"])
	})

	t.Run("Should 404 when the id matches neither prompt kind", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/prompts/render/ghost",
			map[string]any{"bindings": map[string]any{}})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServerTransformDocuments(t *testing.T) {
	t.Run("Should split documents and persist chunks to the output collection", func(t *testing.T) {
		ts := newTestServer(t)
		ts.configure(t, "document_transformers", "transformer", "splitter", map[string]any{
			"class": "CharacterTextSplitter",
			"kwargs": map[string]any{
				"chunk_size":    10,
				"chunk_overlap": 0,
				"separator":     "\n\n",
			},
		})
		rec := ts.do(t, http.MethodPost, "/document_transformers/transform_documents/splitter",
			map[string]any{
				"documents": []map[string]any{
					{"page_content": "first part\n\nsecond bit", "metadata": map[string]any{"id": "doc1"}},
				},
				"output_collection": "chunks",
			})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		docs := decodeBody(t, rec)["documents"].([]any)
		require.Len(t, docs, 2)

		rec = ts.do(t, http.MethodGet, "/document_stores/list_documents/chunks", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		stored := decodeBody(t, rec)["documents"].([]any)
		assert.Len(t, stored, 2)
	})

	t.Run("Should 404 for an unknown transformer id", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/document_transformers/transform_documents/ghost",
			map[string]any{"documents": []map[string]any{{"page_content": "x"}}})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func seedIngestDir(t *testing.T, fs afero.Fs) {
	t.Helper()
	require.NoError(t, fs.MkdirAll("/ingest", 0o755))
	for name, content := range map[string]string{
		"/ingest/a.txt": "alpha document",
		"/ingest/b.txt": "beta document",
	} {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
}

func loaderBody(collection string) map[string]any {
	return map[string]any{
		"path": "/ingest",
		"loader_map": []map[string]any{
			{"glob": "*.txt", "class": "TextLoader"},
		},
		"default_output_store": map[string]any{"collection_name": collection},
	}
}

func TestServerLoaderFlow(t *testing.T) {
	t.Run("Should load documents into the routed collection", func(t *testing.T) {
		ts := newTestServer(t)
		seedIngestDir(t, ts.fs)
		ts.configure(t, "document_loaders", "loader", "ingest", loaderBody("sample"))

		rec := ts.do(t, http.MethodPost, "/document_loaders/load_documents/ingest", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		docs := decodeBody(t, rec)["documents"].([]any)
		require.Len(t, docs, 2)
		for _, d := range docs {
			assert.Equal(t, "sample", d.(map[string]any)["doc_store_collection"])
		}

		rec = ts.do(t, http.MethodGet, "/document_stores/list_documents/sample", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Len(t, decodeBody(t, rec)["documents"].([]any), 2)
	})

	t.Run("Should run an async load to completion", func(t *testing.T) {
		ts := newTestServer(t)
		seedIngestDir(t, ts.fs)
		ts.configure(t, "document_loaders", "loader", "async", loaderBody("sample_async"))

		rec := ts.do(t, http.MethodPost, "/document_loaders/load_documents_async/async", nil)
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		accepted := decodeBody(t, rec)
		taskID, ok := accepted["task_id"].(string)
		require.True(t, ok)
		require.NotEmpty(t, taskID)

		deadline := time.Now().Add(2 * time.Second)
		var status map[string]any
		for time.Now().Before(deadline) {
			rec = ts.do(t, http.MethodGet, "/document_loaders/task_status/"+taskID, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			status = decodeBody(t, rec)
			if status["status"] == task.StatusDone || status["status"] == task.StatusError {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
		require.Equal(t, task.StatusDone, status["status"], fmt.Sprintf("%v", status))
		assert.Len(t, status["result"].([]any), 2)

		rec = ts.do(t, http.MethodGet, "/document_stores/list_documents/sample_async", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody(t, rec)["documents"].([]any), 2)
	})

	t.Run("Should 404 when polling an unknown task", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodGet, "/document_loaders/task_status/nope", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServerDocStores(t *testing.T) {
	t.Run("Should manage collections and documents end to end", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/document_stores/create_collection",
			map[string]any{"name": "notes", "description": "scratch"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = ts.do(t, http.MethodPost, "/document_stores/create_document/notes",
			map[string]any{"page_content": "hello", "metadata": map[string]any{"id": "n1"}})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = ts.do(t, http.MethodGet, "/document_stores/document/notes/n1", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = ts.do(t, http.MethodDelete, "/document_stores/delete_document/notes/n1", nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = ts.do(t, http.MethodGet, "/document_stores/document/notes/n1", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func (ts *testServer) upload(t *testing.T, filename, subdir, content, extra string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	if subdir != "" {
		require.NoError(t, w.WriteField("subdir", subdir))
	}
	if extra != "" {
		require.NoError(t, w.WriteField("extra_metadata", extra))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/data_stores/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestServerDataStores(t *testing.T) {
	t.Run("Should upload, download and delete a file", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.upload(t, "hello.txt", "docs", "hello world", `{"owner":"ada"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		assert.Equal(t, "docs/hello.txt", body["path"])

		rec = ts.do(t, http.MethodGet, "/data_stores/download/docs/hello.txt", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "hello world", rec.Body.String())
		assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))

		rec = ts.do(t, http.MethodGet, "/data_stores/metadata/docs/hello.txt", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = ts.do(t, http.MethodDelete, "/data_stores/delete/docs/hello.txt", nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = ts.do(t, http.MethodGet, "/data_stores/download/docs/hello.txt", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
		problem := decodeBody(t, rec)
		assert.Equal(t, float64(http.StatusNotFound), problem["status"])
	})

	t.Run("Should reject an upload with malformed extra metadata", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.upload(t, "x.txt", "", "data", "{not json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Should list uploaded files under a prefix", func(t *testing.T) {
		ts := newTestServer(t)
		require.Equal(t, http.StatusCreated, ts.upload(t, "a.txt", "reports", "aa", "").Code)
		require.Equal(t, http.StatusCreated, ts.upload(t, "b.txt", "reports", "bb", "").Code)
		require.Equal(t, http.StatusCreated, ts.upload(t, "c.txt", "misc", "cc", "").Code)

		rec := ts.do(t, http.MethodGet, "/data_stores/list?prefix=reports", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Len(t, decodeBody(t, rec)["files"].([]any), 2)
	})
}

func TestServerVectorStoreEndpoints(t *testing.T) {
	t.Run("Should require a source collection for bulk ingestion", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/vector_stores/vector_store/add_documents_from_store/vs", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeBody(t, rec)["detail"], "document_collection")

		rec = ts.do(t, http.MethodPost, "/vector_stores/vector_store/add_documents_from_store_async/vs", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Should 404 for an unknown vector store id", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost,
			"/vector_stores/vector_store/add_documents_from_store/ghost?document_collection=c", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServerChainEndpoints(t *testing.T) {
	t.Run("Should require a chain id", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/chains/execute_chain",
			map[string]any{"query": map[string]any{"input": "hi"}})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeBody(t, rec)["detail"], "chain_id")
	})

	t.Run("Should 404 for an unknown chain", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/chains/execute_chain",
			map[string]any{"chain_id": "ghost", "query": map[string]any{"input": "hi"}})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
