package server

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ragplane/ragplane/engine/catalog"
	"github.com/ragplane/ragplane/engine/core"
	"github.com/ragplane/ragplane/engine/infra/server/router"
	"github.com/ragplane/ragplane/engine/metrics"
)

func (s *Server) registerLoaders(g *gin.RouterGroup) {
	s.registerKind(g, catalog.KindLoader, "loader", "loaders", lifecycleFor(s.state.loaders))
	g.POST("/load_documents/:id", s.loadDocuments)
	g.POST("/load_documents_async/:id", s.loadDocumentsAsync)
	g.POST("/load_documents_inline_async/:id", s.loadDocumentsInline)
	g.GET("/task_status/:task_id", s.taskStatus)
}

// loadedView is the wire shape of one ingested document.
type loadedView struct {
	ID          string         `json:"id"`
	Collection  string         `json:"doc_store_collection,omitempty"`
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata"`
}

// runLoader executes the loader pipeline: enumerate, load, then persist each
// document to its routed collection in visit order.
func (s *State) runLoader(ctx context.Context, loaderID, base string) ([]loadedView, error) {
	ld, err := s.loaders.Get(ctx, loaderID)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	results, err := ld.Load(ctx, s.fs, base)
	if err != nil {
		return nil, err
	}
	views := make([]loadedView, 0, len(results))
	for i := range results {
		doc := results[i].Document
		collection := results[i].Collection
		if collection != "" {
			if _, err := s.docs.Create(ctx, collection, &doc); err != nil {
				return nil, err
			}
		}
		views = append(views, loadedView{
			ID:          doc.ID,
			Collection:  collection,
			PageContent: doc.PageContent,
			Metadata:    doc.Metadata,
		})
	}
	metrics.RecordIngestDuration(ctx, loaderID, time.Since(start))
	metrics.RecordDocumentsLoaded(ctx, loaderID, len(views))
	return views, nil
}

func (s *Server) loadDocuments(c *gin.Context) {
	views, err := s.state.runLoader(c.Request.Context(), c.Param("id"), "")
	if err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, gin.H{"documents": views})
}

func (s *Server) loadDocumentsAsync(c *gin.Context) {
	id := c.Param("id")
	t, err := s.state.tasks.Enqueue(c.Request.Context(), "load_documents_async",
		map[string]any{"loader_id": id},
		func(ctx context.Context) (any, error) {
			return s.state.runLoader(ctx, id, "")
		})
	if err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondAccepted(c, gin.H{"task_id": t.ID, "status": t.Status})
}

type inlineFile struct {
	Name          string `json:"name"`
	ContentBase64 string `json:"content_base64"`
}

// loadDocumentsInline ingests base64-inlined bytes: the worker writes them
// into a temporary directory under a fresh UUID, points the loader at it and
// runs the standard pipeline.
func (s *Server) loadDocumentsInline(c *gin.Context) {
	id := c.Param("id")
	var req struct {
		Files []inlineFile `json:"files"`
	}
	if !router.BindJSON(c, &req) {
		return
	}
	if len(req.Files) == 0 {
		router.RespondError(c, core.Validationf("at least one file is required"))
		return
	}
	decoded := make(map[string][]byte, len(req.Files))
	for _, f := range req.Files {
		if f.Name == "" {
			router.RespondError(c, core.Validationf("file name is required"))
			return
		}
		data, err := base64.StdEncoding.DecodeString(f.ContentBase64)
		if err != nil {
			router.RespondError(c, core.Validationf("file %s: invalid base64 content: %v", f.Name, err))
			return
		}
		decoded[f.Name] = data
	}
	t, err := s.state.tasks.Enqueue(c.Request.Context(), "load_documents_inline_async",
		map[string]any{"loader_id": id, "files": len(decoded)},
		func(ctx context.Context) (any, error) {
			dir := filepath.Join(os.TempDir(), uuid.NewString())
			if err := s.state.fs.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
			defer func() { _ = s.state.fs.RemoveAll(dir) }()
			for name, data := range decoded {
				target := filepath.Join(dir, filepath.Base(name))
				if err := writeFile(s.state, target, data); err != nil {
					return nil, err
				}
			}
			return s.state.runLoader(ctx, id, dir)
		})
	if err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondAccepted(c, gin.H{"task_id": t.ID, "status": t.Status})
}

func writeFile(s *State, target string, data []byte) error {
	f, err := s.fs.Create(target)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *Server) taskStatus(c *gin.Context) {
	t, err := s.state.tasks.Store().Get(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, t)
}
