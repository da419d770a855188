package server

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/ragplane/ragplane/engine/catalog"
	"github.com/ragplane/ragplane/engine/core"
	"github.com/ragplane/ragplane/engine/docstore"
	"github.com/ragplane/ragplane/engine/infra/server/router"
	"github.com/ragplane/ragplane/engine/query"
	"github.com/ragplane/ragplane/engine/vectorstore"
)

func (s *Server) registerVectorStores(g *gin.RouterGroup) {
	s.registerKind(g, catalog.KindVectorStore, "vector_store", "vector_stores", lifecycleFor(s.state.vectorStores))
	g.POST("/vector_store/search/:id", s.vectorSearch)
	g.POST("/vector_store/retrieve/:id", s.vectorRetrieve)
	g.POST("/vector_store/filter/:id", s.vectorFilter)
	g.POST("/vector_store/documents/:id", s.vectorAddDocuments)
	g.POST("/vector_store/texts/:id", s.vectorAddTexts)
	g.POST("/vector_store/delete/:id", s.vectorDelete)
	g.POST("/vector_store/update/:id", s.vectorUpdate)
	g.POST("/vector_store/add_documents_from_store/:id", s.vectorAddFromStore)
	g.POST("/vector_store/add_documents_from_store_async/:id", s.vectorAddFromStoreAsync)
	g.GET("/task_status/:task_id", s.taskStatus)
}

type vectorSearchRequest struct {
	Query        string                   `json:"query"`
	SearchType   string                   `json:"search_type"`
	SearchKwargs vectorstore.SearchKwargs `json:"search_kwargs"`
}

func (s *Server) runVectorSearch(c *gin.Context) {
	var req vectorSearchRequest
	if !router.BindJSON(c, &req) {
		return
	}
	if req.Query == "" {
		router.RespondError(c, core.Validationf("query is required"))
		return
	}
	store, err := s.state.vectorStores.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		router.RespondError(c, err)
		return
	}
	retriever, err := store.AsRetriever(req.SearchType, req.SearchKwargs)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	results, err := retriever.Invoke(c.Request.Context(), req.Query)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, gin.H{"results": results})
}

func (s *Server) vectorSearch(c *gin.Context) { s.runVectorSearch(c) }

// vectorRetrieve is the as_retriever surface; it shares the search
// semantics and exists so clients can address the retriever contract
// explicitly.
func (s *Server) vectorRetrieve(c *gin.Context) { s.runVectorSearch(c) }

// vectorFilter narrows a similarity search by a metadata predicate evaluated
// over the hits.
func (s *Server) vectorFilter(c *gin.Context) {
	var req struct {
		vectorSearchRequest
		Filter map[string]any `json:"filter"`
	}
	if !router.BindJSON(c, &req) {
		return
	}
	if req.Query == "" {
		router.RespondError(c, core.Validationf("query is required"))
		return
	}
	predicate, err := query.Parse(req.Filter)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	store, err := s.state.vectorStores.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		router.RespondError(c, err)
		return
	}
	retriever, err := store.AsRetriever(req.SearchType, req.SearchKwargs)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	results, err := retriever.Invoke(c.Request.Context(), req.Query)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	kept := make([]vectorstore.Result, 0, len(results))
	for i := range results {
		ok, err := predicate.Matches(results[i].Metadata)
		if err != nil {
			router.RespondError(c, err)
			return
		}
		if ok {
			kept = append(kept, results[i])
		}
	}
	router.RespondOK(c, gin.H{"results": kept})
}

func (s *Server) vectorAddDocuments(c *gin.Context) {
	var req struct {
		Documents []docstore.Document `json:"documents"`
	}
	if !router.BindJSON(c, &req) {
		return
	}
	if len(req.Documents) == 0 {
		router.RespondError(c, core.Validationf("at least one document is required"))
		return
	}
	store, err := s.state.vectorStores.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		router.RespondError(c, err)
		return
	}
	ids, err := store.AddDocuments(c.Request.Context(), req.Documents)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, gin.H{"ids": ids})
}

func (s *Server) vectorAddTexts(c *gin.Context) {
	var req struct {
		Texts     []string         `json:"texts"`
		Metadatas []map[string]any `json:"metadatas"`
	}
	if !router.BindJSON(c, &req) {
		return
	}
	if len(req.Texts) == 0 {
		router.RespondError(c, core.Validationf("at least one text is required"))
		return
	}
	store, err := s.state.vectorStores.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		router.RespondError(c, err)
		return
	}
	ids, err := store.AddTexts(c.Request.Context(), req.Texts, req.Metadatas)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, gin.H{"ids": ids})
}

func (s *Server) vectorDelete(c *gin.Context) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if !router.BindJSON(c, &req) {
		return
	}
	if len(req.IDs) == 0 {
		router.RespondError(c, core.Validationf("at least one id is required"))
		return
	}
	store, err := s.state.vectorStores.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		router.RespondError(c, err)
		return
	}
	if err := store.Delete(c.Request.Context(), req.IDs); err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, gin.H{"deleted": req.IDs})
}

func (s *Server) vectorUpdate(c *gin.Context) {
	var req struct {
		DocumentID string            `json:"document_id"`
		Document   docstore.Document `json:"document"`
	}
	if !router.BindJSON(c, &req) {
		return
	}
	if req.DocumentID == "" {
		router.RespondError(c, core.Validationf("document_id is required"))
		return
	}
	store, err := s.state.vectorStores.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		router.RespondError(c, err)
		return
	}
	if err := store.Update(c.Request.Context(), req.DocumentID, &req.Document); err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, gin.H{"id": req.DocumentID})
}

// vectorAddFromStore bulk-ingests a doc-store collection, stripping complex
// metadata so every backend accepts the records. Embedding ids follow the
// document ids, so re-running after a partial failure converges.
func (s *Server) vectorAddFromStore(c *gin.Context) {
	collection := c.Query("document_collection")
	if collection == "" {
		router.RespondError(c, core.Validationf("document_collection query parameter is required"))
		return
	}
	ids, err := s.state.ingestFromStore(c.Request.Context(), c.Param("id"), collection)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, gin.H{"ids": ids, "count": len(ids)})
}

func (s *State) ingestFromStore(ctx context.Context, storeID, collection string) ([]string, error) {
	store, err := s.vectorStores.Get(ctx, storeID)
	if err != nil {
		return nil, err
	}
	docs, err := s.docs.All(ctx, collection)
	if err != nil {
		return nil, err
	}
	return store.AddDocuments(ctx, vectorstore.CleanDocuments(docs))
}

func (s *Server) vectorAddFromStoreAsync(c *gin.Context) {
	collection := c.Query("document_collection")
	if collection == "" {
		router.RespondError(c, core.Validationf("document_collection query parameter is required"))
		return
	}
	id := c.Param("id")
	t, err := s.state.tasks.Enqueue(c.Request.Context(), "add_documents_from_store_async",
		map[string]any{"vector_store_id": id, "document_collection": collection},
		func(ctx context.Context) (any, error) {
			ids, err := s.state.ingestFromStore(ctx, id, collection)
			if err != nil {
				return nil, err
			}
			return map[string]any{"ids": ids, "count": len(ids)}, nil
		})
	if err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondAccepted(c, gin.H{"task_id": t.ID, "status": t.Status})
}
