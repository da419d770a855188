package server

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/ragplane/ragplane/engine/catalog"
	"github.com/ragplane/ragplane/engine/core"
	"github.com/ragplane/ragplane/engine/docstore"
	"github.com/ragplane/ragplane/engine/infra/server/router"
	"github.com/ragplane/ragplane/engine/metrics"
	"github.com/ragplane/ragplane/engine/transformer"
)

func (s *Server) registerTransformers(g *gin.RouterGroup) {
	s.registerKind(g, catalog.KindTransformer, "transformer", "transformers",
		mergeLifecycles(lifecycleFor(s.state.transformers), lifecycleFor(s.state.transMaps)))
	s.registerKind(g, catalog.KindTransformerMap, "transformer_map", "transformer_maps", nil)
	g.GET("/list_loaded_transformer_maps", func(c *gin.Context) {
		router.RespondOK(c, gin.H{"loaded": s.state.transMaps.List()})
	})
	g.POST("/transform_documents/:id", s.transformDocuments)
	g.POST("/transform_documents_from_store/:id", s.transformFromStore)
}

// applyTransformer runs the id as a plain transformer or, failing that, as a
// transformer map, and returns the routed chunks.
func (s *State) applyTransformer(ctx context.Context, id string, docs []docstore.Document) ([]transformer.Routed, error) {
	if tr, err := s.transformers.Get(ctx, id); err == nil {
		chunks, err := tr.Transform(docs)
		if err != nil {
			return nil, err
		}
		routed := make([]transformer.Routed, 0, len(chunks))
		for i := range chunks {
			routed = append(routed, transformer.Routed{Document: chunks[i]})
		}
		metrics.RecordChunks(ctx, id, len(routed))
		return routed, nil
	} else if !core.IsNotFound(err) {
		return nil, err
	}
	m, err := s.transMaps.Get(ctx, id)
	if err != nil {
		return nil, core.NotFoundf("transformer or transformer map %q", id)
	}
	routed, err := m.Apply(docs)
	if err != nil {
		return nil, err
	}
	metrics.RecordChunks(ctx, id, len(routed))
	return routed, nil
}

// persistRouted writes chunks carrying a target collection; override forces
// every chunk into one collection.
func (s *State) persistRouted(ctx context.Context, routed []transformer.Routed, override string) error {
	for i := range routed {
		collection := routed[i].Collection
		if override != "" {
			collection = override
		}
		if collection == "" {
			continue
		}
		doc := routed[i].Document
		if _, err := s.docs.Create(ctx, collection, &doc); err != nil {
			return err
		}
		routed[i].Document = doc
	}
	return nil
}

func routedViews(routed []transformer.Routed) []docstore.Document {
	out := make([]docstore.Document, 0, len(routed))
	for i := range routed {
		out = append(out, routed[i].Document)
	}
	return out
}

func (s *Server) transformDocuments(c *gin.Context) {
	var req struct {
		Documents        []docstore.Document `json:"documents"`
		OutputCollection string              `json:"output_collection"`
	}
	if !router.BindJSON(c, &req) {
		return
	}
	if len(req.Documents) == 0 {
		router.RespondError(c, core.Validationf("at least one document is required"))
		return
	}
	routed, err := s.state.applyTransformer(c.Request.Context(), c.Param("id"), req.Documents)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	if err := s.state.persistRouted(c.Request.Context(), routed, req.OutputCollection); err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, gin.H{"documents": routedViews(routed)})
}

func (s *Server) transformFromStore(c *gin.Context) {
	var req struct {
		Collection       string `json:"collection"`
		OutputCollection string `json:"output_collection"`
	}
	if !router.BindJSON(c, &req) {
		return
	}
	if req.Collection == "" {
		router.RespondError(c, core.Validationf("collection is required"))
		return
	}
	docs, err := s.state.docs.All(c.Request.Context(), req.Collection)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	routed, err := s.state.applyTransformer(c.Request.Context(), c.Param("id"), docs)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	if err := s.state.persistRouted(c.Request.Context(), routed, req.OutputCollection); err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, gin.H{"documents": routedViews(routed)})
}
