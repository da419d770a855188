package server

import (
	"github.com/gin-gonic/gin"

	"github.com/ragplane/ragplane/engine/catalog"
	"github.com/ragplane/ragplane/engine/core"
	"github.com/ragplane/ragplane/engine/infra/server/router"
)

func (s *Server) registerEmbedders(g *gin.RouterGroup) {
	s.registerKind(g, catalog.KindEmbedder, "embedder", "embedders", lifecycleFor(s.state.embedders))
	g.POST("/embed/:id", s.embed)
}

func (s *Server) embed(c *gin.Context) {
	var req struct {
		Texts []string `json:"texts"`
		Query string   `json:"query"`
	}
	if !router.BindJSON(c, &req) {
		return
	}
	adapter, err := s.state.embedders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		router.RespondError(c, err)
		return
	}
	if req.Query != "" {
		vector, err := adapter.EmbedQuery(c.Request.Context(), req.Query)
		if err != nil {
			router.RespondError(c, err)
			return
		}
		router.RespondOK(c, gin.H{"embedding": vector})
		return
	}
	if len(req.Texts) == 0 {
		router.RespondError(c, core.Validationf("texts or query is required"))
		return
	}
	vectors, err := adapter.EmbedDocuments(c.Request.Context(), req.Texts)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, gin.H{"embeddings": vectors})
}
