package server

import (
	"github.com/gin-gonic/gin"

	"github.com/ragplane/ragplane/engine/infra/server/router"
)

// registerRoutes wires every path prefix. Each kind group carries the shared
// configuration CRUD plus its own actions.
func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.health)

	s.registerDataStores(s.router.Group("/data_stores"))
	s.registerLoaders(s.router.Group("/document_loaders"))
	s.registerDocStores(s.router.Group("/document_stores"))
	s.registerTransformers(s.router.Group("/document_transformers"))
	s.registerEmbedders(s.router.Group("/embedding_models"))
	s.registerVectorStores(s.router.Group("/vector_stores"))
	s.registerLLMs(s.router.Group("/llms"))
	s.registerPrompts(s.router.Group("/prompts"))
	s.registerTools(s.router.Group("/tools"))
	s.registerChains(s.router.Group("/chains"))
}

func (s *Server) health(c *gin.Context) {
	router.RespondOK(c, gin.H{"status": "ok"})
}
