package server

import (
	"github.com/gin-gonic/gin"

	"github.com/ragplane/ragplane/engine/catalog"
	"github.com/ragplane/ragplane/engine/core"
	"github.com/ragplane/ragplane/engine/infra/server/router"
	"github.com/ragplane/ragplane/engine/llm"
)

func (s *Server) registerLLMs(g *gin.RouterGroup) {
	s.registerKind(g, catalog.KindLLM, "llm", "llms", lifecycleFor(s.state.llms))
	g.POST("/generate/:id", s.generate)
}

func (s *Server) generate(c *gin.Context) {
	var req struct {
		Prompt          string         `json:"prompt"`
		InferenceKwargs map[string]any `json:"inference_kwargs"`
	}
	if !router.BindJSON(c, &req) {
		return
	}
	if req.Prompt == "" {
		router.RespondError(c, core.Validationf("prompt is required"))
		return
	}
	opts, err := llm.OptionsFromKwargs(req.InferenceKwargs)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	model, err := s.state.llms.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		router.RespondError(c, err)
		return
	}
	text, err := model.Generate(c.Request.Context(), req.Prompt, opts...)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, gin.H{"text": text})
}
