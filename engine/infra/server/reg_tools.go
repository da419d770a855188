package server

import (
	"github.com/gin-gonic/gin"

	"github.com/ragplane/ragplane/engine/catalog"
	"github.com/ragplane/ragplane/engine/core"
	"github.com/ragplane/ragplane/engine/infra/server/router"
)

func (s *Server) registerTools(g *gin.RouterGroup) {
	s.registerKind(g, catalog.KindTool, "tool", "tools", lifecycleFor(s.state.tools))
	g.POST("/call/:id", s.callTool)
}

func (s *Server) callTool(c *gin.Context) {
	var req struct {
		Input string `json:"input"`
	}
	if !router.BindJSON(c, &req) {
		return
	}
	t, err := s.state.tools.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		router.RespondError(c, err)
		return
	}
	if req.Input == "" {
		router.RespondError(c, core.Validationf("input is required"))
		return
	}
	output, err := t.Call(c.Request.Context(), req.Input)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, gin.H{"name": t.Name(), "output": output})
}
