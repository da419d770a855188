package server

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/tmc/langchaingo/llms"

	"github.com/ragplane/ragplane/engine/catalog"
	"github.com/ragplane/ragplane/engine/core"
	"github.com/ragplane/ragplane/engine/infra/server/router"
	"github.com/ragplane/ragplane/engine/prompt"
)

func (s *Server) registerPrompts(g *gin.RouterGroup) {
	s.registerKind(g, catalog.KindPrompt, "prompt", "prompts",
		mergeLifecycles(lifecycleFor(s.state.prompts), lifecycleFor(s.state.chatPrompts)))
	s.registerKind(g, catalog.KindChatPrompt, "chat_prompt", "chat_prompts", nil)
	g.GET("/list_loaded_chat_prompts", func(c *gin.Context) {
		router.RespondOK(c, gin.H{"loaded": s.state.chatPrompts.List()})
	})
	g.POST("/render/:id", s.renderPrompt)
	g.POST("/partial/:id", s.partialPrompt)
	g.POST("/get/:id", s.getPrompt)
}

type promptRequest struct {
	Bindings map[string]any `json:"bindings"`
	Partial  bool           `json:"partial"`
}

// resolvePrompt finds the id among string prompts first, then chat prompts.
func (s *State) resolvePrompt(ctx context.Context, id string) (*prompt.Prompt, *prompt.ChatPrompt, error) {
	p, err := s.prompts.Get(ctx, id)
	if err == nil {
		return p, nil, nil
	}
	if !core.IsNotFound(err) {
		return nil, nil, err
	}
	cp, cerr := s.chatPrompts.Get(ctx, id)
	if cerr != nil {
		return nil, nil, core.NotFoundf("prompt or chat prompt %q", id)
	}
	return nil, cp, nil
}

type messageView struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func messageViews(messages []llms.MessageContent) []messageView {
	out := make([]messageView, 0, len(messages))
	for _, msg := range messages {
		var content string
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				content += text.Text
			}
		}
		out = append(out, messageView{Role: string(msg.Role), Content: content})
	}
	return out
}

func (s *Server) renderPrompt(c *gin.Context) {
	var req promptRequest
	if !router.BindJSON(c, &req) {
		return
	}
	p, cp, err := s.state.resolvePrompt(c.Request.Context(), c.Param("id"))
	if err != nil {
		router.RespondError(c, err)
		return
	}
	if p != nil {
		text, err := p.Render(req.Bindings)
		if err != nil {
			router.RespondError(c, err)
			return
		}
		router.RespondOK(c, gin.H{"text": text})
		return
	}
	messages, err := cp.Render(req.Bindings)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, gin.H{"messages": messageViews(messages)})
}

func (s *Server) partialPrompt(c *gin.Context) {
	var req promptRequest
	if !router.BindJSON(c, &req) {
		return
	}
	p, cp, err := s.state.resolvePrompt(c.Request.Context(), c.Param("id"))
	if err != nil {
		router.RespondError(c, err)
		return
	}
	if p != nil {
		router.RespondOK(c, p.Partial(req.Bindings).Config())
		return
	}
	router.RespondOK(c, cp.Partial(req.Bindings).Config())
}

// getPrompt returns the prompt object: the raw template by default, the
// partially bound template when partial is set, or the materialised output
// when bindings are given without partial.
func (s *Server) getPrompt(c *gin.Context) {
	var req promptRequest
	if !router.BindJSON(c, &req) {
		return
	}
	p, cp, err := s.state.resolvePrompt(c.Request.Context(), c.Param("id"))
	if err != nil {
		router.RespondError(c, err)
		return
	}
	switch {
	case req.Partial:
		if p != nil {
			router.RespondOK(c, p.Partial(req.Bindings).Config())
			return
		}
		router.RespondOK(c, cp.Partial(req.Bindings).Config())
	case req.Bindings != nil:
		if p != nil {
			text, err := p.Render(req.Bindings)
			if err != nil {
				router.RespondError(c, err)
				return
			}
			router.RespondOK(c, gin.H{"text": text})
			return
		}
		messages, err := cp.Render(req.Bindings)
		if err != nil {
			router.RespondError(c, err)
			return
		}
		router.RespondOK(c, gin.H{"messages": messageViews(messages)})
	default:
		if p != nil {
			router.RespondOK(c, p.Config())
			return
		}
		router.RespondOK(c, cp.Config())
	}
}
