package server

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ragplane/ragplane/engine/catalog"
	"github.com/ragplane/ragplane/engine/chain"
	"github.com/ragplane/ragplane/engine/core"
	"github.com/ragplane/ragplane/engine/infra/server/router"
	"github.com/ragplane/ragplane/engine/metrics"
)

// Tool outputs are redacted in externally exposed telemetry; internal traces
// keep the real value.
const redactedToolOutput = "[redacted]"

func (s *Server) registerChains(g *gin.RouterGroup) {
	s.registerKind(g, catalog.KindChain, "chain", "chains", lifecycleFor(s.state.chains))
	g.POST("/execute_chain", s.executeChain)
	g.POST("/execute_chain/", s.executeChain)
	g.POST("/stream_chain", s.streamChain)
	g.POST("/stream_events_chain", s.streamEventsChain)
}

type chainRequest struct {
	ChainID         string         `json:"chain_id"`
	Query           chain.Input    `json:"query"`
	InferenceKwargs map[string]any `json:"inference_kwargs"`
}

func (r *chainRequest) input() chain.Input {
	in := r.Query
	if in.InferenceKwargs == nil {
		in.InferenceKwargs = r.InferenceKwargs
	}
	return in
}

func (s *Server) executeChain(c *gin.Context) {
	var req chainRequest
	if !router.BindJSON(c, &req) {
		return
	}
	if req.ChainID == "" {
		router.RespondError(c, core.Validationf("chain_id is required"))
		return
	}
	handle, err := s.state.chains.Get(c.Request.Context(), req.ChainID)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	start := time.Now()
	output, err := s.state.engine.Invoke(c.Request.Context(), handle, req.input())
	if err != nil {
		router.RespondError(c, err)
		return
	}
	metrics.RecordChainLatency(c.Request.Context(), req.ChainID, "invoke", time.Since(start))
	router.RespondOK(c, output)
}

func (s *Server) streamChain(c *gin.Context) {
	var req chainRequest
	if !router.BindJSON(c, &req) {
		return
	}
	if req.ChainID == "" {
		router.RespondError(c, core.Validationf("chain_id is required"))
		return
	}
	handle, err := s.state.chainHandle(c.Request.Context(), req.ChainID)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	start := time.Now()
	sw := router.NewStreamWriter(c)
	for item := range s.state.engine.Stream(c.Request.Context(), handle, req.input()) {
		if item.Err != nil {
			sw.WriteError(item.Err)
			return
		}
		sw.Write(item.Payload)
	}
	metrics.RecordChainLatency(c.Request.Context(), req.ChainID, "stream", time.Since(start))
}

func (s *Server) streamEventsChain(c *gin.Context) {
	var req chainRequest
	if !router.BindJSON(c, &req) {
		return
	}
	if req.ChainID == "" {
		router.RespondError(c, core.Validationf("chain_id is required"))
		return
	}
	handle, err := s.state.chainHandle(c.Request.Context(), req.ChainID)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	start := time.Now()
	sw := router.NewStreamWriter(c)
	for item := range s.state.engine.StreamEvents(c.Request.Context(), handle, req.input()) {
		if item.Err != nil {
			sw.WriteError(item.Err)
			return
		}
		sw.Write(redactEvent(item.Payload))
	}
	metrics.RecordChainLatency(c.Request.Context(), req.ChainID, "stream_events", time.Since(start))
}

// redactEvent masks tool outputs before they leave the process.
func redactEvent(payload any) any {
	ev, ok := payload.(chain.Event)
	if !ok || ev.Event != chain.EventToolEnd {
		return payload
	}
	data := core.CloneMap(ev.Data)
	if data == nil {
		data = map[string]any{}
	}
	if _, present := data["output"]; present {
		data["output"] = redactedToolOutput
	}
	ev.Data = data
	return ev
}
