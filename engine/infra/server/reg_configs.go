package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ragplane/ragplane/engine/catalog"
	"github.com/ragplane/ragplane/engine/core"
	"github.com/ragplane/ragplane/engine/infra/server/router"
	"github.com/ragplane/ragplane/engine/registry"
)

// configureRequest is the shared create payload: an id plus the raw config
// body validated downstream by the adapter plane.
type configureRequest struct {
	ConfigID string         `json:"config_id"`
	Config   map[string]any `json:"config"`
}

// configView is the shared single-config response shape.
type configView struct {
	ID     string         `json:"id"`
	Config map[string]any `json:"config"`
}

func entryViews(entries []catalog.Entry) []configView {
	out := make([]configView, 0, len(entries))
	for i := range entries {
		out = append(out, configView{ID: entries[i].ID, Config: entries[i].Body})
	}
	return out
}

// lifecycle abstracts the registry behind the load/unload/list_loaded verbs
// so one route template serves every kind.
type lifecycle struct {
	load   func(ctx context.Context, id string) error
	unload func(ctx context.Context, id string) error
	list   func() []string
}

func lifecycleFor[T any](reg *registry.Registry[T]) *lifecycle {
	return &lifecycle{
		load: func(ctx context.Context, id string) error {
			_, err := reg.Load(ctx, id)
			return err
		},
		unload: reg.Unload,
		list:   func() []string { return reg.List() },
	}
}

// mergeLifecycles chains two lifecycles for groups hosting two kinds behind
// one set of load/unload verbs: ids unknown to the first fall through to the
// second. Listing stays the primary kind's; the secondary registers its own
// list route.
func mergeLifecycles(primary, secondary *lifecycle) *lifecycle {
	return &lifecycle{
		load: func(ctx context.Context, id string) error {
			err := primary.load(ctx, id)
			if err == nil || !core.IsNotFound(err) {
				return err
			}
			return secondary.load(ctx, id)
		},
		unload: func(ctx context.Context, id string) error {
			err := primary.unload(ctx, id)
			if err == nil || !errors.Is(err, core.ErrNotLoaded) {
				return err
			}
			return secondary.unload(ctx, id)
		},
		list: primary.list,
	}
}

// registerKind wires the catalog CRUD verbs for one configuration kind and,
// when a lifecycle is given, the registry verbs beside them.
func (s *Server) registerKind(g *gin.RouterGroup, kind catalog.Kind, singular, plural string, life *lifecycle) {
	g.POST("/configure_"+singular, s.createConfig(kind))
	g.GET("/list_"+singular+"_configs", s.listConfigs(kind))
	g.POST("/search_"+singular+"_configs", s.searchConfigs(kind))
	g.GET("/"+singular+"_config/:id", s.getConfig(kind))
	g.PUT("/update_"+singular+"_config/:id", s.updateConfig(kind))
	g.DELETE("/delete_"+singular+"_config/:id", s.deleteConfig(kind))
	if life != nil {
		g.POST("/load/:id", func(c *gin.Context) {
			id := c.Param("id")
			if err := life.load(c.Request.Context(), id); err != nil {
				router.RespondError(c, err)
				return
			}
			router.RespondOK(c, gin.H{"id": id, "status": "loaded"})
		})
		g.POST("/unload/:id", func(c *gin.Context) {
			id := c.Param("id")
			if err := life.unload(c.Request.Context(), id); err != nil {
				router.RespondError(c, err)
				return
			}
			router.RespondOK(c, gin.H{"id": id, "status": "unloaded"})
		})
		g.GET("/list_loaded_"+plural, func(c *gin.Context) {
			router.RespondOK(c, gin.H{"loaded": life.list()})
		})
	}
}

func (s *Server) createConfig(kind catalog.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req configureRequest
		if !router.BindJSON(c, &req) {
			return
		}
		if req.ConfigID == "" {
			router.RespondError(c, core.Validationf("config_id is required"))
			return
		}
		if req.Config == nil {
			router.RespondError(c, core.Validationf("config body is required"))
			return
		}
		if err := s.state.catalog.Create(c.Request.Context(), kind, req.ConfigID, req.Config); err != nil {
			router.RespondError(c, err)
			return
		}
		router.RespondCreated(c, configView{ID: req.ConfigID, Config: req.Config})
	}
}

func (s *Server) listConfigs(kind catalog.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := s.state.catalog.List(c.Request.Context(), kind)
		if err != nil {
			router.RespondError(c, err)
			return
		}
		router.RespondOK(c, gin.H{"configs": entryViews(entries)})
	}
}

func (s *Server) searchConfigs(kind catalog.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Filter map[string]any `json:"filter"`
		}
		if !router.BindJSON(c, &req) {
			return
		}
		entries, err := s.state.catalog.Search(c.Request.Context(), kind, req.Filter)
		if err != nil {
			router.RespondError(c, err)
			return
		}
		router.RespondOK(c, gin.H{"configs": entryViews(entries)})
	}
}

func (s *Server) getConfig(kind catalog.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := s.state.catalog.Get(c.Request.Context(), kind, c.Param("id"))
		if err != nil {
			router.RespondError(c, err)
			return
		}
		router.RespondOK(c, configView{ID: c.Param("id"), Config: body})
	}
}

func (s *Server) updateConfig(kind catalog.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Config map[string]any `json:"config"`
		}
		if !router.BindJSON(c, &req) {
			return
		}
		if req.Config == nil {
			router.RespondError(c, core.Validationf("config body is required"))
			return
		}
		if err := s.state.catalog.Update(c.Request.Context(), kind, c.Param("id"), req.Config); err != nil {
			router.RespondError(c, err)
			return
		}
		router.RespondOK(c, configView{ID: c.Param("id"), Config: req.Config})
	}
}

func (s *Server) deleteConfig(kind catalog.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.state.catalog.Delete(c.Request.Context(), kind, c.Param("id")); err != nil {
			router.RespondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
