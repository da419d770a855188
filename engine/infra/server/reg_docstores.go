package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ragplane/ragplane/engine/core"
	"github.com/ragplane/ragplane/engine/docstore"
	"github.com/ragplane/ragplane/engine/infra/server/router"
)

func (s *Server) registerDocStores(g *gin.RouterGroup) {
	g.POST("/create_collection", s.createCollection)
	g.GET("/list_collections", s.listCollections)
	g.GET("/collection/:name", s.getCollection)
	g.DELETE("/delete_collection/:name", s.deleteCollection)

	g.POST("/create_document/:collection", s.createDocument)
	g.GET("/document/:collection/:id", s.getDocument)
	g.PUT("/update_document/:collection/:id", s.updateDocument)
	g.DELETE("/delete_document/:collection/:id", s.deleteDocument)
	g.GET("/list_documents/:collection", s.listDocuments)
	g.GET("/search_documents/:collection", s.searchDocuments)
}

func (s *Server) createCollection(c *gin.Context) {
	var req struct {
		Name           string         `json:"name"`
		Description    string         `json:"description"`
		CustomMetadata map[string]any `json:"custom_metadata"`
	}
	if !router.BindJSON(c, &req) {
		return
	}
	if req.Name == "" {
		router.RespondError(c, core.Validationf("collection name is required"))
		return
	}
	if err := s.state.docs.CreateCollection(c.Request.Context(), req.Name, req.Description, req.CustomMetadata); err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondCreated(c, gin.H{"name": req.Name})
}

func (s *Server) listCollections(c *gin.Context) {
	infos, err := s.state.docs.ListCollections(c.Request.Context())
	if err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, gin.H{"collections": infos})
}

func (s *Server) getCollection(c *gin.Context) {
	info, err := s.state.docs.GetCollection(c.Request.Context(), c.Param("name"))
	if err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, info)
}

func (s *Server) deleteCollection(c *gin.Context) {
	if err := s.state.docs.DeleteCollection(c.Request.Context(), c.Param("name")); err != nil {
		router.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) createDocument(c *gin.Context) {
	var doc docstore.Document
	if !router.BindJSON(c, &doc) {
		return
	}
	id, err := s.state.docs.Create(c.Request.Context(), c.Param("collection"), &doc)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	doc.ID = id
	router.RespondCreated(c, doc)
}

func (s *Server) getDocument(c *gin.Context) {
	doc, err := s.state.docs.Get(c.Request.Context(), c.Param("collection"), c.Param("id"))
	if err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, doc)
}

func (s *Server) updateDocument(c *gin.Context) {
	var doc docstore.Document
	if !router.BindJSON(c, &doc) {
		return
	}
	if err := s.state.docs.Update(c.Request.Context(), c.Param("collection"), c.Param("id"), &doc); err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, doc)
}

func (s *Server) deleteDocument(c *gin.Context) {
	if err := s.state.docs.Delete(c.Request.Context(), c.Param("collection"), c.Param("id")); err != nil {
		router.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func pageQuery(c *gin.Context) (skip, limit int, err error) {
	skip, err = intQuery(c, "skip", 0)
	if err != nil {
		return 0, 0, err
	}
	limit, err = intQuery(c, "limit", 0)
	if err != nil {
		return 0, 0, err
	}
	return skip, limit, nil
}

func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, core.Validationf("%s must be an integer: %v", name, err)
	}
	return v, nil
}

func (s *Server) listDocuments(c *gin.Context) {
	skip, limit, err := pageQuery(c)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	docs, err := s.state.docs.List(c.Request.Context(), c.Param("collection"), c.Query("prefix"), skip, limit)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, gin.H{"documents": docs})
}

func (s *Server) searchDocuments(c *gin.Context) {
	skip, limit, err := pageQuery(c)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	docs, err := s.state.docs.Search(c.Request.Context(), c.Param("collection"), c.Query("query"), skip, limit)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, gin.H{"documents": docs})
}
