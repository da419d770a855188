package server

import (
	"encoding/json"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ragplane/ragplane/engine/core"
	"github.com/ragplane/ragplane/engine/infra/server/router"
)

// registerDataStores wires the blob file and directory surface. File paths
// arrive as wildcard suffixes and keep their logical (unencoded) form.
func (s *Server) registerDataStores(g *gin.RouterGroup) {
	g.POST("/upload", s.uploadBlob)
	g.PUT("/update/*path", s.updateBlob)
	g.GET("/download/*path", s.downloadBlob)
	g.GET("/metadata/*path", s.blobMetadata)
	g.DELETE("/delete/*path", s.deleteBlob)
	g.GET("/list", s.listBlobs)
	g.GET("/search", s.searchBlobs)
	g.GET("/filter", s.filterBlobs)

	g.POST("/create_dir", s.createDir)
	g.DELETE("/delete_dir/*path", s.deleteDir)
	g.GET("/list_dirs", s.listDirs)
	g.PUT("/save_dir_meta", s.saveDirMeta)
	g.PUT("/update_dir_meta", s.updateDirMeta)
}

func wildcardPath(c *gin.Context) string {
	return strings.Trim(c.Param("path"), "/")
}

// parseExtraMetadata decodes the optional extra_metadata form field. An
// unparsable payload is a validation error rather than silently ignored.
func parseExtraMetadata(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var custom map[string]any
	if err := json.Unmarshal([]byte(raw), &custom); err != nil {
		return nil, core.Validationf("extra_metadata is not valid JSON: %v", err)
	}
	return custom, nil
}

func (s *Server) uploadBlob(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		router.RespondError(c, core.Validationf("multipart file field is required: %v", err))
		return
	}
	custom, err := parseExtraMetadata(c.PostForm("extra_metadata"))
	if err != nil {
		router.RespondError(c, err)
		return
	}
	subdir := strings.Trim(c.PostForm("subdir"), "/")
	logical := file.Filename
	if subdir != "" {
		logical = path.Join(subdir, file.Filename)
	}
	src, err := file.Open()
	if err != nil {
		router.RespondError(c, core.Validationf("open upload: %v", err))
		return
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		router.RespondError(c, core.Validationf("read upload: %v", err))
		return
	}
	if err := s.state.blob.Save(c.Request.Context(), logical, data, custom); err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondCreated(c, gin.H{"path": logical, "size": len(data)})
}

func (s *Server) updateBlob(c *gin.Context) {
	logical := wildcardPath(c)
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		router.RespondError(c, core.Validationf("read body: %v", err))
		return
	}
	custom, err := parseExtraMetadata(c.Query("extra_metadata"))
	if err != nil {
		router.RespondError(c, err)
		return
	}
	if err := s.state.blob.Update(c.Request.Context(), logical, data, custom); err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, gin.H{"path": logical, "size": len(data)})
}

func (s *Server) downloadBlob(c *gin.Context) {
	logical := wildcardPath(c)
	data, err := s.state.blob.Get(c.Request.Context(), logical)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	if data == nil {
		router.RespondError(c, core.NotFoundf("data store file %s", logical))
		return
	}
	meta, err := s.state.blob.GetMeta(c.Request.Context(), logical)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	contentType := meta.MIME
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, data)
}

func (s *Server) blobMetadata(c *gin.Context) {
	meta, err := s.state.blob.GetMeta(c.Request.Context(), wildcardPath(c))
	if err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, meta)
}

func (s *Server) deleteBlob(c *gin.Context) {
	if err := s.state.blob.Delete(c.Request.Context(), wildcardPath(c)); err != nil {
		router.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listBlobs(c *gin.Context) {
	entries, err := s.state.blob.List(c.Request.Context(), strings.Trim(c.Query("prefix"), "/"))
	if err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, gin.H{"files": entries})
}

func (s *Server) searchBlobs(c *gin.Context) {
	entries, err := s.state.blob.Search(c.Request.Context(), c.Query("query"), strings.Trim(c.Query("prefix"), "/"))
	if err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, gin.H{"files": entries})
}

func (s *Server) filterBlobs(c *gin.Context) {
	minSize, err := sizeQuery(c, "min_size", -1)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	maxSize, err := sizeQuery(c, "max_size", -1)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	entries, err := s.state.blob.Filter(c.Request.Context(), c.Query("mime"), minSize, maxSize)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, gin.H{"files": entries})
}

func sizeQuery(c *gin.Context, name string, fallback int64) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, core.Validationf("%s must be an integer: %v", name, err)
	}
	return v, nil
}

type dirRequest struct {
	Path           string         `json:"path"`
	CustomMetadata map[string]any `json:"custom_metadata"`
}

func (s *Server) createDir(c *gin.Context) {
	var req dirRequest
	if !router.BindJSON(c, &req) {
		return
	}
	if err := s.state.blob.CreateDir(c.Request.Context(), strings.Trim(req.Path, "/"), req.CustomMetadata); err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondCreated(c, gin.H{"path": strings.Trim(req.Path, "/")})
}

func (s *Server) deleteDir(c *gin.Context) {
	if err := s.state.blob.DeleteDir(c.Request.Context(), wildcardPath(c)); err != nil {
		router.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listDirs(c *gin.Context) {
	entries, err := s.state.blob.ListDirs(c.Request.Context())
	if err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, gin.H{"dirs": entries})
}

func (s *Server) saveDirMeta(c *gin.Context) {
	var req dirRequest
	if !router.BindJSON(c, &req) {
		return
	}
	if err := s.state.blob.SaveDirMeta(c.Request.Context(), strings.Trim(req.Path, "/"), req.CustomMetadata); err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, gin.H{"path": strings.Trim(req.Path, "/")})
}

func (s *Server) updateDirMeta(c *gin.Context) {
	var req dirRequest
	if !router.BindJSON(c, &req) {
		return
	}
	if err := s.state.blob.UpdateDirMeta(c.Request.Context(), strings.Trim(req.Path, "/"), req.CustomMetadata); err != nil {
		router.RespondError(c, err)
		return
	}
	router.RespondOK(c, gin.H{"path": strings.Trim(req.Path, "/")})
}
