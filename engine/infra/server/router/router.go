// Package router carries the response helpers shared by every route group.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ragplane/ragplane/engine/core"
	"github.com/ragplane/ragplane/pkg/logger"
)

// RespondOK writes a JSON payload with status 200.
func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondCreated writes a JSON payload with status 201.
func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

// RespondAccepted writes a JSON payload with status 202.
func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}

// RespondError maps a domain error to its HTTP problem representation.
func RespondError(c *gin.Context, err error) {
	RespondProblem(c, core.ProblemFromError(err))
}

// RespondProblem writes a canonical problem response.
func RespondProblem(c *gin.Context, problem *core.Problem) {
	prepared := core.NormalizeProblem(problem)
	logProblem(c, prepared)
	c.JSON(prepared.Status, core.ProblemDocument{
		Status: prepared.Status,
		Error:  prepared.Title,
		Detail: prepared.Detail,
	})
	c.Abort()
}

func logProblem(c *gin.Context, problem *core.Problem) {
	log := logger.FromContext(c.Request.Context())
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	fields := []any{
		"status", problem.Status,
		"detail", problem.Detail,
		"route", route,
	}
	if problem.Status >= http.StatusInternalServerError {
		log.Error("request failed", fields...)
		return
	}
	log.Warn("request failed", fields...)
}

// BindJSON decodes the request body, reporting malformed payloads as
// validation problems.
func BindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		RespondError(c, core.Validationf("invalid request body: %v", err))
		return false
	}
	return true
}

const notSerializableChunk = `{"error":"output object not serializable"}`

// StreamWriter emits one JSON document per chunk over a chunked response,
// flushing after every write so consumers observe chunks as they are
// produced.
type StreamWriter struct {
	c       *gin.Context
	flusher http.Flusher
	started bool
}

// NewStreamWriter prepares a chunked application/json response.
func NewStreamWriter(c *gin.Context) *StreamWriter {
	flusher, _ := c.Writer.(http.Flusher)
	return &StreamWriter{c: c, flusher: flusher}
}

// Write serialises one payload as a chunk. Values that cannot be serialised
// are replaced by a fixed error document rather than breaking the stream.
func (w *StreamWriter) Write(payload any) {
	w.start()
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(notSerializableChunk)
	}
	if _, err := w.c.Writer.Write(data); err != nil {
		return
	}
	w.flush()
}

// WriteError terminates the stream with a final error document. Output
// already delivered is not rolled back.
func (w *StreamWriter) WriteError(err error) {
	w.Write(map[string]any{"error": err.Error()})
}

func (w *StreamWriter) start() {
	if w.started {
		return
	}
	w.started = true
	w.c.Writer.Header().Set("Content-Type", "application/json")
	w.c.Writer.Header().Set("Transfer-Encoding", "chunked")
	w.c.Writer.WriteHeader(http.StatusOK)
}

func (w *StreamWriter) flush() {
	if w.flusher != nil {
		w.flusher.Flush()
	}
}
