// Package server exposes the control plane over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ragplane/ragplane/pkg/config"
	"github.com/ragplane/ragplane/pkg/logger"
)

const (
	httpReadTimeout = 15 * time.Second
	httpIdleTimeout = 60 * time.Second
)

// Server owns the HTTP listener and the shared state behind it.
type Server struct {
	cfg    *config.Config
	state  *State
	router *gin.Engine
	http   *http.Server
}

// New assembles a server over pre-built state. The context seeds the logger
// and config every request handler sees.
func New(ctx context.Context, cfg *config.Config, state *State) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), RequestContext(ctx))
	s := &Server{cfg: cfg, state: state, router: router}
	s.registerRoutes()
	return s
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Run serves until the context is cancelled, then drains connections within
// the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.http = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: httpReadTimeout,
		IdleTimeout: httpIdleTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	log.Info("shutting down http server")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return s.state.Close(shutdownCtx)
}

// RequestContext threads the process logger and config into every request.
// Installed first so every handler sees an enriched context.
func RequestContext(base context.Context) gin.HandlerFunc {
	log := logger.FromContext(base)
	cfg := config.FromContext(base)
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ctx = logger.ContextWithLogger(ctx, log)
		ctx = config.ContextWithConfig(ctx, cfg)
		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()
		log.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
