// Package web serves the hierarchy and reparent operations as a JSON API
// for the drag-and-drop tree view.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/edwh/otk/internal/core"
	"github.com/edwh/otk/pkg/models"
)

// Server is the otk HTTP API.
type Server struct {
	svc       core.Service
	presenter *core.TreePresenter
	cfg       *models.Config
	logger    *log.Logger
	router    *gin.Engine
}

// NewServer creates a Server. logger may be nil.
func NewServer(svc core.Service, presenter *core.TreePresenter, cfg *models.Config, logger *log.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	if logger != nil {
		router.Use(requestLogger(logger))
	}

	s := &Server{
		svc:       svc,
		presenter: presenter,
		cfg:       cfg,
		logger:    logger,
		router:    router,
	}

	router.GET("/healthz", s.handleHealth)

	api := router.Group("/api")
	{
		api.GET("/hierarchy/project/:id", s.handleProjectHierarchy)
		api.GET("/hierarchy/task/:id", s.handleTaskHierarchy)
		api.GET("/move-task", s.handleMoveTask)
		api.POST("/move-task", s.handleMoveTask)
		api.POST("/move-tasks", s.handleMoveTasks)
		api.GET("/settings", s.handleSettings)
	}

	return s
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Info("listening", "addr", addr)
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	}
}

func requestLogger(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"took", time.Since(start))
	}
}
