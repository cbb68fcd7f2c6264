// Package server exposes the search service over HTTP: the enhanced search
// endpoint, the per-session SSE step stream, feedback capture, and the
// conversation surface.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"olympus/internal/agents"
	"olympus/internal/config"
	"olympus/internal/ingest"
	"olympus/internal/logging"
	"olympus/internal/steps"
	"olympus/internal/store"
)

// Server wires the HTTP surface over the orchestrator and the store.
type Server struct {
	zeus     *agents.Zeus
	store    *store.LocalStore
	bus      *steps.Bus
	pipeline *ingest.Pipeline
	cfg      config.ServerConfig
}

// New builds the server. The pipeline is optional; without it the index
// endpoint reports unavailable.
func New(zeus *agents.Zeus, st *store.LocalStore, bus *steps.Bus, pipeline *ingest.Pipeline, cfg config.ServerConfig) *Server {
	return &Server{zeus: zeus, store: st, bus: bus, pipeline: pipeline, cfg: cfg}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", s.handleHealth)
	r.GET("/status", s.handleStatus)

	r.POST("/search/enhanced", s.handleSearch)
	r.GET("/search/enhanced/stream/:session_id", s.handleStream)

	r.POST("/feedback", s.handleFeedback)

	r.POST("/index", s.handleIndex)
	r.GET("/documents", s.handleListDocuments)
	r.GET("/documents/:id", s.handleGetDocument)
	r.DELETE("/documents/:id", s.handleDeleteDocument)

	conv := r.Group("/conversations")
	{
		conv.POST("", s.handleCreateConversation)
		conv.GET("", s.handleListConversations)
		conv.GET("/:id", s.handleGetConversation)
		conv.GET("/:id/messages", s.handleGetMessages)
		conv.PUT("/:id", s.handleRenameConversation)
		conv.POST("/:id/pin", s.handlePinConversation)
		conv.DELETE("/:id", s.handleDeleteConversation)
		conv.POST("/:id/documents", s.handleAttachDocument)
		conv.DELETE("/:id/documents/:doc_id", s.handleDetachDocument)
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Server("listening on %s", s.cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Server("%s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
