// Package server is the HTTP adapter over the intake pipeline. It
// translates upload requests into batch runs and report reads into gateway
// calls.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lendfast/mortgage-intake/internal/config"
	"github.com/lendfast/mortgage-intake/internal/export"
	"github.com/lendfast/mortgage-intake/internal/persistence"
	"github.com/lendfast/mortgage-intake/internal/pipeline"
	"github.com/lendfast/mortgage-intake/internal/storage"
)

// Server is the HTTP server adapter.
type Server struct {
	config     config.ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	logger     *zap.Logger
}

// NewServer wires the HTTP routes over the bound backends.
func NewServer(
	cfg config.ServerConfig,
	coordinator *pipeline.Coordinator,
	gateway persistence.Gateway,
	store storage.ObjectStore,
	exporter *export.ReportExporter,
	maxFileSize int64,
	logger *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		config: cfg,
		router: router,
		logger: logger,
	}

	router.MaxMultipartMemory = maxFileSize

	router.Use(gin.Recovery())
	router.Use(s.loggingMiddleware())
	router.Use(corsMiddleware())

	handlers := NewHandlers(coordinator, gateway, store, exporter, logger)

	router.GET("/health", handlers.HealthCheck)

	api := router.Group("/api/v1")
	{
		api.POST("/applications", handlers.CreateApplication)
		api.POST("/applications/:id/documents", handlers.UploadDocuments)
		api.GET("/applications/:id/status", handlers.GetStatus)
		api.GET("/applications/:id/report", handlers.GetReport)
		api.GET("/applications/:id/report/export", handlers.ExportReport)
	}

	return s
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Start runs the server until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", zap.Error(err))
		return err
	}
}

// Stop drains in-flight requests before closing the listener.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
