package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taskio/ticket-classifier/internal/config"
)

// Server wraps the HTTP server and its lifecycle helpers.
type Server struct {
	cfg        config.ServerConfig
	httpServer *http.Server
}

// NewServer constructs an HTTP server with all ticket routes registered.
func NewServer(cfg config.ServerConfig, handlers *Handlers, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	router.GET("/healthz", handlers.Health)

	tickets := router.Group("/api/tickets")
	{
		tickets.POST("", handlers.CreateTicket)
		tickets.POST("/classify-only", handlers.ClassifyOnly)
		tickets.GET("", handlers.ListTickets)
		tickets.GET("/categories", handlers.Categories)
		tickets.GET("/:id", handlers.GetTicket)
		tickets.PATCH("/:id/correct", handlers.CorrectTicket)
	}

	analytics := router.Group("/api/analytics")
	{
		analytics.GET("/overview", handlers.AnalyticsOverview)
		analytics.GET("/corrections", handlers.Corrections)
	}

	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains in-flight requests within the configured graceful timeout.
func (s *Server) Stop(ctx context.Context) error {
	timeout := s.cfg.GracefulTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.cfg.Address
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
