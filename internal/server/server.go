package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/amoylab/chatterbox/internal/common/config"
	"github.com/amoylab/chatterbox/internal/gateway"
	"github.com/amoylab/chatterbox/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Server is the HTTP front of the chat service
type Server struct {
	logger  *zap.Logger
	cfg     *config.ChatServerConfig
	router  *gin.Engine
	httpSrv *http.Server
	gateway *gateway.Gateway
	metrics *metrics.Metrics
}

// NewServer creates the HTTP server. m may be nil when metrics are disabled.
func NewServer(logger *zap.Logger, cfg *config.ChatServerConfig, gw *gateway.Gateway, m *metrics.Metrics) *Server {
	s := &Server{
		logger:  logger.Named("server"),
		cfg:     cfg,
		router:  gin.New(),
		gateway: gw,
		metrics: m,
	}

	s.router.Use(s.loggerMiddleware())
	s.router.Use(s.recoveryMiddleware())
	if cfg.Tracing.Enabled {
		s.router.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	if m != nil {
		s.router.Use(m.Middleware())
	}

	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.router,
	}
	return s
}

// RegisterRoutes registers the socket, health, search, metrics and static routes
func (s *Server) RegisterRoutes() {
	s.router.GET("/socket", s.gateway.Handle)
	s.router.GET("/health_check", s.handleHealthCheck)
	s.router.GET("/search", s.handleSearch)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	if info, err := os.Stat(s.cfg.PublicDir); err == nil && info.IsDir() {
		s.router.NoRoute(gin.WrapH(http.FileServer(http.Dir(s.cfg.PublicDir))))
	} else {
		s.logger.Warn("public directory not found, static files disabled", zap.String("path", s.cfg.PublicDir))
	}
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in the background until Shutdown
func (s *Server) Start() {
	s.logger.Info("starting server", zap.String("addr", s.httpSrv.Addr))
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("failed to start server", zap.Error(err))
		}
	}()
}

// Shutdown disconnects socket clients, then stops accepting requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	s.gateway.Close()
	return s.httpSrv.Shutdown(ctx)
}
