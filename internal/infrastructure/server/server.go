package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nymtech/nym-sub006/internal/infrastructure/monitoring"
	"github.com/nymtech/nym-sub006/internal/infrastructure/tracing"
)

const defaultShutdownTimeout = 10 * time.Second

// Config holds HTTP server configuration
type Config struct {
	Addr            string
	AllowOrigins    []string
	Development     bool
	ShutdownTimeout time.Duration
	RateLimit       RateLimitConfig
}

// Server wraps the gin router and the listening HTTP server
type Server struct {
	router *gin.Engine
	http   *http.Server
	logger *zap.Logger
	config Config
}

// New creates a router with recovery, tracing, metrics and CORS middleware
// installed. Routes are registered through Router.
func New(cfg Config, logger *zap.Logger, metrics *monitoring.Metrics, tracer *tracing.Tracer) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))

	cors := DefaultCORSConfig()
	if len(cfg.AllowOrigins) > 0 {
		cors.AllowOrigins = cfg.AllowOrigins
	}
	router.Use(CORS(cors))

	if cfg.RateLimit.RequestsPerSecond > 0 {
		logger.Info("Rate limiting enabled",
			zap.Float64("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(RateLimit(cfg.RateLimit))
	}

	return &Server{
		router: router,
		logger: logger,
		config: cfg,
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Router returns the gin engine for route registration
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Handler returns the server as an http.Handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address and serves until ctx ends
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends, then shuts down
// gracefully
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))

	errc := make(chan error, 1)
	go func() {
		errc <- s.http.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RegisterOnShutdown runs fn when shutdown begins. Hijacked websocket
// connections are not tracked by the HTTP server and must close here.
func (s *Server) RegisterOnShutdown(fn func()) {
	s.http.RegisterOnShutdown(fn)
}
