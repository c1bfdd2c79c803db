package host

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nymtech/nym-sub006/internal/infrastructure/server"
	"github.com/nymtech/nym-sub006/internal/rpc"
)

// HTTPConfig configures the host HTTP surface
type HTTPConfig struct {
	Server server.Config
	// Gatherer backs /metrics; nil means the default registry
	Gatherer prometheus.Gatherer
}

// HTTPServer exposes a host over HTTP:
//
//	GET /rpc        websocket RPC endpoint
//	GET /blobs/:id  blob dereference (serving releases the blob)
//	GET /healthz    lifecycle state
//	GET /metrics    prometheus metrics
type HTTPServer struct {
	*server.Server

	host     *Host
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHTTPServer creates the HTTP surface for h
func NewHTTPServer(h *Host, cfg HTTPConfig) *HTTPServer {
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &HTTPServer{
		Server: server.New(cfg.Server, h.logger, h.metrics, h.tracer),
		host:   h,
		upgrader: websocket.Upgrader{
			// Origin policy is enforced by the CORS middleware
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}

	router := s.Router()
	router.GET("/rpc", s.handleRPC)
	router.GET("/blobs/:id", h.blobs.Handler())
	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	s.RegisterOnShutdown(s.closeConns)
	return s
}

func (s *HTTPServer) handleRPC(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.host.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s.track(conn, true)
	defer s.track(conn, false)
	s.host.metrics.IncWSConnections()
	defer s.host.metrics.DecWSConnections()

	remote := c.Request.RemoteAddr
	s.host.logger.Info("rpc client connected", zap.String("remote", remote))

	t := rpc.NewWebSocketTransport(conn, s.host.logger)
	defer t.Close()

	if err := s.host.Serve(c.Request.Context(), t); err != nil {
		s.host.logger.Warn("rpc connection ended", zap.String("remote", remote), zap.Error(err))
		return
	}
	s.host.logger.Info("rpc client disconnected", zap.String("remote", remote))
}

func (s *HTTPServer) handleHealth(c *gin.Context) {
	state := s.host.State()
	status := http.StatusOK
	if state == StateFailed || state == StateDisconnected {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"sandbox_id":    s.host.ID().String(),
		"state":         state.String(),
		"origin":        s.host.Origin(),
		"blobs_pending": s.host.Blobs().Len(),
		"faults":        s.host.Diagnostics().Len(),
		"metrics":       s.host.metrics.Snapshot(),
	})
}

func (s *HTTPServer) track(conn *websocket.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// closeConns drops hijacked websocket connections so their Serve loops end
func (s *HTTPServer) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}
