package server

import (
	"log/slog"
	"net/http"
	"sync"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"

	"github.com/kode4food/beckn/internal/housekeeping"
	"github.com/kode4food/beckn/internal/metrics"
	"github.com/kode4food/beckn/internal/orchestrator"
	"github.com/kode4food/beckn/internal/planner"
	"github.com/kode4food/beckn/internal/responder"
	"github.com/kode4food/beckn/internal/store"
)

type (
	// Server implements the HTTP API for both protocol roles
	Server struct {
		store        store.Store
		responder    *responder.Responder
		orchestrator *orchestrator.Orchestrator
		planner      planner.Planner
		metrics      *metrics.Metrics
		archive      *housekeeping.Archive
		limiter      *RateLimiter
		version      string
		sockets      map[*Client]struct{}
		mu           sync.Mutex
	}

	// Option configures a Server
	Option func(*Server)
)

const (
	serviceName = "beckn"

	bapGroup = "/beckn"
	bppGroup = "/mock-bpp"
)

// WithPlanner replaces the rule-based mitigation planner
func WithPlanner(p planner.Planner) Option {
	return func(s *Server) {
		s.planner = planner.WithFallback(p)
	}
}

// WithMetrics counts callbacks and serves /metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithArchive lets transaction lookups fall back to archived records
func WithArchive(a *housekeeping.Archive) Option {
	return func(s *Server) {
		s.archive = a
	}
}

// WithRateLimiter limits responder intake per initiator
func WithRateLimiter(l *RateLimiter) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

// WithVersion sets the version reported by /health
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewServer creates a new HTTP API server
func NewServer(
	st store.Store, resp *responder.Responder,
	orch *orchestrator.Orchestrator, opts ...Option,
) *Server {
	s := &Server{
		store:        st,
		responder:    resp,
		orchestrator: orch,
		planner:      planner.WithFallback(planner.Rules{}),
		sockets:      map[*Client]struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(_ *gin.Context, _ *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))
	router.Use(cors)

	router.GET("/health", s.handleHealth)
	router.GET("/ws", s.handleWebSocket)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	bap := router.Group(bapGroup)
	{
		bap.POST("/on_search", s.handleOnSearch)
		bap.POST("/on_select", s.handleOnSelect)
		bap.POST("/on_confirm", s.handleOnConfirm)

		bap.POST("/flow", s.handleFlow)
		bap.POST("/execute", s.handleExecute)
		bap.GET("/transactions", s.listTransactions)
		bap.GET("/transactions/:id", s.getTransaction)
	}

	bpp := router.Group(bppGroup)
	if s.limiter != nil {
		bpp.Use(s.limiter.Middleware())
	}
	{
		bpp.POST("/search", s.handleSearch)
		bpp.POST("/select", s.handleSelect)
		bpp.POST("/confirm", s.handleConfirm)
		bpp.DELETE("/jobs/:id", s.cancelJobs)
	}

	router.POST("/agent/mitigate", s.handleMitigate)

	return router
}

func cors(c *gin.Context) {
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
	c.Writer.Header().Set(
		"Access-Control-Allow-Methods",
		"GET, POST, DELETE, OPTIONS",
	)
	c.Writer.Header().Set(
		"Access-Control-Allow-Headers",
		"Content-Type, Authorization",
	)

	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusOK)
		return
	}

	c.Next()
}

func (s *Server) registerWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets[c] = struct{}{}
}

func (s *Server) unregisterWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sockets, c)
}

// CloseWebSockets closes all active WebSocket connections
func (s *Server) CloseWebSockets() {
	s.mu.Lock()
	conns := make([]*Client, 0, len(s.sockets))
	for c := range s.sockets {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
