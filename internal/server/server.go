// Package server implements the HTTP control-plane API
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"

	"github.com/kode4food/stagehand/internal/config"
	"github.com/kode4food/stagehand/internal/packs"
	"github.com/kode4food/stagehand/internal/resolve"
	"github.com/kode4food/stagehand/internal/runner"
	"github.com/kode4food/stagehand/internal/store"
	"github.com/kode4food/stagehand/pkg/api"
)

// Server implements the HTTP API server for the control plane
type Server struct {
	cfg      *config.Config
	packs    *packs.Index
	sessions *store.SessionTable
	runner   *runner.Proxy
	sockets  map[*Client]struct{}
	mu       sync.Mutex
}

var (
	ErrInvalidJSON    = errors.New("invalid JSON payload")
	ErrUserRequired   = errors.New("user is required")
	ErrTenantRequired = errors.New("tenant could not be determined")
	ErrFlowRequired   = errors.New("flow is required")
)

// NewServer creates a new HTTP API server
func NewServer(
	cfg *config.Config, idx *packs.Index, sessions *store.SessionTable,
	proxy *runner.Proxy,
) *Server {
	return &Server{
		cfg:      cfg,
		packs:    idx,
		sessions: sessions,
		runner:   proxy,
		sockets:  map[*Client]struct{}{},
	}
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(c *gin.Context, l *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods",
			"GET, POST, PUT, DELETE, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers",
			"Content-Type, Authorization",
		)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/healthz", s.handleHealth)

	// Pack endpoints
	router.GET("/packs", s.listPacks)
	router.POST("/packs/reload", s.reloadPacks)

	// Session endpoints
	router.GET("/sessions", s.listSessions)
	router.POST("/sessions", s.createSession)
	router.DELETE("/sessions", s.purgeSessions)
	router.POST("/sessions/resume", s.resumeSession)

	// Runner endpoints
	router.POST("/runner/emit", s.emitEvent)
	router.GET("/runner/events", s.listEvents)
	router.DELETE("/runner/events", s.clearEvents)
	router.GET("/runner/events/ws", s.handleWebSocket)

	return router
}

// writeError maps a failure to the wire error taxonomy. Sentinel errors
// from the stores and the resolver carry their own status; anything
// unrecognized is an internal failure
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidJSON),
		errors.Is(err, ErrUserRequired),
		errors.Is(err, ErrTenantRequired),
		errors.Is(err, ErrFlowRequired),
		errors.Is(err, resolve.ErrUserWithoutTenant):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			ErrorKind: api.ErrorKindValidation,
			Message:   err.Error(),
		})

	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, packs.ErrPackNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			ErrorKind: api.ErrorKindNotFound,
			Message:   err.Error(),
		})

	case errors.Is(err, store.ErrSessionExists),
		errors.Is(err, store.ErrDuplicateTraceID):
		c.JSON(http.StatusConflict, api.ErrorResponse{
			ErrorKind: api.ErrorKindConflict,
			Message:   err.Error(),
		})

	case errors.Is(err, config.ErrUnsupportedBackend):
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			ErrorKind: api.ErrorKindUnsupportedBackend,
			Message:   err.Error(),
		})

	default:
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			ErrorKind: api.ErrorKindInternal,
			Message:   err.Error(),
		})
	}
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
