// Package api exposes the cognition pipeline over HTTP: event ingestion,
// state and CCI reads, the approval workflow, the live transcript stream
// (SSE and WebSocket), and agent control endpoints.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/pce-project/pce/pkg/approval"
	"github.com/pce-project/pce/pkg/assistant"
	"github.com/pce-project/pce/pkg/config"
	"github.com/pce-project/pce/pkg/database"
	"github.com/pce-project/pce/pkg/engine"
	"github.com/pce-project/pce/pkg/events"
	"github.com/pce-project/pce/pkg/queue"
	"github.com/pce-project/pce/pkg/rover"
	"github.com/pce-project/pce/pkg/store"
)

// Server wires the HTTP layer to the engine and its collaborators.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	cfg         *config.Config
	dbClient    *database.Client
	engine      *engine.Engine
	store       *store.Manager
	gate        *approval.Gate
	workerPool  *queue.WorkerPool
	connManager *events.ConnectionManager
	hub         *events.Hub

	// Optional agent runtimes, wired via setters. Their endpoints return
	// 503 when the runtime is not configured.
	rover     *rover.Runtime
	assistant *assistant.Assistant
}

// NewServer creates the API server and registers all routes.
func NewServer(
	cfg *config.Config,
	dbClient *database.Client,
	eng *engine.Engine,
	st *store.Manager,
	gate *approval.Gate,
	workerPool *queue.WorkerPool,
	connManager *events.ConnectionManager,
	hub *events.Hub,
) *Server {
	s := &Server{
		echo:        echo.New(),
		cfg:         cfg,
		dbClient:    dbClient,
		engine:      eng,
		store:       st,
		gate:        gate,
		workerPool:  workerPool,
		connManager: connManager,
		hub:         hub,
	}

	s.echo.Use(middleware.Recover())
	s.echo.Use(requestLogger())
	s.echo.Use(securityHeaders())
	s.registerRoutes()

	s.httpServer = &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// SetRover wires the grid-world simulation runtime.
func (s *Server) SetRover(r *rover.Runtime) {
	s.rover = r
}

// SetAssistant wires the assistant agent.
func (s *Server) SetAssistant(a *assistant.Assistant) {
	s.assistant = a
}

func (s *Server) registerRoutes() {
	e := s.echo

	// Pipeline and state reads.
	e.POST("/events", s.postEventHandler)
	e.POST("/v1/events", s.postEventHandler)
	e.GET("/state", s.getStateHandler)
	e.GET("/cci", s.getCCIHandler)
	e.GET("/cci/history", s.getCCIHistoryHandler)

	// Approval workflow. Legacy unversioned paths are kept as aliases.
	e.GET("/os/approvals", s.listApprovalsHandler)
	e.GET("/v1/os/approvals", s.listApprovalsHandler)
	e.POST("/os/approvals/:id/approve", s.approveApprovalHandler)
	e.POST("/v1/os/approvals/:id/approve", s.approveApprovalHandler)
	e.POST("/os/approvals/:id/reject", s.rejectApprovalHandler)
	e.POST("/v1/os/approvals/:id/reject", s.rejectApprovalHandler)
	e.POST("/v1/os/approvals/:id/override", s.overrideApprovalHandler)

	// Control-room views.
	e.GET("/os/robotics/state", s.getRoboticsStateHandler)
	e.GET("/v1/os/state", s.getOSStateHandler)
	e.GET("/v1/os/agents/transcript", s.getTranscriptHandler)

	// Live feeds.
	e.GET("/v1/stream/os", s.streamOSHandler)
	e.GET("/ws", s.wsHandler)

	// Agent control.
	e.POST("/agents/assistant/control/clear_memory", s.clearAssistantMemoryHandler)
	e.POST("/agents/rover/control/start", s.startRoverHandler)
	e.POST("/agents/rover/control/stop", s.stopRoverHandler)
	e.POST("/agents/rover/control/reset", s.resetRoverHandler)
	e.POST("/agents/rover/control/reset_stats", s.resetRoverStatsHandler)
	e.POST("/agents/rover/control/clear_policy", s.clearRoverPolicyHandler)
	e.GET("/agents/rover/state", s.getRoverStateHandler)

	e.GET("/health", s.healthHandler)
}

// Start begins serving on addr. Blocks until the server stops; returns
// http.ErrServerClosed after a clean Shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer.Addr = addr
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves on an already-bound listener. Tests use it to
// serve on an ephemeral port they picked themselves.
func (s *Server) StartWithListener(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	slog.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
