package wsapi

import (
	"context"
	"fmt"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/testerman-project/testerman-core/internal/events"
	"github.com/testerman-project/testerman-core/internal/scheduler"
	"github.com/testerman-project/testerman-core/pkg/version"
)

// Server is the Ws façade HTTP API: echo v5 route groups under
// /api/v1, a /health endpoint, and a WebSocket endpoint for the Xc bus.
type Server struct {
	echo      *echo.Echo
	http      *http.Server
	scheduler *scheduler.Scheduler
	builder   *scheduler.Builder
	bus       *events.Bus
	manager   *events.Manager
}

// NewServer builds an echo.Echo with every Ws route wired to sched and
// builder, and the Xc WebSocket endpoint wired to bus.
func NewServer(sched *scheduler.Scheduler, builder *scheduler.Builder, bus *events.Bus) *Server {
	e := echo.New()
	e.Use(middleware.BodyLimit(2 * 1024 * 1024))

	s := &Server{echo: e, scheduler: sched, builder: builder, bus: bus, manager: events.NewManager(bus)}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.health)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/jobs", s.submitJob)
	v1.GET("/jobs/:id", s.getJobInfo)
	v1.GET("/jobs/:id/details", s.getJobDetails)
	v1.GET("/jobs/:id/log", s.getJobLog)
	v1.POST("/jobs/:id/signal", s.sendSignal)
	v1.POST("/jobs/:id/reschedule", s.reschedule)
	v1.POST("/jobs/purge", s.purge)
	v1.GET("/variables", s.getVariables)
	v1.GET("/ws", s.wsHandler)
}

func (s *Server) health(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status: "healthy",
		Jobs:   len(s.scheduler.Registry.All()),
	})
}

// Start runs the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.echo}
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Version reports the build version string returned in the
// getVariables payload.
func Version() string { return version.Full() }

// parseID parses the :id path parameter into a job id.
func parseID(c *echo.Context) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(c.Param("id"), "%d", &id)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid job id")
	}
	return id, nil
}
