package tacs

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the TACS bootstrap HTTP surface: it upgrades the two
// channel-multiplexed interfaces (Ia northbound, Xa southbound) to
// WebSocket and serves /health and /metrics on a gin.Engine.
type Server struct {
	Broker *Broker
	engine *gin.Engine
	http   *http.Server
}

// NewServer builds a gin.Engine with the TACS routes wired to broker.
func NewServer(broker *Broker) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	reg := prometheus.NewRegistry()
	broker.Metrics().Register(reg)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	s := &Server{Broker: broker, engine: engine}
	engine.GET("/health", s.health)
	engine.GET("/ia", s.acceptNorthbound)
	engine.GET("/xa", s.acceptSouthbound)
	return s
}

func (s *Server) health(c *gin.Context) {
	s.Broker.Metrics().Refresh(s.Broker.Registry)
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"agents": len(s.Broker.Registry.Agents()),
		"probes": len(s.Broker.Registry.Probes()),
	})
}

func (s *Server) acceptNorthbound(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("tacs: ia accept failed", "error", err)
		return
	}
	ch := NewChannel(c.Request.Context(), conn)
	s.Broker.Registry.RegisterClient(ch)
	ch.Run(s.Broker.OnNorthbound, func(c *Channel) { s.Broker.DisconnectClient(c) })
}

func (s *Server) acceptSouthbound(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("tacs: xa accept failed", "error", err)
		return
	}
	ch := NewChannel(c.Request.Context(), conn)
	var agentURI string
	ch.Run(
		func(c *Channel, f Frame) { s.Broker.OnSouthbound(&agentURI, c, f) },
		func(c *Channel) { s.Broker.DisconnectAgent(agentURI) },
	)
}

// Start runs the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.engine}
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
