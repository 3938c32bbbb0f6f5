package agent

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the agent over HTTP for nodes reached without SSH.
type Server struct {
	nodeName string
	agent    *Agent
	gatherer prometheus.Gatherer
}

// NewServer creates a new agent API server. Metrics are served from gatherer.
func NewServer(nodeName string, agent *Agent, gatherer prometheus.Gatherer) *Server {
	return &Server{
		nodeName: nodeName,
		agent:    agent,
		gatherer: gatherer,
	}
}

// RegisterRoutes registers all agent endpoints
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", s.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := e.Group("/api/v1")
	v1.POST("/apply", s.Apply)
	v1.POST("/remove", s.Remove)
	v1.GET("/info", s.Info)
}

// Health handles GET /health
func (s *Server) Health(c echo.Context) error {
	return c.JSON(
		http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "podfleet-agent",
			"node":    s.nodeName,
		},
	)
}
