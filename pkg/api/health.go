package api

import (
	"github.com/gin-gonic/gin"

	"github.com/cuemby/netpanel/pkg/metrics"
)

// registerHealth mounts the unauthenticated probe and metrics endpoints
func (s *Server) registerHealth(r *gin.Engine) {
	r.GET("/health", s.health)
	r.GET("/ready", s.ready)
	r.GET("/live", gin.WrapF(metrics.LivenessHandler()))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
}

// health reports every registered component after refreshing storage
func (s *Server) health(c *gin.Context) {
	s.checkStorage()
	metrics.HealthHandler()(c.Writer, c.Request)
}

// ready passes once the listener is up and the document store answers
func (s *Server) ready(c *gin.Context) {
	s.checkStorage()
	metrics.ReadyHandler()(c.Writer, c.Request)
}

func (s *Server) checkStorage() {
	if err := s.deps.Store.Ping(); err != nil {
		metrics.UpdateComponent("storage", false, err.Error())
		return
	}
	metrics.UpdateComponent("storage", true, "")
}

func (s *Server) markReady(ok bool, msg string) {
	metrics.UpdateComponent("api", ok, msg)
}
