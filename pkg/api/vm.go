package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuemby/netpanel/pkg/inventory"
)

func (s *Server) allNetworkData(c *gin.Context) {
	machines, err := s.deps.Inventory.Machines(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, machines)
}

func (s *Server) allStates(c *gin.Context) {
	states, err := s.deps.Inventory.States(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, states)
}

func (s *Server) networkData(c *gin.Context) {
	m, err := inventory.Machine(c.Request.Context(), s.deps.Inventory, c.Param("uuid"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) state(c *gin.Context) {
	st, err := inventory.State(c.Request.Context(), s.deps.Inventory, c.Param("uuid"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
