package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuemby/netpanel/pkg/collection"
	"github.com/cuemby/netpanel/pkg/snapshot"
	"github.com/cuemby/netpanel/pkg/types"
)

// getConfiguration handles GET /network/configuration
func (s *Server) getConfiguration(c *gin.Context) {
	state, err := s.deps.Network.Current(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// putIntnets handles PUT /network/configuration/intnets. A report is only
// returned when some machines could not be configured.
func (s *Server) putIntnets(c *gin.Context) {
	var cfg types.IntnetConfiguration
	if err := c.ShouldBindJSON(&cfg); err != nil {
		s.abortWithError(c, badRequest("invalid intnet configuration: "+err.Error()))
		return
	}

	report, err := s.deps.Network.ApplyIntnets(c.Request.Context(), cfg)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if !report.OK() {
		c.JSON(http.StatusMultiStatus, report)
		return
	}
	c.Status(http.StatusNoContent)
}

// putPanelState handles PUT /network/configuration/panelstate
func (s *Server) putPanelState(c *gin.Context) {
	var layout types.PanelLayout
	if err := c.ShouldBindJSON(&layout); err != nil {
		s.abortWithError(c, badRequest("invalid panel state: "+err.Error()))
		return
	}

	if err := s.deps.Network.SaveLayout(c.Request.Context(), layout); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// createSnapshot handles POST /network/snapshot
func (s *Server) createSnapshot(c *gin.Context) {
	var req snapshot.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortWithError(c, badRequest("invalid snapshot: "+err.Error()))
		return
	}

	snap, err := s.deps.Snapshots.Create(c.Request.Context(), req)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

// listSnapshots handles GET /network/snapshot/all
func (s *Server) listSnapshots(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Snapshots.List())
}

// getSnapshot handles GET /network/snapshot/:id
func (s *Server) getSnapshot(c *gin.Context) {
	snap, err := s.deps.Snapshots.Get(c.Param("id"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// renameParams are the path parameters of the rename route
type renameParams struct {
	ID   string `uri:"id" binding:"required"`
	Name string `uri:"name" binding:"required,recordname"`
}

// renameSnapshot handles POST /network/snapshot/:id/rename/:name
func (s *Server) renameSnapshot(c *gin.Context) {
	var params renameParams
	if err := c.ShouldBindUri(&params); err != nil {
		if nameErr := collection.ValidateName("snapshot", c.Param("name")); nameErr != nil {
			s.abortWithError(c, nameErr)
			return
		}
		s.abortWithError(c, badRequest(err.Error()))
		return
	}

	snap, err := s.deps.Snapshots.Rename(c.Request.Context(), params.ID, params.Name)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// deleteSnapshot handles DELETE /network/snapshot/:id and returns the
// removed record
func (s *Server) deleteSnapshot(c *gin.Context) {
	snap, err := s.deps.Snapshots.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// listPresets handles GET /network/preset/all
func (s *Server) listPresets(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Presets.List())
}

// getPreset handles GET /network/preset/:id
func (s *Server) getPreset(c *gin.Context) {
	p, err := s.deps.Presets.Get(c.Param("id"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
