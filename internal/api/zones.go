package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sentryline/internal/syncstate"
	"sentryline/internal/zones"
	"sentryline/pkg/models"
)

const syncStatusLimit = 500

func (s *Server) createZone(c *gin.Context) {
	var in zones.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid zone payload: %v", err)
		return
	}
	z, err := s.cfg.Zones.Create(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, z)
}

func (s *Server) listZones(c *gin.Context) {
	activeOnly, ok := parseBool(c, "active")
	if !ok {
		return
	}
	list, err := s.cfg.Zones.List(c.Request.Context(), activeOnly != nil && *activeOnly)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []models.Zone{}
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (s *Server) getZone(c *gin.Context) {
	z, err := s.cfg.Zones.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, z)
}

func (s *Server) updateZone(c *gin.Context) {
	var p zones.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, "invalid zone payload: %v", err)
		return
	}
	z, err := s.cfg.Zones.Update(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, z)
}

func (s *Server) deleteZone(c *gin.Context) {
	z, err := s.cfg.Zones.Deactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, z)
}

func (s *Server) resyncZones(c *gin.Context) {
	res, err := s.cfg.Resyncer.Resync(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) syncStatus(c *gin.Context) {
	if s.cfg.Ledger == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false, "data": []syncstate.ZoneState{}})
		return
	}
	limit := int64(syncStatusLimit)
	if ls := c.Query("limit"); ls != "" {
		v, err := strconv.ParseInt(ls, 10, 64)
		if err != nil || v <= 0 {
			badRequest(c, "invalid limit parameter")
			return
		}
		limit = v
	}
	failing, ok := parseBool(c, "failing")
	if !ok {
		return
	}

	fetch := s.cfg.Ledger.All
	if failing != nil && *failing {
		fetch = s.cfg.Ledger.Failing
	}
	states, err := fetch(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if states == nil {
		states = []syncstate.ZoneState{}
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true, "data": states})
}
