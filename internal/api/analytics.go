package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"sentryline/internal/analytics"
)

const (
	defaultWindow      = 24 * time.Hour
	defaultTrendWindow = 7 * 24 * time.Hour
)

func (s *Server) summary(c *gin.Context) {
	window, ok := parseWindow(c, defaultWindow)
	if !ok {
		return
	}
	out, err := s.cfg.Analytics.Summary(c.Request.Context(), window)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) timeline(c *gin.Context) {
	window, ok := parseWindow(c, defaultWindow)
	if !ok {
		return
	}
	out, err := s.cfg.Analytics.Timeline(c.Request.Context(), window)
	if err != nil {
		writeError(c, err)
		return
	}
	if out == nil {
		out = []analytics.TimelineBucket{}
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (s *Server) heatmap(c *gin.Context) {
	window, ok := parseWindow(c, defaultWindow)
	if !ok {
		return
	}
	cell := s.cfg.DefaultCellSize
	if cs := c.Query("cell_size"); cs != "" {
		v, err := strconv.ParseFloat(cs, 64)
		if err != nil || v <= 0 {
			badRequest(c, "invalid cell_size parameter")
			return
		}
		cell = v
	}
	out, err := s.cfg.Analytics.Heatmap(c.Request.Context(), window, cell)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) trends(c *gin.Context) {
	window, ok := parseWindow(c, defaultTrendWindow)
	if !ok {
		return
	}
	out, err := s.cfg.Analytics.Trends(c.Request.Context(), window)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) zoneStats(c *gin.Context) {
	window, ok := parseWindow(c, defaultWindow)
	if !ok {
		return
	}
	out, err := s.cfg.Analytics.Zones(c.Request.Context(), window)
	if err != nil {
		writeError(c, err)
		return
	}
	if out == nil {
		out = []analytics.ZoneStats{}
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (s *Server) alertStats(c *gin.Context) {
	window, ok := parseWindow(c, defaultWindow)
	if !ok {
		return
	}
	out, err := s.cfg.Analytics.Alerts(c.Request.Context(), window)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
