package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sentryline/internal/store"
	"sentryline/pkg/models"
)

type readRequest struct {
	ReadBy string `json:"read_by"`
}

type dismissRequest struct {
	DismissedBy string `json:"dismissed_by"`
	ActionTaken string `json:"action_taken"`
}

func (s *Server) listAlerts(c *gin.Context) {
	p, ok := parsePage(c)
	if !ok {
		return
	}
	f := store.AlertFilter{Page: store.Page{Limit: p.Limit, Offset: p.Offset}}

	if f.Read, ok = parseBool(c, "read"); !ok {
		return
	}
	if f.Dismissed, ok = parseBool(c, "dismissed"); !ok {
		return
	}
	if raw := strings.ToUpper(strings.TrimSpace(c.Query("priority"))); raw != "" {
		f.Priority = models.RiskLevel(raw)
		if !f.Priority.Valid() {
			badRequest(c, "unknown priority %q", raw)
			return
		}
	}
	if c.Query("hours") != "" || c.Query("days") != "" {
		window, ok := parseWindow(c, 0)
		if !ok {
			return
		}
		f.Since = time.Now().UTC().Add(-window)
	}

	alerts, total, err := s.cfg.Queries.ListAlerts(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	c.JSON(http.StatusOK, paginated(alerts, total, p))
}

func (s *Server) getAlert(c *gin.Context) {
	alert, err := s.cfg.Queries.GetAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (s *Server) markAlertRead(c *gin.Context) {
	var req readRequest
	if !bindOptional(c, &req) {
		return
	}
	alert, err := s.cfg.Responder.MarkAlertRead(c.Request.Context(), c.Param("id"), req.ReadBy)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (s *Server) dismissAlert(c *gin.Context) {
	var req dismissRequest
	if !bindOptional(c, &req) {
		return
	}
	alert, err := s.cfg.Responder.DismissAlert(c.Request.Context(), c.Param("id"), req.DismissedBy, req.ActionTaken)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (s *Server) markAllRead(c *gin.Context) {
	var req readRequest
	if !bindOptional(c, &req) {
		return
	}
	n, err := s.cfg.Responder.MarkAllRead(c.Request.Context(), req.ReadBy)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}
