package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sentryline/internal/ingest"
	"sentryline/internal/store"
	"sentryline/pkg/models"
)

type acknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledged_by"`
	Notes          string `json:"notes"`
}

func (s *Server) createEvent(c *gin.Context) {
	var sub ingest.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		badRequest(c, "invalid event payload: %v", err)
		return
	}
	res, err := s.cfg.Ingestor.Submit(c.Request.Context(), sub)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) listEvents(c *gin.Context) {
	p, ok := parsePage(c)
	if !ok {
		return
	}
	f := store.EventFilter{Page: store.Page{Limit: p.Limit, Offset: p.Offset}}

	if raw := strings.ToUpper(strings.TrimSpace(c.Query("type"))); raw != "" {
		f.EventType = models.EventType(raw)
		if !f.EventType.Valid() {
			badRequest(c, "unknown event type %q", raw)
			return
		}
	}
	if raw := strings.ToUpper(strings.TrimSpace(c.Query("risk_level"))); raw != "" {
		f.RiskLevel = models.RiskLevel(raw)
		if !f.RiskLevel.Valid() {
			badRequest(c, "unknown risk level %q", raw)
			return
		}
	}
	if f.Acknowledged, ok = parseBool(c, "acknowledged"); !ok {
		return
	}
	if c.Query("hours") != "" || c.Query("days") != "" {
		window, ok := parseWindow(c, 0)
		if !ok {
			return
		}
		f.Since = time.Now().UTC().Add(-window)
	}

	events, total, err := s.cfg.Queries.ListEvents(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	c.JSON(http.StatusOK, paginated(events, total, p))
}

func (s *Server) getEvent(c *gin.Context) {
	event, err := s.cfg.Queries.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (s *Server) acknowledgeEvent(c *gin.Context) {
	var req acknowledgeRequest
	if !bindOptional(c, &req) {
		return
	}
	out, err := s.cfg.Responder.AcknowledgeEvent(c.Request.Context(), c.Param("id"), req.AcknowledgedBy, req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) deleteEvent(c *gin.Context) {
	out, err := s.cfg.Responder.DeleteEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
