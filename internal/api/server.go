// Package api exposes ingestion, zones, acknowledgements, analytics and the
// notification stream over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sentryline/internal/ack"
	"sentryline/internal/analytics"
	"sentryline/internal/hub"
	"sentryline/internal/ingest"
	"sentryline/internal/mirror"
	"sentryline/internal/store"
	"sentryline/internal/syncstate"
	"sentryline/internal/zones"
	"sentryline/pkg/models"
)

// Ingestor accepts event submissions.
type Ingestor interface {
	Submit(ctx context.Context, sub ingest.Submission) (*ingest.Result, error)
}

// Queries reads persisted events and alerts.
type Queries interface {
	ListEvents(ctx context.Context, f store.EventFilter) ([]models.Event, int64, error)
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListAlerts(ctx context.Context, f store.AlertFilter) ([]models.Alert, int64, error)
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	Ping(ctx context.Context) error
}

// Responder applies acknowledgements, reads and dismissals.
type Responder interface {
	AcknowledgeEvent(ctx context.Context, id, by, notes string) (*ack.Acknowledgement, error)
	DeleteEvent(ctx context.Context, id string) (*ack.Acknowledgement, error)
	MarkAlertRead(ctx context.Context, id, by string) (*models.Alert, error)
	DismissAlert(ctx context.Context, id, by, actionTaken string) (*models.Alert, error)
	MarkAllRead(ctx context.Context, by string) (int64, error)
}

// ZoneRegistry owns zone CRUD.
type ZoneRegistry interface {
	Create(ctx context.Context, in zones.CreateInput) (*models.Zone, error)
	Get(ctx context.Context, id string) (*models.Zone, error)
	List(ctx context.Context, activeOnly bool) ([]models.Zone, error)
	Update(ctx context.Context, id string, p zones.Patch) (*models.Zone, error)
	Deactivate(ctx context.Context, id string) (*models.Zone, error)
}

// Resyncer re-pushes every active zone to the mirror.
type Resyncer interface {
	Resync(ctx context.Context) (*mirror.ResyncResult, error)
}

// SyncLedger reports the last mirror push outcome per zone.
type SyncLedger interface {
	All(ctx context.Context, limit int64) ([]syncstate.ZoneState, error)
	Failing(ctx context.Context, limit int64) ([]syncstate.ZoneState, error)
}

// Analytics answers windowed aggregate queries.
type Analytics interface {
	Summary(ctx context.Context, window time.Duration) (*analytics.Summary, error)
	Timeline(ctx context.Context, window time.Duration) ([]analytics.TimelineBucket, error)
	Heatmap(ctx context.Context, window time.Duration, cellSize float64) (*analytics.Heatmap, error)
	Trends(ctx context.Context, window time.Duration) (*analytics.Trends, error)
	Zones(ctx context.Context, window time.Duration) ([]analytics.ZoneStats, error)
	Alerts(ctx context.Context, window time.Duration) (*analytics.AlertStats, error)
}

// Config wires a Server. Ledger, Hub and Metrics are optional.
type Config struct {
	Mode            string
	Ingestor        Ingestor
	Queries         Queries
	Responder       Responder
	Zones           ZoneRegistry
	Resyncer        Resyncer
	Ledger          SyncLedger
	Analytics       Analytics
	Hub             *hub.Hub
	Metrics         http.Handler
	MetricsPath     string
	DefaultCellSize float64
}

// Server is the HTTP surface.
type Server struct {
	cfg    Config
	engine *gin.Engine
}

// NewServer builds the router.
func NewServer(cfg Config) *Server {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.DefaultCellSize <= 0 {
		cfg.DefaultCellSize = analytics.DefaultCellSize
	}

	s := &Server{cfg: cfg, engine: gin.New()}
	s.engine.Use(gin.Recovery(), requestLogger())
	s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/api/health", s.health)
	if s.cfg.Metrics != nil {
		r.GET(s.cfg.MetricsPath, gin.WrapH(s.cfg.Metrics))
	}
	if s.cfg.Hub != nil {
		r.GET("/ws", s.serveWS)
	}

	api := r.Group("/api")

	api.POST("/events", s.createEvent)
	api.GET("/events", s.listEvents)
	api.GET("/events/:id", s.getEvent)
	api.PUT("/events/:id/acknowledge", s.acknowledgeEvent)
	api.DELETE("/events/:id", s.deleteEvent)

	api.GET("/alerts", s.listAlerts)
	api.PUT("/alerts/read-all", s.markAllRead)
	api.GET("/alerts/:id", s.getAlert)
	api.PUT("/alerts/:id/read", s.markAlertRead)
	api.PUT("/alerts/:id/dismiss", s.dismissAlert)

	api.POST("/zones", s.createZone)
	api.GET("/zones", s.listZones)
	api.POST("/zones/resync", s.resyncZones)
	api.GET("/zones/sync-status", s.syncStatus)
	api.GET("/zones/:id", s.getZone)
	api.PUT("/zones/:id", s.updateZone)
	api.DELETE("/zones/:id", s.deleteZone)

	an := api.Group("/analytics")
	an.GET("/summary", s.summary)
	an.GET("/timeline", s.timeline)
	an.GET("/heatmap", s.heatmap)
	an.GET("/trends", s.trends)
	an.GET("/zones", s.zoneStats)
	an.GET("/alerts", s.alertStats)
}

func (s *Server) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.cfg.Queries.Ping(c.Request.Context()); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = err.Error()
	}
	if s.cfg.Hub != nil {
		body["subscribers"] = s.cfg.Hub.Count()
	}
	c.JSON(status, body)
}
