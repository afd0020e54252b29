// Package ingest validates detector submissions, stores each as an Event,
// derives its Alert and announces both on the hub.
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"sentryline/internal/analytics"
	"sentryline/internal/apperr"
	"sentryline/internal/hub"
	"sentryline/internal/logger"
	"sentryline/internal/rules"
	"sentryline/pkg/models"
)

// Store is the persistence the service writes through.
type Store interface {
	CreateEvent(ctx context.Context, e *models.Event) error
	CreateAlert(ctx context.Context, a *models.Alert) error
}

// StatsProvider computes the summary carried by stats-refresh.
type StatsProvider interface {
	Summary(ctx context.Context, window time.Duration) (*analytics.Summary, error)
}

// Observer receives ingestion counters.
type Observer interface {
	EventIngested(eventType string)
	IngestFailed(kind string)
}

// Config tunes the service.
type Config struct {
	Rules       rules.Engine
	StatsWindow time.Duration
	Observer    Observer
}

// Service runs the ingestion contract.
type Service struct {
	store     Store
	publisher hub.Publisher
	stats     StatsProvider
	rules     rules.Engine
	window    time.Duration
	observer  Observer
	now       func() time.Time
	newID     func() string
}

// NewService wires a Service. A nil stats provider disables stats-refresh.
func NewService(store Store, publisher hub.Publisher, stats StatsProvider, cfg Config) *Service {
	if cfg.Rules == nil {
		cfg.Rules = &rules.NoopEngine{}
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = 24 * time.Hour
	}
	return &Service{
		store:     store,
		publisher: publisher,
		stats:     stats,
		rules:     cfg.Rules,
		window:    cfg.StatsWindow,
		observer:  cfg.Observer,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// NewAlert is the payload of a new-alert notification.
type NewAlert struct {
	Event *models.Event `json:"event"`
	Alert *models.Alert `json:"alert"`
}

// Submit validates and persists one submission. Validation failures persist
// nothing. The Event and Alert are two separate writes; if the Alert write
// fails the ingestion fails and the Event is left without an Alert.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Result, error) {
	if err := sub.validate(); err != nil {
		s.failed(err)
		return nil, err
	}

	event := sub.toEvent(s.newID(), s.now())
	if err := s.store.CreateEvent(ctx, event); err != nil {
		s.failed(err)
		return nil, err
	}

	alert := s.deriveAlert(event)
	if err := s.store.CreateAlert(ctx, alert); err != nil {
		logger.Errorf("Alert creation failed, event %s has no alert: %v", event.ID, err)
		s.failed(err)
		return nil, err
	}

	if s.observer != nil {
		s.observer.EventIngested(string(event.EventType))
	}
	logger.Debugf("Event ingested: id=%s type=%s risk=%.1f/%s alert=%s",
		event.ID, event.EventType, event.RiskScore, event.RiskLevel, alert.ID)

	s.publisher.Publish(hub.TypeNewAlert, NewAlert{Event: event, Alert: alert})
	s.refreshStats(ctx)

	return &Result{EventID: event.ID, AlertID: alert.ID, Timestamp: event.Timestamp}, nil
}

func (s *Service) deriveAlert(event *models.Event) *models.Alert {
	message := event.Message()
	if message == "" {
		message = event.EventType.Label() + " detected"
	}
	alert := &models.Alert{
		ID:        s.newID(),
		EventID:   event.ID,
		AlertType: event.EventType,
		Priority:  event.RiskLevel,
		Message:   message,
		CreatedAt: s.now(),
	}
	if tags := s.rules.Apply(event); len(tags) > 0 {
		alert.Tags = datatypes.JSONSlice[models.AlertTag](tags)
	}
	return alert
}

func (s *Service) refreshStats(ctx context.Context) {
	if s.stats == nil {
		return
	}
	summary, err := s.stats.Summary(ctx, s.window)
	if err != nil {
		logger.Warnf("Skipping stats refresh: %v", err)
		return
	}
	s.publisher.Publish(hub.TypeStatsRefresh, summary)
}

func (s *Service) failed(err error) {
	if s.observer != nil {
		s.observer.IngestFailed(string(apperr.KindOf(err)))
	}
}
