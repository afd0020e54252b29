// Package ack moves events and alerts through their human response states.
package ack

import (
	"context"
	"strings"
	"time"

	"sentryline/internal/apperr"
	"sentryline/internal/hub"
	"sentryline/internal/logger"
	"sentryline/pkg/models"
)

const (
	DefaultActor = "operator"
	SystemActor  = "system"
)

// Store is the persistence the manager needs. Each lifecycle write updates
// only its own columns, so concurrent reads, dismissals and acknowledgements
// of the same row never undo each other.
type Store interface {
	AcknowledgeEvent(ctx context.Context, id, by, notes string, at time.Time) (*models.Event, error)
	GetAlertByEvent(ctx context.Context, eventID string) (*models.Alert, error)
	MarkAlertRead(ctx context.Context, id, by string, at time.Time) (*models.Alert, error)
	DismissAlert(ctx context.Context, id, by, actionTaken string, at time.Time) (*models.Alert, error)
	MarkAllAlertsRead(ctx context.Context, by string, at time.Time) (int64, error)
}

// Acknowledgement is the event-acknowledged payload. Alert is nil when the
// event has no alert.
type Acknowledgement struct {
	Event *models.Event `json:"event"`
	Alert *models.Alert `json:"alert,omitempty"`
}

// ReadAll is the all-alerts-read payload.
type ReadAll struct {
	Count  int64  `json:"count"`
	ReadBy string `json:"read_by"`
}

// Manager applies acknowledgements, reads and dismissals.
type Manager struct {
	store     Store
	publisher hub.Publisher
	now       func() time.Time
}

// NewManager wires a manager.
func NewManager(store Store, publisher hub.Publisher) *Manager {
	return &Manager{
		store:     store,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AcknowledgeEvent acknowledges an event and marks its alert read. Repeat
// acknowledgements keep the first timestamp but take the new actor.
func (m *Manager) AcknowledgeEvent(ctx context.Context, id, by, notes string) (*Acknowledgement, error) {
	now := m.now()
	by = actor(by)

	event, err := m.store.AcknowledgeEvent(ctx, id, by, notes, now)
	if err != nil {
		return nil, err
	}

	out := &Acknowledgement{Event: event}
	alert, err := m.store.GetAlertByEvent(ctx, event.ID)
	switch {
	case apperr.Is(err, apperr.KindNotFound):
		logger.Warnf("Event %s acknowledged but has no alert", event.ID)
	case err != nil:
		return nil, err
	default:
		if out.Alert, err = m.store.MarkAlertRead(ctx, alert.ID, by, now); err != nil {
			return nil, err
		}
	}

	logger.Infof("Event acknowledged: id=%s by=%s", event.ID, by)
	m.publisher.Publish(hub.TypeEventAcknowledged, out)
	return out, nil
}

// DeleteEvent acknowledges an event on behalf of the system. Events are
// never removed.
func (m *Manager) DeleteEvent(ctx context.Context, id string) (*Acknowledgement, error) {
	return m.AcknowledgeEvent(ctx, id, SystemActor, "")
}

// MarkAlertRead marks one alert read. Already-read alerts keep their
// original read time.
func (m *Manager) MarkAlertRead(ctx context.Context, id, by string) (*models.Alert, error) {
	alert, err := m.store.MarkAlertRead(ctx, id, actor(by), m.now())
	if err != nil {
		return nil, err
	}
	m.publisher.Publish(hub.TypeAlertRead, alert)
	return alert, nil
}

// DismissAlert dismisses one alert, recording actionTaken when given.
func (m *Manager) DismissAlert(ctx context.Context, id, by, actionTaken string) (*models.Alert, error) {
	alert, err := m.store.DismissAlert(ctx, id, actor(by), actionTaken, m.now())
	if err != nil {
		return nil, err
	}
	logger.Infof("Alert dismissed: id=%s by=%s", alert.ID, alert.DismissedBy)
	m.publisher.Publish(hub.TypeAlertDismissed, alert)
	return alert, nil
}

// MarkAllRead marks every unread alert read in one statement and publishes a
// single notification carrying the count.
func (m *Manager) MarkAllRead(ctx context.Context, by string) (int64, error) {
	by = actor(by)
	n, err := m.store.MarkAllAlertsRead(ctx, by, m.now())
	if err != nil {
		return 0, err
	}
	logger.Infof("Marked %d alerts read by %s", n, by)
	m.publisher.Publish(hub.TypeAllAlertsRead, ReadAll{Count: n, ReadBy: by})
	return n, nil
}

func actor(by string) string {
	by = strings.TrimSpace(by)
	if by == "" {
		return DefaultActor
	}
	return by
}
