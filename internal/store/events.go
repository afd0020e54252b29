package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"sentryline/pkg/models"
)

// EventFilter narrows ListEvents.
type EventFilter struct {
	EventType    models.EventType
	RiskLevel    models.RiskLevel
	Acknowledged *bool
	Since        time.Time
	Page
}

// CreateEvent inserts a new event.
func (s *Store) CreateEvent(ctx context.Context, e *models.Event) error {
	return translate(s.db.WithContext(ctx).Create(e).Error, "event", e.ID, "create event")
}

// GetEvent loads one event by id.
func (s *Store) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var e models.Event
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, translate(err, "event", id, "get event")
	}
	return &e, nil
}

// AcknowledgeEvent sets the acknowledgement columns of one event and returns
// the current row. The first acknowledgement fixes acknowledged_at; later
// ones only replace the actor, and the notes when given.
func (s *Store) AcknowledgeEvent(ctx context.Context, id, by, notes string, at time.Time) (*models.Event, error) {
	db := s.db.WithContext(ctx)
	err := db.Model(&models.Event{}).
		Where("id = ?", id).
		Where(map[string]interface{}{"acknowledged": false}).
		Updates(map[string]interface{}{
			"acknowledged":    true,
			"acknowledged_at": at.UTC(),
		}).Error
	if err != nil {
		return nil, translate(err, "event", id, "acknowledge event")
	}

	fields := map[string]interface{}{"acknowledged_by": by}
	if notes != "" {
		fields["notes"] = notes
	}
	err = db.Model(&models.Event{}).Where("id = ?", id).Updates(fields).Error
	if err != nil {
		return nil, translate(err, "event", id, "acknowledge event")
	}
	return s.GetEvent(ctx, id)
}

// ListEvents returns matching events newest first and the total match count.
func (s *Store) ListEvents(ctx context.Context, f EventFilter) ([]models.Event, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Event{})
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if f.RiskLevel != "" {
		q = q.Where("risk_level = ?", f.RiskLevel)
	}
	if f.Acknowledged != nil {
		q = q.Where(map[string]interface{}{"acknowledged": *f.Acknowledged})
	}
	if !f.Since.IsZero() {
		q = q.Where("occurred_at >= ?", f.Since.UTC())
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err, "event", "", "count events")
	}

	var events []models.Event
	if err := f.Page.apply(q.Order("occurred_at DESC")).Find(&events).Error; err != nil {
		return nil, 0, translate(err, "event", "", "list events")
	}
	return events, total, nil
}

// EventsSince returns every event at or after since, oldest first.
func (s *Store) EventsSince(ctx context.Context, since time.Time) ([]models.Event, error) {
	var events []models.Event
	err := s.db.WithContext(ctx).
		Where("occurred_at >= ?", since.UTC()).
		Order("occurred_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, translate(err, "event", "", "load events")
	}
	return events, nil
}
