package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"sentryline/pkg/models"
)

// AlertFilter narrows ListAlerts.
type AlertFilter struct {
	Read      *bool
	Dismissed *bool
	Priority  models.RiskLevel
	Since     time.Time
	Page
}

// CreateAlert inserts a new alert.
func (s *Store) CreateAlert(ctx context.Context, a *models.Alert) error {
	return translate(s.db.WithContext(ctx).Create(a).Error, "alert", a.ID, "create alert")
}

// GetAlert loads one alert by id.
func (s *Store) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	var a models.Alert
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, translate(err, "alert", id, "get alert")
	}
	return &a, nil
}

// GetAlertByEvent loads the alert derived from eventID.
func (s *Store) GetAlertByEvent(ctx context.Context, eventID string) (*models.Alert, error) {
	var a models.Alert
	if err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&a).Error; err != nil {
		return nil, translate(err, "alert for event", eventID, "get alert by event")
	}
	return &a, nil
}

// MarkAlertRead sets the read columns of one unread alert and returns the
// current row. An alert that is already read keeps its original stamp.
func (s *Store) MarkAlertRead(ctx context.Context, id, by string, at time.Time) (*models.Alert, error) {
	err := s.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where("id = ?", id).
		Where(map[string]interface{}{"read": false}).
		Updates(map[string]interface{}{
			"read":    true,
			"read_at": at.UTC(),
			"read_by": by,
		}).Error
	if err != nil {
		return nil, translate(err, "alert", id, "mark alert read")
	}
	return s.GetAlert(ctx, id)
}

// DismissAlert sets the dismissal columns of one alert and returns the
// current row. The first dismissal fixes the actor and time; actionTaken,
// when given, always replaces the stored one. Read columns are never touched.
func (s *Store) DismissAlert(ctx context.Context, id, by, actionTaken string, at time.Time) (*models.Alert, error) {
	db := s.db.WithContext(ctx)
	err := db.Model(&models.Alert{}).
		Where("id = ?", id).
		Where(map[string]interface{}{"dismissed": false}).
		Updates(map[string]interface{}{
			"dismissed":    true,
			"dismissed_at": at.UTC(),
			"dismissed_by": by,
		}).Error
	if err != nil {
		return nil, translate(err, "alert", id, "dismiss alert")
	}
	if actionTaken != "" {
		err := db.Model(&models.Alert{}).
			Where("id = ?", id).
			Update("action_taken", actionTaken).Error
		if err != nil {
			return nil, translate(err, "alert", id, "record alert action")
		}
	}
	return s.GetAlert(ctx, id)
}

// ListAlerts returns matching alerts newest first and the total match count.
func (s *Store) ListAlerts(ctx context.Context, f AlertFilter) ([]models.Alert, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Alert{})
	if f.Read != nil {
		q = q.Where(map[string]interface{}{"read": *f.Read})
	}
	if f.Dismissed != nil {
		q = q.Where(map[string]interface{}{"dismissed": *f.Dismissed})
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since.UTC())
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err, "alert", "", "count alerts")
	}

	var alerts []models.Alert
	if err := f.Page.apply(q.Order("created_at DESC")).Find(&alerts).Error; err != nil {
		return nil, 0, translate(err, "alert", "", "list alerts")
	}
	return alerts, total, nil
}

// AlertsSince returns every alert created at or after since, oldest first.
func (s *Store) AlertsSince(ctx context.Context, since time.Time) ([]models.Alert, error) {
	var alerts []models.Alert
	err := s.db.WithContext(ctx).
		Where("created_at >= ?", since.UTC()).
		Order("created_at ASC").
		Find(&alerts).Error
	if err != nil {
		return nil, translate(err, "alert", "", "load alerts")
	}
	return alerts, nil
}

// MarkAllAlertsRead flips every unread alert to read in one statement and
// returns how many rows changed.
func (s *Store) MarkAllAlertsRead(ctx context.Context, by string, at time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where(map[string]interface{}{"read": false}).
		Updates(map[string]interface{}{
			"read":    true,
			"read_at": at.UTC(),
			"read_by": by,
		})
	if res.Error != nil {
		return 0, translate(res.Error, "alert", "", "mark all alerts read")
	}
	return res.RowsAffected, nil
}
