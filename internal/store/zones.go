package store

import (
	"context"

	"sentryline/pkg/models"
)

// CreateZone inserts a new zone.
func (s *Store) CreateZone(ctx context.Context, z *models.Zone) error {
	return translate(s.db.WithContext(ctx).Create(z).Error, "zone", z.ID, "create zone")
}

// GetZone loads one zone by id, active or not.
func (s *Store) GetZone(ctx context.Context, id string) (*models.Zone, error) {
	var z models.Zone
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&z).Error; err != nil {
		return nil, translate(err, "zone", id, "get zone")
	}
	return &z, nil
}

// SaveZone writes every column of an existing zone.
func (s *Store) SaveZone(ctx context.Context, z *models.Zone) error {
	return translate(s.db.WithContext(ctx).Save(z).Error, "zone", z.ID, "save zone")
}

// ListZones returns zones ordered by creation time.
func (s *Store) ListZones(ctx context.Context, activeOnly bool) ([]models.Zone, error) {
	q := s.db.WithContext(ctx).Model(&models.Zone{})
	if activeOnly {
		q = q.Where(map[string]interface{}{"active": true})
	}
	var zones []models.Zone
	if err := q.Order("created_at ASC").Find(&zones).Error; err != nil {
		return nil, translate(err, "zone", "", "list zones")
	}
	return zones, nil
}

// FindActiveZoneByName returns the active zone called name, or nil.
func (s *Store) FindActiveZoneByName(ctx context.Context, name string) (*models.Zone, error) {
	var zones []models.Zone
	err := s.db.WithContext(ctx).
		Where("name = ?", name).
		Where(map[string]interface{}{"active": true}).
		Limit(1).
		Find(&zones).Error
	if err != nil {
		return nil, translate(err, "zone", name, "find zone by name")
	}
	if len(zones) == 0 {
		return nil, nil
	}
	return &zones[0], nil
}

// CountActiveZones returns the number of active zones.
func (s *Store) CountActiveZones(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.Zone{}).
		Where(map[string]interface{}{"active": true}).
		Count(&n).Error
	if err != nil {
		return 0, translate(err, "zone", "", "count zones")
	}
	return n, nil
}

// ZoneNames maps zone ids to names for the given ids.
func (s *Store) ZoneNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var zones []models.Zone
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&zones).Error; err != nil {
		return nil, translate(err, "zone", "", "load zone names")
	}
	for _, z := range zones {
		out[z.ID] = z.Name
	}
	return out, nil
}
