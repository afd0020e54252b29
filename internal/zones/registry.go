// Package zones is the system of record for zones. Every mutation is
// announced on the hub and handed to the mirror; mirror pushes run off the
// request path, in order per zone.
package zones

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"sentryline/internal/apperr"
	"sentryline/internal/hub"
	"sentryline/internal/logger"
	"sentryline/internal/mirror"
	"sentryline/pkg/models"
)

// Store is the zone persistence the registry needs.
type Store interface {
	CreateZone(ctx context.Context, z *models.Zone) error
	GetZone(ctx context.Context, id string) (*models.Zone, error)
	SaveZone(ctx context.Context, z *models.Zone) error
	ListZones(ctx context.Context, activeOnly bool) ([]models.Zone, error)
	FindActiveZoneByName(ctx context.Context, name string) (*models.Zone, error)
}

// Pusher delivers zone operations to the mirror. It must not fail the caller.
type Pusher interface {
	Push(ctx context.Context, op mirror.Op, zone *models.Zone)
}

// CreateInput describes a new zone.
type CreateInput struct {
	Name           string         `json:"name"`
	Polygon        []models.Point `json:"polygon"`
	Description    string         `json:"description,omitempty"`
	Color          string         `json:"color,omitempty"`
	RiskMultiplier *float64       `json:"risk_multiplier,omitempty"`
	CreatedBy      string         `json:"created_by,omitempty"`
}

// Patch holds the fields an update supplies. Nil fields are left alone.
type Patch struct {
	Name           *string        `json:"name,omitempty"`
	Polygon        []models.Point `json:"polygon,omitempty"`
	Description    *string        `json:"description,omitempty"`
	Color          *string        `json:"color,omitempty"`
	RiskMultiplier *float64       `json:"risk_multiplier,omitempty"`
	Active         *bool          `json:"active,omitempty"`
}

// Registry owns zone CRUD.
type Registry struct {
	store     Store
	pusher    Pusher
	publisher hub.Publisher
	lanes     *lanes
	now       func() time.Time
}

// NewRegistry wires a registry.
func NewRegistry(store Store, pusher Pusher, publisher hub.Publisher) *Registry {
	return &Registry{
		store:     store,
		pusher:    pusher,
		publisher: publisher,
		lanes:     newLanes(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and stores a new active zone.
func (r *Registry) Create(ctx context.Context, in CreateInput) (*models.Zone, error) {
	z := &models.Zone{
		ID:             uuid.NewString(),
		Name:           strings.TrimSpace(in.Name),
		Polygon:        datatypes.JSONSlice[models.Point](in.Polygon),
		Active:         true,
		Description:    in.Description,
		Color:          in.Color,
		RiskMultiplier: models.DefaultRiskMultiplier,
		CreatedBy:      in.CreatedBy,
	}
	if z.Color == "" {
		z.Color = models.DefaultZoneColor
	}
	if in.RiskMultiplier != nil {
		z.RiskMultiplier = *in.RiskMultiplier
	}
	if err := validate(z); err != nil {
		return nil, err
	}
	if err := r.ensureNameFree(ctx, z.Name, ""); err != nil {
		return nil, err
	}

	now := r.now()
	z.CreatedAt, z.UpdatedAt = now, now
	if err := r.store.CreateZone(ctx, z); err != nil {
		return nil, err
	}

	logger.Infof("Zone created: id=%s name=%q points=%d", z.ID, z.Name, len(z.Polygon))
	r.publisher.Publish(hub.TypeZoneCreated, z)
	r.push(mirror.OpCreate, z)
	return z, nil
}

// Get loads a zone, active or not.
func (r *Registry) Get(ctx context.Context, id string) (*models.Zone, error) {
	return r.store.GetZone(ctx, id)
}

// List returns zones, optionally only the active ones.
func (r *Registry) List(ctx context.Context, activeOnly bool) ([]models.Zone, error) {
	return r.store.ListZones(ctx, activeOnly)
}

// Update applies the supplied fields. An active result is pushed as an
// update, an inactive one as a delete.
func (r *Registry) Update(ctx context.Context, id string, p Patch) (*models.Zone, error) {
	z, err := r.store.GetZone(ctx, id)
	if err != nil {
		return nil, err
	}
	wasActive, oldName := z.Active, z.Name

	if p.Name != nil {
		z.Name = strings.TrimSpace(*p.Name)
	}
	if p.Polygon != nil {
		z.Polygon = datatypes.JSONSlice[models.Point](p.Polygon)
	}
	if p.Description != nil {
		z.Description = *p.Description
	}
	if p.Color != nil {
		z.Color = *p.Color
	}
	if p.RiskMultiplier != nil {
		z.RiskMultiplier = *p.RiskMultiplier
	}
	if p.Active != nil {
		z.Active = *p.Active
	}
	if err := validate(z); err != nil {
		return nil, err
	}
	if z.Active && (!wasActive || z.Name != oldName) {
		if err := r.ensureNameFree(ctx, z.Name, z.ID); err != nil {
			return nil, err
		}
	}

	z.UpdatedAt = r.now()
	if err := r.store.SaveZone(ctx, z); err != nil {
		return nil, err
	}

	logger.Infof("Zone updated: id=%s name=%q active=%t", z.ID, z.Name, z.Active)
	r.publisher.Publish(hub.TypeZoneUpdated, z)
	if z.Active {
		r.push(mirror.OpUpdate, z)
	} else {
		r.push(mirror.OpDelete, z)
	}
	return z, nil
}

// Deactivate soft-deletes a zone. The mirror delete is attempted even when
// the zone was already inactive.
func (r *Registry) Deactivate(ctx context.Context, id string) (*models.Zone, error) {
	z, err := r.store.GetZone(ctx, id)
	if err != nil {
		return nil, err
	}
	if z.Active {
		z.Active = false
		z.UpdatedAt = r.now()
		if err := r.store.SaveZone(ctx, z); err != nil {
			return nil, err
		}
	}

	logger.Infof("Zone deactivated: id=%s name=%q", z.ID, z.Name)
	r.publisher.Publish(hub.TypeZoneDeleted, z)
	r.push(mirror.OpDelete, z)
	return z, nil
}

// Flush waits for queued mirror pushes.
func (r *Registry) Flush() {
	r.lanes.wait()
}

func (r *Registry) push(op mirror.Op, z *models.Zone) {
	if r.pusher == nil {
		return
	}
	snapshot := *z
	snapshot.Polygon = append(datatypes.JSONSlice[models.Point](nil), z.Polygon...)
	r.lanes.enqueue(z.ID, func() {
		r.pusher.Push(context.Background(), op, &snapshot)
	})
}

func (r *Registry) ensureNameFree(ctx context.Context, name, selfID string) error {
	existing, err := r.store.FindActiveZoneByName(ctx, name)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != selfID {
		return apperr.Conflict("an active zone named %q already exists", name)
	}
	return nil
}

func validate(z *models.Zone) error {
	if z.Name == "" {
		return apperr.Validation("zone name is required")
	}
	if len(z.Polygon) < models.MinPolygonPoints {
		return apperr.Validation("zone polygon needs at least %d points, got %d", models.MinPolygonPoints, len(z.Polygon))
	}
	if z.RiskMultiplier < models.MinRiskMultiplier || z.RiskMultiplier > models.MaxRiskMultiplier {
		return apperr.Validation("risk_multiplier %v is outside [%v, %v]", z.RiskMultiplier, models.MinRiskMultiplier, models.MaxRiskMultiplier)
	}
	return nil
}
