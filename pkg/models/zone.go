package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	MinPolygonPoints      = 3
	MinRiskMultiplier     = 0.1
	MaxRiskMultiplier     = 3.0
	DefaultRiskMultiplier = 1.0
	DefaultZoneColor      = "#EF4444"
)

// Zone is a named polygonal region evaluated by the perception service.
// Zones are deactivated, never removed.
type Zone struct {
	ID             string                     `json:"id"              gorm:"column:id;primaryKey;size:36"`
	Name           string                     `json:"name"            gorm:"column:name;size:128;index"`
	Polygon        datatypes.JSONSlice[Point] `json:"polygon"         gorm:"column:polygon"`
	Active         bool                       `json:"active"          gorm:"column:active;index"`
	Description    string                     `json:"description"     gorm:"column:description"`
	Color          string                     `json:"color"           gorm:"column:color;size:16"`
	RiskMultiplier float64                    `json:"risk_multiplier" gorm:"column:risk_multiplier"`
	CreatedBy      string                     `json:"created_by"      gorm:"column:created_by;size:128"`
	CreatedAt      time.Time                  `json:"created_at"      gorm:"column:created_at"`
	UpdatedAt      time.Time                  `json:"updated_at"      gorm:"column:updated_at"`
}

// TableName pins the zones collection name.
func (Zone) TableName() string {
	return "zones"
}
