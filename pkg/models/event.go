package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventType is the kind of condition the perception service detected.
type EventType string

const (
	EventRestrictedEntry  EventType = "RESTRICTED_ENTRY"
	EventLoitering        EventType = "LOITERING"
	EventUnattendedObject EventType = "UNATTENDED_OBJECT"
)

// EventTypes lists every event type in display order.
var EventTypes = []EventType{EventRestrictedEntry, EventLoitering, EventUnattendedObject}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	for _, v := range EventTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Label renders the type for humans, e.g. "RESTRICTED ENTRY".
func (t EventType) Label() string {
	return strings.NewReplacer("_", " ", "-", " ").Replace(string(t))
}

// RiskLevel is the qualitative risk supplied alongside the numeric score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskLevels lists every risk level from lowest to highest.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// Valid reports whether l is a known risk level.
func (l RiskLevel) Valid() bool {
	for _, v := range RiskLevels {
		if l == v {
			return true
		}
	}
	return false
}

const (
	MinRiskScore = 0
	MaxRiskScore = 10
)

// Point is a 2D frame coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// EventDetails is the descriptive payload attached by the detector.
type EventDetails struct {
	Message  string                 `json:"message,omitempty"`
	BBox     []float64              `json:"bbox,omitempty"`
	ObjectID string                 `json:"object_id,omitempty"`
	PersonID string                 `json:"person_id,omitempty"`
	ZoneID   string                 `json:"zone_id,omitempty"`
	Duration float64                `json:"duration,omitempty"`
	Extra    map[string]interface{} `json:"extra,omitempty"`
}

// Event is an immutable observation of a security condition. Only the
// acknowledgement fields change after ingestion.
type Event struct {
	ID        string                           `json:"id"         gorm:"column:id;primaryKey;size:36"`
	EventType EventType                        `json:"event_type" gorm:"column:event_type;size:32;index"`
	Timestamp time.Time                        `json:"timestamp"  gorm:"column:occurred_at;index"`
	LocationX *float64                         `json:"-"          gorm:"column:location_x"`
	LocationY *float64                         `json:"-"          gorm:"column:location_y"`
	Location  *Point                           `json:"location,omitempty" gorm:"-"`
	Details   datatypes.JSONType[EventDetails] `json:"details"    gorm:"column:details"`
	ZoneID    *string                          `json:"zone_id,omitempty" gorm:"column:zone_id;size:64;index"`
	RiskScore float64                          `json:"risk_score" gorm:"column:risk_score"`
	RiskLevel RiskLevel                        `json:"risk_level" gorm:"column:risk_level;size:16;index"`

	Acknowledged   bool       `json:"acknowledged"              gorm:"column:acknowledged;index"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty" gorm:"column:acknowledged_at"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty" gorm:"column:acknowledged_by;size:128"`
	Notes          string     `json:"notes,omitempty"           gorm:"column:notes"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

// TableName pins the events collection name.
func (Event) TableName() string {
	return "events"
}

// SetLocation stores p in the flattened location columns.
func (e *Event) SetLocation(p *Point) {
	e.Location = p
	if p == nil {
		e.LocationX, e.LocationY = nil, nil
		return
	}
	x, y := p.X, p.Y
	e.LocationX, e.LocationY = &x, &y
}

// LoadLocation rebuilds Location from the flattened columns.
func (e *Event) LoadLocation() {
	if e.LocationX == nil || e.LocationY == nil {
		e.Location = nil
		return
	}
	e.Location = &Point{X: *e.LocationX, Y: *e.LocationY}
}

// AfterFind restores Location after a read.
func (e *Event) AfterFind(tx *gorm.DB) error {
	e.LoadLocation()
	return nil
}

// Message returns the detector-supplied message, if any.
func (e *Event) Message() string {
	return e.Details.Data().Message
}
