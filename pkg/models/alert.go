package models

import (
	"time"

	"gorm.io/datatypes"
)

// AlertTag annotates an alert with a matched tagging rule.
type AlertTag struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// Alert is the human-facing notification derived 1:1 from an Event.
// Read and dismissed are independent flags.
type Alert struct {
	ID        string                        `json:"id"         gorm:"column:id;primaryKey;size:36"`
	EventID   string                        `json:"event_id"   gorm:"column:event_id;size:36;uniqueIndex"`
	AlertType EventType                     `json:"alert_type" gorm:"column:alert_type;size:32;index"`
	Priority  RiskLevel                     `json:"priority"   gorm:"column:priority;size:16;index"`
	Message   string                        `json:"message"    gorm:"column:message"`
	Tags      datatypes.JSONSlice[AlertTag] `json:"tags,omitempty" gorm:"column:tags"`

	Read   bool       `json:"read"              gorm:"column:read;index"`
	ReadAt *time.Time `json:"read_at,omitempty" gorm:"column:read_at"`
	ReadBy string     `json:"read_by,omitempty" gorm:"column:read_by;size:128"`

	Dismissed   bool       `json:"dismissed"              gorm:"column:dismissed;index"`
	DismissedAt *time.Time `json:"dismissed_at,omitempty" gorm:"column:dismissed_at"`
	DismissedBy string     `json:"dismissed_by,omitempty" gorm:"column:dismissed_by;size:128"`
	ActionTaken string     `json:"action_taken,omitempty" gorm:"column:action_taken"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;index"`
}

// TableName pins the alerts collection name.
func (Alert) TableName() string {
	return "alerts"
}

// ResponseTime is how long the alert waited before being read.
func (a *Alert) ResponseTime() (time.Duration, bool) {
	if !a.Read || a.ReadAt == nil {
		return 0, false
	}
	return a.ReadAt.Sub(a.CreatedAt), true
}
