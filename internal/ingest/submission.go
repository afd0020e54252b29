package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"

	"sentryline/internal/apperr"
	"sentryline/pkg/models"
)

// Submission is a candidate event as sent by the perception service.
type Submission struct {
	EventType string                 `json:"event_type"`
	Timestamp string                 `json:"timestamp,omitempty"`
	Location  *Location              `json:"location,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RiskScore *float64               `json:"risk_score"`
	RiskLevel string                 `json:"risk_level"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Location is an optional point; an empty object counts as absent.
type Location struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// Result identifies what ingestion created.
type Result struct {
	EventID   string    `json:"event_id"`
	AlertID   string    `json:"alert_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Accepted timestamp layouts. Naive timestamps are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (s *Submission) validate() error {
	if strings.TrimSpace(s.EventType) == "" {
		return apperr.Validation("event_type is required")
	}
	if !models.EventType(s.EventType).Valid() {
		return apperr.Validation("event_type %q is not one of %v", s.EventType, models.EventTypes)
	}
	if s.RiskScore == nil {
		return apperr.Validation("risk_score is required")
	}
	if math.IsNaN(*s.RiskScore) {
		return apperr.Validation("risk_score must be a number")
	}
	if *s.RiskScore < models.MinRiskScore || *s.RiskScore > models.MaxRiskScore {
		return apperr.Validation("risk_score %v is outside [%d, %d]", *s.RiskScore, models.MinRiskScore, models.MaxRiskScore)
	}
	if strings.TrimSpace(s.RiskLevel) == "" {
		return apperr.Validation("risk_level is required")
	}
	if !models.RiskLevel(s.RiskLevel).Valid() {
		return apperr.Validation("risk_level %q is not one of %v", s.RiskLevel, models.RiskLevels)
	}
	if s.Location != nil && (s.Location.X == nil) != (s.Location.Y == nil) {
		return apperr.Validation("location needs both x and y")
	}
	if s.Timestamp != "" {
		if _, err := parseTimestamp(s.Timestamp); err != nil {
			return apperr.Validation("timestamp %q is not a valid ISO 8601 time", s.Timestamp)
		}
	}
	return nil
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

// toEvent builds the Event row. validate must have passed.
func (s *Submission) toEvent(id string, now time.Time) *models.Event {
	ts := now.UTC()
	if s.Timestamp != "" {
		ts, _ = parseTimestamp(s.Timestamp)
	}

	e := &models.Event{
		ID:        id,
		EventType: models.EventType(s.EventType),
		Timestamp: ts,
		RiskScore: *s.RiskScore,
		RiskLevel: models.RiskLevel(s.RiskLevel),
	}
	if s.Location != nil && s.Location.X != nil && s.Location.Y != nil {
		e.SetLocation(&models.Point{X: *s.Location.X, Y: *s.Location.Y})
	}

	details := normalizeDetails(s.Details, s.Metadata)
	if details.ZoneID != "" {
		zone := details.ZoneID
		e.ZoneID = &zone
	}
	e.Details = datatypes.NewJSONType(details)
	return e
}

// normalizeDetails folds details and metadata into EventDetails. Details win
// over metadata; keys neither knows about land in Extra.
func normalizeDetails(details, metadata map[string]interface{}) models.EventDetails {
	var out models.EventDetails
	extra := make(map[string]interface{})

	apply := func(src map[string]interface{}, overwrite bool) {
		for k, v := range src {
			if v == nil {
				continue
			}
			switch k {
			case "message":
				if out.Message == "" || overwrite {
					out.Message = asString(v)
				}
			case "bbox":
				if len(out.BBox) == 0 || overwrite {
					out.BBox = asFloats(v)
				}
			case "object_id":
				if out.ObjectID == "" || overwrite {
					out.ObjectID = asString(v)
				}
			case "person_id":
				if out.PersonID == "" || overwrite {
					out.PersonID = asString(v)
				}
			case "zone_id":
				if out.ZoneID == "" || overwrite {
					out.ZoneID = asString(v)
				}
			case "duration":
				if f, ok := asFloat(v); ok && (out.Duration == 0 || overwrite) {
					out.Duration = f
				}
			default:
				if _, seen := extra[k]; !seen || overwrite {
					extra[k] = v
				}
			}
		}
	}
	apply(details, true)
	apply(metadata, false)

	if len(extra) > 0 {
		out.Extra = extra
	}
	return out
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asFloats(v interface{}) []float64 {
	switch t := v.(type) {
	case []float64:
		return t
	case []interface{}:
		out := make([]float64, 0, len(t))
		for _, item := range t {
			if f, ok := asFloat(item); ok {
				out = append(out, f)
			}
		}
		return out
	default:
		return nil
	}
}
