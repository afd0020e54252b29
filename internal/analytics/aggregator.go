// Package analytics folds windowed Store reads into dashboard aggregates.
// Rows are reduced in Go so hour and day bucketing is identical on every
// backend. Empty windows yield zeroed aggregates, never errors.
package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"sentryline/internal/apperr"
	"sentryline/pkg/models"
)

// Store is the read side the aggregator needs.
type Store interface {
	EventsSince(ctx context.Context, since time.Time) ([]models.Event, error)
	AlertsSince(ctx context.Context, since time.Time) ([]models.Alert, error)
	CountActiveZones(ctx context.Context) (int64, error)
	ZoneNames(ctx context.Context, ids []string) (map[string]string, error)
}

const (
	// DefaultCellSize is the heatmap grid size when the caller gives none.
	DefaultCellSize = 50.0
	// HighRiskScore is the score at or above which an event counts as high risk.
	HighRiskScore = 7.0

	trendBuckets = 3

	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// Aggregator computes the enumerated aggregation shapes.
type Aggregator struct {
	store Store
	now   func() time.Time
}

// NewAggregator creates an aggregator reading from store.
func NewAggregator(store Store) *Aggregator {
	return &Aggregator{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock; used by tests.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

func (a *Aggregator) since(window time.Duration) (time.Time, error) {
	if window <= 0 {
		return time.Time{}, apperr.Validation("window must be positive, got %s", window)
	}
	return a.now().Add(-window), nil
}

func (a *Aggregator) events(ctx context.Context, window time.Duration) ([]models.Event, error) {
	since, err := a.since(window)
	if err != nil {
		return nil, err
	}
	return a.store.EventsSince(ctx, since)
}

func (a *Aggregator) alerts(ctx context.Context, window time.Duration) ([]models.Alert, error) {
	since, err := a.since(window)
	if err != nil {
		return nil, err
	}
	return a.store.AlertsSince(ctx, since)
}

// Summary is the headline aggregate, also carried by stats-refresh.
type Summary struct {
	WindowHours    float64                  `json:"window_hours"`
	TotalEvents    int                      `json:"total_events"`
	Unacknowledged int                      `json:"unacknowledged_events"`
	AvgRiskScore   float64                  `json:"avg_risk_score"`
	MaxRiskScore   float64                  `json:"max_risk_score"`
	ActiveZones    int64                    `json:"active_zones"`
	UnreadAlerts   int                      `json:"unread_alerts"`
	ByType         map[models.EventType]int `json:"events_by_type"`
	ByRiskLevel    map[models.RiskLevel]int `json:"events_by_risk_level"`
}

// Summary counts events, alerts and zones in the window. The active zone
// count ignores the window.
func (a *Aggregator) Summary(ctx context.Context, window time.Duration) (*Summary, error) {
	events, err := a.events(ctx, window)
	if err != nil {
		return nil, err
	}
	alerts, err := a.alerts(ctx, window)
	if err != nil {
		return nil, err
	}
	zones, err := a.store.CountActiveZones(ctx)
	if err != nil {
		return nil, err
	}

	out := &Summary{
		WindowHours: window.Hours(),
		TotalEvents: len(events),
		ActiveZones: zones,
		ByType:      typeCounts(),
		ByRiskLevel: levelCounts(),
	}
	var risk stat
	for i := range events {
		e := &events[i]
		if !e.Acknowledged {
			out.Unacknowledged++
		}
		risk.add(e.RiskScore)
		out.ByType[e.EventType]++
		out.ByRiskLevel[e.RiskLevel]++
	}
	out.AvgRiskScore, out.MaxRiskScore = risk.mean(), risk.max

	for i := range alerts {
		if !alerts[i].Read && !alerts[i].Dismissed {
			out.UnreadAlerts++
		}
	}
	return out, nil
}

// TimelineBucket is one occupied hour.
type TimelineBucket struct {
	Hour    time.Time                `json:"hour"`
	Count   int                      `json:"count"`
	AvgRisk float64                  `json:"avg_risk"`
	MaxRisk float64                  `json:"max_risk"`
	ByType  map[models.EventType]int `json:"by_type"`
}

// Timeline groups events into hourly UTC buckets, oldest first.
func (a *Aggregator) Timeline(ctx context.Context, window time.Duration) ([]TimelineBucket, error) {
	events, err := a.events(ctx, window)
	if err != nil {
		return nil, err
	}

	type acc struct {
		risk   stat
		byType map[models.EventType]int
	}
	buckets := make(map[time.Time]*acc)
	for i := range events {
		key := events[i].Timestamp.UTC().Truncate(time.Hour)
		b := buckets[key]
		if b == nil {
			b = &acc{byType: typeCounts()}
			buckets[key] = b
		}
		b.risk.add(events[i].RiskScore)
		b.byType[events[i].EventType]++
	}

	out := make([]TimelineBucket, 0, len(buckets))
	for hour, b := range buckets {
		out = append(out, TimelineBucket{
			Hour:    hour,
			Count:   b.risk.n,
			AvgRisk: b.risk.mean(),
			MaxRisk: b.risk.max,
			ByType:  b.byType,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour.Before(out[j].Hour) })
	return out, nil
}

// HeatmapCell is one occupied grid cell, keyed by its origin corner.
type HeatmapCell struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Count   int     `json:"count"`
	AvgRisk float64 `json:"avg_risk"`
}

// Heatmap is the spatial density of located events.
type Heatmap struct {
	CellSize float64       `json:"cell_size"`
	Cells    []HeatmapCell `json:"cells"`
}

// Heatmap buckets located events into a uniform grid. A zero cell size
// selects DefaultCellSize; negative sizes are rejected.
func (a *Aggregator) Heatmap(ctx context.Context, window time.Duration, cellSize float64) (*Heatmap, error) {
	if cellSize == 0 {
		cellSize = DefaultCellSize
	}
	if cellSize < 0 || math.IsNaN(cellSize) || math.IsInf(cellSize, 0) {
		return nil, apperr.Validation("cell_size must be a positive number")
	}
	events, err := a.events(ctx, window)
	if err != nil {
		return nil, err
	}

	type key struct{ x, y float64 }
	cells := make(map[key]*stat)
	for i := range events {
		loc := events[i].Location
		if loc == nil {
			continue
		}
		k := key{
			x: math.Floor(loc.X/cellSize) * cellSize,
			y: math.Floor(loc.Y/cellSize) * cellSize,
		}
		c := cells[k]
		if c == nil {
			c = &stat{}
			cells[k] = c
		}
		c.add(events[i].RiskScore)
	}

	out := &Heatmap{CellSize: cellSize, Cells: make([]HeatmapCell, 0, len(cells))}
	for k, c := range cells {
		out.Cells = append(out.Cells, HeatmapCell{X: k.x, Y: k.y, Count: c.n, AvgRisk: c.mean()})
	}
	sort.Slice(out.Cells, func(i, j int) bool {
		if out.Cells[i].Y != out.Cells[j].Y {
			return out.Cells[i].Y < out.Cells[j].Y
		}
		return out.Cells[i].X < out.Cells[j].X
	})
	return out, nil
}

// DayBucket is one occupied UTC day.
type DayBucket struct {
	Date          time.Time `json:"date"`
	Count         int       `json:"count"`
	AvgRisk       float64   `json:"avg_risk"`
	HighRiskCount int       `json:"high_risk_count"`
}

// Trends is the daily series and its overall direction.
type Trends struct {
	Days  []DayBucket `json:"days"`
	Trend string      `json:"trend"`
}

// Trends groups events by UTC day and classifies the direction of the counts.
func (a *Aggregator) Trends(ctx context.Context, window time.Duration) (*Trends, error) {
	events, err := a.events(ctx, window)
	if err != nil {
		return nil, err
	}

	type acc struct {
		risk stat
		high int
	}
	days := make(map[time.Time]*acc)
	for i := range events {
		ts := events[i].Timestamp.UTC()
		key := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		d := days[key]
		if d == nil {
			d = &acc{}
			days[key] = d
		}
		d.risk.add(events[i].RiskScore)
		if events[i].RiskScore >= HighRiskScore {
			d.high++
		}
	}

	out := &Trends{Days: make([]DayBucket, 0, len(days))}
	for date, d := range days {
		out.Days = append(out.Days, DayBucket{
			Date:          date,
			Count:         d.risk.n,
			AvgRisk:       d.risk.mean(),
			HighRiskCount: d.high,
		})
	}
	sort.Slice(out.Days, func(i, j int) bool { return out.Days[i].Date.Before(out.Days[j].Date) })

	counts := make([]int, len(out.Days))
	for i, d := range out.Days {
		counts[i] = d.Count
	}
	out.Trend = ClassifyTrend(counts)
	return out, nil
}

// ClassifyTrend compares the mean count of the most recent three buckets
// with the mean of the earliest three. Short series use every bucket on both
// sides, so the groups may overlap. A ratio above 1.2 is increasing, below
// 0.8 decreasing. Fewer than two buckets is always stable.
func ClassifyTrend(counts []int) string {
	n := len(counts)
	if n < 2 {
		return TrendStable
	}
	k := trendBuckets
	if k > n {
		k = n
	}
	earliest := meanCount(counts[:k])
	recent := meanCount(counts[n-k:])
	if earliest == 0 {
		if recent > 0 {
			return TrendIncreasing
		}
		return TrendStable
	}
	switch ratio := recent / earliest; {
	case ratio > 1.2:
		return TrendIncreasing
	case ratio < 0.8:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func meanCount(counts []int) float64 {
	if len(counts) == 0 {
		return 0
	}
	sum := 0
	for _, c := range counts {
		sum += c
	}
	return float64(sum) / float64(len(counts))
}
