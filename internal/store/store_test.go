package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"sentryline/internal/apperr"
	"sentryline/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory(uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newEvent(ts time.Time, typ models.EventType, level models.RiskLevel, score float64) *models.Event {
	return &models.Event{
		ID:        uuid.NewString(),
		EventType: typ,
		Timestamp: ts,
		RiskScore: score,
		RiskLevel: level,
		Details:   datatypes.NewJSONType(models.EventDetails{Message: "test"}),
	}
}

func square() datatypes.JSONSlice[models.Point] {
	return datatypes.JSONSlice[models.Point]{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
}

func TestEventRoundTripKeepsLocationAndDetails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := newEvent(time.Now().UTC(), models.EventLoitering, models.RiskMedium, 6)
	e.SetLocation(&models.Point{X: 120, Y: 80})
	zone := "zone-1"
	e.ZoneID = &zone
	e.Details = datatypes.NewJSONType(models.EventDetails{Message: "Person loitering", ZoneID: zone, Duration: 320})
	require.NoError(t, s.CreateEvent(ctx, e))

	got, err := s.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Location)
	assert.Equal(t, 120.0, got.Location.X)
	assert.Equal(t, 80.0, got.Location.Y)
	assert.Equal(t, "Person loitering", got.Message())
	assert.Equal(t, 320.0, got.Details.Data().Duration)
	require.NotNil(t, got.ZoneID)
	assert.Equal(t, zone, *got.ZoneID)
}

func TestGetMissingRowsAreNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetEvent(ctx, "nope")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = s.GetAlert(ctx, "nope")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = s.GetZone(ctx, "nope")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestListEventsFiltersAndPages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.CreateEvent(ctx, newEvent(now.Add(-time.Duration(i)*time.Minute), models.EventLoitering, models.RiskLow, 2)))
	}
	old := newEvent(now.Add(-48*time.Hour), models.EventRestrictedEntry, models.RiskHigh, 8)
	require.NoError(t, s.CreateEvent(ctx, old))

	events, total, err := s.ListEvents(ctx, EventFilter{EventType: models.EventLoitering, Page: Page{Limit: 2}})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, events, 2)
	assert.True(t, !events[0].Timestamp.Before(events[1].Timestamp))

	_, total, err = s.ListEvents(ctx, EventFilter{Since: now.Add(-time.Hour)})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)

	unacked := false
	_, total, err = s.ListEvents(ctx, EventFilter{Acknowledged: &unacked})
	require.NoError(t, err)
	assert.EqualValues(t, 6, total)
}

func TestMarkAllAlertsReadCountsOnlyUnread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateAlert(ctx, &models.Alert{ID: uuid.NewString(), EventID: uuid.NewString(), AlertType: models.EventLoitering, Priority: models.RiskLow}))
	}
	readAt := now.Add(-time.Minute)
	already := &models.Alert{ID: uuid.NewString(), EventID: uuid.NewString(), AlertType: models.EventLoitering, Priority: models.RiskLow, Read: true, ReadAt: &readAt, ReadBy: "alice"}
	require.NoError(t, s.CreateAlert(ctx, already))

	n, err := s.MarkAllAlertsRead(ctx, "bob", now)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	unread := false
	_, total, err := s.ListAlerts(ctx, AlertFilter{Read: &unread})
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)

	got, err := s.GetAlert(ctx, already.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.ReadBy)

	n, err = s.MarkAllAlertsRead(ctx, "bob", now)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestAlertEventReferenceIsUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	eventID := uuid.NewString()
	require.NoError(t, s.CreateAlert(ctx, &models.Alert{ID: uuid.NewString(), EventID: eventID}))
	err := s.CreateAlert(ctx, &models.Alert{ID: uuid.NewString(), EventID: eventID})
	assert.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)

	got, err := s.GetAlertByEvent(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, eventID, got.EventID)
}

func TestActiveZoneNamesAreUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &models.Zone{ID: uuid.NewString(), Name: "Lobby", Polygon: square(), Active: true}
	require.NoError(t, s.CreateZone(ctx, first))

	err := s.CreateZone(ctx, &models.Zone{ID: uuid.NewString(), Name: "Lobby", Polygon: square(), Active: true})
	assert.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)

	first.Active = false
	require.NoError(t, s.SaveZone(ctx, first))
	require.NoError(t, s.CreateZone(ctx, &models.Zone{ID: uuid.NewString(), Name: "Lobby", Polygon: square(), Active: true}))

	found, err := s.FindActiveZoneByName(ctx, "Lobby")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.NotEqual(t, first.ID, found.ID)

	n, err := s.CountActiveZones(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	all, err := s.ListZones(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	active, err := s.ListZones(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Len(t, active[0].Polygon, 4)

	names, err := s.ZoneNames(ctx, []string{first.ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{first.ID: "Lobby"}, names)
}

func TestClosedStoreReportsStoreError(t *testing.T) {
	s, err := OpenMemory(uuid.NewString())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.GetEvent(context.Background(), "x")
	assert.True(t, apperr.Is(err, apperr.KindStore), "got %v", err)
	assert.True(t, apperr.Is(s.Ping(context.Background()), apperr.KindStore))
}

func TestLifecycleUpdatesTouchOnlyTheirColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	e := newEvent(now.Add(-time.Hour), models.EventLoitering, models.RiskMedium, 5)
	require.NoError(t, s.CreateEvent(ctx, e))
	a := &models.Alert{ID: uuid.NewString(), EventID: e.ID, AlertType: e.EventType, Priority: e.RiskLevel, Message: "x"}
	require.NoError(t, s.CreateAlert(ctx, a))

	// A stale copy written back would clear read; column updates must not.
	_, err := s.MarkAlertRead(ctx, a.ID, "alice", now)
	require.NoError(t, err)
	got, err := s.DismissAlert(ctx, a.ID, "carol", "guard dispatched", now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, got.Read)
	assert.Equal(t, "alice", got.ReadBy)
	assert.True(t, got.Dismissed)

	again, err := s.MarkAlertRead(ctx, a.ID, "bob", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "alice", again.ReadBy)
	require.NotNil(t, again.ReadAt)
	assert.True(t, again.ReadAt.Equal(now))

	acked, err := s.AcknowledgeEvent(ctx, e.ID, "alice", "first", now)
	require.NoError(t, err)
	acked, err = s.AcknowledgeEvent(ctx, e.ID, "bob", "", now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, acked.Acknowledged)
	assert.Equal(t, "bob", acked.AcknowledgedBy)
	assert.Equal(t, "first", acked.Notes)
	require.NotNil(t, acked.AcknowledgedAt)
	assert.True(t, acked.AcknowledgedAt.Equal(now))

	_, err = s.AcknowledgeEvent(ctx, "missing", "bob", "", now)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = s.DismissAlert(ctx, "missing", "bob", "", now)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
