package ack

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentryline/internal/apperr"
	"sentryline/internal/hub"
	"sentryline/internal/store"
	"sentryline/pkg/models"
)

type published struct {
	typ  string
	data interface{}
}

type recordingPublisher struct {
	mu  sync.Mutex
	out []published
}

func (p *recordingPublisher) Publish(typ string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = append(p.out, published{typ: typ, data: data})
}

func (p *recordingPublisher) ofType(typ string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, n := range p.out {
		if n.typ == typ {
			out = append(out, n)
		}
	}
	return out
}

type fixture struct {
	ctx   context.Context
	store *store.Store
	pub   *recordingPublisher
	m     *Manager
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.OpenMemory(uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	f := &fixture{
		ctx:   context.Background(),
		store: s,
		pub:   &recordingPublisher{},
		clock: time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
	}
	f.m = NewManager(s, f.pub)
	f.m.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) eventWithAlert(t *testing.T) (*models.Event, *models.Alert) {
	t.Helper()
	e := &models.Event{
		ID:        uuid.NewString(),
		EventType: models.EventLoitering,
		Timestamp: f.clock.Add(-time.Hour),
		RiskScore: 4,
		RiskLevel: models.RiskMedium,
	}
	require.NoError(t, f.store.CreateEvent(f.ctx, e))
	a := &models.Alert{
		ID:        uuid.NewString(),
		EventID:   e.ID,
		AlertType: e.EventType,
		Priority:  e.RiskLevel,
		Message:   "LOITERING detected",
		CreatedAt: f.clock.Add(-time.Hour),
	}
	require.NoError(t, f.store.CreateAlert(f.ctx, a))
	return e, a
}

func TestAcknowledgeEventMarksAlertRead(t *testing.T) {
	f := newFixture(t)
	e, a := f.eventWithAlert(t)

	ack, err := f.m.AcknowledgeEvent(f.ctx, e.ID, "alice", "checked camera 2")
	require.NoError(t, err)
	require.NotNil(t, ack.Alert)
	assert.True(t, ack.Event.Acknowledged)

	stored, err := f.store.GetEvent(f.ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, stored.Acknowledged)
	assert.Equal(t, "alice", stored.AcknowledgedBy)
	assert.Equal(t, "checked camera 2", stored.Notes)
	require.NotNil(t, stored.AcknowledgedAt)
	assert.True(t, stored.AcknowledgedAt.Equal(f.clock))

	alert, err := f.store.GetAlert(f.ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, alert.Read)
	assert.Equal(t, "alice", alert.ReadBy)

	assert.Len(t, f.pub.ofType(hub.TypeEventAcknowledged), 1)
}

func TestAcknowledgeTwiceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	e, _ := f.eventWithAlert(t)
	first := f.clock

	_, err := f.m.AcknowledgeEvent(f.ctx, e.ID, "alice", "first look")
	require.NoError(t, err)

	f.clock = f.clock.Add(10 * time.Minute)
	_, err = f.m.AcknowledgeEvent(f.ctx, e.ID, "bob", "")
	require.NoError(t, err)

	stored, err := f.store.GetEvent(f.ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", stored.AcknowledgedBy)
	assert.Equal(t, "first look", stored.Notes)
	require.NotNil(t, stored.AcknowledgedAt)
	assert.True(t, stored.AcknowledgedAt.Equal(first))

	alert, err := f.store.GetAlertByEvent(f.ctx, e.ID)
	require.NoError(t, err)
	// The alert keeps the read stamp from the first acknowledgement.
	assert.Equal(t, "alice", alert.ReadBy)

	_, total, err := f.store.ListAlerts(f.ctx, store.AlertFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, f.pub.ofType(hub.TypeEventAcknowledged), 2)
}

func TestDeleteEventAcknowledgesAsSystem(t *testing.T) {
	f := newFixture(t)
	e, _ := f.eventWithAlert(t)

	_, err := f.m.DeleteEvent(f.ctx, e.ID)
	require.NoError(t, err)

	stored, err := f.store.GetEvent(f.ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, stored.Acknowledged)
	assert.Equal(t, SystemActor, stored.AcknowledgedBy)
}

func TestAcknowledgeOrphanedEvent(t *testing.T) {
	f := newFixture(t)
	e := &models.Event{ID: uuid.NewString(), EventType: models.EventLoitering, Timestamp: f.clock, RiskLevel: models.RiskLow}
	require.NoError(t, f.store.CreateEvent(f.ctx, e))

	ack, err := f.m.AcknowledgeEvent(f.ctx, e.ID, "", "")
	require.NoError(t, err)
	assert.Nil(t, ack.Alert)
	assert.Equal(t, DefaultActor, ack.Event.AcknowledgedBy)
}

func TestReadAndDismissAreIndependent(t *testing.T) {
	f := newFixture(t)
	_, a := f.eventWithAlert(t)

	dismissed, err := f.m.DismissAlert(f.ctx, a.ID, "carol", "guard dispatched")
	require.NoError(t, err)
	assert.True(t, dismissed.Dismissed)
	assert.False(t, dismissed.Read)

	read, err := f.m.MarkAlertRead(f.ctx, a.ID, "")
	require.NoError(t, err)
	assert.True(t, read.Read)
	assert.True(t, read.Dismissed)
	assert.Equal(t, DefaultActor, read.ReadBy)

	stored, err := f.store.GetAlert(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "guard dispatched", stored.ActionTaken)
	assert.Equal(t, "carol", stored.DismissedBy)
	assert.True(t, stored.Read)
}

func TestRepeatDismissKeepsFirstActor(t *testing.T) {
	f := newFixture(t)
	_, a := f.eventWithAlert(t)

	_, err := f.m.DismissAlert(f.ctx, a.ID, "carol", "")
	require.NoError(t, err)
	again, err := f.m.DismissAlert(f.ctx, a.ID, "dave", "false alarm")
	require.NoError(t, err)

	assert.Equal(t, "carol", again.DismissedBy)
	assert.Equal(t, "false alarm", again.ActionTaken)
	assert.Len(t, f.pub.ofType(hub.TypeAlertDismissed), 2)
}

func TestMarkAllReadPublishesOnce(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.eventWithAlert(t)
	}
	_, already := f.eventWithAlert(t)
	_, err := f.m.MarkAlertRead(f.ctx, already.ID, "alice")
	require.NoError(t, err)

	n, err := f.m.MarkAllRead(f.ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	notes := f.pub.ofType(hub.TypeAllAlertsRead)
	require.Len(t, notes, 1)
	assert.Equal(t, ReadAll{Count: 3, ReadBy: "bob"}, notes[0].data)

	unread := false
	_, total, err := f.store.ListAlerts(f.ctx, store.AlertFilter{Read: &unread})
	require.NoError(t, err)
	assert.Zero(t, total)

	n, err = f.m.MarkAllRead(f.ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, f.pub.ofType(hub.TypeAllAlertsRead), 2)
}

func TestUnknownIDsAreNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.m.AcknowledgeEvent(f.ctx, "missing", "alice", "")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = f.m.MarkAlertRead(f.ctx, "missing", "alice")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = f.m.DismissAlert(f.ctx, "missing", "alice", "")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Empty(t, f.pub.out)
}

// interleavingStore runs a hook just before a dismissal reaches the database,
// standing in for a request that lands between the two.
type interleavingStore struct {
	*store.Store
	beforeDismiss func()
}

func (s *interleavingStore) DismissAlert(ctx context.Context, id, by, actionTaken string, at time.Time) (*models.Alert, error) {
	if s.beforeDismiss != nil {
		s.beforeDismiss()
	}
	return s.Store.DismissAlert(ctx, id, by, actionTaken, at)
}

func TestReadDuringDismissIsKept(t *testing.T) {
	f := newFixture(t)
	e, a := f.eventWithAlert(t)

	wrapped := &interleavingStore{Store: f.store}
	m := NewManager(wrapped, f.pub)
	m.now = func() time.Time { return f.clock }
	wrapped.beforeDismiss = func() {
		_, err := f.m.AcknowledgeEvent(f.ctx, e.ID, "alice", "")
		require.NoError(t, err)
	}

	dismissed, err := m.DismissAlert(f.ctx, a.ID, "carol", "guard dispatched")
	require.NoError(t, err)
	assert.True(t, dismissed.Dismissed)
	assert.True(t, dismissed.Read)
	assert.Equal(t, "alice", dismissed.ReadBy)

	stored, err := f.store.GetAlert(f.ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, stored.Read)
	assert.True(t, stored.Dismissed)
	assert.Equal(t, "carol", stored.DismissedBy)
}

func TestConcurrentReadAndDismissBothLand(t *testing.T) {
	f := newFixture(t)

	alerts := make([]*models.Alert, 20)
	for i := range alerts {
		_, alerts[i] = f.eventWithAlert(t)
	}

	var wg sync.WaitGroup
	for _, a := range alerts {
		id := a.ID
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.m.MarkAlertRead(f.ctx, id, "alice")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.m.DismissAlert(f.ctx, id, "carol", "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for _, a := range alerts {
		stored, err := f.store.GetAlert(f.ctx, a.ID)
		require.NoError(t, err)
		assert.True(t, stored.Read, "alert %s lost its read flag", a.ID)
		assert.True(t, stored.Dismissed, "alert %s lost its dismissed flag", a.ID)
	}
}
