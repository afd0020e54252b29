package zones

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentryline/internal/apperr"
	"sentryline/internal/hub"
	"sentryline/internal/mirror"
	"sentryline/internal/store"
	"sentryline/pkg/models"
)

type pushed struct {
	op   mirror.Op
	id   string
	name string
}

type recordingPusher struct {
	mu    sync.Mutex
	out   []pushed
	delay time.Duration
}

func (p *recordingPusher) Push(ctx context.Context, op mirror.Op, z *models.Zone) {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = append(p.out, pushed{op: op, id: z.ID, name: z.Name})
}

func (p *recordingPusher) forZone(id string) []pushed {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []pushed
	for _, x := range p.out {
		if x.id == id {
			out = append(out, x)
		}
	}
	return out
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) Publish(typ string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, typ)
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.types...)
}

var square = []models.Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}}

func newRegistry(t *testing.T, pusher Pusher) (*Registry, *recordingPublisher) {
	t.Helper()
	s, err := store.OpenMemory(uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	pub := &recordingPublisher{}
	return NewRegistry(s, pusher, pub), pub
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func floatPtr(f float64) *float64 { return &f }

func TestCreateAppliesDefaults(t *testing.T) {
	pusher := &recordingPusher{}
	r, pub := newRegistry(t, pusher)
	ctx := context.Background()

	z, err := r.Create(ctx, CreateInput{Name: "  Lobby ", Polygon: square, CreatedBy: "alice"})
	require.NoError(t, err)
	r.Flush()

	assert.Equal(t, "Lobby", z.Name)
	assert.True(t, z.Active)
	assert.Equal(t, models.DefaultZoneColor, z.Color)
	assert.Equal(t, models.DefaultRiskMultiplier, z.RiskMultiplier)

	got, err := r.Get(ctx, z.ID)
	require.NoError(t, err)
	assert.Equal(t, square, []models.Point(got.Polygon))
	assert.Equal(t, "alice", got.CreatedBy)

	assert.Equal(t, []string{hub.TypeZoneCreated}, pub.published())
	assert.Equal(t, []pushed{{op: mirror.OpCreate, id: z.ID, name: "Lobby"}}, pusher.forZone(z.ID))
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		in   CreateInput
	}{
		{"empty name", CreateInput{Name: "   ", Polygon: square}},
		{"two points", CreateInput{Name: "Line", Polygon: square[:2]}},
		{"multiplier too small", CreateInput{Name: "Low", Polygon: square, RiskMultiplier: floatPtr(0.05)}},
		{"multiplier too large", CreateInput{Name: "High", Polygon: square, RiskMultiplier: floatPtr(3.5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pusher := &recordingPusher{}
			r, pub := newRegistry(t, pusher)

			_, err := r.Create(context.Background(), tt.in)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)

			r.Flush()
			assert.Empty(t, pub.published())
			assert.Empty(t, pusher.out)
		})
	}
}

func TestMultiplierBoundsAreInclusive(t *testing.T) {
	r, _ := newRegistry(t, &recordingPusher{})
	_, err := r.Create(context.Background(), CreateInput{Name: "Min", Polygon: square, RiskMultiplier: floatPtr(0.1)})
	assert.NoError(t, err)
	_, err = r.Create(context.Background(), CreateInput{Name: "Max", Polygon: square, RiskMultiplier: floatPtr(3.0)})
	assert.NoError(t, err)
}

func TestActiveNameIsUnique(t *testing.T) {
	r, _ := newRegistry(t, &recordingPusher{})
	ctx := context.Background()

	lobby, err := r.Create(ctx, CreateInput{Name: "Lobby", Polygon: square})
	require.NoError(t, err)

	_, err = r.Create(ctx, CreateInput{Name: "Lobby", Polygon: square})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = r.Deactivate(ctx, lobby.ID)
	require.NoError(t, err)

	again, err := r.Create(ctx, CreateInput{Name: "Lobby", Polygon: square})
	require.NoError(t, err)
	assert.NotEqual(t, lobby.ID, again.ID)

	// Reactivating the retired zone would collide with the new one.
	_, err = r.Update(ctx, lobby.ID, Patch{Active: boolPtr(true)})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	r.Flush()
}

func TestRenameConflict(t *testing.T) {
	r, _ := newRegistry(t, &recordingPusher{})
	ctx := context.Background()

	_, err := r.Create(ctx, CreateInput{Name: "Lobby", Polygon: square})
	require.NoError(t, err)
	vault, err := r.Create(ctx, CreateInput{Name: "Vault", Polygon: square})
	require.NoError(t, err)

	_, err = r.Update(ctx, vault.ID, Patch{Name: strPtr("Lobby")})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	// Keeping its own name is not a conflict.
	updated, err := r.Update(ctx, vault.ID, Patch{Name: strPtr("Vault"), Color: strPtr("#00FF00")})
	require.NoError(t, err)
	assert.Equal(t, "#00FF00", updated.Color)
	r.Flush()
}

func TestUpdateRejectsShortPolygon(t *testing.T) {
	r, _ := newRegistry(t, &recordingPusher{})
	ctx := context.Background()

	z, err := r.Create(ctx, CreateInput{Name: "Lobby", Polygon: square})
	require.NoError(t, err)

	_, err = r.Update(ctx, z.ID, Patch{Polygon: square[:2]})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	got, err := r.Get(ctx, z.ID)
	require.NoError(t, err)
	assert.Len(t, got.Polygon, 4)
	r.Flush()
}

func TestUpdatePushesByResultingState(t *testing.T) {
	pusher := &recordingPusher{}
	r, pub := newRegistry(t, pusher)
	ctx := context.Background()

	z, err := r.Create(ctx, CreateInput{Name: "Lobby", Polygon: square})
	require.NoError(t, err)
	_, err = r.Update(ctx, z.ID, Patch{Description: strPtr("front door")})
	require.NoError(t, err)
	_, err = r.Update(ctx, z.ID, Patch{Active: boolPtr(false)})
	require.NoError(t, err)
	_, err = r.Update(ctx, z.ID, Patch{Active: boolPtr(true)})
	require.NoError(t, err)
	r.Flush()

	ops := make([]mirror.Op, 0, 4)
	for _, p := range pusher.forZone(z.ID) {
		ops = append(ops, p.op)
	}
	assert.Equal(t, []mirror.Op{mirror.OpCreate, mirror.OpUpdate, mirror.OpDelete, mirror.OpUpdate}, ops)
	assert.Equal(t, []string{hub.TypeZoneCreated, hub.TypeZoneUpdated, hub.TypeZoneUpdated, hub.TypeZoneUpdated}, pub.published())
}

func TestSameZonePushesKeepMutationOrder(t *testing.T) {
	pusher := &recordingPusher{delay: 5 * time.Millisecond}
	r, _ := newRegistry(t, pusher)
	ctx := context.Background()

	z, err := r.Create(ctx, CreateInput{Name: "Lobby", Polygon: square})
	require.NoError(t, err)
	other, err := r.Create(ctx, CreateInput{Name: "Vault", Polygon: square})
	require.NoError(t, err)

	names := []string{"Lobby 2", "Lobby 3", "Lobby 4"}
	for _, name := range names {
		_, err := r.Update(ctx, z.ID, Patch{Name: strPtr(name)})
		require.NoError(t, err)
	}
	_, err = r.Deactivate(ctx, z.ID)
	require.NoError(t, err)
	r.Flush()

	got := pusher.forZone(z.ID)
	require.Len(t, got, 5)
	assert.Equal(t, mirror.OpCreate, got[0].op)
	assert.Equal(t, "Lobby", got[0].name)
	for i, name := range names {
		assert.Equal(t, mirror.OpUpdate, got[i+1].op)
		assert.Equal(t, name, got[i+1].name)
	}
	assert.Equal(t, mirror.OpDelete, got[4].op)
	assert.Len(t, pusher.forZone(other.ID), 1)
}

func TestDeactivateSucceedsWhenMirrorFails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "mirror down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := mirror.NewHTTPClient(mirror.Config{URL: srv.URL})
	require.NoError(t, err)

	s, err := store.OpenMemory(uuid.NewString())
	require.NoError(t, err)
	defer s.Close()

	pub := &recordingPublisher{}
	r := NewRegistry(s, mirror.NewSyncer(client, s, mirror.SyncerConfig{}), pub)
	ctx := context.Background()

	z, err := r.Create(ctx, CreateInput{Name: "Lobby", Polygon: square})
	require.NoError(t, err)

	gone, err := r.Deactivate(ctx, z.ID)
	require.NoError(t, err)
	assert.False(t, gone.Active)
	r.Flush()

	stored, err := s.GetZone(ctx, z.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, []string{hub.TypeZoneCreated, hub.TypeZoneDeleted}, pub.published())
}

func TestDeactivateInactiveZoneStillPushesDelete(t *testing.T) {
	pusher := &recordingPusher{}
	r, _ := newRegistry(t, pusher)
	ctx := context.Background()

	z, err := r.Create(ctx, CreateInput{Name: "Lobby", Polygon: square})
	require.NoError(t, err)
	_, err = r.Deactivate(ctx, z.ID)
	require.NoError(t, err)
	_, err = r.Deactivate(ctx, z.ID)
	require.NoError(t, err)
	r.Flush()

	got := pusher.forZone(z.ID)
	require.Len(t, got, 3)
	assert.Equal(t, mirror.OpDelete, got[1].op)
	assert.Equal(t, mirror.OpDelete, got[2].op)
}

func TestUnknownZoneIsNotFound(t *testing.T) {
	r, _ := newRegistry(t, &recordingPusher{})
	ctx := context.Background()

	_, err := r.Get(ctx, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = r.Update(ctx, "missing", Patch{Name: strPtr("x")})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = r.Deactivate(ctx, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestListActiveOnly(t *testing.T) {
	r, _ := newRegistry(t, &recordingPusher{})
	ctx := context.Background()

	a, err := r.Create(ctx, CreateInput{Name: "A", Polygon: square})
	require.NoError(t, err)
	_, err = r.Create(ctx, CreateInput{Name: "B", Polygon: square})
	require.NoError(t, err)
	_, err = r.Deactivate(ctx, a.ID)
	require.NoError(t, err)
	r.Flush()

	all, err := r.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := r.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "B", active[0].Name)
}
