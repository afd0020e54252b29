package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.EventIngested("LOITERING")
	m.EventIngested("LOITERING")
	m.IngestFailed("validation_error")
	m.MirrorPush("delete", "error")
	m.SubscribersChanged(3)
	m.NotificationPublished("heartbeat")
	m.SubscriberEvicted()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsIngested.WithLabelValues("LOITERING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ingestFailures.WithLabelValues("validation_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mirrorPushes.WithLabelValues("delete", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.subscribers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("heartbeat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evictions))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.EventIngested("LOITERING")
		m.IngestFailed("store_error")
		m.MirrorPush("create", "ok")
		m.SubscribersChanged(1)
		m.NotificationPublished("new-alert")
		m.SubscriberEvicted()
	})
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.EventIngested("RESTRICTED_ENTRY")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `sentryline_events_ingested_total{event_type="RESTRICTED_ENTRY"} 1`))
}
