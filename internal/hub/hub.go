// Package hub fans notifications out to every connected subscriber.
package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"sentryline/internal/logger"
)

// Notification types. Every type is delivered to every subscriber.
const (
	TypeNewAlert          = "new-alert"
	TypeStatsRefresh      = "stats-refresh"
	TypeZoneCreated       = "zone-created"
	TypeZoneUpdated       = "zone-updated"
	TypeZoneDeleted       = "zone-deleted"
	TypeEventAcknowledged = "event-acknowledged"
	TypeAlertRead         = "alert-read"
	TypeAlertDismissed    = "alert-dismissed"
	TypeAllAlertsRead     = "all-alerts-read"
	TypeHeartbeat         = "heartbeat"
	TypeSubscriberCount   = "subscriber-count"
)

// Notification is one message on the broadcast stream.
type Notification struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Publisher is the producer-side view of the hub.
type Publisher interface {
	Publish(typ string, data interface{})
}

// Journal records every published notification.
type Journal interface {
	WriteNotification(n Notification) error
	Close() error
}

// Observer receives hub counters. Implemented by internal/metrics.
type Observer interface {
	SubscribersChanged(n int)
	NotificationPublished(typ string)
	SubscriberEvicted()
}

// Config configures the hub.
type Config struct {
	HeartbeatInterval time.Duration
	BufferSize        int
	HealthCheck       func() bool
	Journal           Journal
	Observer          Observer
}

// Hub owns the subscriber set and the heartbeat timer.
type Hub struct {
	cfg Config

	// pubMu serializes Publish so all subscribers see one global order.
	pubMu sync.Mutex
	mu    sync.RWMutex
	subs  map[string]*Subscriber

	now     func() time.Time
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// New creates a hub. Call Start to run the heartbeat.
func New(cfg Config) *Hub {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	return &Hub{
		cfg:  cfg,
		subs: make(map[string]*Subscriber),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the heartbeat loop.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	stop := make(chan struct{})
	h.stopCh = stop
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.heartbeatLoop(stop)
	}()
	logger.Infof("Broadcast hub started: heartbeat=%s buffer=%d", h.cfg.HeartbeatInterval, h.cfg.BufferSize)
}

// Stop halts the heartbeat, disconnects every subscriber and closes the journal.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.started {
		close(h.stopCh)
		h.started = false
	}
	subs := h.subs
	h.subs = make(map[string]*Subscriber)
	h.mu.Unlock()

	h.wg.Wait()
	for _, sub := range subs {
		sub.close()
	}
	if h.cfg.Journal != nil {
		if err := h.cfg.Journal.Close(); err != nil {
			logger.Errorf("Failed to close notification journal: %v", err)
		}
	}
	h.observeSubscribers(0)
	logger.Infof("Broadcast hub stopped")
}

// Connect registers a new subscriber and announces the new count.
func (h *Hub) Connect() *Subscriber {
	sub := newSubscriber(uuid.NewString(), h.cfg.BufferSize)

	h.mu.Lock()
	h.subs[sub.id] = sub
	count := len(h.subs)
	h.mu.Unlock()

	logger.Debugf("Subscriber connected: id=%s total=%d", sub.id, count)
	h.observeSubscribers(count)
	h.Publish(TypeSubscriberCount, map[string]int{"count": count})
	return sub
}

// Disconnect removes a subscriber and announces the new count. Unknown or
// already removed subscribers are ignored.
func (h *Hub) Disconnect(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	if _, ok := h.subs[sub.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subs, sub.id)
	count := len(h.subs)
	h.mu.Unlock()

	sub.close()
	logger.Debugf("Subscriber disconnected: id=%s total=%d", sub.id, count)
	h.observeSubscribers(count)
	h.Publish(TypeSubscriberCount, map[string]int{"count": count})
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish delivers a notification to every connected subscriber without
// blocking. A subscriber whose buffer is full is evicted.
func (h *Hub) Publish(typ string, data interface{}) {
	n := Notification{Type: typ, Data: data, Timestamp: h.now()}

	h.pubMu.Lock()
	h.mu.RLock()
	var evicted []*Subscriber
	for _, sub := range h.subs {
		if !sub.offer(n) {
			evicted = append(evicted, sub)
		}
	}
	h.mu.RUnlock()

	if h.cfg.Journal != nil {
		if err := h.cfg.Journal.WriteNotification(n); err != nil {
			logger.Warnf("Failed to journal notification %s: %v", typ, err)
		}
	}
	h.pubMu.Unlock()

	if h.cfg.Observer != nil {
		h.cfg.Observer.NotificationPublished(typ)
	}
	for _, sub := range evicted {
		logger.Warnf("Evicting slow subscriber: id=%s buffer=%d", sub.id, h.cfg.BufferSize)
		if h.cfg.Observer != nil {
			h.cfg.Observer.SubscriberEvicted()
		}
		h.Disconnect(sub)
	}
}

func (h *Hub) heartbeatLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.Heartbeat()
		}
	}
}

// Heartbeat publishes one liveness notification.
func (h *Hub) Heartbeat() {
	healthy := true
	if h.cfg.HealthCheck != nil {
		healthy = h.cfg.HealthCheck()
	}
	h.Publish(TypeHeartbeat, map[string]interface{}{
		"timestamp":   h.now(),
		"healthy":     healthy,
		"subscribers": h.Count(),
	})
}

func (h *Hub) observeSubscribers(n int) {
	if h.cfg.Observer != nil {
		h.cfg.Observer.SubscribersChanged(n)
	}
}
