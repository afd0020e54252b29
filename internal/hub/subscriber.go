package hub

import (
	"sort"
	"sync"
)

// Subscriber is one connected observer. Notifications arrive on C in publish
// order until the hub closes it.
type Subscriber struct {
	id string
	ch chan Notification

	mu       sync.Mutex
	closed   bool
	channels map[string]struct{}
}

func newSubscriber(id string, buffer int) *Subscriber {
	return &Subscriber{
		id:       id,
		ch:       make(chan Notification, buffer),
		channels: make(map[string]struct{}),
	}
}

// ID returns the subscriber id.
func (s *Subscriber) ID() string { return s.id }

// C returns the delivery channel. It is closed on disconnect or eviction.
func (s *Subscriber) C() <-chan Notification { return s.ch }

// Subscribe adds channel membership. Membership does not filter broadcasts.
func (s *Subscriber) Subscribe(channel string) {
	s.mu.Lock()
	s.channels[channel] = struct{}{}
	s.mu.Unlock()
}

// Unsubscribe removes channel membership.
func (s *Subscriber) Unsubscribe(channel string) {
	s.mu.Lock()
	delete(s.channels, channel)
	s.mu.Unlock()
}

// Channels returns the sorted channel memberships.
func (s *Subscriber) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.channels))
	for c := range s.channels {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// offer enqueues without blocking and reports false when the buffer is full.
// A closed subscriber accepts and drops.
func (s *Subscriber) offer(n Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- n:
		return true
	default:
		return false
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
