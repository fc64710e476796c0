package handlers

import (
	"log"
	"sync"
	"time"

	"worldpay-checkout/services/bridge"
)

// Session is anything the bridge can deliver to under a stable id.
type Session interface {
	bridge.Target
	ID() string
}

// SessionGauge receives the live session count.
type SessionGauge interface {
	SetActiveSessions(n int)
}

type sessionEntry[T Session] struct {
	session  T
	relay    Relayer
	lastSeen time.Time
}

// Registry holds the live sessions of one kind and keeps the bridge listener's
// targets in step with it.
type Registry[T Session] struct {
	listener *bridge.Listener
	gauge    SessionGauge
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*sessionEntry[T]
}

func NewRegistry[T Session](listener *bridge.Listener, gauge SessionGauge) *Registry[T] {
	return &Registry[T]{
		listener: listener,
		gauge:    gauge,
		now:      time.Now,
		entries:  make(map[string]*sessionEntry[T]),
	}
}

// Add registers a session together with the relay for its backend login pages.
func (r *Registry[T]) Add(s T, relay Relayer) {
	r.mu.Lock()
	r.entries[s.ID()] = &sessionEntry[T]{session: s, relay: relay, lastSeen: r.now()}
	n := len(r.entries)
	r.mu.Unlock()

	r.listener.Register(s.ID(), s)
	r.report(n)
}

// Get returns the session and marks it as seen.
func (r *Registry[T]) Get(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		var zero T
		return zero, false
	}
	entry.lastSeen = r.now()
	return entry.session, true
}

// Relay returns the session's relay and marks the session as seen.
func (r *Registry[T]) Relay(id string) (Relayer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok || entry.relay == nil {
		return nil, false
	}
	entry.lastSeen = r.now()
	return entry.relay, true
}

func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep drops sessions idle for longer than maxIdle and returns how many went.
func (r *Registry[T]) Sweep(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	var expired []string
	for id, entry := range r.entries {
		if entry.lastSeen.Before(cutoff) {
			expired = append(expired, id)
			delete(r.entries, id)
		}
	}
	n := len(r.entries)
	r.mu.Unlock()

	for _, id := range expired {
		r.listener.Unregister(id)
		log.Printf("[Session: %s] Expired after %s idle", id, maxIdle)
	}
	if len(expired) > 0 {
		r.report(n)
	}
	return len(expired)
}

func (r *Registry[T]) report(n int) {
	if r.gauge != nil {
		r.gauge.SetActiveSessions(n)
	}
}
