package quiz

import (
	"log/slog"
	"sync"
	"time"
)

// Registry holds one Session per UI surface and evicts idle ones.
type Registry struct {
	synth *Synthesizer
	ttl   time.Duration

	mu       sync.Mutex
	sessions map[string]*entry
	done     chan struct{}
	once     sync.Once
}

type entry struct {
	session  *Session
	lastSeen time.Time
}

// NewRegistry creates a Registry. A positive ttl starts a sweeper that drops
// sessions idle for longer than ttl; call Close to stop it.
func NewRegistry(synth *Synthesizer, ttl time.Duration) *Registry {
	r := &Registry{
		synth:    synth,
		ttl:      ttl,
		sessions: make(map[string]*entry),
		done:     make(chan struct{}),
	}
	if ttl > 0 {
		go r.sweep()
	}
	return r
}

// Get returns the session for surface, creating an empty one if needed.
func (r *Registry) Get(surface string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[surface]
	if !ok {
		e = &entry{session: NewSession(r.synth)}
		r.sessions[surface] = e
	}
	e.lastSeen = time.Now()
	return e.session
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Evict drops sessions not touched since cutoff and returns how many were removed.
func (r *Registry) Evict(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

func (r *Registry) sweep() {
	interval := min(r.ttl, time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case now := <-ticker.C:
			if n := r.Evict(now.Add(-r.ttl)); n > 0 {
				slog.Debug("evicted idle quiz sessions", "count", n)
			}
		}
	}
}

// Close stops the sweeper.
func (r *Registry) Close() {
	r.once.Do(func() { close(r.done) })
}
