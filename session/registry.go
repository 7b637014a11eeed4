package session

import "sync"

// Registry is the only table of live sessions. A removed session stays in draining until its
// Stop returns, so a Start racing that Stop still waits for the old relay to exit.
type Registry struct {
	mu       sync.RWMutex
	m        map[ID]*Session
	draining map[ID]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{m: make(map[ID]*Session), draining: make(map[ID]*Session)}
}

// Get returns the session registered under id.
func (r *Registry) Get(id ID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.m[id]
	return s, ok
}

// Swap registers s under id and returns the session it replaced, if any. s records the replaced
// session before it becomes visible so that stopping s also stops it.
func (r *Registry) Swap(id ID, s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.m[id]
	s.prev = prev
	if prev == nil {
		s.prev = r.draining[id]
	}
	r.m[id] = s
	return prev
}

// Remove unregisters id and returns what was registered. The session is held as draining until
// Drained is called for it.
func (r *Registry) Remove(id ID) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.m[id]
	delete(r.m, id)
	if s != nil {
		r.draining[id] = s
	}
	return s
}

// Drained forgets s once its Stop has returned.
func (r *Registry) Drained(id ID, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draining[id] == s {
		delete(r.draining, id)
	}
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

// Drain unregisters and returns every session.
func (r *Registry) Drain() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.m))
	for id, s := range r.m {
		out = append(out, s)
		delete(r.m, id)
	}
	return out
}
