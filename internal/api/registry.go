package api

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/kickoff-planner/kickoff/internal/schedule"
)

// Registry holds the live planning sessions. Each session serializes its
// own operations; the registry only guards the map.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*schedule.Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uuid.UUID]*schedule.Session)}
}

func (r *Registry) Add(s *schedule.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

func (r *Registry) Get(id uuid.UUID) (*schedule.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Delete removes a session and reports whether it existed.
func (r *Registry) Delete(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// List returns sessions oldest first.
func (r *Registry) List() []*schedule.Session {
	r.mu.RLock()
	out := make([]*schedule.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().Before(out[j].CreatedAt()) })
	return out
}
