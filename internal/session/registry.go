package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/mcpfleet/gateway/internal/storage"
	"github.com/mcpfleet/gateway/pkg/logging"
)

const logSubsystem = "SessionService"

// persistKeyPrefix is the transport/streamable/<sessionId> key area.
const persistKeyPrefix = "transport/streamable/"

// Registry owns every attached Session in memory, and persists enough of
// each one through a storage.Repository for restoreSession to recover a
// streamable-HTTP session across a reconnect. A background Sweep evicts
// sessions untouched for longer than ttl.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	store    storage.Repository
	ttl      time.Duration
}

// NewRegistry constructs a Registry. store may be nil, in which case
// restoreSession can only recover sessions still resident in memory
// (e.g. single-process deployments that never restart).
func NewRegistry(store storage.Repository, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Registry{
		sessions: make(map[string]*Session),
		store:    store,
		ttl:      ttl,
	}
}

// Put inserts or replaces s, persisting it for restoration.
func (r *Registry) Put(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	if r.store != nil {
		r.store.Save(persistKeyPrefix+s.ID, marshalSession(s), r.ttl)
	}
}

// Get returns the in-memory session for id, without consulting storage.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Touch updates a session's last-seen time, keeping its TTL window alive.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		s.LastSeen = time.Now()
	}
	r.mu.Unlock()

	if ok && r.store != nil {
		r.store.Save(persistKeyPrefix+id, marshalSession(s), r.ttl)
	}
}

// Restore recovers a session by id, first from memory, falling back to
// the persisted record (re-parsing its tag expression) if present.
// Restoration never regenerates the session id.
func (r *Registry) Restore(id string) (*Session, error) {
	if s, ok := r.Get(id); ok {
		return s, nil
	}

	if r.store == nil {
		return nil, fmt.Errorf("session %q not found", id)
	}
	raw, ok := r.store.Get(persistKeyPrefix + id)
	if !ok {
		return nil, fmt.Errorf("session %q not found", id)
	}
	s, err := unmarshalSession(raw)
	if err != nil {
		return nil, fmt.Errorf("session %q has a corrupt persisted record: %w", id, err)
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return s, nil
}

// Delete removes id from memory and storage.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()

	if r.store != nil {
		r.store.Delete(persistKeyPrefix + id)
	}
}

// All returns a snapshot of every in-memory session.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Sweep evicts sessions last seen more than ttl ago, returning how many
// were removed. Intended to run periodically, alongside the schema/filter
// cache sweeps.
func (r *Registry) Sweep() int {
	cutoff := time.Now().Add(-r.ttl)

	r.mu.Lock()
	var expired []string
	for id, s := range r.sessions {
		if s.LastSeen.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, id := range expired {
		if r.store != nil {
			r.store.Delete(persistKeyPrefix + id)
		}
		logging.Debug(logSubsystem, "evicted expired session %s", id)
	}
	return len(expired)
}
