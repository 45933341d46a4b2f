package session

import (
	"maps"
	"sync"
)

const flashPrefix = "__flash_"

// Session is the per-client key/value record handed out by a Store.
//
// A Session is a private copy: changes are only visible to other requests
// after the owning Store commits it.
type Session struct {
	mu   sync.Mutex
	id   string
	data map[string]any
}

// New creates a session with the given ID and a copy of data.
// An empty ID marks a session that has never been committed.
func New(id string, data map[string]any) *Session {
	s := &Session{id: id, data: make(map[string]any, len(data))}
	maps.Copy(s.data, data)
	return s
}

// ID returns the session identifier. Cookie-only sessions have no ID.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Get returns the value stored under key.
// A flashed value is returned once and then removed from the session.
func (s *Session) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fk := flashKey(key)
	if v, ok := s.data[fk]; ok {
		delete(s.data, fk)
		return v, true
	}
	v, ok := s.data[key]
	return v, ok
}

// Has reports whether key holds a value or a pending flash.
func (s *Session) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[flashKey(key)]; ok {
		return true
	}
	_, ok := s.data[key]
	return ok
}

// Set stores value under key.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
}

// Flash stores value under key until it is read once.
func (s *Session) Flash(key string, value any) {
	s.mu.Lock()
	s.data[flashKey(key)] = value
	s.mu.Unlock()
}

// Unset removes key and any pending flash for it. Idempotent.
func (s *Session) Unset(key string) {
	s.mu.Lock()
	delete(s.data, key)
	delete(s.data, flashKey(key))
	s.mu.Unlock()
}

// Data returns a shallow copy of the raw session contents, flash entries included.
func (s *Session) Data() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.data)
}

func (s *Session) setID(id string) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

func flashKey(key string) string {
	return flashPrefix + key + "__"
}
