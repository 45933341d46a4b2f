package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// DefaultTTL is the server-side lifetime of a MemoryStore session.
const DefaultTTL = 24 * time.Hour

// MemoryStore keeps session data in process memory. The cookie only carries
// the signed session ID.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	opts    CookieOptions
	signer  *signer
	now     func() time.Time
}

type memoryEntry struct {
	data      map[string]any
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory store. A zero ttl uses DefaultTTL.
func NewMemoryStore(opts CookieOptions, ttl time.Duration, keyPairs ...[]byte) (*MemoryStore, error) {
	if ttl < 0 {
		return nil, ErrInvalidTTL
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}
	opts = opts.withDefaults()
	s, err := newSigner(opts.Name, opts.MaxAge, keyPairs...)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		opts:    opts,
		signer:  s,
		now:     time.Now,
	}, nil
}

// GetSession returns a copy of the stored session, or a new empty session
// when the cookie is missing, invalid or expired.
func (m *MemoryStore) GetSession(_ context.Context, cookieHeader string) (*Session, error) {
	raw, ok := readCookie(cookieHeader, m.opts.Name)
	if !ok {
		return New("", nil), nil
	}
	var id string
	if err := m.signer.decode(raw, &id); err != nil || id == "" {
		return New("", nil), nil
	}

	m.mu.RLock()
	entry, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return New("", nil), nil
	}

	if m.now().After(entry.expiresAt) {
		// Expired - clean up lazily
		m.mu.Lock()
		if cur, ok := m.entries[id]; ok && cur == entry {
			delete(m.entries, id)
		}
		m.mu.Unlock()
		return New("", nil), nil
	}

	return New(id, entry.data), nil
}

// CommitSession stores a copy of s, assigning an ID on first commit, and
// refreshes its expiry.
func (m *MemoryStore) CommitSession(_ context.Context, s *Session) (string, error) {
	if s == nil {
		return "", ErrNilSession
	}
	id := s.ID()
	if id == "" {
		var err error
		id, err = newSessionID()
		if err != nil {
			return "", err
		}
		s.setID(id)
	}

	value, err := m.signer.encode(id)
	if err != nil {
		return "", err
	}

	entry := &memoryEntry{
		data:      s.Data(),
		expiresAt: m.now().Add(m.ttl),
	}
	m.mu.Lock()
	m.entries[id] = entry
	m.mu.Unlock()

	return m.opts.header(value), nil
}

// DestroySession removes the stored data. Idempotent.
func (m *MemoryStore) DestroySession(_ context.Context, s *Session) (string, error) {
	if s == nil {
		return "", ErrNilSession
	}
	if id := s.ID(); id != "" {
		m.mu.Lock()
		delete(m.entries, id)
		m.mu.Unlock()
	}
	return m.opts.expiredHeader(), nil
}

// Sweep removes every expired entry and returns how many were dropped.
func (m *MemoryStore) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, entry := range m.entries {
		if now.After(entry.expiresAt) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func newSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
