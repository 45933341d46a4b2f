package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// KeyInfo describes a registered API key.
type KeyInfo struct {
	// ID identifies the key in logs and claims. It is not secret.
	ID string

	// Hash is the SHA-256 hex digest of the key.
	Hash string

	// Subject is the principal the key authenticates as.
	Subject string

	Groups []string

	// ExpiresAt is when the key stops working (zero = never).
	ExpiresAt time.Time

	// Metadata is copied into the identity's claims.
	Metadata map[string]any
}

// Store looks keys up by hash.
type Store interface {
	// Lookup returns the key with the given hash, or nil if there is none.
	Lookup(ctx context.Context, hash string) (*KeyInfo, error)
}

// HashKey returns the SHA-256 hex digest stored for key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]*KeyInfo // by hash
}

// NewMemoryStore creates a store holding keys.
func NewMemoryStore(keys ...*KeyInfo) (*MemoryStore, error) {
	s := &MemoryStore{keys: make(map[string]*KeyInfo, len(keys))}
	for _, k := range keys {
		if err := s.Add(k); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Lookup retrieves a key by its hash.
func (s *MemoryStore) Lookup(_ context.Context, hash string) (*KeyInfo, error) {
	s.mu.RLock()
	info := s.keys[hash]
	s.mu.RUnlock()
	if info == nil || subtle.ConstantTimeCompare([]byte(info.Hash), []byte(hash)) != 1 {
		return nil, nil
	}
	return info, nil
}

// Add registers a copy of info, replacing any key with the same hash.
func (s *MemoryStore) Add(info *KeyInfo) error {
	b, err := hex.DecodeString(info.Hash)
	if err != nil || len(b) != sha256.Size {
		return fmt.Errorf("%w: key %q", ErrInvalidHash, info.ID)
	}
	stored := *info
	stored.Hash = hex.EncodeToString(b)
	s.mu.Lock()
	s.keys[stored.Hash] = &stored
	s.mu.Unlock()
	return nil
}

// Remove deletes the key with the given hash.
func (s *MemoryStore) Remove(hash string) {
	s.mu.Lock()
	delete(s.keys, hash)
	s.mu.Unlock()
}

// IDs returns the registered key IDs, sorted.
func (s *MemoryStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.keys))
	for info := range maps.Values(s.keys) {
		ids = append(ids, info.ID)
	}
	slices.Sort(ids)
	return ids
}

var _ Store = (*MemoryStore)(nil)
