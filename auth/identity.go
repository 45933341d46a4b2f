package auth

import (
	"slices"
	"time"
)

// Identity is the principal produced by the bundled strategies.
type Identity struct {
	// Subject uniquely identifies the principal (username, sub claim).
	Subject string `json:"sub"`

	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`

	// Groups are the principal's group or role memberships.
	Groups []string `json:"groups,omitempty"`

	// Method names the strategy type that produced the identity.
	Method string `json:"method"`

	// Claims holds extra attributes from the credential.
	Claims map[string]any `json:"claims,omitempty"`

	ExpiresAt time.Time `json:"exp,omitzero"`
	IssuedAt  time.Time `json:"iat,omitzero"`
}

// HasGroup reports whether the identity belongs to group.
func (i *Identity) HasGroup(group string) bool {
	return i != nil && slices.Contains(i.Groups, group)
}

// IsExpired reports whether ExpiresAt has passed. A zero ExpiresAt never expires.
func (i *Identity) IsExpired(now time.Time) bool {
	return i != nil && !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}
