package auth

import (
	"testing"
	"time"
)

func TestIdentity_HasGroup(t *testing.T) {
	id := &Identity{Subject: "alice", Groups: []string{"admins", "dev"}}
	if !id.HasGroup("dev") {
		t.Error("HasGroup(dev) = false, want true")
	}
	if id.HasGroup("ops") {
		t.Error("HasGroup(ops) = true, want false")
	}
	var nilID *Identity
	if nilID.HasGroup("dev") {
		t.Error("nil identity HasGroup should be false")
	}
}

func TestIdentity_IsExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		exp  time.Time
		want bool
	}{
		{name: "no expiry", want: false},
		{name: "future", exp: now.Add(time.Minute), want: false},
		{name: "past", exp: now.Add(-time.Minute), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := &Identity{ExpiresAt: tt.exp}
			if got := id.IsExpired(now); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIdentity_SurvivesCookieStore(t *testing.T) {
	store := newTestCookieStore(t)
	a := newTestAuthenticator[*Identity](t, store)
	want := &Identity{Subject: "alice", Groups: []string{"dev"}, Method: "form"}
	req := sessionRequest(t, store, map[string]any{"user": want})

	out, err := a.IsAuthenticated(req.Context(), req, NoRedirect())
	if err != nil {
		t.Fatalf("IsAuthenticated() error = %v", err)
	}
	got, ok := out.Principal()
	if !ok || got.Subject != "alice" || !got.HasGroup("dev") || got.Method != "form" {
		t.Errorf("Principal() = %+v, %v", got, ok)
	}
}
