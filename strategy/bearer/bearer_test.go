package bearer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jonwraymond/authflow/auth"
	"github.com/jonwraymond/authflow/session"
)

var testSecret = []byte("test-secret-key-with-enough-bytes")

func newTestStore(t *testing.T) *session.MemoryStore {
	t.Helper()
	store, err := session.NewMemoryStore(session.CookieOptions{}, 0, []byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	return store
}

func signHS256(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return token
}

func bearerRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestNew_Validation(t *testing.T) {
	if _, err := NewIdentity(Config{}, nil); !errors.Is(err, ErrNilKeyProvider) {
		t.Errorf("nil keys error = %v, want ErrNilKeyProvider", err)
	}
	if _, err := New[string](Config{}, NewStaticKeyProvider(testSecret), nil); !errors.Is(err, ErrNilMapper) {
		t.Errorf("nil mapper error = %v, want ErrNilMapper", err)
	}
	s, err := NewIdentity(Config{}, NewStaticKeyProvider(testSecret))
	if err != nil {
		t.Fatalf("NewIdentity() error = %v", err)
	}
	if s.Name() != "bearer" {
		t.Errorf("Name() = %q, want bearer", s.Name())
	}
}

func TestStrategy_Authenticate(t *testing.T) {
	s, err := NewIdentity(Config{Issuer: "test-issuer", Audience: "test-audience"}, NewStaticKeyProvider(testSecret))
	if err != nil {
		t.Fatalf("NewIdentity() error = %v", err)
	}
	store := newTestStore(t)
	now := time.Now()

	valid := jwt.MapClaims{
		"sub":    "alice",
		"iss":    "test-issuer",
		"aud":    "test-audience",
		"email":  "alice@example.com",
		"groups": []string{"admins", "dev"},
		"exp":    now.Add(time.Hour).Unix(),
		"iat":    now.Unix(),
	}
	with := func(key string, value any) jwt.MapClaims {
		c := jwt.MapClaims{}
		for k, v := range valid {
			c[k] = v
		}
		if value == nil {
			delete(c, key)
		} else {
			c[key] = value
		}
		return c
	}
	otherKey, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, valid).SignedString([]byte("another-secret-entirely-different"))

	tests := []struct {
		name     string
		req      *http.Request
		wantKind auth.Kind
		wantMsg  string
	}{
		{name: "valid", req: bearerRequest(signHS256(t, valid)), wantKind: auth.KindAuthenticated},
		{name: "no header", req: bearerRequest(""), wantKind: auth.KindFailed, wantMsg: MsgMissingToken},
		{name: "expired", req: bearerRequest(signHS256(t, with("exp", now.Add(-time.Hour).Unix()))), wantKind: auth.KindFailed, wantMsg: MsgTokenExpired},
		{name: "wrong issuer", req: bearerRequest(signHS256(t, with("iss", "evil"))), wantKind: auth.KindFailed, wantMsg: MsgInvalidToken},
		{name: "wrong audience", req: bearerRequest(signHS256(t, with("aud", "other"))), wantKind: auth.KindFailed, wantMsg: MsgInvalidToken},
		{name: "missing subject", req: bearerRequest(signHS256(t, with("sub", nil))), wantKind: auth.KindFailed, wantMsg: MsgInvalidToken},
		{name: "bad signature", req: bearerRequest(otherKey), wantKind: auth.KindFailed, wantMsg: MsgInvalidToken},
		{name: "malformed", req: bearerRequest("not.a.jwt"), wantKind: auth.KindFailed, wantMsg: MsgInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := s.Authenticate(context.Background(), tt.req, store, auth.StrategyOptions{SessionKey: "user"})
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if out.Kind() != tt.wantKind {
				t.Fatalf("Kind() = %v, want %v (%v)", out.Kind(), tt.wantKind, out.Err())
			}
			if tt.wantMsg != "" && out.Failure().Message != tt.wantMsg {
				t.Errorf("Failure() = %q, want %q", out.Failure().Message, tt.wantMsg)
			}
		})
	}
}

func TestStrategy_IdentityMapping(t *testing.T) {
	s, _ := NewIdentity(Config{GroupsClaim: "roles"}, NewStaticKeyProvider(testSecret))
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signHS256(t, jwt.MapClaims{
		"sub":   "alice",
		"email": "alice@example.com",
		"name":  "Alice",
		"roles": "admin ops",
		"exp":   exp.Unix(),
	})

	out, err := s.Authenticate(context.Background(), bearerRequest(token), newTestStore(t), auth.StrategyOptions{SessionKey: "user"})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	id, ok := out.Principal()
	if !ok {
		t.Fatalf("Kind() = %v, want authenticated", out.Kind())
	}
	if id.Subject != "alice" || id.Email != "alice@example.com" || id.Name != "Alice" || id.Method != "bearer" {
		t.Errorf("identity = %+v", id)
	}
	if !id.HasGroup("admin") || !id.HasGroup("ops") {
		t.Errorf("Groups = %v, want [admin ops]", id.Groups)
	}
	if !id.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", id.ExpiresAt, exp)
	}
	if id.Claims["sub"] != "alice" {
		t.Errorf("Claims[sub] = %v", id.Claims["sub"])
	}
}

func TestStrategy_PrefixIsCaseInsensitive(t *testing.T) {
	s, _ := NewIdentity(Config{}, NewStaticKeyProvider(testSecret))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+signHS256(t, jwt.MapClaims{"sub": "alice"}))

	out, err := s.Authenticate(context.Background(), req, newTestStore(t), auth.StrategyOptions{SessionKey: "user"})
	if err != nil || out.Kind() != auth.KindAuthenticated {
		t.Errorf("Authenticate() = %v, %v", out.Kind(), err)
	}

	req.Header.Set("Authorization", "Basic YWxpY2U6c2VjcmV0")
	out, _ = s.Authenticate(context.Background(), req, newTestStore(t), auth.StrategyOptions{SessionKey: "user"})
	if out.Failure() == nil || out.Failure().Message != MsgMissingToken {
		t.Errorf("Basic auth header should be treated as missing token, got %v", out.Kind())
	}
}

func TestStrategy_ValidMethods(t *testing.T) {
	s, _ := NewIdentity(Config{Methods: []string{"RS256"}}, NewStaticKeyProvider(testSecret))
	out, err := s.Authenticate(context.Background(), bearerRequest(signHS256(t, jwt.MapClaims{"sub": "alice"})), newTestStore(t), auth.StrategyOptions{SessionKey: "user"})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if out.Kind() != auth.KindFailed {
		t.Errorf("Kind() = %v, want failed for disallowed alg", out.Kind())
	}
}

func TestStrategy_Redirects(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	s, _ := NewIdentity(Config{}, NewStaticKeyProvider(testSecret))
	a, err := auth.New[*auth.Identity](store)
	if err != nil {
		t.Fatalf("auth.New() error = %v", err)
	}
	a.Register(s)

	out, err := a.Authenticate(ctx, "bearer", bearerRequest(signHS256(t, jwt.MapClaims{"sub": "alice"})), auth.RedirectOnSuccess("/app"))
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	r, ok := out.Redirect()
	if !ok || r.URL != "/app" || r.Header.Get("Set-Cookie") == "" {
		t.Fatalf("Redirect() = %+v, %v", r, ok)
	}
	c, _ := http.ParseSetCookie(r.Header.Get("Set-Cookie"))
	next := httptest.NewRequest(http.MethodGet, "/app", nil)
	next.AddCookie(c)
	out, _ = a.IsAuthenticated(ctx, next, auth.NoRedirect())
	if id, ok := out.Principal(); !ok || id.Subject != "alice" {
		t.Errorf("IsAuthenticated() principal = %+v, %v", id, ok)
	}

	out, _ = a.Authenticate(ctx, "bearer", bearerRequest(""), auth.RedirectOnFailure("/denied"))
	if r, ok := out.Redirect(); !ok || r.URL != "/denied" {
		t.Errorf("failure Redirect() = %+v, %v", r, ok)
	}
}

type failingKeys struct{ err error }

func (f failingKeys) GetKey(context.Context, string) (any, error) { return nil, f.err }

func TestStrategy_KeyProviderErrors(t *testing.T) {
	token := signHS256(t, jwt.MapClaims{"sub": "alice"})
	store := newTestStore(t)

	boom := errors.New("jwks unreachable")
	s, _ := NewIdentity(Config{}, failingKeys{err: boom})
	if _, err := s.Authenticate(context.Background(), bearerRequest(token), store, auth.StrategyOptions{SessionKey: "user"}); !errors.Is(err, boom) {
		t.Errorf("Authenticate() error = %v, want %v", err, boom)
	}

	s, _ = NewIdentity(Config{}, failingKeys{err: ErrKeyNotFound})
	out, err := s.Authenticate(context.Background(), bearerRequest(token), store, auth.StrategyOptions{SessionKey: "user"})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if out.Kind() != auth.KindFailed {
		t.Errorf("unknown key Kind() = %v, want failed", out.Kind())
	}
}
