package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jonwraymond/authflow/observe"
	"github.com/jonwraymond/authflow/session"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type testUser struct {
	ID int `json:"id"`
}

func newTestStore(t *testing.T) *session.MemoryStore {
	t.Helper()
	store, err := session.NewMemoryStore(session.CookieOptions{}, 0, testKey)
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	return store
}

func newTestCookieStore(t *testing.T) *session.CookieStore {
	t.Helper()
	store, err := session.NewCookieStore(session.CookieOptions{}, testKey)
	if err != nil {
		t.Fatalf("NewCookieStore() error = %v", err)
	}
	return store
}

func newTestAuthenticator[U any](t *testing.T, store session.Store, opts ...Option) *Authenticator[U] {
	t.Helper()
	a, err := New[U](store, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

// cookieFor turns a Set-Cookie header value into a Cookie header value.
func cookieFor(t *testing.T, setCookie string) string {
	t.Helper()
	c, err := http.ParseSetCookie(setCookie)
	if err != nil {
		t.Fatalf("ParseSetCookie() error = %v", err)
	}
	return c.Name + "=" + c.Value
}

// sessionRequest commits data into a fresh session and returns a request
// carrying its cookie.
func sessionRequest(t *testing.T, store session.Store, data map[string]any) *http.Request {
	t.Helper()
	ctx := context.Background()
	sess := session.New("", data)
	header, err := store.CommitSession(ctx, sess)
	if err != nil {
		t.Fatalf("CommitSession() error = %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Cookie", cookieFor(t, header))
	return req
}

func staticStrategy[U any](name string, out Outcome[U], err error) Strategy[U] {
	return NewStrategyFunc(name, func(context.Context, *http.Request, session.Store, StrategyOptions) (Outcome[U], error) {
		return out, err
	})
}

func TestNew_Validation(t *testing.T) {
	if _, err := New[string](nil); !errors.Is(err, ErrNilStore) {
		t.Errorf("New(nil) error = %v, want ErrNilStore", err)
	}
	if _, err := New[string](newTestStore(t), WithSessionKey("")); !errors.Is(err, ErrInvalidSessionKey) {
		t.Errorf("New(empty key) error = %v, want ErrInvalidSessionKey", err)
	}

	a := newTestAuthenticator[string](t, newTestStore(t))
	if a.SessionKey() != DefaultSessionKey {
		t.Errorf("SessionKey() = %q, want %q", a.SessionKey(), DefaultSessionKey)
	}
	a = newTestAuthenticator[string](t, newTestStore(t), WithSessionKey("account"))
	if a.SessionKey() != "account" {
		t.Errorf("SessionKey() = %q, want account", a.SessionKey())
	}
}

func TestAuthenticator_RegisterOverwrites(t *testing.T) {
	a := newTestAuthenticator[string](t, newTestStore(t))
	first := staticStrategy("local", Authenticated("first"), nil)
	second := staticStrategy("local", Authenticated("second"), nil)

	a.Register(first).Register(second)

	if got := a.Strategies(); len(got) != 1 || got[0] != "local" {
		t.Fatalf("Strategies() = %v, want [local]", got)
	}
	out, err := a.Authenticate(context.Background(), "local", httptest.NewRequest(http.MethodGet, "/", nil), NoRedirect())
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if p, _ := out.Principal(); p != "second" {
		t.Errorf("principal = %q, want second", p)
	}
}

func TestAuthenticator_RegisterAs(t *testing.T) {
	a := newTestAuthenticator[string](t, newTestStore(t))
	s := staticStrategy("local", Authenticated("alice"), nil)

	a.RegisterAs("admin-login", s).Register(s)

	got := a.Strategies()
	want := []string{"admin-login", "local"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Strategies() = %v, want %v", got, want)
	}
	if _, ok := a.Strategy("admin-login"); !ok {
		t.Error("Strategy(admin-login) not found")
	}
}

func TestAuthenticator_RegisterNilIsIgnored(t *testing.T) {
	a := newTestAuthenticator[string](t, newTestStore(t))
	a.Register(nil).RegisterAs("x", nil)
	if got := a.Strategies(); len(got) != 0 {
		t.Errorf("Strategies() = %v, want empty", got)
	}
}

func TestAuthenticator_DeregisterUnknownIsNoop(t *testing.T) {
	a := newTestAuthenticator[string](t, newTestStore(t))
	a.Register(staticStrategy("local", Authenticated("alice"), nil))

	if a.Deregister("missing") != a {
		t.Error("Deregister() should return the authenticator")
	}
	if got := a.Strategies(); len(got) != 1 || got[0] != "local" {
		t.Errorf("Strategies() = %v, want [local]", got)
	}

	a.Deregister("local")
	if _, ok := a.Strategy("local"); ok {
		t.Error("Strategy(local) still registered after Deregister")
	}
}

func TestAuthenticator_StrategyNotFound(t *testing.T) {
	a := newTestAuthenticator[string](t, newTestStore(t))
	a.Register(staticStrategy("local", Authenticated("alice"), nil))

	requests := []*http.Request{
		httptest.NewRequest(http.MethodGet, "/", nil),
		httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("username=alice&password=x")),
		sessionRequest(t, a.Store(), map[string]any{"user": "alice"}),
	}
	for i, req := range requests {
		_, err := a.Authenticate(context.Background(), "missing", req, NoRedirect())
		var nf *StrategyNotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("request %d: error = %v, want *StrategyNotFoundError", i, err)
		}
		if nf.Name != "missing" {
			t.Errorf("request %d: Name = %q, want missing", i, nf.Name)
		}
	}
}

func TestAuthenticator_PassesOptions(t *testing.T) {
	a := newTestAuthenticator[string](t, newTestStore(t), WithSessionKey("account"))

	var got StrategyOptions
	a.Register(NewStrategyFunc("inspect", func(_ context.Context, _ *http.Request, _ session.Store, opts StrategyOptions) (Outcome[string], error) {
		got = opts
		return Unauthenticated[string](), nil
	}))

	policy := RedirectOnFailure("/login")
	if _, err := a.Authenticate(context.Background(), "inspect", httptest.NewRequest(http.MethodGet, "/", nil), policy); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if got.SessionKey != "account" || got.Redirect != policy {
		t.Errorf("options = %+v, want account/%v", got, policy)
	}
}

func TestAuthenticator_PropagatesStrategyResults(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator[string](t, newTestStore(t))
	reason := NewAuthorizationError("invalid code", nil)
	internal := errors.New("provider unreachable")

	a.Register(staticStrategy("oauth", Failed[string](reason), nil))
	a.Register(staticStrategy("broken", Outcome[string]{}, internal))
	a.Register(staticStrategy("sso", RedirectTo[string]("https://idp.example.com/authorize", nil), nil))

	out, err := a.Authenticate(ctx, "oauth", httptest.NewRequest(http.MethodGet, "/", nil), NoRedirect())
	if err != nil {
		t.Fatalf("Authenticate(oauth) error = %v", err)
	}
	if out.Failure() != reason {
		t.Errorf("Failure() = %v, want the strategy's own error", out.Failure())
	}
	if out.Err().Error() != "invalid code" {
		t.Errorf("Err() = %q, want invalid code", out.Err())
	}

	if _, err := a.Authenticate(ctx, "broken", httptest.NewRequest(http.MethodGet, "/", nil), NoRedirect()); err != internal {
		t.Errorf("Authenticate(broken) error = %v, want %v", err, internal)
	}

	out, _ = a.Authenticate(ctx, "sso", httptest.NewRequest(http.MethodGet, "/", nil), NoRedirect())
	if r, ok := out.Redirect(); !ok || r.URL != "https://idp.example.com/authorize" {
		t.Errorf("Redirect() = %+v, %v", r, ok)
	}
}

func TestAuthenticator_RequestIndependence(t *testing.T) {
	a := newTestAuthenticator[string](t, newTestStore(t))
	a.Register(NewStrategyFunc("reader", func(_ context.Context, r *http.Request, _ session.Store, _ StrategyOptions) (Outcome[string], error) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return Outcome[string]{}, err
		}
		r.Header.Set("X-Mutated", "yes")
		return Authenticated(string(body)), nil
	}))

	const payload = "username=alice&password=secret"
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(payload))

	out, err := a.Authenticate(context.Background(), "reader", req, NoRedirect())
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if p, _ := out.Principal(); p != payload {
		t.Errorf("strategy read %q, want %q", p, payload)
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("reading original body: %v", err)
	}
	if string(body) != payload {
		t.Errorf("original body = %q, want %q", body, payload)
	}
	if req.Header.Get("X-Mutated") != "" {
		t.Error("strategy header mutation leaked into the original request")
	}
}

// failingBody yields data and then fails with err.
type failingBody struct {
	r   io.Reader
	err error
}

func (b *failingBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err == io.EOF {
		return n, b.err
	}
	return n, err
}

func (b *failingBody) Close() error { return nil }

func TestAuthenticator_BodyReadErrorRestoresBody(t *testing.T) {
	a := newTestAuthenticator[string](t, newTestStore(t))
	var called bool
	a.Register(NewStrategyFunc("reader", func(context.Context, *http.Request, session.Store, StrategyOptions) (Outcome[string], error) {
		called = true
		return Authenticated("x"), nil
	}))

	errTruncated := errors.New("connection reset")
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.Body = &failingBody{r: strings.NewReader("username=alice"), err: errTruncated}

	if _, err := a.Authenticate(context.Background(), "reader", req, NoRedirect()); !errors.Is(err, errTruncated) {
		t.Fatalf("Authenticate() error = %v, want %v", err, errTruncated)
	}
	if called {
		t.Error("strategy ran despite the body read error")
	}

	body, err := io.ReadAll(req.Body)
	if string(body) != "username=alice" {
		t.Errorf("original body = %q, want %q", body, "username=alice")
	}
	if !errors.Is(err, errTruncated) {
		t.Errorf("reading original body error = %v, want %v", err, errTruncated)
	}
}

func TestAuthenticator_NilRequest(t *testing.T) {
	a := newTestAuthenticator[string](t, newTestStore(t))
	a.Register(staticStrategy("ok", Authenticated("alice"), nil))
	ctx := context.Background()

	if _, err := a.Authenticate(ctx, "ok", nil, NoRedirect()); !errors.Is(err, ErrNilRequest) {
		t.Errorf("Authenticate() error = %v, want %v", err, ErrNilRequest)
	}
	if _, err := a.IsAuthenticated(ctx, nil, NoRedirect()); !errors.Is(err, ErrNilRequest) {
		t.Errorf("IsAuthenticated() error = %v, want %v", err, ErrNilRequest)
	}
	if _, err := a.Logout(ctx, nil, ""); !errors.Is(err, ErrNilRequest) {
		t.Errorf("Logout() error = %v, want %v", err, ErrNilRequest)
	}
}

func TestAuthenticator_IsAuthenticatedTable(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	a := newTestAuthenticator[string](t, store)

	tests := []struct {
		name     string
		data     map[string]any
		policy   RedirectPolicy
		wantKind Kind
		wantURL  string
		wantUser string
	}{
		{name: "present, success redirect", data: map[string]any{"user": "alice"}, policy: RedirectOnSuccess("/dashboard"), wantKind: KindRedirect, wantURL: "/dashboard"},
		{name: "present, no redirect", data: map[string]any{"user": "alice"}, policy: NoRedirect(), wantKind: KindAuthenticated, wantUser: "alice"},
		{name: "present, failure redirect", data: map[string]any{"user": "alice"}, policy: RedirectOnFailure("/login"), wantKind: KindAuthenticated, wantUser: "alice"},
		{name: "absent, failure redirect", policy: RedirectOnFailure("/login"), wantKind: KindRedirect, wantURL: "/login"},
		{name: "absent, no redirect", policy: NoRedirect(), wantKind: KindUnauthenticated},
		{name: "absent, success redirect", policy: RedirectOnSuccess("/dashboard"), wantKind: KindUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := sessionRequest(t, store, tt.data)
			out, err := a.IsAuthenticated(ctx, req, tt.policy)
			if err != nil {
				t.Fatalf("IsAuthenticated() error = %v", err)
			}
			if out.Kind() != tt.wantKind {
				t.Fatalf("Kind() = %v, want %v", out.Kind(), tt.wantKind)
			}
			if r, ok := out.Redirect(); ok && r.URL != tt.wantURL {
				t.Errorf("redirect URL = %q, want %q", r.URL, tt.wantURL)
			}
			if p, ok := out.Principal(); ok && p != tt.wantUser {
				t.Errorf("principal = %q, want %q", p, tt.wantUser)
			}
		})
	}
}

func TestAuthenticator_IsAuthenticatedNoCookie(t *testing.T) {
	a := newTestAuthenticator[string](t, newTestStore(t))
	out, err := a.IsAuthenticated(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil), NoRedirect())
	if err != nil {
		t.Fatalf("IsAuthenticated() error = %v", err)
	}
	if out.Kind() != KindUnauthenticated {
		t.Errorf("Kind() = %v, want unauthenticated", out.Kind())
	}
}

func TestAuthenticator_SuccessRedirectKeepsPrincipal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	a := newTestAuthenticator[string](t, store)
	req := sessionRequest(t, store, map[string]any{"user": "alice"})

	out, err := a.IsAuthenticated(ctx, req, RedirectOnSuccess("/dashboard"))
	if err != nil {
		t.Fatalf("IsAuthenticated() error = %v", err)
	}
	if r, ok := out.Redirect(); !ok || r.URL != "/dashboard" {
		t.Fatalf("Redirect() = %+v, %v, want /dashboard", r, ok)
	}

	sess, err := LoadSession(ctx, store, req)
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	if v, ok := sess.Get("user"); !ok || v != "alice" {
		t.Errorf("session user = %v, %v, want alice", v, ok)
	}
}

func TestAuthenticator_DecodesSerializedPrincipal(t *testing.T) {
	store := newTestCookieStore(t)
	a := newTestAuthenticator[testUser](t, store)
	req := sessionRequest(t, store, map[string]any{"user": testUser{ID: 1}})

	out, err := a.IsAuthenticated(context.Background(), req, NoRedirect())
	if err != nil {
		t.Fatalf("IsAuthenticated() error = %v", err)
	}
	p, ok := out.Principal()
	if !ok || p.ID != 1 {
		t.Errorf("Principal() = %+v, %v, want {ID:1}", p, ok)
	}
}

func TestAuthenticator_UndecodablePrincipalIsAbsent(t *testing.T) {
	store := newTestCookieStore(t)
	a := newTestAuthenticator[testUser](t, store)
	req := sessionRequest(t, store, map[string]any{"user": "not an object"})

	out, err := a.IsAuthenticated(context.Background(), req, RedirectOnFailure("/login"))
	if err != nil {
		t.Fatalf("IsAuthenticated() error = %v", err)
	}
	if r, ok := out.Redirect(); !ok || r.URL != "/login" {
		t.Errorf("Redirect() = %+v, %v, want /login", r, ok)
	}
}

func TestAuthenticator_StrategyPersistsPrincipal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	a := newTestAuthenticator[string](t, store)
	a.Register(NewStrategyFunc("local", func(ctx context.Context, r *http.Request, store session.Store, opts StrategyOptions) (Outcome[string], error) {
		sess, err := LoadSession(ctx, store, r)
		if err != nil {
			return Outcome[string]{}, err
		}
		return Succeed(ctx, store, sess, opts, "alice")
	}))

	out, err := a.Authenticate(ctx, "local", httptest.NewRequest(http.MethodPost, "/login", nil), RedirectOnSuccess("/home"))
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	r, ok := out.Redirect()
	if !ok || r.URL != "/home" {
		t.Fatalf("Redirect() = %+v, %v, want /home", r, ok)
	}

	next := httptest.NewRequest(http.MethodGet, "/home", nil)
	next.Header.Set("Cookie", cookieFor(t, r.Header.Get("Set-Cookie")))
	out, err = a.IsAuthenticated(ctx, next, NoRedirect())
	if err != nil {
		t.Fatalf("IsAuthenticated() error = %v", err)
	}
	if p, ok := out.Principal(); !ok || p != "alice" {
		t.Errorf("Principal() = %q, %v, want alice", p, ok)
	}
}

func TestAuthenticator_FailFlashesError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	a := newTestAuthenticator[string](t, store)
	a.Register(NewStrategyFunc("local", func(ctx context.Context, r *http.Request, store session.Store, opts StrategyOptions) (Outcome[string], error) {
		sess, err := LoadSession(ctx, store, r)
		if err != nil {
			return Outcome[string]{}, err
		}
		return Fail[string](ctx, store, sess, opts, NewAuthorizationError("bad password", nil))
	}))

	out, err := a.Authenticate(ctx, "local", httptest.NewRequest(http.MethodPost, "/login", nil), RedirectOnFailure("/login"))
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	r, ok := out.Redirect()
	if !ok {
		t.Fatalf("Kind() = %v, want redirect", out.Kind())
	}

	next := httptest.NewRequest(http.MethodGet, "/login", nil)
	next.Header.Set("Cookie", cookieFor(t, r.Header.Get("Set-Cookie")))
	sess, err := LoadSession(ctx, store, next)
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	if msg, ok := sess.Get("user:error"); !ok || msg != "bad password" {
		t.Errorf("flashed error = %v, %v, want bad password", msg, ok)
	}
	if sess.Has("user:error") {
		t.Error("flash should be consumed after one read")
	}
}

func TestAuthenticator_Logout(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	a := newTestAuthenticator[string](t, store)
	req := sessionRequest(t, store, map[string]any{"user": "alice"})

	out, err := a.Logout(ctx, req, "")
	if err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	r, ok := out.Redirect()
	if !ok || r.URL != "/" {
		t.Fatalf("Redirect() = %+v, %v, want /", r, ok)
	}
	if r.Header.Get("Set-Cookie") == "" {
		t.Error("Logout should clear the session cookie")
	}

	after, err := a.IsAuthenticated(ctx, req, NoRedirect())
	if err != nil {
		t.Fatalf("IsAuthenticated() error = %v", err)
	}
	if after.Kind() != KindUnauthenticated {
		t.Errorf("Kind() after logout = %v, want unauthenticated", after.Kind())
	}
}

func TestAuthenticator_ConcurrentSessionIsolation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	a := newTestAuthenticator[string](t, store)

	const n = 64
	requests := make([]*http.Request, n)
	principals := make([]string, n)
	for i := range n {
		principals[i] = fmt.Sprintf("user-%d-%d", i, rand.IntN(1<<30))
		requests[i] = sessionRequest(t, store, map[string]any{"user": principals[i]})
	}

	var wg sync.WaitGroup
	errs := make(chan error, n*4)
	for round := range 4 {
		for i := range n {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				req := requests[i].Clone(ctx)
				out, err := a.IsAuthenticated(ctx, req, NoRedirect())
				if err != nil {
					errs <- err
					return
				}
				if p, _ := out.Principal(); p != principals[i] {
					errs <- fmt.Errorf("round %d session %d: got %q, want %q", round, i, p, principals[i])
				}
			}(i)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestAuthenticator_ConcurrentRegistry(t *testing.T) {
	a := newTestAuthenticator[string](t, newTestStore(t))
	a.Register(staticStrategy("local", Authenticated("alice"), nil))

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("s%d", i)
			a.Register(staticStrategy(name, Authenticated(name), nil))
			a.Deregister(name)
		}()
		go func() {
			defer wg.Done()
			out, err := a.Authenticate(context.Background(), "local", httptest.NewRequest(http.MethodGet, "/", nil), NoRedirect())
			if err != nil {
				t.Errorf("Authenticate() error = %v", err)
				return
			}
			if p, _ := out.Principal(); p != "alice" {
				t.Errorf("principal = %q, want alice", p)
			}
		}()
	}
	wg.Wait()

	if got := a.Strategies(); len(got) != 1 {
		t.Errorf("Strategies() = %v, want [local]", got)
	}
}

func TestAuthenticator_Instrumentation(t *testing.T) {
	var buf bytes.Buffer
	logger := observe.NewLoggerWithWriter("debug", &buf)
	a := newTestAuthenticator[string](t, newTestStore(t), WithInstrumentation(observe.NewInstrumentation(nil, nil, logger)))
	a.Register(staticStrategy("local", Authenticated("alice"), nil))

	if _, err := a.Authenticate(context.Background(), "local", httptest.NewRequest(http.MethodGet, "/", nil), NoRedirect()); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"auth.op":"authenticate"`, `"auth.strategy":"local"`, `"auth.outcome":"authenticated"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
}
