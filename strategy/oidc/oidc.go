package oidc

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/jonwraymond/authflow/auth"
	"github.com/jonwraymond/authflow/observe"
	"github.com/jonwraymond/authflow/session"
)

// Name is the default registry key.
const Name = "oidc"

// DefaultStateTTL bounds the time between starting a login and its callback.
const DefaultStateTTL = 10 * time.Minute

// Config configures the relying party.
type Config struct {
	// Issuer is the provider's issuer URL.
	Issuer string `yaml:"issuer"`

	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// RedirectURL is this application's callback URL registered with the provider.
	RedirectURL string `yaml:"redirect_url"`

	// Scopes requested in addition to "openid".
	// Default: openid, profile, email
	Scopes []string `yaml:"scopes"`

	// GroupsClaim names the claim holding group memberships.
	GroupsClaim string `yaml:"groups_claim"`

	// AllowedGroups, when set, requires membership in at least one group.
	AllowedGroups []string `yaml:"allowed_groups"`

	// StateTTL bounds the login round trip.
	// Default: 10 minutes
	StateTTL time.Duration `yaml:"state_ttl"`
}

// Validate checks required fields.
func (c Config) Validate() error {
	switch {
	case c.Issuer == "":
		return ErrMissingIssuer
	case c.ClientID == "":
		return ErrMissingClientID
	case c.RedirectURL == "":
		return ErrMissingRedirectURL
	case len(c.AllowedGroups) > 0 && c.GroupsClaim == "":
		return ErrMissingGroupsClaim
	}
	return nil
}

// Mapper converts verified id_token claims into a principal.
type Mapper[U any] func(claims map[string]any, token *oidc.IDToken) (U, error)

// Option configures a Strategy.
type Option func(*options)

type options struct {
	name       string
	logger     observe.Logger
	httpClient *http.Client
	now        func() time.Time
}

// WithName overrides the strategy name. The name also prefixes the session
// keys holding the login state.
// Default: "oidc"
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger for rejected callbacks.
func WithLogger(l observe.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHTTPClient sets the client used for discovery and code exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// Strategy runs the OpenID Connect authorization-code flow.
type Strategy[U any] struct {
	config   Config
	oauth2   *oauth2.Config
	verifier *oidc.IDTokenVerifier
	mapper   Mapper[U]
	allowed  map[string]struct{}
	opts     options
}

// New creates a strategy from an explicit endpoint and verifier.
func New[U any](config Config, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier, mapper Mapper[U], opts ...Option) (*Strategy[U], error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if verifier == nil {
		return nil, ErrNilVerifier
	}
	if mapper == nil {
		return nil, ErrNilMapper
	}
	if config.StateTTL <= 0 {
		config.StateTTL = DefaultStateTTL
	}

	o := options{name: Name, logger: observe.NopLogger(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	allowed := make(map[string]struct{}, len(config.AllowedGroups))
	for _, g := range config.AllowedGroups {
		if g = strings.TrimSpace(g); g != "" {
			allowed[g] = struct{}{}
		}
	}

	return &Strategy[U]{
		config: config,
		oauth2: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       normalizeScopes(config.Scopes),
			Endpoint:     endpoint,
		},
		verifier: verifier,
		mapper:   mapper,
		allowed:  allowed,
		opts:     o,
	}, nil
}

// NewFromDiscovery creates a strategy from the provider's discovery document.
func NewFromDiscovery[U any](ctx context.Context, config Config, mapper Mapper[U], opts ...Option) (*Strategy[U], error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient != nil {
		ctx = oidc.ClientContext(ctx, o.httpClient)
	}
	provider, err := oidc.NewProvider(ctx, config.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc: discovery: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: config.ClientID})
	return New(config, provider.Endpoint(), verifier, mapper, opts...)
}

// NewIdentity creates a discovery-based strategy producing *auth.Identity.
func NewIdentity(ctx context.Context, config Config, opts ...Option) (*Strategy[*auth.Identity], error) {
	return NewFromDiscovery(ctx, config, IdentityMapper(config.GroupsClaim), opts...)
}

// Name returns the strategy name.
func (s *Strategy[U]) Name() string {
	return s.opts.name
}

func (s *Strategy[U]) stateKey() string   { return s.opts.name + ":state" }
func (s *Strategy[U]) nonceKey() string   { return s.opts.name + ":nonce" }
func (s *Strategy[U]) expiresKey() string { return s.opts.name + ":expires" }

// Authenticate starts a login or completes a callback, depending on the
// request's query parameters.
func (s *Strategy[U]) Authenticate(ctx context.Context, r *http.Request, store session.Store, opts auth.StrategyOptions) (auth.Outcome[U], error) {
	sess, err := auth.LoadSession(ctx, store, r)
	if err != nil {
		return auth.Outcome[U]{}, fmt.Errorf("oidc: load session: %w", err)
	}

	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		s.clearState(sess)
		msg := providerErr
		if desc := query.Get("error_description"); desc != "" {
			msg = providerErr + ": " + desc
		}
		return s.fail(ctx, store, sess, opts, msg, nil)
	}
	if query.Get("code") == "" {
		return s.begin(ctx, store, sess)
	}
	return s.callback(ctx, r, store, sess, opts)
}

func (s *Strategy[U]) begin(ctx context.Context, store session.Store, sess *session.Session) (auth.Outcome[U], error) {
	state, err := randomToken()
	if err != nil {
		return auth.Outcome[U]{}, fmt.Errorf("oidc: generate state: %w", err)
	}
	nonce, err := randomToken()
	if err != nil {
		return auth.Outcome[U]{}, fmt.Errorf("oidc: generate nonce: %w", err)
	}

	sess.Set(s.stateKey(), state)
	sess.Set(s.nonceKey(), nonce)
	sess.Set(s.expiresKey(), s.opts.now().Add(s.config.StateTTL).UTC().Format(time.RFC3339))
	header, err := store.CommitSession(ctx, sess)
	if err != nil {
		return auth.Outcome[U]{}, fmt.Errorf("oidc: commit session: %w", err)
	}

	loginURL := s.oauth2.AuthCodeURL(state, oidc.Nonce(nonce))
	return auth.RedirectTo[U](loginURL, http.Header{"Set-Cookie": {header}}), nil
}

func (s *Strategy[U]) callback(ctx context.Context, r *http.Request, store session.Store, sess *session.Session, opts auth.StrategyOptions) (auth.Outcome[U], error) {
	query := r.URL.Query()
	expectedState, _ := sess.Get(s.stateKey())
	expectedNonce, _ := sess.Get(s.nonceKey())
	expires, _ := sess.Get(s.expiresKey())
	s.clearState(sess)

	state, _ := expectedState.(string)
	nonce, _ := expectedNonce.(string)
	if state == "" || nonce == "" {
		return s.fail(ctx, store, sess, opts, MsgMissingState, nil)
	}
	if deadline, err := time.Parse(time.RFC3339, fmt.Sprint(expires)); err != nil || s.opts.now().After(deadline) {
		return s.fail(ctx, store, sess, opts, MsgStateExpired, nil)
	}
	if subtle.ConstantTimeCompare([]byte(query.Get("state")), []byte(state)) != 1 {
		return s.fail(ctx, store, sess, opts, MsgInvalidState, nil)
	}

	if s.opts.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.opts.httpClient)
	}
	token, err := s.oauth2.Exchange(ctx, query.Get("code"))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return s.fail(ctx, store, sess, opts, MsgInvalidCode, err)
		}
		return auth.Outcome[U]{}, fmt.Errorf("oidc: exchange code: %w", err)
	}

	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		return s.fail(ctx, store, sess, opts, MsgMissingToken, nil)
	}
	idToken, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return s.fail(ctx, store, sess, opts, MsgInvalidToken, err)
	}
	if subtle.ConstantTimeCompare([]byte(idToken.Nonce), []byte(nonce)) != 1 {
		return s.fail(ctx, store, sess, opts, MsgInvalidNonce, nil)
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return s.fail(ctx, store, sess, opts, MsgInvalidToken, err)
	}
	if err := s.checkGroups(claims); err != nil {
		return s.fail(ctx, store, sess, opts, MsgForbidden, err)
	}
	principal, err := s.mapper(claims, idToken)
	if err != nil {
		return s.fail(ctx, store, sess, opts, MsgInvalidToken, err)
	}

	out, err := auth.Succeed(ctx, store, sess, opts, principal)
	if err != nil {
		return out, err
	}
	return s.commitCleared(ctx, store, sess, out)
}

func (s *Strategy[U]) clearState(sess *session.Session) {
	sess.Unset(s.stateKey())
	sess.Unset(s.nonceKey())
	sess.Unset(s.expiresKey())
}

func (s *Strategy[U]) fail(ctx context.Context, store session.Store, sess *session.Session, opts auth.StrategyOptions, msg string, cause error) (auth.Outcome[U], error) {
	fields := []observe.Field{
		{Key: "auth.strategy", Value: s.opts.name},
		{Key: "reason", Value: msg},
	}
	if cause != nil {
		fields = append(fields, observe.Field{Key: "error", Value: cause})
	}
	s.opts.logger.Info(ctx, "oidc callback rejected", fields...)
	out, err := auth.Fail[U](ctx, store, sess, opts, auth.NewAuthorizationError(msg, cause))
	if err != nil {
		return out, err
	}
	return s.commitCleared(ctx, store, sess, out)
}

// commitCleared persists the cleared state when out is not a redirect, which
// has already committed sess, and attaches the Set-Cookie header to out.
func (s *Strategy[U]) commitCleared(ctx context.Context, store session.Store, sess *session.Session, out auth.Outcome[U]) (auth.Outcome[U], error) {
	if out.Kind() == auth.KindRedirect {
		return out, nil
	}
	header, err := store.CommitSession(ctx, sess)
	if err != nil {
		return auth.Outcome[U]{}, fmt.Errorf("oidc: commit session: %w", err)
	}
	return out.WithHeader(http.Header{"Set-Cookie": {header}}), nil
}

func (s *Strategy[U]) checkGroups(claims map[string]any) error {
	if len(s.allowed) == 0 {
		return nil
	}
	raw, ok := claims[s.config.GroupsClaim]
	if !ok {
		return ErrGroupsClaimMissing
	}
	groups, err := extractGroups(raw)
	if err != nil {
		return err
	}
	for _, g := range groups {
		if _, ok := s.allowed[g]; ok {
			return nil
		}
	}
	return ErrGroupNotAllowed
}

// IdentityMapper maps standard OIDC claims onto *auth.Identity.
func IdentityMapper(groupsClaim string) Mapper[*auth.Identity] {
	return func(claims map[string]any, token *oidc.IDToken) (*auth.Identity, error) {
		if token.Subject == "" {
			return nil, ErrMissingSubject
		}
		id := &auth.Identity{
			Subject:   token.Subject,
			Method:    Name,
			Claims:    claims,
			ExpiresAt: token.Expiry,
			IssuedAt:  token.IssuedAt,
		}
		id.Email, _ = claims["email"].(string)
		id.Name, _ = claims["name"].(string)
		if groupsClaim != "" {
			id.Groups, _ = extractGroups(claims[groupsClaim])
		}
		return id, nil
	}
}

func extractGroups(value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		groups := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, ErrUnsupportedGroups
			}
			if s != "" {
				groups = append(groups, s)
			}
		}
		return groups, nil
	default:
		return nil, ErrUnsupportedGroups
	}
}

func normalizeScopes(scopes []string) []string {
	normalized := make([]string, 0, len(scopes)+1)
	for _, scope := range scopes {
		if scope = strings.TrimSpace(scope); scope != "" {
			normalized = append(normalized, scope)
		}
	}
	if len(normalized) == 0 {
		return []string{oidc.ScopeOpenID, "profile", "email"}
	}
	if !slices.Contains(normalized, oidc.ScopeOpenID) {
		normalized = append([]string{oidc.ScopeOpenID}, normalized...)
	}
	return normalized
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Ensure Strategy implements auth.Strategy
var _ auth.Strategy[*auth.Identity] = (*Strategy[*auth.Identity])(nil)
