package bearer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jonwraymond/authflow/auth"
	"github.com/jonwraymond/authflow/observe"
	"github.com/jonwraymond/authflow/session"
)

// Name is the default registry key.
const Name = "bearer"

// Config configures token validation.
type Config struct {
	// Issuer is the expected iss claim (optional).
	Issuer string

	// Audience is the expected aud claim (optional).
	Audience string

	// HeaderName is the header carrying the token.
	// Default: "Authorization"
	HeaderName string

	// TokenPrefix precedes the token in the header.
	// Default: "Bearer "
	TokenPrefix string

	// Methods restricts the accepted signing algorithms (optional).
	Methods []string

	// Leeway tolerates clock skew on exp/nbf/iat.
	Leeway time.Duration

	// GroupsClaim names the claim mapped to Identity.Groups.
	// Default: "groups"
	GroupsClaim string
}

func (c Config) withDefaults() Config {
	if c.HeaderName == "" {
		c.HeaderName = "Authorization"
	}
	if c.TokenPrefix == "" {
		c.TokenPrefix = "Bearer "
	}
	if c.GroupsClaim == "" {
		c.GroupsClaim = "groups"
	}
	return c
}

// Mapper converts validated claims into a principal.
type Mapper[U any] func(claims jwt.MapClaims) (U, error)

// Option configures a Strategy.
type Option func(*options)

type options struct {
	name   string
	logger observe.Logger
}

// WithName overrides the strategy name.
// Default: "bearer"
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger for rejected tokens.
func WithLogger(l observe.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Strategy validates JWT bearer tokens.
type Strategy[U any] struct {
	config Config
	keys   KeyProvider
	mapper Mapper[U]
	parser *jwt.Parser
	opts   options
}

// New creates a bearer strategy mapping claims with mapper.
func New[U any](config Config, keys KeyProvider, mapper Mapper[U], opts ...Option) (*Strategy[U], error) {
	if keys == nil {
		return nil, ErrNilKeyProvider
	}
	if mapper == nil {
		return nil, ErrNilMapper
	}
	config = config.withDefaults()

	o := options{name: Name, logger: observe.NopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	parserOpts := []jwt.ParserOption{jwt.WithLeeway(config.Leeway)}
	if config.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(config.Audience))
	}
	if len(config.Methods) > 0 {
		parserOpts = append(parserOpts, jwt.WithValidMethods(config.Methods))
	}

	return &Strategy[U]{
		config: config,
		keys:   keys,
		mapper: mapper,
		parser: jwt.NewParser(parserOpts...),
		opts:   o,
	}, nil
}

// NewIdentity creates a bearer strategy producing *auth.Identity.
func NewIdentity(config Config, keys KeyProvider, opts ...Option) (*Strategy[*auth.Identity], error) {
	config = config.withDefaults()
	return New(config, keys, IdentityMapper(config.GroupsClaim), opts...)
}

// Name returns the strategy name.
func (s *Strategy[U]) Name() string {
	return s.opts.name
}

// Authenticate validates the request's bearer token.
func (s *Strategy[U]) Authenticate(ctx context.Context, r *http.Request, store session.Store, opts auth.StrategyOptions) (auth.Outcome[U], error) {
	raw, ok := s.token(r)
	if !ok {
		return s.fail(ctx, r, store, opts, MsgMissingToken, nil)
	}

	var keyErr error
	token, err := s.parser.Parse(raw, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, err := s.keys.GetKey(ctx, kid)
		keyErr = err
		return key, err
	})
	if keyErr != nil && !errors.Is(keyErr, ErrKeyNotFound) {
		return auth.Outcome[U]{}, fmt.Errorf("bearer: resolve key: %w", keyErr)
	}
	if err != nil {
		s.opts.logger.Info(ctx, "token rejected",
			observe.Field{Key: "auth.strategy", Value: s.opts.name},
			observe.Field{Key: "reason", Value: err},
		)
		if errors.Is(err, jwt.ErrTokenExpired) {
			return s.fail(ctx, r, store, opts, MsgTokenExpired, err)
		}
		return s.fail(ctx, r, store, opts, MsgInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return s.fail(ctx, r, store, opts, MsgInvalidToken, nil)
	}
	principal, err := s.mapper(claims)
	if err != nil {
		return s.fail(ctx, r, store, opts, MsgInvalidToken, err)
	}

	if _, redirect := opts.SuccessRedirect(); !redirect {
		return auth.Authenticated(principal), nil
	}
	sess, err := auth.LoadSession(ctx, store, r)
	if err != nil {
		return auth.Outcome[U]{}, fmt.Errorf("bearer: load session: %w", err)
	}
	return auth.Succeed(ctx, store, sess, opts, principal)
}

// Check delegates to the key provider when it implements auth.Checker.
func (s *Strategy[U]) Check(ctx context.Context) error {
	if c, ok := s.keys.(auth.Checker); ok {
		return c.Check(ctx)
	}
	return nil
}

func (s *Strategy[U]) token(r *http.Request) (string, bool) {
	header := r.Header.Get(s.config.HeaderName)
	if header == "" {
		return "", false
	}
	if len(header) < len(s.config.TokenPrefix) || !strings.EqualFold(header[:len(s.config.TokenPrefix)], s.config.TokenPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(s.config.TokenPrefix):])
	return token, token != ""
}

func (s *Strategy[U]) fail(ctx context.Context, r *http.Request, store session.Store, opts auth.StrategyOptions, msg string, cause error) (auth.Outcome[U], error) {
	reason := auth.NewAuthorizationError(msg, cause)
	if _, redirect := opts.FailureRedirect(); !redirect {
		return auth.Failed[U](reason), nil
	}
	sess, err := auth.LoadSession(ctx, store, r)
	if err != nil {
		return auth.Outcome[U]{}, fmt.Errorf("bearer: load session: %w", err)
	}
	return auth.Fail[U](ctx, store, sess, opts, reason)
}

// IdentityMapper maps standard claims onto *auth.Identity. groupsClaim may
// hold a string array or a space separated string.
func IdentityMapper(groupsClaim string) Mapper[*auth.Identity] {
	return func(claims jwt.MapClaims) (*auth.Identity, error) {
		sub, _ := claims.GetSubject()
		if sub == "" {
			return nil, ErrMissingSubject
		}
		id := &auth.Identity{
			Subject: sub,
			Method:  Name,
			Claims:  make(map[string]any, len(claims)),
		}
		for k, v := range claims {
			id.Claims[k] = v
		}
		id.Email, _ = claims["email"].(string)
		id.Name, _ = claims["name"].(string)
		id.Groups = stringList(claims[groupsClaim])
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			id.ExpiresAt = exp.Time
		}
		if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
			id.IssuedAt = iat.Time
		}
		return id, nil
	}
}

func stringList(v any) []string {
	switch v := v.(type) {
	case string:
		return strings.Fields(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}

var (
	_ auth.Strategy[*auth.Identity] = (*Strategy[*auth.Identity])(nil)
	_ auth.Checker                  = (*Strategy[*auth.Identity])(nil)
	_ auth.Checker                  = (*JWKSKeyProvider)(nil)
)
