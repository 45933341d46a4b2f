package config

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/authflow/auth"
	"github.com/jonwraymond/authflow/observe"
	"github.com/jonwraymond/authflow/strategy/apikey"
	"github.com/jonwraymond/authflow/strategy/bearer"
	"github.com/jonwraymond/authflow/strategy/form"
	"github.com/jonwraymond/authflow/strategy/oidc"
)

// Deps are the shared collaborators handed to every Factory.
type Deps struct {
	Logger     observe.Logger
	HTTPClient *http.Client
}

func (d Deps) logger() observe.Logger {
	if d.Logger == nil {
		return observe.NopLogger()
	}
	return d.Logger
}

// Factory builds a strategy named name from its settings. settings is never
// nil; an absent settings block arrives as an empty node.
type Factory func(ctx context.Context, name string, settings *yaml.Node, deps Deps) (auth.Strategy[*auth.Identity], error)

// Factories maps strategy types to factories.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: registration rejects empty types, nil factories and duplicates.
type Factories struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewFactories creates an empty registry.
func NewFactories() *Factories {
	return &Factories{factories: make(map[string]Factory)}
}

// Register adds a factory for typ.
func (f *Factories) Register(typ string, factory Factory) error {
	if typ == "" || factory == nil {
		return ErrInvalidFactory
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.factories[typ]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateFactory, typ)
	}
	f.factories[typ] = factory
	return nil
}

// Lookup returns the factory registered for typ.
func (f *Factories) Lookup(typ string) (Factory, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	factory, ok := f.factories[typ]
	return factory, ok
}

// List returns the registered types in sorted order.
func (f *Factories) List() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.factories))
	for typ := range f.factories {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

// DefaultFactories returns a registry with the apikey, form, bearer and oidc
// types.
func DefaultFactories() *Factories {
	f := NewFactories()
	_ = f.Register(apikey.Name, APIKeyFactory)
	_ = f.Register(form.Name, FormFactory)
	_ = f.Register(bearer.Name, BearerFactory)
	_ = f.Register(oidc.Name, OIDCFactory)
	return f
}

// FormSettings configures a form strategy.
type FormSettings struct {
	// Users maps usernames to bcrypt or argon2 hashes.
	Users map[string]string `yaml:"users"`

	// HashAlgo is auto, bcrypt, argon2, argon2id or argon2i.
	// Default: auto
	HashAlgo string `yaml:"hash_algo"`

	UsernameField string `yaml:"username_field"`
	PasswordField string `yaml:"password_field"`

	// Throttle limits attempts per username. Disabled when both fields are
	// zero; otherwise both must be positive.
	Throttle struct {
		Rate  float64 `yaml:"rate"` // attempts refilled per second
		Burst int     `yaml:"burst"`
	} `yaml:"throttle"`
}

// FormFactory builds a form strategy over a fixed user table.
func FormFactory(_ context.Context, name string, settings *yaml.Node, deps Deps) (auth.Strategy[*auth.Identity], error) {
	var s FormSettings
	if err := decodeSettings(settings, &s); err != nil {
		return nil, err
	}
	verifier, err := form.NewPasswordVerifier(s.Users, s.HashAlgo)
	if err != nil {
		return nil, err
	}
	opts := []form.Option{
		form.WithName(name),
		form.WithFields(s.UsernameField, s.PasswordField),
		form.WithLogger(deps.logger()),
	}
	if s.Throttle.Burst != 0 || s.Throttle.Rate != 0 {
		if s.Throttle.Burst <= 0 || s.Throttle.Rate <= 0 {
			return nil, fmt.Errorf("%w: throttle rate and burst must be positive", ErrInvalidSettings)
		}
		opts = append(opts, form.WithThrottle(s.Throttle.Rate, s.Throttle.Burst))
	}
	return form.New(form.IdentityVerifier(verifier), opts...)
}

// BearerSettings configures a bearer strategy. Exactly one of Secret,
// PublicKey or JWKSURL must be set.
type BearerSettings struct {
	// Secret is an HMAC signing secret.
	Secret string `yaml:"secret"`

	// PublicKey is a PEM encoded RSA public key.
	PublicKey string `yaml:"public_key"`

	// JWKSURL is a JWKS endpoint serving RSA keys.
	JWKSURL         string        `yaml:"jwks_url"`
	JWKSCacheTTL    time.Duration `yaml:"jwks_cache_ttl"`
	JWKSMaxAttempts int           `yaml:"jwks_max_attempts"`
	JWKSRetryDelay  time.Duration `yaml:"jwks_retry_delay"`

	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	Methods     []string      `yaml:"methods"`
	Leeway      time.Duration `yaml:"leeway"`
	GroupsClaim string        `yaml:"groups_claim"`
	HeaderName  string        `yaml:"header_name"`
	TokenPrefix string        `yaml:"token_prefix"`
}

// BearerFactory builds a bearer strategy.
func BearerFactory(_ context.Context, name string, settings *yaml.Node, deps Deps) (auth.Strategy[*auth.Identity], error) {
	var s BearerSettings
	if err := decodeSettings(settings, &s); err != nil {
		return nil, err
	}
	keys, err := s.keyProvider(deps.HTTPClient)
	if err != nil {
		return nil, err
	}
	return bearer.NewIdentity(bearer.Config{
		Issuer:      s.Issuer,
		Audience:    s.Audience,
		HeaderName:  s.HeaderName,
		TokenPrefix: s.TokenPrefix,
		Methods:     s.Methods,
		Leeway:      s.Leeway,
		GroupsClaim: s.GroupsClaim,
	}, keys, bearer.WithName(name), bearer.WithLogger(deps.logger()))
}

func (s BearerSettings) keyProvider(client *http.Client) (bearer.KeyProvider, error) {
	set := 0
	for _, v := range []string{s.Secret, s.PublicKey, s.JWKSURL} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: exactly one of secret, public_key or jwks_url is required", ErrInvalidSettings)
	}

	switch {
	case s.Secret != "":
		return bearer.NewStaticKeyProvider([]byte(s.Secret)), nil
	case s.PublicKey != "":
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(s.PublicKey))
		if err != nil {
			return nil, fmt.Errorf("%w: public_key: %w", ErrInvalidSettings, err)
		}
		return bearer.NewStaticKeyProvider(key), nil
	default:
		return bearer.NewJWKSKeyProvider(bearer.JWKSConfig{
			URL:         s.JWKSURL,
			CacheTTL:    s.JWKSCacheTTL,
			HTTPClient:  client,
			MaxAttempts: s.JWKSMaxAttempts,
			RetryDelay:  s.JWKSRetryDelay,
		})
	}
}

// OIDCFactory builds an oidc strategy from the provider's discovery document.
func OIDCFactory(ctx context.Context, name string, settings *yaml.Node, deps Deps) (auth.Strategy[*auth.Identity], error) {
	var c oidc.Config
	if err := decodeSettings(settings, &c); err != nil {
		return nil, err
	}
	opts := []oidc.Option{oidc.WithName(name), oidc.WithLogger(deps.logger())}
	if deps.HTTPClient != nil {
		opts = append(opts, oidc.WithHTTPClient(deps.HTTPClient))
	}
	return oidc.NewIdentity(ctx, c, opts...)
}

// decodeSettings strictly decodes a settings node into dst.
// APIKeySettings configures an apikey strategy.
type APIKeySettings struct {
	// HeaderName is the header carrying the key.
	// Default: X-API-Key
	HeaderName string `yaml:"header_name"`

	Keys []APIKeyEntry `yaml:"keys"`
}

// APIKeyEntry registers one key. Exactly one of Hash or Key must be set; Key
// is usually a secretref and is hashed at build time.
type APIKeyEntry struct {
	ID        string         `yaml:"id"`
	Hash      string         `yaml:"hash"`
	Key       string         `yaml:"key"`
	Subject   string         `yaml:"subject"`
	Groups    []string       `yaml:"groups"`
	ExpiresAt time.Time      `yaml:"expires_at"`
	Metadata  map[string]any `yaml:"metadata"`
}

// APIKeyFactory builds an apikey strategy over a fixed key table.
func APIKeyFactory(_ context.Context, name string, settings *yaml.Node, deps Deps) (auth.Strategy[*auth.Identity], error) {
	var s APIKeySettings
	if err := decodeSettings(settings, &s); err != nil {
		return nil, err
	}
	if len(s.Keys) == 0 {
		return nil, fmt.Errorf("%w: at least one key is required", ErrInvalidSettings)
	}
	store, err := apikey.NewMemoryStore()
	if err != nil {
		return nil, err
	}
	for i, k := range s.Keys {
		if k.ID == "" || k.Subject == "" {
			return nil, fmt.Errorf("%w: keys[%d] needs id and subject", ErrInvalidSettings, i)
		}
		if (k.Hash == "") == (k.Key == "") {
			return nil, fmt.Errorf("%w: keys[%d] needs exactly one of hash or key", ErrInvalidSettings, i)
		}
		hash := k.Hash
		if k.Key != "" {
			hash = apikey.HashKey(k.Key)
		}
		err := store.Add(&apikey.KeyInfo{
			ID:        k.ID,
			Hash:      hash,
			Subject:   k.Subject,
			Groups:    k.Groups,
			ExpiresAt: k.ExpiresAt,
			Metadata:  k.Metadata,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
		}
	}
	return apikey.New(store,
		apikey.WithName(name),
		apikey.WithHeader(s.HeaderName),
		apikey.WithLogger(deps.logger()),
	)
}

func decodeSettings(settings *yaml.Node, dst any) error {
	if settings == nil || settings.Kind == 0 {
		return nil
	}
	if settings.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: settings must be a mapping (line %d)", ErrInvalidSettings, settings.Line)
	}
	raw, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.TrimPrefix(err.Error(), "yaml: "))
	}
	return nil
}
