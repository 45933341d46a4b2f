package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/authflow/auth"
	"github.com/jonwraymond/authflow/observe"
	"github.com/jonwraymond/authflow/session"
)

// Runtime is everything Build assembles from a Config.
type Runtime struct {
	Authenticator *auth.Authenticator[*auth.Identity]
	Store         session.Store

	// Observer is nil when observe.service_name is unset.
	Observer observe.Observer
}

// Shutdown flushes and stops the observer, if any.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil || r.Observer == nil {
		return nil
	}
	return r.Observer.Shutdown(ctx)
}

// Check runs every registered strategy that implements auth.Checker and
// returns their results by strategy name. A nil error means healthy.
func (r *Runtime) Check(ctx context.Context) map[string]error {
	results := make(map[string]error)
	for _, name := range r.Authenticator.Strategies() {
		s, ok := r.Authenticator.Strategy(name)
		if !ok {
			continue
		}
		if c, ok := s.(auth.Checker); ok {
			results[name] = c.Check(ctx)
		}
	}
	return results
}

// BuildOption configures Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	resolver   *SecretResolver
	logger     observe.Logger
	httpClient *http.Client
}

// WithSecretResolver sets the resolver for secretref values.
// Default: NewSecretResolver() (env and file providers)
func WithSecretResolver(r *SecretResolver) BuildOption {
	return func(o *buildOptions) { o.resolver = r }
}

// WithLogger sets the logger used when no observer is configured.
func WithLogger(l observe.Logger) BuildOption {
	return func(o *buildOptions) { o.logger = l }
}

// WithHTTPClient sets the client strategies use for discovery, key and token
// requests.
func WithHTTPClient(c *http.Client) BuildOption {
	return func(o *buildOptions) { o.httpClient = c }
}

// Build assembles a session store, optional observer and an authenticator
// with every configured strategy registered under its name. A nil factories
// uses DefaultFactories.
//
// Secret references in session secrets and strategy settings are resolved
// here; cfg itself is not modified.
func Build(ctx context.Context, cfg *Config, factories *Factories, opts ...BuildOption) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.resolver == nil {
		o.resolver = NewSecretResolver()
	}
	if factories == nil {
		factories = DefaultFactories()
	}

	store, err := buildStore(ctx, cfg.Session, o.resolver)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Store: store}
	inst := observe.NewInstrumentation(nil, nil, o.logger)
	if cfg.Observe.ServiceName != "" {
		obs, err := observe.NewObserver(ctx, cfg.Observe)
		if err != nil {
			return nil, fmt.Errorf("config: observe: %w", err)
		}
		rt.Observer = obs
		if inst, err = observe.FromObserver(obs); err != nil {
			return nil, rt.abort(ctx, fmt.Errorf("config: observe: %w", err))
		}
	}

	authOpts := []auth.Option{auth.WithInstrumentation(inst)}
	if cfg.Session.Key != "" {
		authOpts = append(authOpts, auth.WithSessionKey(cfg.Session.Key))
	}
	a, err := auth.New[*auth.Identity](store, authOpts...)
	if err != nil {
		return nil, rt.abort(ctx, err)
	}
	rt.Authenticator = a

	deps := Deps{Logger: inst.Logger(), HTTPClient: o.httpClient}
	for _, sc := range cfg.Strategies {
		s, err := buildStrategy(ctx, sc, factories, o.resolver, deps)
		if err != nil {
			return nil, rt.abort(ctx, &StrategyError{Name: sc.Name, Type: sc.Type, Err: err})
		}
		a.RegisterAs(sc.Name, s)
	}

	inst.Logger().Info(ctx, "authenticator ready",
		observe.Field{Key: "session.store", Value: storeName(cfg.Session.Store)},
		observe.Field{Key: "strategies", Value: a.Strategies()},
	)
	return rt, nil
}

// abort releases what Build created so far and returns err.
func (r *Runtime) abort(ctx context.Context, err error) error {
	if shutdownErr := r.Shutdown(ctx); shutdownErr != nil {
		return errors.Join(err, shutdownErr)
	}
	return err
}

func buildStore(ctx context.Context, sc SessionConfig, resolver *SecretResolver) (session.Store, error) {
	secrets := make([]string, len(sc.Secrets))
	for i, s := range sc.Secrets {
		v, err := resolver.Resolve(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("config: session.secrets[%d]: %w", i, err)
		}
		secrets[i] = v
	}
	keys, err := keyPairs(secrets)
	if err != nil {
		return nil, err
	}

	switch storeName(sc.Store) {
	case StoreMemory:
		return session.NewMemoryStore(sc.Cookie.options(), sc.TTL, keys...)
	default:
		return session.NewCookieStore(sc.Cookie.options(), keys...)
	}
}

func storeName(s string) string {
	if s == "" {
		return StoreCookie
	}
	return s
}

func buildStrategy(ctx context.Context, sc StrategyConfig, factories *Factories, resolver *SecretResolver, deps Deps) (auth.Strategy[*auth.Identity], error) {
	factory, ok := factories.Lookup(sc.Type)
	if !ok {
		return nil, ErrUnknownType
	}
	settings := cloneNode(&sc.Settings)
	if err := mapScalars(settings, func(v string) (string, error) {
		return resolver.Resolve(ctx, v)
	}); err != nil {
		return nil, err
	}
	s, err := factory(ctx, sc.Name, settings, deps)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: factory returned nil", ErrInvalidFactory)
	}
	return s, nil
}

func cloneNode(n *yaml.Node) *yaml.Node {
	if n == nil {
		return &yaml.Node{}
	}
	c := *n
	if len(n.Content) > 0 {
		c.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = cloneNode(child)
		}
	}
	return &c
}
