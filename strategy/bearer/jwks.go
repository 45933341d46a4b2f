package bearer

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/authflow/auth"
)

// JWKSConfig configures the JWKS key provider.
type JWKSConfig struct {
	// URL is the JWKS endpoint URL.
	URL string

	// CacheTTL is how long to cache keys before refreshing.
	// Default: 1 hour
	CacheTTL time.Duration

	// HTTPClient is the HTTP client to use for requests.
	// If nil, a client with a 30s timeout is used.
	HTTPClient *http.Client

	// MaxAttempts bounds fetch attempts per refresh, including the first.
	// Only transport errors and 5xx responses are retried.
	// Default: 1
	MaxAttempts int

	// RetryDelay is the delay before the first retry. Later retries double
	// it, with up to 25% jitter, capped at MaxRetryDelay.
	// Default: 200ms
	RetryDelay time.Duration

	// MaxRetryDelay caps the delay between retries.
	// Default: 5s
	MaxRetryDelay time.Duration
}

// JWKSKeyProvider retrieves RSA signing keys from a JWKS endpoint.
//
// Contract:
//   - Concurrency: safe for concurrent use; concurrent refreshes collapse
//     into one request.
//   - Errors: when a refresh fails, keys from earlier fetches keep serving.
type JWKSKeyProvider struct {
	config JWKSConfig

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	previous  map[string]*rsa.PublicKey
	group     singleflight.Group
}

// NewJWKSKeyProvider creates a JWKS key provider.
func NewJWKSKeyProvider(config JWKSConfig) (*JWKSKeyProvider, error) {
	if config.URL == "" {
		return nil, ErrJWKSURL
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = time.Hour
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 200 * time.Millisecond
	}
	if config.MaxRetryDelay <= 0 {
		config.MaxRetryDelay = 5 * time.Second
	}
	return &JWKSKeyProvider{
		config:   config,
		keys:     make(map[string]*rsa.PublicKey),
		previous: make(map[string]*rsa.PublicKey),
	}, nil
}

// GetKey returns the key for keyID, refreshing the cache when it is stale or
// the key is unknown. An empty keyID matches only a set holding exactly one
// key; it never forces a refresh of a fresh cache.
func (p *JWKSKeyProvider) GetKey(ctx context.Context, keyID string) (any, error) {
	p.mu.RLock()
	fresh := time.Since(p.fetchedAt) < p.config.CacheTTL
	key := lookup(p.keys, keyID)
	p.mu.RUnlock()
	if fresh && key != nil {
		return key, nil
	}
	if fresh && keyID == "" {
		return nil, ErrKeyNotFound
	}

	_, err, _ := p.group.Do("refresh", func() (any, error) {
		return nil, p.refresh(ctx)
	})

	p.mu.RLock()
	defer p.mu.RUnlock()
	if key := lookup(p.keys, keyID); key != nil {
		return key, nil
	}
	if err != nil {
		if key := lookup(p.previous, keyID); key != nil {
			return key, nil
		}
		return nil, err
	}
	return nil, ErrKeyNotFound
}

// Check reports whether the endpoint is usable: nil while the cache is fresh,
// otherwise the result of a refresh.
func (p *JWKSKeyProvider) Check(ctx context.Context) error {
	p.mu.RLock()
	fresh := time.Since(p.fetchedAt) < p.config.CacheTTL
	p.mu.RUnlock()
	if fresh {
		return nil
	}
	_, err, _ := p.group.Do("refresh", func() (any, error) {
		return nil, p.refresh(ctx)
	})
	return err
}

// lookup finds keyID in keys. An empty keyID is only unambiguous when the set
// holds a single key.
func lookup(keys map[string]*rsa.PublicKey, keyID string) *rsa.PublicKey {
	if keyID == "" {
		if len(keys) != 1 {
			return nil
		}
		for _, key := range keys {
			return key
		}
	}
	return keys[keyID]
}

// retryableError marks fetch failures worth another attempt.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func (p *JWKSKeyProvider) refresh(ctx context.Context) error {
	var set *jwkSet
	var err error
	for attempt := 1; ; attempt++ {
		set, err = p.fetch(ctx)
		var retryable *retryableError
		if err == nil || !errors.As(err, &retryable) || attempt >= p.config.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.retryDelay(attempt)):
		}
	}
	if err != nil {
		return err
	}
	p.store(set)
	return nil
}

func (p *JWKSKeyProvider) retryDelay(attempt int) time.Duration {
	delay := time.Duration(float64(p.config.RetryDelay) * math.Pow(2, float64(attempt-1)))
	if delay > p.config.MaxRetryDelay {
		delay = p.config.MaxRetryDelay
	}
	if delay >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay += time.Duration(rand.Int64N(int64(delay / 4)))
	}
	return delay
}

func (p *JWKSKeyProvider) fetch(ctx context.Context) (*jwkSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("bearer: create jwks request: %w", err)
	}
	resp, err := p.config.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("bearer: fetch jwks: %w", err)
		}
		return nil, &retryableError{fmt.Errorf("bearer: fetch jwks: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("bearer: fetch jwks: unexpected status %d", resp.StatusCode)
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, &retryableError{err}
		}
		return nil, err
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("bearer: decode jwks: %w", err)
	}
	return &set, nil
}

func (p *JWKSKeyProvider) store(set *jwkSet) {
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.Kty != "RSA" || (jwk.Use != "" && jwk.Use != "sig") {
			continue
		}
		key, err := parseRSAPublicKey(jwk)
		if err != nil {
			continue
		}
		keys[jwk.Kid] = key
	}

	p.mu.Lock()
	p.keys = keys
	p.fetchedAt = time.Now()
	for kid, key := range keys {
		p.previous[kid] = key
	}
	p.mu.Unlock()
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func parseRSAPublicKey(k jwk) (*rsa.PublicKey, error) {
	if k.N == "" || k.E == "" {
		return nil, errors.New("missing modulus or exponent")
	}
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode n: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode e: %w", err)
	}
	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() < 2 {
		return nil, errors.New("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: int(e.Int64())}, nil
}

// Ensure JWKSKeyProvider implements KeyProvider
var (
	_ KeyProvider  = (*JWKSKeyProvider)(nil)
	_ auth.Checker = (*JWKSKeyProvider)(nil)
)
