package config

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/authflow/observe"
	"github.com/jonwraymond/authflow/session"
)

// Session store engines.
const (
	StoreCookie = "cookie"
	StoreMemory = "memory"
)

// Config is the root of a configuration document.
type Config struct {
	Session    SessionConfig    `yaml:"session"`
	Observe    observe.Config   `yaml:"observe"`
	Strategies []StrategyConfig `yaml:"strategies"`
}

// SessionConfig configures the session store.
type SessionConfig struct {
	// Key is the session slot holding the principal.
	// Default: "user"
	Key string `yaml:"key"`

	// Store selects the engine: cookie or memory.
	// Default: cookie
	Store string `yaml:"store"`

	// Secrets are hash/block key pairs: hash1, block1, hash2, block2...
	// The first hash key signs; the rest allow rotation. A "base64:" prefix
	// marks a base64 encoded key.
	Secrets []string `yaml:"secrets"`

	Cookie CookieConfig `yaml:"cookie"`

	// TTL bounds server-side sessions (memory store only).
	// Default: 24h
	TTL time.Duration `yaml:"ttl"`
}

// CookieConfig configures the session cookie.
type CookieConfig struct {
	Name     string `yaml:"name"`
	Path     string `yaml:"path"`
	Domain   string `yaml:"domain"`
	MaxAge   int    `yaml:"max_age"`
	Secure   bool   `yaml:"secure"`
	HTTPOnly *bool  `yaml:"http_only"`
	SameSite string `yaml:"same_site"` // lax|strict|none
}

// StrategyConfig declares one strategy instance.
type StrategyConfig struct {
	// Name is the registry key.
	Name string `yaml:"name"`

	// Type selects the factory (apikey, form, bearer, oidc, or a custom type).
	Type string `yaml:"type"`

	// Settings are decoded by the factory.
	Settings yaml.Node `yaml:"settings"`
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse expands environment references in data, decodes it strictly
// (unknown fields are errors) and validates the result.
func Parse(data []byte) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if doc.Kind == 0 {
		return nil, fmt.Errorf("config: parse: empty document")
	}
	if err := mapScalars(&doc, ExpandEnvStrict); err != nil {
		return nil, fmt.Errorf("config: expand: %w", err)
	}

	expanded, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the document without contacting any provider.
func (c *Config) Validate() error {
	if err := c.Session.validate(); err != nil {
		return err
	}
	if c.Observe.ServiceName != "" {
		if err := c.Observe.Validate(); err != nil {
			return fmt.Errorf("config: observe: %w", err)
		}
	}

	seen := make(map[string]struct{}, len(c.Strategies))
	for i, s := range c.Strategies {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("%w (strategies[%d])", ErrMissingName, i)
		}
		if strings.TrimSpace(s.Type) == "" {
			return fmt.Errorf("%w (strategy %q)", ErrMissingType, s.Name)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateName, s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}

func (s SessionConfig) validate() error {
	switch s.Store {
	case "", StoreCookie, StoreMemory:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStore, s.Store)
	}
	if len(s.Secrets) == 0 || strings.TrimSpace(s.Secrets[0]) == "" {
		return ErrMissingSecret
	}
	if s.TTL < 0 {
		return ErrInvalidTTL
	}
	if _, err := parseSameSite(s.Cookie.SameSite); err != nil {
		return err
	}
	return nil
}

func (c CookieConfig) options() session.CookieOptions {
	sameSite, _ := parseSameSite(c.SameSite)
	return session.CookieOptions{
		Name:            c.Name,
		Path:            c.Path,
		Domain:          c.Domain,
		MaxAge:          c.MaxAge,
		Secure:          c.Secure,
		DisableHTTPOnly: c.HTTPOnly != nil && !*c.HTTPOnly,
		SameSite:        sameSite,
	}
}

func parseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSameSite, s)
	}
}

// keyPairs decodes resolved secrets into securecookie key pairs. Block keys
// (odd positions) must be empty or a valid AES key length.
func keyPairs(secrets []string) ([][]byte, error) {
	keys := make([][]byte, len(secrets))
	for i, s := range secrets {
		key := []byte(s)
		if encoded, ok := strings.CutPrefix(s, "base64:"); ok {
			decoded, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return nil, fmt.Errorf("config: session.secrets[%d]: %w", i, err)
			}
			key = decoded
		}
		if i%2 == 1 {
			switch len(key) {
			case 0, 16, 24, 32:
			default:
				return nil, fmt.Errorf("%w: session.secrets[%d] is %d bytes", ErrInvalidBlockKey, i, len(key))
			}
			if len(key) == 0 {
				key = nil
			}
		}
		keys[i] = key
	}
	return keys, nil
}
