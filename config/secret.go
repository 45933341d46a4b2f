package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
)

const secretRefPrefix = "secretref:"

// SecretProvider resolves secrets by reference string.
//
// Implementations must be safe for concurrent use and must not log secret values.
type SecretProvider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
}

// EnvSecrets resolves secretref:env:<VAR> from the process environment.
type EnvSecrets struct{}

func (EnvSecrets) Name() string { return "env" }

// Resolve returns the value of the environment variable ref.
func (EnvSecrets) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := os.LookupEnv(ref)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingEnvironment, ref)
	}
	return v, nil
}

// FileSecrets resolves secretref:file:<path> from a file, such as a mounted
// container secret. A single trailing newline is dropped.
type FileSecrets struct{}

func (FileSecrets) Name() string { return "file" }

// Resolve returns the contents of the file at ref.
func (FileSecrets) Resolve(_ context.Context, ref string) (string, error) {
	data, err := os.ReadFile(ref)
	if err != nil {
		return "", fmt.Errorf("config: read secret file: %w", err)
	}
	v := strings.TrimSuffix(string(data), "\n")
	return strings.TrimSuffix(v, "\r"), nil
}

// SecretResolver resolves secretref values through registered providers.
type SecretResolver struct {
	providers map[string]SecretProvider
}

// NewSecretResolver creates a resolver with the env and file providers plus
// any extra providers. Later providers replace earlier ones of the same name.
func NewSecretResolver(providers ...SecretProvider) *SecretResolver {
	r := &SecretResolver{providers: make(map[string]SecretProvider)}
	r.Register(EnvSecrets{})
	r.Register(FileSecrets{})
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider.
func (r *SecretResolver) Register(p SecretProvider) {
	if p == nil {
		return
	}
	r.providers[p.Name()] = p
}

// ParseSecretRef parses a full reference of the form secretref:<provider>:<ref>.
func ParseSecretRef(value string) (provider, ref string, ok bool) {
	rest, found := strings.CutPrefix(value, secretRefPrefix)
	if !found {
		return "", "", false
	}
	provider, ref, found = strings.Cut(rest, ":")
	if !found || provider == "" || ref == "" {
		return "", "", false
	}
	return provider, ref, true
}

var inlineSecretRef = regexp.MustCompile(`secretref:([^:\s]+):(\S+)`)

// Resolve replaces a full reference with its secret, or every inline
// reference within value. Values without references are returned unchanged.
func (r *SecretResolver) Resolve(ctx context.Context, value string) (string, error) {
	if provider, ref, ok := ParseSecretRef(value); ok {
		return r.resolve(ctx, provider, ref)
	}

	matches := inlineSecretRef.FindAllStringSubmatchIndex(value, -1)
	out := value
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		resolved, err := r.resolve(ctx, out[m[2]:m[3]], out[m[4]:m[5]])
		if err != nil {
			return "", err
		}
		out = out[:m[0]] + resolved + out[m[1]:]
	}
	return out, nil
}

func (r *SecretResolver) resolve(ctx context.Context, provider, ref string) (string, error) {
	p, ok := r.providers[provider]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	v, err := p.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", fmt.Errorf("%w: %q", ErrEmptySecret, provider)
	}
	return v, nil
}
