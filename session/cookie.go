package session

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

// DefaultCookieName is the cookie used when CookieOptions.Name is empty.
const DefaultCookieName = "__session"

// CookieOptions configures the session cookie written by a Store.
type CookieOptions struct {
	// Name is the cookie name.
	// Default: "__session"
	Name string

	// Path is the cookie path.
	// Default: "/"
	Path string

	// Domain is the cookie domain (optional).
	Domain string

	// MaxAge is the cookie lifetime in seconds. Zero makes a browser-session
	// cookie and disables the signed timestamp check.
	MaxAge int

	// Secure restricts the cookie to HTTPS.
	Secure bool

	// DisableHTTPOnly exposes the cookie to scripts. HttpOnly is set by default.
	DisableHTTPOnly bool

	// SameSite controls cross-site sending.
	// Default: http.SameSiteLaxMode
	SameSite http.SameSite
}

func (o CookieOptions) withDefaults() CookieOptions {
	if o.Name == "" {
		o.Name = DefaultCookieName
	}
	if o.Path == "" {
		o.Path = "/"
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// header renders a Set-Cookie header value carrying value.
func (o CookieOptions) header(value string) string {
	c := &http.Cookie{
		Name:     o.Name,
		Value:    value,
		Path:     o.Path,
		Domain:   o.Domain,
		MaxAge:   o.MaxAge,
		Secure:   o.Secure,
		HttpOnly: !o.DisableHTTPOnly,
		SameSite: o.SameSite,
	}
	if o.MaxAge > 0 {
		c.Expires = time.Now().Add(time.Duration(o.MaxAge) * time.Second).UTC()
	}
	return c.String()
}

// expiredHeader renders a Set-Cookie header value that deletes the cookie.
func (o CookieOptions) expiredHeader() string {
	c := &http.Cookie{
		Name:     o.Name,
		Value:    "",
		Path:     o.Path,
		Domain:   o.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(1, 0).UTC(),
		Secure:   o.Secure,
		HttpOnly: !o.DisableHTTPOnly,
		SameSite: o.SameSite,
	}
	return c.String()
}

// readCookie extracts the named cookie from a Cookie header value.
func readCookie(cookieHeader, name string) (string, bool) {
	if cookieHeader == "" {
		return "", false
	}
	r := &http.Request{Header: http.Header{"Cookie": {cookieHeader}}}
	c, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	return c.Value, true
}

// signer signs and verifies cookie values with one or more key pairs.
// The first pair signs; every pair is tried when decoding, which allows
// key rotation.
type signer struct {
	name   string
	codecs []securecookie.Codec
}

// newSigner builds codecs from hash/block key pairs: hash1, block1, hash2, block2...
// A missing or empty block key disables encryption for that pair.
func newSigner(name string, maxAge int, keyPairs ...[]byte) (*signer, error) {
	if len(keyPairs) == 0 || len(keyPairs[0]) == 0 {
		return nil, ErrMissingSecret
	}
	codecs := securecookie.CodecsFromPairs(keyPairs...)
	for _, c := range codecs {
		if sc, ok := c.(*securecookie.SecureCookie); ok {
			sc.SetSerializer(securecookie.JSONEncoder{})
			sc.MaxAge(maxAge)
		}
	}
	return &signer{name: name, codecs: codecs}, nil
}

func (s *signer) encode(value any) (string, error) {
	return securecookie.EncodeMulti(s.name, value, s.codecs...)
}

func (s *signer) decode(raw string, dst any) error {
	return securecookie.DecodeMulti(s.name, raw, dst, s.codecs...)
}

// CookieStore keeps the whole session in a signed cookie.
//
// Values are serialized as JSON, so typed values read back as their JSON
// shape (map[string]any, float64, ...).
type CookieStore struct {
	opts   CookieOptions
	signer *signer
}

// NewCookieStore creates a cookie-backed store.
// keyPairs are hash/block key pairs as accepted by securecookie.CodecsFromPairs.
func NewCookieStore(opts CookieOptions, keyPairs ...[]byte) (*CookieStore, error) {
	opts = opts.withDefaults()
	s, err := newSigner(opts.Name, opts.MaxAge, keyPairs...)
	if err != nil {
		return nil, err
	}
	return &CookieStore{opts: opts, signer: s}, nil
}

// GetSession decodes the session cookie. A missing or tampered cookie yields
// an empty session.
func (c *CookieStore) GetSession(_ context.Context, cookieHeader string) (*Session, error) {
	raw, ok := readCookie(cookieHeader, c.opts.Name)
	if !ok {
		return New("", nil), nil
	}
	data := make(map[string]any)
	if err := c.signer.decode(raw, &data); err != nil {
		return New("", nil), nil
	}
	return New("", data), nil
}

// CommitSession encodes s into a Set-Cookie header value.
func (c *CookieStore) CommitSession(_ context.Context, s *Session) (string, error) {
	if s == nil {
		return "", ErrNilSession
	}
	value, err := c.signer.encode(s.Data())
	if err != nil {
		return "", err
	}
	return c.opts.header(value), nil
}

// DestroySession returns a header that clears the cookie.
func (c *CookieStore) DestroySession(_ context.Context, s *Session) (string, error) {
	if s == nil {
		return "", ErrNilSession
	}
	return c.opts.expiredHeader(), nil
}

// Ensure CookieStore implements Store
var _ Store = (*CookieStore)(nil)
