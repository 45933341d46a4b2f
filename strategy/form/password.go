package form

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/jonwraymond/authflow/auth"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Hash algorithm names accepted by NewPasswordVerifier.
const (
	HashAuto     = "auto"
	HashBcrypt   = "bcrypt"
	HashArgon2   = "argon2"
	HashArgon2id = "argon2id"
	HashArgon2i  = "argon2i"
)

// PasswordVerifier checks passwords against a fixed table of hashes.
//
// Contract:
//   - Concurrency: safe for concurrent use; the table is copied on creation.
//   - Errors: unknown users and wrong passwords both report false with a nil
//     error. Malformed hashes are errors.
type PasswordVerifier struct {
	users    map[string]string
	hashAlgo string
}

// NewPasswordVerifier creates a verifier for users (username to hash).
// hashAlgo is one of auto, bcrypt, argon2, argon2id or argon2i; auto detects
// the algorithm from the hash prefix.
func NewPasswordVerifier(users map[string]string, hashAlgo string) (*PasswordVerifier, error) {
	if len(users) == 0 {
		return nil, ErrNoUsers
	}
	algo := strings.ToLower(strings.TrimSpace(hashAlgo))
	if algo == "" {
		algo = HashAuto
	}
	switch algo {
	case HashAuto, HashBcrypt, HashArgon2, HashArgon2id, HashArgon2i:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedHash, hashAlgo)
	}
	return &PasswordVerifier{users: maps.Clone(users), hashAlgo: algo}, nil
}

// Verify reports whether password matches the stored hash for username.
func (v *PasswordVerifier) Verify(username, password string) (bool, error) {
	hash, ok := v.users[username]
	if !ok {
		return false, nil
	}
	algo := v.hashAlgo
	if algo == HashAuto {
		algo = detectHashAlgo(hash)
	}
	switch algo {
	case HashBcrypt:
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
	case HashArgon2, HashArgon2id, HashArgon2i:
		return verifyArgon2(password, hash)
	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupportedHash, algo)
	}
}

// IdentityVerifier adapts v into a VerifyFunc producing *auth.Identity.
func IdentityVerifier(v *PasswordVerifier) VerifyFunc[*auth.Identity] {
	return func(_ context.Context, username, password string) (*auth.Identity, bool, error) {
		ok, err := v.Verify(username, password)
		if err != nil || !ok {
			return nil, false, err
		}
		return &auth.Identity{
			Subject:  username,
			Name:     username,
			Method:   Name,
			IssuedAt: time.Now().UTC(),
		}, true, nil
	}
}

// HashPassword returns a bcrypt hash of password at bcrypt.DefaultCost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// HashArgon2idPassword returns a PHC-formatted argon2id hash of password.
func HashArgon2idPassword(password string) (string, error) {
	params := argon2Params{memory: 64 * 1024, iterations: 1, parallelism: 4, keyLength: 32}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, params.iterations, params.memory, params.parallelism, params.keyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.memory, params.iterations, params.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func detectHashAlgo(hash string) string {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return HashArgon2id
	case strings.HasPrefix(hash, "$argon2i$"):
		return HashArgon2i
	default:
		return HashBcrypt
	}
}

type argon2Params struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	keyLength   uint32
}

func verifyArgon2(password, encoded string) (bool, error) {
	variant, params, salt, hash, err := decodeArgon2Hash(encoded)
	if err != nil {
		return false, err
	}
	var derived []byte
	switch variant {
	case HashArgon2id:
		derived = argon2.IDKey([]byte(password), salt, params.iterations, params.memory, params.parallelism, params.keyLength)
	case HashArgon2i:
		derived = argon2.Key([]byte(password), salt, params.iterations, params.memory, params.parallelism, params.keyLength)
	default:
		return false, ErrUnsupportedVariant
	}
	return subtle.ConstantTimeCompare(hash, derived) == 1, nil
}

// decodeArgon2Hash parses $<variant>$v=<n>$m=<m>,t=<t>,p=<p>$<salt>$<hash>.
func decodeArgon2Hash(encoded string) (string, argon2Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return "", argon2Params{}, nil, nil, ErrMalformedArgon2
	}
	variant := parts[1]
	if variant != HashArgon2id && variant != HashArgon2i {
		return "", argon2Params{}, nil, nil, ErrUnsupportedVariant
	}
	if !strings.HasPrefix(parts[2], "v=") {
		return "", argon2Params{}, nil, nil, fmt.Errorf("%w: version", ErrMalformedArgon2)
	}

	var params argon2Params
	for part := range strings.SplitSeq(parts[3], ",") {
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return "", argon2Params{}, nil, nil, fmt.Errorf("%w: params", ErrMalformedArgon2)
		}
		n, err := strconv.ParseUint(val, 10, 32)
		if err != nil {
			return "", argon2Params{}, nil, nil, fmt.Errorf("%w: params", ErrMalformedArgon2)
		}
		switch key {
		case "m":
			params.memory = uint32(n)
		case "t":
			params.iterations = uint32(n)
		case "p":
			if n > 255 {
				return "", argon2Params{}, nil, nil, fmt.Errorf("%w: params", ErrMalformedArgon2)
			}
			params.parallelism = uint8(n)
		}
	}
	if params.memory == 0 || params.iterations == 0 || params.parallelism == 0 {
		return "", argon2Params{}, nil, nil, fmt.Errorf("%w: params", ErrMalformedArgon2)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return "", argon2Params{}, nil, nil, fmt.Errorf("%w: salt", ErrMalformedArgon2)
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return "", argon2Params{}, nil, nil, fmt.Errorf("%w: hash", ErrMalformedArgon2)
	}
	params.keyLength = uint32(len(hash))
	return variant, params, salt, hash, nil
}
