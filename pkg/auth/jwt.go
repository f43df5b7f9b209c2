// Package auth issues and verifies the RS256 bearer tokens members log in
// with. A token names a member in its sub claim and nothing else.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing authentication token")
	ErrExpiredToken = errors.New("token has expired")
	ErrInvalidToken = errors.New("invalid token")
)

// Token is a verified bearer token.
type Token struct {
	MemberID  string    `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issuer signs login tokens.
type Issuer struct {
	key     *rsa.PrivateKey
	ttl     time.Duration
	authURL string
	now     func() time.Time
}

func NewIssuer(privateKeyPEM []byte, ttl time.Duration, authURL string) (*Issuer, error) {
	if len(privateKeyPEM) == 0 {
		return nil, errors.New("private key required for RS256")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return newIssuer(key, ttl, authURL)
}

func newIssuer(key *rsa.PrivateKey, ttl time.Duration, authURL string) (*Issuer, error) {
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	if _, err := url.ParseRequestURI(authURL); err != nil {
		return nil, fmt.Errorf("invalid auth url: %w", err)
	}
	return &Issuer{key: key, ttl: ttl, authURL: authURL, now: time.Now}, nil
}

// Issue returns a signed token for memberID and its expiry.
func (i *Issuer) Issue(memberID string) (string, time.Time, error) {
	if memberID == "" {
		return "", time.Time{}, errors.New("member id required")
	}
	now := i.now()
	expires := now.Add(i.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   memberID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// AuthURL is the login link emailed to a member.
func (i *Issuer) AuthURL(memberID string) (string, error) {
	token, _, err := i.Issue(memberID)
	if err != nil {
		return "", err
	}
	return i.authURL + "?" + url.Values{"token": {token}}.Encode(), nil
}

// Validator verifies tokens against the public half of the signing key.
type Validator struct {
	key *rsa.PublicKey
}

func NewValidator(publicKeyPEM []byte) (*Validator, error) {
	if len(publicKeyPEM) == 0 {
		return nil, errors.New("public key required for RS256")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return &Validator{key: key}, nil
}

// Validate accepts the raw token or an "Authorization: Bearer" value.
func (v *Validator) Validate(raw string) (*Token, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	if raw == "" {
		return nil, ErrMissingToken
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	return &Token{MemberID: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Ping reports whether the validator holds a usable key. Used by the health
// check.
func (v *Validator) Ping() error {
	if v == nil || v.key == nil {
		return errors.New("no public key loaded")
	}
	return v.key.Validate()
}

// ReadPEM returns inline if set, otherwise the contents of path.
func ReadPEM(inline, path string) ([]byte, error) {
	if inline != "" {
		// Env vars often carry the PEM with escaped newlines.
		return []byte(strings.ReplaceAll(inline, `\n`, "\n")), nil
	}
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", path, err)
	}
	return b, nil
}

// NewEphemeralPair generates a throwaway key pair. Tokens it signs are
// invalid after a restart; only development uses it.
func NewEphemeralPair(ttl time.Duration, authURL string) (*Issuer, *Validator, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, fmt.Errorf("generate key: %w", err)
	}
	issuer, err := newIssuer(key, ttl, authURL)
	if err != nil {
		return nil, nil, err
	}
	return issuer, &Validator{key: &key.PublicKey}, nil
}

// EncodePublicKey is the PEM form of an issuer's public key.
func (i *Issuer) EncodePublicKey() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(&i.key.PublicKey)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

type contextKey struct{}

// WithToken stores a verified token on ctx.
func WithToken(ctx context.Context, t *Token) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// TokenFromContext returns the verified token, if any.
func TokenFromContext(ctx context.Context) (*Token, bool) {
	t, ok := ctx.Value(contextKey{}).(*Token)
	return t, ok && t != nil
}
