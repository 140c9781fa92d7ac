package identity

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidSession is returned for missing, malformed, expired, or
// badly signed session tokens.
var ErrInvalidSession = errors.New("invalid session token")

// SessionVerifier checks identity-provider session JWTs and returns the
// subject, i.e. the user id.
type SessionVerifier struct {
	hmacSecret []byte
	publicKey  *rsa.PublicKey
	issuer     string
	leeway     time.Duration
}

// SessionOption customizes a SessionVerifier.
type SessionOption func(*SessionVerifier)

// WithIssuer requires the iss claim to equal issuer.
func WithIssuer(issuer string) SessionOption {
	return func(v *SessionVerifier) {
		v.issuer = strings.TrimSpace(issuer)
	}
}

// WithLeeway tolerates clock skew on exp and nbf.
func WithLeeway(leeway time.Duration) SessionOption {
	return func(v *SessionVerifier) {
		v.leeway = leeway
	}
}

// NewHMACVerifier verifies HS256/384/512 tokens signed with secret.
func NewHMACVerifier(secret string, opts ...SessionOption) (*SessionVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("session secret is required")
	}
	v := &SessionVerifier{hmacSecret: []byte(secret), leeway: 5 * time.Second}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// NewRSAVerifier verifies RS256/384/512 tokens with a PEM-encoded public key,
// which is how the identity provider publishes its signing key.
func NewRSAVerifier(publicKeyPEM []byte, opts ...SessionOption) (*SessionVerifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse session public key: %w", err)
	}
	v := &SessionVerifier{publicKey: key, leeway: 5 * time.Second}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// NewRSAVerifierFromFile reads the PEM public key from path.
func NewRSAVerifierFromFile(path string, opts ...SessionOption) (*SessionVerifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session public key: %w", err)
	}
	return NewRSAVerifier(data, opts...)
}

// Verify validates token and returns its subject.
func (v *SessionVerifier) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidSession
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.publicKey != nil {
		parserOpts = append(parserOpts, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}))
	} else {
		parserOpts = append(parserOpts, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.keyFunc, parserOpts...)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidSession)
	}
	return subject, nil
}

func (v *SessionVerifier) keyFunc(*jwt.Token) (any, error) {
	if v.publicKey != nil {
		return v.publicKey, nil
	}
	return v.hmacSecret, nil
}

// IssueHMAC signs a session token for subject. It backs local development
// and tests where no identity provider is reachable.
func IssueHMAC(secret, subject, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
