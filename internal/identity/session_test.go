package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACVerifier(t *testing.T) {
	verifier, err := NewHMACVerifier("s3cret", WithIssuer("https://clerk.example"))
	require.NoError(t, err)

	token, err := IssueHMAC("s3cret", "user_1", "https://clerk.example", time.Minute)
	require.NoError(t, err)
	subject, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user_1", subject)

	wrongKey, err := IssueHMAC("other", "user_1", "https://clerk.example", time.Minute)
	require.NoError(t, err)
	_, err = verifier.Verify(wrongKey)
	assert.ErrorIs(t, err, ErrInvalidSession)

	wrongIssuer, err := IssueHMAC("s3cret", "user_1", "https://evil.example", time.Minute)
	require.NoError(t, err)
	_, err = verifier.Verify(wrongIssuer)
	assert.ErrorIs(t, err, ErrInvalidSession)

	expired, err := IssueHMAC("s3cret", "user_1", "https://clerk.example", -time.Minute)
	require.NoError(t, err)
	_, err = verifier.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidSession)

	noSubject, err := IssueHMAC("s3cret", "", "https://clerk.example", time.Minute)
	require.NoError(t, err)
	_, err = verifier.Verify(noSubject)
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = verifier.Verify("")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestNewHMACVerifierRequiresSecret(t *testing.T) {
	_, err := NewHMACVerifier("  ")
	assert.Error(t, err)
}

func TestRSAVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	verifier, err := NewRSAVerifier(pemBytes)
	require.NoError(t, err)

	claims := jwt.RegisteredClaims{
		Subject:   "user_rsa",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)

	subject, err := verifier.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "user_rsa", subject)

	hmacToken, err := IssueHMAC("whatever", "user_rsa", "", time.Minute)
	require.NoError(t, err)
	_, err = verifier.Verify(hmacToken)
	assert.ErrorIs(t, err, ErrInvalidSession, "HMAC tokens must not pass an RSA verifier")
}
