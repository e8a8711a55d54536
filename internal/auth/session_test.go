package auth

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTokenExpireTime(t *testing.T) {
	for in, want := range map[string]time.Duration{
		"":      0,
		"0":     0,
		"never": 0,
		"72h":   72 * time.Hour,
		"90s":   90 * time.Second,
	} {
		got, err := ParseTokenExpireTime(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseTokenExpireTime("soon")
	assert.Error(t, err)
	_, err = ParseTokenExpireTime("-1h")
	assert.Error(t, err)
}

func TestJWTRoundTrip(t *testing.T) {
	require.NoError(t, Init(time.Hour))
	id := uuid.New()

	tok, err := CreateJWT(id)
	require.NoError(t, err)
	got, err := AuthenticateJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = AuthenticateJWT(tok + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = AuthenticateJWT("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTRejectsForeignKeyAndExpiry(t *testing.T) {
	require.NoError(t, Init(time.Hour))
	_, otherKey, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.RegisteredClaims{Subject: uuid.NewString()}).SignedString(otherKey)
	require.NoError(t, err)
	_, err = AuthenticateJWT(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}).SignedString(privateKey)
	require.NoError(t, err)
	_, err = AuthenticateJWT(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	notUUID, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.RegisteredClaims{Subject: "alice"}).SignedString(privateKey)
	require.NoError(t, err)
	_, err = AuthenticateJWT(notUUID)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestInitFromPath(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	dir := t.TempDir()
	privPath := filepath.Join(dir, "key")
	pubPath := filepath.Join(dir, "key.pub")
	require.NoError(t, os.WriteFile(privPath, priv, 0o600))
	require.NoError(t, os.WriteFile(pubPath, pub, 0o644))

	require.NoError(t, InitFromPath(privPath, pubPath, 0))
	id := uuid.New()
	tok, err := CreateJWT(id)
	require.NoError(t, err)
	got, err := AuthenticateJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	require.NoError(t, os.WriteFile(pubPath, pub[:10], 0o644))
	assert.Error(t, InitFromPath(privPath, pubPath, 0))
	assert.Error(t, InitFromPath(filepath.Join(dir, "missing"), pubPath, 0))
}

func TestTokenSigner(t *testing.T) {
	require.NoError(t, Init(0))
	alice, bob := uuid.New(), uuid.New()
	ta, err := CreateJWT(alice)
	require.NoError(t, err)
	tb, err := CreateJWT(bob)
	require.NoError(t, err)

	s, err := SignerFromTokens(ta, tb, ta)
	require.NoError(t, err)
	assert.True(t, s.IsSignedBy(alice))
	assert.True(t, s.IsSignedBy(bob))
	assert.False(t, s.IsSignedBy(uuid.New()))
	assert.Equal(t, alice, s.Subject())

	_, err = SignerFromTokens(ta, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	assert.Equal(t, uuid.Nil, TokenSigner{}.Subject())
	assert.True(t, StaticSigner{bob}.IsSignedBy(bob))
	assert.False(t, StaticSigner{bob}.IsSignedBy(alice))
}
