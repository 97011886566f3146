package jwt_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/storefront/pkg/jwt"
)

func newSigner(t *testing.T) *jwt.Signer {
	t.Helper()
	s, err := jwt.NewSigner([]byte("wp-secret"))
	require.NoError(t, err)
	return s
}

func TestNewSigner_EmptyKey(t *testing.T) {
	t.Parallel()
	_, err := jwt.NewSigner(nil)
	assert.ErrorIs(t, err, jwt.ErrMissingSigningKey)
}

func TestSignVerify(t *testing.T) {
	t.Parallel()
	s := newSigner(t)

	now := time.Now()
	in := jwt.Claims{
		Issuer:    "http://shop.test",
		IssuedAt:  now.Unix(),
		NotBefore: now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
		Data:      json.RawMessage(`{"user":{"id":"1"}}`),
	}
	token, err := s.Sign(in)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."))
	assert.NotContains(t, token, "=")

	var out jwt.Claims
	require.NoError(t, s.Verify(token, &out))
	assert.Equal(t, in.ExpiresAt, out.ExpiresAt)
	assert.JSONEq(t, `{"user":{"id":"1"}}`, string(out.Data))
}

func TestVerify_Rejects(t *testing.T) {
	t.Parallel()
	s := newSigner(t)

	expired, err := s.Sign(jwt.Claims{ExpiresAt: time.Now().Add(-time.Minute).Unix()})
	require.NoError(t, err)
	assert.ErrorIs(t, s.Verify(expired, &jwt.Claims{}), jwt.ErrExpiredToken)

	other, err := jwt.NewSigner([]byte("other"))
	require.NoError(t, err)
	foreign, err := other.Sign(jwt.Claims{})
	require.NoError(t, err)
	assert.ErrorIs(t, s.Verify(foreign, &jwt.Claims{}), jwt.ErrInvalidSignature)

	assert.ErrorIs(t, s.Verify("abc123", &jwt.Claims{}), jwt.ErrInvalidToken)

	_, err = s.Sign(nil)
	assert.ErrorIs(t, err, jwt.ErrMissingClaims)
}

func TestDecode(t *testing.T) {
	t.Parallel()
	s := newSigner(t)

	exp := time.Now().Add(10 * time.Minute).Truncate(time.Second)
	token, err := s.Sign(jwt.Claims{ExpiresAt: exp.Unix()})
	require.NoError(t, err)

	c, err := jwt.Decode(token)
	require.NoError(t, err)
	got, ok := c.Expiry()
	require.True(t, ok)
	assert.True(t, got.Equal(exp))

	assert.False(t, c.ExpiresWithin(time.Now(), time.Minute))
	assert.True(t, c.ExpiresWithin(time.Now(), time.Hour))

	_, err = jwt.Decode("abc123")
	assert.ErrorIs(t, err, jwt.ErrInvalidToken)
	_, err = jwt.Decode("a.!!!.c")
	assert.ErrorIs(t, err, jwt.ErrInvalidToken)
}

func TestClaims_NoExpiry(t *testing.T) {
	t.Parallel()
	c := jwt.Claims{}
	_, ok := c.Expiry()
	assert.False(t, ok)
	assert.False(t, c.ExpiresWithin(time.Now(), 24*time.Hour))
	assert.NoError(t, c.Valid())
}
