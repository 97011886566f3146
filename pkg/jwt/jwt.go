package jwt

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	HeaderType      = "JWT"
	HeaderAlgorithm = "HS256"
)

type Header struct {
	Type      string `json:"typ"`
	Algorithm string `json:"alg"`
}

// Claims are the registered claims issued by the WordPress JWT auth plugin.
// Data carries the plugin's {"user":{"id":...}} payload untouched.
type Claims struct {
	Issuer    string          `json:"iss,omitempty"`
	Subject   string          `json:"sub,omitempty"`
	IssuedAt  int64           `json:"iat,omitempty"`
	NotBefore int64           `json:"nbf,omitempty"`
	ExpiresAt int64           `json:"exp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Expiry returns the expiration time, or false when the token never expires.
func (c Claims) Expiry() (time.Time, bool) {
	if c.ExpiresAt <= 0 {
		return time.Time{}, false
	}
	return time.Unix(c.ExpiresAt, 0), true
}

// ExpiresWithin reports whether the token expires before now+d.
// Tokens without exp never do.
func (c Claims) ExpiresWithin(now time.Time, d time.Duration) bool {
	exp, ok := c.Expiry()
	return ok && !now.Add(d).Before(exp)
}

// Valid checks exp and nbf against the current time; zero values are unset.
func (c Claims) Valid() error {
	now := time.Now().Unix()
	if c.ExpiresAt > 0 && now > c.ExpiresAt {
		return ErrExpiredToken
	}
	if c.NotBefore > 0 && now < c.NotBefore {
		return ErrInvalidToken
	}
	return nil
}

// Decode reads the claims of a token without verifying its signature.
// Clients never hold the server key; the result is only fit for
// scheduling decisions such as refreshing ahead of expiry.
func Decode(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, ErrInvalidToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var c Claims
	if err := json.Unmarshal(raw, &c); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return c, nil
}

// Signer issues and verifies HS256 tokens. The storefront client never
// signs anything itself; the fake backend in svc/wp/wptest does, so tests
// can exercise real plugin-shaped tokens.
type Signer struct {
	key []byte
}

func NewSigner(key []byte) (*Signer, error) {
	if len(key) == 0 {
		return nil, ErrMissingSigningKey
	}
	return &Signer{key: key}, nil
}

// Sign encodes claims into a signed token.
func (s *Signer) Sign(claims any) (string, error) {
	if claims == nil {
		return "", ErrMissingClaims
	}

	header, err := json.Marshal(Header{Type: HeaderType, Algorithm: HeaderAlgorithm})
	if err != nil {
		return "", fmt.Errorf("jwt: marshal header: %w", err)
	}
	body, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("jwt: marshal claims: %w", err)
	}

	payload := base64.RawURLEncoding.EncodeToString(header) + "." + base64.RawURLEncoding.EncodeToString(body)
	return payload + "." + s.sign(payload), nil
}

// Verify checks the signature and algorithm, decodes the claims into out
// and runs out.Valid() when out implements it.
func (s *Signer) Verify(token string, out any) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return ErrInvalidToken
	}

	payload := parts[0] + "." + parts[1]
	if subtle.ConstantTimeCompare([]byte(parts[2]), []byte(s.sign(payload))) != 1 {
		return ErrInvalidSignature
	}

	rawHeader, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var h Header
	if err := json.Unmarshal(rawHeader, &h); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if h.Algorithm != HeaderAlgorithm {
		return ErrUnexpectedSigningMethod
	}

	rawClaims, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := json.Unmarshal(rawClaims, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if v, ok := out.(interface{ Valid() error }); ok {
		return v.Valid()
	}
	return nil
}

func (s *Signer) sign(payload string) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
