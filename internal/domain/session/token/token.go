// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package token issues the signed, time-limited access tokens that bind
// segment requests at the delivery layer to a playback session.
//
// Wire format: base64url(json claims) "." base64url(HMAC-SHA256(payload)).
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrTokenInvalid = errors.New("token: invalid")
	ErrTokenExpired = errors.New("token: expired")
)

// hkdfInfo scopes the derived key to this token type.
const hkdfInfo = "vodsession/access-token/v1"

const keySize = 32

// Claims is the decoded token payload.
type Claims struct {
	SessionID string `json:"sid"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
	ID        string `json:"jti"`
}

// Expiry returns ExpiresAt as a time.
func (c Claims) Expiry() time.Time { return time.Unix(c.ExpiresAt, 0) }

// Issuer signs and verifies access tokens.
type Issuer struct {
	key []byte
	now func() time.Time
}

// NewIssuer derives the signing key from secret. An empty secret yields a random
// per-process key; tokens then stop verifying after a restart.
func NewIssuer(secret string) (*Issuer, error) {
	ikm := []byte(secret)
	if len(ikm) == 0 {
		ikm = make([]byte, keySize)
		if _, err := rand.Read(ikm); err != nil {
			return nil, fmt.Errorf("token: generate key: %w", err)
		}
	}
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("token: derive key: %w", err)
	}
	return &Issuer{key: key, now: time.Now}, nil
}

// WithClock returns a copy of the issuer using now as its time source.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	cp := *i
	cp.now = now
	return &cp
}

// Issue returns a fresh token for sessionID valid for ttl.
func (i *Issuer) Issue(sessionID string, ttl time.Duration) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("%w: empty session id", ErrTokenInvalid)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: non-positive ttl", ErrTokenInvalid)
	}
	now := i.now()
	claims := Claims{
		SessionID: sessionID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
		ID:        uuid.NewString(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + base64.RawURLEncoding.EncodeToString(i.sign(body)), nil
}

// Decode returns the claims without checking the signature. It exists for
// client-side expiry display; authorization must use Verify.
func Decode(tok string) (Claims, error) {
	body, _, ok := strings.Cut(tok, ".")
	if !ok {
		return Claims{}, ErrTokenInvalid
	}
	return decodeBody(body)
}

// Verify checks the signature and expiry of tok.
func (i *Issuer) Verify(tok string) (Claims, error) {
	body, sig, ok := strings.Cut(tok, ".")
	if !ok {
		return Claims{}, ErrTokenInvalid
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil || !hmac.Equal(got, i.sign(body)) {
		return Claims{}, ErrTokenInvalid
	}
	c, err := decodeBody(body)
	if err != nil {
		return Claims{}, err
	}
	if !i.now().Before(c.Expiry()) {
		return c, ErrTokenExpired
	}
	return c, nil
}

func (i *Issuer) sign(body string) []byte {
	mac := hmac.New(sha256.New, i.key)
	mac.Write([]byte(body))
	return mac.Sum(nil)
}

func decodeBody(body string) (Claims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return Claims{}, ErrTokenInvalid
	}
	var c Claims
	if err := json.Unmarshal(raw, &c); err != nil || c.SessionID == "" {
		return Claims{}, ErrTokenInvalid
	}
	return c, nil
}
