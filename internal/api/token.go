package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/roach88/convsync/internal/model"
)

// ErrNoToken is returned when no bearer token is configured.
var ErrNoToken = errors.New("no bearer token configured")

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// BearerToken is an access token issued by the server.
//
// The client never holds the signing key, so the token is parsed without
// verification. Subject and expiry are only used to route push events early
// and to warn before the server starts rejecting requests.
type BearerToken struct {
	raw     string
	subject model.ID
	expires time.Time
}

// ParseBearerToken inspects a raw JWT. A "Bearer " prefix is accepted.
func ParseBearerToken(raw string) (*BearerToken, error) {
	if len(raw) > 7 && (raw[:7] == "Bearer " || raw[:7] == "bearer ") {
		raw = raw[7:]
	}
	if raw == "" {
		return nil, ErrNoToken
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("parse bearer token: %w", err)
	}

	t := &BearerToken{raw: raw, subject: model.ID(claims.Subject)}
	if claims.ExpiresAt != nil {
		t.expires = claims.ExpiresAt.Time
	}
	return t, nil
}

// Token implements TokenSource.
func (t *BearerToken) Token(context.Context) (string, error) {
	if t == nil || t.raw == "" {
		return "", ErrNoToken
	}
	return t.raw, nil
}

// Subject returns the user id the token was issued to, or "" if it has none.
func (t *BearerToken) Subject() model.ID {
	return t.subject
}

// ExpiresAt returns the expiry, or the zero time if the token never expires.
func (t *BearerToken) ExpiresAt() time.Time {
	return t.expires
}

// Expired reports whether the token has expired at now.
func (t *BearerToken) Expired(now time.Time) bool {
	return !t.expires.IsZero() && !now.Before(t.expires)
}
