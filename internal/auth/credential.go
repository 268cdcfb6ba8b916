// Package auth models the bearer credential issued by the identity provider and the claims carried in it.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"example.com/fitnessclient/internal/domain"
)

// Claims represents the display-relevant subset of the access token payload.
type Claims struct {
	Subject           string    `json:"sub"`
	Name              string    `json:"name,omitempty"`
	PreferredUsername string    `json:"preferred_username,omitempty"`
	Email             string    `json:"email,omitempty"`
	ExpiresAt         time.Time `json:"exp,omitempty"`
	IssuedAt          time.Time `json:"iat,omitempty"`
}

// DisplayName picks the most human-friendly identifier available.
func (c Claims) DisplayName() string {
	switch {
	case c.Name != "":
		return c.Name
	case c.PreferredUsername != "":
		return c.PreferredUsername
	case c.Email != "":
		return c.Email
	default:
		return c.Subject
	}
}

// Credential is the single active bearer token plus its decoded claims.
type Credential struct {
	Token  string `json:"token"`
	Claims Claims `json:"claims"`
	UserID string `json:"userId"`
}

// ErrMissingToken is returned when the token response carries no access token.
var ErrMissingToken = errors.New("missing bearer token")

// ErrInvalidToken wraps decoding failures.
var ErrInvalidToken = errors.New("invalid bearer token")

// DecodeToken extracts claims from an access token without verifying its signature.
// Verification belongs to the backend; the client only needs subject and expiry.
func DecodeToken(token string) (*Credential, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, &domain.AuthError{Kind: domain.KindInvalidSession, Err: ErrMissingToken}
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, &domain.AuthError{Kind: domain.KindInvalidSession, Err: fmt.Errorf("%w: %v", ErrInvalidToken, err)}
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		return nil, &domain.AuthError{Kind: domain.KindInvalidSession, Reason: "token has no subject", Err: ErrInvalidToken}
	}

	out := Claims{Subject: subject}
	out.Name, _ = claims["name"].(string)
	out.PreferredUsername, _ = claims["preferred_username"].(string)
	out.Email, _ = claims["email"].(string)
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, &domain.AuthError{Kind: domain.KindInvalidSession, Err: fmt.Errorf("%w: %v", ErrInvalidToken, err)}
	}
	if exp != nil {
		out.ExpiresAt = exp.Time.UTC()
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time.UTC()
	}

	return &Credential{Token: token, Claims: out, UserID: subject}, nil
}

// Expired reports whether the credential is past its expiry. A zero expiry never expires.
func (c *Credential) Expired(now time.Time) bool {
	if c == nil {
		return true
	}
	return !c.Claims.ExpiresAt.IsZero() && !now.Before(c.Claims.ExpiresAt)
}

// Equal compares token, subject and claims.
func (c *Credential) Equal(other *Credential) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.Token == other.Token &&
		c.UserID == other.UserID &&
		c.Claims.Subject == other.Claims.Subject &&
		c.Claims.Name == other.Claims.Name &&
		c.Claims.PreferredUsername == other.Claims.PreferredUsername &&
		c.Claims.Email == other.Claims.Email &&
		c.Claims.ExpiresAt.Equal(other.Claims.ExpiresAt) &&
		c.Claims.IssuedAt.Equal(other.Claims.IssuedAt)
}
