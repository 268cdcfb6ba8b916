// Package credential persists the active credential and any in-progress sign-in handshake.
package credential

import (
	"context"
	"errors"
	"time"

	"example.com/fitnessclient/internal/auth"
)

// ErrCorrupt is returned when persisted state cannot be decoded.
var ErrCorrupt = errors.New("credential store: corrupt entry")

// ErrExpired is returned by backends that cannot hold a credential past its expiry.
var ErrExpired = errors.New("credential store: credential already expired")

// Store is the durable home of the single active credential.
type Store interface {
	// Save overwrites any existing credential.
	Save(ctx context.Context, cred auth.Credential) error
	// Load returns nil, nil when no credential is stored.
	Load(ctx context.Context) (*auth.Credential, error)
	// Clear is idempotent.
	Clear(ctx context.Context) error
}

// Handshake is the state that must survive a restart between redirect and callback.
type Handshake struct {
	State     string    `json:"state"`
	Verifier  string    `json:"verifier"`
	ReturnTo  string    `json:"returnTo,omitempty"`
	StartedAt time.Time `json:"startedAt"`
}

// HandshakeStore persists the in-progress PKCE handshake.
type HandshakeStore interface {
	SaveHandshake(ctx context.Context, hs Handshake) error
	// LoadHandshake returns nil, nil when no handshake is pending.
	LoadHandshake(ctx context.Context) (*Handshake, error)
	ClearHandshake(ctx context.Context) error
}

// Persistence combines both stores; every backend implements it.
type Persistence interface {
	Store
	HandshakeStore
}
