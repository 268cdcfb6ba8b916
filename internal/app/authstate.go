package app

import (
	"sync"

	"example.com/fitnessclient/internal/auth"
	"example.com/fitnessclient/internal/events"
	"example.com/fitnessclient/internal/session"
)

// AuthSnapshot is what the interface layer renders about the signed-in user.
type AuthSnapshot struct {
	User            *auth.Claims
	Token           string
	UserID          string
	IsAuthenticated bool
	Loading         bool
	Error           string
	State           session.State
}

// AuthState mirrors the session controller for readers that only need a snapshot.
type AuthState struct {
	mu   sync.RWMutex
	snap AuthSnapshot
	last events.SessionTransition
}

// NewAuthState returns an Anonymous snapshot holder.
func NewAuthState() *AuthState {
	return &AuthState{snap: AuthSnapshot{State: session.Anonymous}}
}

// SessionChanged implements session.Observer.
func (a *AuthState) SessionChanged(tr events.SessionTransition, cred *auth.Credential) {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := AuthSnapshot{
		State:   tr.To,
		Loading: tr.To == session.Authenticating,
	}
	if cred != nil && tr.To == session.Authenticated {
		claims := cred.Claims
		next.User = &claims
		next.Token = cred.Token
		next.UserID = cred.UserID
		next.IsAuthenticated = true
	}
	switch tr.Cause {
	case events.CauseFailed:
		next.Error = "Sign-in failed. Please try again."
	case events.CauseRejected, events.CauseSettled:
		next.Error = "Your session has expired. Please sign in again."
	}
	a.snap = next
	a.last = tr
}

// Snapshot returns a copy of the current view of the session.
func (a *AuthState) Snapshot() AuthSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := a.snap
	if out.User != nil {
		user := *out.User
		out.User = &user
	}
	return out
}

// LastTransition returns the most recent transition observed.
func (a *AuthState) LastTransition() events.SessionTransition {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}
