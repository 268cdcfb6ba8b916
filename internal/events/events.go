// Package events defines the in-process notification payloads shared between controllers.
package events

import "time"

// SessionState names a state of the authentication state machine.
type SessionState string

const (
	SessionAnonymous      SessionState = "anonymous"
	SessionAuthenticating SessionState = "authenticating"
	SessionAuthenticated  SessionState = "authenticated"
	SessionInvalidated    SessionState = "invalidated"
)

// Cause labels why a session transition happened.
type Cause string

const (
	CauseRestore  Cause = "restore"
	CauseStart    Cause = "start"
	CauseComplete Cause = "complete"
	CauseFailed   Cause = "handshake_failed"
	CauseLogout   Cause = "logout"
	CauseRejected Cause = "rejected"
	CauseProfile  Cause = "profile_updated"
	CauseSettled  Cause = "settled"
)

// SessionTransition is published to session observers after every state change.
type SessionTransition struct {
	From       SessionState `json:"from"`
	To         SessionState `json:"to"`
	Cause      Cause        `json:"cause"`
	Subject    string       `json:"subject,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// ActivitiesInvalidated is emitted on the refresh channel after a successful mutation.
type ActivitiesInvalidated struct {
	Version      uint64    `json:"version"`
	ActivityID   string    `json:"activity_id,omitempty"`
	ActivityType string    `json:"activity_type,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
