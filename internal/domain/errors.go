package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures surfaced to views.
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindTimeout          ErrorKind = "network.timeout"
	KindConnectionFailed ErrorKind = "network.connection_failed"
	KindUnauthenticated  ErrorKind = "auth.unauthenticated"
	KindInvalidSession   ErrorKind = "auth.invalid_session"
	KindMissingField     ErrorKind = "validation.missing_field"
	KindInvalidValue     ErrorKind = "validation.invalid_value"
	KindNotFound         ErrorKind = "not_found"
	KindServer           ErrorKind = "server"
	KindUnknown          ErrorKind = "unknown"
)

var (
	// ErrTimeout matches any NetworkError caused by the request deadline.
	ErrTimeout = &NetworkError{Kind: KindTimeout}
	// ErrConnectionFailed matches any NetworkError raised before a response arrived.
	ErrConnectionFailed = &NetworkError{Kind: KindConnectionFailed}
	// ErrUnauthenticated matches the AuthError produced when the backend rejects the credential.
	ErrUnauthenticated = &AuthError{Kind: KindUnauthenticated}
	// ErrInvalidSession matches the AuthError produced by a failed or forged handshake.
	ErrInvalidSession = &AuthError{Kind: KindInvalidSession}
	// ErrMissingField matches ValidationErrors for absent required input.
	ErrMissingField = &ValidationError{Kind: KindMissingField}
	// ErrInvalidValue matches ValidationErrors for malformed input.
	ErrInvalidValue = &ValidationError{Kind: KindInvalidValue}
	// ErrNotFound matches any NotFoundError.
	ErrNotFound = &NotFoundError{}
)

// NetworkError reports a call that never produced an HTTP response.
type NetworkError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *NetworkError) Error() string {
	reason := "connection failed"
	if e.Kind == KindTimeout {
		reason = "request timed out"
	}
	if e.Op == "" {
		return reason
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, reason)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Is matches another NetworkError of the same kind; an empty kind matches any.
func (e *NetworkError) Is(target error) bool {
	t, ok := target.(*NetworkError)
	return ok && (t.Kind == "" || t.Kind == e.Kind)
}

// AuthError reports a missing, rejected or unobtainable credential.
type AuthError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	msg := "unauthenticated"
	if e.Kind == KindInvalidSession {
		msg = "invalid session"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches another AuthError of the same kind; an empty kind matches any.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && (t.Kind == "" || t.Kind == e.Kind)
}

// ValidationError is raised before any call is issued.
type ValidationError struct {
	Kind   ErrorKind
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Kind == KindMissingField {
		return fmt.Sprintf("%s is required", e.Field)
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s is invalid", e.Field)
}

// Is matches another ValidationError of the same kind; an empty kind matches any.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && (t.Kind == "" || t.Kind == e.Kind)
}

// MissingField builds a ValidationError for an absent required field.
func MissingField(field string) *ValidationError {
	return &ValidationError{Kind: KindMissingField, Field: field}
}

// InvalidValue builds a ValidationError for a malformed field.
func InvalidValue(field, reason string) *ValidationError {
	return &ValidationError{Kind: KindInvalidValue, Field: field, Reason: reason}
}

// NotFoundError reports a 404 from the backend.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.resource())
	}
	return fmt.Sprintf("%s %q not found", e.resource(), e.ID)
}

func (e *NotFoundError) resource() string {
	if e.Resource == "" {
		return "resource"
	}
	return e.Resource
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// ServerError reports an unexpected non-2xx status.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("backend returned %d %s: %s", e.Status, http.StatusText(e.Status), e.Body)
}

// KindOf classifies err by walking its wrap chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.Kind
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return valErr.Kind
	}
	var nfErr *NotFoundError
	if errors.As(err, &nfErr) {
		return KindNotFound
	}
	var srvErr *ServerError
	if errors.As(err, &srvErr) {
		return KindServer
	}
	return KindUnknown
}

// UserMessage renders err as text suitable for an end user.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindNone:
		return ""
	case KindTimeout:
		return "The server took too long to respond. Please try again."
	case KindConnectionFailed:
		return "Could not reach the server. Check your connection and try again."
	case KindUnauthenticated:
		return "Your session has expired. Please sign in again."
	case KindInvalidSession:
		return "Sign-in failed. Please try again."
	case KindMissingField, KindInvalidValue:
		var valErr *ValidationError
		errors.As(err, &valErr)
		return "Please check your input: " + valErr.Error() + "."
	case KindNotFound:
		return "The requested item could not be found."
	default:
		return "Something went wrong. Please try again."
	}
}
