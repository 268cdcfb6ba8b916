package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"example.com/fitnessclient/internal/credential"
	"example.com/fitnessclient/internal/domain"
)

const (
	// HeaderUserID carries the subject id next to the bearer token.
	HeaderUserID = "X-User-ID"
	// HeaderRequestID correlates client and backend logs.
	HeaderRequestID = "X-Request-ID"
)

// RequestStage mutates an outbound request before it is sent.
type RequestStage func(*http.Request) error

// ResponseStage inspects a response before it reaches the caller; an error rejects the call.
type ResponseStage func(*http.Response) error

// Invalidator forces the session back to Anonymous.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Navigator sends the application to a route.
type Navigator interface {
	Navigate(ctx context.Context, target string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, target string)

func (f NavigatorFunc) Navigate(ctx context.Context, target string) { f(ctx, target) }

// pipeline runs request stages, the underlying transport, then response stages.
type pipeline struct {
	next   http.RoundTripper
	before []RequestStage
	after  []ResponseStage
}

func (p *pipeline) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for _, stage := range p.before {
		if err := stage(req); err != nil {
			return nil, err
		}
	}
	resp, err := p.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.Request == nil {
		resp.Request = req
	}
	for _, stage := range p.after {
		if err := stage(resp); err != nil {
			resp.Body.Close()
			return nil, err
		}
	}
	return resp, nil
}

// AttachCredential reads the store on every call and sets the bearer and subject headers.
// Without a credential neither header is sent and the call proceeds.
func AttachCredential(store credential.Store, logger *logrus.Entry) RequestStage {
	return func(req *http.Request) error {
		req.Header.Del("Authorization")
		req.Header.Del(HeaderUserID)

		cred, err := store.Load(req.Context())
		if err != nil {
			if !errors.Is(err, credential.ErrCorrupt) {
				return err
			}
			logger.WithError(err).Warn("ignoring unreadable credential")
			return nil
		}
		if cred == nil || cred.Token == "" {
			return nil
		}
		req.Header.Set("Authorization", "Bearer "+cred.Token)
		if cred.UserID != "" {
			req.Header.Set(HeaderUserID, cred.UserID)
		}
		return nil
	}
}

// StampRequest sets content negotiation headers and a request id.
func StampRequest(req *http.Request) error {
	req.Header.Set("Accept", "application/json")
	if req.Body != nil && req.Body != http.NoBody && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get(HeaderRequestID) == "" {
		req.Header.Set(HeaderRequestID, uuid.NewString())
	}
	return nil
}

// RejectUnauthorized treats any 401 as session invalidation: it clears the store,
// forces the session to Anonymous, navigates to entryPoint and rejects the call.
func RejectUnauthorized(store credential.Store, invalidator Invalidator, navigator Navigator, entryPoint string, logger *logrus.Entry) ResponseStage {
	return func(resp *http.Response) error {
		if resp.StatusCode != http.StatusUnauthorized {
			return nil
		}
		ctx := context.WithoutCancel(resp.Request.Context())
		entry := logger.WithFields(logrus.Fields{
			"path":       resp.Request.URL.Path,
			"request_id": resp.Request.Header.Get(HeaderRequestID),
		})

		if err := store.Clear(ctx); err != nil {
			entry.WithError(err).Error("failed to clear rejected credential")
		}
		if invalidator != nil {
			if err := invalidator.Invalidate(ctx); err != nil {
				entry.WithError(err).Error("failed to invalidate session")
			}
		}
		if navigator != nil {
			navigator.Navigate(ctx, entryPoint)
		}
		recordInvalidation()
		entry.Warn("backend rejected credential")
		return &domain.AuthError{Kind: domain.KindUnauthenticated, Reason: "credential rejected by backend"}
	}
}
