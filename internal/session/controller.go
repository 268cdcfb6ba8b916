// Package session owns the authentication state machine and the resumable PKCE sign-in handshake.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"example.com/fitnessclient/internal/auth"
	"example.com/fitnessclient/internal/credential"
	"example.com/fitnessclient/internal/domain"
	"example.com/fitnessclient/internal/events"
	"example.com/fitnessclient/internal/observability"
)

// State aliases the shared session state names.
type State = events.SessionState

const (
	Anonymous      = events.SessionAnonymous
	Authenticating = events.SessionAuthenticating
	Authenticated  = events.SessionAuthenticated
	Invalidated    = events.SessionInvalidated
)

var (
	// ErrAlreadyAuthenticated is returned by Start while a credential is active.
	ErrAlreadyAuthenticated = errors.New("session: already authenticated")
	// ErrNotAuthenticated is returned by operations that need an active credential.
	ErrNotAuthenticated = errors.New("session: not authenticated")
)

// DefaultScopes are requested when Config.Scopes is empty.
var DefaultScopes = []string{"openid", "profile", "email"}

// Config describes the identity provider contract.
type Config struct {
	ClientID              string
	AuthorizationEndpoint string
	TokenEndpoint         string
	RedirectURL           string
	Scopes                []string
}

// Controller is the single writer of session state.
// Observers may read State and Credential but must not call transition methods from inside a notification.
type Controller struct {
	mu       sync.Mutex
	notifyMu sync.Mutex
	pending  []delivery

	oauth      *oauth2.Config
	store      credential.Persistence
	httpClient *http.Client
	now        func() time.Time
	logger     *logrus.Entry

	state State
	cred  *auth.Credential

	observers []observerEntry
	nextObsID int
}

type observerEntry struct {
	id       int
	observer Observer
}

// Option customises the Controller.
type Option func(*Controller)

// WithLogger overrides the logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets the client used for the token exchange.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Controller) {
		c.httpClient = client
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController builds an Anonymous controller; call Restore to rehydrate persisted state.
func NewController(cfg Config, store credential.Persistence, opts ...Option) (*Controller, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("session: client id is required")
	}
	if cfg.AuthorizationEndpoint == "" || cfg.TokenEndpoint == "" {
		return nil, errors.New("session: authorization and token endpoints are required")
	}
	if store == nil {
		return nil, errors.New("session: store is required")
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	c := &Controller{
		oauth: &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizationEndpoint,
				TokenURL:  cfg.TokenEndpoint,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      append([]string(nil), scopes...),
		},
		store:  store,
		now:    time.Now,
		logger: logrus.NewEntry(logrus.StandardLogger()),
		state:  Anonymous,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithField("component", "session")
	return c, nil
}

// State returns the settled session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Credential returns a copy of the active credential, or nil.
func (c *Controller) Credential() *auth.Credential {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cred == nil {
		return nil
	}
	copied := *c.cred
	return &copied
}

// Restore rehydrates the session from the store at startup.
func (c *Controller) Restore(ctx context.Context) error {
	c.mu.Lock()
	from := c.state

	cred, err := c.store.Load(ctx)
	if err != nil && !errors.Is(err, credential.ErrCorrupt) {
		c.mu.Unlock()
		return fmt.Errorf("restore session: %w", err)
	}
	if err != nil {
		c.logger.WithError(err).Warn("stored credential unreadable, clearing")
		cred = nil
		if clearErr := c.store.Clear(ctx); clearErr != nil {
			c.mu.Unlock()
			return fmt.Errorf("restore session: %w", clearErr)
		}
	}
	if cred != nil && cred.Expired(c.now()) {
		c.logger.WithField("subject", cred.UserID).Info("stored credential expired, clearing")
		if err := c.store.Clear(ctx); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("restore session: %w", err)
		}
		cred = nil
	}

	switch {
	case cred != nil:
		c.cred = cred
		c.state = Authenticated
	default:
		c.cred = nil
		hs, err := c.store.LoadHandshake(ctx)
		if err != nil && !errors.Is(err, credential.ErrCorrupt) {
			c.mu.Unlock()
			return fmt.Errorf("restore session: %w", err)
		}
		if err != nil {
			c.logger.WithError(err).Warn("pending handshake unreadable, clearing")
			_ = c.store.ClearHandshake(ctx)
		}
		if hs != nil {
			c.state = Authenticating
		} else {
			c.state = Anonymous
		}
	}

	var transitions []events.SessionTransition
	if c.state != from {
		transitions = append(transitions, c.transition(from, c.state, events.CauseRestore))
	}
	c.publish(transitions)
	return nil
}

// Start begins a handshake and returns the URL to send the user to.
// The handshake is persisted before the URL is returned so it survives a restart.
func (c *Controller) Start(ctx context.Context, returnTo string) (string, error) {
	c.mu.Lock()
	if c.state == Authenticated {
		c.mu.Unlock()
		return "", ErrAlreadyAuthenticated
	}

	hs := credential.Handshake{
		State:     uuid.NewString(),
		Verifier:  oauth2.GenerateVerifier(),
		ReturnTo:  returnTo,
		StartedAt: c.now().UTC(),
	}
	if err := c.store.SaveHandshake(ctx, hs); err != nil {
		c.mu.Unlock()
		return "", fmt.Errorf("start sign-in: %w", err)
	}

	from := c.state
	c.state = Authenticating
	authURL := c.oauth.AuthCodeURL(hs.State, oauth2.S256ChallengeOption(hs.Verifier))
	c.logger.WithField("return_to", returnTo).Info("sign-in started")

	c.publish([]events.SessionTransition{c.transition(from, Authenticating, events.CauseStart)})
	return authURL, nil
}

// Complete finishes the handshake from the callback query parameters.
// It returns the new credential and the return point recorded by Start.
func (c *Controller) Complete(ctx context.Context, callback url.Values) (*auth.Credential, string, error) {
	c.mu.Lock()
	hs, err := c.store.LoadHandshake(ctx)
	if err != nil && !errors.Is(err, credential.ErrCorrupt) {
		c.mu.Unlock()
		return nil, "", fmt.Errorf("complete sign-in: %w", err)
	}

	if hs == nil && c.state == Authenticated {
		c.mu.Unlock()
		return nil, "", &domain.AuthError{Kind: domain.KindInvalidSession, Reason: "no sign-in in progress"}
	}
	if idpErr := callback.Get("error"); idpErr != "" {
		reason := idpErr
		if desc := callback.Get("error_description"); desc != "" {
			reason += ": " + desc
		}
		return nil, "", c.failLocked(ctx, reason, nil)
	}
	if hs == nil {
		return nil, "", c.failLocked(ctx, "no sign-in in progress", err)
	}
	if callback.Get("state") != hs.State {
		return nil, "", c.failLocked(ctx, "state mismatch", nil)
	}
	code := callback.Get("code")
	if code == "" {
		return nil, "", c.failLocked(ctx, "missing authorization code", nil)
	}
	c.mu.Unlock()

	exchangeCtx := ctx
	if c.httpClient != nil {
		exchangeCtx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	token, exchangeErr := c.oauth.Exchange(exchangeCtx, code, oauth2.VerifierOption(hs.Verifier))

	c.mu.Lock()
	current, err := c.store.LoadHandshake(ctx)
	if err != nil && !errors.Is(err, credential.ErrCorrupt) {
		c.mu.Unlock()
		return nil, "", fmt.Errorf("complete sign-in: %w", err)
	}
	if current == nil || current.State != hs.State {
		c.mu.Unlock()
		c.logger.Warn("discarding token exchange for a superseded handshake")
		return nil, "", &domain.AuthError{Kind: domain.KindInvalidSession, Reason: "handshake superseded"}
	}
	if exchangeErr != nil {
		return nil, "", c.failLocked(ctx, "token exchange failed", exchangeErr)
	}

	cred, err := auth.DecodeToken(token.AccessToken)
	if err != nil {
		return nil, "", c.failLocked(ctx, "unusable access token", err)
	}
	if cred.Expired(c.now()) {
		return nil, "", c.failLocked(ctx, "access token already expired", nil)
	}
	if err := c.store.Save(ctx, *cred); err != nil {
		c.mu.Unlock()
		return nil, "", fmt.Errorf("complete sign-in: %w", err)
	}
	if err := c.store.ClearHandshake(ctx); err != nil {
		c.logger.WithError(err).Warn("failed to clear completed handshake")
	}

	from := c.state
	c.cred = cred
	c.state = Authenticated
	observability.RecordAuthenticated(c.now())
	c.logger.WithField("subject", cred.UserID).Info("signed in")

	c.publish([]events.SessionTransition{c.transition(from, Authenticated, events.CauseComplete)})
	copied := *cred
	return &copied, hs.ReturnTo, nil
}

// failLocked abandons the handshake, settles in Anonymous and releases c.mu.
// A credential held until now is cleared from the store too.
func (c *Controller) failLocked(ctx context.Context, reason string, cause error) error {
	if err := c.store.ClearHandshake(ctx); err != nil {
		c.logger.WithError(err).Warn("failed to clear abandoned handshake")
	}
	if c.cred != nil {
		if err := c.store.Clear(ctx); err != nil {
			c.logger.WithError(err).Warn("failed to clear credential after failed sign-in")
		}
	}
	from := c.state
	c.cred = nil
	c.state = Anonymous
	c.logger.WithField("reason", reason).Warn("sign-in failed")

	c.publish([]events.SessionTransition{c.transition(from, Anonymous, events.CauseFailed)})
	return &domain.AuthError{Kind: domain.KindInvalidSession, Reason: reason, Err: cause}
}

// Logout clears credential and handshake and always notifies observers.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	err := errors.Join(c.store.Clear(ctx), c.store.ClearHandshake(ctx))
	tr := c.transition(c.state, Anonymous, events.CauseLogout)
	c.cred = nil
	c.state = Anonymous
	c.logger.Info("signed out")

	c.publish([]events.SessionTransition{tr})
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Invalidate handles a credential the backend rejected.
// An Authenticated session passes through Invalidated and settles in Anonymous.
func (c *Controller) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	err := c.store.Clear(ctx)
	from := c.state

	var transitions []events.SessionTransition
	if from == Authenticated {
		transitions = append(transitions,
			c.transition(Authenticated, Invalidated, events.CauseRejected),
			c.transition(Invalidated, Anonymous, events.CauseSettled),
		)
		c.cred = nil
		c.state = Anonymous
		c.logger.Warn("credential rejected by backend, session invalidated")
	}
	c.publish(transitions)
	if err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}
	return nil
}

// UpdateProfile edits the display claims of the active credential and persists them.
// The subject cannot be changed.
func (c *Controller) UpdateProfile(ctx context.Context, update func(*auth.Claims)) (*auth.Credential, error) {
	c.mu.Lock()
	if c.state != Authenticated || c.cred == nil {
		c.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	next := *c.cred
	update(&next.Claims)
	next.Claims.Subject = c.cred.Claims.Subject
	next.UserID = c.cred.UserID
	if err := c.store.Save(ctx, next); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("update profile: %w", err)
	}
	c.cred = &next

	c.publish([]events.SessionTransition{c.transition(Authenticated, Authenticated, events.CauseProfile)})
	copied := next
	return &copied, nil
}

func (c *Controller) transition(from, to State, cause events.Cause) events.SessionTransition {
	tr := events.SessionTransition{From: from, To: to, Cause: cause, OccurredAt: c.now().UTC()}
	if c.cred != nil {
		tr.Subject = c.cred.UserID
	}
	observability.RecordSessionTransition(string(to), string(cause))
	return tr
}
