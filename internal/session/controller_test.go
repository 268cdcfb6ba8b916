package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fitnessclient/internal/auth"
	"example.com/fitnessclient/internal/credential"
	"example.com/fitnessclient/internal/devserver"
	"example.com/fitnessclient/internal/domain"
	"example.com/fitnessclient/internal/events"
)

type recorder struct {
	mu          sync.Mutex
	transitions []events.SessionTransition
}

func (r *recorder) SessionChanged(tr events.SessionTransition, _ *auth.Credential) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, tr)
}

func (r *recorder) causes() []events.Cause {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Cause, len(r.transitions))
	for i, tr := range r.transitions {
		out[i] = tr.Cause
	}
	return out
}

func newIdP(t *testing.T) (*devserver.Server, Config) {
	t.Helper()
	srv := devserver.New(devserver.Config{
		ClientID: "oauth2-pkce-client",
		Secret:   "session-secret",
		Issuer:   "session-test",
		TokenTTL: time.Hour,
		Profile:  auth.Claims{Subject: "user-7", Name: "Grace", Email: "grace@example.com"},
	}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, Config{
		ClientID:              "oauth2-pkce-client",
		AuthorizationEndpoint: ts.URL + "/oauth/authorize",
		TokenEndpoint:         ts.URL + "/oauth/token",
		RedirectURL:           "http://localhost:5173",
	}
}

func newController(t *testing.T, cfg Config, store credential.Persistence, opts ...Option) (*Controller, *recorder) {
	t.Helper()
	c, err := NewController(cfg, store, opts...)
	require.NoError(t, err)
	rec := &recorder{}
	c.Subscribe(rec)
	require.NoError(t, c.Restore(context.Background()))
	return c, rec
}

// authorize follows the authorization URL and returns the callback query.
func authorize(t *testing.T, authURL string) url.Values {
	t.Helper()
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Get(authURL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	return location.Query()
}

func TestFullHandshake(t *testing.T) {
	_, cfg := newIdP(t)
	store := credential.NewMemoryStore()
	c, rec := newController(t, cfg, store)
	ctx := context.Background()
	require.Equal(t, Anonymous, c.State())

	authURL, err := c.Start(ctx, "/activities")
	require.NoError(t, err)
	require.Equal(t, Authenticating, c.State())

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	require.Equal(t, "S256", parsed.Query().Get("code_challenge_method"))
	require.Equal(t, "openid profile email", parsed.Query().Get("scope"))

	cred, returnTo, err := c.Complete(ctx, authorize(t, authURL))
	require.NoError(t, err)
	require.Equal(t, "/activities", returnTo)
	require.Equal(t, "user-7", cred.UserID)
	require.Equal(t, "Grace", cred.Claims.Name)
	require.Equal(t, Authenticated, c.State())

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, stored.Equal(cred))
	hs, err := store.LoadHandshake(ctx)
	require.NoError(t, err)
	require.Nil(t, hs)

	require.Equal(t, []events.Cause{events.CauseStart, events.CauseComplete}, rec.causes())
}

func TestHandshakeResumesAfterRestart(t *testing.T) {
	_, cfg := newIdP(t)
	store := credential.NewMemoryStore()
	ctx := context.Background()

	first, _ := newController(t, cfg, store)
	authURL, err := first.Start(ctx, "/")
	require.NoError(t, err)
	callback := authorize(t, authURL)

	second, rec := newController(t, cfg, store)
	require.Equal(t, Authenticating, second.State())

	_, _, err = second.Complete(ctx, callback)
	require.NoError(t, err)
	require.Equal(t, Authenticated, second.State())
	require.Equal(t, []events.Cause{events.CauseRestore, events.CauseComplete}, rec.causes())
}

func TestStateMismatchFailsHandshake(t *testing.T) {
	_, cfg := newIdP(t)
	store := credential.NewMemoryStore()
	c, rec := newController(t, cfg, store)
	ctx := context.Background()

	authURL, err := c.Start(ctx, "/")
	require.NoError(t, err)
	callback := authorize(t, authURL)
	callback.Set("state", "forged")

	_, _, err = c.Complete(ctx, callback)
	require.ErrorIs(t, err, domain.ErrInvalidSession)
	require.Equal(t, Anonymous, c.State())

	cred, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, cred)
	hs, err := store.LoadHandshake(ctx)
	require.NoError(t, err)
	require.Nil(t, hs)
	require.Equal(t, []events.Cause{events.CauseStart, events.CauseFailed}, rec.causes())
}

func TestIdentityProviderErrorFailsHandshake(t *testing.T) {
	_, cfg := newIdP(t)
	c, _ := newController(t, cfg, credential.NewMemoryStore())
	ctx := context.Background()

	_, err := c.Start(ctx, "/")
	require.NoError(t, err)

	_, _, err = c.Complete(ctx, url.Values{"error": {"access_denied"}, "error_description": {"user cancelled"}})
	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, domain.KindInvalidSession, authErr.Kind)
	require.Contains(t, authErr.Reason, "access_denied")
	require.Equal(t, Anonymous, c.State())
}

func TestUnknownClientIsRejected(t *testing.T) {
	_, cfg := newIdP(t)
	cfg.ClientID = "someone-else"
	c, _ := newController(t, cfg, credential.NewMemoryStore())
	ctx := context.Background()

	authURL, err := c.Start(ctx, "/")
	require.NoError(t, err)
	callback := authorize(t, authURL)
	require.Equal(t, "unauthorized_client", callback.Get("error"))

	_, _, err = c.Complete(ctx, callback)
	require.ErrorIs(t, err, domain.ErrInvalidSession)
	require.Equal(t, Anonymous, c.State())
}

func TestStartWhileAuthenticated(t *testing.T) {
	srv, cfg := newIdP(t)
	store := credential.NewMemoryStore()
	token, err := srv.IdP.IssueToken(auth.Claims{Subject: "user-7"})
	require.NoError(t, err)
	cred, err := auth.DecodeToken(token)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), *cred))

	c, _ := newController(t, cfg, store)
	require.Equal(t, Authenticated, c.State())
	_, err = c.Start(context.Background(), "/")
	require.ErrorIs(t, err, ErrAlreadyAuthenticated)

	_, _, err = c.Complete(context.Background(), url.Values{"error": {"access_denied"}})
	require.ErrorIs(t, err, domain.ErrInvalidSession)
	require.Equal(t, Authenticated, c.State())
}

func TestCompleteRejectsExpiredAccessToken(t *testing.T) {
	_, cfg := newIdP(t)
	store := credential.NewMemoryStore()
	later := func() time.Time { return time.Now().Add(2 * time.Hour) }
	c, rec := newController(t, cfg, store, WithClock(later))
	ctx := context.Background()

	authURL, err := c.Start(ctx, "/")
	require.NoError(t, err)

	cred, _, err := c.Complete(ctx, authorize(t, authURL))
	require.ErrorIs(t, err, domain.ErrInvalidSession)
	require.Nil(t, cred)
	require.Equal(t, Anonymous, c.State())
	require.Nil(t, c.Credential())

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, stored)
	require.Equal(t, []events.Cause{events.CauseStart, events.CauseFailed}, rec.causes())
}

func TestFailedCallbackClearsStoredCredential(t *testing.T) {
	srv, cfg := newIdP(t)
	store := credential.NewMemoryStore()
	ctx := context.Background()
	token, err := srv.IdP.IssueToken(auth.Claims{Subject: "user-7"})
	require.NoError(t, err)
	cred, err := auth.DecodeToken(token)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, *cred))
	require.NoError(t, store.SaveHandshake(ctx, credential.Handshake{State: "left-over", Verifier: "v", StartedAt: time.Now()}))

	c, _ := newController(t, cfg, store)
	require.Equal(t, Authenticated, c.State())

	_, _, err = c.Complete(ctx, url.Values{"error": {"access_denied"}})
	require.ErrorIs(t, err, domain.ErrInvalidSession)
	require.Equal(t, Anonymous, c.State())
	require.Nil(t, c.Credential())

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, stored, "store must not resurrect the session on restart")

	restarted, _ := newController(t, cfg, store)
	require.Equal(t, Anonymous, restarted.State())
}

func TestObserverMayReadStateDuringConcurrentTransitions(t *testing.T) {
	_, cfg := newIdP(t)
	c, _ := newController(t, cfg, credential.NewMemoryStore())
	ctx := context.Background()

	var mu sync.Mutex
	seen := 0
	c.Subscribe(ObserverFunc(func(events.SessionTransition, *auth.Credential) {
		_ = c.State()
		_ = c.Credential()
		mu.Lock()
		seen++
		mu.Unlock()
	}))

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 25; j++ {
					_, _ = c.Start(ctx, "/")
					_ = c.Logout(ctx)
				}
			}()
		}
		wg.Wait()
	}()

	select {
	case <-finished:
	case <-time.After(10 * time.Second):
		t.Fatal("observer reading state deadlocked the controller")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Positive(t, seen)
}

func TestLogoutAlwaysNotifies(t *testing.T) {
	_, cfg := newIdP(t)
	c, rec := newController(t, cfg, credential.NewMemoryStore())

	require.NoError(t, c.Logout(context.Background()))
	require.Equal(t, []events.Cause{events.CauseLogout}, rec.causes())
	require.Equal(t, Anonymous, c.State())
}

func TestRestoreClearsExpiredCredential(t *testing.T) {
	_, cfg := newIdP(t)
	store := credential.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, auth.Credential{
		Token:  "stale",
		UserID: "user-7",
		Claims: auth.Claims{Subject: "user-7", ExpiresAt: time.Now().Add(-time.Minute)},
	}))

	c, rec := newController(t, cfg, store)
	require.Equal(t, Anonymous, c.State())
	require.Empty(t, rec.causes())
	cred, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, cred)
}

func TestInvalidatePassesThroughInvalidated(t *testing.T) {
	_, cfg := newIdP(t)
	store := credential.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, auth.Credential{
		Token:  "token",
		UserID: "user-7",
		Claims: auth.Claims{Subject: "user-7", ExpiresAt: time.Now().Add(time.Hour)},
	}))

	c, rec := newController(t, cfg, store)
	require.NoError(t, c.Invalidate(ctx))
	require.Equal(t, Anonymous, c.State())
	require.Nil(t, c.Credential())

	rec.mu.Lock()
	trs := append([]events.SessionTransition(nil), rec.transitions...)
	rec.mu.Unlock()
	require.Len(t, trs, 3)
	require.Equal(t, Invalidated, trs[1].To)
	require.Equal(t, "user-7", trs[1].Subject)
	require.Equal(t, Anonymous, trs[2].To)

	// a second invalidation is a no-op
	require.NoError(t, c.Invalidate(ctx))
	require.Len(t, rec.causes(), 3)
}

func TestUpdateProfileKeepsSubject(t *testing.T) {
	_, cfg := newIdP(t)
	store := credential.NewMemoryStore()
	ctx := context.Background()

	c, _ := newController(t, cfg, store)
	_, err := c.UpdateProfile(ctx, func(*auth.Claims) {})
	require.ErrorIs(t, err, ErrNotAuthenticated)

	require.NoError(t, store.Save(ctx, auth.Credential{
		Token:  "token",
		UserID: "user-7",
		Claims: auth.Claims{Subject: "user-7", Name: "Grace"},
	}))
	require.NoError(t, c.Restore(ctx))

	updated, err := c.UpdateProfile(ctx, func(claims *auth.Claims) {
		claims.Name = "Grace H."
		claims.Subject = "someone-else"
	})
	require.NoError(t, err)
	require.Equal(t, "Grace H.", updated.Claims.Name)
	require.Equal(t, "user-7", updated.Claims.Subject)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "Grace H.", stored.Claims.Name)
}
