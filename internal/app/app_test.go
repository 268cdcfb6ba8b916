package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fitnessclient/internal/auth"
	"example.com/fitnessclient/internal/config"
	"example.com/fitnessclient/internal/credential"
	"example.com/fitnessclient/internal/devserver"
	"example.com/fitnessclient/internal/domain"
	"example.com/fitnessclient/internal/gateway"
	"example.com/fitnessclient/internal/session"
	"example.com/fitnessclient/internal/view"
)

type backend struct {
	srv *devserver.Server
	ts  *httptest.Server

	mu      sync.Mutex
	headers []http.Header
}

func (b *backend) lastHeader() http.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.headers[len(b.headers)-1]
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	b.srv = devserver.New(devserver.Config{
		ClientID: "oauth2-pkce-client",
		Secret:   "app-test-secret",
		Issuer:   "app-test",
		TokenTTL: time.Hour,
		Profile:  auth.Claims{Subject: "user-42", Name: "Ada Runner", Email: "ada@example.com"},
	}, nil)
	b.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.headers = append(b.headers, r.Header.Clone())
		b.mu.Unlock()
		b.srv.Handler().ServeHTTP(w, r)
	}))
	t.Cleanup(func() {
		b.ts.Close()
		b.srv.Close()
	})
	return b
}

func testConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	v := config.New()
	v.Set("api.base-url", baseURL+"/api")
	v.Set("api.timeout", "2s")
	v.Set("oidc.authorization-endpoint", baseURL+"/oauth/authorize")
	v.Set("oidc.token-endpoint", baseURL+"/oauth/token")
	v.Set("session.store", config.StoreMemory)
	cfg, err := config.FromViper(v, "")
	require.NoError(t, err)
	return cfg
}

func signedInStore(t *testing.T, b *backend) *credential.MemoryStore {
	t.Helper()
	token, err := b.srv.IdP.IssueToken(auth.Claims{Subject: "user-42", Name: "Ada Runner"})
	require.NoError(t, err)
	cred, err := auth.DecodeToken(token)
	require.NoError(t, err)
	store := credential.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), *cred))
	return store
}

func newApp(t *testing.T, cfg config.Config, opts ...Option) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestRestoredSessionIsAuthenticated(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, testConfig(t, b.ts.URL), WithStore(signedInStore(t, b)))

	require.Equal(t, session.Authenticated, a.Session.State())
	snap := a.Auth.Snapshot()
	require.True(t, snap.IsAuthenticated)
	require.Equal(t, "user-42", snap.UserID)
	require.Equal(t, "Ada Runner", snap.User.Name)
}

func TestCreateActivityRefreshesList(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, testConfig(t, b.ts.URL), WithStore(signedInStore(t, b)))
	ctx := context.Background()

	before := a.Activities.Trigger(ctx)
	require.Equal(t, view.StatusSuccess, before.Status)
	require.Empty(t, before.Data)

	state, err := a.CreateActivity.Submit(ctx, domain.CreateActivityInput{
		Type:           domain.ActivityRunning,
		Duration:       30,
		CaloriesBurned: 300,
	})
	require.NoError(t, err)
	require.Equal(t, view.StatusSuccess, state.Status)
	require.NotEmpty(t, state.Data.ID)

	after := a.Activities.Trigger(ctx)
	require.Equal(t, view.StatusSuccess, after.Status)
	require.Len(t, after.Data, len(before.Data)+1)
	require.Equal(t, state.Data.ID, after.Data[0].ID)

	header := b.lastHeader()
	require.True(t, strings.HasPrefix(header.Get("Authorization"), "Bearer "))
	require.Equal(t, "user-42", header.Get(gateway.HeaderUserID))
}

func TestInvalidInputNeverReachesBackend(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, testConfig(t, b.ts.URL), WithStore(signedInStore(t, b)))

	state, err := a.CreateActivity.Submit(context.Background(), domain.CreateActivityInput{
		Type:     domain.ActivityRunning,
		Duration: 30,
	})
	require.ErrorIs(t, err, domain.ErrMissingField)
	require.Equal(t, view.StatusIdle, state.Status)
	require.Empty(t, b.headers)
}

func TestActivityDetailResolvesRecommendation(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, testConfig(t, b.ts.URL), WithStore(signedInStore(t, b)))
	ctx := context.Background()

	created, err := a.CreateActivity.Submit(ctx, domain.CreateActivityInput{
		Type: domain.ActivityCycling, Duration: 60, CaloriesBurned: 500,
	})
	require.NoError(t, err)

	detail := a.ActivityDetail(created.Data.ID, view.PollPolicy(10*time.Millisecond, 3))
	defer detail.Close()
	state := detail.Trigger(ctx)
	require.Equal(t, view.StatusSuccess, state.Status)
	require.NotNil(t, state.Data.Recommendation)
	require.NotEmpty(t, state.Data.Recommendation.Analysis)
}

func TestActivityDetailNotFound(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, testConfig(t, b.ts.URL), WithStore(signedInStore(t, b)))

	detail := a.ActivityDetail("does-not-exist", view.PollPolicy(5*time.Millisecond, 2))
	defer detail.Close()
	state := detail.Trigger(context.Background())
	require.Equal(t, view.StatusError, state.Status)
	require.Equal(t, domain.KindNotFound, state.Kind())
	require.False(t, state.HasData)
}

func TestAnonymousCallSendsNoCredential(t *testing.T) {
	b := newBackend(t)
	var navigated []string
	a := newApp(t, testConfig(t, b.ts.URL), WithNavigator(gateway.NavigatorFunc(func(_ context.Context, target string) {
		navigated = append(navigated, target)
	})))

	state := a.Activities.Trigger(context.Background())
	require.Equal(t, view.StatusError, state.Status)
	require.Equal(t, domain.KindUnauthenticated, state.Kind())

	header := b.lastHeader()
	require.Empty(t, header.Get("Authorization"))
	require.Empty(t, header.Get(gateway.HeaderUserID))
	require.Equal(t, []string{"/"}, navigated)
}

func TestRejectedCredentialEndsSession(t *testing.T) {
	b := newBackend(t)
	store := signedInStore(t, b)
	a := newApp(t, testConfig(t, b.ts.URL), WithStore(store))
	ctx := context.Background()

	b.srv.Authenticator.Revoke("user-42")
	state := a.Activities.Trigger(ctx)
	require.Equal(t, view.StatusError, state.Status)
	require.Equal(t, domain.KindUnauthenticated, state.Kind())

	require.Equal(t, session.Anonymous, a.Session.State())
	cred, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, cred)
	require.Equal(t, "/", a.Route())

	snap := a.Auth.Snapshot()
	require.False(t, snap.IsAuthenticated)
	require.NotEmpty(t, snap.Error)

	a.Activities.Trigger(ctx)
	require.Empty(t, b.lastHeader().Get("Authorization"))
}

func TestTimeoutSurfacesAsNetworkError(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	cfg := testConfig(t, slow.URL)
	cfg.API.Timeout = 50 * time.Millisecond
	a := newApp(t, cfg)

	state := a.Activities.Trigger(context.Background())
	require.Equal(t, view.StatusError, state.Status)
	require.Equal(t, domain.KindTimeout, state.Kind())
	require.False(t, state.HasData)
}

func TestLoginHandshakeThroughApp(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, testConfig(t, b.ts.URL))
	ctx := context.Background()

	authURL, err := a.Session.Start(ctx, "/activities")
	require.NoError(t, err)
	require.True(t, a.Auth.Snapshot().Loading)

	noFollow := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := noFollow.Get(authURL)
	require.NoError(t, err)
	resp.Body.Close()
	callback, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)

	cred, returnTo, err := a.Session.Complete(ctx, callback.Query())
	require.NoError(t, err)
	require.Equal(t, "/activities", returnTo)
	require.Equal(t, "user-42", cred.UserID)

	snap := a.Auth.Snapshot()
	require.True(t, snap.IsAuthenticated)
	require.False(t, snap.Loading)
	require.Equal(t, "Ada Runner", snap.User.Name)

	_, err = a.UpdateUser(ctx, func(c *auth.Claims) { c.Name = "Ada L." })
	require.NoError(t, err)
	require.Equal(t, "Ada L.", a.Auth.Snapshot().User.Name)

	state := a.Activities.Trigger(ctx)
	require.Equal(t, view.StatusSuccess, state.Status)
}

func TestReadinessPolicyFromConfig(t *testing.T) {
	poll := ReadinessPolicy(config.RecommendationSettings{Policy: config.PolicyPoll, Interval: 2 * time.Second, MaxAttempts: 8})
	require.Equal(t, view.PollPolicy(2*time.Second, 8), poll)

	delay := ReadinessPolicy(config.RecommendationSettings{Policy: config.PolicyDelay, InitialDelay: 10 * time.Second})
	require.Equal(t, view.FixedDelayPolicy(10*time.Second), delay)
}
