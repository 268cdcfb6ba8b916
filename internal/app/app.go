// Package app wires configuration, the session, the gateway and the view controllers
// into one client instance.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"example.com/fitnessclient/internal/auth"
	"example.com/fitnessclient/internal/config"
	"example.com/fitnessclient/internal/credential"
	"example.com/fitnessclient/internal/domain"
	"example.com/fitnessclient/internal/gateway"
	"example.com/fitnessclient/internal/session"
	"example.com/fitnessclient/internal/view"
)

// ActivitiesView is the name of the activity list view.
const ActivitiesView = "activities"

// App is a fully wired client.
type App struct {
	Config       config.Config
	Session      *session.Controller
	Auth         *AuthState
	Gateway      *gateway.Client
	Invalidation *view.Invalidation

	// Activities lists the signed-in user's activities and refreshes after every create.
	Activities *view.Controller[[]domain.Activity]
	// CreateActivity submits new activities.
	CreateActivity *view.Mutation[domain.CreateActivityInput, *domain.Activity]

	store  credential.Persistence
	logger *logrus.Entry
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	route   string
	closers []func() error
}

type appOptions struct {
	store       credential.Persistence
	logger      *logrus.Entry
	transport   http.RoundTripper
	oauthClient *http.Client
	navigator   gateway.Navigator
}

// Option customises App construction.
type Option func(*appOptions)

// WithStore overrides the configured credential store backend.
func WithStore(store credential.Persistence) Option {
	return func(o *appOptions) { o.store = store }
}

// WithLogger sets the base logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(o *appOptions) { o.logger = logger }
}

// WithTransport sets the transport for REST calls.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *appOptions) { o.transport = rt }
}

// WithOAuthClient sets the client used for the token exchange.
func WithOAuthClient(client *http.Client) Option {
	return func(o *appOptions) { o.oauthClient = client }
}

// WithNavigator receives the navigation issued when the backend rejects the credential.
// The route is always recorded and available from Route.
func WithNavigator(nav gateway.Navigator) Option {
	return func(o *appOptions) { o.navigator = nav }
}

// New builds the client and restores any persisted session.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := appOptions{logger: logrus.NewEntry(logrus.StandardLogger())}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		Config:       cfg,
		Auth:         NewAuthState(),
		Invalidation: view.NewInvalidation(),
		logger:       o.logger,
		route:        cfg.App.EntryPoint,
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	store := o.store
	if store == nil {
		var (
			closer func() error
			err    error
		)
		store, closer, err = OpenStore(ctx, cfg, o.logger)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}
	a.store = store

	sessionOpts := []session.Option{session.WithLogger(o.logger)}
	if o.oauthClient != nil {
		sessionOpts = append(sessionOpts, session.WithHTTPClient(o.oauthClient))
	}
	ctrl, err := session.NewController(session.Config{
		ClientID:              cfg.OIDC.ClientID,
		AuthorizationEndpoint: cfg.OIDC.AuthorizationEndpoint,
		TokenEndpoint:         cfg.OIDC.TokenEndpoint,
		RedirectURL:           cfg.OIDC.RedirectURL,
		Scopes:                cfg.OIDC.ScopeList(),
	}, store, sessionOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Session = ctrl
	ctrl.Subscribe(a.Auth)

	if err := ctrl.Restore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	navigator := gateway.NavigatorFunc(func(ctx context.Context, target string) {
		a.mu.Lock()
		a.route = target
		a.mu.Unlock()
		if o.navigator != nil {
			o.navigator.Navigate(ctx, target)
		}
	})
	gwOpts := []gateway.Option{
		gateway.WithTimeout(cfg.API.Timeout),
		gateway.WithInvalidator(ctrl),
		gateway.WithNavigator(navigator, cfg.App.EntryPoint),
		gateway.WithLogger(o.logger),
	}
	if o.transport != nil {
		gwOpts = append(gwOpts, gateway.WithTransport(o.transport))
	}
	gw, err := gateway.NewClient(cfg.API.BaseURL, store, gwOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Gateway = gw

	a.Activities = view.NewController(a.ctx, ActivitiesView, gw.ListActivities,
		view.WithInvalidation(a.Invalidation), view.WithLogger(o.logger))
	a.CreateActivity = view.NewMutation(a.ctx, "create_activity", gw.CreateActivity,
		func(in domain.CreateActivityInput) error { return in.Validate() },
		view.Invalidates(a.Invalidation), view.WithLogger(o.logger))
	return a, nil
}

// OpenStore opens the configured credential store. The returned closer may be nil.
func OpenStore(ctx context.Context, cfg config.Config, logger *logrus.Entry) (credential.Persistence, func() error, error) {
	switch cfg.Session.Store {
	case config.StoreMemory:
		return credential.NewMemoryStore(), nil, nil
	case config.StoreRedis:
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		store := credential.NewRedisStore(client, cfg.Redis.KeyPrefix,
			credential.WithHandshakeTTL(cfg.Session.HandshakeTTL),
			credential.WithRedisLogger(logger))
		return store, client.Close, nil
	case config.StoreFile, "":
		dir := cfg.Session.Path
		if dir == "" {
			base, err := os.UserConfigDir()
			if err != nil {
				return nil, nil, fmt.Errorf("resolve config dir: %w", err)
			}
			dir = filepath.Join(base, "fitnessctl")
		}
		store, err := credential.NewFileStore(dir, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store %q", cfg.Session.Store)
	}
}

// ReadinessPolicy converts the recommendation settings into a view policy.
func ReadinessPolicy(cfg config.RecommendationSettings) view.ReadinessPolicy {
	if cfg.Policy == config.PolicyDelay {
		return view.FixedDelayPolicy(cfg.InitialDelay)
	}
	return view.PollPolicy(cfg.Interval, cfg.MaxAttempts)
}

// ActivityDetail builds a detail view for id that waits for the recommendation bundle per policy.
// The caller closes the returned controller.
func (a *App) ActivityDetail(id string, policy view.ReadinessPolicy) *view.Controller[*domain.Activity] {
	fetch := view.AwaitReady(
		func(ctx context.Context) (*domain.Activity, error) {
			return a.Gateway.GetActivityRecommendation(ctx, id)
		},
		func(act *domain.Activity) bool { return act != nil && !act.Recommendation.Empty() },
		policy,
	)
	return view.NewController(a.ctx, "activity_detail", fetch, view.WithLogger(a.logger))
}

// UpdateUser edits the display profile of the signed-in user.
func (a *App) UpdateUser(ctx context.Context, update func(*auth.Claims)) (*auth.Credential, error) {
	return a.Session.UpdateProfile(ctx, update)
}

// Route returns the last route the client was sent to.
func (a *App) Route() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.route
}

// Store exposes the credential store in use.
func (a *App) Store() credential.Persistence {
	return a.store
}

// Close disposes views and releases backend connections.
func (a *App) Close() error {
	if a.Activities != nil {
		a.Activities.Close()
	}
	if a.CreateActivity != nil {
		a.CreateActivity.Close()
	}
	a.cancel()

	var errs []error
	for _, closer := range a.closers {
		errs = append(errs, closer())
	}
	a.closers = nil
	return errors.Join(errs...)
}
