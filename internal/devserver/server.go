// Package devserver is an in-process stand-in for the fitness REST backend and its
// OIDC provider, used by integration tests and the devbackend command.
package devserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"example.com/fitnessclient/internal/auth"
)

// Config wires the dev backend.
type Config struct {
	ClientID      string
	Secret        string
	Issuer        string
	TokenTTL      time.Duration
	AnalysisDelay time.Duration
	AllowOrigin   string
	Profile       auth.Claims
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Server bundles the fake identity provider and activity API behind one handler.
type Server struct {
	Repository    *Repository
	Recommender   *Recommender
	IdP           *IdentityProvider
	Authenticator *Authenticator

	handler http.Handler
}

// New assembles the dev backend.
func New(cfg Config, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.AllowOrigin == "" {
		cfg.AllowOrigin = "http://localhost:5173"
	}
	signer := auth.SignerConfig{Secret: cfg.Secret, Issuer: cfg.Issuer, TTL: cfg.TokenTTL}

	repo := NewRepository(cfg.Now)
	recommender := NewRecommender(repo, cfg.AnalysisDelay, logger)
	idp := NewIdentityProvider(cfg.ClientID, signer, cfg.Profile, cfg.Now, logger)
	authn := NewAuthenticator(signer, publicPath, cfg.Now)

	mux := http.NewServeMux()
	idp.RegisterRoutes(mux)
	NewHandler(repo, recommender, "/api", logger).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		Repository:    repo,
		Recommender:   recommender,
		IdP:           idp,
		Authenticator: authn,
		handler:       requestLogger(logger, cors(cfg.AllowOrigin, authn.Wrap(mux))),
	}
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close stops pending analyses.
func (s *Server) Close() {
	s.Recommender.Stop()
}

func publicPath(r *http.Request) bool {
	return r.Method == http.MethodOptions ||
		strings.HasPrefix(r.URL.Path, "/oauth/") ||
		r.URL.Path == "/healthz" ||
		r.URL.Path == "/metrics"
}
