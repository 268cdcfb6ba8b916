package devserver

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"example.com/fitnessclient/internal/auth"
)

// Skipper allows callers to bypass authentication for specific requests.
type Skipper func(r *http.Request) bool

// Authenticator validates bearer tokens and supports revoking a subject's outstanding tokens.
type Authenticator struct {
	signer  auth.SignerConfig
	skipper Skipper
	now     func() time.Time

	mu      sync.RWMutex
	revoked map[string]time.Time
}

// NewAuthenticator constructs an authenticator with optional skipper.
func NewAuthenticator(signer auth.SignerConfig, skipper Skipper, now func() time.Time) *Authenticator {
	if now == nil {
		now = time.Now
	}
	return &Authenticator{signer: signer, skipper: skipper, now: now, revoked: make(map[string]time.Time)}
}

// Revoke rejects every token for subject issued up to now.
func (a *Authenticator) Revoke(subject string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked[subject] = a.now().Truncate(time.Second)
}

func (a *Authenticator) isRevoked(claims *auth.Claims) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	at, ok := a.revoked[claims.Subject]
	return ok && !claims.IssuedAt.After(at)
}

// Wrap wraps an http.Handler with authentication.
func (a *Authenticator) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skipper != nil && a.skipper(r) {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := a.parseRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		if a.isRevoked(claims) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "token revoked")
			return
		}
		ctx := auth.WithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) parseRequest(r *http.Request) (*auth.Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, auth.ErrMissingToken
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return nil, auth.ErrInvalidToken
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	return auth.Verify(token, a.signer)
}

// requestLogger logs each request with its outcome.
func requestLogger(logger *logrus.Entry, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		recordHTTPRequest(r.Method, routeLabel(r.URL.Path), rec.status)
		logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"elapsed":    time.Since(started),
			"request_id": r.Header.Get("X-Request-ID"),
		}).Info("request handled")
	})
}

// cors mirrors the permissive policy the browser client needs during local development.
func cors(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/recommendations/activity/"):
		return "/api/recommendations/activity/{id}"
	case strings.HasPrefix(path, "/api/activities"):
		return "/api/activities"
	case strings.HasPrefix(path, "/oauth/"), path == "/healthz", path == "/metrics":
		return path
	default:
		return "other"
	}
}
