package devserver

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"example.com/fitnessclient/internal/auth"
)

const codeTTL = 5 * time.Minute

// IdentityProvider is a minimal authorization-code + PKCE provider that approves every request.
type IdentityProvider struct {
	clientID string
	signer   auth.SignerConfig
	profile  auth.Claims
	now      func() time.Time
	logger   *logrus.Entry

	mu    sync.Mutex
	codes map[string]grant
}

type grant struct {
	challenge   string
	redirectURI string
	expiresAt   time.Time
}

// NewIdentityProvider builds a provider that signs in every user as profile.
func NewIdentityProvider(clientID string, signer auth.SignerConfig, profile auth.Claims, now func() time.Time, logger *logrus.Entry) *IdentityProvider {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &IdentityProvider{
		clientID: clientID,
		signer:   signer,
		profile:  profile,
		now:      now,
		logger:   logger.WithField("component", "idp"),
		codes:    make(map[string]grant),
	}
}

// RegisterRoutes wires the authorize and token endpoints.
func (p *IdentityProvider) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/oauth/authorize", p.authorize)
	mux.HandleFunc("/oauth/token", p.token)
}

// IssueToken mints an access token directly, bypassing the handshake.
func (p *IdentityProvider) IssueToken(claims auth.Claims) (string, error) {
	token, err := auth.Issue(p.signer, claims, p.now())
	if err != nil {
		return "", err
	}
	recordTokenIssued()
	return token, nil
}

func (p *IdentityProvider) authorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	q := r.URL.Query()
	redirectURI := q.Get("redirect_uri")
	target, err := url.Parse(redirectURI)
	if err != nil || redirectURI == "" || target.Scheme == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "redirect_uri is required")
		return
	}

	reject := func(code, description string) {
		values := target.Query()
		values.Set("error", code)
		values.Set("error_description", description)
		values.Set("state", q.Get("state"))
		target.RawQuery = values.Encode()
		http.Redirect(w, r, target.String(), http.StatusFound)
	}

	switch {
	case q.Get("client_id") != p.clientID:
		reject("unauthorized_client", "unknown client")
		return
	case q.Get("response_type") != "code":
		reject("unsupported_response_type", "only code is supported")
		return
	case q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "":
		reject("invalid_request", "PKCE S256 challenge is required")
		return
	case !hasScope(q.Get("scope"), "openid"):
		reject("invalid_scope", "openid scope is required")
		return
	}

	code := uuid.NewString()
	p.mu.Lock()
	p.codes[code] = grant{
		challenge:   q.Get("code_challenge"),
		redirectURI: redirectURI,
		expiresAt:   p.now().Add(codeTTL),
	}
	p.mu.Unlock()

	values := target.Query()
	values.Set("code", code)
	values.Set("state", q.Get("state"))
	target.RawQuery = values.Encode()
	p.logger.WithField("redirect_uri", redirectURI).Debug("authorization approved")
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (p *IdentityProvider) token(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, "invalid_request", "unable to parse form")
		return
	}
	if r.PostForm.Get("grant_type") != "authorization_code" {
		writeOAuthError(w, "unsupported_grant_type", "only authorization_code is supported")
		return
	}
	if r.PostForm.Get("client_id") != p.clientID {
		writeOAuthError(w, "invalid_client", "unknown client")
		return
	}

	code := r.PostForm.Get("code")
	p.mu.Lock()
	g, ok := p.codes[code]
	delete(p.codes, code)
	p.mu.Unlock()

	switch {
	case !ok || p.now().After(g.expiresAt):
		writeOAuthError(w, "invalid_grant", "unknown or expired code")
		return
	case g.redirectURI != r.PostForm.Get("redirect_uri"):
		writeOAuthError(w, "invalid_grant", "redirect_uri mismatch")
		return
	}
	verifier := r.PostForm.Get("code_verifier")
	expected := oauth2.S256ChallengeFromVerifier(verifier)
	if verifier == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(g.challenge)) != 1 {
		writeOAuthError(w, "invalid_grant", "code_verifier does not match challenge")
		return
	}

	token, err := p.IssueToken(p.profile)
	if err != nil {
		writeOAuthError(w, "server_error", err.Error())
		return
	}
	ttl := p.signer.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(ttl.Seconds()),
		"scope":        "openid profile email",
	})
}

func hasScope(scopes, want string) bool {
	for _, s := range strings.Fields(scopes) {
		if s == want {
			return true
		}
	}
	return false
}

func writeOAuthError(w http.ResponseWriter, code, description string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error":             code,
		"error_description": description,
	})
}
