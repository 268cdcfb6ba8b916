package devserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"example.com/fitnessclient/internal/auth"
	"example.com/fitnessclient/internal/domain"
)

// Handler serves the activity REST contract.
type Handler struct {
	repo        *Repository
	recommender *Recommender
	prefix      string
	logger      *logrus.Entry
}

// NewHandler builds a Handler mounted under prefix, e.g. "/api".
func NewHandler(repo *Repository, recommender *Recommender, prefix string, logger *logrus.Entry) *Handler {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{
		repo:        repo,
		recommender: recommender,
		prefix:      strings.TrimRight(prefix, "/"),
		logger:      logger.WithField("component", "api"),
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(h.prefix+"/activities", h.activities)
	mux.HandleFunc(h.prefix+"/recommendations/activity/", h.recommendation)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createActivity(w, r)
	case http.MethodGet:
		h.listActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

// caller resolves the authenticated subject; an X-User-ID that disagrees with the token is refused.
func caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return "", false
	}
	if header := r.Header.Get("X-User-ID"); header != "" && header != claims.Subject {
		writeError(w, http.StatusForbidden, "forbidden", "X-User-ID does not match token subject")
		return "", false
	}
	return claims.Subject, true
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	var req domain.CreateActivityInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	activity, err := h.repo.Create(r.Context(), userID, req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	recordActivityCreated(string(activity.Type))
	if h.recommender != nil {
		h.recommender.Schedule(activity)
	}
	h.logger.WithFields(logrus.Fields{"activity_id": activity.ID, "user_id": userID}).Info("activity created")
	writeJSON(w, http.StatusCreated, activity)
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	items, err := h.repo.List(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) recommendation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, h.prefix+"/recommendations/activity/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	activity, err := h.repo.Recommendation(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, ErrActivityNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "recommendation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
