package devserver

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/fitnessclient/internal/domain"
)

// ErrActivityNotFound is returned when an activity does not exist for the caller.
var ErrActivityNotFound = errors.New("activity not found")

// Repository stores activities and their recommendations in memory.
type Repository struct {
	mu              sync.RWMutex
	activities      map[string]domain.Activity
	byUser          map[string][]string
	recommendations map[string]domain.Recommendation
	now             func() time.Time
}

// NewRepository constructs an empty repository.
func NewRepository(now func() time.Time) *Repository {
	if now == nil {
		now = time.Now
	}
	return &Repository{
		activities:      make(map[string]domain.Activity),
		byUser:          make(map[string][]string),
		recommendations: make(map[string]domain.Recommendation),
		now:             now,
	}
}

// Create records a new activity for userID.
func (r *Repository) Create(ctx context.Context, userID string, in domain.CreateActivityInput) (domain.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	activity := domain.Activity{
		ID:                uuid.NewString(),
		UserID:            userID,
		Type:              in.Type,
		Duration:          in.Duration,
		CaloriesBurned:    in.CaloriesBurned,
		StartTime:         in.StartTime,
		AdditionalMetrics: in.AdditionalMetrics,
		CreatedAt:         &now,
		UpdatedAt:         &now,
	}
	if activity.StartTime == nil {
		activity.StartTime = &now
	}
	r.activities[activity.ID] = activity
	r.byUser[userID] = append(r.byUser[userID], activity.ID)
	return activity, nil
}

// List returns the user's activities, newest first.
func (r *Repository) List(ctx context.Context, userID string) ([]domain.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byUser[userID]
	out := make([]domain.Activity, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.activities[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].When().After(out[j].When()) })
	return out, nil
}

// Get returns one activity owned by userID.
func (r *Repository) Get(ctx context.Context, userID, id string) (*domain.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	activity, ok := r.activities[id]
	if !ok || activity.UserID != userID {
		return nil, ErrActivityNotFound
	}
	return &activity, nil
}

// SaveRecommendation attaches an analysis bundle to an activity.
func (r *Repository) SaveRecommendation(ctx context.Context, activityID string, rec domain.Recommendation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	activity, ok := r.activities[activityID]
	if !ok {
		return ErrActivityNotFound
	}
	now := r.now().UTC()
	activity.UpdatedAt = &now
	r.activities[activityID] = activity
	r.recommendations[activityID] = rec
	return nil
}

// Recommendation returns the activity with its bundle, or ErrActivityNotFound when either is missing.
func (r *Repository) Recommendation(ctx context.Context, userID, activityID string) (*domain.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	activity, ok := r.activities[activityID]
	if !ok || activity.UserID != userID {
		return nil, ErrActivityNotFound
	}
	rec, ok := r.recommendations[activityID]
	if !ok {
		return nil, ErrActivityNotFound
	}
	activity.Recommendation = &rec
	return &activity, nil
}
