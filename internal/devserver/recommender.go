package devserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"example.com/fitnessclient/internal/domain"
)

// Recommender produces analysis bundles some time after an activity is created,
// mimicking a backend that analyses activities asynchronously.
type Recommender struct {
	repo   *Repository
	delay  time.Duration
	logger *logrus.Entry

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// NewRecommender builds a recommender writing into repo after delay.
func NewRecommender(repo *Repository, delay time.Duration, logger *logrus.Entry) *Recommender {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Recommender{
		repo:   repo,
		delay:  delay,
		logger: logger.WithField("component", "recommender"),
		timers: make(map[string]*time.Timer),
	}
}

// Schedule queues analysis of activity; with no delay it runs inline.
func (r *Recommender) Schedule(activity domain.Activity) {
	if r.delay <= 0 {
		r.generate(activity)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.timers[activity.ID] = time.AfterFunc(r.delay, func() {
		r.mu.Lock()
		delete(r.timers, activity.ID)
		stopped := r.stopped
		r.mu.Unlock()
		if !stopped {
			r.generate(activity)
		}
	})
}

// Pending reports how many analyses are still queued.
func (r *Recommender) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Stop cancels queued analyses.
func (r *Recommender) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	for id, timer := range r.timers {
		timer.Stop()
		delete(r.timers, id)
	}
}

func (r *Recommender) generate(activity domain.Activity) {
	rec := Analyze(activity)
	if err := r.repo.SaveRecommendation(context.Background(), activity.ID, rec); err != nil {
		r.logger.WithError(err).WithField("activity_id", activity.ID).Error("failed to store recommendation")
		return
	}
	recordRecommendation(string(activity.Type))
	r.logger.WithField("activity_id", activity.ID).Debug("recommendation ready")
}

// Analyze derives a deterministic bundle from the activity's numbers.
func Analyze(a domain.Activity) domain.Recommendation {
	perMinute := 0.0
	if a.Duration > 0 {
		perMinute = float64(a.CaloriesBurned) / float64(a.Duration)
	}
	intensity := "moderate"
	switch {
	case perMinute >= 12:
		intensity = "high"
	case perMinute < 6:
		intensity = "light"
	}

	rec := domain.Recommendation{
		Analysis: fmt.Sprintf("%s session of %d minutes burning %d calories (%.1f kcal/min), a %s intensity effort.",
			a.Type.Label(), a.Duration, a.CaloriesBurned, perMinute, intensity),
		Improvements: []string{fmt.Sprintf("Extend your next %s session by 5 minutes to build endurance.", a.Type.Label())},
		Suggestions:  []string{"Schedule a recovery day after two consecutive training days."},
		Safety:       []string{"Hydrate before and after training."},
	}
	if intensity == "high" {
		rec.Safety = append(rec.Safety, "Warm up for at least 10 minutes before high intensity work.")
	}
	if hr, ok := a.AdditionalMetrics["heartRate"].(float64); ok && hr > 170 {
		rec.Safety = append(rec.Safety, "Your heart rate was very high; consider keeping it below 170 bpm.")
	}
	if intensity == "light" {
		rec.Suggestions = append(rec.Suggestions, "Add short intervals to raise the training stimulus.")
	}
	return rec
}
