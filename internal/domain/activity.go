// Package domain defines the activity records exchanged with the backend and the client error taxonomy.
package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ActivityType enumerates the activity kinds the backend accepts.
type ActivityType string

const (
	ActivityRunning        ActivityType = "RUNNING"
	ActivityWalking        ActivityType = "WALKING"
	ActivityCycling        ActivityType = "CYCLING"
	ActivitySwimming       ActivityType = "SWIMMING"
	ActivityWeightTraining ActivityType = "WEIGHT_TRAINING"
	ActivityYoga           ActivityType = "YOGA"
	ActivityHIIT           ActivityType = "HIT"
	ActivityCardio         ActivityType = "CARDIO"
	ActivityStretching     ActivityType = "STRETCHING"
	ActivityOther          ActivityType = "OTHER"
)

// MetricKind describes the value shape of an optional metric.
type MetricKind int

const (
	MetricNumber MetricKind = iota
	MetricText
)

// MetricSpec describes one optional metric an activity type may carry.
type MetricSpec struct {
	Name string
	Kind MetricKind
	Unit string
}

var (
	metricDistance  = MetricSpec{Name: "distance", Kind: MetricNumber, Unit: "km"}
	metricHeartRate = MetricSpec{Name: "heartRate", Kind: MetricNumber, Unit: "bpm"}
	metricLocation  = MetricSpec{Name: "location", Kind: MetricText}
)

type activityTypeInfo struct {
	label   string
	metrics []MetricSpec
}

var activityTypes = map[ActivityType]activityTypeInfo{
	ActivityRunning:        {label: "Running", metrics: []MetricSpec{metricDistance, metricHeartRate, metricLocation}},
	ActivityWalking:        {label: "Walking", metrics: []MetricSpec{metricDistance, metricHeartRate, metricLocation}},
	ActivityCycling:        {label: "Cycling", metrics: []MetricSpec{metricDistance, metricHeartRate, metricLocation}},
	ActivitySwimming:       {label: "Swimming", metrics: []MetricSpec{metricDistance, metricHeartRate, metricLocation}},
	ActivityWeightTraining: {label: "Weight Training", metrics: []MetricSpec{metricHeartRate, metricLocation}},
	ActivityYoga:           {label: "Yoga", metrics: []MetricSpec{metricHeartRate, metricLocation}},
	ActivityHIIT:           {label: "HIIT", metrics: []MetricSpec{metricHeartRate}},
	ActivityCardio:         {label: "Cardio", metrics: []MetricSpec{metricHeartRate}},
	ActivityStretching:     {label: "Stretching", metrics: []MetricSpec{metricHeartRate, metricLocation}},
	ActivityOther:          {label: "Other", metrics: []MetricSpec{metricDistance, metricHeartRate, metricLocation}},
}

// ActivityTypes returns every known type in a stable order.
func ActivityTypes() []ActivityType {
	out := make([]ActivityType, 0, len(activityTypes))
	for t := range activityTypes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseActivityType normalises user input ("running", "Weight Training") to a known type.
func ParseActivityType(value string) (ActivityType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	if normalized == "HIIT" {
		normalized = string(ActivityHIIT)
	}
	t := ActivityType(normalized)
	if !t.Valid() {
		return "", InvalidValue("activityType", fmt.Sprintf("must be one of %s", joinTypes()))
	}
	return t, nil
}

func joinTypes() string {
	types := ActivityTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// Valid reports whether t is part of the enumeration.
func (t ActivityType) Valid() bool {
	_, ok := activityTypes[t]
	return ok
}

// Label returns the display name, e.g. "Weight Training" or "HIIT".
func (t ActivityType) Label() string {
	if info, ok := activityTypes[t]; ok {
		return info.label
	}
	if t == "" {
		return ""
	}
	s := string(t)
	return s[:1] + strings.ToLower(s[1:])
}

// Metrics returns the optional-metric schema of t.
func (t ActivityType) Metrics() []MetricSpec {
	info, ok := activityTypes[t]
	if !ok {
		return nil
	}
	out := make([]MetricSpec, len(info.metrics))
	copy(out, info.metrics)
	return out
}

// Metric looks up one metric of the schema by name.
func (t ActivityType) Metric(name string) (MetricSpec, bool) {
	for _, m := range activityTypes[t].metrics {
		if m.Name == name {
			return m, true
		}
	}
	return MetricSpec{}, false
}

// Recommendation is the analysis bundle the backend attaches to an activity asynchronously.
type Recommendation struct {
	Analysis     string   `json:"recommendation"`
	Improvements []string `json:"improvements"`
	Suggestions  []string `json:"suggestions"`
	Safety       []string `json:"safety"`
}

// Empty reports whether the bundle carries no content yet.
func (r *Recommendation) Empty() bool {
	return r == nil || (strings.TrimSpace(r.Analysis) == "" && len(r.Improvements) == 0 && len(r.Suggestions) == 0 && len(r.Safety) == 0)
}

// Activity is the client-side copy of a backend activity record.
type Activity struct {
	ID                string
	UserID            string
	Type              ActivityType
	Duration          int
	CaloriesBurned    int
	StartTime         *time.Time
	AdditionalMetrics map[string]any
	CreatedAt         *time.Time
	UpdatedAt         *time.Time
	Recommendation    *Recommendation
}

type activityJSON struct {
	ID                string         `json:"id,omitempty"`
	ActivityID        string         `json:"activityId,omitempty"`
	UserID            string         `json:"userId,omitempty"`
	Type              ActivityType   `json:"type,omitempty"`
	ActivityType      ActivityType   `json:"activityType,omitempty"`
	Duration          int            `json:"duration"`
	CaloriesBurned    int            `json:"caloriesBurned"`
	StartTime         *time.Time     `json:"startTime,omitempty"`
	AdditionalMetrics map[string]any `json:"additionalMetrics,omitempty"`
	CreatedAt         *time.Time     `json:"createdAt,omitempty"`
	UpdatedAt         *time.Time     `json:"updatedAt,omitempty"`
	Recommendation    string         `json:"recommendation,omitempty"`
	Improvements      []string       `json:"improvements,omitempty"`
	Suggestions       []string       `json:"suggestions,omitempty"`
	Safety            []string       `json:"safety,omitempty"`
}

// UnmarshalJSON accepts both the list shape ("type") and the recommendation shape
// ("activityType", "activityId", flattened bundle).
func (a *Activity) UnmarshalJSON(data []byte) error {
	var raw activityJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Activity{
		ID:                raw.ID,
		UserID:            raw.UserID,
		Type:              raw.Type,
		Duration:          raw.Duration,
		CaloriesBurned:    raw.CaloriesBurned,
		StartTime:         raw.StartTime,
		AdditionalMetrics: raw.AdditionalMetrics,
		CreatedAt:         raw.CreatedAt,
		UpdatedAt:         raw.UpdatedAt,
	}
	if a.ID == "" {
		a.ID = raw.ActivityID
	}
	if a.Type == "" {
		a.Type = raw.ActivityType
	}
	rec := &Recommendation{
		Analysis:     raw.Recommendation,
		Improvements: raw.Improvements,
		Suggestions:  raw.Suggestions,
		Safety:       raw.Safety,
	}
	if !rec.Empty() {
		a.Recommendation = rec
	}
	return nil
}

// MarshalJSON emits the backend's shape with the bundle flattened.
func (a Activity) MarshalJSON() ([]byte, error) {
	raw := activityJSON{
		ID:                a.ID,
		UserID:            a.UserID,
		Type:              a.Type,
		ActivityType:      a.Type,
		Duration:          a.Duration,
		CaloriesBurned:    a.CaloriesBurned,
		StartTime:         a.StartTime,
		AdditionalMetrics: a.AdditionalMetrics,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
	if a.Recommendation != nil {
		raw.ActivityID = a.ID
		raw.Recommendation = a.Recommendation.Analysis
		raw.Improvements = a.Recommendation.Improvements
		raw.Suggestions = a.Recommendation.Suggestions
		raw.Safety = a.Recommendation.Safety
	}
	return json.Marshal(raw)
}

// When returns the start time, falling back to the creation time.
func (a Activity) When() time.Time {
	if a.StartTime != nil {
		return *a.StartTime
	}
	if a.CreatedAt != nil {
		return *a.CreatedAt
	}
	return time.Time{}
}

// CreateActivityInput is the body of POST /activities.
type CreateActivityInput struct {
	Type              ActivityType   `json:"activityType"`
	Duration          int            `json:"duration"`
	CaloriesBurned    int            `json:"caloriesBurned"`
	StartTime         *time.Time     `json:"startTime,omitempty"`
	AdditionalMetrics map[string]any `json:"additionalMetrics,omitempty"`
}

// Validate enforces the form rules before anything is sent.
func (in CreateActivityInput) Validate() error {
	if strings.TrimSpace(string(in.Type)) == "" {
		return MissingField("activityType")
	}
	if !in.Type.Valid() {
		return InvalidValue("activityType", fmt.Sprintf("must be one of %s", joinTypes()))
	}
	if in.Duration == 0 {
		return MissingField("duration")
	}
	if in.Duration < 1 {
		return InvalidValue("duration", "must be at least 1 minute")
	}
	if in.CaloriesBurned == 0 {
		return MissingField("caloriesBurned")
	}
	if in.CaloriesBurned < 1 {
		return InvalidValue("caloriesBurned", "must be at least 1")
	}
	for name, value := range in.AdditionalMetrics {
		spec, ok := in.Type.Metric(name)
		if !ok {
			return InvalidValue("additionalMetrics."+name, fmt.Sprintf("is not recorded for %s", in.Type.Label()))
		}
		if err := checkMetric(spec, value); err != nil {
			return err
		}
	}
	return nil
}

func checkMetric(spec MetricSpec, value any) error {
	field := "additionalMetrics." + spec.Name
	switch spec.Kind {
	case MetricNumber:
		var n float64
		switch v := value.(type) {
		case int:
			n = float64(v)
		case int64:
			n = float64(v)
		case float64:
			n = v
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return InvalidValue(field, "must be a number")
			}
			n = f
		default:
			return InvalidValue(field, "must be a number")
		}
		if n <= 0 {
			return InvalidValue(field, "must be positive")
		}
	case MetricText:
		s, ok := value.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return InvalidValue(field, "must be non-empty text")
		}
	}
	return nil
}
