package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"example.com/fitnessclient/internal/domain"
)

func TestBuildInputParsesFlags(t *testing.T) {
	in, err := buildInput("running", 30, 300, "2024-05-01T07:30:00Z", []string{"distance=5.2", "location=park"})
	require.NoError(t, err)
	require.Equal(t, domain.ActivityRunning, in.Type)
	require.Equal(t, 5.2, in.AdditionalMetrics["distance"])
	require.Equal(t, "park", in.AdditionalMetrics["location"])
	require.NotNil(t, in.StartTime)
	require.Equal(t, 2024, in.StartTime.Year())
}

func TestBuildInputRejectsBadValues(t *testing.T) {
	_, err := buildInput("", 30, 300, "", nil)
	require.ErrorIs(t, err, domain.ErrMissingField)

	_, err = buildInput("rowing", 30, 300, "", nil)
	require.ErrorIs(t, err, domain.ErrInvalidValue)

	_, err = buildInput("running", 30, 300, "yesterday", nil)
	require.ErrorIs(t, err, domain.ErrInvalidValue)

	_, err = buildInput("running", 30, 300, "", []string{"distance=far"})
	require.ErrorIs(t, err, domain.ErrInvalidValue)

	_, err = buildInput("hiit", 30, 300, "", []string{"distance=3"})
	require.ErrorIs(t, err, domain.ErrInvalidValue)

	_, err = buildInput("running", -5, 300, "", nil)
	require.ErrorIs(t, err, domain.ErrInvalidValue)
}

func TestPrintActivitiesEmpty(t *testing.T) {
	var buf bytes.Buffer
	printActivities(&buf, nil)
	require.Equal(t, "No activities yet.\n", buf.String())
}

func TestPrintActivitiesNewestFirst(t *testing.T) {
	older := time.Date(2024, time.May, 1, 7, 0, 0, 0, time.UTC)
	newer := older.Add(48 * time.Hour)
	undated := domain.Activity{ID: "undated", Type: domain.ActivityHIIT}

	var buf bytes.Buffer
	printActivities(&buf, []domain.Activity{
		{ID: "older", Type: domain.ActivityRunning, StartTime: &older},
		undated,
		{ID: "newer", Type: domain.ActivityCycling, CreatedAt: &newer},
	})

	out := buf.String()
	require.Less(t, strings.Index(out, "newer"), strings.Index(out, "older"))
	require.Less(t, strings.Index(out, "older"), strings.Index(out, "undated"))
}

func TestPrintDetailShowsRecommendation(t *testing.T) {
	var buf bytes.Buffer
	printDetail(&buf, &domain.Activity{
		ID:             "a1",
		Type:           domain.ActivityYoga,
		Duration:       45,
		CaloriesBurned: 150,
		Recommendation: &domain.Recommendation{
			Analysis: "Calm session.",
			Safety:   []string{"Stretch gently."},
		},
	})
	require.Contains(t, buf.String(), "Yoga, 45 minutes, 150 calories")
	require.Contains(t, buf.String(), "Calm session.")
	require.Contains(t, buf.String(), "  - Stretch gently.")
	require.NotContains(t, buf.String(), "Improvements")
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCommand()
	for _, path := range [][]string{{"login"}, {"login", "complete"}, {"logout"}, {"whoami"}, {"activities", "list"}, {"activities", "add"}, {"activities", "show"}} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		require.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestWriteMetricsDumpsClientCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "fitness_client_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	path := filepath.Join(t.TempDir(), "fitnessctl.prom")
	require.NoError(t, writeMetrics(path, reg))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "fitness_client_test_total 1")

	path = filepath.Join(t.TempDir(), "default.prom")
	require.NoError(t, writeMetrics(path, prometheus.DefaultGatherer))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "fitness_client_gateway_session_invalidations_total")
}

func TestMetricsFileFlagIsRegistered(t *testing.T) {
	root := newRootCommand()
	flag := root.PersistentFlags().Lookup("metrics-file")
	require.NotNil(t, flag)
	require.NotNil(t, root.PersistentPostRunE)
}
