package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"example.com/fitnessclient/internal/app"
	"example.com/fitnessclient/internal/config"
	"example.com/fitnessclient/internal/domain"
	"example.com/fitnessclient/internal/view"
)

func newActivitiesCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "activities",
		Aliases: []string{"activity"},
		Short:   "List, add and inspect activities",
	}
	cmd.AddCommand(newListCommand(c), newAddCommand(c), newShowCommand(c))
	return cmd
}

func newListCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your activities, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			state := a.Activities.Trigger(cmd.Context())
			if state.Status == view.StatusError {
				return errors.New(state.Message())
			}
			printActivities(cmd.OutOrStdout(), state.Data)
			return nil
		},
	}
}

func newAddCommand(c *cli) *cobra.Command {
	var (
		activityType string
		duration     int
		calories     int
		startTime    string
		metrics      []string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a new activity",
		Example: `  fitnessctl activities add --type running --duration 30 --calories 300 --metric distance=5 --metric location=park
  fitnessctl activities add --type hiit --duration 20 --calories 250 --start-time 2024-05-01T07:30:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := buildInput(activityType, duration, calories, startTime, metrics)
			if err != nil {
				return err
			}

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			state, err := a.CreateActivity.Submit(cmd.Context(), in)
			if err != nil {
				return err
			}
			if state.Status == view.StatusError {
				return errors.New(state.Message())
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Recorded %s activity %s.\n", state.Data.Type.Label(), state.Data.ID)
			fmt.Fprintf(out, "Run \"fitnessctl activities show %s\" to see the analysis once it is ready.\n", state.Data.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&activityType, "type", "", "Activity type, e.g. running, cycling, hiit")
	cmd.Flags().IntVar(&duration, "duration", 0, "Duration in minutes")
	cmd.Flags().IntVar(&calories, "calories", 0, "Calories burned")
	cmd.Flags().StringVar(&startTime, "start-time", "", "Start time (RFC 3339); defaults to now on the backend")
	cmd.Flags().StringArrayVar(&metrics, "metric", nil, "Optional metric as name=value, e.g. heartRate=150 (repeatable)")
	return cmd
}

func newShowCommand(c *cli) *cobra.Command {
	var readiness string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an activity with its recommendation, waiting for the analysis if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			settings := a.Config.Recommendation
			if readiness != "" {
				settings.Policy = readiness
			}
			if settings.Policy != config.PolicyPoll && settings.Policy != config.PolicyDelay {
				return fmt.Errorf("--readiness must be %q or %q", config.PolicyPoll, config.PolicyDelay)
			}

			detail := a.ActivityDetail(args[0], app.ReadinessPolicy(settings))
			defer detail.Close()
			fmt.Fprintln(cmd.ErrOrStderr(), "Waiting for the analysis...")
			state := detail.Trigger(cmd.Context())
			if state.Status == view.StatusError {
				return errors.New(state.Message())
			}
			printDetail(cmd.OutOrStdout(), state.Data)
			return nil
		},
	}
	cmd.Flags().StringVar(&readiness, "readiness", "", "How to wait for the analysis: poll or delay (defaults to config)")
	return cmd
}

// buildInput turns flag values into a create payload; schema validation happens in Validate.
func buildInput(activityType string, duration, calories int, startTime string, metrics []string) (domain.CreateActivityInput, error) {
	in := domain.CreateActivityInput{Duration: duration, CaloriesBurned: calories}
	if strings.TrimSpace(activityType) == "" {
		return in, domain.MissingField("activityType")
	}
	t, err := domain.ParseActivityType(activityType)
	if err != nil {
		return in, err
	}
	in.Type = t

	if startTime != "" {
		ts, err := time.Parse(time.RFC3339, startTime)
		if err != nil {
			return in, domain.InvalidValue("startTime", "must be an RFC 3339 timestamp")
		}
		in.StartTime = &ts
	}

	extra, err := parseMetrics(t, metrics)
	if err != nil {
		return in, err
	}
	in.AdditionalMetrics = extra
	return in, in.Validate()
}

func parseMetrics(t domain.ActivityType, pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, domain.InvalidValue("metric", fmt.Sprintf("%q must look like name=value", pair))
		}
		spec, known := t.Metric(name)
		if !known {
			return nil, domain.InvalidValue("additionalMetrics."+name, fmt.Sprintf("is not recorded for %s", t.Label()))
		}
		if spec.Kind == domain.MetricNumber {
			n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil {
				return nil, domain.InvalidValue("additionalMetrics."+name, "must be a number")
			}
			out[name] = n
			continue
		}
		out[name] = value
	}
	return out, nil
}

func printActivities(out io.Writer, items []domain.Activity) {
	if len(items) == 0 {
		fmt.Fprintln(out, "No activities yet.")
		return
	}
	sorted := append([]domain.Activity(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].When().After(sorted[j].When()) })

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tMINUTES\tCALORIES\tWHEN")
	for _, a := range sorted {
		when := ""
		if t := a.When(); !t.IsZero() {
			when = t.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", a.ID, a.Type.Label(), a.Duration, a.CaloriesBurned, when)
	}
	_ = tw.Flush()
}

func printDetail(out io.Writer, a *domain.Activity) {
	fmt.Fprintf(out, "%s, %d minutes, %d calories\n", a.Type.Label(), a.Duration, a.CaloriesBurned)
	for _, spec := range a.Type.Metrics() {
		if v, ok := a.AdditionalMetrics[spec.Name]; ok {
			fmt.Fprintf(out, "  %s: %v %s\n", spec.Name, v, spec.Unit)
		}
	}
	if a.Recommendation.Empty() {
		fmt.Fprintln(out, "\nThe analysis is not ready yet. Try again in a moment.")
		return
	}
	rec := a.Recommendation
	fmt.Fprintf(out, "\nAnalysis\n  %s\n", rec.Analysis)
	printSection(out, "Improvements", rec.Improvements)
	printSection(out, "Suggestions", rec.Suggestions)
	printSection(out, "Safety", rec.Safety)
}

func printSection(out io.Writer, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s\n", title)
	for _, line := range lines {
		fmt.Fprintf(out, "  - %s\n", line)
	}
}
