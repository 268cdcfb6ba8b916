package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"example.com/fitnessclient/internal/app"
	"example.com/fitnessclient/internal/config"
	"example.com/fitnessclient/internal/gateway"
	"example.com/fitnessclient/internal/logging"
)

// cli carries state shared by every subcommand once the root has initialised.
type cli struct {
	v           *viper.Viper
	configPath  string
	metricsFile string

	cfg    config.Config
	logger *logrus.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	c := &cli{v: config.New()}

	root := &cobra.Command{
		Use:          "fitnessctl",
		Short:        "Sign in and manage fitness activities from the terminal",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromViper(c.v, c.configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logs)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = logger
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.metricsFile == "" {
				return nil
			}
			return writeMetrics(c.metricsFile, prometheus.DefaultGatherer)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "Path to a YAML config file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text, json)")
	flags.String("api", "", "Backend base URL, e.g. http://localhost:8080/api")
	flags.StringVar(&c.metricsFile, "metrics-file", "", "Write client metrics in Prometheus text format to this file on exit")
	_ = c.v.BindPFlag("logs.level", flags.Lookup("log-level"))
	_ = c.v.BindPFlag("logs.format", flags.Lookup("log-format"))
	_ = c.v.BindPFlag("api.base-url", flags.Lookup("api"))

	root.AddCommand(
		newLoginCommand(c),
		newLogoutCommand(c),
		newWhoamiCommand(c),
		newActivitiesCommand(c),
	)
	return root
}

// open builds the client for one command invocation.
func (c *cli) open(ctx context.Context) (*app.App, error) {
	expired := gateway.NavigatorFunc(func(context.Context, string) {
		fmt.Fprintln(os.Stderr, `Your session has expired. Run "fitnessctl login" to sign in again.`)
	})
	a, err := app.New(ctx, c.cfg,
		app.WithLogger(logging.Component(c.logger, "fitnessctl")),
		app.WithNavigator(expired))
	if err != nil {
		return nil, fmt.Errorf("initialise client: %w", err)
	}
	return a, nil
}

// writeMetrics dumps every registered collector for a node_exporter textfile collector or a later push.
func writeMetrics(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
