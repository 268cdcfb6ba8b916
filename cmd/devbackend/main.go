package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"example.com/fitnessclient/internal/auth"
	"example.com/fitnessclient/internal/config"
	"example.com/fitnessclient/internal/devserver"
	"example.com/fitnessclient/internal/logging"
	httptransport "example.com/fitnessclient/internal/transport/http"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(config.New()).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(v *viper.Viper) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "devbackend",
		Short: "Run an in-memory activity backend with a PKCE identity provider for local development",
		Long: `devbackend serves the activity REST API under /api, an authorization code + PKCE
identity provider under /oauth that signs in every user as the configured profile,
/healthz and prometheus /metrics. Point fitnessctl at it with:

  FITNESS_OIDC_AUTHORIZATION_ENDPOINT=http://localhost:8080/oauth/authorize
  FITNESS_OIDC_TOKEN_ENDPOINT=http://localhost:8080/oauth/token`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromViper(v, configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logs)
			if err != nil {
				return err
			}
			entry := logging.Component(logger, "devbackend")
			settings := cfg.DevServer

			srv := devserver.New(devserver.Config{
				ClientID:      cfg.OIDC.ClientID,
				Secret:        settings.JWTSecret,
				Issuer:        settings.JWTIssuer,
				TokenTTL:      settings.TokenTTL,
				AnalysisDelay: settings.AnalysisDelay,
				Profile: auth.Claims{
					Subject:           settings.DefaultSubject,
					Name:              settings.DefaultName,
					PreferredUsername: settings.DefaultSubject,
					Email:             settings.DefaultEmail,
				},
			}, entry)
			defer srv.Close()

			server := httptransport.NewServer(httptransport.ServerConfig{
				Address:           settings.Address,
				ReadTimeout:       5 * time.Second,
				ReadHeaderTimeout: settings.ReadHeaderTimeout,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}, srv.Handler())

			entry.WithField("analysis_delay", settings.AnalysisDelay).Info("devbackend starting")
			return httptransport.Serve(cmd.Context(), server, nil, entry, settings.ShutdownTimeout)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "Path to a YAML config file")
	flags.String("addr", ":8080", "Listen address")
	flags.Duration("analysis-delay", 5*time.Second, "Delay before a recommendation becomes available")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text, json)")
	_ = v.BindPFlag("devserver.address", flags.Lookup("addr"))
	_ = v.BindPFlag("devserver.analysis-delay", flags.Lookup("analysis-delay"))
	_ = v.BindPFlag("logs.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("logs.format", flags.Lookup("log-format"))
	return cmd
}
