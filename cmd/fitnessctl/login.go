package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"example.com/fitnessclient/internal/app"
	"example.com/fitnessclient/internal/domain"
	"example.com/fitnessclient/internal/logging"
	"example.com/fitnessclient/internal/session"
	httptransport "example.com/fitnessclient/internal/transport/http"
)

func newLoginCommand(c *cli) *cobra.Command {
	var (
		noWait   bool
		returnTo string
		wait     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the identity provider",
		Long: `Start an authorization code + PKCE sign-in. The authorization URL is printed and,
unless --no-wait is given, a listener on the redirect URL waits for the callback.
With --no-wait the pending sign-in is saved; finish it later with "fitnessctl login complete".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			authURL, err := a.Session.Start(ctx, returnTo)
			if errors.Is(err, session.ErrAlreadyAuthenticated) {
				fmt.Fprintf(out, "Already signed in as %s.\n", a.Auth.Snapshot().User.DisplayName())
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Open this URL in your browser to sign in:\n\n  %s\n\n", authURL)
			if noWait {
				fmt.Fprintln(out, `Then run "fitnessctl login complete <callback-url>" with the URL you were redirected to.`)
				return nil
			}

			callback, err := awaitCallback(ctx, a.Config.OIDC.RedirectURL, wait, a.Config.DevServer.ReadHeaderTimeout, logging.Component(c.logger, "callback"))
			if err != nil {
				return err
			}
			return complete(ctx, out, a, callback)
		},
	}
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Print the authorization URL and exit without listening for the callback")
	cmd.Flags().StringVar(&returnTo, "return-to", "/", "Route to return to after sign-in")
	cmd.Flags().DurationVar(&wait, "timeout", 5*time.Minute, "How long to wait for the callback")

	cmd.AddCommand(&cobra.Command{
		Use:   "complete <callback-url>",
		Short: "Finish a pending sign-in from the URL the identity provider redirected to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			callback, err := url.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parse callback url: %w", err)
			}
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return complete(cmd.Context(), cmd.OutOrStdout(), a, callback.Query())
		},
	})
	return cmd
}

func newLogoutCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credential and any pending sign-in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func newWhoamiCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			snap := a.Auth.Snapshot()
			switch {
			case snap.IsAuthenticated:
				fmt.Fprintf(out, "Signed in as %s (%s)\n", snap.User.DisplayName(), snap.UserID)
				if snap.User.Email != "" {
					fmt.Fprintf(out, "Email: %s\n", snap.User.Email)
				}
				if !snap.User.ExpiresAt.IsZero() {
					fmt.Fprintf(out, "Session expires: %s\n", snap.User.ExpiresAt.Local().Format(time.RFC1123))
				}
			case snap.Loading:
				fmt.Fprintln(out, "Sign-in in progress; finish it with \"fitnessctl login complete <callback-url>\".")
			default:
				fmt.Fprintln(out, "Not signed in.")
			}
			return nil
		},
	}
}

func complete(ctx context.Context, out io.Writer, a *app.App, callback url.Values) error {
	cred, returnTo, err := a.Session.Complete(ctx, callback)
	if err != nil {
		var authErr *domain.AuthError
		if errors.As(err, &authErr) {
			return fmt.Errorf("sign-in failed: %s", authErr.Reason)
		}
		return err
	}
	fmt.Fprintf(out, "Signed in as %s.\n", cred.Claims.DisplayName())
	if returnTo != "" && returnTo != "/" {
		fmt.Fprintf(out, "Continue at %s\n", returnTo)
	}
	return nil
}

// awaitCallback serves the redirect URL until the identity provider calls back once.
func awaitCallback(ctx context.Context, redirectURL string, wait, readHeaderTimeout time.Duration, logger *logrus.Entry) (url.Values, error) {
	target, err := url.Parse(redirectURL)
	if err != nil || target.Host == "" {
		return nil, fmt.Errorf("redirect url %q cannot be served locally", redirectURL)
	}
	path := target.Path
	if path == "" {
		path = "/"
	}

	ln, err := net.Listen("tcp", target.Host)
	if err != nil {
		return nil, fmt.Errorf("listen for callback on %s: %w", target.Host, err)
	}

	got := make(chan url.Values, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("code") == "" && query.Get("error") == "" {
			http.NotFound(w, r)
			return
		}
		select {
		case got <- query:
			_, _ = io.WriteString(w, "Sign-in received. You can close this window and return to the terminal.\n")
		default:
			http.Error(w, "callback already received", http.StatusConflict)
		}
	})

	serveCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	srv := httptransport.NewServer(httptransport.ServerConfig{
		Address:           target.Host,
		ReadHeaderTimeout: readHeaderTimeout,
	}, mux)

	served := make(chan error, 1)
	go func() { served <- httptransport.Serve(serveCtx, srv, ln, logger, 2*time.Second) }()

	select {
	case query := <-got:
		cancel()
		<-served
		return query, nil
	case <-serveCtx.Done():
		<-served
		return nil, fmt.Errorf("no callback received: %w", serveCtx.Err())
	case err := <-served:
		if err == nil {
			err = serveCtx.Err()
		}
		return nil, fmt.Errorf("callback listener stopped: %w", err)
	}
}
