package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taralshah99/email-dossier-cli/pkg/gmail"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the Gmail OAuth session",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to Gmail via the browser consent flow",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("auth"); err != nil {
			return err
		}
		mgr := initAuthManager()

		redirect, err := url.Parse(cfg.Auth.RedirectURL)
		if err != nil {
			return eris.Wrap(err, "parse redirect URL")
		}

		state := uuid.New().String()
		codeCh := make(chan string, 1)

		mux := http.NewServeMux()
		mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("state") != state {
				http.Error(w, "state mismatch", http.StatusBadRequest)
				return
			}
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "missing code", http.StatusBadRequest)
				return
			}
			fmt.Fprintln(w, "Login complete. You can close this tab.")
			codeCh <- code
		})

		srv := &http.Server{Addr: redirect.Host, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zap.L().Error("callback server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context30s()
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		fmt.Fprintf(os.Stderr, "Open this URL in your browser to log in:\n\n  %s\n\n", mgr.LoginURL(state))

		var code string
		select {
		case code = <-codeCh:
		case <-ctx.Done():
			return eris.Wrap(ctx.Err(), "login canceled")
		case <-time.After(5 * time.Minute):
			return eris.New("timed out waiting for the OAuth callback")
		}

		if err := mgr.Exchange(ctx, code); err != nil {
			return err
		}

		// Record the mailbox owner so status and relevancy scoring know
		// which address is "me".
		httpClient, err := mgr.HTTPClient(ctx)
		if err != nil {
			return err
		}
		gc, err := gmail.NewClient(ctx, httpClient)
		if err != nil {
			return err
		}
		profile, err := gc.Profile(ctx)
		if err != nil {
			return eris.Wrap(err, "fetch gmail profile")
		}
		if err := mgr.SetEmail(profile.EmailAddress); err != nil {
			return err
		}

		zap.L().Info("login complete", zap.String("email", profile.EmailAddress))
		fmt.Fprintf(os.Stderr, "Logged in as %s\n", profile.EmailAddress)
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session status",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("auth"); err != nil {
			return err
		}
		status, err := initAuthManager().Status(cmd.Context())
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored Gmail session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("auth"); err != nil {
			return err
		}
		if err := initAuthManager().Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "Logged out.")
		return nil
	},
}

func init() {
	authCmd.AddCommand(authLoginCmd, authStatusCmd, authLogoutCmd)
	rootCmd.AddCommand(authCmd)
}
