package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"courier/internal/app"
	"courier/internal/mailbox"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		addr     string
		certFile string
		keyFile  string
		logLevel string
		accounts []string
	)
	cmd := &cobra.Command{
		Use:          "relay",
		Short:        "In-memory mailbox service for development",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (certFile == "") != (keyFile == "") {
				return errors.New("--cert and --key must be given together")
			}
			logger, _, err := app.SetupLogger(logLevel, os.Stderr)
			if err != nil {
				return err
			}

			box := mailbox.New(logger)
			for _, a := range accounts {
				user, password, key, err := parseAccount(a)
				if err != nil {
					return err
				}
				box.Register(user, password, key)
				logger.Info("account registered", "user", user)
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           box,
				ReadHeaderTimeout: 10 * time.Second,
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() {
				logger.Info("relay listening", "addr", addr, "tls", certFile != "")
				if certFile != "" {
					errc <- srv.ListenAndServeTLS(certFile, keyFile)
				} else {
					errc <- srv.ListenAndServe()
				}
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&certFile, "cert", "", "TLS certificate (PEM)")
	cmd.Flags().StringVar(&keyFile, "key", "", "TLS private key (PEM)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug|info|warn|error")
	cmd.Flags().StringArrayVar(&accounts, "account", nil, "pre-register user:password[:signalingKey] (repeatable)")
	return cmd
}

// parseAccount splits "user:password[:signalingKey]". The signaling key is
// base64 and may itself not contain ':'.
func parseAccount(s string) (user, password, key string, err error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("--account %q: want user:password[:signalingKey]", s)
	}
	if len(parts) == 3 {
		key = parts[2]
	}
	return parts[0], parts[1], key, nil
}
