package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"courier/internal/app"
	"courier/internal/domain"
)

const defaultUserAgent = "courier"

var (
	home       string
	passphrase string
	serviceURL string
	trustStore string
	userAgent  string
	logLevel   string
	timeout    time.Duration

	logger *slog.Logger
)

func Execute() error {
	root := &cobra.Command{
		Use:          "courier",
		Short:        "Receive queued and pushed messages for one account",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".courier")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}
			l, _, err := app.SetupLogger(logLevel, os.Stderr)
			if err != nil {
				return err
			}
			logger = l
			slog.SetDefault(l)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&home, "home", "", "config dir (default ~/.courier)")
	pf.StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the saved credentials")
	pf.StringVar(&serviceURL, "url", "", "service base URL (e.g. https://127.0.0.1:8443)")
	pf.StringVar(&trustStore, "trust-store", "", "PEM file with the certificates pinned for --url")
	pf.StringVar(&userAgent, "user-agent", "", "client identification sent to the service (default \""+defaultUserAgent+"\")")
	pf.StringVar(&logLevel, "log-level", "info", "log level: debug|info|warn|error")
	pf.DurationVar(&timeout, "timeout", 0, "per-request timeout (default 30s)")

	root.AddCommand(initCmd(), recvCmd(), attachmentCmd(), pipeCmd())
	return root.Execute()
}

// config merges flags over the saved profile.
func config() (app.Config, error) {
	cfg := app.Config{
		Home:           home,
		ServiceURL:     serviceURL,
		TrustStorePath: trustStore,
		UserAgent:      userAgent,
		LogLevel:       logLevel,
		Timeout:        timeout,
	}
	_, profiles := app.NewStores(cfg)
	p, ok, err := profiles.LoadProfile()
	if err != nil {
		return cfg, err
	}
	if ok {
		cfg.ApplyProfile(p)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return cfg, nil
}

// loadWire opens the saved credentials and builds the app for them.
func loadWire() (*app.Wire, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase required (-p)")
	}
	cfg, err := config()
	if err != nil {
		return nil, err
	}
	credStore, _ := app.NewStores(cfg)
	creds, err := credStore.LoadCredentials(passphrase)
	if err != nil {
		return nil, err
	}
	return app.NewWire(cfg, domain.NewCredentialsProvider(creds), logger)
}
