package app

import (
	"log/slog"

	"courier/internal/domain"
	"courier/internal/relay"
	"courier/internal/services/receiver"
	"courier/internal/store"
)

// Wire bundles the stores, clients and services for the CLI.
type Wire struct {
	Credentials store.CredentialsStore
	Profiles    store.ProfileStore
	Trust       domain.TrustStore
	Relay       *relay.HTTP
	Receiver    *receiver.Service
	Logger      *slog.Logger
}

// NewStores returns the file stores rooted at cfg.Home. They need no
// credentials, so init can use them before anything is saved.
func NewStores(cfg Config) (store.CredentialsStore, store.ProfileStore) {
	return store.NewCredentialsFileStore(cfg.Home), store.NewProfileFileStore(cfg.Home)
}

// NewWire constructs the dependency graph from cfg for the account in creds.
func NewWire(cfg Config, creds domain.CredentialsProvider, logger *slog.Logger) (*Wire, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	trust, err := loadTrust(cfg)
	if err != nil {
		return nil, err
	}

	rc := relay.NewHTTP(cfg.ServiceURL, trust, creds, cfg.UserAgent)
	rc.Logger = logger
	if cfg.HTTP != nil {
		rc.HTTP = cfg.HTTP
	}
	if cfg.Timeout > 0 {
		rc.Timeout = cfg.Timeout
	}

	credStore, profileStore := NewStores(cfg)
	return &Wire{
		Credentials: credStore,
		Profiles:    profileStore,
		Trust:       trust,
		Relay:       rc,
		Receiver:    receiver.NewWithRelay(rc, cfg.ServiceURL, trust, creds, cfg.UserAgent, logger),
		Logger:      logger,
	}, nil
}

// loadTrust reads the pinned bundle. Validate insists on one for https, so
// an empty pool only ever backs plain http.
func loadTrust(cfg Config) (domain.TrustStore, error) {
	if cfg.TrustStorePath == "" {
		return relay.TrustCertificates(), nil
	}
	return relay.LoadTrustStore(cfg.TrustStorePath)
}
