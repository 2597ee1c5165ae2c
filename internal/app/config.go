package app

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"courier/internal/store"
)

// Config holds runtime wiring options for building the app.
type Config struct {
	Home           string        // config directory, e.g. $HOME/.courier
	ServiceURL     string        // service base URL, e.g. https://127.0.0.1:8443
	TrustStorePath string        // PEM bundle pinned for ServiceURL; required for https
	UserAgent      string        // sent as X-Signal-Agent
	LogLevel       string        // debug|info|warn|error
	HTTP           *http.Client  // optional; replaces the pull client only, pipes still pin TrustStorePath
	Timeout        time.Duration // per API request; zero keeps the transport default
}

// Validate reports the first missing or malformed field.
func (c Config) Validate() error {
	if c.Home == "" {
		return errors.New("Home must be set")
	}
	if c.ServiceURL == "" {
		return errors.New("ServiceURL must be set")
	}
	u, err := url.Parse(c.ServiceURL)
	if err != nil || u.Host == "" {
		return errors.New("ServiceURL must be an absolute URL")
	}
	switch u.Scheme {
	case "https":
		if c.TrustStorePath == "" {
			return errors.New("TrustStorePath must be set for https")
		}
	case "http":
	default:
		return errors.New("ServiceURL scheme must be http or https")
	}
	if c.UserAgent == "" {
		return errors.New("UserAgent must be set")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return errors.New("Timeout must not be negative")
	}
	return nil
}

// ApplyProfile fills fields left empty from the saved profile.
func (c *Config) ApplyProfile(p store.Profile) {
	if c.ServiceURL == "" {
		c.ServiceURL = p.ServiceURL
	}
	if c.TrustStorePath == "" {
		c.TrustStorePath = p.TrustStorePath
	}
	if c.UserAgent == "" {
		c.UserAgent = p.UserAgent
	}
}
