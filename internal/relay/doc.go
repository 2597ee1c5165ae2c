// Package relay provides the HTTPS implementation of the domain.RelayClient
// interface used by courier.
//
// The relay is the store-and-forward service holding still-encrypted
// envelopes and attachment blobs for an account. This package offers a
// concrete client for it.
//
// Supported operations include:
//   - Fetching the queued envelope backlog.
//   - Acknowledging a delivered envelope by (source, timestamp).
//   - Downloading an attachment's ciphertext to a local file.
//
// Every request carries HTTP basic auth and the client's user agent, and is
// made over a TLS configuration rooted in a pinned TrustStore. Non-2xx
// statuses are returned as *domain.TransportError wrapping a status sentinel
// (domain.ErrUnauthorized, domain.ErrNotFound, ...) so callers can use
// errors.Is.
package relay
