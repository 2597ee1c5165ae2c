// Package store keeps per-account state under the configured home directory.
//
// Credentials are sealed at rest with a passphrase (scrypt, then
// ChaCha20-Poly1305) in credentials.enc. Non-secret connection settings live
// in plain JSON in profile.json. Every write goes through a temp file and a
// rename so a crash never leaves a half-written file behind.
package store
