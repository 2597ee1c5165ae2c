// Package main runs the in-memory mailbox service used by courier during
// development. See package mailbox for the HTTP and websocket API.
//
// Usage
//
//	relay --addr :8443 --cert server.pem --key server-key.pem
//	relay --addr 127.0.0.1:8080            # plain http, no pinning needed
//	relay --account +15550001:pw:<signaling key>
//
// The certificate passed with --cert is what clients pin with --trust-store.
// All state is held in memory and lost on process exit.
package main
