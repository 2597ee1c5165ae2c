// Package app wires application dependencies for the CLI.
//
// It builds the stores, trust store, transport client and receiver from
// Config, exposing them via the Wire struct for commands to use.
package app
