// Package commands defines the courier CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init        Seal account credentials under a passphrase and save the profile
//   - recv        Drain the queued backlog, acknowledging each envelope
//   - attachment  Download, verify and decrypt one attachment
//   - pipe        Hold a push connection open and print envelopes as they arrive
//
// # Implementation
//
// The root command resolves the home directory and logger before any
// subcommand runs. Commands that talk to the service load the saved profile
// and credentials, then build the dependency graph with app.NewWire.
package commands
