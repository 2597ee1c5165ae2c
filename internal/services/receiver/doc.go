// Package receiver retrieves queued envelopes, resolves attachments and
// hands out push-model message pipes for one account.
//
// Retrieval is at-least-once: each envelope is passed to the handler and only
// then acknowledged, so a crash between the two redelivers it on the next
// call. Callers that need exactly-once must deduplicate on Envelope.Key.
package receiver
