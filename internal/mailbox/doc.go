// Package mailbox is an in-memory message service for development and tests.
// It speaks the same HTTP and websocket protocol the receiver consumes.
//
// HTTP API
//
//	PUT /v1/accounts/{user} {"password":"..","signalingKey":".."}
//	    Create or replace an account. Unauthenticated.
//
//	PUT /v1/messages/{destination}
//	    Queue an EnvelopeEntity for {destination}. A zero timestamp is
//	    replaced with the current time in milliseconds. Unauthenticated.
//
//	GET /v1/messages/
//	    Return {"messages":[...]} for the authenticated account.
//
//	DELETE /v1/messages/{source}/{timestamp}
//	    Drop one queued envelope. 404 when it is not queued.
//
//	POST /v1/attachments/
//	    Store the request body and return {"id":N}.
//
//	GET /v1/attachments/{id}
//	    Return {"id":N,"location":"/attachments/{id}"}.
//
//	GET /attachments/{id}
//	    Return the stored bytes. Unauthenticated, as a CDN would be.
//
//	GET /v1/websocket/?login=..&password=..
//	    Upgrade to a websocket. Queued and newly deposited envelopes are
//	    pushed as PUT /api/v1/message with a signaling frame body and removed
//	    once the client answers 200.
//
// Authenticated endpoints take basic auth "user[.device]:password". All state
// lives in memory and is lost when the process exits.
package mailbox
