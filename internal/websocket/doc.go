// Package websocket maintains the persistent, authenticated connection over
// which the service pushes envelopes.
//
// Frames are JSON objects of the form
//
//	{"type":"request","request":{"id":"..","verb":"PUT","path":"/api/v1/message","body":".."}}
//	{"type":"response","response":{"id":"..","status":200,"message":"OK"}}
//
// Either side may send requests; each request is answered by a response with
// the same id. A Connection runs one reader goroutine that queues incoming
// requests for ReadRequest, and one keepalive goroutine that sends
// GET /v1/keepalive on an interval. Nothing runs until Connect is called, and
// Disconnect stops both goroutines.
package websocket
