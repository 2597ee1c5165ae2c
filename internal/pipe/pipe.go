// Package pipe turns a persistent connection into a stream of envelopes.
package pipe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"courier/internal/crypto"
	"courier/internal/domain"
	"courier/internal/websocket"
)

// MessagePath is the request path the service uses to push an envelope.
const MessagePath = "/api/v1/message"

// Connection is the subset of *websocket.Connection a pipe needs.
type Connection interface {
	Connect(ctx context.Context) error
	ReadRequest(ctx context.Context, timeout time.Duration) (*websocket.Request, error)
	SendResponse(resp websocket.Response) error
	Disconnect() error
}

// Compile-time assertion
var _ Connection = (*websocket.Connection)(nil)

// MessagePipe reads pushed envelopes off one connection. It is not safe for
// concurrent Read calls.
type MessagePipe struct {
	conn   Connection
	creds  domain.CredentialsProvider
	logger *slog.Logger
}

func New(conn Connection, creds domain.CredentialsProvider, logger *slog.Logger) *MessagePipe {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessagePipe{conn: conn, creds: creds, logger: logger}
}

// Read connects on first use and blocks until the service pushes an
// envelope, the timeout elapses or ctx is done. A timeout of zero or less
// waits indefinitely. handler, when non-nil, runs before the envelope is
// acknowledged to the service.
//
// Requests that do not carry an envelope are answered with 400 and skipped.
// A pushed frame that fails to open is answered with 400 and reported as
// domain.ErrDecode, so the service keeps it queued.
func (p *MessagePipe) Read(ctx context.Context, timeout time.Duration, handler domain.MessageHandler) (domain.Envelope, error) {
	if err := p.conn.Connect(ctx); err != nil {
		return domain.Envelope{}, err
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		var wait time.Duration
		if !deadline.IsZero() {
			if wait = time.Until(deadline); wait <= 0 {
				return domain.Envelope{}, websocket.ErrTimeout
			}
		}

		req, err := p.conn.ReadRequest(ctx, wait)
		if err != nil {
			return domain.Envelope{}, err
		}
		if !isEnvelope(req) {
			p.logger.Debug("pipe skipped request", "verb", req.Verb, "path", req.Path)
			if err := p.respond(req, http.StatusBadRequest, "Unknown"); err != nil {
				return domain.Envelope{}, err
			}
			continue
		}

		env, err := p.open(req.Body)
		if err != nil {
			if rerr := p.respond(req, http.StatusBadRequest, "Undecodable"); rerr != nil {
				p.logger.Warn("pipe response failed", "id", req.ID, "err", rerr)
			}
			return domain.Envelope{}, err
		}

		if handler != nil {
			handler(env)
		}
		if err := p.respond(req, http.StatusOK, "OK"); err != nil {
			return env, fmt.Errorf("acknowledge %s: %w", env.Key(), err)
		}
		return env, nil
	}
}

// Shutdown closes the underlying connection. Safe to call more than once.
func (p *MessagePipe) Shutdown() error {
	return p.conn.Disconnect()
}

func (p *MessagePipe) open(frame []byte) (domain.Envelope, error) {
	plaintext, err := crypto.OpenSignalingFrame(p.creds.SignalingKey(), frame)
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("pushed envelope: %w", err)
	}
	var entity domain.EnvelopeEntity
	if err := json.Unmarshal(plaintext, &entity); err != nil {
		return domain.Envelope{}, fmt.Errorf("pushed envelope: %w: %v", domain.ErrDecode, err)
	}
	return domain.NewEnvelope(entity), nil
}

func (p *MessagePipe) respond(req *websocket.Request, status int, message string) error {
	return p.conn.SendResponse(websocket.Response{ID: req.ID, Status: status, Message: message})
}

func isEnvelope(req *websocket.Request) bool {
	return req.Verb == http.MethodPut && req.Path == MessagePath
}
