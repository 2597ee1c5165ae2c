package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"

	"courier/internal/domain"
	"courier/internal/relay"
)

const (
	// Path is where the service accepts persistent connections.
	Path = "/v1/websocket/"
	// KeepAlivePath is requested periodically to keep the connection open.
	KeepAlivePath = "/v1/keepalive"

	DefaultKeepAlive = 55 * time.Second

	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
)

var (
	ErrClosed       = errors.New("websocket connection closed")
	ErrTimeout      = errors.New("timed out waiting for request")
	ErrNotConnected = errors.New("websocket not connected")
	ErrNoTrust      = errors.New("websocket needs a trust store and credentials")
)

// Connection is one persistent connection for one account.
type Connection struct {
	serviceURL string
	trust      domain.TrustStore
	creds      domain.CredentialsProvider
	userAgent  string
	logger     *slog.Logger

	// KeepAlive is the keepalive period; zero disables keepalives.
	KeepAlive time.Duration

	mu       sync.Mutex
	conn     *gws.Conn
	readErr  error
	incoming chan *Request

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New prepares a connection. No network activity happens until Connect.
func New(serviceURL string, trust domain.TrustStore, creds domain.CredentialsProvider, userAgent string, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connection{
		serviceURL: serviceURL,
		trust:      trust,
		creds:      creds,
		userAgent:  userAgent,
		logger:     logger,
		KeepAlive:  DefaultKeepAlive,
		incoming:   make(chan *Request, 16),
		done:       make(chan struct{}),
	}
}

// Connect dials the service. Calling it on an open connection is a no-op;
// calling it after Disconnect returns ErrClosed.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if c.conn != nil {
		return nil
	}
	if c.trust == nil || c.creds == nil {
		return ErrNoTrust
	}

	u, err := c.dialURL()
	if err != nil {
		return err
	}
	dialer := &gws.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		TLSClientConfig:  c.trust.TLSConfig(),
		HandshakeTimeout: handshakeTimeout,
	}
	header := http.Header{}
	if c.userAgent != "" {
		header.Set(relay.AgentHeader, c.userAgent)
	}

	conn, resp, err := dialer.DialContext(ctx, u, header)
	if err != nil {
		redacted := c.redactedURL()
		if resp != nil {
			status := resp.StatusCode
			_ = resp.Body.Close()
			if status == http.StatusUnauthorized || status == http.StatusForbidden {
				return &domain.TransportError{Op: "connect", URL: redacted, Status: status, Err: domain.ErrUnauthorized}
			}
			return &domain.TransportError{Op: "connect", URL: redacted, Status: status, Err: err}
		}
		return &domain.TransportError{Op: "connect", URL: redacted, Err: err}
	}
	c.conn = conn
	c.logger.Info("websocket connected", "url", c.redactedURL())

	c.wg.Add(1)
	go c.readLoop(conn)
	if c.KeepAlive > 0 {
		c.wg.Add(1)
		go c.keepAliveLoop(c.KeepAlive)
	}
	return nil
}

// ReadRequest waits for the next request pushed by the service. A timeout of
// zero or less waits until ctx is done or the connection closes.
func (c *Connection) ReadRequest(ctx context.Context, timeout time.Duration) (*Request, error) {
	c.mu.Lock()
	connected := c.conn != nil
	c.mu.Unlock()
	if !connected {
		return nil, ErrNotConnected
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case req, ok := <-c.incoming:
		if !ok {
			return nil, c.closedErr()
		}
		return req, nil
	case <-expired:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

// SendResponse answers a request previously returned by ReadRequest.
func (c *Connection) SendResponse(resp Response) error {
	return c.write(Message{Type: TypeResponse, Response: &resp})
}

// Disconnect closes the connection and stops its goroutines. It is safe to
// call more than once.
func (c *Connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		c.writeMu.Lock()
		_ = conn.WriteControl(gws.CloseMessage,
			gws.FormatCloseMessage(gws.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()

		err = conn.Close()
		c.wg.Wait()
		c.logger.Info("websocket disconnected", "url", c.redactedURL())
	})
	return err
}

func (c *Connection) readLoop(conn *gws.Conn) {
	defer c.wg.Done()
	defer close(c.incoming)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			select {
			case <-c.done:
			default:
				c.logger.Warn("websocket read failed", "err", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("websocket frame dropped", "err", err)
			continue
		}
		switch {
		case msg.Type == TypeRequest && msg.Request != nil:
			select {
			case c.incoming <- msg.Request:
			case <-c.done:
				return
			}
		case msg.Type == TypeResponse && msg.Response != nil:
			c.logger.Debug("websocket response", "id", msg.Response.ID, "status", msg.Response.Status)
		default:
			c.logger.Warn("websocket frame of unknown type", "type", msg.Type)
		}
	}
}

func (c *Connection) keepAliveLoop(every time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			req := &Request{ID: uuid.NewString(), Verb: http.MethodGet, Path: KeepAlivePath}
			if err := c.write(Message{Type: TypeRequest, Request: req}); err != nil {
				c.logger.Warn("websocket keepalive failed", "err", err)
				return
			}
		}
	}
}

func (c *Connection) write(msg Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(gws.TextMessage, data)
}

func (c *Connection) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return fmt.Errorf("%w: %v", ErrClosed, c.readErr)
	}
	return ErrClosed
}

func (c *Connection) baseURL() (*url.URL, error) {
	u, err := url.Parse(c.serviceURL)
	if err != nil {
		return nil, fmt.Errorf("service url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "wss", "ws":
	default:
		return nil, fmt.Errorf("service url: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + Path
	return u, nil
}

func (c *Connection) dialURL() (string, error) {
	u, err := c.baseURL()
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("login", relay.Login(c.creds))
	q.Set("password", c.creds.Password())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redactedURL is safe to log.
func (c *Connection) redactedURL() string {
	u, err := c.baseURL()
	if err != nil {
		return c.serviceURL
	}
	return u.String()
}
