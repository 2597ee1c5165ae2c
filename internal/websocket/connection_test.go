package websocket_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"

	"courier/internal/domain"
	"courier/internal/relay"
	"courier/internal/websocket"
)

const agent = "courier-test"

type serverConn struct {
	conn  *gws.Conn
	query map[string]string
	agent string
}

// newServer starts a TLS websocket endpoint and hands every accepted
// connection to the returned channel.
func newServer(t *testing.T) (*httptest.Server, <-chan serverConn) {
	t.Helper()
	conns := make(chan serverConn, 1)
	up := gws.Upgrader{}
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != websocket.Path {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("password") != "pw" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		conns <- serverConn{
			conn: c,
			query: map[string]string{
				"login":    r.URL.Query().Get("login"),
				"password": r.URL.Query().Get("password"),
			},
			agent: r.Header.Get(relay.AgentHeader),
		}
	}))
	t.Cleanup(srv.Close)
	return srv, conns
}

func dial(t *testing.T, srv *httptest.Server, password string) *websocket.Connection {
	t.Helper()
	creds := domain.NewCredentialsProvider(domain.Credentials{User: "+15550001", Password: password, Device: 2})
	c := websocket.New(srv.URL, relay.TrustCertificates(srv.Certificate()), creds, agent, nil)
	c.KeepAlive = 0
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

func accept(t *testing.T, conns <-chan serverConn) serverConn {
	t.Helper()
	select {
	case sc := <-conns:
		t.Cleanup(func() { _ = sc.conn.Close() })
		return sc
	case <-time.After(5 * time.Second):
		t.Fatal("server never accepted a connection")
		return serverConn{}
	}
}

func TestConnect_RequestResponse(t *testing.T) {
	srv, conns := newServer(t)
	c := dial(t, srv, "pw")
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sc := accept(t, conns)
	if sc.query["login"] != "+15550001.2" || sc.agent != agent {
		t.Fatalf("got login %q agent %q", sc.query["login"], sc.agent)
	}

	push := websocket.Message{Type: websocket.TypeRequest, Request: &websocket.Request{
		ID: "req-1", Verb: http.MethodPut, Path: "/api/v1/message", Body: []byte("frame"),
	}}
	if err := sc.conn.WriteJSON(push); err != nil {
		t.Fatalf("server write: %v", err)
	}

	req, err := c.ReadRequest(ctx, 5*time.Second)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if req.ID != "req-1" || string(req.Body) != "frame" {
		t.Fatalf("got %+v", req)
	}
	if err := c.SendResponse(websocket.Response{ID: req.ID, Status: 200, Message: "OK"}); err != nil {
		t.Fatalf("SendResponse: %v", err)
	}

	var got websocket.Message
	_ = sc.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := sc.conn.ReadJSON(&got); err != nil {
		t.Fatalf("server read: %v", err)
	}
	if got.Type != websocket.TypeResponse || got.Response.ID != "req-1" || got.Response.Status != 200 {
		t.Fatalf("got %+v", got)
	}
}

func TestConnect_Unauthorized(t *testing.T) {
	srv, _ := newServer(t)
	c := dial(t, srv, "wrong")
	err := c.Connect(context.Background())
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
}

func TestReadRequest_NotConnected(t *testing.T) {
	srv, _ := newServer(t)
	c := dial(t, srv, "pw")
	if _, err := c.ReadRequest(context.Background(), time.Millisecond); !errors.Is(err, websocket.ErrNotConnected) {
		t.Fatalf("got %v, want ErrNotConnected", err)
	}
}

func TestReadRequest_Timeout(t *testing.T) {
	srv, conns := newServer(t)
	c := dial(t, srv, "pw")
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	accept(t, conns)
	if _, err := c.ReadRequest(context.Background(), 20*time.Millisecond); !errors.Is(err, websocket.ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}

func TestDisconnect_Idempotent(t *testing.T) {
	srv, conns := newServer(t)
	c := dial(t, srv, "pw")
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	accept(t, conns)

	if err := c.Disconnect(); err != nil {
		t.Fatalf("first Disconnect: %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}
	if _, err := c.ReadRequest(ctx, time.Second); !errors.Is(err, websocket.ErrClosed) {
		t.Fatalf("ReadRequest after Disconnect: got %v, want ErrClosed", err)
	}
	if err := c.Connect(ctx); !errors.Is(err, websocket.ErrClosed) {
		t.Fatalf("Connect after Disconnect: got %v, want ErrClosed", err)
	}
}

func TestDisconnect_NeverConnected(t *testing.T) {
	srv, _ := newServer(t)
	c := dial(t, srv, "pw")
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
}

func TestKeepAlive(t *testing.T) {
	srv, conns := newServer(t)
	c := dial(t, srv, "pw")
	c.KeepAlive = 10 * time.Millisecond
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sc := accept(t, conns)

	_ = sc.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := sc.conn.ReadMessage()
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	var msg websocket.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != websocket.TypeRequest || msg.Request.Path != websocket.KeepAlivePath || msg.Request.ID == "" {
		t.Fatalf("got %s", data)
	}
}

func TestConnect_MissingTrust(t *testing.T) {
	c := websocket.New("https://example.invalid", nil, nil, agent, nil)
	if err := c.Connect(context.Background()); !errors.Is(err, websocket.ErrNoTrust) {
		t.Fatalf("got %v, want ErrNoTrust", err)
	}
}
