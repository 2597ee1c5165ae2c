package pipe_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"courier/internal/crypto"
	"courier/internal/domain"
	"courier/internal/pipe"
	"courier/internal/websocket"
)

// fakeConn replays queued requests and records everything the pipe does.
type fakeConn struct {
	queue     []*websocket.Request
	events    []string
	responses []websocket.Response
	connects  int
	closed    bool
}

func (f *fakeConn) Connect(context.Context) error {
	if f.closed {
		return websocket.ErrClosed
	}
	f.connects++
	return nil
}

func (f *fakeConn) ReadRequest(ctx context.Context, timeout time.Duration) (*websocket.Request, error) {
	if f.closed {
		return nil, websocket.ErrClosed
	}
	if len(f.queue) == 0 {
		return nil, websocket.ErrTimeout
	}
	req := f.queue[0]
	f.queue = f.queue[1:]
	return req, nil
}

func (f *fakeConn) SendResponse(resp websocket.Response) error {
	f.events = append(f.events, "respond")
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeConn) Disconnect() error {
	f.closed = true
	return nil
}

func sealedPush(t *testing.T, key, id string, e domain.EnvelopeEntity) *websocket.Request {
	t.Helper()
	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	frame, err := crypto.SealSignalingFrame(key, raw)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	return &websocket.Request{ID: id, Verb: http.MethodPut, Path: pipe.MessagePath, Body: frame}
}

func newPipe(t *testing.T, conn pipe.Connection) (*pipe.MessagePipe, string) {
	t.Helper()
	key, err := crypto.NewSignalingKey()
	if err != nil {
		t.Fatalf("NewSignalingKey: %v", err)
	}
	return pipe.New(conn, domain.NewStaticCredentialsProvider("+15550001", "pw", key), nil), key
}

func TestRead_HandlerRunsBeforeAck(t *testing.T) {
	conn := &fakeConn{}
	p, key := newPipe(t, conn)
	conn.queue = append(conn.queue, sealedPush(t, key, "r1", domain.EnvelopeEntity{
		Type: int32(domain.EnvelopeCiphertext), Source: "+15551234", Timestamp: 1000, Content: []byte("hi"),
	}))

	env, err := p.Read(context.Background(), time.Second, func(e domain.Envelope) {
		conn.events = append(conn.events, "handle "+e.Key().String())
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if env.Source != "+15551234" || env.Timestamp != 1000 || string(env.Content) != "hi" {
		t.Fatalf("got %+v", env)
	}
	want := []string{"handle +15551234@1000", "respond"}
	if len(conn.events) != 2 || conn.events[0] != want[0] || conn.events[1] != want[1] {
		t.Fatalf("got %v, want %v", conn.events, want)
	}
	if r := conn.responses[0]; r.ID != "r1" || r.Status != http.StatusOK {
		t.Fatalf("got response %+v", r)
	}
}

func TestRead_SkipsOtherRequests(t *testing.T) {
	conn := &fakeConn{}
	p, key := newPipe(t, conn)
	conn.queue = append(conn.queue,
		&websocket.Request{ID: "x", Verb: http.MethodGet, Path: "/v1/something"},
		sealedPush(t, key, "r2", domain.EnvelopeEntity{Source: "+15559999", Timestamp: 1001}),
	)

	env, err := p.Read(context.Background(), time.Second, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if env.Timestamp != 1001 {
		t.Fatalf("got %+v", env)
	}
	if len(conn.responses) != 2 || conn.responses[0].Status != http.StatusBadRequest || conn.responses[1].Status != http.StatusOK {
		t.Fatalf("got responses %+v", conn.responses)
	}
}

func TestRead_UndecodableFrame(t *testing.T) {
	conn := &fakeConn{}
	p, _ := newPipe(t, conn)
	otherKey, _ := crypto.NewSignalingKey()
	conn.queue = append(conn.queue, sealedPush(t, otherKey, "r3", domain.EnvelopeEntity{Source: "a", Timestamp: 1}))

	called := false
	_, err := p.Read(context.Background(), time.Second, func(domain.Envelope) { called = true })
	if !errors.Is(err, domain.ErrDecode) {
		t.Fatalf("got %v, want ErrDecode", err)
	}
	if called {
		t.Fatal("handler ran for an undecodable frame")
	}
	if len(conn.responses) != 1 || conn.responses[0].Status != http.StatusBadRequest {
		t.Fatalf("got responses %+v", conn.responses)
	}
}

func TestRead_Timeout(t *testing.T) {
	conn := &fakeConn{}
	p, _ := newPipe(t, conn)
	if _, err := p.Read(context.Background(), 10*time.Millisecond, nil); !errors.Is(err, websocket.ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}

func TestShutdown_IndependentPipes(t *testing.T) {
	a, b := &fakeConn{}, &fakeConn{}
	pa, _ := newPipe(t, a)
	pb, keyB := newPipe(t, b)
	b.queue = append(b.queue, sealedPush(t, keyB, "r4", domain.EnvelopeEntity{Source: "s", Timestamp: 7}))

	if err := pa.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := pa.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if _, err := pa.Read(context.Background(), time.Second, nil); !errors.Is(err, websocket.ErrClosed) {
		t.Fatalf("closed pipe: got %v, want ErrClosed", err)
	}
	if _, err := pb.Read(context.Background(), time.Second, nil); err != nil {
		t.Fatalf("other pipe: %v", err)
	}
}

func TestRead_MalformedSignalingKey(t *testing.T) {
	conn := &fakeConn{}
	p := pipe.New(conn, domain.NewStaticCredentialsProvider("+15550001", "pw", "not base64!"), nil)
	goodKey, _ := crypto.NewSignalingKey()
	conn.queue = append(conn.queue, sealedPush(t, goodKey, "r5", domain.EnvelopeEntity{Source: "a", Timestamp: 1}))

	if _, err := p.Read(context.Background(), time.Second, nil); !errors.Is(err, domain.ErrDecode) {
		t.Fatalf("got %v, want ErrDecode", err)
	}
	if len(conn.responses) != 1 || conn.responses[0].Status != http.StatusBadRequest {
		t.Fatalf("got responses %+v", conn.responses)
	}
}
