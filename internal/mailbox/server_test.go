package mailbox_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"courier/internal/crypto"
	"courier/internal/domain"
	"courier/internal/mailbox"
	"courier/internal/relay"
	"courier/internal/services/receiver"
)

const (
	user     = "+15550001"
	password = "hunter2"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type harness struct {
	srv  *httptest.Server
	box  *mailbox.Server
	key  string
	recv *receiver.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	box := mailbox.New(quiet())
	srv := httptest.NewTLSServer(box)
	t.Cleanup(srv.Close)

	key, err := crypto.NewSignalingKey()
	if err != nil {
		t.Fatalf("NewSignalingKey: %v", err)
	}
	box.Register(user, password, key)

	trust := relay.TrustCertificates(srv.Certificate())
	creds := domain.NewStaticCredentialsProvider(user, password, key)
	client := relay.NewHTTP(srv.URL, trust, creds, "courier-test")
	client.Logger = quiet()
	recv := receiver.NewWithRelay(client, srv.URL, trust, creds, "courier-test", quiet())
	return &harness{srv: srv, box: box, key: key, recv: recv}
}

func (h *harness) deposit(t *testing.T, e domain.EnvelopeEntity) {
	t.Helper()
	if _, err := h.box.Deposit(user, e); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
}

func TestRetrieveMessages_EndToEnd(t *testing.T) {
	h := newHarness(t)
	h.deposit(t, domain.EnvelopeEntity{Type: int32(domain.EnvelopeCiphertext), Source: "+15551234", SourceDevice: 1, Timestamp: 1000, Content: []byte{1, 2}})
	h.deposit(t, domain.EnvelopeEntity{Type: int32(domain.EnvelopeReceipt), Source: "+15559999", SourceDevice: 2, Timestamp: 1001})

	var seen []string
	got, err := h.recv.RetrieveMessages(context.Background(), func(e domain.Envelope) {
		seen = append(seen, e.Key().String())
	})
	if err != nil {
		t.Fatalf("RetrieveMessages: %v", err)
	}
	if len(got) != 2 || len(seen) != 2 || seen[0] != "+15551234@1000" || seen[1] != "+15559999@1001" {
		t.Fatalf("got %v", seen)
	}
	if n := h.box.Pending(user); n != 0 {
		t.Fatalf("got %d pending after retrieval, want 0", n)
	}

	again, err := h.recv.RetrieveMessages(context.Background(), nil)
	if err != nil || len(again) != 0 {
		t.Fatalf("second retrieval: got %d envelopes, err %v", len(again), err)
	}
}

func TestRetrieveMessages_WrongPassword(t *testing.T) {
	h := newHarness(t)
	trust := relay.TrustCertificates(h.srv.Certificate())
	bad := receiver.New(h.srv.URL, trust, user, "nope", h.key, "courier-test")
	if _, err := bad.RetrieveMessages(context.Background(), nil); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
}

func TestRetrieveAttachment_EndToEnd(t *testing.T) {
	h := newHarness(t)
	key, _ := crypto.NewAttachmentKey()
	plaintext := bytes.Repeat([]byte("0123456789"), 30000)

	var blob bytes.Buffer
	w, _ := crypto.NewAttachmentWriter(&blob, key)
	_, _ = w.Write(plaintext)
	if err := w.Close(); err != nil {
		t.Fatalf("seal: %v", err)
	}
	id := h.box.PutAttachment(blob.Bytes())

	dest := filepath.Join(t.TempDir(), "att")
	var last int64
	rc, err := h.recv.RetrieveAttachment(context.Background(),
		domain.AttachmentPointer{ID: id, Key: key}, dest,
		func(total, progress int64) { last = progress })
	if err != nil {
		t.Fatalf("RetrieveAttachment: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("got %d bytes, want %d", len(got), len(plaintext))
	}
	if last != int64(blob.Len()) {
		t.Fatalf("got final progress %d, want %d", last, blob.Len())
	}
}

func TestMessagePipe_PushAndAck(t *testing.T) {
	h := newHarness(t)
	h.deposit(t, domain.EnvelopeEntity{Type: int32(domain.EnvelopeCiphertext), Source: "+15551234", Timestamp: 1000, Content: []byte("x")})

	p := h.recv.CreateMessagePipe()
	defer p.Shutdown()

	ctx := context.Background()
	handled := 0
	env, err := p.Read(ctx, 5*time.Second, func(domain.Envelope) { handled++ })
	if err != nil {
		t.Fatalf("Read backlog: %v", err)
	}
	if env.Key().String() != "+15551234@1000" || handled != 1 {
		t.Fatalf("got %s, handled %d", env.Key(), handled)
	}

	h.deposit(t, domain.EnvelopeEntity{Type: int32(domain.EnvelopeReceipt), Source: "+15559999", Timestamp: 1001})
	env, err = p.Read(ctx, 5*time.Second, nil)
	if err != nil {
		t.Fatalf("Read live push: %v", err)
	}
	if !env.IsReceipt() || env.Timestamp != 1001 {
		t.Fatalf("got %+v", env)
	}

	deadline := time.Now().Add(5 * time.Second)
	for h.box.Pending(user) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("got %d pending, want 0", h.box.Pending(user))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHTTPRegisterAndDeposit(t *testing.T) {
	h := newHarness(t)
	c := h.srv.Client()

	req, _ := http.NewRequest(http.MethodPut, h.srv.URL+"/v1/accounts/+15557777", strings.NewReader(`{"password":"pw","signalingKey":""}`))
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("register: got %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	req, _ = http.NewRequest(http.MethodPut, h.srv.URL+"/v1/messages/+15557777", strings.NewReader(`{"type":1,"source":"+15551234","content":"AQ=="}`))
	resp, err = c.Do(req)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deposit: got %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if n := h.box.Pending("+15557777"); n != 1 {
		t.Fatalf("got %d pending, want 1", n)
	}

	req, _ = http.NewRequest(http.MethodPut, h.srv.URL+"/v1/messages/+15550000", strings.NewReader(`{}`))
	resp, err = c.Do(req)
	if err != nil {
		t.Fatalf("deposit to unknown: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deposit to unknown: got %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestDeposit_FillsTimestamp(t *testing.T) {
	box := mailbox.New(quiet())
	box.Register("u", "p", "")
	e, err := box.Deposit("u", domain.EnvelopeEntity{Source: "s"})
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if e.Timestamp == 0 {
		t.Fatal("timestamp not filled")
	}
	if _, err := box.Deposit("missing", domain.EnvelopeEntity{}); !errors.Is(err, mailbox.ErrNoAccount) {
		t.Fatalf("got %v, want ErrNoAccount", err)
	}
}
