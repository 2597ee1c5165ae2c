package mailbox

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"

	"courier/internal/crypto"
	"courier/internal/domain"
	"courier/internal/pipe"
	"courier/internal/websocket"
)

// subscriber is one connected pipe. pending maps outstanding push request
// ids to the envelope they carry and is guarded by Server.mu.
type subscriber struct {
	user    string
	conn    *gws.Conn
	writeMu sync.Mutex
	pending map[string]domain.EnvelopeKey
}

func (sub *subscriber) send(msg websocket.Message) error {
	sub.writeMu.Lock()
	defer sub.writeMu.Unlock()
	_ = sub.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return sub.conn.WriteJSON(msg)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	user, err := s.login(q.Get("login"), q.Get("password"))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "user", user, "err", err)
		return
	}
	sub := &subscriber{user: user, conn: conn, pending: make(map[string]domain.EnvelopeKey)}

	s.mu.Lock()
	a := s.accounts[user]
	a.subs[sub] = struct{}{}
	backlog := append([]domain.EnvelopeEntity{}, a.queue...)
	key := a.signalingKey
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(a.subs, sub)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for _, e := range backlog {
		s.push(sub, key, e)
	}
	s.serveSubscriber(sub)
}

// serveSubscriber reads frames until the client goes away.
func (s *Server) serveSubscriber(sub *subscriber) {
	for {
		var msg websocket.Message
		if err := sub.conn.ReadJSON(&msg); err != nil {
			if !gws.IsCloseError(err, gws.CloseNormalClosure, gws.CloseGoingAway) {
				s.logger.Debug("websocket closed", "user", sub.user, "err", err)
			}
			return
		}
		switch {
		case msg.Type == websocket.TypeResponse && msg.Response != nil:
			s.mu.Lock()
			key, ok := sub.pending[msg.Response.ID]
			delete(sub.pending, msg.Response.ID)
			s.mu.Unlock()
			if !ok {
				continue
			}
			if msg.Response.Status == http.StatusOK {
				s.remove(sub.user, key)
			} else {
				s.logger.Warn("push rejected", "user", sub.user, "envelope", key.String(), "status", msg.Response.Status)
			}
		case msg.Type == websocket.TypeRequest && msg.Request != nil:
			status := http.StatusNotFound
			if msg.Request.Path == websocket.KeepAlivePath {
				status = http.StatusOK
			}
			resp := &websocket.Response{ID: msg.Request.ID, Status: status}
			if err := sub.send(websocket.Message{Type: websocket.TypeResponse, Response: resp}); err != nil {
				return
			}
		}
	}
}

// push seals e under the account's signaling key and sends it to sub.
func (s *Server) push(sub *subscriber, signalingKey string, e domain.EnvelopeEntity) {
	raw, err := json.Marshal(e)
	if err != nil {
		s.logger.Warn("push encode failed", "err", err)
		return
	}
	frame, err := crypto.SealSignalingFrame(signalingKey, raw)
	if err != nil {
		s.logger.Warn("push seal failed", "user", sub.user, "err", err)
		return
	}
	req := &websocket.Request{ID: uuid.NewString(), Verb: http.MethodPut, Path: pipe.MessagePath, Body: frame}

	s.mu.Lock()
	sub.pending[req.ID] = domain.EnvelopeKey{Source: e.Source, Timestamp: e.Timestamp}
	s.mu.Unlock()

	if err := sub.send(websocket.Message{Type: websocket.TypeRequest, Request: req}); err != nil {
		s.logger.Debug("push failed", "user", sub.user, "err", err)
	}
}
