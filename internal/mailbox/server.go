package mailbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"

	"courier/internal/domain"
)

// MaxAttachmentSize caps uploaded attachment bodies.
const MaxAttachmentSize = 100 << 20

var (
	ErrNoAccount = errors.New("no such account")
	errBadLogin  = errors.New("bad login")
)

type account struct {
	password     string
	signalingKey string
	queue        []domain.EnvelopeEntity
	subs         map[*subscriber]struct{}
}

// Server holds every account, queue and attachment in memory.
type Server struct {
	mu          sync.Mutex
	accounts    map[string]*account
	attachments map[uint64][]byte
	nextID      uint64

	logger   *slog.Logger
	mux      *http.ServeMux
	upgrader gws.Upgrader
}

func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		accounts:    make(map[string]*account),
		attachments: make(map[uint64][]byte),
		nextID:      1,
		logger:      logger,
		mux:         http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("PUT /v1/accounts/{user}", s.handleRegister)
	s.mux.HandleFunc("PUT /v1/messages/{destination}", s.handleDeposit)
	s.mux.HandleFunc("GET /v1/messages/{$}", s.authenticated(s.handleFetch))
	s.mux.HandleFunc("DELETE /v1/messages/{source}/{timestamp}", s.authenticated(s.handleAck))
	s.mux.HandleFunc("POST /v1/attachments/{$}", s.authenticated(s.handleUpload))
	s.mux.HandleFunc("GET /v1/attachments/{id}", s.authenticated(s.handleLocate))
	s.mux.HandleFunc("GET /attachments/{id}", s.handleBlob)
	s.mux.HandleFunc("GET /v1/websocket/{$}", s.handleWebsocket)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.logger.Info("request",
		"method", r.Method,
		"path", r.URL.Path,
		"remote", r.RemoteAddr,
		"status", rec.status,
		"bytes", rec.bytes,
		"dur", time.Since(start),
	)
}

// Register creates or replaces an account.
func (s *Server) Register(user, password, signalingKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[user]; ok {
		a.password = password
		a.signalingKey = signalingKey
		return
	}
	s.accounts[user] = &account{
		password:     password,
		signalingKey: signalingKey,
		subs:         make(map[*subscriber]struct{}),
	}
}

// Deposit queues e for destination and pushes it to any connected pipes.
// It returns the envelope as stored.
func (s *Server) Deposit(destination string, e domain.EnvelopeEntity) (domain.EnvelopeEntity, error) {
	if e.Timestamp == 0 {
		e.Timestamp = uint64(time.Now().UnixMilli())
	}
	s.mu.Lock()
	a, ok := s.accounts[destination]
	if !ok {
		s.mu.Unlock()
		return e, fmt.Errorf("%w: %s", ErrNoAccount, destination)
	}
	a.queue = append(a.queue, e)
	subs := make([]*subscriber, 0, len(a.subs))
	for sub := range a.subs {
		subs = append(subs, sub)
	}
	key := a.signalingKey
	s.mu.Unlock()

	for _, sub := range subs {
		s.push(sub, key, e)
	}
	return e, nil
}

// Pending reports how many envelopes are queued for user.
func (s *Server) Pending(user string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[user]; ok {
		return len(a.queue)
	}
	return 0
}

// PutAttachment stores blob and returns its id.
func (s *Server) PutAttachment(blob []byte) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.attachments[id] = append([]byte(nil), blob...)
	return id
}

// remove drops the first queued envelope matching key.
func (s *Server) remove(user string, key domain.EnvelopeKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[user]
	if !ok {
		return false
	}
	for i, e := range a.queue {
		if e.Source == key.Source && e.Timestamp == key.Timestamp {
			a.queue = append(a.queue[:i], a.queue[i+1:]...)
			return true
		}
	}
	return false
}

// login checks "user[.device]" and password against the account table.
func (s *Server) login(login, password string) (string, error) {
	user, _, _ := strings.Cut(login, ".")
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[user]
	if !ok || a.password != password {
		return "", errBadLogin
	}
	return user, nil
}

type userHandler func(w http.ResponseWriter, r *http.Request, user string)

func (s *Server) authenticated(h userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		login, password, ok := r.BasicAuth()
		if !ok {
			http.Error(w, "missing credentials", http.StatusUnauthorized)
			return
		}
		user, err := s.login(login, password)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r, user)
	}
}

type registration struct {
	Password     string `json:"password"`
	SignalingKey string `json:"signalingKey"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var reg registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if reg.Password == "" {
		http.Error(w, "password must be set", http.StatusBadRequest)
		return
	}
	s.Register(r.PathValue("user"), reg.Password, reg.SignalingKey)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var e domain.EnvelopeEntity
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	stored, err := s.Deposit(r.PathValue("destination"), e)
	if errors.Is(err, ErrNoAccount) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"timestamp": stored.Timestamp})
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request, user string) {
	s.mu.Lock()
	msgs := append([]domain.EnvelopeEntity{}, s.accounts[user].queue...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, domain.EnvelopeEntityList{Messages: msgs})
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request, user string) {
	ts, err := strconv.ParseUint(r.PathValue("timestamp"), 10, 64)
	if err != nil {
		http.Error(w, "bad timestamp", http.StatusBadRequest)
		return
	}
	if !s.remove(user, domain.EnvelopeKey{Source: r.PathValue("source"), Timestamp: ts}) {
		http.Error(w, "not queued", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, _ string) {
	defer r.Body.Close()
	blob, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxAttachmentSize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"id": s.PutAttachment(blob)})
}

func (s *Server) handleLocate(w http.ResponseWriter, r *http.Request, _ string) {
	id, ok := s.attachmentID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, domain.AttachmentLocation{ID: id, Location: "/attachments/" + strconv.FormatUint(id, 10)})
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.attachmentID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	blob := s.attachments[id]
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(blob)))
	_, _ = w.Write(blob)
}

func (s *Server) attachmentID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "bad attachment id", http.StatusBadRequest)
		return 0, false
	}
	s.mu.Lock()
	_, ok := s.attachments[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "no such attachment", http.StatusNotFound)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
