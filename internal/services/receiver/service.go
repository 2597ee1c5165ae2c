package receiver

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"courier/internal/crypto"
	"courier/internal/domain"
	"courier/internal/pipe"
	"courier/internal/relay"
	"courier/internal/websocket"
)

// Service is the receiving side of one account.
//
// Flow:
//   - RetrieveMessages: fetch the backlog once, then for each record build an
//     Envelope, deliver it, acknowledge it, in server order.
//   - RetrieveAttachment: download the ciphertext to a caller-owned path, then
//     return a lazily decrypting reader over it.
//   - CreateMessagePipe: a fresh, unconnected pipe for push delivery.
type Service struct {
	url       string
	trust     domain.TrustStore
	creds     domain.CredentialsProvider
	userAgent string
	relay     domain.RelayClient
	logger    *slog.Logger
}

// New builds a receiver from the raw credential triple.
func New(
	url string,
	trust domain.TrustStore,
	user string,
	password string,
	signalingKey string,
	userAgent string,
) *Service {
	return NewWithCredentials(url, trust, domain.NewStaticCredentialsProvider(user, password, signalingKey), userAgent)
}

// NewWithCredentials builds a receiver around an existing credentials provider.
func NewWithCredentials(
	url string,
	trust domain.TrustStore,
	creds domain.CredentialsProvider,
	userAgent string,
) *Service {
	return NewWithRelay(relay.NewHTTP(url, trust, creds, userAgent), url, trust, creds, userAgent, nil)
}

// NewWithRelay builds a receiver over a caller-supplied transport. client is
// required. url, trust and creds are only used by the pipes it creates; when
// trust or creds is nil those pipes fail their first Read with
// websocket.ErrNoTrust.
func NewWithRelay(
	client domain.RelayClient,
	url string,
	trust domain.TrustStore,
	creds domain.CredentialsProvider,
	userAgent string,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		url:       url,
		trust:     trust,
		creds:     creds,
		userAgent: userAgent,
		relay:     client,
		logger:    logger,
	}
}

// RetrieveMessages drains the queued backlog.
//
// Each envelope is handed to handler synchronously and acknowledged only
// after handler returns; the next record is not touched until that ack
// succeeds. If an ack fails the loop stops and the envelopes delivered so far,
// including the unacknowledged one, are returned with the error. A nil
// handler still acknowledges everything.
func (s *Service) RetrieveMessages(ctx context.Context, handler domain.MessageHandler) ([]domain.Envelope, error) {
	if handler == nil {
		handler = func(domain.Envelope) {}
	}

	entities, err := s.relay.FetchMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	out := make([]domain.Envelope, 0, len(entities))
	for _, entity := range entities {
		env := domain.NewEnvelope(entity)
		handler(env)
		out = append(out, env)

		if err := s.relay.AcknowledgeMessage(ctx, env.Source, env.Timestamp); err != nil {
			s.logger.Warn("acknowledge failed", "envelope", env.Key().String(), "delivered", len(out), "err", err)
			return out, fmt.Errorf("acknowledge %s: %w", env.Key(), err)
		}
		s.logger.Debug("envelope delivered", "envelope", env.Key().String(), "type", env.Type.String())
	}
	return out, nil
}

// RetrieveAttachment downloads the attachment named by pointer to destination
// and returns a reader that decrypts it as it is read. listener may be nil.
//
// Integrity failures in the body surface from Read as domain.ErrDecode. The
// destination file is left in place on every path; removing it is the
// caller's business.
func (s *Service) RetrieveAttachment(
	ctx context.Context,
	pointer domain.AttachmentPointer,
	destination string,
	listener domain.ProgressListener,
) (io.ReadCloser, error) {
	if err := s.relay.DownloadAttachment(ctx, pointer.Relay, pointer.ID, destination, listener); err != nil {
		return nil, fmt.Errorf("download attachment %d: %w", pointer.ID, err)
	}
	rc, err := crypto.OpenAttachment(destination, pointer.Key)
	if err != nil {
		return nil, fmt.Errorf("open attachment %d: %w", pointer.ID, err)
	}
	return rc, nil
}

// CreateMessagePipe returns a new pipe with its own connection. Nothing is
// dialled until the first Read; the caller owns the pipe and must Shutdown it.
func (s *Service) CreateMessagePipe() *pipe.MessagePipe {
	conn := websocket.New(s.url, s.trust, s.creds, s.userAgent, s.logger)
	return pipe.New(conn, s.creds, s.logger)
}
