package domain

import (
	"context"
	"crypto/tls"
)

// MessageHandler is invoked synchronously once per delivered envelope.
type MessageHandler func(Envelope)

// ProgressListener receives advisory download progress in bytes. total is -1
// when the server did not announce a length.
type ProgressListener func(total, progress int64)

// CredentialsProvider hands out the account credentials.
type CredentialsProvider interface {
	User() string
	Password() string
	SignalingKey() string
	DeviceID() uint32
}

// TrustStore holds the pinned certificate material for the service.
type TrustStore interface {
	TLSConfig() *tls.Config
}

// RelayClient is how we talk to the message service, all with context.
type RelayClient interface {
	// FetchMessages returns the whole queued backlog in server order.
	FetchMessages(ctx context.Context) ([]EnvelopeEntity, error)

	// AcknowledgeMessage lets the server purge one envelope. Acknowledging a
	// pair that is already gone is not an error.
	AcknowledgeMessage(ctx context.Context, source string, timestamp uint64) error

	// DownloadAttachment writes the complete ciphertext to destination or
	// fails without leaving a partial file there.
	DownloadAttachment(
		ctx context.Context,
		relay string,
		id uint64,
		destination string,
		listener ProgressListener,
	) error
}
