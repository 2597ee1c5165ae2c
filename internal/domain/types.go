package domain

import "fmt"

// EnvelopeType classifies the ciphertext carried by an Envelope.
type EnvelopeType int32

const (
	EnvelopeUnknown      EnvelopeType = 0
	EnvelopeCiphertext   EnvelopeType = 1
	EnvelopeKeyExchange  EnvelopeType = 2
	EnvelopePrekeyBundle EnvelopeType = 3
	EnvelopeReceipt      EnvelopeType = 5
)

// String returns a short lowercase name for the type.
func (t EnvelopeType) String() string {
	switch t {
	case EnvelopeCiphertext:
		return "ciphertext"
	case EnvelopeKeyExchange:
		return "key-exchange"
	case EnvelopePrekeyBundle:
		return "prekey-bundle"
	case EnvelopeReceipt:
		return "receipt"
	case EnvelopeUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("type(%d)", int32(t))
	}
}

// EnvelopeEntity is a queued record as the service returns it.
type EnvelopeEntity struct {
	Type         int32  `json:"type"`
	Relay        string `json:"relay,omitempty"`
	Timestamp    uint64 `json:"timestamp"`
	Source       string `json:"source"`
	SourceDevice uint32 `json:"sourceDevice"`
	Message      []byte `json:"message,omitempty"`
	Content      []byte `json:"content,omitempty"`
}

// EnvelopeEntityList is the body of GET /v1/messages/.
type EnvelopeEntityList struct {
	Messages []EnvelopeEntity `json:"messages"`
}

// Envelope is a still-encrypted message addressed by (Source, Timestamp).
// Once handed to a caller it is theirs; the receiver keeps no reference.
type Envelope struct {
	Type          EnvelopeType
	Source        string
	SourceDevice  uint32
	Relay         string
	Timestamp     uint64
	LegacyMessage []byte
	Content       []byte
}

// NewEnvelope builds an Envelope from a raw record. Byte fields are copied so
// the envelope does not alias the decoder's buffers.
func NewEnvelope(e EnvelopeEntity) Envelope {
	return Envelope{
		Type:          EnvelopeType(e.Type),
		Source:        e.Source,
		SourceDevice:  e.SourceDevice,
		Relay:         e.Relay,
		Timestamp:     e.Timestamp,
		LegacyMessage: cloneBytes(e.Message),
		Content:       cloneBytes(e.Content),
	}
}

// HasLegacyMessage reports whether the legacy ciphertext field is present.
func (e Envelope) HasLegacyMessage() bool { return len(e.LegacyMessage) > 0 }

// HasContent reports whether the content ciphertext field is present.
func (e Envelope) HasContent() bool { return len(e.Content) > 0 }

// IsReceipt reports whether the envelope is a delivery receipt.
func (e Envelope) IsReceipt() bool { return e.Type == EnvelopeReceipt }

// Key returns the pair the service uses to acknowledge this envelope.
func (e Envelope) Key() EnvelopeKey {
	return EnvelopeKey{Source: e.Source, Timestamp: e.Timestamp}
}

// EnvelopeKey is the acknowledgment identity of an envelope.
type EnvelopeKey struct {
	Source    string
	Timestamp uint64
}

// String returns "source@timestamp".
func (k EnvelopeKey) String() string { return fmt.Sprintf("%s@%d", k.Source, k.Timestamp) }

// AttachmentPointer references an out-of-band encrypted blob. Only ID, Relay
// and Key are needed to fetch and decrypt it.
type AttachmentPointer struct {
	ID          uint64
	Key         []byte
	Relay       string
	ContentType string
	Digest      []byte
	Size        uint32 // 0 when unknown
}

// AttachmentLocation is the body of GET /v1/attachments/{id}.
type AttachmentLocation struct {
	ID       uint64 `json:"id"`
	Location string `json:"location"`
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}
