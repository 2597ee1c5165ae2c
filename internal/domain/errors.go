package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode means ciphertext did not decrypt or authenticate under the
	// supplied key: wrong key, truncation, corruption or tampering.
	ErrDecode = errors.New("ciphertext failed to decrypt")

	ErrUnauthorized = errors.New("credentials rejected by service")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrServer       = errors.New("temporary server error")
	ErrBadResponse  = errors.New("malformed service response")
)

// TransportError reports a failed request to the service. Err is either a
// network error or one of the status sentinels above.
type TransportError struct {
	Op     string // "get", "delete", "download", ...
	URL    string
	Status int // 0 when no response was received
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("relay %s %s: %d: %v", e.Op, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("relay %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err came from the transport layer.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
