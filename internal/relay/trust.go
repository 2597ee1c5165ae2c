package relay

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"courier/internal/domain"
)

var errNoCertificates = errors.New("trust store contains no certificates")

// TrustStore pins the certificates the service may present.
type TrustStore struct {
	pool *x509.CertPool
}

// NewTrustStore parses PEM encoded certificates.
func NewTrustStore(pemBytes []byte) (*TrustStore, error) {
	pool := x509.NewCertPool()
	n := 0
	for rest := pemBytes; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("trust store: %w", err)
		}
		pool.AddCert(cert)
		n++
	}
	if n == 0 {
		return nil, errNoCertificates
	}
	return &TrustStore{pool: pool}, nil
}

// LoadTrustStore reads PEM certificates from path.
func LoadTrustStore(path string) (*TrustStore, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("trust store: %w", err)
	}
	return NewTrustStore(b)
}

// TrustCertificates pins already parsed certificates.
func TrustCertificates(certs ...*x509.Certificate) *TrustStore {
	pool := x509.NewCertPool()
	for _, c := range certs {
		pool.AddCert(c)
	}
	return &TrustStore{pool: pool}
}

// TLSConfig returns a fresh config that only trusts the pinned roots.
func (t *TrustStore) TLSConfig() *tls.Config {
	return &tls.Config{
		RootCAs:    t.pool,
		MinVersion: tls.VersionTLS12,
	}
}

var _ domain.TrustStore = (*TrustStore)(nil)
