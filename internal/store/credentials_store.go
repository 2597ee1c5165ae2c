package store

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"

	"courier/internal/domain"
	"courier/internal/util/memzero"
)

const credentialsFile = "credentials.enc"

// ErrNoCredentials means nothing has been saved yet.
var ErrNoCredentials = errors.New("no credentials saved; run init first")

// CredentialsFileStore persists the account credentials, sealed with a
// passphrase.
type CredentialsFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewCredentialsFileStore returns a CredentialsFileStore rooted at dir.
func NewCredentialsFileStore(dir string) *CredentialsFileStore {
	return &CredentialsFileStore{dir: dir}
}

// SaveCredentials seals creds under passphrase and replaces any previous file.
func (s *CredentialsFileStore) SaveCredentials(passphrase string, creds domain.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	defer memzero.Zero(raw)
	kdf, err := defaultKDF()
	if err != nil {
		return err
	}
	sealed, err := seal(passphrase, raw, kdf)
	if err != nil {
		return err
	}
	return atomicWrite(filepath.Join(s.dir, credentialsFile), sealed, 0o600)
}

// LoadCredentials reads and opens the credentials file.
func (s *CredentialsFileStore) LoadCredentials(passphrase string) (domain.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok, err := readIfExists(filepath.Join(s.dir, credentialsFile))
	if err != nil {
		return domain.Credentials{}, err
	}
	if !ok {
		return domain.Credentials{}, ErrNoCredentials
	}
	pt, err := open(passphrase, b)
	if err != nil {
		return domain.Credentials{}, err
	}
	defer memzero.Zero(pt)

	var creds domain.Credentials
	if err := json.Unmarshal(pt, &creds); err != nil {
		return domain.Credentials{}, err
	}
	return creds, nil
}

// Compile-time assertion that CredentialsFileStore implements CredentialsStore.
var _ CredentialsStore = (*CredentialsFileStore)(nil)
