package store

import (
	"path/filepath"
	"sync"
)

const profileFile = "profile.json"

// Profile holds the non-secret settings recorded by init so later commands
// can run without repeating them.
type Profile struct {
	ServiceURL     string `json:"serviceUrl"`
	TrustStorePath string `json:"trustStore,omitempty"`
	UserAgent      string `json:"userAgent,omitempty"`
	User           string `json:"user"`
}

// ProfileFileStore persists the account profile to disk.
type ProfileFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewProfileFileStore returns a ProfileFileStore rooted at dir.
func NewProfileFileStore(dir string) *ProfileFileStore {
	return &ProfileFileStore{dir: dir}
}

func (s *ProfileFileStore) SaveProfile(p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return storeJSON(filepath.Join(s.dir, profileFile), p, 0o600)
}

// LoadProfile returns ok=false when no profile has been saved.
func (s *ProfileFileStore) LoadProfile() (Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var p Profile
	ok, err := loadJSON(filepath.Join(s.dir, profileFile), &p)
	if err != nil {
		return Profile{}, false, err
	}
	return p, ok, nil
}

var _ ProfileStore = (*ProfileFileStore)(nil)
