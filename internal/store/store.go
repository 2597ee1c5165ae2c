package store

import "courier/internal/domain"

type CredentialsStore interface {
	SaveCredentials(passphrase string, creds domain.Credentials) error
	LoadCredentials(passphrase string) (domain.Credentials, error)
}

type ProfileStore interface {
	SaveProfile(p Profile) error
	LoadProfile() (Profile, bool, error)
}
