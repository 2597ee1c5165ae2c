package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"courier/internal/util/memzero"
)

const (
	sealedFormat  = "courier-credentials"
	sealedVersion = 1
	kdfScrypt     = "scrypt"

	// maxScryptN bounds the work a tampered file can ask for.
	maxScryptN = 1 << 20
)

// ErrWrongPassphrase is returned when the passphrase is incorrect or the
// sealed file has been modified.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted credentials")

type kdfParams struct {
	Name string `json:"name"`
	Salt []byte `json:"salt"`
	N    int    `json:"n"`
	R    int    `json:"r"`
	P    int    `json:"p"`
}

func defaultKDF() (kdfParams, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return kdfParams{}, err
	}
	return kdfParams{Name: kdfScrypt, Salt: salt, N: 1 << 15, R: 8, P: 1}, nil
}

func (k kdfParams) check() error {
	if k.Name != kdfScrypt {
		return fmt.Errorf("credentials kdf %q unsupported", k.Name)
	}
	if k.N < 2 || k.N > maxScryptN || k.N&(k.N-1) != 0 {
		return fmt.Errorf("credentials kdf: bad scrypt N %d", k.N)
	}
	if k.R < 1 || k.P < 1 || k.R*k.P > 64 || len(k.Salt) < 16 {
		return errors.New("credentials kdf: bad scrypt parameters")
	}
	return nil
}

func (k kdfParams) derive(passphrase string) ([]byte, error) {
	return scrypt.Key([]byte(passphrase), k.Salt, k.N, k.R, k.P, chacha20poly1305.KeySize)
}

// sealedFile is credentials.enc on disk. Everything but Nonce and Ciphertext
// is bound into the AEAD as associated data.
type sealedFile struct {
	Format     string    `json:"format"`
	Version    int       `json:"version"`
	KDF        kdfParams `json:"kdf"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
}

func (f *sealedFile) associatedData() []byte {
	ad := []byte(f.Format + "/v" + strconv.Itoa(f.Version) + "/" + f.KDF.Name)
	for _, n := range []int{f.KDF.N, f.KDF.R, f.KDF.P} {
		ad = strconv.AppendInt(append(ad, '/'), int64(n), 10)
	}
	return append(append(ad, '/'), f.KDF.Salt...)
}

// seal encrypts plaintext with XChaCha20-Poly1305 under a passphrase key.
func seal(passphrase string, plaintext []byte, kdf kdfParams) ([]byte, error) {
	key, err := kdf.derive(passphrase)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	f := sealedFile{Format: sealedFormat, Version: sealedVersion, KDF: kdf}
	f.Nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(f.Nonce); err != nil {
		return nil, err
	}
	f.Ciphertext = aead.Seal(nil, f.Nonce, plaintext, f.associatedData())
	return json.MarshalIndent(f, "", "  ")
}

// open checks the header, then authenticates and decrypts.
func open(passphrase string, data []byte) ([]byte, error) {
	var f sealedFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("credentials file: %w", err)
	}
	if f.Format != sealedFormat {
		return nil, fmt.Errorf("credentials file: format %q unsupported", f.Format)
	}
	if f.Version != sealedVersion {
		return nil, fmt.Errorf("credentials file: version %d unsupported", f.Version)
	}
	if err := f.KDF.check(); err != nil {
		return nil, err
	}
	if len(f.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrWrongPassphrase
	}

	key, err := f.KDF.derive(passphrase)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, f.Nonce, f.Ciphertext, f.associatedData())
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}
