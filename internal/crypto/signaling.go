package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"courier/internal/domain"
	"courier/internal/util/memzero"
)

const (
	SignalingKeySize = signalingCipherKeySize + signalingMacKeySize

	signalingVersion       = 1
	signalingCipherKeySize = 32
	signalingMacKeySize    = 20
	signalingIVSize        = aes.BlockSize
	signalingMacSize       = 10
)

// NewSignalingKey returns a fresh signaling key in its base64 transport form.
func NewSignalingKey() (string, error) {
	raw := make([]byte, SignalingKeySize)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	defer memzero.Zero(raw)
	return base64.StdEncoding.EncodeToString(raw), nil
}

func splitSignalingKey(encoded string) (cipherKey, macKey []byte, err error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, nil, fmt.Errorf("signaling key: %w: %v", domain.ErrDecode, err)
	}
	if len(raw) != SignalingKeySize {
		return nil, nil, fmt.Errorf("signaling key: want %d bytes, got %d: %w", SignalingKeySize, len(raw), domain.ErrDecode)
	}
	return raw[:signalingCipherKeySize], raw[signalingCipherKeySize:], nil
}

func signalingMac(macKey, data []byte) []byte {
	m := hmac.New(sha256.New, macKey)
	m.Write(data)
	return m.Sum(nil)[:signalingMacSize]
}

// SealSignalingFrame encrypts plaintext under the signaling key:
// version || iv || AES-256-CBC(plaintext) || HMAC-SHA256[:10].
func SealSignalingFrame(signalingKey string, plaintext []byte) ([]byte, error) {
	cipherKey, macKey, err := splitSignalingKey(signalingKey)
	if err != nil {
		return nil, err
	}
	defer memzero.ZeroAll(cipherKey, macKey)

	block, err := aes.NewCipher(cipherKey)
	if err != nil {
		return nil, err
	}
	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append(append([]byte(nil), plaintext...), bytes.Repeat([]byte{byte(pad)}, pad)...)

	out := make([]byte, 1+signalingIVSize, 1+signalingIVSize+len(padded)+signalingMacSize)
	out[0] = signalingVersion
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, err
	}
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, out[1:1+signalingIVSize]).CryptBlocks(ct, padded)
	out = append(out, ct...)
	return append(out, signalingMac(macKey, out)...), nil
}

// OpenSignalingFrame verifies and decrypts a frame produced by
// SealSignalingFrame. The MAC is checked before anything is decrypted.
func OpenSignalingFrame(signalingKey string, frame []byte) ([]byte, error) {
	cipherKey, macKey, err := splitSignalingKey(signalingKey)
	if err != nil {
		return nil, err
	}
	defer memzero.ZeroAll(cipherKey, macKey)

	if len(frame) < 1+signalingIVSize+aes.BlockSize+signalingMacSize {
		return nil, fmt.Errorf("signaling frame too short: %w", domain.ErrDecode)
	}
	if frame[0] != signalingVersion {
		return nil, fmt.Errorf("signaling frame version %d unsupported: %w", frame[0], domain.ErrDecode)
	}
	body, mac := frame[:len(frame)-signalingMacSize], frame[len(frame)-signalingMacSize:]
	if !hmac.Equal(signalingMac(macKey, body), mac) {
		return nil, fmt.Errorf("signaling frame mac mismatch: %w", domain.ErrDecode)
	}
	ct := body[1+signalingIVSize:]
	if len(ct)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("signaling frame not block aligned: %w", domain.ErrDecode)
	}

	block, err := aes.NewCipher(cipherKey)
	if err != nil {
		return nil, err
	}
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, body[1:1+signalingIVSize]).CryptBlocks(plain, ct)

	pad := int(plain[len(plain)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(plain) {
		return nil, fmt.Errorf("signaling frame bad padding: %w", domain.ErrDecode)
	}
	for _, b := range plain[len(plain)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("signaling frame bad padding: %w", domain.ErrDecode)
		}
	}
	return plain[:len(plain)-pad], nil
}
