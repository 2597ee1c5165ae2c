package crypto

import (
	"bufio"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"courier/internal/domain"
	"courier/internal/util/memzero"
)

const (
	AttachmentKeySize = chacha20poly1305.KeySize

	attachmentVersion = 1
	saltSize          = 16
	headerSize        = 1 + saltSize
	chunkSize         = 64 * 1024
	encChunkSize      = chunkSize + chacha20poly1305.Overhead
	lastChunkFlag     = 0x01
)

var attachmentInfo = []byte("courier attachment v1")

var errWriterClosed = errors.New("attachment writer already closed")

func deriveChunkKey(key, salt []byte) ([]byte, error) {
	if len(key) != AttachmentKeySize {
		return nil, fmt.Errorf("attachment key: want %d bytes, got %d: %w", AttachmentKeySize, len(key), domain.ErrDecode)
	}
	sub := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, salt, attachmentInfo), sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// chunkNonce increments the counter in place; the last byte carries the flag.
type chunkNonce [chacha20poly1305.NonceSize]byte

func (n *chunkNonce) next() error {
	for i := len(n) - 2; i >= 0; i-- {
		n[i]++
		if n[i] != 0 {
			return nil
		}
	}
	return errors.New("attachment chunk counter overflow")
}

// NewAttachmentKey returns a fresh random attachment key.
func NewAttachmentKey() ([]byte, error) {
	key := make([]byte, AttachmentKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// AttachmentWriter encrypts a plaintext stream into the attachment format.
// Close must be called to emit the final chunk.
type AttachmentWriter struct {
	w      io.Writer
	aead   cipher.AEAD
	nonce  chunkNonce
	buf    []byte
	closed bool
}

// NewAttachmentWriter writes the header to w and returns a writer for the body.
func NewAttachmentWriter(w io.Writer, key []byte) (*AttachmentWriter, error) {
	var salt [saltSize]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	sub, err := deriveChunkKey(key, salt[:])
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(sub)
	aead, err := chacha20poly1305.New(sub)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(append([]byte{attachmentVersion}, salt[:]...)); err != nil {
		return nil, err
	}
	return &AttachmentWriter{w: w, aead: aead, buf: make([]byte, 0, chunkSize)}, nil
}

// Write buffers p and flushes every full chunk that is known not to be last.
func (a *AttachmentWriter) Write(p []byte) (int, error) {
	if a.closed {
		return 0, errWriterClosed
	}
	n := 0
	for len(p) > 0 {
		if len(a.buf) == chunkSize {
			if err := a.flush(false); err != nil {
				return n, err
			}
		}
		k := copy(a.buf[len(a.buf):chunkSize], p)
		a.buf = a.buf[:len(a.buf)+k]
		p = p[k:]
		n += k
	}
	return n, nil
}

// Close seals the buffered remainder as the final chunk.
func (a *AttachmentWriter) Close() error {
	if a.closed {
		return errWriterClosed
	}
	a.closed = true
	return a.flush(true)
}

func (a *AttachmentWriter) flush(last bool) error {
	if last {
		a.nonce[len(a.nonce)-1] = lastChunkFlag
	}
	out := a.aead.Seal(nil, a.nonce[:], a.buf, nil)
	a.buf = a.buf[:0]
	if _, err := a.w.Write(out); err != nil {
		return err
	}
	return a.nonce.next()
}

// AttachmentReader decrypts the attachment format chunk by chunk.
type AttachmentReader struct {
	r     *bufio.Reader
	aead  cipher.AEAD
	nonce chunkNonce
	enc   []byte
	plain []byte
	done  bool
	err   error
}

// NewAttachmentReader reads and checks the header from r. Body integrity is
// checked lazily by Read.
func NewAttachmentReader(r io.Reader, key []byte) (*AttachmentReader, error) {
	br := bufio.NewReaderSize(r, encChunkSize+1)
	var hdr [headerSize]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("attachment header truncated: %w", domain.ErrDecode)
		}
		return nil, err
	}
	if hdr[0] != attachmentVersion {
		return nil, fmt.Errorf("attachment version %d unsupported: %w", hdr[0], domain.ErrDecode)
	}
	sub, err := deriveChunkKey(key, hdr[1:])
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(sub)
	aead, err := chacha20poly1305.New(sub)
	if err != nil {
		return nil, err
	}
	return &AttachmentReader{r: br, aead: aead, enc: make([]byte, encChunkSize)}, nil
}

func (a *AttachmentReader) Read(p []byte) (int, error) {
	for len(a.plain) == 0 {
		if a.err != nil {
			return 0, a.err
		}
		if a.done {
			return 0, io.EOF
		}
		a.err = a.readChunk()
	}
	n := copy(p, a.plain)
	a.plain = a.plain[n:]
	return n, nil
}

func (a *AttachmentReader) readChunk() error {
	n, err := io.ReadFull(a.r, a.enc)
	last := false
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		last = true
	case err != nil:
		return err
	default:
		if _, perr := a.r.Peek(1); errors.Is(perr, io.EOF) {
			last = true
		} else if perr != nil {
			return perr
		}
	}
	if n < chacha20poly1305.Overhead {
		return fmt.Errorf("attachment truncated: %w", domain.ErrDecode)
	}
	if last {
		a.nonce[len(a.nonce)-1] = lastChunkFlag
	}
	plain, err := a.aead.Open(a.enc[:0], a.nonce[:], a.enc[:n], nil)
	if err != nil {
		return fmt.Errorf("attachment chunk failed authentication: %w", domain.ErrDecode)
	}
	if err := a.nonce.next(); err != nil {
		return err
	}
	a.plain = plain
	a.done = last
	return nil
}

type attachmentFile struct {
	*AttachmentReader
	f *os.File
}

func (a *attachmentFile) Close() error { return a.f.Close() }

// OpenAttachment opens a downloaded ciphertext file and returns a reader for
// the plaintext. The caller must Close it.
func OpenAttachment(path string, key []byte) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewAttachmentReader(f, key)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &attachmentFile{AttachmentReader: r, f: f}, nil
}
