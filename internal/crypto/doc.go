// Package crypto exposes the primitives the receiver needs to open what the
// service hands it.
//
// Contents
//
//   - A chunked ChaCha20-Poly1305 stream for attachment bodies
//     (NewAttachmentWriter, NewAttachmentReader, OpenAttachment)
//   - Signaling-key frames for envelopes pushed over the persistent connection
//     (SealSignalingFrame, OpenSignalingFrame)
//
// # Attachment format
//
//	version(1) || salt(16) || chunk_0 || ... || chunk_n
//
// Each chunk seals up to 64 KiB of plaintext under a subkey derived with
// HKDF-SHA256 from the attachment key and salt. The nonce is an 11-byte
// big-endian chunk counter followed by a byte that is 1 only for the final
// chunk, so truncation, reordering and appended data are all detected. Chunks
// are verified as they are read: a corrupted body is reported by Read, after
// any preceding intact chunks have been returned.
//
// # Notes
//
// Every authentication failure wraps domain.ErrDecode.
package crypto
