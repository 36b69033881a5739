// internal/security/streaming.go
package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// Streaming AES-256-GCM envelope used to encrypt files at rest without
// buffering the whole file in memory. The stream is framed as:
//
//	[12-byte random nonce prefix][chunk]...[chunk]
//	chunk := [4-byte big-endian ciphertext length][ciphertext]
//
// Each chunk is sealed with a nonce that keeps the random prefix's first 4
// bytes and XORs its last 8 bytes with a monotonically increasing
// big-endian 64-bit chunk counter, so no two chunks in the same stream
// (or across streams, barring an astronomically unlikely prefix collision)
// ever reuse a nonce under the same key — the property plain per-Read
// sealing with a single fixed nonce does not have.
const (
	streamNonceSize = 12
	streamChunkSize = 64 * 1024
)

// EncryptReader wraps plaintext in a reader that yields the framed,
// encrypted stream described above.
func EncryptReader(key []byte, plaintext io.Reader) (io.Reader, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	prefix := make([]byte, streamNonceSize)
	if _, err := io.ReadFull(rand.Reader, prefix); err != nil {
		return nil, fmt.Errorf("generating stream nonce prefix: %w", err)
	}

	header := bytes.NewReader(prefix)
	return io.MultiReader(header, &encryptingReader{
		src:    plaintext,
		gcm:    gcm,
		prefix: prefix,
	}), nil
}

type encryptingReader struct {
	src     io.Reader
	gcm     cipher.AEAD
	prefix  []byte
	counter uint64
	buf     bytes.Buffer
	done    bool
}

func (r *encryptingReader) Read(p []byte) (int, error) {
	for r.buf.Len() == 0 && !r.done {
		chunk := make([]byte, streamChunkSize)
		n, err := r.src.Read(chunk)
		if n > 0 {
			nonce := r.chunkNonce()
			ciphertext := r.gcm.Seal(nil, nonce, chunk[:n], nil)

			var lenPrefix [4]byte
			binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(ciphertext)))
			r.buf.Write(lenPrefix[:])
			r.buf.Write(ciphertext)
			r.counter++
		}
		if err == io.EOF {
			r.done = true
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if r.buf.Len() == 0 {
		return 0, io.EOF
	}
	return r.buf.Read(p)
}

func (r *encryptingReader) chunkNonce() []byte {
	nonce := make([]byte, streamNonceSize)
	copy(nonce, r.prefix)
	var counterBytes [8]byte
	binary.BigEndian.PutUint64(counterBytes[:], r.counter)
	for i := 0; i < 8; i++ {
		nonce[4+i] ^= counterBytes[i]
	}
	return nonce
}

// DecryptReader wraps an encrypted, framed stream produced by
// EncryptReader and yields the original plaintext.
func DecryptReader(key []byte, ciphertext io.ReadCloser) (io.ReadCloser, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	prefix := make([]byte, streamNonceSize)
	if _, err := io.ReadFull(ciphertext, prefix); err != nil {
		return nil, fmt.Errorf("reading stream nonce prefix: %w", err)
	}

	return &decryptingReadCloser{
		src:    ciphertext,
		gcm:    gcm,
		prefix: prefix,
	}, nil
}

type decryptingReadCloser struct {
	src     io.ReadCloser
	gcm     cipher.AEAD
	prefix  []byte
	counter uint64
	buf     bytes.Buffer
}

func (r *decryptingReadCloser) Read(p []byte) (int, error) {
	for r.buf.Len() == 0 {
		var lenPrefix [4]byte
		_, err := io.ReadFull(r.src, lenPrefix[:])
		if err == io.EOF {
			return 0, io.EOF
		}
		if err != nil {
			return 0, fmt.Errorf("reading chunk length: %w", err)
		}

		chunkLen := binary.BigEndian.Uint32(lenPrefix[:])
		ciphertext := make([]byte, chunkLen)
		if _, err := io.ReadFull(r.src, ciphertext); err != nil {
			return 0, fmt.Errorf("reading chunk body: %w", err)
		}

		nonce := r.chunkNonce()
		plaintext, err := r.gcm.Open(nil, nonce, ciphertext, nil)
		if err != nil {
			return 0, fmt.Errorf("decrypting chunk %d: %w", r.counter, err)
		}
		r.counter++
		r.buf.Write(plaintext)
	}
	return r.buf.Read(p)
}

func (r *decryptingReadCloser) chunkNonce() []byte {
	nonce := make([]byte, streamNonceSize)
	copy(nonce, r.prefix)
	var counterBytes [8]byte
	binary.BigEndian.PutUint64(counterBytes[:], r.counter)
	for i := 0; i < 8; i++ {
		nonce[4+i] ^= counterBytes[i]
	}
	return nonce
}

func (r *decryptingReadCloser) Close() error {
	return r.src.Close()
}

func newGCM(key []byte) (cipher.AEAD, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("invalid key size: %d, must be 16, 24, or 32 bytes", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}
