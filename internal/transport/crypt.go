// Package transport moves protocol datagrams over UDP, optionally wrapping
// them in a ChaCha20 stream cipher.
//
// The cipher provides confidentiality only. Encrypt-then-authenticate is NOT
// used: the HMAC carried inside the plaintext is the sole integrity check,
// and a tampered ciphertext simply decrypts to a datagram that fails it. Do
// not drop or move the inner HMAC without re-validating that property.
package transport

import (
	crand "crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20"
)

const (
	// NonceSize is the per-datagram random nonce length.
	NonceSize = chacha20.NonceSize
	// HeaderSize is the masked group tag followed by the nonce.
	HeaderSize = 4 + NonceSize

	// streamCounter is the initial ChaCha20 block counter.
	streamCounter = 1
)

// ErrMalformed marks a datagram that cannot be decoded by this layer. It is
// never fatal to a receive loop.
var ErrMalformed = errors.New("malformed datagram")

// Crypter seals and opens datagrams with a key derived from the shared secret.
type Crypter struct {
	key  [32]byte
	rand io.Reader
}

// NewCrypter derives the stream key as SHA-256(secret).
func NewCrypter(secret []byte) *Crypter {
	return &Crypter{key: sha256.Sum256(secret), rand: crand.Reader}
}

// Overhead is the number of bytes Seal adds to a datagram.
func (c *Crypter) Overhead() int {
	return HeaderSize
}

// Seal returns header || ciphertext for clear. The group value travels
// masked with the last four bytes of the nonce.
func (c *Crypter) Seal(group uint32, clear []byte) ([]byte, error) {
	out := make([]byte, HeaderSize+len(clear))
	nonce := out[4:HeaderSize]
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	binary.BigEndian.PutUint32(out[0:4], group^binary.BigEndian.Uint32(nonce[NonceSize-4:]))
	if err := xorStream(c.key[:], nonce, out[HeaderSize:], clear); err != nil {
		return nil, err
	}
	return out, nil
}

// Open reverses Seal and returns the group value and the plaintext.
func (c *Crypter) Open(datagram []byte) (uint32, []byte, error) {
	if len(datagram) < HeaderSize {
		return 0, nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformed, len(datagram))
	}
	nonce := datagram[4:HeaderSize]
	group := binary.BigEndian.Uint32(datagram[0:4]) ^ binary.BigEndian.Uint32(nonce[NonceSize-4:])
	clear := make([]byte, len(datagram)-HeaderSize)
	if err := xorStream(c.key[:], nonce, clear, datagram[HeaderSize:]); err != nil {
		return 0, nil, err
	}
	return group, clear, nil
}

func xorStream(key, nonce, dst, src []byte) error {
	s, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return fmt.Errorf("failed to set up chacha20: %w", err)
	}
	s.SetCounter(streamCounter)
	s.XORKeyStream(dst, src)
	return nil
}
