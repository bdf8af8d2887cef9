package transport

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/AtDexters-Lab/nexus-rendezvous/internal/auth"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/protocol"
	"github.com/stretchr/testify/require"
)

// RFC 8439 section 2.4.2.
func TestChaCha20Vector(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	nonce := []byte{0, 0, 0, 0, 0, 0, 0, 0x4a, 0, 0, 0, 0}
	msg := []byte("Ladies and Gentlemen of the class of '99: If I could offer you only one tip for the future, sunscreen would be it.")

	out := make([]byte, len(msg))
	require.NoError(t, xorStream(key, nonce, out, msg))

	want, err := hex.DecodeString("6e2e359a2568f98041ba0728dd0d6981e97e7aec1d4360c20a27afccfd9fae0b")
	require.NoError(t, err)
	require.Equal(t, want, out[:32])
}

func TestSealOpenRoundTrip(t *testing.T) {
	c := NewCrypter(make([]byte, 32))
	clear := []byte("request bytes")

	sealed, err := c.Seal(0x01020304, clear)
	require.NoError(t, err)
	require.Len(t, sealed, HeaderSize+len(clear))
	require.NotEqual(t, clear, sealed[HeaderSize:])

	nonce := sealed[4:HeaderSize]
	masked := binary.BigEndian.Uint32(sealed[0:4])
	require.Equal(t, uint32(0x01020304), masked^binary.BigEndian.Uint32(nonce[NonceSize-4:]))

	group, got, err := c.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, uint32(0x01020304), group)
	require.Equal(t, clear, got)
}

func TestSealUsesFreshNonce(t *testing.T) {
	c := NewCrypter(make([]byte, 32))
	a, err := c.Seal(0, []byte("same"))
	require.NoError(t, err)
	b, err := c.Seal(0, []byte("same"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestOpenWithWrongSecretYieldsGarbage(t *testing.T) {
	sealed, err := NewCrypter(make([]byte, 32)).Seal(7, []byte("hello"))
	require.NoError(t, err)

	_, got, err := NewCrypter(bytes.Repeat([]byte{1}, 32)).Open(sealed)
	require.NoError(t, err)
	require.NotEqual(t, []byte("hello"), got)
}

func TestOpenShortDatagram(t *testing.T) {
	_, _, err := NewCrypter(make([]byte, 32)).Open(make([]byte, HeaderSize-1))
	require.ErrorIs(t, err, ErrMalformed)
}

// The cipher does not detect tampering; the inner HMAC does.
func TestTamperedCiphertextFailsInnerHMAC(t *testing.T) {
	secret := make([]byte, 32)
	c := NewCrypter(secret)

	pkt := protocol.EncodeRequest(protocol.Request{PeerID: protocol.PeerID{1}})
	auth.SignRequest(secret, pkt)

	sealed, err := c.Seal(0, pkt)
	require.NoError(t, err)
	sealed[HeaderSize+3] ^= 0x10

	_, clear, err := c.Open(sealed)
	require.NoError(t, err)
	require.ErrorIs(t, auth.VerifyRequest(secret, clear), auth.ErrBadTag)
}
