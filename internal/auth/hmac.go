package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"

	"github.com/AtDexters-Lab/nexus-rendezvous/internal/protocol"
)

// ErrBadTag is returned when a datagram's HMAC does not match.
var ErrBadTag = errors.New("wrong hmac")

// Sign computes HMAC-SHA256(key, region).
func Sign(key, region []byte) [protocol.TagSize]byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(region)
	var tag [protocol.TagSize]byte
	copy(tag[:], mac.Sum(nil))
	return tag
}

// Verify recomputes the tag over region and compares it with tag in
// constant time.
func Verify(key, region, tag []byte) bool {
	want := Sign(key, region)
	return hmac.Equal(want[:], tag)
}

// SignRequest fills the trailing tag of an encoded request in place.
func SignRequest(key, pkt []byte) {
	tag := Sign(key, pkt[:protocol.RequestSignedSize])
	copy(pkt[protocol.RequestSignedSize:protocol.RequestSize], tag[:])
}

// VerifyRequest checks the tag of an encoded request.
func VerifyRequest(key, pkt []byte) error {
	if len(pkt) != protocol.RequestSize {
		return protocol.ErrBadLength
	}
	if !Verify(key, pkt[:protocol.RequestSignedSize], pkt[protocol.RequestSignedSize:]) {
		return ErrBadTag
	}
	return nil
}

// SignTable fills the trailing tag of an encoded registry in place.
func SignTable(key, table []byte) {
	tag := Sign(key, table[:protocol.TableSignedSize])
	copy(table[protocol.TableSignedSize:protocol.ResponseSize], tag[:])
}

// VerifyTable checks the tag of an encoded registry.
func VerifyTable(key, table []byte) error {
	if len(table) != protocol.ResponseSize {
		return protocol.ErrBadLength
	}
	if !Verify(key, table[:protocol.TableSignedSize], table[protocol.TableSignedSize:]) {
		return ErrBadTag
	}
	return nil
}
