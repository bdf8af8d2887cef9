package protocol

import (
	"errors"
	"fmt"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

const (
	// PeerIDSize is the length of a peer identifier (a WireGuard public key).
	PeerIDSize = 32
	// AddrSize is the length of the masked IPv4 address in a record.
	AddrSize = 4
	// PortSize is the length of the big-endian port in a record.
	PortSize = 2
	// CounterSize is the length of the freshness token.
	CounterSize = 12
	// TagSize is the length of an HMAC-SHA256 tag.
	TagSize = 32
	// SecretSize is the length of the shared group secret.
	SecretSize = 32

	// RecordSize is the length of one encoded PeerRecord.
	RecordSize = PeerIDSize + AddrSize + PortSize + CounterSize

	// Capacity is the number of record slots in the registry.
	Capacity = 10
	// ReservedSize is the reserved region between the records and the tag.
	ReservedSize = 8
	// TableSignedSize is the part of a response covered by its tag.
	TableSignedSize = Capacity*RecordSize + ReservedSize
	// ResponseSize is the length of a response datagram.
	ResponseSize = TableSignedSize + TagSize

	// RequestSignedSize is the part of a request covered by its tag.
	RequestSignedSize = PeerIDSize + CounterSize + 2 + 4
	// RequestSize is the length of a request datagram.
	RequestSize = RequestSignedSize + TagSize

	// DefaultPort is the UDP port the server listens on unless configured otherwise.
	DefaultPort = 1223
)

// Record field offsets.
const (
	recIDOff      = 0
	recAddrOff    = recIDOff + PeerIDSize
	recPortOff    = recAddrOff + AddrSize
	recCounterOff = recPortOff + PortSize
)

// Request field offsets.
const (
	reqIDOff      = 0
	reqCounterOff = reqIDOff + PeerIDSize
	reqFlagsOff   = reqCounterOff + CounterSize
	reqGroupOff   = reqFlagsOff + 2
	reqTagOff     = reqGroupOff + 4
)

// addrMask obfuscates stored addresses. It is not encryption.
var addrMask = [AddrSize]byte{0x32, 0x2d, 0xcc, 0xac}

// ErrBadLength is returned when a buffer does not have the exact size of the
// structure being decoded.
var ErrBadLength = errors.New("bad datagram length")

// PeerID identifies a registrant. It carries the peer's WireGuard public key.
type PeerID [PeerIDSize]byte

// ParsePeerID decodes the 44-character base64 form of a peer ID.
func ParsePeerID(s string) (PeerID, error) {
	if len(s) != 44 {
		return PeerID{}, fmt.Errorf("peer id must be 44 chars long, got %d", len(s))
	}
	k, err := wgtypes.ParseKey(s)
	if err != nil {
		return PeerID{}, fmt.Errorf("failed to parse peer id: %w", err)
	}
	return PeerID(k), nil
}

// String returns the base64 form of the ID.
func (id PeerID) String() string {
	return wgtypes.Key(id).String()
}

// IsZero reports whether the ID is all zero bytes.
func (id PeerID) IsZero() bool {
	return id == PeerID{}
}

// Flags is the per-request control field (clflg).
type Flags uint16

const (
	// FlagKeepEndpoint asks the server not to update the stored address/port.
	FlagKeepEndpoint Flags = 1 << 0
	// FlagKeepRecord asks the server not to update the record at all.
	FlagKeepRecord Flags = 1 << 1

	flagMask = FlagKeepEndpoint | FlagKeepRecord
)

// Normalize drops unknown bits and rewrites the contradictory combination
// "update endpoint but keep record" into a full update.
func (f Flags) Normalize() Flags {
	f &= flagMask
	if f == FlagKeepRecord {
		return 0
	}
	return f
}

func (f Flags) String() string {
	switch f.Normalize() {
	case 0:
		return "full"
	case FlagKeepEndpoint:
		return "counter-only"
	default:
		return "query"
	}
}
