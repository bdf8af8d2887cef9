package protocol

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"time"
)

const (
	labelTagBit      = uint64(1) << 62
	labelReservedBit = uint64(1) << 63
)

// Counter is the 12-byte freshness token: an 8-byte big-endian TAI64-style
// label (unix seconds with bit 62 set) followed by a 4-byte sub-second value.
type Counter [CounterSize]byte

// NewCounter builds the counter a client sends at time t.
func NewCounter(t time.Time) Counter {
	var c Counter
	binary.BigEndian.PutUint64(c[0:8], uint64(t.Unix())|labelTagBit)
	binary.BigEndian.PutUint32(c[8:12], uint32(t.Nanosecond()))
	return c
}

// Label returns the raw 64-bit label including the format bits.
func (c Counter) Label() uint64 {
	return binary.BigEndian.Uint64(c[0:8])
}

// Seconds returns the label with the format tag cleared.
func (c Counter) Seconds() uint64 {
	return c.Label() &^ labelTagBit
}

// SubSeconds returns the trailing sub-second counter.
func (c Counter) SubSeconds() uint32 {
	return binary.BigEndian.Uint32(c[8:12])
}

// Valid reports whether bit 62 is set and bit 63 is clear.
func (c Counter) Valid() bool {
	l := c.Label()
	return l&labelTagBit != 0 && l&labelReservedBit == 0
}

// After reports whether c is strictly greater than o, comparing
// (seconds, sub-seconds) lexicographically.
func (c Counter) After(o Counter) bool {
	cSec, oSec := c.Seconds(), o.Seconds()
	if cSec != oSec {
		return cSec > oSec
	}
	return c.SubSeconds() > o.SubSeconds()
}

// IsZero reports whether the counter is all zero bytes.
func (c Counter) IsZero() bool {
	return c == Counter{}
}

// PeerRecord is one registry slot. MaskedAddr holds the IPv4 address XOR'd
// with addrMask, exactly as it travels on the wire.
type PeerRecord struct {
	ID         PeerID
	MaskedAddr [AddrSize]byte
	Port       uint16
	Counter    Counter
}

// NewPeerRecord builds a record for a peer observed at ep. Only IPv4 (or
// IPv4-mapped IPv6) endpoints can be stored.
func NewPeerRecord(id PeerID, ep netip.AddrPort, c Counter) (PeerRecord, error) {
	addr := ep.Addr().Unmap()
	if !addr.Is4() {
		return PeerRecord{}, fmt.Errorf("endpoint %s is not IPv4", ep)
	}
	rec := PeerRecord{ID: id, Port: ep.Port(), Counter: c}
	ip := addr.As4()
	for i := range ip {
		rec.MaskedAddr[i] = ip[i] ^ addrMask[i]
	}
	return rec, nil
}

// Addr returns the un-masked IPv4 address.
func (r PeerRecord) Addr() netip.Addr {
	var ip [AddrSize]byte
	for i := range ip {
		ip[i] = r.MaskedAddr[i] ^ addrMask[i]
	}
	return netip.AddrFrom4(ip)
}

// Endpoint returns the un-masked address and port.
func (r PeerRecord) Endpoint() netip.AddrPort {
	return netip.AddrPortFrom(r.Addr(), r.Port)
}

// IsEmpty reports whether the slot is unused (all zero bytes).
func (r PeerRecord) IsEmpty() bool {
	return r == PeerRecord{}
}

// EncodeRecord writes r into b, which must be RecordSize bytes long.
func EncodeRecord(b []byte, r PeerRecord) {
	_ = b[RecordSize-1]
	copy(b[recIDOff:], r.ID[:])
	copy(b[recAddrOff:], r.MaskedAddr[:])
	binary.BigEndian.PutUint16(b[recPortOff:], r.Port)
	copy(b[recCounterOff:], r.Counter[:])
}

// DecodeRecord parses a single encoded record.
func DecodeRecord(b []byte) (PeerRecord, error) {
	if len(b) != RecordSize {
		return PeerRecord{}, fmt.Errorf("%w: record is %d bytes, want %d", ErrBadLength, len(b), RecordSize)
	}
	var r PeerRecord
	copy(r.ID[:], b[recIDOff:recAddrOff])
	copy(r.MaskedAddr[:], b[recAddrOff:recPortOff])
	r.Port = binary.BigEndian.Uint16(b[recPortOff:recCounterOff])
	copy(r.Counter[:], b[recCounterOff:RecordSize])
	return r, nil
}

// PeerView is the decoded, printable form of a record.
type PeerView struct {
	ID       PeerID
	Endpoint netip.AddrPort
	// Age is the number of seconds between the record's counter and now.
	Age int64
}

// View decodes r relative to now.
func (r PeerRecord) View(now time.Time) PeerView {
	return PeerView{
		ID:       r.ID,
		Endpoint: r.Endpoint(),
		Age:      now.Unix() - int64(r.Counter.Seconds()),
	}
}
