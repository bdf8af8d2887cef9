package protocol

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Request is the datagram a client sends to announce itself.
type Request struct {
	PeerID  PeerID
	Counter Counter
	Flags   Flags
	Group   uint32
	Tag     [TagSize]byte
}

// EncodeRequest serializes r, tag included, into a RequestSize buffer.
func EncodeRequest(r Request) []byte {
	b := make([]byte, RequestSize)
	copy(b[reqIDOff:], r.PeerID[:])
	copy(b[reqCounterOff:], r.Counter[:])
	binary.BigEndian.PutUint16(b[reqFlagsOff:], uint16(r.Flags))
	binary.BigEndian.PutUint32(b[reqGroupOff:], r.Group)
	copy(b[reqTagOff:], r.Tag[:])
	return b
}

// DecodeRequest parses a request datagram. Any length other than RequestSize
// is rejected before a field is read.
func DecodeRequest(b []byte) (Request, error) {
	if len(b) != RequestSize {
		return Request{}, fmt.Errorf("%w: request is %d bytes, want %d", ErrBadLength, len(b), RequestSize)
	}
	var r Request
	copy(r.PeerID[:], b[reqIDOff:reqCounterOff])
	copy(r.Counter[:], b[reqCounterOff:reqFlagsOff])
	r.Flags = Flags(binary.BigEndian.Uint16(b[reqFlagsOff:reqGroupOff]))
	r.Group = binary.BigEndian.Uint32(b[reqGroupOff:reqTagOff])
	copy(r.Tag[:], b[reqTagOff:RequestSize])
	return r, nil
}

// Table is the registry as it travels in a response datagram.
type Table struct {
	Records  [Capacity]PeerRecord
	Reserved [ReservedSize]byte
	Tag      [TagSize]byte
}

// EncodeTable serializes t into a ResponseSize buffer.
func EncodeTable(t *Table) []byte {
	b := make([]byte, ResponseSize)
	for i := range t.Records {
		EncodeRecord(b[i*RecordSize:(i+1)*RecordSize], t.Records[i])
	}
	copy(b[Capacity*RecordSize:], t.Reserved[:])
	copy(b[TableSignedSize:], t.Tag[:])
	return b
}

// DecodeTable parses a response datagram.
func DecodeTable(b []byte) (*Table, error) {
	if len(b) != ResponseSize {
		return nil, fmt.Errorf("%w: response is %d bytes, want %d", ErrBadLength, len(b), ResponseSize)
	}
	t := &Table{}
	for i := range t.Records {
		rec, err := DecodeRecord(b[i*RecordSize : (i+1)*RecordSize])
		if err != nil {
			return nil, err
		}
		t.Records[i] = rec
	}
	copy(t.Reserved[:], b[Capacity*RecordSize:TableSignedSize])
	copy(t.Tag[:], b[TableSignedSize:])
	return t, nil
}

// Occupied returns the non-empty records in slot order.
func (t *Table) Occupied() []PeerRecord {
	out := make([]PeerRecord, 0, Capacity)
	for _, r := range t.Records {
		if !r.IsEmpty() {
			out = append(out, r)
		}
	}
	return out
}

// Views decodes every occupied record relative to now.
func (t *Table) Views(now time.Time) []PeerView {
	recs := t.Occupied()
	views := make([]PeerView, 0, len(recs))
	for _, r := range recs {
		views = append(views, r.View(now))
	}
	return views
}
