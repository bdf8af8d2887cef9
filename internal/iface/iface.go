package iface

import (
	"net/netip"
	"time"
)

// DatagramConn is the socket the server loop and the client exchange use.
// Errors wrapping transport.ErrMalformed concern a single datagram only.
type DatagramConn interface {
	ReadFrom(b []byte) (n int, from netip.AddrPort, group uint32, err error)
	WriteTo(b []byte, to netip.AddrPort, group uint32) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Publisher receives a copy of the signed registry after every accepted
// request that changed it.
type Publisher interface {
	PublishTable(table []byte)
}

// StatsSource exposes the server's request counters.
type StatsSource interface {
	Stats() Stats
}

// Stats counts what happened to received datagrams.
type Stats struct {
	Accepted      uint64 `json:"accepted"`
	Queries       uint64 `json:"queries"`
	DropLength    uint64 `json:"drop_length"`
	DropFreshness uint64 `json:"drop_freshness"`
	DropHMAC      uint64 `json:"drop_hmac"`
	DropFull      uint64 `json:"drop_full"`
	DropOther     uint64 `json:"drop_other"`
}
