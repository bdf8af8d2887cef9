package transport

import (
	"fmt"
	"net"
	"net/netip"
	"time"
)

// MaxDatagramSize bounds a single receive.
const MaxDatagramSize = 1500

// Conn is a UDP socket that optionally encrypts every datagram it sends and
// decrypts every datagram it receives.
type Conn struct {
	udp     *net.UDPConn
	crypter *Crypter
	buf     []byte
}

// NewConn wraps udp. A nil crypter sends datagrams in clear.
func NewConn(udp *net.UDPConn, crypter *Crypter) *Conn {
	return &Conn{
		udp:     udp,
		crypter: crypter,
		buf:     make([]byte, MaxDatagramSize),
	}
}

// Listen binds a UDP IPv4 socket on addr.
func Listen(addr string, crypter *Crypter) (*Conn, error) {
	laddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve listen address %s: %w", addr, err)
	}
	udp, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind UDP socket on %s: %w", addr, err)
	}
	return NewConn(udp, crypter), nil
}

// Encrypted reports whether the connection wraps datagrams.
func (c *Conn) Encrypted() bool {
	return c.crypter != nil
}

// ReadFrom receives one datagram and copies its plaintext into b. Errors
// wrapping ErrMalformed concern only that datagram; any other error comes
// from the socket.
func (c *Conn) ReadFrom(b []byte) (int, netip.AddrPort, uint32, error) {
	n, from, err := c.udp.ReadFromUDPAddrPort(c.buf)
	if err != nil {
		return 0, netip.AddrPort{}, 0, err
	}
	from = netip.AddrPortFrom(from.Addr().Unmap(), from.Port())

	var group uint32
	payload := c.buf[:n]
	if c.crypter != nil {
		group, payload, err = c.crypter.Open(payload)
		if err != nil {
			return 0, from, 0, err
		}
	}
	if len(payload) > len(b) {
		return 0, from, group, fmt.Errorf("%w: %d bytes does not fit a %d byte buffer", ErrMalformed, len(payload), len(b))
	}
	return copy(b, payload), from, group, nil
}

// WriteTo sends b to addr, sealed under group when encryption is enabled.
func (c *Conn) WriteTo(b []byte, addr netip.AddrPort, group uint32) error {
	out := b
	if c.crypter != nil {
		sealed, err := c.crypter.Seal(group, b)
		if err != nil {
			return err
		}
		out = sealed
	}
	if _, err := c.udp.WriteToUDPAddrPort(out, addr); err != nil {
		return fmt.Errorf("sendto %s: %w", addr, err)
	}
	return nil
}

// SetReadDeadline bounds the next ReadFrom.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.udp.SetReadDeadline(t)
}

// LocalAddr returns the bound address.
func (c *Conn) LocalAddr() netip.AddrPort {
	ap := c.udp.LocalAddr().(*net.UDPAddr).AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// Close closes the socket, unblocking any pending ReadFrom.
func (c *Conn) Close() error {
	return c.udp.Close()
}
