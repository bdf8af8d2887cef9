// Package client performs a single rendezvous exchange: announce ourselves,
// then wait for the signed registry.
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/netip"
	"os"
	"time"

	"github.com/AtDexters-Lab/nexus-rendezvous/internal/auth"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/fatal"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/iface"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/protocol"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/transport"
)

// DefaultTimeout bounds Exchange when the context carries no deadline.
const DefaultTimeout = 5 * time.Second

// ErrTimeout is wrapped in the fatal error returned when no valid response
// arrives before the deadline.
var ErrTimeout = errors.New("no valid response before deadline")

// Client talks to one rendezvous server over conn.
type Client struct {
	conn   iface.DatagramConn
	server netip.AddrPort
	key    []byte
	peerID protocol.PeerID
	flags  protocol.Flags
	group  uint32
}

// New creates a client announcing peerID to server.
func New(conn iface.DatagramConn, server netip.AddrPort, key []byte, peerID protocol.PeerID, flags protocol.Flags, group uint32) *Client {
	return &Client{
		conn:   conn,
		server: server,
		key:    append([]byte(nil), key...),
		peerID: peerID,
		flags:  flags.Normalize(),
		group:  group,
	}
}

// BuildRequest returns a signed request stamped with now.
func (c *Client) BuildRequest(now time.Time) []byte {
	pkt := protocol.EncodeRequest(protocol.Request{
		PeerID:  c.peerID,
		Counter: protocol.NewCounter(now),
		Flags:   c.flags,
		Group:   c.group,
	})
	auth.SignRequest(c.key, pkt)
	return pkt
}

// Exchange sends one request and waits for a response with a valid tag.
// Datagrams of the wrong size or with a bad tag are discarded. The deadline
// is absolute: discarded datagrams do not extend it.
func (c *Client) Exchange(ctx context.Context) (*protocol.Table, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, fatal.Wrap(fatal.KindSocket, err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			// Unblock a pending read on cancellation.
			c.conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	if err := c.conn.WriteTo(c.BuildRequest(time.Now()), c.server, c.group); err != nil {
		return nil, fatal.Wrap(fatal.KindSocket, err)
	}

	buf := make([]byte, transport.MaxDatagramSize)
	for {
		n, from, _, err := c.conn.ReadFrom(buf)
		if err != nil {
			switch {
			case errors.Is(err, transport.ErrMalformed):
				log.Printf("WARN: [CLIENT] Discarding datagram from %s: %v", from, err)
				continue
			case errors.Is(err, os.ErrDeadlineExceeded):
				if errors.Is(ctx.Err(), context.Canceled) {
					return nil, ctx.Err()
				}
				return nil, fatal.Wrap(fatal.KindTimeout, fmt.Errorf("%w from %s", ErrTimeout, c.server))
			default:
				return nil, fatal.Wrap(fatal.KindSocket, fmt.Errorf("recvfrom: %w", err))
			}
		}

		if n != protocol.ResponseSize {
			log.Printf("WARN: [CLIENT] Discarding %d byte datagram from %s", n, from)
			continue
		}
		if err := auth.VerifyTable(c.key, buf[:n]); err != nil {
			log.Printf("WARN: [CLIENT] Received datagram with wrong hmac from %s", from)
			continue
		}
		return protocol.DecodeTable(buf[:n])
	}
}
