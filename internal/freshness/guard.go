// Package freshness rejects stale and replayed requests by looking at their
// counter field.
package freshness

import (
	"errors"
	"fmt"
	"time"

	"github.com/AtDexters-Lab/nexus-rendezvous/internal/protocol"
)

// DefaultWindow is the maximum clock difference tolerated between a peer and
// the server, in either direction.
const DefaultWindow = 30 * time.Second

var (
	// ErrBadTag means bit 62 of the label is clear or bit 63 is set.
	ErrBadTag = errors.New("bogus counter format tag")
	// ErrClockSkew means the peer's clock is too far from ours.
	ErrClockSkew = errors.New("large time difference")
	// ErrReplay means the counter does not increase over the stored one.
	ErrReplay = errors.New("old counter")
)

// Guard validates request counters against the local clock and against the
// last accepted counter of the same peer.
type Guard struct {
	Now    func() time.Time
	Window time.Duration
}

// New returns a Guard using the wall clock and DefaultWindow.
func New() *Guard {
	return &Guard{Now: time.Now, Window: DefaultWindow}
}

// Check returns nil when c is fresh. prev is the counter stored for the same
// peer, or nil when the peer is unknown.
func (g *Guard) Check(c protocol.Counter, prev *protocol.Counter) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %016x", ErrBadTag, c.Label())
	}

	now := g.Now().Unix()
	peerSec := int64(c.Seconds())
	window := int64(g.Window / time.Second)
	diff := now - peerSec
	if diff > window || diff < -window {
		return fmt.Errorf("%w: peer_sec=%d my_time=%d", ErrClockSkew, peerSec, now)
	}

	if prev != nil && !c.After(*prev) {
		return fmt.Errorf("%w: got %d.%09d, stored %d.%09d", ErrReplay,
			c.Seconds(), c.SubSeconds(), prev.Seconds(), prev.SubSeconds())
	}
	return nil
}
