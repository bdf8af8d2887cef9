// Package server runs the rendezvous loop: it validates announcements, folds
// them into the registry and answers with the signed table.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/AtDexters-Lab/nexus-rendezvous/internal/auth"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/fatal"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/freshness"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/iface"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/protocol"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/registry"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/transport"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/wgconf"
	"github.com/google/uuid"
)

type counters struct {
	accepted      atomic.Uint64
	queries       atomic.Uint64
	dropLength    atomic.Uint64
	dropFreshness atomic.Uint64
	dropHMAC      atomic.Uint64
	dropFull      atomic.Uint64
	dropOther     atomic.Uint64
}

// Server owns the registry. HandleDatagram and Serve must not be called
// concurrently; Stats may be called from any goroutine.
type Server struct {
	id        uuid.UUID
	key       []byte
	registry  *registry.Registry
	guard     *freshness.Guard
	publisher iface.Publisher
	stats     counters
}

// New creates a server. publisher may be nil.
func New(key []byte, reg *registry.Registry, guard *freshness.Guard, publisher iface.Publisher) *Server {
	if guard == nil {
		guard = freshness.New()
	}
	return &Server{
		id:        uuid.New(),
		key:       append([]byte(nil), key...),
		registry:  reg,
		guard:     guard,
		publisher: publisher,
	}
}

// SetPublisher sets the receiver of table updates. This is done after
// initialization because the monitor is keyed by the server's ID.
func (s *Server) SetPublisher(p iface.Publisher) {
	s.publisher = p
}

// Table returns a copy of the current signed registry.
func (s *Server) Table() []byte {
	return s.registry.Bytes()
}

// ID identifies this server instance in logs and in the monitor.
func (s *Server) ID() uuid.UUID {
	return s.id
}

// HandleDatagram processes one plaintext request received from `from` and
// returns the signed table to send back. A non-nil error means the request
// is dropped without a reply.
func (s *Server) HandleDatagram(pkt []byte, from netip.AddrPort) ([]byte, error) {
	req, err := protocol.DecodeRequest(pkt)
	if err != nil {
		s.stats.dropLength.Add(1)
		return nil, err
	}

	var prev *protocol.Counter
	if rec, ok := s.registry.Search(req.PeerID); ok {
		prev = &rec.Counter
	}
	if err := s.guard.Check(req.Counter, prev); err != nil {
		s.stats.dropFreshness.Add(1)
		return nil, err
	}

	if err := auth.VerifyRequest(s.key, pkt); err != nil {
		s.stats.dropHMAC.Add(1)
		return nil, err
	}

	rec, err := protocol.NewPeerRecord(req.PeerID, from, req.Counter)
	if err != nil {
		s.stats.dropOther.Add(1)
		return nil, err
	}

	action := registry.ActionFor(req.Flags)
	change, err := s.registry.Apply(action, rec)
	if err != nil {
		if errors.Is(err, registry.ErrFull) {
			s.stats.dropFull.Add(1)
		} else {
			s.stats.dropOther.Add(1)
		}
		return nil, err
	}

	s.stats.accepted.Add(1)
	if action == registry.ActionQuery {
		s.stats.queries.Add(1)
	}
	s.logChange(change, rec)

	table := s.registry.Bytes()
	if change.Outcome != registry.Unchanged && s.publisher != nil {
		s.publisher.PublishTable(table)
	}
	return table, nil
}

func (s *Server) logChange(change registry.Change, rec protocol.PeerRecord) {
	line := wgconf.Terse(rec.View(time.Now()), nil)
	switch change.Outcome {
	case registry.Added, registry.Replaced:
		log.Printf("INFO: [SERVER] %s slot %d: %s", change.Outcome, change.Slot, line)
	case registry.Evicted:
		log.Printf("INFO: [SERVER] evicted %s from slot %d for %s", change.Previous.ID, change.Slot, line)
	case registry.CounterUpdated:
		log.Printf("DEBUG: [SERVER] counter refreshed in slot %d: %s", change.Slot, line)
	}
}

// Serve reads requests from conn one at a time until ctx is cancelled or the
// socket fails. Cancellation closes conn and returns nil; a socket failure
// returns a fatal socket error.
func (s *Server) Serve(ctx context.Context, conn iface.DatagramConn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	log.Printf("INFO: [SERVER] Instance %s serving with a %d peer registry", s.id, protocol.Capacity)
	buf := make([]byte, transport.MaxDatagramSize)
	for {
		n, from, group, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("INFO: [SERVER] Shutting down rendezvous loop.")
				return nil
			}
			if errors.Is(err, transport.ErrMalformed) {
				s.stats.dropLength.Add(1)
				log.Printf("WARN: [SERVER] Dropping datagram from %s: %v", from, err)
				continue
			}
			return fatal.Wrap(fatal.KindSocket, fmt.Errorf("recvfrom: %w", err))
		}

		resp, err := s.HandleDatagram(buf[:n], from)
		if err != nil {
			log.Printf("WARN: [SERVER] Dropping request from %s: %v", from, err)
			continue
		}
		if err := conn.WriteTo(resp, from, group); err != nil {
			log.Printf("ERROR: [SERVER] Failed to reply to %s: %v", from, err)
		}
	}
}

// Stats returns a snapshot of the request counters.
func (s *Server) Stats() iface.Stats {
	return iface.Stats{
		Accepted:      s.stats.accepted.Load(),
		Queries:       s.stats.queries.Load(),
		DropLength:    s.stats.dropLength.Load(),
		DropFreshness: s.stats.dropFreshness.Load(),
		DropHMAC:      s.stats.dropHMAC.Load(),
		DropFull:      s.stats.dropFull.Load(),
		DropOther:     s.stats.dropOther.Load(),
	}
}
