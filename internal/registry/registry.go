package registry

import (
	"errors"
	"fmt"

	"github.com/AtDexters-Lab/nexus-rendezvous/internal/auth"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/protocol"
)

// Policy decides what happens when a new peer arrives at a full table.
type Policy string

const (
	// PolicyReject refuses new distinct peers once every slot is taken.
	PolicyReject Policy = "reject"
	// PolicyEvictOldest overwrites the slot with the smallest counter.
	PolicyEvictOldest Policy = "evict-oldest"
)

var (
	// ErrFull is returned when a new peer cannot be stored under PolicyReject.
	ErrFull = errors.New("registry is full")
	// ErrZeroPeerID is returned for the all-zero identifier, which marks empty slots.
	ErrZeroPeerID = errors.New("peer id is all zero")
)

// Outcome describes what an upsert did to the table.
type Outcome int

const (
	Unchanged Outcome = iota
	Added
	Replaced
	CounterUpdated
	Evicted
)

func (o Outcome) String() string {
	switch o {
	case Added:
		return "added"
	case Replaced:
		return "replaced"
	case CounterUpdated:
		return "counter-updated"
	case Evicted:
		return "evicted"
	default:
		return "unchanged"
	}
}

// Change reports the result of a mutation.
type Change struct {
	Outcome Outcome
	// Slot is the index that was written, or -1.
	Slot int
	// Previous is the record that occupied Slot before an eviction.
	Previous protocol.PeerRecord
}

// Registry is the fixed-capacity, HMAC-tagged peer table. It is not safe for
// concurrent use: the server loop owns it.
type Registry struct {
	key    []byte
	policy Policy
	table  protocol.Table
	used   int
	wire   []byte
}

// New returns an empty registry whose tag is already valid under key.
func New(key []byte, policy Policy) (*Registry, error) {
	if len(key) != protocol.SecretSize {
		return nil, fmt.Errorf("registry key must be %d bytes, got %d", protocol.SecretSize, len(key))
	}
	switch policy {
	case "":
		policy = PolicyReject
	case PolicyReject, PolicyEvictOldest:
	default:
		return nil, fmt.Errorf("unknown capacity policy %q", policy)
	}
	r := &Registry{
		key:    append([]byte(nil), key...),
		policy: policy,
	}
	r.reseal()
	return r, nil
}

// Search returns the record stored for id.
func (r *Registry) Search(id protocol.PeerID) (protocol.PeerRecord, bool) {
	if i := r.index(id); i >= 0 {
		return r.table.Records[i], true
	}
	return protocol.PeerRecord{}, false
}

// Upsert stores rec. With updateEndpoint an existing slot is overwritten
// whole; without it only the counter changes, and an unknown peer is left
// out of the table.
func (r *Registry) Upsert(rec protocol.PeerRecord, updateEndpoint bool) (Change, error) {
	if rec.ID.IsZero() {
		return Change{Slot: -1}, ErrZeroPeerID
	}

	if i := r.index(rec.ID); i >= 0 {
		if updateEndpoint {
			r.table.Records[i] = rec
			r.reseal()
			return Change{Outcome: Replaced, Slot: i}, nil
		}
		r.table.Records[i].Counter = rec.Counter
		r.reseal()
		return Change{Outcome: CounterUpdated, Slot: i}, nil
	}

	if !updateEndpoint {
		return Change{Outcome: Unchanged, Slot: -1}, nil
	}

	if r.used < protocol.Capacity {
		i := r.used
		r.table.Records[i] = rec
		r.used++
		r.reseal()
		return Change{Outcome: Added, Slot: i}, nil
	}

	if r.policy != PolicyEvictOldest {
		return Change{Slot: -1}, fmt.Errorf("%w: %d peers", ErrFull, protocol.Capacity)
	}
	i := r.oldest()
	prev := r.table.Records[i]
	r.table.Records[i] = rec
	r.reseal()
	return Change{Outcome: Evicted, Slot: i, Previous: prev}, nil
}

// Apply performs the mutation selected by a request's flags.
func (r *Registry) Apply(a Action, rec protocol.PeerRecord) (Change, error) {
	switch a {
	case ActionFull:
		return r.Upsert(rec, true)
	case ActionCounterOnly:
		return r.Upsert(rec, false)
	default:
		return Change{Outcome: Unchanged, Slot: -1}, nil
	}
}

// Bytes returns a copy of the signed table, ready to be sent as a response.
func (r *Registry) Bytes() []byte {
	return append([]byte(nil), r.wire...)
}

// Len returns the number of occupied slots.
func (r *Registry) Len() int {
	return r.used
}

// Records returns the occupied slots in order.
func (r *Registry) Records() []protocol.PeerRecord {
	return append([]protocol.PeerRecord(nil), r.table.Records[:r.used]...)
}

func (r *Registry) index(id protocol.PeerID) int {
	for i := 0; i < r.used; i++ {
		if r.table.Records[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) oldest() int {
	oldest := 0
	for i := 1; i < r.used; i++ {
		if r.table.Records[oldest].Counter.After(r.table.Records[i].Counter) {
			oldest = i
		}
	}
	return oldest
}

// reseal re-encodes the table and recomputes its tag. Every mutation calls it
// before returning.
func (r *Registry) reseal() {
	r.wire = protocol.EncodeTable(&r.table)
	auth.SignTable(r.key, r.wire)
	copy(r.table.Tag[:], r.wire[protocol.TableSignedSize:])
}
