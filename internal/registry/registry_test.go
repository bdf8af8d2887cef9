package registry_test

import (
	"fmt"
	"net/netip"
	"testing"
	"time"

	"github.com/AtDexters-Lab/nexus-rendezvous/internal/auth"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/protocol"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/registry"
	"github.com/stretchr/testify/require"
)

var key = make([]byte, protocol.SecretSize)

func record(t *testing.T, id byte, ep string, sec int64) protocol.PeerRecord {
	t.Helper()
	rec, err := protocol.NewPeerRecord(protocol.PeerID{id}, netip.MustParseAddrPort(ep), protocol.NewCounter(time.Unix(sec, 0)))
	require.NoError(t, err)
	return rec
}

func requireSigned(t *testing.T, reg *registry.Registry) {
	t.Helper()
	b := reg.Bytes()
	require.Len(t, b, protocol.ResponseSize)
	require.NoError(t, auth.VerifyTable(key, b))
}

func newRegistry(t *testing.T, policy registry.Policy) *registry.Registry {
	t.Helper()
	reg, err := registry.New(key, policy)
	require.NoError(t, err)
	return reg
}

func TestEmptyRegistryIsSigned(t *testing.T) {
	reg := newRegistry(t, "")
	require.Equal(t, 0, reg.Len())
	requireSigned(t, reg)

	_, ok := reg.Search(protocol.PeerID{1})
	require.False(t, ok)
}

func TestUpsertAppendsAndReplaces(t *testing.T) {
	reg := newRegistry(t, registry.PolicyReject)

	a := record(t, 1, "198.51.100.1:1000", 100)
	ch, err := reg.Upsert(a, true)
	require.NoError(t, err)
	require.Equal(t, registry.Added, ch.Outcome)
	require.Equal(t, 0, ch.Slot)
	requireSigned(t, reg)

	b := record(t, 2, "198.51.100.2:2000", 100)
	ch, err = reg.Upsert(b, true)
	require.NoError(t, err)
	require.Equal(t, 1, ch.Slot)

	moved := record(t, 1, "198.51.100.9:9000", 101)
	ch, err = reg.Upsert(moved, true)
	require.NoError(t, err)
	require.Equal(t, registry.Replaced, ch.Outcome)
	require.Equal(t, 0, ch.Slot)
	require.Equal(t, 2, reg.Len())
	requireSigned(t, reg)

	got, ok := reg.Search(protocol.PeerID{1})
	require.True(t, ok)
	require.Equal(t, moved, got)
}

func TestCounterOnlyKeepsEndpoint(t *testing.T) {
	reg := newRegistry(t, registry.PolicyReject)
	orig := record(t, 1, "198.51.100.1:1000", 100)
	_, err := reg.Upsert(orig, true)
	require.NoError(t, err)
	before := reg.Bytes()

	update := record(t, 1, "203.0.113.50:5000", 105)
	ch, err := reg.Upsert(update, false)
	require.NoError(t, err)
	require.Equal(t, registry.CounterUpdated, ch.Outcome)
	require.NotEqual(t, before, reg.Bytes(), "tag must change with the counter")
	requireSigned(t, reg)

	got, _ := reg.Search(protocol.PeerID{1})
	require.Equal(t, orig.Endpoint(), got.Endpoint())
	require.Equal(t, update.Counter, got.Counter)
}

func TestCounterOnlyForUnknownPeerIsNoop(t *testing.T) {
	reg := newRegistry(t, registry.PolicyReject)
	before := reg.Bytes()

	ch, err := reg.Upsert(record(t, 1, "198.51.100.1:1000", 100), false)
	require.NoError(t, err)
	require.Equal(t, registry.Unchanged, ch.Outcome)
	require.Equal(t, 0, reg.Len())
	require.Equal(t, before, reg.Bytes())
}

func TestRejectPolicyWhenFull(t *testing.T) {
	reg := newRegistry(t, registry.PolicyReject)
	for i := 1; i <= protocol.Capacity; i++ {
		_, err := reg.Upsert(record(t, byte(i), fmt.Sprintf("10.0.0.%d:100", i), 100), true)
		require.NoError(t, err)
	}
	before := reg.Bytes()

	_, err := reg.Upsert(record(t, 99, "10.0.1.1:100", 100), true)
	require.ErrorIs(t, err, registry.ErrFull)
	require.Equal(t, before, reg.Bytes())

	// Known peers can still update once the table is full.
	ch, err := reg.Upsert(record(t, 3, "10.9.9.9:100", 101), true)
	require.NoError(t, err)
	require.Equal(t, registry.Replaced, ch.Outcome)
	requireSigned(t, reg)
}

func TestEvictOldestPolicy(t *testing.T) {
	reg := newRegistry(t, registry.PolicyEvictOldest)
	for i := 1; i <= protocol.Capacity; i++ {
		sec := int64(200 + i)
		if i == 4 {
			sec = 150
		}
		_, err := reg.Upsert(record(t, byte(i), fmt.Sprintf("10.0.0.%d:100", i), sec), true)
		require.NoError(t, err)
	}

	newcomer := record(t, 99, "10.0.1.1:100", 300)
	ch, err := reg.Upsert(newcomer, true)
	require.NoError(t, err)
	require.Equal(t, registry.Evicted, ch.Outcome)
	require.Equal(t, 3, ch.Slot)
	require.Equal(t, protocol.PeerID{4}, ch.Previous.ID)
	require.Equal(t, protocol.Capacity, reg.Len())

	_, ok := reg.Search(protocol.PeerID{4})
	require.False(t, ok)
	got, ok := reg.Search(protocol.PeerID{99})
	require.True(t, ok)
	require.Equal(t, newcomer, got)
	requireSigned(t, reg)
}

func TestIdentifiersStayUnique(t *testing.T) {
	reg := newRegistry(t, registry.PolicyReject)
	for i := 0; i < 5; i++ {
		_, err := reg.Upsert(record(t, 1, fmt.Sprintf("10.0.0.%d:100", i+1), int64(100+i)), true)
		require.NoError(t, err)
	}
	require.Equal(t, 1, reg.Len())
	require.Len(t, reg.Records(), 1)
}

func TestZeroPeerIDRefused(t *testing.T) {
	reg := newRegistry(t, registry.PolicyReject)
	rec := record(t, 0, "10.0.0.1:100", 100)
	_, err := reg.Upsert(rec, true)
	require.ErrorIs(t, err, registry.ErrZeroPeerID)
	require.Equal(t, 0, reg.Len())
}

func TestNewValidatesArguments(t *testing.T) {
	_, err := registry.New([]byte("short"), registry.PolicyReject)
	require.Error(t, err)
	_, err = registry.New(key, registry.Policy("lru"))
	require.Error(t, err)
}

func TestActionFor(t *testing.T) {
	cases := []struct {
		flags protocol.Flags
		want  registry.Action
	}{
		{0, registry.ActionFull},
		{protocol.FlagKeepRecord, registry.ActionFull},
		{protocol.FlagKeepEndpoint, registry.ActionCounterOnly},
		{protocol.FlagKeepEndpoint | protocol.FlagKeepRecord, registry.ActionQuery},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, registry.ActionFor(tc.flags), "flags %02b", tc.flags)
	}
}

func TestApplyQueryDoesNotMutate(t *testing.T) {
	reg := newRegistry(t, registry.PolicyReject)
	before := reg.Bytes()
	ch, err := reg.Apply(registry.ActionQuery, record(t, 1, "10.0.0.1:100", 100))
	require.NoError(t, err)
	require.Equal(t, registry.Unchanged, ch.Outcome)
	require.Equal(t, before, reg.Bytes())
}
