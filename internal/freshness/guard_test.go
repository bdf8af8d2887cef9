package freshness

import (
	"testing"
	"time"

	"github.com/AtDexters-Lab/nexus-rendezvous/internal/protocol"
	"github.com/stretchr/testify/require"
)

var serverNow = time.Unix(1700000000, 0)

func fixedGuard() *Guard {
	return &Guard{Now: func() time.Time { return serverNow }, Window: DefaultWindow}
}

func TestCheckWindowBoundary(t *testing.T) {
	g := fixedGuard()

	for _, offset := range []int64{0, 30, -30, 29, -29} {
		c := protocol.NewCounter(time.Unix(serverNow.Unix()+offset, 0))
		require.NoError(t, g.Check(c, nil), "offset %d", offset)
	}
	for _, offset := range []int64{31, -31, 3600, -3600} {
		c := protocol.NewCounter(time.Unix(serverNow.Unix()+offset, 0))
		require.ErrorIs(t, g.Check(c, nil), ErrClockSkew, "offset %d", offset)
	}
}

func TestCheckFormatTag(t *testing.T) {
	g := fixedGuard()
	c := protocol.NewCounter(serverNow)

	untagged := c
	untagged[0] &^= 0x40
	require.ErrorIs(t, g.Check(untagged, nil), ErrBadTag)

	reserved := c
	reserved[0] |= 0x80
	require.ErrorIs(t, g.Check(reserved, nil), ErrBadTag)
}

func TestCheckMonotonic(t *testing.T) {
	g := fixedGuard()
	stored := protocol.NewCounter(time.Unix(serverNow.Unix(), 500))

	require.NoError(t, g.Check(protocol.NewCounter(time.Unix(serverNow.Unix(), 501)), &stored))
	require.NoError(t, g.Check(protocol.NewCounter(time.Unix(serverNow.Unix()+1, 0)), &stored))

	require.ErrorIs(t, g.Check(stored, &stored), ErrReplay, "equal counter is a replay")
	require.ErrorIs(t, g.Check(protocol.NewCounter(time.Unix(serverNow.Unix(), 499)), &stored), ErrReplay)
	require.ErrorIs(t, g.Check(protocol.NewCounter(time.Unix(serverNow.Unix()-1, 999)), &stored), ErrReplay)
}

func TestNewUsesDefaults(t *testing.T) {
	g := New()
	require.Equal(t, DefaultWindow, g.Window)
	require.NoError(t, g.Check(protocol.NewCounter(time.Now()), nil))
}
