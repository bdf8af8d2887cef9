// Package wgconf renders registry contents for humans and for WireGuard.
package wgconf

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/AtDexters-Lab/nexus-rendezvous/internal/protocol"
)

// Terse renders v as a single line: "<id> <addr:port> [age]". When self is
// non-nil the line is prefixed with "* " for our own record and two spaces
// otherwise.
func Terse(v protocol.PeerView, self *protocol.PeerID) string {
	prefix := ""
	if self != nil {
		prefix = "  "
		if v.ID == *self {
			prefix = "* "
		}
	}
	line := prefix + v.ID.String() + " " + v.Endpoint.String()
	if v.Age != 0 {
		line += " " + strconv.FormatInt(v.Age, 10)
	}
	return line
}

// WriteTerse writes one Terse line per view.
func WriteTerse(w io.Writer, views []protocol.PeerView, self *protocol.PeerID) error {
	bw := bufio.NewWriter(w)
	for _, v := range views {
		if _, err := fmt.Fprintln(bw, Terse(v, self)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteConfig writes a WireGuard configuration skeleton: a comment with our
// own public endpoint, a [Peer] section per other peer and a trailing
// [Interface] section carrying listenPort.
func WriteConfig(w io.Writer, views []protocol.PeerView, self protocol.PeerID, listenPort int) error {
	bw := bufio.NewWriter(w)
	for _, v := range views {
		if v.ID == self {
			fmt.Fprintf(bw, "# Public endpoint = %s\n\n", v.Endpoint)
			continue
		}
		fmt.Fprintf(bw, "[Peer]\n# Seen %d s ago\nPublicKey = %s\nEndpoint = %s\n\n", v.Age, v.ID, v.Endpoint)
	}
	fmt.Fprintf(bw, "[Interface]\nListenPort = %d\n", listenPort)
	return bw.Flush()
}
