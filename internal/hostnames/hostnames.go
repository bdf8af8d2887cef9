package hostnames

import (
	"net/netip"
	"strings"

	"golang.org/x/net/idna"
)

// Normalize converts a hostname to its canonical ASCII lower-case form.
// - Trims spaces
// - Drops a trailing dot
// - Applies IDNA Lookup ToASCII mapping
// - Lower-cases the result
// IPv4 literals are returned unchanged apart from trimming.
func Normalize(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if _, ok := Literal(host); ok {
		return host
	}
	host = strings.TrimSuffix(host, ".")
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil || ascii == "" {
		ascii = host
	}
	return strings.ToLower(ascii)
}

// Literal reports whether host is an IPv4 address literal and returns it.
// Literals skip name resolution entirely.
func Literal(host string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(host)
	if err != nil || !addr.Unmap().Is4() {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
