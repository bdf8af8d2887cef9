package wgconf

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/AtDexters-Lab/nexus-rendezvous/internal/protocol"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// DeviceConfigurer is the subset of *wgctrl.Client that Apply needs.
type DeviceConfigurer interface {
	Device(name string) (*wgtypes.Device, error)
	ConfigureDevice(name string, cfg wgtypes.Config) error
}

// Apply points the peers already configured on device at the endpoints
// discovered through the registry. Unknown peers are never added and our own
// record is skipped. It returns the number of peers updated.
func Apply(dev DeviceConfigurer, device string, views []protocol.PeerView, self protocol.PeerID) (int, error) {
	d, err := dev.Device(device)
	if err != nil {
		return 0, fmt.Errorf("failed to open wireguard device %s: %w", device, err)
	}

	current := make(map[wgtypes.Key]*net.UDPAddr, len(d.Peers))
	for _, p := range d.Peers {
		current[p.PublicKey] = p.Endpoint
	}

	var peers []wgtypes.PeerConfig
	for _, v := range views {
		if v.ID == self {
			continue
		}
		key := wgtypes.Key(v.ID)
		ep, ok := current[key]
		if !ok {
			continue
		}
		if ep != nil && sameEndpoint(ep, v.Endpoint) {
			continue
		}
		peers = append(peers, wgtypes.PeerConfig{
			PublicKey:  key,
			UpdateOnly: true,
			Endpoint:   net.UDPAddrFromAddrPort(v.Endpoint),
		})
	}
	if len(peers) == 0 {
		return 0, nil
	}

	if err := dev.ConfigureDevice(device, wgtypes.Config{Peers: peers}); err != nil {
		return 0, fmt.Errorf("failed to configure wireguard device %s: %w", device, err)
	}
	return len(peers), nil
}

func sameEndpoint(a *net.UDPAddr, b netip.AddrPort) bool {
	ap := a.AddrPort()
	return ap.Addr().Unmap() == b.Addr() && ap.Port() == b.Port()
}
