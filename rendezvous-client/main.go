package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/netip"
	"os"
	"strconv"
	"time"

	"github.com/AtDexters-Lab/nexus-rendezvous/internal/client"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/config"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/fatal"
	hn "github.com/AtDexters-Lab/nexus-rendezvous/internal/hostnames"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/protocol"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/secret"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/transport"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/wgconf"
	"golang.zx2c4.com/wireguard/wgctrl"
)

func main() {
	configPath := flag.String("config", "client.yaml", "Path to the configuration file.")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Printf("FATAL: %v", err)
		os.Exit(fatal.ExitCode(err))
	}
}

func run(configPath string) error {
	cfg, err := config.LoadClientConfig(configPath)
	if err != nil {
		return fatal.Wrap(fatal.KindUsage, err)
	}
	self, err := protocol.ParsePeerID(cfg.PeerID)
	if err != nil {
		return fatal.Wrap(fatal.KindUsage, err)
	}

	key, err := secret.Read(cfg.SecretFile)
	if err != nil {
		return fatal.Wrap(fatal.KindSecret, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
	defer cancel()

	serverAddr, err := resolve(ctx, cfg.ServerHost, cfg.ServerPort)
	if err != nil {
		return fatal.Wrap(fatal.KindResolve, err)
	}

	var crypter *transport.Crypter
	if cfg.Encryption {
		crypter = transport.NewCrypter(key)
	}
	conn, err := transport.Listen(":"+strconv.Itoa(cfg.ListenPort), crypter)
	if err != nil {
		return fatal.Wrap(fatal.KindSocket, err)
	}
	defer conn.Close()

	c := client.New(conn, serverAddr, key, self, cfg.Flags(), cfg.Group)
	table, err := c.Exchange(ctx)
	if err != nil {
		return err
	}

	views := table.Views(time.Now())
	switch cfg.Output {
	case config.OutputTerse:
		err = wgconf.WriteTerse(os.Stdout, views, &self)
	default:
		err = wgconf.WriteConfig(os.Stdout, views, self, cfg.ListenPort)
	}
	if err != nil {
		return err
	}

	if cfg.WireguardDevice != "" {
		wgc, err := wgctrl.New()
		if err != nil {
			return fmt.Errorf("failed to open wireguard control: %w", err)
		}
		defer wgc.Close()
		n, err := wgconf.Apply(wgc, cfg.WireguardDevice, views, self)
		if err != nil {
			return err
		}
		log.Printf("INFO: [CLIENT] Updated %d peer endpoint(s) on %s", n, cfg.WireguardDevice)
	}
	return nil
}

// resolve returns the IPv4 address of host, skipping DNS for literals.
func resolve(ctx context.Context, host string, port int) (netip.AddrPort, error) {
	if addr, ok := hn.Literal(host); ok {
		return netip.AddrPortFrom(addr, uint16(port)), nil
	}
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%s not found: %w", host, err)
	}
	if len(addrs) == 0 {
		return netip.AddrPort{}, fmt.Errorf("%s has no IPv4 address", host)
	}
	return netip.AddrPortFrom(addrs[0].Unmap(), uint16(port)), nil
}
