package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/AtDexters-Lab/nexus-rendezvous/internal/auth"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/config"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/fatal"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/freshness"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/monitor"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/registry"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/secret"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/server"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/transport"
)

func main() {
	configPath := flag.String("config", "server.yaml", "Path to the configuration file.")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Printf("FATAL: %v", err)
		os.Exit(fatal.ExitCode(err))
	}
	log.Println("INFO: Shutdown complete. Goodbye.")
}

func run(configPath string) error {
	// --- 1. Configuration Loading ---
	cfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return fatal.Wrap(fatal.KindUsage, err)
	}
	log.Printf("INFO: Configuration loaded successfully from %s", configPath)

	key, err := secret.Read(cfg.SecretFile)
	if err != nil {
		return fatal.Wrap(fatal.KindSecret, err)
	}

	// --- 2. Server Initialization ---
	var crypter *transport.Crypter
	if cfg.Encryption {
		crypter = transport.NewCrypter(key)
		log.Println("INFO: Transport encryption enabled (ChaCha20, confidentiality only)")
	}

	reg, err := registry.New(key, registry.Policy(cfg.CapacityPolicy))
	if err != nil {
		return fatal.Wrap(fatal.KindUsage, err)
	}
	log.Printf("INFO: Registry capacity policy: %s", cfg.CapacityPolicy)

	conn, err := transport.Listen(cfg.ListenAddress, crypter)
	if err != nil {
		return fatal.Wrap(fatal.KindSocket, err)
	}
	log.Printf("INFO: Rendezvous server listening on udp %s", conn.LocalAddr())

	srv := server.New(key, reg, freshness.New(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	var mon *monitor.Monitor
	if cfg.Monitor.Enabled() {
		validator, err := auth.NewValidator(cfg.Monitor.JWTSecret)
		if err != nil {
			conn.Close()
			return fatal.Wrap(fatal.KindUsage, err)
		}
		mon = monitor.New(cfg.Monitor.ListenAddress, srv.ID(), validator, srv)
		mon.PublishTable(srv.Table())
		srv.SetPublisher(mon)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mon.Run(); err != nil {
				log.Printf("ERROR: %v", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ctx, conn)
	}()

	// --- 3. Graceful Shutdown ---
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	log.Println("INFO: Rendezvous server is running. Press CTRL+C to exit.")

	var result error
	select {
	case <-shutdownChan:
		log.Println("INFO: Shutdown signal received.")
		cancel()
		result = <-serveErr
	case err := <-serveErr:
		result = err
	}

	// --- 4. Cleanup ---
	if mon != nil {
		mon.Stop()
	}
	wg.Wait()
	return result
}
