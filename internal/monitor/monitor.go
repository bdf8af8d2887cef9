// Package monitor exposes a read-only view of the registry over HTTP and a
// live WebSocket feed. It never touches the registry itself: the server
// pushes a copy of the signed table after every change.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/AtDexters-Lab/nexus-rendezvous/internal/auth"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/iface"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	authTimeout     = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Token scopes.
const (
	ScopePeers = "peers"
	ScopeStats = "stats"
	ScopeWatch = "watch"
)

var errUnauthorized = errors.New("missing bearer token")

// PeerEntry is one occupied registry slot.
type PeerEntry struct {
	Slot     int    `json:"slot"`
	ID       string `json:"id"`
	Endpoint string `json:"endpoint"`
	LastSeen int64  `json:"last_seen"`
}

// Snapshot is the registry as served on /peers and streamed on /watch.
type Snapshot struct {
	ServerID  string      `json:"server_id"`
	UpdatedAt time.Time   `json:"updated_at"`
	Peers     []PeerEntry `json:"peers"`
}

type statsResponse struct {
	ServerID    string `json:"server_id"`
	Subscribers int    `json:"subscribers"`
	iface.Stats
}

// Monitor serves /peers, /stats and /watch.
type Monitor struct {
	addr       string
	serverID   string
	validator  auth.Validator
	stats      iface.StatsSource
	upgrader   websocket.Upgrader
	httpServer *http.Server

	mu          sync.RWMutex
	latest      Snapshot
	subscribers map[uuid.UUID]*subscriber
}

// New creates a monitor listening on addr once Run is called. stats may be nil.
func New(addr string, serverID uuid.UUID, validator auth.Validator, stats iface.StatsSource) *Monitor {
	m := &Monitor{
		addr:      addr,
		serverID:  serverID.String(),
		validator: validator,
		stats:     stats,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		latest:      Snapshot{ServerID: serverID.String(), UpdatedAt: time.Now().UTC(), Peers: []PeerEntry{}},
		subscribers: make(map[uuid.UUID]*subscriber),
	}
	m.httpServer = &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return m
}

// Handler returns the monitor's routes.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/peers", m.handlePeers)
	mux.HandleFunc("/stats", m.handleStats)
	mux.HandleFunc("/watch", m.handleWatch)
	return mux
}

// Run serves HTTP until Stop is called.
func (m *Monitor) Run() error {
	log.Printf("INFO: [MONITOR] Listening on %s", m.addr)
	if err := m.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("monitor failed: %w", err)
	}
	return nil
}

// Stop shuts the HTTP server down and disconnects every watcher.
func (m *Monitor) Stop() {
	log.Println("INFO: [MONITOR] Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := m.httpServer.Shutdown(ctx); err != nil {
		log.Printf("WARN: [MONITOR] Graceful shutdown failed: %v", err)
	}

	m.mu.Lock()
	subs := make([]*subscriber, 0, len(m.subscribers))
	for _, s := range m.subscribers {
		subs = append(subs, s)
	}
	m.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
}

// PublishTable replaces the current snapshot with the decoded table and
// forwards it to every watcher. Slow watchers miss updates rather than
// blocking the caller.
func (m *Monitor) PublishTable(table []byte) {
	t, err := protocol.DecodeTable(table)
	if err != nil {
		log.Printf("WARN: [MONITOR] Ignoring undecodable table: %v", err)
		return
	}

	snap := Snapshot{ServerID: m.serverID, UpdatedAt: time.Now().UTC(), Peers: []PeerEntry{}}
	for i, r := range t.Records {
		if r.IsEmpty() {
			continue
		}
		snap.Peers = append(snap.Peers, PeerEntry{
			Slot:     i,
			ID:       r.ID.String(),
			Endpoint: r.Endpoint().String(),
			LastSeen: int64(r.Counter.Seconds()),
		})
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Printf("ERROR: [MONITOR] Failed to marshal snapshot: %v", err)
		return
	}

	m.mu.Lock()
	m.latest = snap
	subs := make([]*subscriber, 0, len(m.subscribers))
	for _, s := range m.subscribers {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		if err := s.Send(payload); err != nil {
			log.Printf("WARN: [MONITOR] %v", err)
		}
	}
}

// Snapshot returns the latest published registry.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := m.latest
	snap.Peers = append([]PeerEntry{}, m.latest.Peers...)
	return snap
}

func (m *Monitor) handlePeers(w http.ResponseWriter, r *http.Request) {
	if !m.authorize(w, r, ScopePeers) {
		return
	}
	writeJSON(w, m.Snapshot())
}

func (m *Monitor) handleStats(w http.ResponseWriter, r *http.Request) {
	if !m.authorize(w, r, ScopeStats) {
		return
	}
	resp := statsResponse{ServerID: m.serverID}
	if m.stats != nil {
		resp.Stats = m.stats.Stats()
	}
	m.mu.RLock()
	resp.Subscribers = len(m.subscribers)
	m.mu.RUnlock()
	writeJSON(w, resp)
}

func (m *Monitor) handleWatch(w http.ResponseWriter, r *http.Request) {
	if !m.authorize(w, r, ScopeWatch) {
		return
	}
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ERROR: [MONITOR] Failed to upgrade watch connection: %v", err)
		return
	}

	sub := newSubscriber(conn)
	m.mu.Lock()
	m.subscribers[sub.id] = sub
	initial := m.latest
	m.mu.Unlock()
	log.Printf("INFO: [MONITOR] Watcher %s connected from %s", sub.id, conn.RemoteAddr())

	defer func() {
		m.mu.Lock()
		delete(m.subscribers, sub.id)
		m.mu.Unlock()
		log.Printf("INFO: [MONITOR] Watcher %s disconnected", sub.id)
	}()

	if payload, err := json.Marshal(initial); err == nil {
		_ = sub.Send(payload)
	}
	sub.StartPumps()
}

// authorize writes an error response and returns false unless the request
// carries a valid token granting scope.
func (m *Monitor) authorize(w http.ResponseWriter, r *http.Request, scope string) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return false
	}
	token := bearerToken(r)
	if token == "" {
		http.Error(w, errUnauthorized.Error(), http.StatusUnauthorized)
		return false
	}

	ctx, cancel := context.WithTimeout(r.Context(), authTimeout)
	claims, err := m.validator.Validate(ctx, token)
	cancel()
	if err != nil {
		log.Printf("WARN: [MONITOR] Rejected token from %s: %v", r.RemoteAddr, err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return false
	}
	if !claims.HasScope(scope) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return false
	}
	return true
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter for browser WebSocket clients.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		const prefix = "Bearer "
		if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
			return strings.TrimSpace(h[len(prefix):])
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: [MONITOR] Failed to write response: %v", err)
	}
}
