package monitor

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 8
)

// subscriber is one /watch connection.
type subscriber struct {
	id        uuid.UUID
	conn      *websocket.Conn
	outgoing  chan []byte
	quit      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

func newSubscriber(conn *websocket.Conn) *subscriber {
	return &subscriber{
		id:       uuid.New(),
		conn:     conn,
		outgoing: make(chan []byte, sendBuffer),
		quit:     make(chan struct{}),
	}
}

// Send queues payload without blocking.
func (s *subscriber) Send(payload []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("watcher %s is already closed", s.id)
	}
	select {
	case <-s.quit:
		return fmt.Errorf("watcher %s is closing", s.id)
	case s.outgoing <- payload:
		return nil
	default:
		return fmt.Errorf("watcher %s send channel full, dropping snapshot", s.id)
	}
}

// StartPumps blocks until the connection is closed.
func (s *subscriber) StartPumps() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writePump()
	}()
	go func() {
		defer wg.Done()
		s.readPump()
	}()
	wg.Wait()
}

func (s *subscriber) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.quit)
		s.conn.Close()
	})
}

// readPump discards anything the watcher sends; it exists to process pongs
// and to notice the peer going away.
func (s *subscriber) readPump() {
	defer s.Close()
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WARN: [MONITOR] Watcher %s read error: %v", s.id, err)
			}
			return
		}
	}
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()
	for {
		select {
		case <-s.quit:
			return
		case payload := <-s.outgoing:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("ERROR: [MONITOR] Failed to write to watcher %s: %v", s.id, err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
