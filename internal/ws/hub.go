package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crashpost/crashpost/internal/api"
	"github.com/crashpost/crashpost/internal/store"
)

const (
	writeTimeout = 10 * time.Second

	// pongWait is how long a silent connection is kept before it is dropped.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	sendBufSize = 16

	// recentRecords is how many delivery records each message carries.
	recentRecords = 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to subscribers.
type Message struct {
	Event string             `json:"event"`
	Data  api.StatusResponse `json:"data"`
}

// Hub fans status messages out to connected subscribers.
type Hub struct {
	reporter api.Reporter
	store    *store.Store
	interval time.Duration

	mu      sync.RWMutex
	clients map[*subscriber]struct{}
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a Hub that reports r and st every interval.
func New(r api.Reporter, st *store.Store, interval time.Duration) *Hub {
	return &Hub{
		reporter: r,
		store:    st,
		interval: interval,
		clients:  make(map[*subscriber]struct{}),
	}
}

// Run broadcasts every interval and blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.broadcast()
		}
	}
}

// ServeHTTP upgrades the connection and serves one subscriber until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s := &subscriber{conn: conn, send: make(chan []byte, sendBufSize)}
	// Queued before register: nothing else can close s.send yet.
	if data, err := h.encode(); err == nil {
		s.send <- data
	}
	h.register(s)
	defer h.unregister(s)

	go s.writePump()
	s.readPump()
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(s *subscriber) {
	h.mu.Lock()
	h.clients[s] = struct{}{}
	h.mu.Unlock()
	slog.Debug("ws: subscriber connected", "remote", s.conn.RemoteAddr().String())
}

func (h *Hub) unregister(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.clients[s]; ok {
		delete(h.clients, s)
		close(s.send)
	}
	h.mu.Unlock()
}

// broadcast sends under the read lock; unregister and closeAll close channels
// under the write lock, so a send never meets a closed channel.
func (h *Hub) broadcast() {
	data, err := h.encode()
	if err != nil {
		slog.Warn("ws: encode status", "error", err)
		return
	}

	var slow []*subscriber
	h.mu.RLock()
	for s := range h.clients {
		select {
		case s.send <- data:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		slog.Debug("ws: dropping slow subscriber", "remote", s.conn.RemoteAddr().String())
		h.unregister(s)
	}
}

func (h *Hub) encode() ([]byte, error) {
	return json.Marshal(Message{
		Event: "status",
		Data:  api.BuildStatus(h.reporter, h.store, recentRecords),
	})
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.clients {
		close(s.send)
		delete(h.clients, s)
	}
}

// writePump forwards queued messages and sends pings. One per subscriber.
func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes control frames until the connection closes.
func (s *subscriber) readPump() {
	defer s.conn.Close()
	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
