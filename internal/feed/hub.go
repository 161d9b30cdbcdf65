// Package feed streams generation progress to websocket subscribers.
package feed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lawnchairsociety/levelforge/internal/config"
	"github.com/lawnchairsociety/levelforge/internal/logger"
	"github.com/lawnchairsociety/levelforge/internal/wfc"
	"github.com/lawnchairsociety/levelforge/internal/worldgen"
)

const (
	writeWait   = 10 * time.Second
	sendBacklog = 256
)

// Event types.
const (
	EventRunStarted  = "run_started"
	EventTick        = "tick"
	EventRunFinished = "run_finished"
)

// Event is one message on the feed.
type Event struct {
	Type    string            `json:"type"`
	Seed    uint32            `json:"seed"`
	Attempt int               `json:"attempt,omitempty"`
	Tick    *wfc.TickReport   `json:"tick,omitempty"`
	Summary *worldgen.Summary `json:"summary,omitempty"`
	Error   string            `json:"error,omitempty"`
}

type subscriber struct {
	conn *websocket.Conn
	ip   string
	send chan []byte
	done chan struct{}
	once sync.Once
}

// Hub fans generator events out to websocket subscribers. It implements
// worldgen.Observer and http.Handler.
type Hub struct {
	cfg      config.ServeConfig
	limiter  *Limiter
	upgrader websocket.Upgrader

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

// NewHub creates a hub using the serve settings for origin checks and limits.
func NewHub(cfg config.ServeConfig) *Hub {
	h := &Hub{
		cfg:     cfg,
		limiter: NewLimiter(cfg.MaxSubscribersPerIP, cfg.MaxSubscribers),
		subs:    make(map[*subscriber]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			allowed := h.cfg.WebSocket.IsOriginAllowed(origin, r.Host)
			if !allowed {
				logger.Warning("Feed subscription rejected - origin not allowed",
					"origin", origin,
					"host", r.Host,
					"remote_addr", r.RemoteAddr)
			}
			return allowed
		},
	}
	return h
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "feed closed", http.StatusServiceUnavailable)
		return
	}

	ip := clientIP(r)
	if !h.limiter.TryAcquire(ip) {
		logger.Warning("Feed subscription rejected - limit exceeded",
			"remote_addr", r.RemoteAddr,
			"client_ip", ip)
		http.Error(w, "Too many subscribers. Please try again later.", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logger.Debug("Feed upgrade failed", "error", err)
		h.limiter.Release(ip)
		return
	}

	sub := &subscriber{
		conn: conn,
		ip:   ip,
		send: make(chan []byte, sendBacklog),
		done: make(chan struct{}),
	}
	if !h.add(sub) {
		conn.Close()
		h.limiter.Release(ip)
		return
	}
	logger.Debug("Feed subscriber joined", "client_ip", ip)

	go h.writePump(sub)
	h.readPump(sub)
}

func (h *Hub) add(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subs[sub] = struct{}{}
	return true
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()

	sub.once.Do(func() {
		close(sub.done)
		sub.conn.Close()
		h.limiter.Release(sub.ip)
	})
}

// readPump discards inbound messages and notices disconnects.
func (h *Hub) readPump(sub *subscriber) {
	defer h.remove(sub)
	if h.cfg.WebSocket.MaxMessageSize > 0 {
		sub.conn.SetReadLimit(h.cfg.WebSocket.MaxMessageSize)
	}
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(sub *subscriber) {
	defer h.remove(sub)
	for {
		select {
		case msg := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-sub.done:
			return
		}
	}
}

// Broadcast sends ev to every subscriber. Subscribers whose backlog is full
// are disconnected.
func (h *Hub) Broadcast(ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		logger.Error("Failed to encode feed event", "type", ev.Type, "error", err)
		return
	}

	var slow []*subscriber
	h.mu.Lock()
	for sub := range h.subs {
		select {
		case sub.send <- msg:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range slow {
		logger.Warning("Dropping slow feed subscriber", "client_ip", sub.ip)
		h.remove(sub)
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Limiter returns the hub's subscriber limiter.
func (h *Hub) Limiter() *Limiter {
	return h.limiter
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		h.remove(sub)
	}
}

// RunStarted implements worldgen.Observer.
func (h *Hub) RunStarted(seed uint32, attempt int) {
	h.Broadcast(Event{Type: EventRunStarted, Seed: seed, Attempt: attempt})
}

// TickCompleted implements worldgen.Observer.
func (h *Hub) TickCompleted(seed uint32, report wfc.TickReport) {
	h.Broadcast(Event{Type: EventTick, Seed: seed, Tick: &report})
}

// RunFinished implements worldgen.Observer.
func (h *Hub) RunFinished(summary worldgen.Summary, err error) {
	ev := Event{Type: EventRunFinished, Seed: summary.Seed, Summary: &summary}
	if err != nil {
		ev.Error = err.Error()
	}
	h.Broadcast(ev)
}

var _ worldgen.Observer = (*Hub)(nil)
