// Package live pushes committed RSVPs to websocket subscribers.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/pkg/logger"
	"github.com/okian/rsvp/pkg/metrics"
)

// EventInsert is the only event type currently emitted.
const EventInsert = "insert"

const (
	defaultBuffer       = 16
	defaultWriteWait    = 10 * time.Second
	defaultPingInterval = 30 * time.Second
	maxInboundBytes     = 512
)

// Event is the JSON frame sent to subscribers.
type Event struct {
	Type  string      `json:"type"`
	Guest model.Guest `json:"guest"`
}

// Publisher accepts committed guests for fan-out.
type Publisher interface {
	Publish(ctx context.Context, g model.Guest)
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub fans frames out to the websocket subscribers connected to this process.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool

	buffer       int
	writeWait    time.Duration
	pingInterval time.Duration
	upgrader     websocket.Upgrader
	logger       logger.Logger
}

// NewHub creates a hub. Use WithOrigins to restrict browser origins.
func NewHub(log logger.Logger, opts ...Option) *Hub {
	if log == nil {
		log = logger.Get()
	}
	h := &Hub{
		subs:         make(map[*subscriber]struct{}),
		buffer:       defaultBuffer,
		writeWait:    defaultWriteWait,
		pingInterval: defaultPingInterval,
		logger:       log.Named("live"),
	}
	h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish encodes g once and queues it for every subscriber.
func (h *Hub) Publish(ctx context.Context, g model.Guest) { //nolint:gocritic // hugeParam: guest is copied once
	frame, err := Encode(g)
	if err != nil {
		h.logger.Error(ctx, "encode live event", logger.Error(err))
		return
	}
	h.Broadcast(frame)
}

// Broadcast queues an encoded frame. Subscribers whose buffer is full are
// disconnected instead of blocking the publisher.
func (h *Hub) Broadcast(frame []byte) {
	var slow []*subscriber

	h.mu.RLock()
	for s := range h.subs {
		select {
		case s.send <- frame:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		metrics.RecordLiveDropped()
		h.remove(s)
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	s := &subscriber{conn: conn, send: make(chan []byte, h.buffer)}
	if !h.add(s) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(h.writeWait))
		_ = conn.Close()
		return
	}

	go h.writeLoop(s)
	h.readLoop(s)
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for s := range subs {
		s.close()
	}
	metrics.UpdateLiveSubscribers(0)
}

func (h *Hub) add(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subs[s] = struct{}{}
	metrics.UpdateLiveSubscribers(len(h.subs))
	return true
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		metrics.UpdateLiveSubscribers(len(h.subs))
	}
	h.mu.Unlock()
	s.close()
}

// readLoop discards client frames and handles pongs. It returns when the
// connection fails.
func (h *Hub) readLoop(s *subscriber) {
	defer h.remove(s)

	s.conn.SetReadLimit(maxInboundBytes)
	pongWait := h.pingInterval * 2
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop owns all writes to the connection.
func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Encode renders the insert frame for g.
func Encode(g model.Guest) ([]byte, error) { //nolint:gocritic // hugeParam: guest is copied once
	return json.Marshal(Event{Type: EventInsert, Guest: g})
}

var _ Publisher = (*Hub)(nil)
