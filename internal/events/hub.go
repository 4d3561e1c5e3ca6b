package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"live-auction/utils"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origin policy is enforced by the CORS middleware in front of the route
	CheckOrigin: func(r *http.Request) bool { return true },
}

type subscriber struct {
	auctionID string
	conn      *websocket.Conn
	send      chan []byte
	once      sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub keeps websocket subscribers grouped by auction and pushes events to them
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

// NewHub returns an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Publish queues event for every subscriber of its auction.
// A subscriber whose buffer is full is dropped rather than blocking the caller.
func (h *Hub) Publish(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	h.mu.RLock()
	var slow []*subscriber
	for s := range h.subs[event.AuctionID] {
		select {
		case s.send <- payload:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		utils.Warn("dropping slow websocket subscriber", map[string]any{"auction_id": s.auctionID})
		h.remove(s)
	}
	return nil
}

// Subscribers reports how many connections follow auctionID
func (h *Hub) Subscribers(auctionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[auctionID])
}

// Serve upgrades the request and streams events for auctionID until the peer goes away
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, auctionID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade websocket: %w", err)
	}

	s := &subscriber{auctionID: auctionID, conn: conn, send: make(chan []byte, sendBuffer)}
	h.add(s)
	utils.Debug("websocket subscriber joined", map[string]any{"auction_id": auctionID})

	go h.writePump(s)
	h.readPump(s)
	return nil
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[s.auctionID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[s.auctionID] = set
	}
	set[s] = struct{}{}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[s.auctionID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.auctionID)
		}
	}
	h.mu.Unlock()
	s.close()
}

// readPump only drains control frames; subscribers never send data
func (h *Hub) readPump(s *subscriber) {
	defer func() {
		h.remove(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.Warn("websocket read failed", map[string]any{"auction_id": s.auctionID, "error": err.Error()})
			}
			return
		}
	}
}

func (h *Hub) writePump(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
