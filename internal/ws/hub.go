// Package ws implements the real-time seat-state broadcaster.  Clients
// open a WebSocket, authenticate with a bearer token and subscribe to a
// zone; every seat mutation in that zone is then pushed to them as a delta
// message.  Delivery is fire-and-forget: there is no acknowledgment and no
// retry, a missed update is corrected by the client's next full-state
// fetch.  Broadcast failures never propagate to the seat-mutation path.
package ws

import (
	"log"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/jperezm/concert-reservation/internal/monitoring"
)

// Message types on the realtime channel.
const (
	MsgSubscribeZone         = "subscribe_zone"
	MsgSubscriptionConfirmed = "subscription_confirmed"
	MsgSeatStateChanged      = "seat_state_changed"
)

// Delta describes one seat-state change pushed to zone subscribers.
type Delta struct {
	Type      string `json:"type"`
	ZoneID    string `json:"zone_id"`
	Seats     []int  `json:"seat_numbers"`
	NewState  string `json:"new_state"`
	UserID    string `json:"user_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// subscribeRequest is the only message clients send.
type subscribeRequest struct {
	Type   string `json:"type"`
	Token  string `json:"token"`
	ZoneID string `json:"zone_id"`
	UserID string `json:"user_id"`
}

const writeWait = 5 * time.Second

// conn wraps a websocket connection with the write lock gorilla requires
// for concurrent writers, plus the subscription it belongs to.
type conn struct {
	ws     *websocket.Conn
	mu     sync.Mutex
	zoneID string
	userID string
}

func (c *conn) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

// Hub maintains the zone-to-connections and user-to-connection maps.  It is
// in-process state sized for a single-instance deployment; scaling
// horizontally would require fanning deltas out through the message bus
// instead.
type Hub struct {
	secret string

	mu     sync.RWMutex
	byZone map[string]map[*conn]struct{}
	byUser map[string]*conn
}

// NewHub returns a Hub that validates subscription tokens with secret.
func NewHub(secret string) *Hub {
	return &Hub{
		secret: secret,
		byZone: make(map[string]map[*conn]struct{}),
		byUser: make(map[string]*conn),
	}
}

// HandleConn serves one websocket connection until it closes.  The client
// must send a subscribe_zone message carrying a valid bearer token before
// it receives anything.
func (h *Hub) HandleConn(ws *websocket.Conn) {
	c := &conn{ws: ws}
	defer func() {
		h.remove(c)
		_ = ws.Close()
	}()

	for {
		var req subscribeRequest
		if err := ws.ReadJSON(&req); err != nil {
			return
		}
		if req.Type != MsgSubscribeZone {
			_ = c.send(map[string]string{"error": "unknown message type"})
			continue
		}
		if !h.verifyToken(req.Token) {
			_ = c.send(map[string]string{"error": "invalid token"})
			continue
		}
		if req.ZoneID == "" || req.UserID == "" {
			_ = c.send(map[string]string{"error": "zone_id and user_id are required"})
			continue
		}
		h.subscribe(c, req.ZoneID, req.UserID)
		_ = c.send(map[string]string{
			"type":    MsgSubscriptionConfirmed,
			"zone_id": req.ZoneID,
			"user_id": req.UserID,
		})
	}
}

// subscribe registers the connection under its zone and user.  A user's
// previous connection mapping is overwritten (last subscription wins); the
// old connection keeps receiving zone broadcasts until it closes.
func (h *Hub) subscribe(c *conn, zoneID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.zoneID != "" {
		// re-subscribing moves the connection between zones
		if set, ok := h.byZone[c.zoneID]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.byZone, c.zoneID)
			}
		}
	} else {
		monitoring.BroadcastSubscribers.Inc()
	}
	c.zoneID = zoneID
	c.userID = userID
	if h.byZone[zoneID] == nil {
		h.byZone[zoneID] = make(map[*conn]struct{})
	}
	h.byZone[zoneID][c] = struct{}{}
	h.byUser[userID] = c
	log.Printf("ws: user %s subscribed to zone %s", userID, zoneID)
}

// remove drops the connection from both maps on teardown.
func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.zoneID == "" {
		return
	}
	if set, ok := h.byZone[c.zoneID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byZone, c.zoneID)
		}
	}
	if h.byUser[c.userID] == c {
		delete(h.byUser, c.userID)
	}
	monitoring.BroadcastSubscribers.Dec()
}

// Broadcast pushes a delta to every connection subscribed to the zone.
// Write failures are logged and otherwise ignored; the mutation that
// triggered the delta has already committed.
func (h *Hub) Broadcast(zoneID string, d Delta) {
	d.Type = MsgSeatStateChanged
	d.ZoneID = zoneID
	if d.Timestamp == "" {
		d.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	h.mu.RLock()
	conns := make([]*conn, 0, len(h.byZone[zoneID]))
	for c := range h.byZone[zoneID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	for _, c := range conns {
		if err := c.send(d); err != nil {
			log.Printf("ws: broadcast to user %s failed: %v", c.userID, err)
		}
	}
}

// verifyToken checks an HS256 bearer token against the hub secret.
func (h *Hub) verifyToken(token string) bool {
	if token == "" {
		return false
	}
	tok, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(h.secret), nil
	})
	return err == nil && tok.Valid
}
