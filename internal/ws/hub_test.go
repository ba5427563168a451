package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jperezm/concert-reservation/internal/model"
)

const testSecret = "hub-test-secret"

func signToken(t *testing.T, secret, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func newHubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.HandleConn(ws)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	return ws
}

func subscribe(t *testing.T, ws *websocket.Conn, token, zoneID, userID string) map[string]string {
	t.Helper()
	require.NoError(t, ws.WriteJSON(map[string]string{
		"type":    MsgSubscribeZone,
		"token":   token,
		"zone_id": zoneID,
		"user_id": userID,
	}))
	var reply map[string]string
	require.NoError(t, ws.ReadJSON(&reply))
	return reply
}

func TestHub_SubscribeAndBroadcast(t *testing.T) {
	hub := NewHub(testSecret)
	srv := newHubServer(t, hub)
	token := signToken(t, testSecret, "user-1")

	ws := dial(t, srv)
	reply := subscribe(t, ws, token, "zone-1", "user-1")
	assert.Equal(t, MsgSubscriptionConfirmed, reply["type"])
	assert.Equal(t, "zone-1", reply["zone_id"])

	hub.Broadcast("zone-1", Delta{
		Seats:    []int{14, 15},
		NewState: model.SeatHeld,
		UserID:   "user-1",
	})

	var delta Delta
	require.NoError(t, ws.ReadJSON(&delta))
	assert.Equal(t, MsgSeatStateChanged, delta.Type)
	assert.Equal(t, "zone-1", delta.ZoneID)
	assert.Equal(t, []int{14, 15}, delta.Seats)
	assert.Equal(t, model.SeatHeld, delta.NewState)
	assert.NotEmpty(t, delta.Timestamp)
}

func TestHub_BroadcastScopedToZone(t *testing.T) {
	hub := NewHub(testSecret)
	srv := newHubServer(t, hub)

	wsA := dial(t, srv)
	subscribe(t, wsA, signToken(t, testSecret, "user-a"), "zone-a", "user-a")
	wsB := dial(t, srv)
	subscribe(t, wsB, signToken(t, testSecret, "user-b"), "zone-b", "user-b")

	hub.Broadcast("zone-a", Delta{Seats: []int{1}, NewState: model.SeatSold})

	var delta Delta
	require.NoError(t, wsA.ReadJSON(&delta))
	assert.Equal(t, "zone-a", delta.ZoneID)

	// zone-b's subscriber must see nothing
	_ = wsB.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var stray Delta
	assert.Error(t, wsB.ReadJSON(&stray))
}

func TestHub_RejectsInvalidToken(t *testing.T) {
	hub := NewHub(testSecret)
	srv := newHubServer(t, hub)

	ws := dial(t, srv)
	reply := subscribe(t, ws, signToken(t, "wrong-secret", "user-1"), "zone-1", "user-1")
	assert.Equal(t, "invalid token", reply["error"])

	reply = subscribe(t, ws, "", "zone-1", "user-1")
	assert.Equal(t, "invalid token", reply["error"])
}

func TestHub_RequiresZoneAndUser(t *testing.T) {
	hub := NewHub(testSecret)
	srv := newHubServer(t, hub)

	ws := dial(t, srv)
	reply := subscribe(t, ws, signToken(t, testSecret, "user-1"), "", "user-1")
	assert.Contains(t, reply["error"], "required")
}

func TestHub_ResubscribeMovesZones(t *testing.T) {
	hub := NewHub(testSecret)
	srv := newHubServer(t, hub)
	token := signToken(t, testSecret, "user-1")

	ws := dial(t, srv)
	subscribe(t, ws, token, "zone-1", "user-1")
	subscribe(t, ws, token, "zone-2", "user-1")

	hub.Broadcast("zone-2", Delta{Seats: []int{3}, NewState: model.SeatAvailable})
	var delta Delta
	require.NoError(t, ws.ReadJSON(&delta))
	assert.Equal(t, "zone-2", delta.ZoneID)

	// the old zone no longer reaches this connection
	hub.Broadcast("zone-1", Delta{Seats: []int{4}, NewState: model.SeatAvailable})
	_ = ws.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var stray Delta
	assert.Error(t, ws.ReadJSON(&stray))
}
