package handler

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/jperezm/concert-reservation/internal/ws"
)

// upgrader performs the WebSocket handshake.  Cross-origin storefronts are
// allowed; the hub authenticates every subscription with a bearer token.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// SeatStream handles GET /ws/seats by upgrading the connection and handing
// it to the broadcaster hub, which serves it until it closes.
func SeatStream(hub *ws.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}
		hub.HandleConn(conn)
		return nil
	}
}
