// Package router defines how HTTP routes are registered for the
// reservations service.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jperezm/concert-reservation/internal/config"
	"github.com/jperezm/concert-reservation/internal/handler"
	"github.com/jperezm/concert-reservation/internal/middleware"
	"github.com/jperezm/concert-reservation/internal/ws"
)

// Deps bundles everything the route table needs.
type Deps struct {
	Seats        *handler.SeatHandler
	Reservations *handler.ReservationHandler
	Hub          *ws.Hub
	JWTSecret    string
	RateLimit    config.RateLimitConfig
	Redis        *redis.Client // may be nil; rate limiting is then disabled
}

// Register wires all routes onto the provided Echo instance.  The realtime
// endpoint authenticates inside the subscription protocol rather than via
// HTTP middleware, so it stays outside the protected group.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/ws/seats", handler.SeatStream(d.Hub))

	v1 := e.Group("/v1")
	v1.Use(middleware.JWTAuth(d.JWTSecret))

	// Zone seat state and the contended hold path.  The token bucket sits
	// only on the mutating endpoints so browsing stays cheap.
	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis)
	v1.GET("/zones/:id/seats", d.Seats.GetZoneState)
	v1.POST("/zones/:id/hold", d.Seats.HoldSeats, limit)
	v1.POST("/zones/:id/release", d.Seats.ReleaseSeats)

	v1.POST("/reservations", d.Reservations.Create, limit)
	v1.GET("/reservations/:id", d.Reservations.Get)
	v1.POST("/reservations/:id/confirm", d.Reservations.Confirm)
	v1.DELETE("/reservations/:id", d.Reservations.Delete)
}
