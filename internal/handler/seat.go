package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jperezm/concert-reservation/internal/service"
)

// SeatHandler exposes zone seat state and the hold/release operations.
// Authentication and rate limiting are applied by middleware; handlers
// only bind, delegate and translate errors.
type SeatHandler struct {
	Reservations *service.ReservationService
}

// NewSeatHandler constructs a SeatHandler.
func NewSeatHandler(svc *service.ReservationService) *SeatHandler {
	if svc == nil {
		panic("nil service passed to NewSeatHandler")
	}
	return &SeatHandler{Reservations: svc}
}

// GetZoneState handles GET /v1/zones/:id/seats.  Seat rows are
// materialized lazily on first query, so a brand-new zone answers with a
// full map of AVAILABLE seats.
func (h *SeatHandler) GetZoneState(c echo.Context) error {
	zoneID := c.Param("id")
	if zoneID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "zone id is required"})
	}
	seats, err := h.Reservations.SeatState(c.Request().Context(), zoneID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"zone_id": zoneID, "seats": seats})
}

// HoldSeats handles POST /v1/zones/:id/hold.  The body carries the seat
// numbers to claim; the holder is the authenticated user.  Conflicting
// claims return 409 naming every contested seat.
func (h *SeatHandler) HoldSeats(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	zoneID := c.Param("id")
	var body struct {
		SeatNumbers []int `json:"seat_numbers"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if len(body.SeatNumbers) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat_numbers is required"})
	}
	result, err := h.Reservations.HoldSeats(c.Request().Context(), zoneID, body.SeatNumbers, userID)
	if err != nil {
		return writeError(c, err)
	}
	if !result.OK {
		return c.JSON(http.StatusConflict, result)
	}
	return c.JSON(http.StatusCreated, result)
}

// ReleaseSeats handles POST /v1/zones/:id/release.  Releasing seats the
// user does not hold is a silent no-op, so retries are always safe.
func (h *SeatHandler) ReleaseSeats(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	zoneID := c.Param("id")
	var body struct {
		SeatNumbers []int `json:"seat_numbers"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	released, err := h.Reservations.ReleaseSeats(c.Request().Context(), zoneID, body.SeatNumbers, userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"released": released})
}
