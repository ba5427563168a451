package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jperezm/concert-reservation/internal/service"
)

// ReservationHandler exposes the reservation lifecycle endpoints.
type ReservationHandler struct {
	Reservations *service.ReservationService
}

// NewReservationHandler constructs a ReservationHandler.
func NewReservationHandler(svc *service.ReservationService) *ReservationHandler {
	if svc == nil {
		panic("nil service passed to NewReservationHandler")
	}
	return &ReservationHandler{Reservations: svc}
}

// Create handles POST /v1/reservations.  The body names the event and
// zone plus either a quantity or specific seat numbers; the requester is
// the authenticated user.
func (h *ReservationHandler) Create(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		EventID     string `json:"event_id"`
		ZoneID      string `json:"zone_id"`
		Quantity    int    `json:"quantity"`
		SeatNumbers []int  `json:"seat_numbers"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	res, err := h.Reservations.Create(c.Request().Context(), service.CreateReservationInput{
		EventID:  body.EventID,
		ZoneID:   body.ZoneID,
		UserID:   userID,
		Quantity: body.Quantity,
		Seats:    body.SeatNumbers,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Confirm handles POST /v1/reservations/:id/confirm.  Only the user who
// created the reservation may confirm it.
func (h *ReservationHandler) Confirm(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	res, err := h.Reservations.Confirm(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	res, err := h.Reservations.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Delete handles DELETE /v1/reservations/:id.  Seat holds tied to the
// reservation are not released here; they drain through the expiry sweep.
func (h *ReservationHandler) Delete(c echo.Context) error {
	if err := h.Reservations.Cancel(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
