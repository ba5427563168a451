package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jperezm/concert-reservation/internal/database"
	"github.com/jperezm/concert-reservation/internal/repository"
)

// writeError maps service and store errors onto HTTP responses.  Conflict
// responses carry structured detail (which seats, why) so clients can
// immediately offer alternatives instead of showing an opaque failure.
func writeError(c echo.Context, err error) error {
	var unavailable *repository.SeatsUnavailableError
	switch {
	case errors.As(err, &unavailable):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":     "seats unavailable",
			"conflicts": unavailable.Seats,
		})
	case errors.Is(err, repository.ErrCapacityExceeded):
		return c.JSON(http.StatusConflict, echo.Map{"error": "capacity exceeded"})
	case errors.Is(err, repository.ErrNotAuthorized):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not authorized"})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, repository.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, database.ErrUnavailable):
		// Retryable: every configured database node refused the connection.
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service unavailable, retry later"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// getUserID extracts the authenticated user injected by the JWT middleware.
func getUserID(c echo.Context) (string, bool) {
	uid, ok := c.Get("user_id").(string)
	return uid, ok && uid != ""
}
