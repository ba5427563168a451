// Package repository defines error types that are reused across multiple
// stores and the service layer.  These sentinel values allow handlers to
// distinguish failure scenarios: ErrNotAuthorized maps to HTTP 403,
// ErrCapacityExceeded and SeatsUnavailableError to 409, ErrNotFound to 404
// and ErrInvalidInput to 400.  Transport-level database failures surface as
// database.ErrUnavailable and map to 503.
package repository

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a referenced record (event, zone, user,
// reservation) does not exist.
var ErrNotFound = errors.New("not found")

// ErrNotAuthorized is returned when a reservation confirm is attempted by a
// user other than the one who created it.
var ErrNotAuthorized = errors.New("not authorized")

// ErrCapacityExceeded is returned when a zone no longer has enough
// remaining capacity for the requested quantity.  Business-rule violations
// like this are terminal for the request and never retried.
var ErrCapacityExceeded = errors.New("capacity exceeded")

// ErrInvalidInput is returned for malformed or self-contradictory requests.
var ErrInvalidInput = errors.New("invalid input")

// SeatsUnavailableError reports a conflicting seat claim.  It names every
// seat that failed the availability check so clients can immediately offer
// alternatives.
type SeatsUnavailableError struct {
	Seats []int
}

func (e *SeatsUnavailableError) Error() string {
	nums := make([]string, len(e.Seats))
	for i, n := range e.Seats {
		nums[i] = fmt.Sprint(n)
	}
	return fmt.Sprintf("seats unavailable: %s", strings.Join(nums, ", "))
}
