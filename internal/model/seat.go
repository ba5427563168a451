package model

import "time"

// Seat states.  A seat is created AVAILABLE, moves to HELD while a user
// completes payment, and ends SOLD once the reservation is confirmed.
// Expired holds fall back to AVAILABLE.
const (
	SeatAvailable = "AVAILABLE"
	SeatHeld      = "HELD"
	SeatSold      = "SOLD"
)

// Seat describes one seat in a zone.  Seats are uniquely identified by
// (zone_id, seat_number) and are materialized lazily up to the zone's
// capacity the first time the zone is queried.  They are never deleted,
// only state-transitioned.
//
// Invariants: state=HELD implies HolderID and HoldExpiry are set;
// state=SOLD implies ReservationID is set and HoldExpiry is nil.
type Seat struct {
	ZoneID        string     `json:"zone_id"`
	Number        int        `json:"seat_number"`
	State         string     `json:"state"`
	HolderID      *string    `json:"holder_id,omitempty"`
	ReservationID *string    `json:"reservation_id,omitempty"`
	HoldExpiry    *time.Time `json:"hold_expiry,omitempty"`
}

// Available reports whether the seat can be claimed by anyone.
func (s *Seat) Available() bool { return s.State == SeatAvailable }

// HeldBy reports whether the seat is currently held by the given user.
func (s *Seat) HeldBy(userID string) bool {
	return s.State == SeatHeld && s.HolderID != nil && *s.HolderID == userID
}

// ClaimableBy reports whether the given user may claim the seat: it is
// either free or already held by the same user (re-claiming resets the TTL
// so client retries stay idempotent).
func (s *Seat) ClaimableBy(userID string) bool {
	return s.Available() || s.HeldBy(userID)
}
