package model

import "time"

// Ticket is the artifact issued after a reservation is confirmed.  Exactly
// one ticket exists per reservation (the tickets table carries a unique key
// on reservation_id so redelivered confirmation events cannot mint a
// second one).  Artifact is a scannable code embedding the ticket payload.
type Ticket struct {
	ID            string    `json:"id"`
	ReservationID string    `json:"reservation_id"`
	EventID       string    `json:"event_id"`
	ZoneID        string    `json:"zone_id"`
	UserID        string    `json:"user_id"`
	Quantity      int       `json:"quantity"`
	Seats         []int     `json:"seats,omitempty"`
	Artifact      string    `json:"artifact"`
	IssuedAt      time.Time `json:"issued_at"`
}
