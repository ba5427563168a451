package model

import "time"

// Reservation statuses.  A reservation is created TEMPORARY and flips to
// CONFIRMED exactly once; a CONFIRMED reservation is immutable.  Expired
// TEMPORARY rows are not auto-deleted — only their seat holds are freed —
// so stale rows remain visible until explicitly removed.
const (
	ReservationTemporary = "TEMPORARY"
	ReservationConfirmed = "CONFIRMED"
)

// Reservation groups a quantity of capacity — optionally pinned to specific
// seats — for one user in one zone of an event.
//
// Fields:
//
//	ID        – generated UUID.
//	EventID   – event in the catalog store.
//	ZoneID    – zone within the event.
//	UserID    – requester; only this user may confirm.
//	Quantity  – number of capacity units reserved.
//	Seats     – specific seat numbers, empty for capacity-only reservations.
//	Status    – TEMPORARY or CONFIRMED.
//	ExpiresAt – end of the hold window (creation + 10 minutes).
//	Email     – requester's contact address, populated at confirmation time.
type Reservation struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	ZoneID    string    `json:"zone_id"`
	UserID    string    `json:"user_id"`
	Quantity  int       `json:"quantity"`
	Seats     []int     `json:"seats,omitempty"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
