package model

import "time"

// Event mirrors an event row in the catalog store.  Read-only from this
// system's point of view; the notifier uses Name/Venue/StartsAt to render
// human-readable delivery payloads.
type Event struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Venue    string     `json:"venue"`
	StartsAt *time.Time `json:"starts_at,omitempty"`
}

// Zone mirrors a zone capacity record in the catalog store.  Capacity is
// the total number of seats; Remaining is decremented exclusively by the
// reservation confirm path and read (never written) at hold time.
type Zone struct {
	ID        string `json:"id"`
	EventID   string `json:"event_id"`
	Name      string `json:"name"`
	Capacity  int    `json:"capacity"`
	Remaining int    `json:"remaining"`
}
