package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jperezm/concert-reservation/internal/database"
	"github.com/jperezm/concert-reservation/internal/model"
)

// TicketRepo persists issued tickets.  The tickets table carries a unique
// key on reservation_id, which is what makes the ticket issuer safe under
// at-least-once delivery: inserting a ticket for an already-ticketed
// reservation affects zero rows instead of minting a duplicate.
type TicketRepo struct {
	db *database.Client
}

// NewTicketRepo returns a TicketRepo bound to the tickets store.
func NewTicketRepo(db *database.Client) *TicketRepo { return &TicketRepo{db: db} }

// Insert stores a ticket.  It returns created=false when a ticket for the
// same reservation already exists (INSERT IGNORE against the unique
// reservation_id key), which callers must treat as a redelivered message,
// not an error.
func (r *TicketRepo) Insert(ctx context.Context, t *model.Ticket) (created bool, err error) {
	var seats any
	if len(t.Seats) > 0 {
		b, err := json.Marshal(t.Seats)
		if err != nil {
			return false, fmt.Errorf("encode seats: %w", err)
		}
		seats = string(b)
	}
	const q = `INSERT IGNORE INTO tickets (id, reservation_id, event_id, zone_id, user_id, quantity, seats, artifact, issued_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, q,
		t.ID, t.ReservationID, t.EventID, t.ZoneID, t.UserID, t.Quantity, seats, t.Artifact, t.IssuedAt.UTC())
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetByReservation loads the ticket issued for a reservation.  Returns
// ErrNotFound when none exists.
func (r *TicketRepo) GetByReservation(ctx context.Context, reservationID string) (*model.Ticket, error) {
	const q = `SELECT id, reservation_id, event_id, zone_id, user_id, quantity, seats, artifact, issued_at
	           FROM tickets WHERE reservation_id = ?`
	rows, err := r.db.QueryContext(ctx, q, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	var t model.Ticket
	var seats sql.NullString
	if err := rows.Scan(&t.ID, &t.ReservationID, &t.EventID, &t.ZoneID, &t.UserID,
		&t.Quantity, &seats, &t.Artifact, &t.IssuedAt); err != nil {
		return nil, err
	}
	if seats.Valid && seats.String != "" {
		if err := json.Unmarshal([]byte(seats.String), &t.Seats); err != nil {
			return nil, fmt.Errorf("decode seats: %w", err)
		}
	}
	return &t, nil
}
