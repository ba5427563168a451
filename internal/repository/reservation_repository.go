package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jperezm/concert-reservation/internal/database"
	"github.com/jperezm/concert-reservation/internal/model"
)

// ReservationRepo provides access to the reservations table in the
// reservation store.  Specific seat numbers are persisted as a JSON-encoded
// list in the seats column; capacity-only reservations leave it NULL.
// All timestamps are stored in UTC.
type ReservationRepo struct {
	db *database.Client
}

// NewReservationRepo returns a ReservationRepo bound to the given store.
func NewReservationRepo(db *database.Client) *ReservationRepo { return &ReservationRepo{db: db} }

// Create inserts a new reservation row.  The caller supplies the generated
// ID, status and expiry; CreatedAt is populated by the database.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	var seats any
	if len(res.Seats) > 0 {
		b, err := json.Marshal(res.Seats)
		if err != nil {
			return fmt.Errorf("encode seats: %w", err)
		}
		seats = string(b)
	}
	const q = `INSERT INTO reservations (id, event_id, zone_id, user_id, quantity, seats, status, expires_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		res.ID, res.EventID, res.ZoneID, res.UserID, res.Quantity, seats, res.Status, res.ExpiresAt.UTC())
	return err
}

// GetByID loads one reservation.  Returns ErrNotFound when the row does not
// exist.
func (r *ReservationRepo) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	const q = `SELECT id, event_id, zone_id, user_id, quantity, seats, status, expires_at, created_at
	           FROM reservations WHERE id = ?`
	rows, err := r.db.QueryContext(ctx, q, id)
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
	var res model.Reservation
	var seats sql.NullString
	if err := rows.Scan(&res.ID, &res.EventID, &res.ZoneID, &res.UserID, &res.Quantity,
		&seats, &res.Status, &res.ExpiresAt, &res.CreatedAt); err != nil {
		return nil, err
	}
	if seats.Valid && seats.String != "" {
		if err := json.Unmarshal([]byte(seats.String), &res.Seats); err != nil {
			return nil, fmt.Errorf("decode seats: %w", err)
		}
	}
	return &res, nil
}

// MarkConfirmed flips a reservation from TEMPORARY to CONFIRMED.  The
// transition happens at most once: confirming an already-confirmed
// reservation affects zero rows and returns ErrNotFound, which the service
// layer treats as a terminal conflict.
func (r *ReservationRepo) MarkConfirmed(ctx context.Context, id string) error {
	const q = `UPDATE reservations SET status = ? WHERE id = ? AND status = ?`
	result, err := r.db.ExecContext(ctx, q, model.ReservationConfirmed, id, model.ReservationTemporary)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a reservation row.  Deleting a missing row is a no-op;
// seat holds tied to the reservation are intentionally left to the expiry
// sweep (see ReservationService.Cancel).
func (r *ReservationRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	return err
}
