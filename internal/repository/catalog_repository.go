package repository

import (
	"context"
	"database/sql"

	"github.com/jperezm/concert-reservation/internal/database"
	"github.com/jperezm/concert-reservation/internal/model"
)

// CatalogRepo reads events and zone capacity from the event-catalog store —
// a different logical database than the reservation store.  The only write
// this system ever performs against the catalog is the capacity decrement
// on the reservation confirm path.
type CatalogRepo struct {
	db *database.Client
}

// NewCatalogRepo returns a CatalogRepo bound to the catalog store.
func NewCatalogRepo(db *database.Client) *CatalogRepo { return &CatalogRepo{db: db} }

// GetEvent loads one event.  Returns ErrNotFound when the event does not
// exist.
func (r *CatalogRepo) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	const q = `SELECT id, name, venue, starts_at FROM events WHERE id = ?`
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
	var ev model.Event
	var startsAt sql.NullTime
	if err := rows.Scan(&ev.ID, &ev.Name, &ev.Venue, &startsAt); err != nil {
		return nil, err
	}
	if startsAt.Valid {
		t := startsAt.Time
		ev.StartsAt = &t
	}
	return &ev, nil
}

// GetZone loads one zone capacity record.  Returns ErrNotFound when the
// zone does not exist.
func (r *CatalogRepo) GetZone(ctx context.Context, id string) (*model.Zone, error) {
	const q = `SELECT id, event_id, name, capacity, remaining FROM zones WHERE id = ?`
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
	var z model.Zone
	if err := rows.Scan(&z.ID, &z.EventID, &z.Name, &z.Capacity, &z.Remaining); err != nil {
		return nil, err
	}
	return &z, nil
}

// DecrementCapacity atomically consumes qty units of a zone's remaining
// capacity.  The update is conditional on sufficient remaining capacity so
// concurrent confirmations cannot oversell: when the condition fails no row
// is touched and ErrCapacityExceeded is returned.
func (r *CatalogRepo) DecrementCapacity(ctx context.Context, zoneID string, qty int) error {
	const q = `UPDATE zones SET remaining = remaining - ? WHERE id = ? AND remaining >= ?`
	result, err := r.db.ExecContext(ctx, q, qty, zoneID, qty)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCapacityExceeded
	}
	return nil
}
