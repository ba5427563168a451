// Package ledger owns per-seat state for a zone.  It is the single writer
// of seat rows: every transition (claim, release, confirm, expiry) goes
// through one of its methods, each of which runs inside a transaction with
// row locks so concurrent claimants can never both win the same seat.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jperezm/concert-reservation/internal/model"
	"github.com/jperezm/concert-reservation/internal/monitoring"
)

// DefaultHoldTTL is the hold window applied when callers pass a
// non-positive TTL.
const DefaultHoldTTL = 10 * time.Minute

// ClaimResult reports the outcome of a batch claim.  The batch is
// all-or-nothing: when OK is false no seat was mutated and Conflicts names
// every requested seat that failed the availability check.
type ClaimResult struct {
	OK        bool      `json:"ok"`
	Claimed   []int     `json:"held,omitempty"`
	Conflicts []int     `json:"conflicts,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// DB is the ledger's view of the reservation store.  *database.Client and
// *sql.DB both satisfy it.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Ledger performs seat state transitions against the reservation store.
type Ledger struct {
	db DB
}

// New returns a Ledger bound to the reservation store.
func New(db DB) *Ledger { return &Ledger{db: db} }

// EnsureSeats idempotently materializes seat rows 1..capacity for a zone.
// INSERT IGNORE gives insert-if-absent semantics, so concurrent callers and
// repeated calls are safe; existing rows are never touched.
func (l *Ledger) EnsureSeats(ctx context.Context, zoneID string, capacity int) error {
	if capacity <= 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT IGNORE INTO seats (zone_id, seat_number, state) VALUES `)
	args := make([]any, 0, capacity*3)
	for n := 1; n <= capacity; n++ {
		if n > 1 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?)")
		args = append(args, zoneID, n, model.SeatAvailable)
	}
	_, err := l.db.ExecContext(ctx, sb.String(), args...)
	return err
}

// ZoneState returns every seat in a zone ordered by seat number.
func (l *Ledger) ZoneState(ctx context.Context, zoneID string) ([]model.Seat, error) {
	const q = `SELECT zone_id, seat_number, state, holder_id, reservation_id, hold_expiry
	           FROM seats WHERE zone_id = ? ORDER BY seat_number`
	rows, err := l.db.QueryContext(ctx, q, zoneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var seats []model.Seat
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

// Claim attempts to hold every requested seat for holderID.  A seat passes
// the check when it is AVAILABLE or already HELD by the same holder
// (re-claiming resets the TTL so client retries stay idempotent).  The
// batch fails atomically: if any seat fails, no seat is mutated and the
// failing numbers come back as conflicts.  First successful claim wins;
// later claimants on the same seat always see a conflict.
func (l *Ledger) Claim(ctx context.Context, zoneID string, seatNumbers []int, holderID string, ttl time.Duration) (ClaimResult, error) {
	if ttl <= 0 {
		ttl = DefaultHoldTTL
	}
	seatNumbers = dedupe(seatNumbers)
	if len(seatNumbers) == 0 {
		return ClaimResult{}, fmt.Errorf("no seats requested")
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return ClaimResult{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Lock and validate every requested seat before mutating any, so a
	// partially-claimed batch is never observable, even transiently.
	q := fmt.Sprintf(`SELECT zone_id, seat_number, state, holder_id, reservation_id, hold_expiry
	                  FROM seats WHERE zone_id = ? AND seat_number IN (%s) FOR UPDATE`,
		placeholders(len(seatNumbers)))
	rows, err := tx.QueryContext(ctx, q, seatArgs(zoneID, seatNumbers)...)
	if err != nil {
		return ClaimResult{}, err
	}
	found := make(map[int]model.Seat, len(seatNumbers))
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			rows.Close()
			return ClaimResult{}, err
		}
		found[s.Number] = s
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return ClaimResult{}, err
	}
	rows.Close()

	var conflicts []int
	for _, n := range seatNumbers {
		seat, ok := found[n]
		if !ok || !seat.ClaimableBy(holderID) {
			conflicts = append(conflicts, n)
		}
	}
	if len(conflicts) > 0 {
		monitoring.SeatClaimsTotal.WithLabelValues("conflict").Inc()
		return ClaimResult{OK: false, Conflicts: conflicts}, nil
	}

	expiry := time.Now().UTC().Add(ttl)
	// The WHERE clause re-states the expected prior state; under the row
	// locks above it always matches, and a mismatch means the invariant was
	// violated elsewhere.  The row count below relies on clientFoundRows in
	// the DSN: matched rows are counted even when a same-holder re-claim
	// leaves every column value unchanged.
	uq := fmt.Sprintf(`UPDATE seats
	        SET state = ?, holder_id = ?, reservation_id = NULL, hold_expiry = ?
	        WHERE zone_id = ? AND seat_number IN (%s)
	          AND (state = ? OR (state = ? AND holder_id = ?))`,
		placeholders(len(seatNumbers)))
	args := []any{model.SeatHeld, holderID, expiry}
	args = append(args, seatArgs(zoneID, seatNumbers)...)
	args = append(args, model.SeatAvailable, model.SeatHeld, holderID)
	result, err := tx.ExecContext(ctx, uq, args...)
	if err != nil {
		return ClaimResult{}, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return ClaimResult{}, err
	}
	if int(n) != len(seatNumbers) {
		return ClaimResult{}, fmt.Errorf("claim updated %d of %d seats", n, len(seatNumbers))
	}
	if err := tx.Commit(); err != nil {
		return ClaimResult{}, err
	}
	committed = true
	monitoring.SeatClaimsTotal.WithLabelValues("held").Inc()
	return ClaimResult{OK: true, Claimed: seatNumbers, ExpiresAt: expiry}, nil
}

// Release transitions seats from HELD-by-holder back to AVAILABLE and
// returns the numbers actually released.  Seats not held by that holder are
// silently skipped, making the operation an idempotent no-op for them.
func (l *Ledger) Release(ctx context.Context, zoneID string, seatNumbers []int, holderID string) ([]int, error) {
	seatNumbers = dedupe(seatNumbers)
	if len(seatNumbers) == 0 {
		return nil, nil
	}
	cond := fmt.Sprintf(`zone_id = ? AND seat_number IN (%s) AND state = ? AND holder_id = ?`,
		placeholders(len(seatNumbers)))
	args := append(seatArgs(zoneID, seatNumbers), model.SeatHeld, holderID)
	return l.releaseWhere(ctx, zoneID, cond, args)
}

// ReleaseExpiredByHolder frees the holder's seats in a zone whose hold
// window has passed.  It backs the per-hold timer: conditioning on the
// expiry keeps a stale timer from freeing a hold whose TTL was reset by a
// re-claim.
func (l *Ledger) ReleaseExpiredByHolder(ctx context.Context, zoneID, holderID string) ([]int, error) {
	cond := `zone_id = ? AND holder_id = ? AND state = ? AND hold_expiry <= UTC_TIMESTAMP()`
	return l.releaseWhere(ctx, zoneID, cond, []any{zoneID, holderID, model.SeatHeld})
}

// releaseWhere selects the held seats matching cond under row locks, flips
// them to AVAILABLE and returns their numbers.  The UPDATE is keyed on the
// exact seats just selected, never on cond again: time-based conditions
// could match additional rows by the time the UPDATE runs, freeing seats
// that would then be missing from the returned set.
func (l *Ledger) releaseWhere(ctx context.Context, zoneID, cond string, args []any) ([]int, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, `SELECT seat_number FROM seats WHERE `+cond+` FOR UPDATE`, args...)
	if err != nil {
		return nil, err
	}
	var released []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return nil, err
		}
		released = append(released, n)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(released) == 0 {
		_ = tx.Rollback()
		committed = true
		return nil, nil
	}

	uq := fmt.Sprintf(`UPDATE seats SET state = ?, holder_id = NULL, reservation_id = NULL, hold_expiry = NULL
	                   WHERE zone_id = ? AND seat_number IN (%s)`, placeholders(len(released)))
	if _, err := tx.ExecContext(ctx, uq, append([]any{model.SeatAvailable}, seatArgs(zoneID, released)...)...); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return released, nil
}

// ReleaseExpired scans every zone for HELD seats whose expiry has passed,
// frees them and returns the affected seat numbers grouped by zone for
// downstream notification.  It is the authoritative release path: per-hold
// timers are a fast-reacting optimization, this sweep is the correctness
// backstop that survives process restarts.
func (l *Ledger) ReleaseExpired(ctx context.Context) (map[string][]int, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const sel = `SELECT zone_id, seat_number FROM seats
	             WHERE state = ? AND hold_expiry <= UTC_TIMESTAMP() FOR UPDATE`
	rows, err := tx.QueryContext(ctx, sel, model.SeatHeld)
	if err != nil {
		return nil, err
	}
	groups := make(map[string][]int)
	total := 0
	for rows.Next() {
		var zone string
		var n int
		if err := rows.Scan(&zone, &n); err != nil {
			rows.Close()
			return nil, err
		}
		groups[zone] = append(groups[zone], n)
		total++
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if total == 0 {
		_ = tx.Rollback()
		committed = true
		return groups, nil
	}

	// Free exactly the rows selected above.  Re-evaluating the expiry
	// predicate here would also catch holds that lapsed between the SELECT
	// and the UPDATE, releasing seats that never make it into groups.
	for zone, seats := range groups {
		uq := fmt.Sprintf(`UPDATE seats SET state = ?, holder_id = NULL, reservation_id = NULL, hold_expiry = NULL
		                   WHERE zone_id = ? AND seat_number IN (%s)`, placeholders(len(seats)))
		if _, err := tx.ExecContext(ctx, uq, append([]any{model.SeatAvailable}, seatArgs(zone, seats)...)...); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return groups, nil
}

// Confirm transitions seats to SOLD, clears the hold expiry and attaches
// the reservation reference.  Called by the coordinator only after the
// reservation itself is confirmed.
func (l *Ledger) Confirm(ctx context.Context, zoneID string, seatNumbers []int, reservationID string) error {
	seatNumbers = dedupe(seatNumbers)
	if len(seatNumbers) == 0 {
		return nil
	}
	q := fmt.Sprintf(`UPDATE seats SET state = ?, reservation_id = ?, hold_expiry = NULL
	                  WHERE zone_id = ? AND seat_number IN (%s)`,
		placeholders(len(seatNumbers)))
	_, err := l.db.ExecContext(ctx, q, append([]any{model.SeatSold, reservationID}, seatArgs(zoneID, seatNumbers)...)...)
	return err
}

// scanSeat reads one seat row from rows positioned on a record.
func scanSeat(rows *sql.Rows) (model.Seat, error) {
	var s model.Seat
	var holder, reservation sql.NullString
	var expiry sql.NullTime
	if err := rows.Scan(&s.ZoneID, &s.Number, &s.State, &holder, &reservation, &expiry); err != nil {
		return model.Seat{}, err
	}
	if holder.Valid {
		h := holder.String
		s.HolderID = &h
	}
	if reservation.Valid {
		r := reservation.String
		s.ReservationID = &r
	}
	if expiry.Valid {
		t := expiry.Time
		s.HoldExpiry = &t
	}
	return s, nil
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// seatArgs prefixes the zone ID to the seat numbers as query arguments.
func seatArgs(zoneID string, seatNumbers []int) []any {
	args := make([]any, 0, len(seatNumbers)+1)
	args = append(args, zoneID)
	for _, n := range seatNumbers {
		args = append(args, n)
	}
	return args
}

// dedupe drops duplicate and non-positive seat numbers, preserving order.
func dedupe(seatNumbers []int) []int {
	seen := make(map[int]struct{}, len(seatNumbers))
	out := make([]int, 0, len(seatNumbers))
	for _, n := range seatNumbers {
		if n <= 0 {
			continue
		}
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}
