// Package service implements the business operations behind the HTTP and
// message-bus surfaces: the reservation coordinator, the ticket issuer and
// the notifier.  Services depend on small store interfaces so the wiring
// stays explicit and the logic is testable with fakes.
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/jperezm/concert-reservation/internal/ledger"
	"github.com/jperezm/concert-reservation/internal/model"
	"github.com/jperezm/concert-reservation/internal/monitoring"
	"github.com/jperezm/concert-reservation/internal/queue"
	"github.com/jperezm/concert-reservation/internal/repository"
	"github.com/jperezm/concert-reservation/internal/ws"
)

// SeatLedger is the coordinator's view of the seat ledger.
type SeatLedger interface {
	EnsureSeats(ctx context.Context, zoneID string, capacity int) error
	ZoneState(ctx context.Context, zoneID string) ([]model.Seat, error)
	Claim(ctx context.Context, zoneID string, seatNumbers []int, holderID string, ttl time.Duration) (ledger.ClaimResult, error)
	Release(ctx context.Context, zoneID string, seatNumbers []int, holderID string) ([]int, error)
	Confirm(ctx context.Context, zoneID string, seatNumbers []int, reservationID string) error
}

// ReservationStore persists reservation rows.
type ReservationStore interface {
	Create(ctx context.Context, res *model.Reservation) error
	GetByID(ctx context.Context, id string) (*model.Reservation, error)
	MarkConfirmed(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// CatalogStore reads events and zone capacity and performs the capacity
// decrement on confirmation.
type CatalogStore interface {
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	GetZone(ctx context.Context, id string) (*model.Zone, error)
	DecrementCapacity(ctx context.Context, zoneID string, qty int) error
}

// AccountStore resolves user contact details.
type AccountStore interface {
	GetEmail(ctx context.Context, userID string) (string, error)
}

// Publisher sends envelopes to the message bus.
type Publisher interface {
	Publish(ctx context.Context, queueName string, env queue.Envelope) error
}

// Broadcaster fans seat-state deltas out to zone subscribers.
type Broadcaster interface {
	Broadcast(zoneID string, d ws.Delta)
}

// ReleaseScheduler schedules the fast-path auto-release of a hold when its
// TTL elapses.  The periodic sweep remains the authoritative release path,
// so implementations may be best-effort and process-local.
type ReleaseScheduler interface {
	ScheduleRelease(zoneID, holderID string, at time.Time)
}

// ReservationServiceDeps bundles the coordinator's collaborators.
// Broadcaster and Timers are optional; the rest are required.
type ReservationServiceDeps struct {
	Ledger       SeatLedger
	Reservations ReservationStore
	Catalog      CatalogStore
	Accounts     AccountStore
	Publisher    Publisher
	Broadcaster  Broadcaster
	Timers       ReleaseScheduler
	HoldTTL      time.Duration
}

// ReservationService coordinates the reservation lifecycle: seat holds,
// the TEMPORARY reservation window, and the cross-store confirmation
// handshake that converts a hold into a sale.
type ReservationService struct {
	ledger       SeatLedger
	reservations ReservationStore
	catalog      CatalogStore
	accounts     AccountStore
	pub          Publisher
	hub          Broadcaster
	timers       ReleaseScheduler
	holdTTL      time.Duration
	now          func() time.Time
}

// NewReservationService wires a coordinator from its dependencies.
func NewReservationService(d ReservationServiceDeps) *ReservationService {
	ttl := d.HoldTTL
	if ttl <= 0 {
		ttl = ledger.DefaultHoldTTL
	}
	return &ReservationService{
		ledger:       d.Ledger,
		reservations: d.Reservations,
		catalog:      d.Catalog,
		accounts:     d.Accounts,
		pub:          d.Publisher,
		hub:          d.Broadcaster,
		timers:       d.Timers,
		holdTTL:      ttl,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SeatState returns the current state of every seat in a zone, lazily
// materializing seat rows up to the zone's capacity on first access.
func (s *ReservationService) SeatState(ctx context.Context, zoneID string) ([]model.Seat, error) {
	zone, err := s.catalog.GetZone(ctx, zoneID)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.EnsureSeats(ctx, zone.ID, zone.Capacity); err != nil {
		return nil, err
	}
	return s.ledger.ZoneState(ctx, zone.ID)
}

// HoldSeats claims specific seats for a holder.  On success every claimed
// seat is broadcast as HELD and a fast-path release timer is scheduled for
// the hold's expiry.  Conflicts come back in the result, not as an error.
func (s *ReservationService) HoldSeats(ctx context.Context, zoneID string, seatNumbers []int, holderID string) (ledger.ClaimResult, error) {
	if holderID == "" || len(seatNumbers) == 0 {
		return ledger.ClaimResult{}, fmt.Errorf("%w: holder and seat numbers are required", repository.ErrInvalidInput)
	}
	zone, err := s.catalog.GetZone(ctx, zoneID)
	if err != nil {
		return ledger.ClaimResult{}, err
	}
	if err := s.ledger.EnsureSeats(ctx, zone.ID, zone.Capacity); err != nil {
		return ledger.ClaimResult{}, err
	}
	res, err := s.ledger.Claim(ctx, zone.ID, seatNumbers, holderID, s.holdTTL)
	if err != nil {
		return ledger.ClaimResult{}, err
	}
	if res.OK {
		s.broadcast(zone.ID, ws.Delta{Seats: res.Claimed, NewState: model.SeatHeld, UserID: holderID})
		if s.timers != nil {
			s.timers.ScheduleRelease(zone.ID, holderID, res.ExpiresAt)
		}
	}
	return res, nil
}

// ReleaseSeats returns a holder's seats to AVAILABLE.  Seats not held by
// that holder are skipped silently, so releasing is always safe to retry.
func (s *ReservationService) ReleaseSeats(ctx context.Context, zoneID string, seatNumbers []int, holderID string) ([]int, error) {
	released, err := s.ledger.Release(ctx, zoneID, seatNumbers, holderID)
	if err != nil {
		return nil, err
	}
	if len(released) > 0 {
		monitoring.SeatsReleasedTotal.WithLabelValues("manual").Add(float64(len(released)))
		s.broadcast(zoneID, ws.Delta{Seats: released, NewState: model.SeatAvailable, UserID: holderID})
	}
	return released, nil
}

// CreateReservationInput carries the reservation create request.  Either
// Quantity or Seats must be set; when Seats is set the quantity is the
// number of seats.
type CreateReservationInput struct {
	EventID  string
	ZoneID   string
	UserID   string
	Quantity int
	Seats    []int
}

// Create validates the event and zone against the catalog store, claims
// specific seats when requested, and persists a TEMPORARY reservation
// expiring one hold window from now.  Remaining capacity is read here but
// only consumed at confirmation time.
func (s *ReservationService) Create(ctx context.Context, in CreateReservationInput) (*model.Reservation, error) {
	if in.EventID == "" || in.ZoneID == "" || in.UserID == "" {
		return nil, fmt.Errorf("%w: event, zone and user are required", repository.ErrInvalidInput)
	}
	if in.Quantity <= 0 && len(in.Seats) == 0 {
		return nil, fmt.Errorf("%w: quantity or seat numbers are required", repository.ErrInvalidInput)
	}
	if _, err := s.catalog.GetEvent(ctx, in.EventID); err != nil {
		return nil, fmt.Errorf("event: %w", err)
	}
	zone, err := s.catalog.GetZone(ctx, in.ZoneID)
	if err != nil {
		return nil, fmt.Errorf("zone: %w", err)
	}

	qty := in.Quantity
	if len(in.Seats) > 0 {
		qty = len(in.Seats)
	}
	if zone.Remaining < qty {
		return nil, repository.ErrCapacityExceeded
	}

	if len(in.Seats) > 0 {
		claim, err := s.HoldSeats(ctx, zone.ID, in.Seats, in.UserID)
		if err != nil {
			return nil, err
		}
		if !claim.OK {
			return nil, &repository.SeatsUnavailableError{Seats: claim.Conflicts}
		}
		in.Seats = claim.Claimed
	}

	res := &model.Reservation{
		ID:        uuid.NewString(),
		EventID:   in.EventID,
		ZoneID:    zone.ID,
		UserID:    in.UserID,
		Quantity:  qty,
		Seats:     in.Seats,
		Status:    model.ReservationTemporary,
		ExpiresAt: s.now().Add(s.holdTTL),
		CreatedAt: s.now(),
	}
	if err := s.reservations.Create(ctx, res); err != nil {
		// Claimed seats stay held; the expiry sweep frees them.
		return nil, err
	}
	return res, nil
}

// Confirm converts a TEMPORARY reservation into a sale.  It re-validates
// remaining capacity (other confirmations may have consumed it since
// creation), decrements the catalog's remaining capacity, and only then
// flips the reservation status — so a failed decrement can never leave an
// observably CONFIRMED reservation behind.  Held seats become SOLD and a
// ReservationConfirmed event is published fire-and-forget.
func (s *ReservationService) Confirm(ctx context.Context, reservationID, userID string) (*model.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.UserID != userID {
		return nil, repository.ErrNotAuthorized
	}
	if res.Status == model.ReservationConfirmed {
		return nil, fmt.Errorf("%w: reservation already confirmed", repository.ErrInvalidInput)
	}

	email, err := s.accounts.GetEmail(ctx, res.UserID)
	if err != nil {
		return nil, fmt.Errorf("account: %w", err)
	}

	zone, err := s.catalog.GetZone(ctx, res.ZoneID)
	if err != nil {
		return nil, fmt.Errorf("zone: %w", err)
	}
	if zone.Remaining < res.Quantity {
		return nil, repository.ErrCapacityExceeded
	}
	if err := s.catalog.DecrementCapacity(ctx, res.ZoneID, res.Quantity); err != nil {
		return nil, err
	}
	if err := s.reservations.MarkConfirmed(ctx, res.ID); err != nil {
		return nil, err
	}
	res.Status = model.ReservationConfirmed
	res.Email = email
	monitoring.ReservationsConfirmedTotal.Inc()

	if len(res.Seats) > 0 {
		if err := s.ledger.Confirm(ctx, res.ZoneID, res.Seats, res.ID); err != nil {
			// The sale is committed; seat rows catch up on retry paths.
			log.Printf("reservations: confirm seats for %s failed: %v", res.ID, err)
		} else {
			s.broadcast(res.ZoneID, ws.Delta{Seats: res.Seats, NewState: model.SeatSold, UserID: res.UserID})
		}
	}

	env, err := queue.NewEnvelope(queue.TypeReservationConfirmed, queue.ReservationConfirmedEvent{
		ReservationID: res.ID,
		EventID:       res.EventID,
		ZoneID:        res.ZoneID,
		UserID:        res.UserID,
		Quantity:      res.Quantity,
		Seats:         res.Seats,
		Email:         email,
		ConfirmedAt:   s.now().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("reservations: encode confirmed event for %s: %v", res.ID, err)
		return res, nil
	}
	if err := s.pub.Publish(ctx, queue.QueueReservationConfirmed, env); err != nil {
		// Fire-and-forget: the sale stands even if the bus is down.
		log.Printf("reservations: publish confirmed event for %s: %v", res.ID, err)
	}
	return res, nil
}

// Get loads one reservation.
func (s *ReservationService) Get(ctx context.Context, id string) (*model.Reservation, error) {
	return s.reservations.GetByID(ctx, id)
}

// Cancel deletes the reservation row.  It deliberately does not release
// seat holds: seat-state correctness never depends on reservation-row
// lifecycle, and any seats still held drain through the TTL expiry sweep.
func (s *ReservationService) Cancel(ctx context.Context, id string) error {
	return s.reservations.Delete(ctx, id)
}

func (s *ReservationService) broadcast(zoneID string, d ws.Delta) {
	if s.hub != nil {
		s.hub.Broadcast(zoneID, d)
	}
}
