package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jperezm/concert-reservation/internal/ledger"
	"github.com/jperezm/concert-reservation/internal/model"
	"github.com/jperezm/concert-reservation/internal/queue"
	"github.com/jperezm/concert-reservation/internal/repository"
	"github.com/jperezm/concert-reservation/internal/ws"
)

// recorder collects the order of cross-store mutations so tests can assert
// sequencing (capacity decrement before status flip).
type recorder struct {
	calls []string
}

func (r *recorder) add(name string) { r.calls = append(r.calls, name) }

func (r *recorder) index(name string) int {
	for i, c := range r.calls {
		if c == name {
			return i
		}
	}
	return -1
}

type fakeLedger struct {
	rec         *recorder
	claimResult ledger.ClaimResult
	claimErr    error
	ensured     map[string]int
	released    []int
	releaseErr  error
	confirmed   [][]int
	confirmErr  error
}

func (f *fakeLedger) EnsureSeats(_ context.Context, zoneID string, capacity int) error {
	if f.ensured == nil {
		f.ensured = map[string]int{}
	}
	f.ensured[zoneID] = capacity
	return nil
}

func (f *fakeLedger) ZoneState(context.Context, string) ([]model.Seat, error) { return nil, nil }

func (f *fakeLedger) Claim(_ context.Context, _ string, seats []int, _ string, _ time.Duration) (ledger.ClaimResult, error) {
	f.rec.add("claim")
	if f.claimErr != nil {
		return ledger.ClaimResult{}, f.claimErr
	}
	if f.claimResult.OK && f.claimResult.Claimed == nil {
		f.claimResult.Claimed = seats
	}
	return f.claimResult, nil
}

func (f *fakeLedger) Release(_ context.Context, _ string, seats []int, _ string) ([]int, error) {
	f.rec.add("release")
	if f.releaseErr != nil {
		return nil, f.releaseErr
	}
	f.released = append(f.released, seats...)
	return seats, nil
}

func (f *fakeLedger) Confirm(_ context.Context, _ string, seats []int, _ string) error {
	f.rec.add("confirm_seats")
	if f.confirmErr != nil {
		return f.confirmErr
	}
	f.confirmed = append(f.confirmed, seats)
	return nil
}

type fakeReservations struct {
	rec        *recorder
	byID       map[string]*model.Reservation
	createErr  error
	confirmErr error
}

func (f *fakeReservations) Create(_ context.Context, res *model.Reservation) error {
	f.rec.add("create_reservation")
	if f.createErr != nil {
		return f.createErr
	}
	cp := *res
	f.byID[res.ID] = &cp
	return nil
}

func (f *fakeReservations) GetByID(_ context.Context, id string) (*model.Reservation, error) {
	res, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *res
	return &cp, nil
}

func (f *fakeReservations) MarkConfirmed(_ context.Context, id string) error {
	f.rec.add("mark_confirmed")
	if f.confirmErr != nil {
		return f.confirmErr
	}
	res, ok := f.byID[id]
	if !ok || res.Status != model.ReservationTemporary {
		return repository.ErrNotFound
	}
	res.Status = model.ReservationConfirmed
	return nil
}

func (f *fakeReservations) Delete(_ context.Context, id string) error {
	f.rec.add("delete_reservation")
	delete(f.byID, id)
	return nil
}

type fakeCatalog struct {
	rec    *recorder
	events map[string]*model.Event
	zones  map[string]*model.Zone
	decErr error
}

func (f *fakeCatalog) GetEvent(_ context.Context, id string) (*model.Event, error) {
	ev, ok := f.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return ev, nil
}

func (f *fakeCatalog) GetZone(_ context.Context, id string) (*model.Zone, error) {
	z, ok := f.zones[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *z
	return &cp, nil
}

func (f *fakeCatalog) DecrementCapacity(_ context.Context, zoneID string, qty int) error {
	f.rec.add("decrement")
	if f.decErr != nil {
		return f.decErr
	}
	z := f.zones[zoneID]
	if z.Remaining < qty {
		return repository.ErrCapacityExceeded
	}
	z.Remaining -= qty
	return nil
}

type fakeAccounts struct {
	emails map[string]string
}

func (f *fakeAccounts) GetEmail(_ context.Context, userID string) (string, error) {
	email, ok := f.emails[userID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return email, nil
}

type published struct {
	queue string
	env   queue.Envelope
}

type fakePublisher struct {
	rec        *recorder
	messages   []published
	publishErr error
}

func (f *fakePublisher) Publish(_ context.Context, queueName string, env queue.Envelope) error {
	f.rec.add("publish")
	if f.publishErr != nil {
		return f.publishErr
	}
	f.messages = append(f.messages, published{queue: queueName, env: env})
	return nil
}

type fakeHub struct {
	deltas []ws.Delta
	zones  []string
}

func (f *fakeHub) Broadcast(zoneID string, d ws.Delta) {
	f.zones = append(f.zones, zoneID)
	f.deltas = append(f.deltas, d)
}

type scheduled struct {
	zoneID   string
	holderID string
	at       time.Time
}

type fakeTimers struct {
	entries []scheduled
}

func (f *fakeTimers) ScheduleRelease(zoneID, holderID string, at time.Time) {
	f.entries = append(f.entries, scheduled{zoneID, holderID, at})
}

type fixture struct {
	svc          *ReservationService
	rec          *recorder
	ledger       *fakeLedger
	reservations *fakeReservations
	catalog      *fakeCatalog
	publisher    *fakePublisher
	hub          *fakeHub
	timers       *fakeTimers
}

func newFixture() *fixture {
	rec := &recorder{}
	f := &fixture{
		rec:    rec,
		ledger: &fakeLedger{rec: rec, claimResult: ledger.ClaimResult{OK: true, ExpiresAt: time.Now().UTC().Add(10 * time.Minute)}},
		reservations: &fakeReservations{
			rec:  rec,
			byID: map[string]*model.Reservation{},
		},
		catalog: &fakeCatalog{
			rec:    rec,
			events: map[string]*model.Event{"event-1": {ID: "event-1", Name: "Arena Night"}},
			zones:  map[string]*model.Zone{"zone-1": {ID: "zone-1", EventID: "event-1", Capacity: 100, Remaining: 50}},
		},
		publisher: &fakePublisher{rec: rec},
		hub:       &fakeHub{},
		timers:    &fakeTimers{},
	}
	f.svc = NewReservationService(ReservationServiceDeps{
		Ledger:       f.ledger,
		Reservations: f.reservations,
		Catalog:      f.catalog,
		Accounts:     &fakeAccounts{emails: map[string]string{"user-1": "user1@example.com"}},
		Publisher:    f.publisher,
		Broadcaster:  f.hub,
		Timers:       f.timers,
		HoldTTL:      10 * time.Minute,
	})
	return f
}

func TestReservationService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("capacity-only reservation", func(t *testing.T) {
		f := newFixture()
		res, err := f.svc.Create(ctx, CreateReservationInput{
			EventID: "event-1", ZoneID: "zone-1", UserID: "user-1", Quantity: 3,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, res.ID)
		assert.Equal(t, model.ReservationTemporary, res.Status)
		assert.Equal(t, 3, res.Quantity)
		assert.Empty(t, res.Seats)
		assert.Equal(t, -1, f.rec.index("claim"), "no seats requested, ledger must not be touched")
		// remaining capacity is read, never consumed, at create time
		assert.Equal(t, 50, f.catalog.zones["zone-1"].Remaining)
	})

	t.Run("specific seats claimed and timer scheduled", func(t *testing.T) {
		f := newFixture()
		res, err := f.svc.Create(ctx, CreateReservationInput{
			EventID: "event-1", ZoneID: "zone-1", UserID: "user-1", Seats: []int{14, 15},
		})
		require.NoError(t, err)
		assert.Equal(t, []int{14, 15}, res.Seats)
		assert.Equal(t, 2, res.Quantity)
		require.Len(t, f.hub.deltas, 1)
		assert.Equal(t, model.SeatHeld, f.hub.deltas[0].NewState)
		assert.Equal(t, []int{14, 15}, f.hub.deltas[0].Seats)
		require.Len(t, f.timers.entries, 1)
		assert.Equal(t, "zone-1", f.timers.entries[0].zoneID)
		assert.Equal(t, "user-1", f.timers.entries[0].holderID)
		assert.Equal(t, 100, f.ledger.ensured["zone-1"], "seats materialized up to zone capacity")
	})

	t.Run("seat conflict fails without inserting", func(t *testing.T) {
		f := newFixture()
		f.ledger.claimResult = ledger.ClaimResult{OK: false, Conflicts: []int{14}}
		_, err := f.svc.Create(ctx, CreateReservationInput{
			EventID: "event-1", ZoneID: "zone-1", UserID: "user-1", Seats: []int{14, 15},
		})
		var unavailable *repository.SeatsUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Equal(t, []int{14}, unavailable.Seats)
		assert.Equal(t, -1, f.rec.index("create_reservation"))
		assert.Empty(t, f.hub.deltas)
	})

	t.Run("unknown event", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.Create(ctx, CreateReservationInput{
			EventID: "nope", ZoneID: "zone-1", UserID: "user-1", Quantity: 1,
		})
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("insufficient remaining capacity", func(t *testing.T) {
		f := newFixture()
		f.catalog.zones["zone-1"].Remaining = 1
		_, err := f.svc.Create(ctx, CreateReservationInput{
			EventID: "event-1", ZoneID: "zone-1", UserID: "user-1", Quantity: 2,
		})
		assert.ErrorIs(t, err, repository.ErrCapacityExceeded)
	})

	t.Run("missing quantity and seats", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.Create(ctx, CreateReservationInput{
			EventID: "event-1", ZoneID: "zone-1", UserID: "user-1",
		})
		assert.ErrorIs(t, err, repository.ErrInvalidInput)
	})
}

func TestReservationService_Confirm(t *testing.T) {
	ctx := context.Background()

	seed := func(f *fixture, seats []int) *model.Reservation {
		res := &model.Reservation{
			ID: "res-1", EventID: "event-1", ZoneID: "zone-1", UserID: "user-1",
			Quantity: 2, Seats: seats, Status: model.ReservationTemporary,
			ExpiresAt: time.Now().UTC().Add(10 * time.Minute),
		}
		f.reservations.byID[res.ID] = res
		return res
	}

	t.Run("decrements capacity before flipping status", func(t *testing.T) {
		f := newFixture()
		seed(f, []int{14, 15})
		res, err := f.svc.Confirm(ctx, "res-1", "user-1")
		require.NoError(t, err)
		assert.Equal(t, model.ReservationConfirmed, res.Status)
		assert.Equal(t, "user1@example.com", res.Email)
		assert.Equal(t, 48, f.catalog.zones["zone-1"].Remaining)

		dec, flip := f.rec.index("decrement"), f.rec.index("mark_confirmed")
		require.NotEqual(t, -1, dec)
		require.NotEqual(t, -1, flip)
		assert.Less(t, dec, flip, "capacity decrement must precede the status flip")

		require.Len(t, f.ledger.confirmed, 1)
		assert.Equal(t, []int{14, 15}, f.ledger.confirmed[0])
		require.Len(t, f.hub.deltas, 1)
		assert.Equal(t, model.SeatSold, f.hub.deltas[0].NewState)

		require.Len(t, f.publisher.messages, 1)
		assert.Equal(t, queue.QueueReservationConfirmed, f.publisher.messages[0].queue)
		assert.Equal(t, queue.TypeReservationConfirmed, f.publisher.messages[0].env.Type)
	})

	t.Run("rejects non-owner", func(t *testing.T) {
		f := newFixture()
		seed(f, nil)
		_, err := f.svc.Confirm(ctx, "res-1", "intruder")
		assert.ErrorIs(t, err, repository.ErrNotAuthorized)
		assert.Equal(t, -1, f.rec.index("decrement"))
	})

	t.Run("capacity consumed since creation", func(t *testing.T) {
		f := newFixture()
		seed(f, nil)
		f.catalog.zones["zone-1"].Remaining = 1
		_, err := f.svc.Confirm(ctx, "res-1", "user-1")
		assert.ErrorIs(t, err, repository.ErrCapacityExceeded)
		assert.Equal(t, -1, f.rec.index("mark_confirmed"))
		assert.Equal(t, model.ReservationTemporary, f.reservations.byID["res-1"].Status)
	})

	t.Run("failed decrement leaves reservation temporary", func(t *testing.T) {
		f := newFixture()
		seed(f, nil)
		f.catalog.decErr = errors.New("node lost")
		_, err := f.svc.Confirm(ctx, "res-1", "user-1")
		require.Error(t, err)
		assert.Equal(t, -1, f.rec.index("mark_confirmed"))
		assert.Equal(t, model.ReservationTemporary, f.reservations.byID["res-1"].Status)
		assert.Empty(t, f.publisher.messages)
	})

	t.Run("already confirmed", func(t *testing.T) {
		f := newFixture()
		res := seed(f, nil)
		res.Status = model.ReservationConfirmed
		_, err := f.svc.Confirm(ctx, "res-1", "user-1")
		assert.ErrorIs(t, err, repository.ErrInvalidInput)
	})

	t.Run("publish failure does not fail the sale", func(t *testing.T) {
		f := newFixture()
		seed(f, nil)
		f.publisher.publishErr = errors.New("broker down")
		res, err := f.svc.Confirm(ctx, "res-1", "user-1")
		require.NoError(t, err)
		assert.Equal(t, model.ReservationConfirmed, res.Status)
	})
}

func TestReservationService_Cancel(t *testing.T) {
	f := newFixture()
	f.reservations.byID["res-1"] = &model.Reservation{
		ID: "res-1", ZoneID: "zone-1", UserID: "user-1",
		Seats: []int{3}, Status: model.ReservationTemporary,
	}
	require.NoError(t, f.svc.Cancel(context.Background(), "res-1"))
	assert.NotContains(t, f.reservations.byID, "res-1")
	// seat holds are left for the expiry sweep on purpose
	assert.Equal(t, -1, f.rec.index("release"))
}

func TestReservationService_HoldAndRelease(t *testing.T) {
	ctx := context.Background()

	t.Run("hold broadcasts and schedules release", func(t *testing.T) {
		f := newFixture()
		result, err := f.svc.HoldSeats(ctx, "zone-1", []int{7}, "user-1")
		require.NoError(t, err)
		assert.True(t, result.OK)
		require.Len(t, f.hub.deltas, 1)
		assert.Equal(t, model.SeatHeld, f.hub.deltas[0].NewState)
		assert.Len(t, f.timers.entries, 1)
	})

	t.Run("conflict neither broadcasts nor schedules", func(t *testing.T) {
		f := newFixture()
		f.ledger.claimResult = ledger.ClaimResult{OK: false, Conflicts: []int{7}}
		result, err := f.svc.HoldSeats(ctx, "zone-1", []int{7}, "user-2")
		require.NoError(t, err)
		assert.False(t, result.OK)
		assert.Equal(t, []int{7}, result.Conflicts)
		assert.Empty(t, f.hub.deltas)
		assert.Empty(t, f.timers.entries)
	})

	t.Run("release broadcasts available", func(t *testing.T) {
		f := newFixture()
		released, err := f.svc.ReleaseSeats(ctx, "zone-1", []int{7, 8}, "user-1")
		require.NoError(t, err)
		assert.Equal(t, []int{7, 8}, released)
		require.Len(t, f.hub.deltas, 1)
		assert.Equal(t, model.SeatAvailable, f.hub.deltas[0].NewState)
	})
}
