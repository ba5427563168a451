// Package sweeper frees seat holds whose TTL has elapsed.  The periodic
// sweep is the authoritative release path: it runs on a fixed interval
// independent of any request and does not depend on process-local timers
// surviving a restart.  Per-hold timers scheduled at claim time are a
// secondary, faster-reacting path; both are idempotent, so firing
// redundantly is harmless.
package sweeper

import (
	"context"
	"log"
	"time"

	"github.com/jperezm/concert-reservation/internal/model"
	"github.com/jperezm/concert-reservation/internal/monitoring"
	"github.com/jperezm/concert-reservation/internal/ws"
)

// Ledger is the sweeper's view of the seat ledger.
type Ledger interface {
	ReleaseExpired(ctx context.Context) (map[string][]int, error)
	ReleaseExpiredByHolder(ctx context.Context, zoneID, holderID string) ([]int, error)
}

// Broadcaster fans released-seat deltas out to zone subscribers.
type Broadcaster interface {
	Broadcast(zoneID string, d ws.Delta)
}

// Sweeper runs the periodic expiry sweep and hosts the per-hold timers.
type Sweeper struct {
	ledger   Ledger
	hub      Broadcaster
	interval time.Duration
}

// New returns a Sweeper.  A non-positive interval falls back to one minute.
func New(ledger Ledger, hub Broadcaster, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{ledger: ledger, hub: hub, interval: interval}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep releases every expired hold and notifies affected zones.
func (s *Sweeper) sweep(ctx context.Context) {
	groups, err := s.ledger.ReleaseExpired(ctx)
	if err != nil {
		log.Printf("sweeper: release expired holds: %v", err)
		return
	}
	for zoneID, seats := range groups {
		monitoring.SeatsReleasedTotal.WithLabelValues("expired").Add(float64(len(seats)))
		s.notify(zoneID, seats)
	}
}

// ScheduleRelease arms a one-shot timer that frees the holder's expired
// seats in a zone once the hold window closes.  The release is conditioned
// on the expiry actually having passed, so a TTL reset by a re-claim keeps
// its seats.  Timers are process-local and advisory; the periodic sweep
// catches anything they miss.
func (s *Sweeper) ScheduleRelease(zoneID, holderID string, at time.Time) {
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	time.AfterFunc(delay+time.Second, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		released, err := s.ledger.ReleaseExpiredByHolder(ctx, zoneID, holderID)
		if err != nil {
			log.Printf("sweeper: timed release for user %s in zone %s: %v", holderID, zoneID, err)
			return
		}
		if len(released) > 0 {
			monitoring.SeatsReleasedTotal.WithLabelValues("timer").Add(float64(len(released)))
			s.notify(zoneID, released)
		}
	})
}

func (s *Sweeper) notify(zoneID string, seats []int) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(zoneID, ws.Delta{
		Seats:    seats,
		NewState: model.SeatAvailable,
		Reason:   "expired",
	})
}
