package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/jperezm/concert-reservation/internal/model"
	"github.com/jperezm/concert-reservation/internal/queue"
	"github.com/jperezm/concert-reservation/internal/repository"
)

// TicketStore persists issued tickets.
type TicketStore interface {
	Insert(ctx context.Context, t *model.Ticket) (created bool, err error)
	GetByReservation(ctx context.Context, reservationID string) (*model.Ticket, error)
}

// TicketService consumes ReservationConfirmed events and issues tickets.
// The broker delivers at least once, so the service is idempotent at the
// business level: the store's unique key on reservation_id guarantees a
// redelivered confirmation can never mint a second ticket, and a
// suppressed duplicate publishes no second TicketIssued event either.
type TicketService struct {
	store TicketStore
	pub   Publisher
	now   func() time.Time
}

// NewTicketService wires a ticket issuer.
func NewTicketService(store TicketStore, pub Publisher) *TicketService {
	return &TicketService{
		store: store,
		pub:   pub,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// HandleReservationConfirmed is the queue handler for ReservationConfirmed
// payloads.  It synthesizes the ticket, persists it, and publishes
// TicketIssued.  A non-nil return rejects the delivery; returning nil
// acknowledges it, which only happens after persistence succeeded.
func (s *TicketService) HandleReservationConfirmed(ctx context.Context, payload json.RawMessage) error {
	var ev queue.ReservationConfirmedEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return queue.Discard(fmt.Errorf("decode reservation confirmed: %w", err))
	}
	if ev.ReservationID == "" {
		return queue.Discard(fmt.Errorf("%w: reservation_id is required", repository.ErrInvalidInput))
	}

	ticket := &model.Ticket{
		ID:            uuid.NewString(),
		ReservationID: ev.ReservationID,
		EventID:       ev.EventID,
		ZoneID:        ev.ZoneID,
		UserID:        ev.UserID,
		Quantity:      ev.Quantity,
		Seats:         ev.Seats,
		IssuedAt:      s.now(),
	}
	artifact, err := encodeArtifact(ticket)
	if err != nil {
		// Deterministic: the same payload fails the same way on redelivery.
		return queue.Discard(err)
	}
	ticket.Artifact = artifact

	created, err := s.store.Insert(ctx, ticket)
	if err != nil {
		return fmt.Errorf("persist ticket: %w", err)
	}
	if !created {
		// Redelivery of an already-processed confirmation: ack and move on.
		log.Printf("ticketer: reservation %s already ticketed, skipping", ev.ReservationID)
		return nil
	}
	log.Printf("ticketer: issued ticket %s for reservation %s", ticket.ID, ev.ReservationID)

	env, err := queue.NewEnvelope(queue.TypeTicketIssued, queue.TicketIssuedEvent{
		TicketID:      ticket.ID,
		ReservationID: ticket.ReservationID,
		EventID:       ticket.EventID,
		ZoneID:        ticket.ZoneID,
		Quantity:      ticket.Quantity,
		Seats:         ticket.Seats,
		Email:         ev.Email,
		Artifact:      ticket.Artifact,
		IssuedAt:      ticket.IssuedAt.Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("ticketer: encode issued event for %s: %v", ticket.ID, err)
		return nil
	}
	if err := s.pub.Publish(ctx, queue.QueueTicketIssued, env); err != nil {
		// The ticket is persisted; rejecting now would mint no duplicate but
		// would re-run the whole handler, which skips the publish anyway.
		log.Printf("ticketer: publish issued event for %s: %v", ticket.ID, err)
	}
	return nil
}

// artifactPayload is what gets embedded in the scannable code.  Rendering
// the code as an image is a presentation concern handled downstream.
type artifactPayload struct {
	TicketID      string `json:"ticket_id"`
	ReservationID string `json:"reservation_id"`
	EventID       string `json:"event_id"`
	ZoneID        string `json:"zone_id"`
	Quantity      int    `json:"quantity"`
	Seats         []int  `json:"seats,omitempty"`
	IssuedAt      string `json:"issued_at"`
}

// encodeArtifact packs the ticket payload into a base64 token suitable for
// embedding in a scannable code.
func encodeArtifact(t *model.Ticket) (string, error) {
	body, err := json.Marshal(artifactPayload{
		TicketID:      t.ID,
		ReservationID: t.ReservationID,
		EventID:       t.EventID,
		ZoneID:        t.ZoneID,
		Quantity:      t.Quantity,
		Seats:         t.Seats,
		IssuedAt:      t.IssuedAt.Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("encode artifact: %w", err)
	}
	return base64.StdEncoding.EncodeToString(body), nil
}
