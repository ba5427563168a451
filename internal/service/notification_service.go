package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jperezm/concert-reservation/internal/model"
	"github.com/jperezm/concert-reservation/internal/queue"
)

// detailsPlaceholder is used when event details cannot be resolved, so a
// catalog outage never blocks ticket delivery.
const detailsPlaceholder = "TBD"

// EventDetailsStore resolves human-readable event information.
type EventDetailsStore interface {
	GetEvent(ctx context.Context, id string) (*model.Event, error)
}

// Notification is the rendered delivery payload.
type Notification struct {
	To        string
	Subject   string
	Message   string
	Artifact  string
	TicketID  string
	EventName string
	EventDate string
	Venue     string
}

// Deliverer sends one notification to its recipient.
type Deliverer interface {
	Deliver(ctx context.Context, n Notification) error
}

// LogDeliverer writes the notification to the process log instead of an
// outbound channel.  It stands in for the SMTP transport, which is an
// external collaborator.
type LogDeliverer struct{}

func (LogDeliverer) Deliver(_ context.Context, n Notification) error {
	log.Printf("notifier: sending to=%s subject=%q ticket=%s event=%q date=%s venue=%s",
		n.To, n.Subject, n.TicketID, n.EventName, n.EventDate, n.Venue)
	return nil
}

// NotificationService consumes TicketIssued events and delivers the ticket
// to the user.  Delivery is explicitly best-effort: failures are logged and
// the message is acknowledged regardless, so a bad address can never pile
// up as a poison-message backlog.
type NotificationService struct {
	catalog   EventDetailsStore
	deliverer Deliverer
}

// NewNotificationService wires a notifier.
func NewNotificationService(catalog EventDetailsStore, deliverer Deliverer) *NotificationService {
	return &NotificationService{catalog: catalog, deliverer: deliverer}
}

// HandleTicketIssued is the queue handler for TicketIssued payloads.  It
// returns an error only for undecodable payloads; everything after a
// successful decode is acknowledged whatever the delivery outcome.
func (s *NotificationService) HandleTicketIssued(ctx context.Context, payload json.RawMessage) error {
	var ev queue.TicketIssuedEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return queue.Discard(fmt.Errorf("decode ticket issued: %w", err))
	}

	n := Notification{
		To:        ev.Email,
		TicketID:  ev.TicketID,
		Artifact:  ev.Artifact,
		EventName: detailsPlaceholder,
		EventDate: detailsPlaceholder,
		Venue:     detailsPlaceholder,
	}
	if event, err := s.catalog.GetEvent(ctx, ev.EventID); err != nil {
		log.Printf("notifier: lookup event %s failed: %v", ev.EventID, err)
	} else {
		n.EventName = event.Name
		if event.Venue != "" {
			n.Venue = event.Venue
		}
		if event.StartsAt != nil {
			n.EventDate = event.StartsAt.Format(time.RFC1123)
		}
	}
	n.Subject = fmt.Sprintf("Your ticket for %s", n.EventName)
	n.Message = fmt.Sprintf("Your ticket for %s (%s, %s) has been issued. Ticket ID: %s.",
		n.EventName, n.Venue, n.EventDate, ev.TicketID)

	if err := s.deliverer.Deliver(ctx, n); err != nil {
		// Best-effort boundary: log and ack, never retry indefinitely.
		log.Printf("notifier: delivery for ticket %s failed: %v", ev.TicketID, err)
	}
	return nil
}
