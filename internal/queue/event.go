// Package queue connects the services through durable RabbitMQ queues.  It
// defines the domain event payloads, a typed envelope carrying an explicit
// type tag, and a dispatcher routing each envelope to the handler
// registered for its type.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDiscard marks a delivery that can never be processed, no matter how
// often the broker redelivers it: undecodable envelopes, unknown type tags,
// payloads failing validation.  The consumer drops such deliveries instead
// of requeueing them; every other handler error is transient and requeued.
var ErrDiscard = errors.New("unprocessable delivery")

// Discard wraps err so the consumer drops the delivery instead of
// requeueing it.
func Discard(err error) error {
	return fmt.Errorf("%w: %v", ErrDiscard, err)
}

// Durable queue names.  Messages are persisted and survive broker restarts.
const (
	QueueReservationConfirmed = "reservation.confirmed"
	QueueTicketIssued         = "ticket.issued"
)

// Envelope type tags.
const (
	TypeReservationConfirmed = "reservation_confirmed"
	TypeTicketIssued         = "ticket_issued"
)

// Envelope wraps every message on the bus with an explicit type tag so
// consumers dispatch on the tag instead of inspecting payload shapes.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into an Envelope with the given type tag.
func NewEnvelope(msgType string, payload any) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return Envelope{Type: msgType, Payload: body}, nil
}

// ReservationConfirmedEvent is published when a reservation flips to
// CONFIRMED.  It carries enough context for the ticket issuer to act
// without a synchronous callback into the reservation service.
type ReservationConfirmedEvent struct {
	ReservationID string `json:"reservation_id"`
	EventID       string `json:"event_id"`
	ZoneID        string `json:"zone_id"`
	UserID        string `json:"user_id"`
	Quantity      int    `json:"quantity"`
	Seats         []int  `json:"seats,omitempty"`
	Email         string `json:"email"`
	ConfirmedAt   string `json:"confirmed_at"`
}

// TicketIssuedEvent is published after a ticket has been persisted.  The
// notifier consumes it to deliver the artifact to the user.
type TicketIssuedEvent struct {
	TicketID      string `json:"ticket_id"`
	ReservationID string `json:"reservation_id"`
	EventID       string `json:"event_id"`
	ZoneID        string `json:"zone_id"`
	Quantity      int    `json:"quantity"`
	Seats         []int  `json:"seats,omitempty"`
	Email         string `json:"email"`
	Artifact      string `json:"artifact"`
	IssuedAt      string `json:"issued_at"`
}

// HandlerFunc processes the payload of one envelope.  Returning an error
// causes the delivery to be rejected (the broker's retry policy applies).
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

// Dispatcher routes envelopes to the handler registered for their type tag.
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

// Handle registers fn for the given envelope type.  Registering the same
// type twice replaces the previous handler.
func (d *Dispatcher) Handle(msgType string, fn HandlerFunc) {
	d.handlers[msgType] = fn
}

// Dispatch decodes body as an Envelope and invokes the matching handler.
// Malformed envelopes and unknown types come back as ErrDiscard: no amount
// of redelivery will make them processable.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) error {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Discard(fmt.Errorf("decode envelope: %w", err))
	}
	fn, ok := d.handlers[env.Type]
	if !ok {
		return Discard(fmt.Errorf("no handler for message type %q", env.Type))
	}
	return fn(ctx, env.Payload)
}
