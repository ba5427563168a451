// The ticketer service consumes ReservationConfirmed events, issues
// tickets and publishes TicketIssued events.  It acknowledges a message
// only after the ticket is persisted; the unique reservation key makes
// redeliveries harmless.
package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"github.com/jperezm/concert-reservation/internal/config"
	"github.com/jperezm/concert-reservation/internal/database"
	"github.com/jperezm/concert-reservation/internal/queue"
	"github.com/jperezm/concert-reservation/internal/repository"
	"github.com/jperezm/concert-reservation/internal/service"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ticketsDB, err := database.Open(database.Config{
		Hosts: cfg.DBHosts, Port: cfg.DBPort, User: cfg.DBUser, Pass: cfg.DBPass, Name: cfg.TicketsDB,
	})
	if err != nil {
		log.Fatalf("open tickets store: %v", err)
	}
	defer ticketsDB.Close()

	url := queue.ResolveURL()
	broker, err := queue.Connect(url)
	if err != nil {
		log.Fatalf("connect broker: %v", err)
	}
	defer broker.Close()

	tickets := service.NewTicketService(repository.NewTicketRepo(ticketsDB), broker)

	d := queue.NewDispatcher()
	d.Handle(queue.TypeReservationConfirmed, tickets.HandleReservationConfirmed)

	log.Printf("ticketer consuming %s (env=%s, db=%s)", queue.QueueReservationConfirmed, cfg.Env, ticketsDB.Host())
	if err := queue.Consume(context.Background(), url, queue.QueueReservationConfirmed, d); err != nil {
		log.Fatal(err)
	}
}
