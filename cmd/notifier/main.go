// The notifier service consumes TicketIssued events, resolves event
// details from the catalog and delivers the ticket to the user.  Delivery
// is best-effort: failures are logged and the message is acknowledged so
// a bad address never builds a backlog.
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

	catalogDB, err := database.Open(database.Config{
		Hosts: cfg.DBHosts, Port: cfg.DBPort, User: cfg.DBUser, Pass: cfg.DBPass, Name: cfg.CatalogDB,
	})
	if err != nil {
		log.Fatalf("open catalog store: %v", err)
	}
	defer catalogDB.Close()

	notifications := service.NewNotificationService(
		repository.NewCatalogRepo(catalogDB),
		service.LogDeliverer{},
	)

	d := queue.NewDispatcher()
	d.Handle(queue.TypeTicketIssued, notifications.HandleTicketIssued)

	log.Printf("notifier consuming %s (env=%s, db=%s)", queue.QueueTicketIssued, cfg.Env, catalogDB.Host())
	if err := queue.Consume(context.Background(), queue.ResolveURL(), queue.QueueTicketIssued, d); err != nil {
		log.Fatal(err)
	}
}
