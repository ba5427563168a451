// The reservations service owns the seat ledger and the reservation
// lifecycle.  It serves the HTTP API and the realtime seat stream, runs
// the expiry sweeper, and publishes ReservationConfirmed events.
package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/jperezm/concert-reservation/internal/config"
	"github.com/jperezm/concert-reservation/internal/database"
	"github.com/jperezm/concert-reservation/internal/handler"
	"github.com/jperezm/concert-reservation/internal/ledger"
	"github.com/jperezm/concert-reservation/internal/queue"
	"github.com/jperezm/concert-reservation/internal/repository"
	"github.com/jperezm/concert-reservation/internal/router"
	"github.com/jperezm/concert-reservation/internal/service"
	"github.com/jperezm/concert-reservation/internal/sweeper"
	"github.com/jperezm/concert-reservation/internal/ws"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	reservationsDB, err := database.Open(database.Config{
		Hosts: cfg.DBHosts, Port: cfg.DBPort, User: cfg.DBUser, Pass: cfg.DBPass, Name: cfg.ReservationsDB,
	})
	if err != nil {
		log.Fatalf("open reservations store: %v", err)
	}
	defer reservationsDB.Close()

	catalogDB, err := database.Open(database.Config{
		Hosts: cfg.DBHosts, Port: cfg.DBPort, User: cfg.DBUser, Pass: cfg.DBPass, Name: cfg.CatalogDB,
	})
	if err != nil {
		log.Fatalf("open catalog store: %v", err)
	}
	defer catalogDB.Close()

	accountsDB, err := database.Open(database.Config{
		Hosts: cfg.DBHosts, Port: cfg.DBPort, User: cfg.DBUser, Pass: cfg.DBPass, Name: cfg.AccountsDB,
	})
	if err != nil {
		log.Fatalf("open accounts store: %v", err)
	}
	defer accountsDB.Close()

	broker, err := queue.Connect(queue.ResolveURL())
	if err != nil {
		log.Fatalf("connect broker: %v", err)
	}
	defer broker.Close()

	seatLedger := ledger.New(reservationsDB)
	hub := ws.NewHub(cfg.JWTSecret)

	sw := sweeper.New(seatLedger, hub, cfg.SweepInterval)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sw.Run(ctx)

	reservations := service.NewReservationService(service.ReservationServiceDeps{
		Ledger:       seatLedger,
		Reservations: repository.NewReservationRepo(reservationsDB),
		Catalog:      repository.NewCatalogRepo(catalogDB),
		Accounts:     repository.NewAccountRepo(accountsDB),
		Publisher:    broker,
		Broadcaster:  hub,
		Timers:       sw,
		HoldTTL:      cfg.HoldTTL,
	})

	e := echo.New()
	e.HideBanner = true
	router.Register(e, router.Deps{
		Seats:        handler.NewSeatHandler(reservations),
		Reservations: handler.NewReservationHandler(reservations),
		Hub:          hub,
		JWTSecret:    cfg.JWTSecret,
		RateLimit:    config.LoadRateLimitConfig(),
		Redis:        config.NewRedisClient(),
	})

	addr := ":" + cfg.Port
	log.Printf("reservations listening on %s (env=%s, db=%s)", addr, cfg.Env, reservationsDB.Host())
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
