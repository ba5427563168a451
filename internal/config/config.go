package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"strings" // strings splits the comma-separated host list
	"time"    // time expresses hold and sweep durations
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The database section describes a set of
// interchangeable nodes: DBHosts is an ordered list of candidate hosts and
// every logical store (reservations, event catalog, user accounts, tickets)
// lives in its own database on that cluster.
type Config struct {
	Env            string        // application environment (e.g. "dev", "prod")
	Port           string        // HTTP port to listen on
	DBHosts        []string      // ordered list of database hosts for failover
	DBPort         string        // database port number (shared by all hosts)
	DBUser         string        // database username
	DBPass         string        // database password (optional)
	ReservationsDB string        // database holding seats and reservations
	CatalogDB      string        // database holding events and zone capacity
	AccountsDB     string        // database holding user accounts
	TicketsDB      string        // database holding issued tickets
	JWTSecret      string        // secret used to verify JWTs
	HoldTTL        time.Duration // how long a seat hold lives before expiring
	SweepInterval  time.Duration // how often the expiry sweeper runs
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Hold TTL and sweep
// interval have defaults matching the business rules (10 minutes, 60s).
func Load() Config {
	return Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		DBHosts:        splitHosts(must("DB_HOSTS")),
		DBPort:         must("DB_PORT"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"), // empty allowed
		ReservationsDB: getenv("DB_NAME_RESERVATIONS", "reservations"),
		CatalogDB:      getenv("DB_NAME_CATALOG", "concerts"),
		AccountsDB:     getenv("DB_NAME_ACCOUNTS", "users"),
		TicketsDB:      getenv("DB_NAME_TICKETS", "tickets"),
		JWTSecret:      must("JWT_SECRET"),
		HoldTTL:        time.Duration(envInt("HOLD_TTL_MIN", 10)) * time.Minute,
		SweepInterval:  time.Duration(envInt("SWEEP_INTERVAL_SEC", 60)) * time.Second,
	}
}

// splitHosts parses a comma-separated host list, trimming whitespace and
// dropping empty entries.  At least one host is required.
func splitHosts(s string) []string {
	parts := strings.Split(s, ",")
	hosts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			hosts = append(hosts, p)
		}
	}
	if len(hosts) == 0 {
		log.Fatalf("DB_HOSTS must contain at least one host")
	}
	return hosts
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, v)
	}
	return n
}
