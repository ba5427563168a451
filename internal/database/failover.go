// Package database provides a resilient client over a set of interchangeable
// MySQL-compatible nodes.  The client keeps a single active connection pool
// per logical store; when a query fails with a connection-class error it
// transparently switches to the next reachable host and retries the query
// exactly once.  Non-connection errors (constraint violations, bad SQL) are
// never retried.
package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/jperezm/concert-reservation/internal/monitoring"
)

// ErrUnavailable is returned when every configured host has been tried and
// none accepted a connection.  Callers should surface it as a retryable
// service error.
var ErrUnavailable = errors.New("database: all nodes unreachable")

// driverName is swapped in tests to run the failover logic against a stub
// driver instead of a live MySQL node.
var driverName = "mysql"

// Config describes one logical store: the candidate hosts, shared
// credentials and the database name on the cluster.
type Config struct {
	Hosts []string
	Port  string
	User  string
	Pass  string
	Name  string
}

// Client is a logical database connection over N candidate hosts.  All
// callers of a store share one Client; reconnection is serialized so that
// concurrent failing queries cannot race into duplicate failover cycles.
type Client struct {
	cfg Config

	mu      sync.Mutex
	db      *sql.DB
	current int    // index of the active host in cfg.Hosts
	gen     uint64 // bumped on every successful reconnect
}

// Open builds a Client and performs the initial connect-with-failover.  It
// fails only when no configured host accepts a connection and a liveness
// probe.
func Open(cfg Config) (*Client, error) {
	if len(cfg.Hosts) == 0 {
		return nil, fmt.Errorf("database: no hosts configured for %s", cfg.Name)
	}
	c := &Client{cfg: cfg}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.reconnectLocked(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// dsn builds the connection string for a single host.
// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
// clientFoundRows=true -> RowsAffected counts matched rows, not changed
// ones, so an UPDATE restating identical values still counts
func (c *Client) dsn(host string) string {
	auth := c.cfg.User
	if c.cfg.Pass != "" {
		auth = fmt.Sprintf("%s:%s", c.cfg.User, c.cfg.Pass)
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		auth, host, c.cfg.Port, c.cfg.Name)
}

// reconnectLocked iterates hosts starting at the current index, opening a
// fresh pool and running a trivial probe against each until one answers.
// The first healthy host becomes current.  Must be called with c.mu held.
func (c *Client) reconnectLocked(ctx context.Context) error {
	n := len(c.cfg.Hosts)
	for i := 0; i < n; i++ {
		idx := (c.current + i) % n
		host := c.cfg.Hosts[idx]

		db, err := sql.Open(driverName, c.dsn(host))
		if err != nil {
			log.Printf("[db] %s: open %s failed: %v", c.cfg.Name, host, err)
			continue
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(30 * time.Minute)

		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		var one int
		err = db.QueryRowContext(probeCtx, "SELECT 1").Scan(&one)
		cancel()
		if err != nil {
			log.Printf("[db] %s: probe %s failed: %v", c.cfg.Name, host, err)
			_ = db.Close()
			continue
		}

		if c.db != nil {
			_ = c.db.Close()
		}
		c.db = db
		c.current = idx
		c.gen++
		log.Printf("[db] %s: connected to %s", c.cfg.Name, host)
		return nil
	}
	monitoring.DBFailuresTotal.WithLabelValues(c.cfg.Name).Inc()
	return fmt.Errorf("%w (store %s)", ErrUnavailable, c.cfg.Name)
}

// snapshot returns the active pool along with the generation it belongs to.
func (c *Client) snapshot() (*sql.DB, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db, c.gen
}

// failover switches to a healthy host after a connection-class failure.  The
// gen argument identifies the pool the caller observed failing; if another
// goroutine already reconnected past that generation, the existing new pool
// is returned without a second reconnect.
func (c *Client) failover(ctx context.Context, gen uint64) (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen && c.db != nil {
		return c.db, nil
	}
	monitoring.DBFailoversTotal.WithLabelValues(c.cfg.Name).Inc()
	if err := c.reconnectLocked(ctx); err != nil {
		return nil, err
	}
	return c.db, nil
}

// QueryContext executes a query, retrying once on a fresh host if the active
// connection fails at the transport level.
func (c *Client) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	db, gen := c.snapshot()
	rows, err := db.QueryContext(ctx, query, args...)
	if err == nil || !isConnErr(err) {
		return rows, err
	}
	log.Printf("[db] %s: query failed (%v), attempting failover", c.cfg.Name, err)
	db, ferr := c.failover(ctx, gen)
	if ferr != nil {
		return nil, ferr
	}
	return db.QueryContext(ctx, query, args...)
}

// ExecContext executes a statement with the same retry-once semantics as
// QueryContext.
func (c *Client) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	db, gen := c.snapshot()
	res, err := db.ExecContext(ctx, query, args...)
	if err == nil || !isConnErr(err) {
		return res, err
	}
	log.Printf("[db] %s: exec failed (%v), attempting failover", c.cfg.Name, err)
	db, ferr := c.failover(ctx, gen)
	if ferr != nil {
		return nil, ferr
	}
	return db.ExecContext(ctx, query, args...)
}

// BeginTx starts a transaction, failing over once if the active host refuses
// the connection.  Statements inside the transaction are pinned to the
// chosen host; a node loss mid-transaction aborts the transaction.
func (c *Client) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	db, gen := c.snapshot()
	tx, err := db.BeginTx(ctx, opts)
	if err == nil || !isConnErr(err) {
		return tx, err
	}
	log.Printf("[db] %s: begin failed (%v), attempting failover", c.cfg.Name, err)
	db, ferr := c.failover(ctx, gen)
	if ferr != nil {
		return nil, ferr
	}
	return db.BeginTx(ctx, opts)
}

// PingContext probes the active host.
func (c *Client) PingContext(ctx context.Context) error {
	db, _ := c.snapshot()
	return db.PingContext(ctx)
}

// Host reports the currently-active host, for health endpoints and logs.
func (c *Client) Host() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Hosts[c.current]
}

// Close releases the active pool.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// isConnErr reports whether err is a connection-class failure (refused,
// reset, closed, unreachable) as opposed to a statement-level error.  Only
// connection-class failures trigger failover; everything else propagates to
// the caller unchanged.
func isConnErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "invalid connection") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "use of closed network connection")
}
