// Package database connects to SurrealDB and runs queries against it.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/url"
	"time"

	"github.com/surrealdb/surrealdb.go"
)

// Settings is the part of the configuration the connection needs.
type Settings interface {
	GetSurrealURL() string
	GetDBNs() string
	GetDBDb() string
	GetDBUser() string
	GetDBPass() string
}

// ExponentialBackoffRetryer retries an operation with exponential backoff.
type ExponentialBackoffRetryer struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	multiplier float64
	jitter     bool
}

// NewExponentialBackoffRetryer creates a retryer with sensible defaults.
func NewExponentialBackoffRetryer(maxRetries int) *ExponentialBackoffRetryer {
	return &ExponentialBackoffRetryer{
		maxRetries: maxRetries,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   10 * time.Second,
		multiplier: 2.0,
		jitter:     true,
	}
}

// Retry executes fn until it succeeds, the attempts run out or ctx ends.
func (r *ExponentialBackoffRetryer) Retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == r.maxRetries {
			break
		}

		delay := r.delay(attempt)
		slog.DebugContext(ctx, "Retry attempt failed, waiting before next attempt",
			"attempt", attempt+1, "max_attempts", r.maxRetries+1,
			"delay_ms", delay.Milliseconds(), "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

func (r *ExponentialBackoffRetryer) delay(attempt int) time.Duration {
	d := float64(r.baseDelay) * math.Pow(r.multiplier, float64(attempt))
	if d > float64(r.maxDelay) {
		d = float64(r.maxDelay)
	}
	if r.jitter {
		d += rand.Float64() * d * 0.25
	}
	return time.Duration(d)
}

// Connect opens a SurrealDB connection, signs in and selects the namespace
// and database. Transient failures are retried with backoff.
func Connect(ctx context.Context, cfg Settings, retryer *ExponentialBackoffRetryer) (*surrealdb.DB, error) {
	var db *surrealdb.DB
	err := retryer.Retry(ctx, func() error {
		conn, err := open(ctx, cfg)
		if err != nil {
			return err
		}
		db = conn
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Connected to SurrealDB",
		"db_url", redactDBURL(cfg.GetSurrealURL()),
		"namespace", cfg.GetDBNs(),
		"database", cfg.GetDBDb())
	return db, nil
}

func open(ctx context.Context, cfg Settings) (*surrealdb.DB, error) {
	dbURL := cfg.GetSurrealURL()
	conn, err := surrealdb.FromEndpointURLString(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database at %s: %w", redactDBURL(dbURL), err)
	}

	if cfg.GetDBUser() != "" {
		authData := &surrealdb.Auth{
			Username: cfg.GetDBUser(),
			Password: cfg.GetDBPass(),
		}
		if _, err = conn.SignIn(ctx, authData); err != nil {
			_ = conn.Close(ctx)
			return nil, fmt.Errorf("failed to sign in: %w", err)
		}
	}

	if err = conn.Use(ctx, cfg.GetDBNs(), cfg.GetDBDb()); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("failed to use namespace/db: %w", err)
	}
	return conn, nil
}

// redactDBURL returns dbURL with any password replaced.
func redactDBURL(dbURL string) string {
	parsedURL, err := url.Parse(dbURL)
	if err != nil {
		return "invalid-url"
	}
	return parsedURL.Redacted()
}
