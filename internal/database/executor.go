package database

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
)

// Executor runs SurrealQL with per-call timeouts.
type Executor struct {
	db             *surrealdb.DB
	queryTimeout   time.Duration
	executeTimeout time.Duration
}

// NewExecutor wraps db. Non-positive timeouts disable the deadline.
func NewExecutor(db *surrealdb.DB, queryTimeout, executeTimeout time.Duration) *Executor {
	return &Executor{db: db, queryTimeout: queryTimeout, executeTimeout: executeTimeout}
}

// DB returns the underlying connection.
func (e *Executor) DB() *surrealdb.DB {
	return e.db
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Query executes a read statement and returns the rows of its first result.
//
// Example:
//
//	msgs, err := Query[record](ctx, exec, "SELECT * FROM message WHERE room_id = $room", map[string]any{"room": id})
func Query[T any](ctx context.Context, e *Executor, query string, params map[string]any) ([]T, error) {
	ctx, cancel := withTimeout(ctx, e.queryTimeout)
	defer cancel()
	return run[T](ctx, e.db, query, params)
}

// Mutate executes a write statement and returns the rows it reports.
func Mutate[T any](ctx context.Context, e *Executor, query string, params map[string]any) ([]T, error) {
	ctx, cancel := withTimeout(ctx, e.executeTimeout)
	defer cancel()
	return run[T](ctx, e.db, query, params)
}

// Execute runs a statement and discards its results.
func Execute(ctx context.Context, e *Executor, query string, params map[string]any) error {
	ctx, cancel := withTimeout(ctx, e.executeTimeout)
	defer cancel()
	if _, err := surrealdb.Query[any](ctx, e.db, query, params); err != nil {
		return fmt.Errorf("query execution failed: %w", err)
	}
	return nil
}

func run[T any](ctx context.Context, db *surrealdb.DB, query string, params map[string]any) ([]T, error) {
	results, err := surrealdb.Query[[]T](ctx, db, query, params)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}
