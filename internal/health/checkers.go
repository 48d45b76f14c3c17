// Package health provides health checks for the gate's dependencies and
// the store resilience monitor that owns the reconnect policy.
package health

import (
	"context"
	"database/sql"
)

// Checker is implemented by anything that can be probed for liveness.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// DBChecker implements health checking for the local SQL store.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a database health checker.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
