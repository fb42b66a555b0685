package database

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// HealthStatus reports database reachability and pool stats.
type HealthStatus struct {
	Reachable      bool   `json:"reachable"`
	Error          string `json:"error,omitempty"`
	OpenConns      int    `json:"open_connections"`
	InUse          int    `json:"in_use"`
	Idle           int    `json:"idle"`
	PingLatencyMs  int64  `json:"ping_latency_ms"`
	MaxOpenAllowed int    `json:"max_open_allowed"`
}

// Health pings the database with a short timeout and reports pool stats.
func Health(ctx context.Context, db *sqlx.DB) (*HealthStatus, error) {
	stats := db.Stats()
	status := &HealthStatus{
		OpenConns:      stats.OpenConnections,
		InUse:          stats.InUse,
		Idle:           stats.Idle,
		MaxOpenAllowed: stats.MaxOpenConnections,
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	if err := db.PingContext(pingCtx); err != nil {
		status.Error = err.Error()
		return status, err
	}
	status.Reachable = true
	status.PingLatencyMs = time.Since(start).Milliseconds()
	return status, nil
}
