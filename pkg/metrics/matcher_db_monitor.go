// Package metrics provides connection pool monitoring.
package metrics

import (
	"database/sql"
	"sync"
)

// DBPoolStats holds database connection pool statistics.
type DBPoolStats struct {
	OpenConnections    int   `json:"open_connections"`
	InUse              int   `json:"in_use"`
	Idle               int   `json:"idle"`
	MaxOpenConnections int   `json:"max_open_connections"`
	WaitCount          int64 `json:"wait_count"`
	WaitDurationMS     int64 `json:"wait_duration_ms"`
	MaxIdleClosed      int64 `json:"max_idle_closed"`
	MaxLifetimeClosed  int64 `json:"max_lifetime_closed"`
}

// GetDBPoolStats retrieves pool statistics from a sql.DB instance.
func GetDBPoolStats(db *sql.DB) DBPoolStats {
	if db == nil {
		return DBPoolStats{}
	}

	stats := db.Stats()
	return DBPoolStats{
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		MaxOpenConnections: stats.MaxOpenConnections,
		WaitCount:          stats.WaitCount,
		WaitDurationMS:     stats.WaitDuration.Milliseconds(),
		MaxIdleClosed:      stats.MaxIdleClosed,
		MaxLifetimeClosed:  stats.MaxLifetimeClosed,
	}
}

var (
	poolsMu sync.RWMutex
	pools   = make(map[string]*sql.DB)
)

// RegisterPool registers a pool with the global monitor under a name.
func RegisterPool(name string, db *sql.DB) {
	poolsMu.Lock()
	defer poolsMu.Unlock()
	pools[name] = db
}

// Snapshot returns current stats for every registered pool.
func Snapshot() map[string]DBPoolStats {
	poolsMu.RLock()
	defer poolsMu.RUnlock()

	out := make(map[string]DBPoolStats, len(pools))
	for name, db := range pools {
		out[name] = GetDBPoolStats(db)
	}
	return out
}

// Saturation reports how close a pool is to its connection limit, in [0,1].
func Saturation(stats DBPoolStats) float64 {
	if stats.MaxOpenConnections == 0 {
		return 0
	}
	return float64(stats.InUse) / float64(stats.MaxOpenConnections)
}
