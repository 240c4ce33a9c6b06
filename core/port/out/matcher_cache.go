package out

import (
	"context"
	"time"
)

// Cache is the outbound port for score memoization and run locking.
type Cache interface {
	// Batched float access backs the oracle memo: missing keys are absent
	// from the result so callers can batch the misses.
	GetMultiFloat(ctx context.Context, keys []string) (map[string]float64, error)
	SetMultiFloat(ctx context.Context, items map[string]float64, ttl time.Duration) error

	// Best-effort distributed lock for single-flight cycle runs.
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) error
}
