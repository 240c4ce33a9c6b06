// Package resilience guards calls to external services. The semantic oracle
// sits behind a circuit breaker so a flapping embeddings API degrades the
// pipeline to its lexical fallback instead of stalling the cycle.
package resilience

import (
	"time"

	"github.com/sony/gobreaker"

	"matcher_server/pkg/logger"
)

// BreakerConfig tunes the failure window for one external dependency.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32        // probes allowed while half-open
	Interval         time.Duration // closed-state counter reset window
	Timeout          time.Duration // open -> half-open delay
	FailureThreshold uint32        // consecutive failures that trip the breaker
}

// DefaultBreakerConfig returns the settings used for the semantic oracle.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// NewBreaker builds a gobreaker instance that logs state transitions.
func NewBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker {
	log := logger.Component("breaker")

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
}

// IsOpen reports whether err came from the breaker itself rather than the
// wrapped call.
func IsOpen(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}
