package database

import (
	"context"
	"log/slog"

	"github.com/sony/gobreaker"

	"github.com/kubenetlabs/watchrule/internal/watchrule"
)

// BreakerStore wraps a Store and guards SaveRuntime with a circuit breaker.
// A flapping store degrades to "leave state unchanged" for a cooldown period
// rather than getting hammered by the scheduler every tick.
type BreakerStore struct {
	Store
	cb *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps inner's SaveRuntime calls in a circuit breaker.
// Every other Store method passes through to inner unchanged.
func NewBreakerStore(inner Store) *BreakerStore {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "watchrule.SaveRuntime",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from, "to", to)
		},
	})
	return &BreakerStore{Store: inner, cb: cb}
}

// SaveRuntime persists runtime through the breaker. When the breaker is
// open, it returns gobreaker.ErrOpenState immediately without touching the
// underlying store, and the scheduler simply retries on the next tick.
func (b *BreakerStore) SaveRuntime(ctx context.Context, name string, runtime watchrule.RuleRuntime) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.Store.SaveRuntime(ctx, name, runtime)
	})
	return err
}
