// Package persistence holds what the concrete counter stores share.
package persistence

import (
	"context"
	"errors"

	"github.com/hostel-hub/hostel-registry/internal/domain/identifier"
	"github.com/hostel-hub/hostel-registry/pkg/circuitbreaker"
)

// GuardedStore puts a circuit breaker in front of a CounterStore. Writes fail
// with circuitbreaker.ErrOpen while the store is considered down.
type GuardedStore struct {
	store   identifier.CounterStore
	breaker *circuitbreaker.Breaker
}

var _ identifier.CounterStore = (*GuardedStore)(nil)

// NewGuardedStore wraps store with breaker.
func NewGuardedStore(store identifier.CounterStore, breaker *circuitbreaker.Breaker) *GuardedStore {
	return &GuardedStore{store: store, breaker: breaker}
}

// Load bypasses the breaker; it runs once at startup under retry.
func (g *GuardedStore) Load(ctx context.Context) (identifier.Snapshot, error) {
	return g.store.Load(ctx)
}

// Save implements identifier.CounterStore.
func (g *GuardedStore) Save(ctx context.Context, block identifier.Block, value int) error {
	return g.breaker.Do(ctx, func(ctx context.Context) error {
		return g.store.Save(ctx, block, value)
	})
}

// Advance implements identifier.CounterStore.
func (g *GuardedStore) Advance(ctx context.Context, block identifier.Block, value int) error {
	return g.breaker.Do(ctx, func(ctx context.Context) error {
		return g.store.Advance(ctx, block, value)
	})
}

// Check reports an error while the breaker is open. It fits the health
// checker's check function signature.
func (g *GuardedStore) Check(_ context.Context) error {
	if g.breaker.State() == circuitbreaker.Open {
		return errors.New("counter store circuit is open")
	}
	return nil
}

// IsStoreFailure decides which errors count against the breaker. A cancelled
// request says nothing about the store's health.
func IsStoreFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}
