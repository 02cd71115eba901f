package ledger

import (
	"context"
	"fmt"

	"github.com/drfirst/go-flowsheet/internal/domain"
	"github.com/drfirst/go-flowsheet/pkg/circuitbreaker"
)

// Guarded wraps a Store with a circuit breaker. While the circuit is open
// every call fails fast with domain.ErrStorageUnavailable.
type Guarded struct {
	store Store
	cb    *circuitbreaker.CircuitBreaker
}

// NewGuarded guards store with cb.
func NewGuarded(store Store, cb *circuitbreaker.CircuitBreaker) *Guarded {
	return &Guarded{store: store, cb: cb}
}

type appendOutcome struct {
	entry     *Entry
	duplicate bool
}

// Append implements Store.
func (g *Guarded) Append(ctx context.Context, e *Entry) (*Entry, bool, error) {
	out, err := circuitbreaker.Do(ctx, g.cb, func() (appendOutcome, error) {
		stored, dup, err := g.store.Append(ctx, e)
		return appendOutcome{entry: stored, duplicate: dup}, err
	})
	if err != nil {
		return nil, false, g.wrap(err)
	}
	return out.entry, out.duplicate, nil
}

// List implements Store.
func (g *Guarded) List(ctx context.Context, kind Kind) ([]*Entry, error) {
	entries, err := circuitbreaker.Do(ctx, g.cb, func() ([]*Entry, error) {
		return g.store.List(ctx, kind)
	})
	return entries, g.wrap(err)
}

// Latest implements Store.
func (g *Guarded) Latest(ctx context.Context, kind Kind) (*Entry, error) {
	e, err := circuitbreaker.Do(ctx, g.cb, func() (*Entry, error) {
		return g.store.Latest(ctx, kind)
	})
	return e, g.wrap(err)
}

func (g *Guarded) wrap(err error) error {
	if err != nil && circuitbreaker.IsRejected(err) {
		return fmt.Errorf("%w: circuit %s: %v", domain.ErrStorageUnavailable, g.cb.Name(), err)
	}
	return err
}
